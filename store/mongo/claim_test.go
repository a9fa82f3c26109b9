package mongo

import (
	"errors"
	"reflect"
	"testing"

	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

type claimStep struct {
	id  string
	err error
}

// scriptedClaims replays steps through next and records what release gets.
type scriptedClaims struct {
	steps    []claimStep
	calls    int
	released [][]string
	relErr   error
}

func (s *scriptedClaims) next() (string, *delivery.Delivery, error) {
	if s.calls >= len(s.steps) {
		return "", nil, mongod.ErrNoDocuments
	}
	st := s.steps[s.calls]
	s.calls++
	if st.err != nil {
		return st.id, nil, st.err
	}
	return st.id, &delivery.Delivery{ID: id.NewDeliveryID()}, nil
}

func (s *scriptedClaims) release(ids []string) error {
	s.released = append(s.released, ids)
	return s.relErr
}

func TestClaimBatchStopsWhenNoneLeft(t *testing.T) {
	sc := &scriptedClaims{steps: []claimStep{{id: "a"}, {id: "b"}}}

	got, err := claimBatch(5, sc.next, sc.release)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("claimed %d, want 2", len(got))
	}
	if sc.calls != 2 || len(sc.released) != 0 {
		t.Fatalf("calls = %d released = %v", sc.calls, sc.released)
	}
}

func TestClaimBatchHonorsLimit(t *testing.T) {
	sc := &scriptedClaims{steps: []claimStep{{id: "a"}, {id: "b"}, {id: "c"}}}

	got, err := claimBatch(2, sc.next, sc.release)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || sc.calls != 2 {
		t.Fatalf("claimed %d in %d calls, want 2 in 2", len(got), sc.calls)
	}
}

func TestClaimBatchReleasesOnError(t *testing.T) {
	boom := errors.New("connection reset")

	tests := []struct {
		name  string
		steps []claimStep
		want  []string
	}{
		{
			name:  "query error after two claims",
			steps: []claimStep{{id: "a"}, {id: "b"}, {err: boom}},
			want:  []string{"a", "b"},
		},
		{
			name:  "decode error includes the bad document",
			steps: []claimStep{{id: "a"}, {id: "b", err: boom}},
			want:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &scriptedClaims{steps: tt.steps}

			got, err := claimBatch(10, sc.next, sc.release)
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v", err, boom)
			}
			if got != nil {
				t.Fatalf("expected no deliveries, got %d", len(got))
			}
			if len(sc.released) != 1 || !reflect.DeepEqual(sc.released[0], tt.want) {
				t.Fatalf("released = %v, want [%v]", sc.released, tt.want)
			}
		})
	}
}

func TestClaimBatchFirstErrorReleasesNothing(t *testing.T) {
	boom := errors.New("server selection timeout")
	sc := &scriptedClaims{steps: []claimStep{{err: boom}}}

	if _, err := claimBatch(10, sc.next, sc.release); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(sc.released) != 0 {
		t.Fatalf("release called with %v", sc.released)
	}
}

func TestClaimBatchReportsReleaseFailure(t *testing.T) {
	boom := errors.New("cursor killed")
	relErr := errors.New("write concern")
	sc := &scriptedClaims{steps: []claimStep{{id: "a"}, {err: boom}}, relErr: relErr}

	_, err := claimBatch(10, sc.next, sc.release)
	if !errors.Is(err, boom) || !errors.Is(err, relErr) {
		t.Fatalf("err = %v, want both causes", err)
	}
}
