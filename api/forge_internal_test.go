package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/xraph/forge"

	"github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/webhook"
)

func newForgeAPI(t *testing.T) *ForgeAPI {
	t.Helper()

	c, err := courier.New(courier.WithStore(memory.New()))
	if err != nil {
		t.Fatalf("new courier: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop(context.Background()) })

	return NewForgeAPI(c, nil)
}

func forgeReceiver(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestForgeCreateWebhook(t *testing.T) {
	a := newForgeAPI(t)

	wh, err := a.create(context.Background(), &CreateWebhookForgeRequest{
		Name:   "issues",
		URL:    "https://example.com/hook",
		Events: []string{catalog.IssueCreated},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(wh.Secret) != 43 {
		t.Fatalf("expected generated secret, got %q", wh.Secret)
	}
	if !wh.IsActive || wh.MaxRetries != webhook.DefaultMaxRetries {
		t.Fatalf("defaults not applied: %+v", wh)
	}

	got, err := a.lookup(context.Background(), &WebhookForgeRequest{WebhookID: wh.ID.String()})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != wh.ID {
		t.Fatalf("lookup returned %s, want %s", got.ID, wh.ID)
	}
}

func TestForgeCreateWebhookInvalid(t *testing.T) {
	a := newForgeAPI(t)
	in := webhook.Input{
		Name:   "issues",
		URL:    "ftp://example.com/hook",
		Events: []string{catalog.IssueCreated},
	}

	_, raw := a.courier.Webhooks().Create(context.Background(), in)
	var verr *webhook.ValidationError
	if !errors.As(raw, &verr) {
		t.Fatalf("expected ValidationError from the service, got %v", raw)
	}

	_, err := a.create(context.Background(), &CreateWebhookForgeRequest{
		Name:   in.Name,
		URL:    in.URL,
		Events: in.Events,
	})
	if want := forge.BadRequest(verr.Error()); !reflect.DeepEqual(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestForgeFireTest(t *testing.T) {
	a := newForgeAPI(t)
	target, hits := forgeReceiver(t)

	wh, err := a.create(context.Background(), &CreateWebhookForgeRequest{
		Name:   "issues",
		URL:    target.URL,
		Events: []string{catalog.IssueCreated},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		payload json.RawMessage
		want    map[string]any
	}{
		{"absent", nil, map[string]any{"test": true}},
		{"null", json.RawMessage(`null`), map[string]any{"test": true}},
		{"object", json.RawMessage(`{"hello":"there"}`), map[string]any{"hello": "there"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := a.fireTest(context.Background(), &TestWebhookForgeRequest{
				WebhookID: wh.ID.String(),
				Payload:   tt.payload,
			})
			if err != nil {
				t.Fatal(err)
			}
			if d.EventType != catalog.TestPing || d.Status != delivery.StateSuccess {
				t.Fatalf("got %s %s", d.EventType, d.Status)
			}
			if !reflect.DeepEqual(d.Payload, tt.want) {
				t.Fatalf("payload = %v, want %v", d.Payload, tt.want)
			}
		})
	}
	if hits.Load() != int32(len(tests)) {
		t.Fatalf("expected %d requests, got %d", len(tests), hits.Load())
	}
}

func TestForgeErrorMapping(t *testing.T) {
	a := newForgeAPI(t)
	missing := id.NewWebhookID().String()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "lookup unknown webhook",
			call: func() error {
				_, err := a.lookup(context.Background(), &WebhookForgeRequest{WebhookID: missing})
				return err
			},
			want: forge.NotFound(courier.ErrWebhookNotFound.Error()),
		},
		{
			name: "test-fire unknown webhook",
			call: func() error {
				_, err := a.fireTest(context.Background(), &TestWebhookForgeRequest{WebhookID: missing})
				return err
			},
			want: forge.NotFound(courier.ErrWebhookNotFound.Error()),
		},
		{
			name: "malformed webhook ID",
			call: func() error {
				_, err := a.fireTest(context.Background(), &TestWebhookForgeRequest{WebhookID: "nope"})
				return err
			},
			want: forge.BadRequest("invalid webhook ID"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !reflect.DeepEqual(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestForgeFireTestRejectsNonObjectPayload(t *testing.T) {
	a := newForgeAPI(t)
	wh, err := a.create(context.Background(), &CreateWebhookForgeRequest{
		Name:   "issues",
		URL:    "https://example.com/hook",
		Events: []string{catalog.IssueCreated},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = a.fireTest(context.Background(), &TestWebhookForgeRequest{
		WebhookID: wh.ID.String(),
		Payload:   json.RawMessage(`["x"]`),
	})
	if err == nil {
		t.Fatal("expected an error for an array payload")
	}
}

func TestMapError(t *testing.T) {
	boom := errors.New("disk full")
	wrapped := errors.Join(courier.ErrDeliveryNotFound, boom)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"webhook not found", courier.ErrWebhookNotFound, forge.NotFound(courier.ErrWebhookNotFound.Error())},
		{"delivery not found", wrapped, forge.NotFound(wrapped.Error())},
		{"invalid payload", courier.ErrPayloadInvalid, forge.BadRequest(courier.ErrPayloadInvalid.Error())},
		{"unknown event type", catalog.ErrUnknownEventType, forge.BadRequest(catalog.ErrUnknownEventType.Error())},
		{"anything else", boom, forge.InternalError(boom)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("mapError() = %v, want %v", got, tt.want)
			}
		})
	}
}
