package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/xraph/courier"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-1, defaultLimit},
		{10, 10},
		{maxLimit, maxLimit},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		got, err := decodePayload(json.RawMessage(raw))
		if err != nil || got == nil || len(got) != 0 {
			t.Fatalf("decodePayload(%q) = %v, %v; want empty object", raw, got, err)
		}
	}

	got, err := decodePayload(json.RawMessage(`{"a":{"b":1}}`))
	if err != nil {
		t.Fatalf("decode object: %v", err)
	}
	if _, ok := got["a"].(map[string]any); !ok {
		t.Fatalf("expected nested object, got %T", got["a"])
	}

	for _, raw := range []string{`[1]`, `"x"`, `{`} {
		if _, err := decodePayload(json.RawMessage(raw)); !errors.Is(err, courier.ErrPayloadInvalid) {
			t.Fatalf("decodePayload(%q) error = %v, want ErrPayloadInvalid", raw, err)
		}
	}
}
