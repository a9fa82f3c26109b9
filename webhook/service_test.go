package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/store/memory"
	"github.com/xraph/courier/webhook"
)

func ctx() context.Context { return context.Background() }

func newService() (*webhook.Service, *memory.Store) {
	s := memory.New()
	return webhook.NewService(s, nil), s
}

func ptr[T any](v T) *T { return &v }

func validInput() webhook.Input {
	return webhook.Input{
		Name:   "Issue tracker",
		URL:    "https://example.com/webhook",
		Secret: "0123456789abcdef0123",
		Events: []string{"issue.created"},
	}
}

func TestServiceCreateDefaults(t *testing.T) {
	svc, _ := newService()

	wh, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(wh.ID.String(), "wh_") {
		t.Fatalf("id = %s", wh.ID)
	}
	if !wh.IsActive {
		t.Fatal("expected active by default")
	}
	if wh.MaxRetries != webhook.DefaultMaxRetries {
		t.Fatalf("max retries = %d", wh.MaxRetries)
	}
	if wh.TimeoutSeconds != webhook.DefaultTimeoutSeconds {
		t.Fatalf("timeout = %d", wh.TimeoutSeconds)
	}
	if wh.CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}
}

func TestServiceCreateOverrides(t *testing.T) {
	svc, _ := newService()

	in := validInput()
	in.IsActive = ptr(false)
	in.MaxRetries = ptr(0)
	in.TimeoutSeconds = ptr(300)
	in.Events = []string{" issue.updated", "issue.created", "issue.updated"}

	wh, err := svc.Create(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	if wh.IsActive || wh.MaxRetries != 0 || wh.TimeoutSeconds != 300 {
		t.Fatalf("overrides not applied: %+v", wh)
	}
	if len(wh.Events) != 2 || wh.Events[0] != "issue.created" || wh.Events[1] != "issue.updated" {
		t.Fatalf("events not normalized: %v", wh.Events)
	}
}

func TestServiceCreateGeneratesSecret(t *testing.T) {
	for _, blank := range []string{"", "   ", "\t\n"} {
		svc, _ := newService()

		in := validInput()
		in.Secret = blank
		wh, err := svc.Create(ctx(), in)
		if err != nil {
			t.Fatalf("secret %q: %v", blank, err)
		}
		if len(wh.Secret) != 43 || strings.TrimSpace(wh.Secret) != wh.Secret {
			t.Fatalf("secret %q: expected generated secret, got %q", blank, wh.Secret)
		}
	}
}

func TestServiceCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*webhook.Input)
		field  string
	}{
		{"missing name", func(in *webhook.Input) { in.Name = "  " }, "name"},
		{"long name", func(in *webhook.Input) { in.Name = strings.Repeat("n", 201) }, "name"},
		{"missing url", func(in *webhook.Input) { in.URL = "" }, "url"},
		{"bad scheme", func(in *webhook.Input) { in.URL = "ftp://example.com" }, "url"},
		{"no host", func(in *webhook.Input) { in.URL = "https://" }, "url"},
		{"long url", func(in *webhook.Input) { in.URL = "https://example.com/" + strings.Repeat("a", 1000) }, "url"},
		{"short secret", func(in *webhook.Input) { in.Secret = "short" }, "secret"},
		{"long secret", func(in *webhook.Input) { in.Secret = strings.Repeat("s", 501) }, "secret"},
		{"no events", func(in *webhook.Input) { in.Events = nil }, "events"},
		{"unknown event", func(in *webhook.Input) { in.Events = []string{"invoice.paid"} }, "events"},
		{"test ping not subscribable", func(in *webhook.Input) { in.Events = []string{"test.ping"} }, "events"},
		{"negative retries", func(in *webhook.Input) { in.MaxRetries = ptr(-1) }, "max_retries"},
		{"too many retries", func(in *webhook.Input) { in.MaxRetries = ptr(11) }, "max_retries"},
		{"zero timeout", func(in *webhook.Input) { in.TimeoutSeconds = ptr(0) }, "timeout_seconds"},
		{"long timeout", func(in *webhook.Input) { in.TimeoutSeconds = ptr(301) }, "timeout_seconds"},
		{"negative rate", func(in *webhook.Input) { in.RateLimit = -1 }, "rate_limit"},
		{"bad header name", func(in *webhook.Input) { in.Headers = map[string]string{"X Bad": "v"} }, "headers"},
		{"header injection", func(in *webhook.Input) { in.Headers = map[string]string{"X-Ok": "a\r\nX-Evil: 1"} }, "headers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := newService()
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(ctx(), in)
			var verr *webhook.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}

			list, _ := s.ListWebhooks(ctx(), webhook.ListOpts{})
			if len(list) != 0 {
				t.Fatal("invalid webhook was stored")
			}
		})
	}
}

func TestServiceUpdatePartial(t *testing.T) {
	svc, _ := newService()
	wh, err := svc.Create(ctx(), validInput())
	if err != nil {
		t.Fatal(err)
	}

	updated, err := svc.Update(ctx(), wh.ID, webhook.Update{
		Name:     ptr("Renamed"),
		IsActive: ptr(false),
		Events:   []string{"project.created", "issue.assigned"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if updated.Name != "Renamed" || updated.IsActive {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.URL != wh.URL || updated.Secret != wh.Secret || updated.MaxRetries != wh.MaxRetries {
		t.Fatal("unrelated fields changed")
	}
	if len(updated.Events) != 2 || updated.Events[0] != "issue.assigned" {
		t.Fatalf("events = %v", updated.Events)
	}
	if updated.UpdatedAt.Before(wh.UpdatedAt) {
		t.Fatal("updated_at went backwards")
	}

	got, _ := svc.Get(ctx(), wh.ID)
	if got.Name != "Renamed" {
		t.Fatal("update not persisted")
	}
}

func TestServiceUpdateRejectsInvalid(t *testing.T) {
	svc, _ := newService()
	wh, _ := svc.Create(ctx(), validInput())

	tests := []struct {
		name string
		in   webhook.Update
	}{
		{"empty events", webhook.Update{Events: []string{}}},
		{"unknown event", webhook.Update{Events: []string{"nope"}}},
		{"bad url", webhook.Update{URL: ptr("not a url")}},
		{"retries", webhook.Update{MaxRetries: ptr(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx(), wh.ID, tt.in)
			var verr *webhook.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	got, _ := svc.Get(ctx(), wh.ID)
	if got.URL != wh.URL || len(got.Events) != 1 || got.MaxRetries != wh.MaxRetries {
		t.Fatal("rejected update changed the stored webhook")
	}
}

func TestServiceUpdateNotFound(t *testing.T) {
	svc, _ := newService()

	_, err := svc.Update(ctx(), id.NewWebhookID(), webhook.Update{Name: ptr("x")})
	if !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
}

func TestServiceDeleteCascades(t *testing.T) {
	svc, s := newService()
	wh, _ := svc.Create(ctx(), validInput())

	d := &delivery.Delivery{
		Entity:        entity.New(),
		ID:            id.NewDeliveryID(),
		WebhookID:     wh.ID,
		EventType:     "issue.created",
		Payload:       map[string]any{},
		Status:        delivery.StateSuccess,
		AttemptNumber: 1,
	}
	if err := s.CreateDelivery(ctx(), d); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx(), wh.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx(), wh.ID); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound, got %v", err)
	}
	if _, err := s.GetDelivery(ctx(), d.ID); !errors.Is(err, courier.ErrDeliveryNotFound) {
		t.Fatalf("expected cascade, got %v", err)
	}
	if err := svc.Delete(ctx(), wh.ID); !errors.Is(err, courier.ErrWebhookNotFound) {
		t.Fatalf("expected ErrWebhookNotFound on second delete, got %v", err)
	}
}

func TestServiceListForEvent(t *testing.T) {
	svc, _ := newService()

	active, _ := svc.Create(ctx(), validInput())

	inactive := validInput()
	inactive.IsActive = ptr(false)
	_, _ = svc.Create(ctx(), inactive)

	other := validInput()
	other.Events = []string{"project.updated"}
	_, _ = svc.Create(ctx(), other)

	got, err := svc.ListForEvent(ctx(), "issue.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID.String() != active.ID.String() {
		t.Fatalf("got %v", got)
	}
}

func TestServiceRotateSecret(t *testing.T) {
	svc, _ := newService()
	wh, _ := svc.Create(ctx(), validInput())

	secret, err := svc.RotateSecret(ctx(), wh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if secret == wh.Secret || len(secret) != 43 {
		t.Fatalf("secret = %q", secret)
	}

	got, _ := svc.Get(ctx(), wh.ID)
	if got.Secret != secret {
		t.Fatal("rotated secret not persisted")
	}
}

func TestWebhookJSONOmitsSecret(t *testing.T) {
	svc, _ := newService()
	wh, _ := svc.Create(ctx(), validInput())

	b, err := json.Marshal(wh)
	if err != nil {
		t.Fatal(err)
	}
	raw := string(b)
	if strings.Contains(raw, wh.Secret) || strings.Contains(raw, `"secret"`) {
		t.Fatalf("secret serialized: %s", raw)
	}
}
