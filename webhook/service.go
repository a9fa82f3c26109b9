package webhook

import (
	"context"
	"log/slog"
	"maps"
	"strings"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/signature"
)

// Service provides webhook management operations.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Create validates in and registers a new webhook. An empty secret is
// replaced with a generated one.
func (svc *Service) Create(ctx context.Context, in Input) (*Webhook, error) {
	wh := &Webhook{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		Name:           in.Name,
		URL:            in.URL,
		Secret:         in.Secret,
		Events:         in.Events,
		IsActive:       true,
		MaxRetries:     DefaultMaxRetries,
		TimeoutSeconds: DefaultTimeoutSeconds,
		RateLimit:      in.RateLimit,
		Headers:        maps.Clone(in.Headers),
	}
	if strings.TrimSpace(wh.Secret) == "" {
		wh.Secret = signature.GenerateSecret()
	}
	if in.IsActive != nil {
		wh.IsActive = *in.IsActive
	}
	if in.MaxRetries != nil {
		wh.MaxRetries = *in.MaxRetries
	}
	if in.TimeoutSeconds != nil {
		wh.TimeoutSeconds = *in.TimeoutSeconds
	}

	wh.normalize()
	if err := wh.Validate(); err != nil {
		return nil, err
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook created",
		"webhook_id", wh.ID, "url", wh.URL, "events", wh.Events)

	return wh, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, whID id.ID) (*Webhook, error) {
	return svc.store.GetWebhook(ctx, whID)
}

// List returns webhooks, newest first.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, opts)
}

// Update applies a partial change. The result must still satisfy every
// registry rule, so an update can never leave events empty or unknown.
func (svc *Service) Update(ctx context.Context, whID id.ID, in Update) (*Webhook, error) {
	wh, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		wh.Name = *in.Name
	}
	if in.URL != nil {
		wh.URL = *in.URL
	}
	if in.Secret != nil {
		wh.Secret = *in.Secret
	}
	if in.Events != nil {
		if len(in.Events) == 0 {
			return nil, invalid("events", "at least one event type required")
		}
		wh.Events = in.Events
	}
	if in.IsActive != nil {
		wh.IsActive = *in.IsActive
	}
	if in.MaxRetries != nil {
		wh.MaxRetries = *in.MaxRetries
	}
	if in.TimeoutSeconds != nil {
		wh.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.RateLimit != nil {
		wh.RateLimit = *in.RateLimit
	}
	if in.Headers != nil {
		wh.Headers = maps.Clone(in.Headers)
	}

	wh.normalize()
	if err := wh.Validate(); err != nil {
		return nil, err
	}
	wh.Touch()

	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	return wh, nil
}

// Delete removes a webhook and every delivery it owns.
func (svc *Service) Delete(ctx context.Context, whID id.ID) error {
	if err := svc.store.DeleteWebhook(ctx, whID); err != nil {
		return err
	}
	svc.logger.InfoContext(ctx, "webhook deleted", "webhook_id", whID)
	return nil
}

// ListForEvent returns the active webhooks subscribed to eventType.
func (svc *Service) ListForEvent(ctx context.Context, eventType string) ([]*Webhook, error) {
	return svc.store.ListForEvent(ctx, eventType)
}

// RotateSecret replaces the signing secret with a freshly generated one and
// returns it.
func (svc *Service) RotateSecret(ctx context.Context, whID id.ID) (string, error) {
	wh, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return "", err
	}

	wh.Secret = signature.GenerateSecret()
	wh.Touch()
	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return "", err
	}

	return wh.Secret, nil
}
