package courier

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// wireServices initializes the internal services after options have been applied.
func (c *Courier) wireServices() {
	c.catalog = catalog.New()
	c.webhooks = webhook.NewService(c.store, c.logger)
	c.limiter = ratelimit.New()

	cfg := delivery.Config{
		Concurrency:   c.config.Concurrency,
		PollInterval:  c.config.PollInterval,
		BatchSize:     c.config.BatchSize,
		StaleAfter:    c.config.StaleAfter,
		LeaseDuration: c.config.LeaseDuration,
		MaxBackoff:    c.config.MaxBackoff,
		HTTPClient:    c.httpClient,
		Limiter:       c.limiter,
		Metrics:       c.metrics,
		Tracer:        c.tracer,
		Now:           c.clock,
	}
	c.dispatcher = delivery.NewDispatcher(c.store, cfg, c.logger)
	c.sweeper = delivery.NewSweeper(c.store, cfg, c.logger)
}

// Start begins the retry sweeper.
func (c *Courier) Start(ctx context.Context) {
	c.sweeper.Start(ctx)
}

// Stop halts the sweeper and waits for in-flight attempts, up to the
// configured shutdown timeout.
func (c *Courier) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.sweeper.Stop(ctx)
		c.dispatcher.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("courier: shutdown: %w", ctx.Err())
	}
}

// Emit delivers an event to every active webhook subscribed to eventType.
//
// It never returns an error: the business operation that produced the event
// must not fail because a subscriber is down. Unknown event types and
// payloads rejected by the event's schema are logged and dropped.
func (c *Courier) Emit(ctx context.Context, eventType string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err := c.ValidateEvent(eventType, payload); err != nil {
		c.logger.WarnContext(ctx, "emit rejected",
			"event_type", eventType, "error", err)
		return
	}
	c.dispatcher.Emit(ctx, eventType, payload)
}

// ValidateEvent reports whether an event may be emitted. Unknown event types
// wrap catalog.ErrUnknownEventType; payloads that are not objects accepted by
// the type's schema wrap ErrPayloadInvalid.
func (c *Courier) ValidateEvent(eventType string, payload any) error {
	if !catalog.IsSubscribable(eventType) {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownEventType, eventType)
	}
	if err := c.catalog.ValidatePayload(eventType, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrPayloadInvalid, err)
	}
	return nil
}

// TestFire sends a test.ping delivery to a webhook and returns the record.
func (c *Courier) TestFire(ctx context.Context, whID id.ID, payload map[string]any) (*delivery.Delivery, error) {
	return c.dispatcher.TestFire(ctx, whID, payload)
}

// Redeliver re-sends the event of an existing delivery as a new delivery.
func (c *Courier) Redeliver(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return c.dispatcher.Redeliver(ctx, delID)
}

// SweepOnce runs a single retry sweep and reports how many deliveries were
// attempted.
func (c *Courier) SweepOnce(ctx context.Context) (int, error) {
	return c.sweeper.SweepOnce(ctx)
}

// GetDelivery returns a delivery by ID.
func (c *Courier) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	return c.store.GetDelivery(ctx, delID)
}

// ListDeliveries returns the delivery history of a webhook, newest first.
// It returns ErrWebhookNotFound for unknown webhooks.
func (c *Courier) ListDeliveries(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	if _, err := c.store.GetWebhook(ctx, whID); err != nil {
		return nil, err
	}
	return c.store.ListByWebhook(ctx, whID, opts)
}

// Stats returns delivery counts by status. Every status is present.
func (c *Courier) Stats(ctx context.Context) (map[delivery.State]int64, error) {
	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	out := map[delivery.State]int64{
		delivery.StatePending:  0,
		delivery.StateRetrying: 0,
		delivery.StateSuccess:  0,
		delivery.StateFailed:   0,
	}
	for k, v := range counts {
		out[k] = v
	}
	return out, nil
}

// Webhooks returns the webhook registry.
func (c *Courier) Webhooks() *webhook.Service {
	return c.webhooks
}

// Catalog returns the event type catalog.
func (c *Courier) Catalog() *catalog.Catalog {
	return c.catalog
}

// Store returns the underlying store.
func (c *Courier) Store() store.Store {
	return c.store
}

// IsNotFound reports whether err means a webhook or delivery does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWebhookNotFound) || errors.Is(err, ErrDeliveryNotFound)
}
