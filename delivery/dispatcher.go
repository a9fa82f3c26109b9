package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alitto/pond/v2"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/id"
)

// Dispatcher fans events out to subscribed webhooks.
type Dispatcher struct {
	store  EngineStore
	proc   *processor
	pool   pond.Pool
	logger *slog.Logger

	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher with its own worker pool. The pool is
// unbounded: every webhook of an emission gets a worker at once, and
// concurrent emissions never wait on each other. Config.Concurrency only caps
// the sweeper.
func NewDispatcher(store EngineStore, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Dispatcher{
		store:  store,
		proc:   newProcessor(store, cfg, logger),
		pool:   pond.NewPool(0),
		logger: logger,
	}
}

// Emit delivers payload to every active webhook subscribed to eventType.
//
// Each webhook gets its own delivery record and attempt, run concurrently.
// Emit returns once every first attempt has been recorded, which takes at
// most the largest timeout among the subscribers. Errors are logged and never
// returned; cancelling ctx does not abort deliveries already started.
func (d *Dispatcher) Emit(ctx context.Context, eventType string, payload map[string]any) {
	ctx = context.WithoutCancel(ctx)

	webhooks, err := d.store.ListForEvent(ctx, eventType)
	if err != nil {
		d.logger.ErrorContext(ctx, "resolve webhooks failed",
			"event_type", eventType, "error", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	if d.proc.config.Metrics != nil {
		d.proc.config.Metrics.EventsEmittedTotal.Inc()
	}

	group := d.pool.NewGroup()
	for _, wh := range webhooks {
		group.Submit(func() {
			if _, err := d.proc.createAndRun(ctx, wh, eventType, payload); err != nil {
				d.logger.ErrorContext(ctx, "create delivery failed",
					"webhook_id", wh.ID, "event_type", eventType, "error", err)
			}
		})
	}
	if err := group.Wait(); err != nil {
		d.logger.ErrorContext(ctx, "fan-out interrupted", "event_type", eventType, "error", err)
	}

	d.logger.DebugContext(ctx, "event emitted",
		"event_type", eventType, "webhooks", len(webhooks))
}

// TestFire sends a synthetic test.ping delivery to one webhook and returns
// the recorded delivery. The webhook does not need to be active or
// subscribed. A nil payload sends {"test": true}.
func (d *Dispatcher) TestFire(ctx context.Context, whID id.ID, payload map[string]any) (*Delivery, error) {
	wh, err := d.store.GetWebhook(ctx, whID)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{"test": true}
	}

	del, err := d.proc.createAndRun(context.WithoutCancel(ctx), wh, catalog.TestPing, payload)
	if err != nil {
		return nil, fmt.Errorf("courier: test fire: %w", err)
	}
	return del, nil
}

// Redeliver sends the event of an existing delivery again as a new delivery
// record. The original record is left untouched.
func (d *Dispatcher) Redeliver(ctx context.Context, delID id.ID) (*Delivery, error) {
	orig, err := d.store.GetDelivery(ctx, delID)
	if err != nil {
		return nil, err
	}
	wh, err := d.store.GetWebhook(ctx, orig.WebhookID)
	if err != nil {
		return nil, err
	}

	del, err := d.proc.createAndRun(context.WithoutCancel(ctx), wh, orig.EventType, orig.Payload)
	if err != nil {
		return nil, fmt.Errorf("courier: redeliver: %w", err)
	}

	d.logger.InfoContext(ctx, "delivery redelivered",
		"original_id", orig.ID, "delivery_id", del.ID, "status", del.Status)
	return del, nil
}

// Stop waits for in-flight fan-outs and releases the pool.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(d.pool.StopAndWait)
}
