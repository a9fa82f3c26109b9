package delivery

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/webhook"
)

// WebhookSource is the webhook lookup the engine depends on.
type WebhookSource interface {
	GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error)
	ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error)
}

// EngineStore is everything the dispatcher and sweeper persist through.
type EngineStore interface {
	Store
	WebhookSource
}

// processor runs one claimed delivery through attempt, decide and persist.
type processor struct {
	store    EngineStore
	executor *Executor
	config   Config
	logger   *slog.Logger
}

func newProcessor(store EngineStore, cfg Config, logger *slog.Logger) *processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &processor{
		store:    store,
		executor: NewExecutor(cfg.HTTPClient),
		config:   cfg,
		logger:   logger,
	}
}

func (p *processor) now() time.Time {
	return p.config.Now().UTC().Truncate(time.Microsecond)
}

// newClaimed builds a pending delivery already leased to the caller, so the
// sweeper leaves it alone while the first attempt is in flight.
func (p *processor) newClaimed(wh *webhook.Webhook, eventType string, payload map[string]any) *Delivery {
	now := p.now()
	lease := now.Add(p.config.LeaseDuration)
	if payload == nil {
		payload = map[string]any{}
	}
	return &Delivery{
		Entity:        entity.Entity{CreatedAt: now, UpdatedAt: now},
		ID:            id.NewDeliveryID(),
		WebhookID:     wh.ID,
		EventType:     eventType,
		Payload:       maps.Clone(payload),
		Status:        StatePending,
		AttemptNumber: 1,
		ClaimToken:    uuid.NewString(),
		ClaimedUntil:  &lease,
	}
}

// createAndRun persists a fresh delivery for wh and attempts it.
func (p *processor) createAndRun(ctx context.Context, wh *webhook.Webhook, eventType string, payload map[string]any) (*Delivery, error) {
	d := p.newClaimed(wh, eventType, payload)
	if err := p.store.CreateDelivery(ctx, d); err != nil {
		return nil, err
	}
	p.run(ctx, wh, d)
	return d, nil
}

// run attempts d, which must carry a live claim token. Every outcome is
// persisted; nothing is returned to the caller.
func (p *processor) run(ctx context.Context, wh *webhook.Webhook, d *Delivery) {
	token := d.ClaimToken
	persistCtx := context.WithoutCancel(ctx)

	var span trace.Span
	if p.config.Tracer != nil {
		ctx, span = p.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.WebhookID.String(), d.EventType)
	}
	if p.config.Metrics != nil {
		p.config.Metrics.InFlight.Inc()
		defer p.config.Metrics.InFlight.Dec()
	}

	if p.config.Limiter != nil {
		if err := p.throttle(ctx, wh, d); err != nil {
			p.logger.DebugContext(ctx, "attempt deferred by rate limit",
				"delivery_id", d.ID, "webhook_id", wh.ID, "error", err)
			p.release(persistCtx, d, token)
			if span != nil {
				p.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
			}
			return
		}
	}

	var dec Decision
	outcome, err := p.executor.Attempt(ctx, wh, d)
	if err != nil {
		dec = Abort(d, err, p.now())
	} else {
		dec = Decide(d, outcome, Policy{MaxRetries: wh.MaxRetries, MaxBackoff: p.config.MaxBackoff}, p.now())
	}
	dec.Apply(d)

	if span != nil {
		p.config.Tracer.EndDeliverySpan(span, d.ResponseStatusCode, d.LatencyMs, d.ErrorMessage)
	}

	completeErr := p.store.CompleteAttempt(persistCtx, d, token)
	switch {
	case errors.Is(completeErr, ErrClaimLost):
		p.logger.WarnContext(ctx, "attempt result discarded",
			"delivery_id", d.ID, "webhook_id", d.WebhookID, "status", d.Status)
		if p.config.Metrics != nil {
			p.config.Metrics.RecordDiscarded()
		}
		return
	case completeErr != nil:
		p.logger.ErrorContext(ctx, "complete attempt failed",
			"delivery_id", d.ID, "error", completeErr)
		return
	}
	d.ClaimToken = ""
	d.ClaimedUntil = nil

	if p.config.Metrics != nil {
		p.config.Metrics.RecordDelivery(string(d.Status), float64(d.LatencyMs)/1000.0)
	}

	switch d.Status {
	case StateSuccess:
		p.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", d.ResponseStatusCode, "latency_ms", d.LatencyMs)
	case StateRetrying:
		p.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.AttemptNumber, "next_at", d.NextRetryAt)
	case StateFailed:
		p.logger.WarnContext(ctx, "delivery failed permanently",
			"delivery_id", d.ID, "attempt", d.AttemptNumber,
			"status", d.ResponseStatusCode, "error", d.ErrorMessage)
	}
}

// throttle waits for a rate-limit token, but only as long as the attempt can
// still finish inside the claim's lease.
func (p *processor) throttle(ctx context.Context, wh *webhook.Webhook, d *Delivery) error {
	if wh.RateLimit <= 0 {
		return nil
	}
	if d.ClaimedUntil != nil {
		budget := d.ClaimedUntil.Sub(p.now()) - wh.Timeout()
		if budget <= 0 {
			return errLeaseTooShort
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	return p.config.Limiter.Wait(ctx, wh.ID.String(), wh.RateLimit)
}

var errLeaseTooShort = errors.New("lease too short to wait for a rate-limit token")

func (p *processor) release(ctx context.Context, d *Delivery, token string) {
	if err := p.store.ReleaseClaim(ctx, d.ID, token); err != nil && !errors.Is(err, ErrClaimLost) {
		p.logger.ErrorContext(ctx, "release claim failed", "delivery_id", d.ID, "error", err)
	}
}
