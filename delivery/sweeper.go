package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"
)

// Sweeper periodically claims deliveries that are due for another attempt
// and runs them. It also recovers pending deliveries left behind by a crashed
// dispatcher once their lease has expired.
//
// Several sweepers may run against the same store; the claim guarantees that
// a delivery is attempted by at most one of them at a time.
type Sweeper struct {
	store  EngineStore
	proc   *processor
	pool   pond.Pool
	config Config
	logger *slog.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSweeper creates a sweeper with its own worker pool.
func NewSweeper(store EngineStore, cfg Config, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Sweeper{
		store:  store,
		proc:   newProcessor(store, cfg, logger),
		pool:   pond.NewPool(cfg.Concurrency, pond.WithQueueSize(cfg.BatchSize)),
		config: cfg,
		logger: logger,
	}
}

// Name identifies the sweeper in logs.
func (s *Sweeper) Name() string {
	return "delivery-retry-sweeper"
}

// Start launches the poll loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
}

// Stop ends the poll loop and waits for in-flight attempts. It is safe to
// call more than once.
func (s *Sweeper) Stop(_ context.Context) {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.pool.StopAndWait()
	})
}

func (s *Sweeper) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started",
		"name", s.Name(), "poll_interval", s.config.PollInterval, "batch_size", s.config.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce claims one batch of due deliveries, attempts each and waits for
// all of them. It returns the number of deliveries claimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.proc.now()
	batch, err := s.store.ClaimDue(ctx, ClaimOpts{
		Now:         now,
		StaleBefore: now.Add(-s.config.StaleAfter),
		Token:       uuid.NewString(),
		LeaseUntil:  now.Add(s.config.LeaseDuration),
		Limit:       s.config.BatchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	group := s.pool.NewGroup()
	for _, d := range batch {
		group.Submit(func() {
			s.attempt(ctx, d)
		})
	}
	if err := group.Wait(); err != nil {
		return len(batch), err
	}

	s.logger.DebugContext(ctx, "sweep completed", "claimed", len(batch))
	return len(batch), nil
}

func (s *Sweeper) attempt(ctx context.Context, d *Delivery) {
	wh, err := s.store.GetWebhook(ctx, d.WebhookID)
	if err != nil {
		// The webhook was deleted after the claim; its deliveries go with it.
		s.logger.WarnContext(ctx, "claimed delivery has no webhook",
			"delivery_id", d.ID, "webhook_id", d.WebhookID, "error", err)
		s.proc.release(context.WithoutCancel(ctx), d, d.ClaimToken)
		return
	}

	if d.Status == StatePending {
		s.logger.InfoContext(ctx, "recovering stale pending delivery",
			"delivery_id", d.ID, "created_at", d.CreatedAt)
	}
	// Shutdown must not turn an in-flight attempt into a recorded failure.
	s.proc.run(context.WithoutCancel(ctx), wh, d)
}
