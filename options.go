package courier

import (
	"log/slog"
	"net/http"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// Courier is the root webhook delivery engine.
type Courier struct {
	config     Config
	store      store.Store
	catalog    *catalog.Catalog
	webhooks   *webhook.Service
	dispatcher *delivery.Dispatcher
	sweeper    *delivery.Sweeper
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	httpClient *http.Client
	clock      func() time.Time
	logger     *slog.Logger
}

// Option configures a Courier instance.
type Option func(*Courier) error

// New creates a new Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	c.wireServices()
	return c, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Courier) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Courier) error {
		c.config = cfg
		return nil
	}
}

// WithConcurrency sets the number of retries the sweeper attempts in parallel.
func WithConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the sweeper checks for due retries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries claimed per sweep.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithStaleAfter sets the age at which abandoned pending deliveries are
// recovered.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.StaleAfter = d
		return nil
	}
}

// WithLeaseDuration sets how long a claim protects an in-flight delivery.
func WithLeaseDuration(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.LeaseDuration = d
		return nil
	}
}

// WithMaxBackoff caps the delay between retries.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.MaxBackoff = d
		return nil
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight attempts.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.ShutdownTimeout = d
		return nil
	}
}

// WithHTTPClient sets the client used for outbound deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Courier) error {
		c.httpClient = client
		return nil
	}
}

// WithMetrics records engine metrics through factory.
func WithMetrics(factory gu.MetricFactory) Option {
	return func(c *Courier) error {
		c.metrics = observability.NewMetrics(factory)
		return nil
	}
}

// WithTracing enables OpenTelemetry spans for delivery attempts.
func WithTracing() Option {
	return func(c *Courier) error {
		c.tracer = observability.NewTracer()
		return nil
	}
}

// WithClock overrides the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(c *Courier) error {
		c.clock = now
		return nil
	}
}
