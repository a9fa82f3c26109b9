package delivery

import (
	"net/http"
	"time"

	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/ratelimit"
)

// Config holds the settings shared by the dispatcher and the sweeper.
type Config struct {
	// Concurrency is the number of retry attempts the sweeper runs in
	// parallel. Fan-out from Emit is not capped.
	Concurrency int

	// PollInterval is how often the sweeper looks for due deliveries.
	PollInterval time.Duration

	// BatchSize caps deliveries claimed per sweep.
	BatchSize int

	// StaleAfter is the age at which a pending delivery is considered
	// abandoned by a crashed dispatcher and handed to the sweeper.
	StaleAfter time.Duration

	// LeaseDuration is how long a claim protects a delivery. It must exceed
	// the longest webhook timeout.
	LeaseDuration time.Duration

	// MaxBackoff caps a single retry delay.
	MaxBackoff time.Duration

	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = 10 * time.Minute
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
