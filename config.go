package courier

import (
	"fmt"
	"time"

	"github.com/xraph/courier/webhook"
)

// Config holds the configuration for a Courier instance.
type Config struct {
	// Concurrency is the number of retries the sweeper attempts in parallel.
	// Emit fans out to all subscribers at once regardless.
	Concurrency int

	// PollInterval is how often the sweeper looks for due retries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per sweep.
	BatchSize int

	// StaleAfter is the age at which an unclaimed pending delivery is
	// recovered by the sweeper.
	StaleAfter time.Duration

	// LeaseDuration is how long a claim protects a delivery in flight.
	LeaseDuration time.Duration

	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration

	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    5 * time.Second,
		BatchSize:       50,
		StaleAfter:      5 * time.Minute,
		LeaseDuration:   10 * time.Minute,
		MaxBackoff:      24 * time.Hour,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	maxTimeout := time.Duration(webhook.MaxTimeoutSeconds) * time.Second

	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.LeaseDuration <= maxTimeout:
		return fmt.Errorf("%w: lease duration %s must exceed the maximum webhook timeout %s",
			ErrInvalidConfig, c.LeaseDuration, maxTimeout)
	case c.StaleAfter <= 0:
		return fmt.Errorf("%w: stale-after must be positive", ErrInvalidConfig)
	case c.MaxBackoff < time.Minute:
		return fmt.Errorf("%w: max backoff must be at least one minute", ErrInvalidConfig)
	}
	return nil
}
