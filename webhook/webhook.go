// Package webhook is the registry of subscriber endpoints: their
// configuration, validation rules and persistence contract.
package webhook

import (
	"slices"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Defaults and bounds for the retry policy.
const (
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 30

	MaxRetriesLimit     = 10
	MinTimeoutSeconds   = 1
	MaxTimeoutSeconds   = 300
	maxNameLength       = 200
	maxURLLength        = 1000
	minSecretLength     = 16
	maxSecretLength     = 500
	maxHeaderNameLength = 256
)

// Webhook is a registered HTTP endpoint and its delivery policy.
type Webhook struct {
	entity.Entity

	ID   id.ID  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	// Secret keys the payload signature. Never serialized.
	Secret string `json:"-"`

	// Events is the set of subscribed event types.
	Events []string `json:"events"`

	// IsActive gates dispatch of new events. Retries of existing deliveries
	// continue while inactive.
	IsActive bool `json:"is_active"`

	MaxRetries     int `json:"max_retries"`
	TimeoutSeconds int `json:"timeout_seconds"`

	// RateLimit caps attempts per second to this endpoint. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Headers are added to every request. They never replace the signature,
	// event, delivery-id or content-type headers.
	Headers map[string]string `json:"headers,omitempty"`
}

// Timeout returns the per-attempt deadline.
func (w *Webhook) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// Subscribes reports whether eventType is in the webhook's events.
func (w *Webhook) Subscribes(eventType string) bool {
	return slices.Contains(w.Events, eventType)
}
