// Package delivery drives webhook deliveries: it records each emission,
// performs signed HTTP attempts, decides retries and sweeps due work.
package delivery

import (
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// State is the status of a delivery.
type State string

const (
	// StatePending is a delivery created but not yet attempted to completion.
	StatePending State = "pending"

	// StateRetrying is a failed delivery waiting for NextRetryAt.
	StateRetrying State = "retrying"

	// StateSuccess is terminal: the endpoint answered 2xx.
	StateSuccess State = "success"

	// StateFailed is terminal: retries ran out or the payload could not be
	// serialized or signed.
	StateFailed State = "failed"
)

// IsTerminal reports whether no further attempts will be made.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateRetrying, StateSuccess, StateFailed:
		return true
	}
	return false
}

// MaxResponseBody caps the stored response body, in bytes.
const MaxResponseBody = 1000

// Delivery is one event sent to one webhook. The record holds the current
// attempt state and the outcome of the latest attempt.
type Delivery struct {
	entity.Entity

	ID        id.ID          `json:"id"`
	WebhookID id.ID          `json:"webhook_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Status    State          `json:"status"`

	// AttemptNumber starts at 1 and is incremented when a failed attempt
	// schedules a retry. It is the number of the next (or final) attempt.
	AttemptNumber int `json:"attempt_number"`

	ResponseStatusCode int    `json:"response_status_code,omitempty"`
	ResponseBody       string `json:"response_body,omitempty"`
	ErrorMessage       string `json:"error_message,omitempty"`
	LatencyMs          int    `json:"latency_ms,omitempty"`

	// DeliveredAt is set only on success.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	// NextRetryAt is set only while retrying.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`

	// ClaimToken and ClaimedUntil form the lease held by the worker that is
	// currently attempting this delivery.
	ClaimToken   string     `json:"-"`
	ClaimedUntil *time.Time `json:"-"`
}

// ListOpts configures pagination and filtering for delivery history.
type ListOpts struct {
	Offset int
	Limit  int
	Status *State
}

// ClaimOpts parameterizes Store.ClaimDue.
type ClaimOpts struct {
	// Now is compared against next_retry_at and claimed_until.
	Now time.Time

	// StaleBefore selects pending deliveries created at or before it.
	StaleBefore time.Time

	// Token and LeaseUntil are written onto every claimed delivery.
	Token      string
	LeaseUntil time.Time

	// Limit caps the number of claimed deliveries.
	Limit int
}

// Claimable reports whether d qualifies for ClaimDue under opts. Stores that
// filter in application code use it; SQL stores express the same predicate.
func (d *Delivery) Claimable(opts ClaimOpts) bool {
	if d.ClaimToken != "" && d.ClaimedUntil != nil && d.ClaimedUntil.After(opts.Now) {
		return false
	}
	switch d.Status {
	case StateRetrying:
		return d.NextRetryAt != nil && !d.NextRetryAt.After(opts.Now)
	case StatePending:
		return !d.CreatedAt.After(opts.StaleBefore)
	}
	return false
}
