// Package entity holds the timestamps shared by webhooks and deliveries.
package entity

import "time"

// Entity carries creation and modification times.
type Entity struct {
	CreatedAt time.Time `json:"created_at" bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `json:"updated_at" bun:"updated_at,notnull,default:current_timestamp"`
}

// Now returns the current UTC time truncated to microseconds, the precision
// every backend can store losslessly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// New returns an Entity with both timestamps set to Now.
func New() Entity {
	now := Now()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch advances UpdatedAt.
func (e *Entity) Touch() {
	e.UpdatedAt = Now()
}
