package delivery

import (
	"context"
	"errors"

	"github.com/xraph/courier/id"
)

// ErrClaimLost is returned when a delivery is no longer held by the given
// claim token, either because another worker took it over or because the
// delivery was deleted together with its webhook.
var ErrClaimLost = errors.New("courier: delivery claim lost")

// Store defines the persistence contract for delivery records.
type Store interface {
	// CreateDelivery persists a new delivery, including any claim it carries.
	CreateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByWebhook returns a webhook's deliveries, newest first.
	ListByWebhook(ctx context.Context, whID id.ID, opts ListOpts) ([]*Delivery, error)

	// ClaimDue atomically leases deliveries that are retrying with
	// next_retry_at <= opts.Now, or pending and created at or before
	// opts.StaleBefore, provided no unexpired lease is held on them.
	// Concurrent callers never receive the same delivery.
	ClaimDue(ctx context.Context, opts ClaimOpts) ([]*Delivery, error)

	// CompleteAttempt writes the attempt fields of d and clears the lease,
	// only if the stored claim token equals token. Otherwise it returns
	// ErrClaimLost.
	CompleteAttempt(ctx context.Context, d *Delivery, token string) error

	// ReleaseClaim clears the lease without recording an attempt. It returns
	// ErrClaimLost when token no longer holds the delivery.
	ReleaseClaim(ctx context.Context, delID id.ID, token string) error

	// CountByStatus returns the number of deliveries per status.
	CountByStatus(ctx context.Context) (map[State]int64, error)
}
