package courier

import (
	"errors"

	"github.com/xraph/courier/delivery"
)

// Sentinel errors returned by courier operations and stores.
var (
	// ErrNoStore is returned when a Courier is created without a store.
	ErrNoStore = errors.New("courier: store is required")

	// ErrWebhookNotFound is returned when a webhook cannot be found.
	ErrWebhookNotFound = errors.New("courier: webhook not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("courier: delivery not found")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("courier: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("courier: migration failed")

	// ErrInvalidConfig is returned by New when the configuration is inconsistent.
	ErrInvalidConfig = errors.New("courier: invalid config")

	// ErrPayloadInvalid is returned when an event payload is not a JSON object
	// accepted by its event type's schema.
	ErrPayloadInvalid = errors.New("courier: payload invalid")

	// ErrClaimLost is returned when a delivery lease no longer belongs to the caller.
	ErrClaimLost = delivery.ErrClaimLost
)
