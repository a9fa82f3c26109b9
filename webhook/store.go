package webhook

import (
	"context"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for webhooks.
type Store interface {
	// CreateWebhook persists a new webhook.
	CreateWebhook(ctx context.Context, wh *Webhook) error

	// GetWebhook returns a webhook by ID.
	GetWebhook(ctx context.Context, whID id.ID) (*Webhook, error)

	// UpdateWebhook replaces a stored webhook.
	UpdateWebhook(ctx context.Context, wh *Webhook) error

	// DeleteWebhook removes a webhook together with all of its deliveries in
	// one atomic step.
	DeleteWebhook(ctx context.Context, whID id.ID) error

	// ListWebhooks returns webhooks ordered by creation time, newest first.
	ListWebhooks(ctx context.Context, opts ListOpts) ([]*Webhook, error)

	// ListForEvent returns active webhooks subscribed to eventType.
	ListForEvent(ctx context.Context, eventType string) ([]*Webhook, error)
}
