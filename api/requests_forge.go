package api

import (
	"encoding/json"
)

// ---------------------------------------------------------------------------
// Webhook requests
// ---------------------------------------------------------------------------

// CreateWebhookForgeRequest binds the body for POST /webhooks.
type CreateWebhookForgeRequest struct {
	Name           string            `description:"Display name"                              json:"name"`
	URL            string            `description:"HTTPS delivery URL"                        json:"url"`
	Secret         string            `description:"Signing secret; generated when omitted"    json:"secret,omitempty"`
	Events         []string          `description:"Subscribed event types"                    json:"events"`
	IsActive       *bool             `description:"Dispatch new events (default true)"        json:"is_active,omitempty"`
	MaxRetries     *int              `description:"Retries after the first attempt (0-10)"    json:"max_retries,omitempty"`
	TimeoutSeconds *int              `description:"Per-attempt timeout in seconds (1-300)"    json:"timeout_seconds,omitempty"`
	RateLimit      int               `description:"Attempts per second (0 means unlimited)"   json:"rate_limit,omitempty"`
	Headers        map[string]string `description:"Custom HTTP headers"                       json:"headers,omitempty"`
}

// ListWebhooksForgeRequest binds query parameters for GET /webhooks.
type ListWebhooksForgeRequest struct {
	Active string `description:"Filter by active flag (true/false)" query:"active"`
	Offset int    `description:"Pagination offset"                  query:"offset"`
	Limit  int    `description:"Page size (default 50, max 500)"    query:"limit"`
}

// WebhookForgeRequest binds the path for single-webhook routes.
type WebhookForgeRequest struct {
	WebhookID string `description:"Webhook identifier" path:"webhookId"`
}

// UpdateWebhookForgeRequest binds path + body for PUT /webhooks/:webhookId.
// Omitted fields are left unchanged.
type UpdateWebhookForgeRequest struct {
	WebhookID      string            `description:"Webhook identifier"                     path:"webhookId"`
	Name           *string           `description:"Display name"                           json:"name,omitempty"`
	URL            *string           `description:"HTTPS delivery URL"                     json:"url,omitempty"`
	Secret         *string           `description:"Signing secret"                         json:"secret,omitempty"`
	Events         []string          `description:"Subscribed event types"                 json:"events,omitempty"`
	IsActive       *bool             `description:"Dispatch new events"                    json:"is_active,omitempty"`
	MaxRetries     *int              `description:"Retries after the first attempt (0-10)" json:"max_retries,omitempty"`
	TimeoutSeconds *int              `description:"Per-attempt timeout in seconds (1-300)" json:"timeout_seconds,omitempty"`
	RateLimit      *int              `description:"Attempts per second"                    json:"rate_limit,omitempty"`
	Headers        map[string]string `description:"Custom HTTP headers"                    json:"headers,omitempty"`
}

// TestWebhookForgeRequest binds path + body for POST /webhooks/:webhookId/test.
type TestWebhookForgeRequest struct {
	WebhookID string          `description:"Webhook identifier"              path:"webhookId"`
	Payload   json.RawMessage `description:"Optional JSON object to send"    json:"payload,omitempty"`
}

// ---------------------------------------------------------------------------
// Delivery requests
// ---------------------------------------------------------------------------

// ListDeliveriesForgeRequest binds path + query for GET /webhooks/:webhookId/deliveries.
type ListDeliveriesForgeRequest struct {
	WebhookID string `description:"Webhook identifier"               path:"webhookId"`
	Status    string `description:"Filter by status"                 query:"status"`
	Offset    int    `description:"Pagination offset"                query:"offset"`
	Limit     int    `description:"Page size (default 50, max 500)"  query:"limit"`
}

// DeliveryForgeRequest binds the path for single-delivery routes.
type DeliveryForgeRequest struct {
	DeliveryID string `description:"Delivery identifier" path:"deliveryId"`
}

// ---------------------------------------------------------------------------
// Event requests
// ---------------------------------------------------------------------------

// EmitEventForgeRequest binds the body for POST /events.
type EmitEventForgeRequest struct {
	EventType string          `description:"Event type name (e.g. issue.created)" json:"event_type"`
	Payload   json.RawMessage `description:"Event payload (JSON object)"          json:"payload"`
}

// EmitEventForgeResponse is the response for POST /events.
type EmitEventForgeResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
}

// ListEventTypesForgeRequest is empty; GET /event-types has no parameters.
type ListEventTypesForgeRequest struct{}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// StatsForgeRequest is empty; GET /stats has no parameters.
type StatsForgeRequest struct{}

// StatsForgeResponse is the response for GET /stats.
type StatsForgeResponse struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Success  int64 `json:"success"`
	Failed   int64 `json:"failed"`
	Total    int64 `json:"total"`
}

// SecretForgeResponse is the response for POST /webhooks/:webhookId/rotate-secret.
type SecretForgeResponse struct {
	Secret string `json:"secret"`
}
