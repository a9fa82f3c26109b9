package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/webhook"
)

// --- Webhook models ---

type webhookModel struct {
	grove.BaseModel `grove:"table:courier_webhooks"`

	ID             string            `grove:"id,pk"           bson:"_id"`
	Name           string            `grove:"name"            bson:"name"`
	URL            string            `grove:"url"             bson:"url"`
	Secret         string            `grove:"secret"          bson:"secret"`
	Events         []string          `grove:"events"          bson:"events"`
	IsActive       bool              `grove:"is_active"       bson:"is_active"`
	MaxRetries     int               `grove:"max_retries"     bson:"max_retries"`
	TimeoutSeconds int               `grove:"timeout_seconds" bson:"timeout_seconds"`
	RateLimit      int               `grove:"rate_limit"      bson:"rate_limit"`
	Headers        map[string]string `grove:"headers"         bson:"headers,omitempty"`
	CreatedAt      time.Time         `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time         `grove:"updated_at"      bson:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	return &webhookModel{
		ID:             wh.ID.String(),
		Name:           wh.Name,
		URL:            wh.URL,
		Secret:         wh.Secret,
		Events:         wh.Events,
		IsActive:       wh.IsActive,
		MaxRetries:     wh.MaxRetries,
		TimeoutSeconds: wh.TimeoutSeconds,
		RateLimit:      wh.RateLimit,
		Headers:        wh.Headers,
		CreatedAt:      wh.CreatedAt,
		UpdatedAt:      wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}

	return &webhook.Webhook{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             whID,
		Name:           m.Name,
		URL:            m.URL,
		Secret:         m.Secret,
		Events:         m.Events,
		IsActive:       m.IsActive,
		MaxRetries:     m.MaxRetries,
		TimeoutSeconds: m.TimeoutSeconds,
		RateLimit:      m.RateLimit,
		Headers:        m.Headers,
	}, nil
}

// --- Delivery models ---

// deliveryModel keeps the payload as JSON text so nested objects round-trip
// as maps rather than BSON documents.
type deliveryModel struct {
	grove.BaseModel `grove:"table:courier_deliveries"`

	ID                 string     `grove:"id,pk"                bson:"_id"`
	WebhookID          string     `grove:"webhook_id"           bson:"webhook_id"`
	EventType          string     `grove:"event_type"           bson:"event_type"`
	Payload            string     `grove:"payload"              bson:"payload"`
	Status             string     `grove:"status"               bson:"status"`
	AttemptNumber      int        `grove:"attempt_number"       bson:"attempt_number"`
	ResponseStatusCode int        `grove:"response_status_code" bson:"response_status_code"`
	ResponseBody       string     `grove:"response_body"        bson:"response_body"`
	ErrorMessage       string     `grove:"error_message"        bson:"error_message"`
	LatencyMs          int        `grove:"latency_ms"           bson:"latency_ms"`
	DeliveredAt        *time.Time `grove:"delivered_at"         bson:"delivered_at"`
	NextRetryAt        *time.Time `grove:"next_retry_at"        bson:"next_retry_at"`
	ClaimToken         string     `grove:"claim_token"          bson:"claim_token"`
	ClaimedUntil       *time.Time `grove:"claimed_until"        bson:"claimed_until"`
	CreatedAt          time.Time  `grove:"created_at"           bson:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"           bson:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) (*deliveryModel, error) {
	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return &deliveryModel{
		ID:                 d.ID.String(),
		WebhookID:          d.WebhookID.String(),
		EventType:          d.EventType,
		Payload:            string(payload),
		Status:             string(d.Status),
		AttemptNumber:      d.AttemptNumber,
		ResponseStatusCode: d.ResponseStatusCode,
		ResponseBody:       d.ResponseBody,
		ErrorMessage:       d.ErrorMessage,
		LatencyMs:          d.LatencyMs,
		DeliveredAt:        d.DeliveredAt,
		NextRetryAt:        d.NextRetryAt,
		ClaimToken:         d.ClaimToken,
		ClaimedUntil:       d.ClaimedUntil,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.WebhookID, err)
	}

	payload := map[string]any{}
	if m.Payload != "" && m.Payload != "null" {
		if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", m.ID, err)
		}
	}

	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:                 delID,
		WebhookID:          whID,
		EventType:          m.EventType,
		Payload:            payload,
		Status:             delivery.State(m.Status),
		AttemptNumber:      m.AttemptNumber,
		ResponseStatusCode: m.ResponseStatusCode,
		ResponseBody:       m.ResponseBody,
		ErrorMessage:       m.ErrorMessage,
		LatencyMs:          m.LatencyMs,
		DeliveredAt:        m.DeliveredAt,
		NextRetryAt:        m.NextRetryAt,
		ClaimToken:         m.ClaimToken,
		ClaimedUntil:       m.ClaimedUntil,
	}, nil
}
