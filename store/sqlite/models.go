package sqlite

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

	ID             string    `grove:"id,pk"`
	Name           string    `grove:"name"`
	URL            string    `grove:"url"`
	Secret         string    `grove:"secret"`
	Events         string    `grove:"events"` // JSON array
	IsActive       bool      `grove:"is_active"`
	MaxRetries     int       `grove:"max_retries"`
	TimeoutSeconds int       `grove:"timeout_seconds"`
	RateLimit      int       `grove:"rate_limit"`
	Headers        string    `grove:"headers"` // JSON object
	CreatedAt      time.Time `grove:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"`
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	events, _ := json.Marshal(wh.Events)   //nolint:errcheck // []string always encodes
	headers, _ := json.Marshal(wh.Headers) //nolint:errcheck // map[string]string always encodes

	return &webhookModel{
		ID:             wh.ID.String(),
		Name:           wh.Name,
		URL:            wh.URL,
		Secret:         wh.Secret,
		Events:         string(events),
		IsActive:       wh.IsActive,
		MaxRetries:     wh.MaxRetries,
		TimeoutSeconds: wh.TimeoutSeconds,
		RateLimit:      wh.RateLimit,
		Headers:        string(headers),
		CreatedAt:      wh.CreatedAt,
		UpdatedAt:      wh.UpdatedAt,
	}
}

func fromWebhookModel(m *webhookModel) (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse webhook ID %q: %w", m.ID, err)
	}

	var events []string
	if m.Events != "" {
		if err := json.Unmarshal([]byte(m.Events), &events); err != nil {
			return nil, fmt.Errorf("decode events of %s: %w", m.ID, err)
		}
	}
	var headers map[string]string
	if m.Headers != "" && m.Headers != "null" {
		if err := json.Unmarshal([]byte(m.Headers), &headers); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", m.ID, err)
		}
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
		Events:         events,
		IsActive:       m.IsActive,
		MaxRetries:     m.MaxRetries,
		TimeoutSeconds: m.TimeoutSeconds,
		RateLimit:      m.RateLimit,
		Headers:        headers,
	}, nil
}

// --- Delivery models ---

type deliveryModel struct {
	grove.BaseModel `grove:"table:courier_deliveries"`

	ID                 string     `grove:"id,pk"`
	WebhookID          string     `grove:"webhook_id"`
	EventType          string     `grove:"event_type"`
	Payload            string     `grove:"payload"` // JSON object
	Status             string     `grove:"status"`
	AttemptNumber      int        `grove:"attempt_number"`
	ResponseStatusCode int        `grove:"response_status_code"`
	ResponseBody       string     `grove:"response_body"`
	ErrorMessage       string     `grove:"error_message"`
	LatencyMs          int        `grove:"latency_ms"`
	DeliveredAt        *time.Time `grove:"delivered_at"`
	NextRetryAt        *time.Time `grove:"next_retry_at"`
	ClaimToken         string     `grove:"claim_token"`
	ClaimedUntil       *time.Time `grove:"claimed_until"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
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
		DeliveredAt:        utcPtr(m.DeliveredAt),
		NextRetryAt:        utcPtr(m.NextRetryAt),
		ClaimToken:         m.ClaimToken,
		ClaimedUntil:       utcPtr(m.ClaimedUntil),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func fromDeliveryModels(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}
