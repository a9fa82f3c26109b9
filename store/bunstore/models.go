package bunstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/webhook"
)

type webhookModel struct {
	bun.BaseModel `bun:"table:courier_webhooks,alias:wh"`

	ID             string            `bun:"id,pk"`
	Name           string            `bun:"name,notnull"`
	URL            string            `bun:"url,notnull"`
	Secret         string            `bun:"secret,notnull"`
	Events         []string          `bun:"events,type:jsonb,notnull"`
	IsActive       bool              `bun:"is_active,notnull"`
	MaxRetries     int               `bun:"max_retries,notnull"`
	TimeoutSeconds int               `bun:"timeout_seconds,notnull"`
	RateLimit      int               `bun:"rate_limit,notnull"`
	Headers        map[string]string `bun:"headers,type:jsonb"`
	CreatedAt      time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryModel struct {
	bun.BaseModel `bun:"table:courier_deliveries,alias:d"`

	ID                 string         `bun:"id,pk"`
	WebhookID          string         `bun:"webhook_id,notnull"`
	EventType          string         `bun:"event_type,notnull"`
	Payload            map[string]any `bun:"payload,type:jsonb,notnull"`
	Status             string         `bun:"status,notnull"`
	AttemptNumber      int            `bun:"attempt_number,notnull"`
	ResponseStatusCode int            `bun:"response_status_code,notnull"`
	ResponseBody       string         `bun:"response_body,notnull"`
	ErrorMessage       string         `bun:"error_message,notnull"`
	LatencyMs          int            `bun:"latency_ms,notnull"`
	DeliveredAt        *time.Time     `bun:"delivered_at,nullzero"`
	NextRetryAt        *time.Time     `bun:"next_retry_at,nullzero"`
	ClaimToken         string         `bun:"claim_token,notnull"`
	ClaimedUntil       *time.Time     `bun:"claimed_until,nullzero"`
	CreatedAt          time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func toWebhookModel(wh *webhook.Webhook) *webhookModel {
	events := wh.Events
	if events == nil {
		events = []string{}
	}
	return &webhookModel{
		ID:             wh.ID.String(),
		Name:           wh.Name,
		URL:            wh.URL,
		Secret:         wh.Secret,
		Events:         events,
		IsActive:       wh.IsActive,
		MaxRetries:     wh.MaxRetries,
		TimeoutSeconds: wh.TimeoutSeconds,
		RateLimit:      wh.RateLimit,
		Headers:        wh.Headers,
		CreatedAt:      wh.CreatedAt.UTC(),
		UpdatedAt:      wh.UpdatedAt.UTC(),
	}
}

func (m *webhookModel) toDomain() (*webhook.Webhook, error) {
	whID, err := id.ParseWebhookID(m.ID)
	if err != nil {
		return nil, err
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

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	payload := d.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return &deliveryModel{
		ID:                 d.ID.String(),
		WebhookID:          d.WebhookID.String(),
		EventType:          d.EventType,
		Payload:            payload,
		Status:             string(d.Status),
		AttemptNumber:      d.AttemptNumber,
		ResponseStatusCode: d.ResponseStatusCode,
		ResponseBody:       d.ResponseBody,
		ErrorMessage:       d.ErrorMessage,
		LatencyMs:          d.LatencyMs,
		DeliveredAt:        utc(d.DeliveredAt),
		NextRetryAt:        utc(d.NextRetryAt),
		ClaimToken:         d.ClaimToken,
		ClaimedUntil:       utc(d.ClaimedUntil),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func (m *deliveryModel) toDomain() (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, err
	}
	whID, err := id.ParseWebhookID(m.WebhookID)
	if err != nil {
		return nil, err
	}
	payload := m.Payload
	if payload == nil {
		payload = map[string]any{}
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
		DeliveredAt:        utc(m.DeliveredAt),
		NextRetryAt:        utc(m.NextRetryAt),
		ClaimToken:         m.ClaimToken,
		ClaimedUntil:       utc(m.ClaimedUntil),
	}, nil
}
