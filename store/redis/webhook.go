package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/webhook"
)

// webhookModel is the JSON representation stored in Redis.
type webhookModel struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	Events         []string          `json:"events"`
	IsActive       bool              `json:"is_active"`
	MaxRetries     int               `json:"max_retries"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RateLimit      int               `json:"rate_limit"`
	Headers        map[string]string `json:"headers,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
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
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
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

// CreateWebhook persists a new webhook and indexes its subscriptions.
func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)

	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: create webhook: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, zWebhookAll, goredis.Z{Score: float64(m.CreatedAt.UnixMicro()), Member: m.ID})
	if m.IsActive {
		for _, evt := range m.Events {
			pipe.SAdd(ctx, eventSetKey(evt), m.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: create webhook indexes: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m, err := s.getWebhookModel(ctx, whID.String())
	if err != nil {
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) getWebhookModel(ctx context.Context, whID string) (*webhookModel, error) {
	var m webhookModel
	if err := s.getEntity(ctx, entityKey(prefixWebhook, whID), &m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("courier/redis: get webhook: %w", err)
	}
	return &m, nil
}

// UpdateWebhook replaces a stored webhook and reindexes its subscriptions.
func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	existing, err := s.getWebhookModel(ctx, wh.ID.String())
	if err != nil {
		return err
	}

	m := toWebhookModel(wh)
	m.CreatedAt = existing.CreatedAt

	if err := s.setEntity(ctx, entityKey(prefixWebhook, m.ID), m); err != nil {
		return fmt.Errorf("courier/redis: update webhook: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	for _, evt := range existing.Events {
		pipe.SRem(ctx, eventSetKey(evt), m.ID)
	}
	if m.IsActive {
		for _, evt := range m.Events {
			pipe.SAdd(ctx, eventSetKey(evt), m.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("courier/redis: update webhook indexes: %w", err)
	}
	return nil
}

// DeleteWebhook removes the webhook and its deliveries in one script.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	existing, err := s.getWebhookModel(ctx, whID.String())
	if err != nil {
		return err
	}

	args := []any{existing.ID, prefixDelivery}
	for _, evt := range existing.Events {
		args = append(args, eventSetKey(evt))
	}

	keys := []string{
		entityKey(prefixWebhook, existing.ID),
		zWebhookAll,
		zDeliveryWH + existing.ID,
		zDeliveryRetry,
		zDeliveryPend,
		hClaimToken,
		hClaimUntil,
		hDeliveryStatus,
		hStatusCounts,
	}
	n, err := deleteWebhookScript.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("courier/redis: delete webhook: %w", err)
	}
	if n == 0 {
		return courier.ErrWebhookNotFound
	}
	return nil
}

// ListWebhooks returns webhooks, newest first.
func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.ZRevRange(ctx, zWebhookAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list webhooks: %w", err)
	}

	result, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	if opts.Active != nil {
		result = slices.DeleteFunc(result, func(wh *webhook.Webhook) bool {
			return wh.IsActive != *opts.Active
		})
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ListForEvent returns active webhooks subscribed to eventType, ordered by ID.
func (s *Store) ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	ids, err := s.rdb.SMembers(ctx, eventSetKey(eventType)).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list for event: %w", err)
	}
	slices.Sort(ids)

	result, err := s.loadWebhooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(result, func(wh *webhook.Webhook) bool {
		return !wh.IsActive || !wh.Subscribes(eventType)
	}), nil
}

// loadWebhooks fetches webhooks by ID, skipping IDs deleted concurrently.
func (s *Store) loadWebhooks(ctx context.Context, ids []string) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(ids))
	for _, whID := range ids {
		var m webhookModel
		if err := s.getEntity(ctx, entityKey(prefixWebhook, whID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("courier/redis: load webhook: %w", err)
		}
		wh, err := fromWebhookModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}
