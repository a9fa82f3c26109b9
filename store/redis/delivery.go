package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis. The lease is kept
// in the claim hashes, not in the document.
type deliveryModel struct {
	ID                 string         `json:"id"`
	WebhookID          string         `json:"webhook_id"`
	EventType          string         `json:"event_type"`
	Payload            map[string]any `json:"payload"`
	Status             string         `json:"status"`
	AttemptNumber      int            `json:"attempt_number"`
	ResponseStatusCode int            `json:"response_status_code"`
	ResponseBody       string         `json:"response_body"`
	ErrorMessage       string         `json:"error_message"`
	LatencyMs          int            `json:"latency_ms"`
	DeliveredAt        *time.Time     `json:"delivered_at,omitempty"`
	NextRetryAt        *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:                 d.ID.String(),
		WebhookID:          d.WebhookID.String(),
		EventType:          d.EventType,
		Payload:            d.Payload,
		Status:             string(d.Status),
		AttemptNumber:      d.AttemptNumber,
		ResponseStatusCode: d.ResponseStatusCode,
		ResponseBody:       d.ResponseBody,
		ErrorMessage:       d.ErrorMessage,
		LatencyMs:          d.LatencyMs,
		DeliveredAt:        d.DeliveredAt,
		NextRetryAt:        d.NextRetryAt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
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
	payload := m.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
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
	}, nil
}

// retryScore returns the retrying-set score for t, or "0" when unset.
func retryScore(t *time.Time) string {
	if t == nil {
		return "0"
	}
	return score(*t)
}

// CreateDelivery persists a new delivery if its webhook still exists.
func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	raw, err := jsonString(m)
	if err != nil {
		return err
	}

	until := "0"
	if d.ClaimedUntil != nil {
		until = score(*d.ClaimedUntil)
	}

	keys := []string{
		entityKey(prefixWebhook, m.WebhookID),
		entityKey(prefixDelivery, m.ID),
		zDeliveryWH + m.WebhookID,
		zDeliveryPend,
		zDeliveryRetry,
		hClaimToken,
		hClaimUntil,
		hDeliveryStatus,
		hStatusCounts,
	}
	n, err := createDeliveryScript.Run(ctx, s.rdb, keys,
		m.ID, raw, score(m.CreatedAt), m.Status, retryScore(m.NextRetryAt), d.ClaimToken, until,
	).Int()
	if err != nil {
		return fmt.Errorf("courier/redis: create delivery: %w", err)
	}
	if n == 0 {
		return courier.ErrWebhookNotFound
	}
	return nil
}

// GetDelivery returns a delivery by ID, including its current lease.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/redis: get delivery: %w", err)
	}
	d, err := fromDeliveryModel(&m)
	if err != nil {
		return nil, err
	}
	if err := s.loadClaim(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) loadClaim(ctx context.Context, d *delivery.Delivery) error {
	delID := d.ID.String()
	pipe := s.rdb.Pipeline()
	tok := pipe.HGet(ctx, hClaimToken, delID)
	until := pipe.HGet(ctx, hClaimUntil, delID)
	if _, err := pipe.Exec(ctx); err != nil && !isRedisNil(err) {
		return fmt.Errorf("courier/redis: load claim: %w", err)
	}

	d.ClaimToken = tok.Val()
	if us, err := strconv.ParseInt(until.Val(), 10, 64); err == nil && us > 0 {
		t := time.UnixMicro(us).UTC()
		d.ClaimedUntil = &t
	}
	return nil
}

// ListByWebhook returns a webhook's deliveries, newest first.
func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDeliveryWH+whID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list by webhook: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("courier/redis: list by webhook: %w", err)
		}
		if opts.Status != nil && delivery.State(m.Status) != *opts.Status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ClaimDue leases due deliveries in one script, then loads them.
func (s *Store) ClaimDue(ctx context.Context, opts delivery.ClaimOpts) ([]*delivery.Delivery, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	keys := []string{zDeliveryRetry, zDeliveryPend, hClaimToken, hClaimUntil}
	ids, err := claimDueScript.Run(ctx, s.rdb, keys,
		score(opts.Now), score(opts.StaleBefore), opts.Limit, opts.Token, score(opts.LeaseUntil),
	).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/redis: claim due: %w", err)
	}

	until := opts.LeaseUntil
	result := make([]*delivery.Delivery, 0, len(ids))
	for _, delID := range ids {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, delID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("courier/redis: claim due get: %w", err)
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		d.ClaimToken = opts.Token
		d.ClaimedUntil = &until
		result = append(result, d)
	}
	return result, nil
}

// CompleteAttempt stores the attempt fields if token still holds the claim.
func (s *Store) CompleteAttempt(ctx context.Context, d *delivery.Delivery, token string) error {
	var existing deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, d.ID.String()), &existing); err != nil {
		if isRedisNil(err) {
			return delivery.ErrClaimLost
		}
		return fmt.Errorf("courier/redis: complete attempt: %w", err)
	}

	m := toDeliveryModel(d)
	m.CreatedAt = existing.CreatedAt
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now()
	}
	raw, err := jsonString(m)
	if err != nil {
		return err
	}

	keys := []string{
		entityKey(prefixDelivery, m.ID),
		hClaimToken,
		hClaimUntil,
		zDeliveryPend,
		zDeliveryRetry,
		hDeliveryStatus,
		hStatusCounts,
	}
	n, err := completeAttemptScript.Run(ctx, s.rdb, keys,
		m.ID, token, raw, m.Status, retryScore(m.NextRetryAt),
	).Int()
	if err != nil {
		return fmt.Errorf("courier/redis: complete attempt: %w", err)
	}
	if n == 0 {
		return delivery.ErrClaimLost
	}
	return nil
}

// ReleaseClaim clears the lease held by token.
func (s *Store) ReleaseClaim(ctx context.Context, delID id.ID, token string) error {
	n, err := releaseClaimScript.Run(ctx, s.rdb, []string{hClaimToken, hClaimUntil},
		delID.String(), token,
	).Int()
	if err != nil {
		return fmt.Errorf("courier/redis: release claim: %w", err)
	}
	if n == 0 {
		return delivery.ErrClaimLost
	}
	return nil
}

// CountByStatus reads the per-status counters.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.State]int64, error) {
	raw, err := s.rdb.HGetAll(ctx, hStatusCounts).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: count by status: %w", err)
	}

	counts := map[delivery.State]int64{
		delivery.StatePending:  0,
		delivery.StateRetrying: 0,
		delivery.StateSuccess:  0,
		delivery.StateFailed:   0,
	}
	for st, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("courier/redis: count %s: %w", st, err)
		}
		counts[delivery.State(st)] = n
	}
	return counts, nil
}

func jsonString(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("courier/redis: marshal entity: %w", err)
	}
	return string(raw), nil
}
