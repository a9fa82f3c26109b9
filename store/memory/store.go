// Package memory provides an in-memory Store implementation for tests and
// single-process use.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// compile-time interface check.
var _ courierstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Every read returns a
// copy, so callers may mutate results freely.
type Store struct {
	mu sync.RWMutex

	webhooks   map[string]*webhook.Webhook   // keyed by ID string
	deliveries map[string]*delivery.Delivery // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		webhooks:   make(map[string]*webhook.Webhook),
		deliveries: make(map[string]*delivery.Delivery),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrStoreClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return courier.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

// CreateWebhook persists a new webhook.
func (s *Store) CreateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhooks[wh.ID.String()] = copyWebhook(wh)
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(_ context.Context, whID id.ID) (*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wh, ok := s.webhooks[whID.String()]
	if !ok {
		return nil, courier.ErrWebhookNotFound
	}
	return copyWebhook(wh), nil
}

// UpdateWebhook replaces a stored webhook.
func (s *Store) UpdateWebhook(_ context.Context, wh *webhook.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := wh.ID.String()
	if _, ok := s.webhooks[key]; !ok {
		return courier.ErrWebhookNotFound
	}
	s.webhooks[key] = copyWebhook(wh)
	return nil
}

// DeleteWebhook removes a webhook and its deliveries under one lock.
func (s *Store) DeleteWebhook(_ context.Context, whID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := whID.String()
	if _, ok := s.webhooks[key]; !ok {
		return courier.ErrWebhookNotFound
	}
	delete(s.webhooks, key)
	for delKey, d := range s.deliveries {
		if d.WebhookID.String() == key {
			delete(s.deliveries, delKey)
		}
	}
	return nil
}

// ListWebhooks returns webhooks, newest first.
func (s *Store) ListWebhooks(_ context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Webhook, 0, len(s.webhooks))
	for _, wh := range s.webhooks {
		if opts.Active != nil && wh.IsActive != *opts.Active {
			continue
		}
		result = append(result, wh)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return copyAll(applyPagination(result, opts.Offset, opts.Limit), copyWebhook), nil
}

// ListForEvent returns active webhooks subscribed to eventType.
func (s *Store) ListForEvent(_ context.Context, eventType string) ([]*webhook.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*webhook.Webhook
	for _, wh := range s.webhooks {
		if wh.IsActive && wh.Subscribes(eventType) {
			result = append(result, copyWebhook(wh))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// CreateDelivery persists a new delivery. The owning webhook must exist.
func (s *Store) CreateDelivery(_ context.Context, d *delivery.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[d.WebhookID.String()]; !ok {
		return courier.ErrWebhookNotFound
	}
	s.deliveries[d.ID.String()] = copyDelivery(d)
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(_ context.Context, delID id.ID) (*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[delID.String()]
	if !ok {
		return nil, courier.ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

// ListByWebhook returns a webhook's deliveries, newest first.
func (s *Store) ListByWebhook(_ context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := whID.String()
	result := make([]*delivery.Delivery, 0)
	for _, d := range s.deliveries {
		if d.WebhookID.String() != key {
			continue
		}
		if opts.Status != nil && d.Status != *opts.Status {
			continue
		}
		result = append(result, d)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return copyAll(applyPagination(result, opts.Offset, opts.Limit), copyDelivery), nil
}

// ClaimDue leases due deliveries under the store lock, oldest first.
func (s *Store) ClaimDue(_ context.Context, opts delivery.ClaimOpts) ([]*delivery.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]*delivery.Delivery, 0)
	for _, d := range s.deliveries {
		if d.Claimable(opts) {
			candidates = append(candidates, d)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	if opts.Limit > 0 && opts.Limit < len(candidates) {
		candidates = candidates[:opts.Limit]
	}

	lease := opts.LeaseUntil
	result := make([]*delivery.Delivery, 0, len(candidates))
	for _, d := range candidates {
		d.ClaimToken = opts.Token
		d.ClaimedUntil = &lease
		result = append(result, copyDelivery(d))
	}
	return result, nil
}

// CompleteAttempt stores the attempt fields if token still holds the claim.
func (s *Store) CompleteAttempt(_ context.Context, d *delivery.Delivery, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deliveries[d.ID.String()]
	if !ok || stored.ClaimToken != token {
		return delivery.ErrClaimLost
	}

	updated := copyDelivery(d)
	updated.CreatedAt = stored.CreatedAt
	updated.ClaimToken = ""
	updated.ClaimedUntil = nil
	if updated.UpdatedAt.IsZero() {
		updated.UpdatedAt = time.Now().UTC()
	}
	s.deliveries[d.ID.String()] = updated
	return nil
}

// ReleaseClaim clears the lease held by token.
func (s *Store) ReleaseClaim(_ context.Context, delID id.ID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.deliveries[delID.String()]
	if !ok || stored.ClaimToken != token {
		return delivery.ErrClaimLost
	}
	stored.ClaimToken = ""
	stored.ClaimedUntil = nil
	return nil
}

// CountByStatus returns the number of deliveries per status.
func (s *Store) CountByStatus(_ context.Context) (map[delivery.State]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[delivery.State]int64)
	for _, d := range s.deliveries {
		counts[d.Status]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyWebhook(wh *webhook.Webhook) *webhook.Webhook {
	cp := *wh
	cp.Events = slices.Clone(wh.Events)
	cp.Headers = maps.Clone(wh.Headers)
	return &cp
}

func copyDelivery(d *delivery.Delivery) *delivery.Delivery {
	cp := *d
	cp.Payload = maps.Clone(d.Payload)
	cp.DeliveredAt = copyTime(d.DeliveredAt)
	cp.NextRetryAt = copyTime(d.NextRetryAt)
	cp.ClaimedUntil = copyTime(d.ClaimedUntil)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyAll[T any](items []*T, cp func(*T) *T) []*T {
	out := make([]*T, 0, len(items))
	for _, it := range items {
		out = append(out, cp(it))
	}
	return out
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return nil
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
