// Package bunstore implements store.Store on any database bun supports.
// Postgres and SQLite are exercised; on Postgres claims take row locks with
// SKIP LOCKED, elsewhere the claim transaction serializes callers.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using the Bun ORM.
type Store struct {
	db *bun.DB
}

// New creates a new Bun-backed store.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying Bun database for direct access.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the required tables using Bun's CreateTable.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*webhookModel)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create webhooks: %w", courier.ErrMigrationFailed, err)
	}
	if _, err := s.db.NewCreateTable().
		Model((*deliveryModel)(nil)).
		IfNotExists().
		ForeignKey(`(webhook_id) REFERENCES courier_webhooks (id) ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create deliveries: %w", courier.ErrMigrationFailed, err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_courier_webhooks_created ON courier_webhooks (created_at)",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_webhook ON courier_deliveries (webhook_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_retry ON courier_deliveries (next_retry_at) WHERE status = 'retrying'",
		"CREATE INDEX IF NOT EXISTS idx_courier_deliveries_pending ON courier_deliveries (created_at) WHERE status = 'pending'",
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("%w: %w", courier.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	if _, err := s.db.NewInsert().Model(toWebhookModel(wh)).Exec(ctx); err != nil {
		return fmt.Errorf("courier/bun: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", whID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("courier/bun: get webhook: %w", err)
	}
	return m.toDomain()
}

func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	m := toWebhookModel(wh)
	res, err := s.db.NewUpdate().
		Model(m).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: update webhook: %w", err)
	}
	return requireRow(res, courier.ErrWebhookNotFound)
}

// DeleteWebhook removes the webhook and its deliveries in one transaction.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*deliveryModel)(nil)).
			Where("webhook_id = ?", whID.String()).
			Exec(ctx); err != nil {
			return fmt.Errorf("courier/bun: delete deliveries: %w", err)
		}
		res, err := tx.NewDelete().
			Model((*webhookModel)(nil)).
			Where("id = ?", whID.String()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("courier/bun: delete webhook: %w", err)
		}
		return requireRow(res, courier.ErrWebhookNotFound)
	})
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.db.NewSelect().
		Model(&models).
		OrderExpr("created_at DESC, id DESC")
	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: list webhooks: %w", err)
	}
	return webhooksToDomain(models, "")
}

// ListForEvent loads active webhooks and matches the event in Go, since the
// events column is JSON on every dialect.
func (s *Store) ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	if err := s.db.NewSelect().
		Model(&models).
		Where("is_active = ?", true).
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: list for event: %w", err)
	}
	return webhooksToDomain(models, eventType)
}

func webhooksToDomain(models []webhookModel, eventType string) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, 0, len(models))
	for i := range models {
		wh, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		if eventType != "" && !wh.Subscribes(eventType) {
			continue
		}
		result = append(result, wh)
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*webhookModel)(nil)).
			Where("id = ?", d.WebhookID.String()).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("courier/bun: create delivery: %w", err)
		}
		if !exists {
			return courier.ErrWebhookNotFound
		}
		if _, err := tx.NewInsert().Model(toDeliveryModel(d)).Exec(ctx); err != nil {
			return fmt.Errorf("courier/bun: create delivery: %w", err)
		}
		return nil
	})
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", delID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/bun: get delivery: %w", err)
	}
	return m.toDomain()
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.db.NewSelect().
		Model(&models).
		Where("webhook_id = ?", whID.String()).
		OrderExpr("created_at DESC, id DESC")
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("courier/bun: list by webhook: %w", err)
	}
	return deliveriesToDomain(models)
}

// claimableWhere selects due or stale deliveries without a live lease.
const claimableWhere = `((status = ? AND next_retry_at <= ?) OR (status = ? AND created_at <= ?))
	AND (claim_token = '' OR claimed_until IS NULL OR claimed_until <= ?)`

func claimableArgs(opts delivery.ClaimOpts) []any {
	return []any{
		string(delivery.StateRetrying), opts.Now.UTC(),
		string(delivery.StatePending), opts.StaleBefore.UTC(),
		opts.Now.UTC(),
	}
}

// ClaimDue selects candidates, leases them and reads them back in one
// transaction.
func (s *Store) ClaimDue(ctx context.Context, opts delivery.ClaimOpts) ([]*delivery.Delivery, error) {
	if opts.Limit <= 0 {
		return nil, nil
	}

	var models []deliveryModel
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []string
		q := tx.NewSelect().
			Model((*deliveryModel)(nil)).
			Column("id").
			Where(claimableWhere, claimableArgs(opts)...).
			OrderExpr("created_at ASC").
			Limit(opts.Limit)
		if s.db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE SKIP LOCKED")
		}
		if err := q.Scan(ctx, &ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.NewUpdate().
			Model((*deliveryModel)(nil)).
			Set("claim_token = ?", opts.Token).
			Set("claimed_until = ?", opts.LeaseUntil.UTC()).
			Where("id IN (?)", bun.In(ids)).
			Where(claimableWhere, claimableArgs(opts)...).
			Exec(ctx); err != nil {
			return err
		}

		return tx.NewSelect().
			Model(&models).
			Where("id IN (?)", bun.In(ids)).
			Where("claim_token = ?", opts.Token).
			OrderExpr("created_at ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("courier/bun: claim due: %w", err)
	}
	return deliveriesToDomain(models)
}

// CompleteAttempt stores the attempt fields if token still holds the claim.
func (s *Store) CompleteAttempt(ctx context.Context, d *delivery.Delivery, token string) error {
	m := toDeliveryModel(d)
	m.ClaimToken = ""
	m.ClaimedUntil = nil
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	res, err := s.db.NewUpdate().
		Model(m).
		Column(
			"status", "attempt_number", "response_status_code", "response_body",
			"error_message", "latency_ms", "delivered_at", "next_retry_at",
			"updated_at", "claim_token", "claimed_until",
		).
		Where("id = ?", m.ID).
		Where("claim_token = ?", token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: complete attempt: %w", err)
	}
	return requireRow(res, delivery.ErrClaimLost)
}

// ReleaseClaim clears the lease held by token.
func (s *Store) ReleaseClaim(ctx context.Context, delID id.ID, token string) error {
	res, err := s.db.NewUpdate().
		Model((*deliveryModel)(nil)).
		Set("claim_token = ''").
		Set("claimed_until = NULL").
		Where("id = ?", delID.String()).
		Where("claim_token = ?", token).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/bun: release claim: %w", err)
	}
	return requireRow(res, delivery.ErrClaimLost)
}

// CountByStatus groups deliveries by status.
func (s *Store) CountByStatus(ctx context.Context) (map[delivery.State]int64, error) {
	var rows []struct {
		Status string `bun:"status"`
		N      int64  `bun:"n"`
	}
	if err := s.db.NewSelect().
		Model((*deliveryModel)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS n").
		Group("status").
		Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("courier/bun: count by status: %w", err)
	}

	counts := map[delivery.State]int64{
		delivery.StatePending:  0,
		delivery.StateRetrying: 0,
		delivery.StateSuccess:  0,
		delivery.StateFailed:   0,
	}
	for _, r := range rows {
		counts[delivery.State(r.Status)] = r.N
	}
	return counts, nil
}

func deliveriesToDomain(models []deliveryModel) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, len(models))
	for i := range models {
		d, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// requireRow returns notFound when res affected no rows.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
