// Package sqlite implements store.Store on SQLite through the grove ORM.
// SQLite serializes writers, so a single UPDATE ... RETURNING claims a batch
// without row locks. A trigger removes deliveries together with their
// webhook.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("courier/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", courier.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	_, err := s.sdb.NewInsert(toWebhookModel(wh)).Exec(ctx)
	return err
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", whID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrWebhookNotFound
		}
		return nil, err
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, wh *webhook.Webhook) error {
	res, err := s.sdb.NewUpdate(toWebhookModel(wh)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, courier.ErrWebhookNotFound)
}

func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.sdb.NewDelete((*webhookModel)(nil)).
		Where("id = ?", whID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, courier.ErrWebhookNotFound)
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.sdb.NewSelect(&models)
	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*webhook.Webhook, 0, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, wh)
	}
	return result, nil
}

// ListForEvent filters subscriptions in Go; events are a JSON array column.
func (s *Store) ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("is_active = 1").
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	var result []*webhook.Webhook
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		if slices.Contains(wh.Events, eventType) {
			result = append(result, wh)
		}
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	n, err := s.sdb.NewSelect((*webhookModel)(nil)).
		Where("id = ?", d.WebhookID.String()).
		Count(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return courier.ErrWebhookNotFound
	}

	m, err := toDeliveryModel(d)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", delID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, err
	}
	return fromDeliveryModel(m)
}

func (s *Store) ListByWebhook(ctx context.Context, whID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	q := s.sdb.NewSelect(&models).Where("webhook_id = ?", whID.String())

	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

func (s *Store) ClaimDue(ctx context.Context, opts delivery.ClaimOpts) ([]*delivery.Delivery, error) {
	var models []deliveryModel
	err := s.sdb.NewRaw(`
		UPDATE courier_deliveries
		SET claim_token = ?, claimed_until = ?
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE ((status = 'retrying' AND next_retry_at <= ?)
			    OR (status = 'pending' AND created_at <= ?))
			  AND (claim_token = '' OR claimed_until IS NULL OR claimed_until <= ?)
			ORDER BY created_at ASC
			LIMIT ?
		)
		RETURNING *
	`, opts.Token, opts.LeaseUntil, opts.Now, opts.StaleBefore, opts.Now, opts.Limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromDeliveryModels(models)
}

func (s *Store) CompleteAttempt(ctx context.Context, d *delivery.Delivery, token string) error {
	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var models []deliveryModel
	err := s.sdb.NewRaw(`
		UPDATE courier_deliveries
		SET status = ?, attempt_number = ?, response_status_code = ?,
		    response_body = ?, error_message = ?, latency_ms = ?,
		    delivered_at = ?, next_retry_at = ?, updated_at = ?,
		    claim_token = '', claimed_until = NULL
		WHERE id = ? AND claim_token = ?
		RETURNING *
	`, string(d.Status), d.AttemptNumber, d.ResponseStatusCode,
		d.ResponseBody, d.ErrorMessage, d.LatencyMs,
		d.DeliveredAt, d.NextRetryAt, updatedAt,
		d.ID.String(), token).Scan(ctx, &models)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return delivery.ErrClaimLost
	}
	return nil
}

func (s *Store) ReleaseClaim(ctx context.Context, delID id.ID, token string) error {
	res, err := s.sdb.NewUpdate((*deliveryModel)(nil)).
		Set("claim_token = ''").
		Set("claimed_until = NULL").
		Where("id = ?", delID.String()).
		Where("claim_token = ?", token).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, delivery.ErrClaimLost)
}

func (s *Store) CountByStatus(ctx context.Context) (map[delivery.State]int64, error) {
	counts := make(map[delivery.State]int64, 4)
	for _, st := range []delivery.State{
		delivery.StatePending, delivery.StateRetrying, delivery.StateSuccess, delivery.StateFailed,
	} {
		n, err := s.sdb.NewSelect((*deliveryModel)(nil)).
			Where("status = ?", string(st)).
			Count(ctx)
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, nil
}

// ==================== Helpers ====================

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireRow(res rowsAffected, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
