// Package postgres implements store.Store on PostgreSQL through the grove
// ORM. Claims use FOR UPDATE SKIP LOCKED so concurrent sweepers never block
// on or share a delivery.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	courierstore "github.com/xraph/courier/store"
	"github.com/xraph/courier/webhook"
)

// compile-time interface check
var _ courierstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("courier/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", courier.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toWebhookModel(wh)).Exec(ctx)
	return err
}

func (s *Store) GetWebhook(ctx context.Context, whID id.ID) (*webhook.Webhook, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", whID.String()).
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
	res, err := s.pg.NewUpdate(toWebhookModel(wh)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, courier.ErrWebhookNotFound)
}

// DeleteWebhook relies on ON DELETE CASCADE to remove deliveries in the same
// statement.
func (s *Store) DeleteWebhook(ctx context.Context, whID id.ID) error {
	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", whID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, courier.ErrWebhookNotFound)
}

func (s *Store) ListWebhooks(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Webhook, error) {
	var models []webhookModel
	q := s.pg.NewSelect(&models)
	if opts.Active != nil {
		q = q.Where("is_active = $1", *opts.Active)
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
	return fromWebhookModels(models)
}

func (s *Store) ListForEvent(ctx context.Context, eventType string) ([]*webhook.Webhook, error) {
	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("is_active = true").
		Where("$1 = ANY(events)", eventType).
		OrderExpr("id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromWebhookModels(models)
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Webhook, error) {
	result := make([]*webhook.Webhook, len(models))
	for i := range models {
		wh, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = wh
	}
	return result, nil
}

// ==================== Delivery Store ====================

func (s *Store) CreateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m, err := toDeliveryModel(d)
	if err != nil {
		return err
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isForeignKeyViolation(err) {
			return courier.ErrWebhookNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	m := new(deliveryModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", delID.String()).
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
	q := s.pg.NewSelect(&models).Where("webhook_id = $1", whID.String())

	if opts.Status != nil {
		q = q.Where("status = $2", string(*opts.Status))
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
	err := s.pg.NewRaw(`
		UPDATE courier_deliveries
		SET claim_token = $1, claimed_until = $2
		WHERE id IN (
			SELECT id FROM courier_deliveries
			WHERE ((status = 'retrying' AND next_retry_at <= $3)
			    OR (status = 'pending' AND created_at <= $4))
			  AND (claim_token = '' OR claimed_until IS NULL OR claimed_until <= $3)
			ORDER BY created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, opts.Token, opts.LeaseUntil, opts.Now, opts.StaleBefore, opts.Limit).Scan(ctx, &models)
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
	err := s.pg.NewRaw(`
		UPDATE courier_deliveries
		SET status = $1, attempt_number = $2, response_status_code = $3,
		    response_body = $4, error_message = $5, latency_ms = $6,
		    delivered_at = $7, next_retry_at = $8, updated_at = $9,
		    claim_token = '', claimed_until = NULL
		WHERE id = $10 AND claim_token = $11
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
	res, err := s.pg.NewUpdate((*deliveryModel)(nil)).
		Set("claim_token = ''").
		Set("claimed_until = NULL").
		Where("id = $1", delID.String()).
		Where("claim_token = $2", token).
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
		n, err := s.pg.NewSelect((*deliveryModel)(nil)).
			Where("status = $1", string(st)).
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

// isForeignKeyViolation matches SQLSTATE 23503 from pgx.
func isForeignKeyViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23503"
}
