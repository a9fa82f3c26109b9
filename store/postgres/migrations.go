package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Courier store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
var Migrations = migrate.NewGroup("courier")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_courier_webhooks",
			Version: "20260301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_webhooks (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    url             TEXT NOT NULL,
    secret          TEXT NOT NULL,
    events          TEXT[] NOT NULL DEFAULT '{}',
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    max_retries     INT NOT NULL DEFAULT 3,
    timeout_seconds INT NOT NULL DEFAULT 30,
    rate_limit      INT NOT NULL DEFAULT 0,
    headers         JSONB NOT NULL DEFAULT '{}',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_courier_webhooks_events ON courier_webhooks USING GIN (events);
CREATE INDEX IF NOT EXISTS idx_courier_webhooks_created ON courier_webhooks (created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_webhooks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_courier_deliveries",
			Version: "20260301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_deliveries (
    id                   TEXT PRIMARY KEY,
    webhook_id           TEXT NOT NULL REFERENCES courier_webhooks (id) ON DELETE CASCADE,
    event_type           TEXT NOT NULL,
    payload              JSONB NOT NULL DEFAULT '{}',
    status               TEXT NOT NULL DEFAULT 'pending',
    attempt_number       INT NOT NULL DEFAULT 1,
    response_status_code INT NOT NULL DEFAULT 0,
    response_body        TEXT NOT NULL DEFAULT '',
    error_message        TEXT NOT NULL DEFAULT '',
    latency_ms           INT NOT NULL DEFAULT 0,
    delivered_at         TIMESTAMPTZ,
    next_retry_at        TIMESTAMPTZ,
    claim_token          TEXT NOT NULL DEFAULT '',
    claimed_until        TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_courier_deliveries_webhook ON courier_deliveries (webhook_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_courier_deliveries_retry ON courier_deliveries (next_retry_at) WHERE status = 'retrying';
CREATE INDEX IF NOT EXISTS idx_courier_deliveries_pending ON courier_deliveries (created_at) WHERE status = 'pending';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_deliveries`)
				return err
			},
		},
	)
}
