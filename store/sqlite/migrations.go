package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Courier store (SQLite).
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
    events          TEXT NOT NULL DEFAULT '[]',
    is_active       INTEGER NOT NULL DEFAULT 1,
    max_retries     INTEGER NOT NULL DEFAULT 3,
    timeout_seconds INTEGER NOT NULL DEFAULT 30,
    rate_limit      INTEGER NOT NULL DEFAULT 0,
    headers         TEXT NOT NULL DEFAULT '{}',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courier_webhooks_active ON courier_webhooks (is_active);
CREATE INDEX IF NOT EXISTS idx_courier_webhooks_created ON courier_webhooks (created_at);
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
    webhook_id           TEXT NOT NULL,
    event_type           TEXT NOT NULL,
    payload              TEXT NOT NULL DEFAULT '{}',
    status               TEXT NOT NULL DEFAULT 'pending',
    attempt_number       INTEGER NOT NULL DEFAULT 1,
    response_status_code INTEGER NOT NULL DEFAULT 0,
    response_body        TEXT NOT NULL DEFAULT '',
    error_message        TEXT NOT NULL DEFAULT '',
    latency_ms           INTEGER NOT NULL DEFAULT 0,
    delivered_at         TEXT,
    next_retry_at        TEXT,
    claim_token          TEXT NOT NULL DEFAULT '',
    claimed_until        TEXT,
    created_at           TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courier_deliveries_webhook ON courier_deliveries (webhook_id, created_at);
CREATE INDEX IF NOT EXISTS idx_courier_deliveries_status ON courier_deliveries (status, next_retry_at);

CREATE TRIGGER IF NOT EXISTS courier_webhooks_cascade
AFTER DELETE ON courier_webhooks
BEGIN
    DELETE FROM courier_deliveries WHERE webhook_id = OLD.id;
END;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TRIGGER IF EXISTS courier_webhooks_cascade;
DROP TABLE IF EXISTS courier_deliveries;
`)
				return err
			},
		},
	)
}
