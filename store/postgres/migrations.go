package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credits store.
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credits_entitlements",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_entitlements (
    user_id           TEXT PRIMARY KEY,
    tier              TEXT NOT NULL DEFAULT 'free',
    credits_remaining BIGINT NOT NULL DEFAULT 0,
    last_renewal_date TEXT NOT NULL DEFAULT '',
    is_yearly         BOOLEAN NOT NULL DEFAULT FALSE,
    region            TEXT NOT NULL DEFAULT 'global',
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_entitlements_tier ON credits_entitlements (tier);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_entitlements`)
				return err
			},
		},
	)
}
