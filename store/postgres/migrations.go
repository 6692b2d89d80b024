package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tickledger store.
var Migrations = migrate.NewGroup("tickledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tickledger_state",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickledger_state (
    instance_id    TEXT PRIMARY KEY,
    currency       TEXT NOT NULL DEFAULT '',
    now_tick       BIGINT NOT NULL DEFAULT 0,
    price_per_unit BIGINT NOT NULL DEFAULT 0,
    last_settled   BIGINT NOT NULL DEFAULT 0,
    rate           BIGINT NOT NULL DEFAULT 0 CHECK (rate >= 0),
    pooled         BIGINT NOT NULL DEFAULT 0 CHECK (pooled >= 0),
    service        BIGINT NOT NULL DEFAULT 0 CHECK (service >= 0),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickledger_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tickledger_subscriptions",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickledger_subscriptions (
    id             TEXT PRIMARY KEY,
    instance_id    TEXT NOT NULL,
    account        TEXT NOT NULL,
    start_tick     BIGINT NOT NULL,
    end_tick       BIGINT NOT NULL CHECK (end_tick > start_tick),
    price_per_unit BIGINT NOT NULL CHECK (price_per_unit > 0),
    purchased_at   BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tickledger_subs_instance_account
    ON tickledger_subscriptions (instance_id, account, purchased_at, start_tick);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickledger_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tickledger_timeline",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickledger_timeline (
    instance_id TEXT NOT NULL,
    tick        BIGINT NOT NULL,
    delta       BIGINT NOT NULL,
    PRIMARY KEY (instance_id, tick)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tickledger_timeline`)
				return err
			},
		},
	)
}
