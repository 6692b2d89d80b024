package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tickledger store (SQLite).
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
    now_tick       INTEGER NOT NULL DEFAULT 0,
    price_per_unit INTEGER NOT NULL DEFAULT 0,
    last_settled   INTEGER NOT NULL DEFAULT 0,
    rate           INTEGER NOT NULL DEFAULT 0,
    pooled         INTEGER NOT NULL DEFAULT 0,
    service        INTEGER NOT NULL DEFAULT 0,
    updated_at     INTEGER NOT NULL DEFAULT 0
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
    start_tick     INTEGER NOT NULL,
    end_tick       INTEGER NOT NULL,
    price_per_unit INTEGER NOT NULL,
    purchased_at   INTEGER NOT NULL,
    created_at     INTEGER NOT NULL DEFAULT 0
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
    tick        INTEGER NOT NULL,
    delta       INTEGER NOT NULL,
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
