package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Roster store (SQLite).
var Migrations = migrate.NewGroup("roster")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_roster_accounts",
			Version: "20240601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_accounts (
    id         TEXT PRIMARY KEY,
    email      TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_accounts_email ON roster_accounts (email);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_organizations",
			Version: "20240601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_organizations (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL DEFAULT '',
    owner_account_id TEXT NOT NULL DEFAULT '',
    is_trial         INTEGER NOT NULL DEFAULT 0,
    trial_expires_at TEXT,
    metadata         TEXT NOT NULL DEFAULT '{}',
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_orgs_owner ON roster_organizations (owner_account_id);
CREATE INDEX IF NOT EXISTS idx_roster_orgs_trial ON roster_organizations (is_trial, trial_expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_organizations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_memberships",
			Version: "20240601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_memberships (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL DEFAULT '',
    account_id      TEXT NOT NULL DEFAULT '',
    email           TEXT NOT NULL DEFAULT '',
    role            TEXT NOT NULL DEFAULT 'member',
    status          TEXT NOT NULL DEFAULT 'pending',
    invited_by      TEXT NOT NULL DEFAULT '',
    activated_at    TEXT,
    deactivated_at  TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_roster_members_org ON roster_memberships (organization_id, status);
CREATE INDEX IF NOT EXISTS idx_roster_members_account ON roster_memberships (account_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_members_one_active
    ON roster_memberships (organization_id, account_id) WHERE status = 'active';
CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_members_one_pending
    ON roster_memberships (organization_id, email) WHERE status = 'pending';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_memberships`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_licenses",
			Version: "20240601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_licenses (
    id                TEXT PRIMARY KEY,
    organization_id   TEXT NOT NULL DEFAULT '',
    tier              TEXT NOT NULL DEFAULT 'trial',
    total_seats       INTEGER NOT NULL DEFAULT 0,
    used_seats        INTEGER NOT NULL DEFAULT 0,
    expires_at        TEXT NOT NULL DEFAULT (datetime('now')),
    per_seat_cents    INTEGER NOT NULL DEFAULT 0,
    per_seat_currency TEXT NOT NULL DEFAULT '',
    provider_sub_ref  TEXT NOT NULL DEFAULT '',
    last_renewed_at   TEXT,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK (used_seats >= 0 AND used_seats <= total_seats)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_roster_licenses_org ON roster_licenses (organization_id);
CREATE INDEX IF NOT EXISTS idx_roster_licenses_expiry ON roster_licenses (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_licenses`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_renewals",
			Version: "20240601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_renewals (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL DEFAULT '',
    license_id      TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL DEFAULT '',
    seats           INTEGER NOT NULL DEFAULT 0,
    amount_cents    INTEGER NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    previous_expiry TEXT NOT NULL DEFAULT (datetime('now')),
    new_expiry      TEXT NOT NULL DEFAULT (datetime('now')),
    provider_ref    TEXT NOT NULL DEFAULT '',
    event_id        TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_roster_renewals_org ON roster_renewals (organization_id, created_at);
CREATE INDEX IF NOT EXISTS idx_roster_renewals_license ON roster_renewals (license_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_renewals`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_reconciliation",
			Version: "20240601000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_processed_events (
    event_id     TEXT PRIMARY KEY,
    processed_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS roster_dead_letters (
    id              TEXT PRIMARY KEY,
    event_id        TEXT NOT NULL DEFAULT '',
    kind            TEXT NOT NULL DEFAULT '',
    organization_id TEXT NOT NULL DEFAULT '',
    body            BLOB,
    reason          TEXT NOT NULL DEFAULT '',
    attempts        INTEGER NOT NULL DEFAULT 0,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_roster_dead_letters_org ON roster_dead_letters (organization_id);
CREATE INDEX IF NOT EXISTS idx_roster_dead_letters_event ON roster_dead_letters (event_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
DROP TABLE IF EXISTS roster_dead_letters;
DROP TABLE IF EXISTS roster_processed_events;
`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_roster_warning_markers",
			Version: "20240601000007",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS roster_warning_markers (
    license_id TEXT NOT NULL,
    class      TEXT NOT NULL,
    day        TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (license_id, class, day)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS roster_warning_markers`)
				return err
			},
		},
	)
}
