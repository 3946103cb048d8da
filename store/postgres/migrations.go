package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward schema change.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations lists the Plate schema in apply order.
var Migrations = []Migration{
	{
		Name:    "create_plate_license_plates",
		Version: "20240601000001",
		Up: `
CREATE TABLE IF NOT EXISTS plate_license_plates (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    number           TEXT NOT NULL,
    product_id       TEXT NOT NULL,
    warehouse_id     TEXT NOT NULL,
    location_id      TEXT NOT NULL DEFAULT '',
    quantity         NUMERIC NOT NULL CHECK (quantity >= 0),
    uom              TEXT NOT NULL,
    catch_weight     NUMERIC,
    batch_number     TEXT NOT NULL DEFAULT '',
    expiry_date      DATE,
    manufacture_date DATE,
    status           TEXT NOT NULL,
    qa_status        TEXT NOT NULL,
    source           TEXT NOT NULL,
    parent_id        TEXT,
    consumed_by_ref  TEXT NOT NULL DEFAULT '',
    version          BIGINT NOT NULL,
    metadata         JSONB NOT NULL DEFAULT '{}',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_plate_lp_number ON plate_license_plates (tenant_id, number);
CREATE INDEX IF NOT EXISTS idx_plate_lp_availability ON plate_license_plates (tenant_id, product_id, warehouse_id, status);
CREATE INDEX IF NOT EXISTS idx_plate_lp_expiry ON plate_license_plates (tenant_id, expiry_date) WHERE expiry_date IS NOT NULL;
`,
	},
	{
		Name:    "create_plate_reservations",
		Version: "20240601000002",
		Up: `
CREATE TABLE IF NOT EXISTS plate_reservations (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    license_plate_id TEXT NOT NULL REFERENCES plate_license_plates (id),
    demand_ref       TEXT NOT NULL,
    quantity         NUMERIC NOT NULL CHECK (quantity > 0),
    status           TEXT NOT NULL,
    created_by       TEXT NOT NULL DEFAULT '',
    over_committed   BOOLEAN NOT NULL DEFAULT FALSE,
    released_by      TEXT NOT NULL DEFAULT '',
    released_at      TIMESTAMPTZ,
    consumed_by      TEXT NOT NULL DEFAULT '',
    consumed_at      TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plate_rsv_active ON plate_reservations (license_plate_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_plate_rsv_demand ON plate_reservations (tenant_id, demand_ref);
`,
	},
	{
		Name:    "create_plate_genealogy",
		Version: "20240601000003",
		Up: `
CREATE TABLE IF NOT EXISTS plate_genealogy (
    seq           BIGSERIAL,
    id            TEXT PRIMARY KEY,
    tenant_id     TEXT NOT NULL,
    parent_id     TEXT NOT NULL REFERENCES plate_license_plates (id),
    child_id      TEXT NOT NULL REFERENCES plate_license_plates (id),
    relationship  TEXT NOT NULL,
    quantity      NUMERIC NOT NULL,
    operation_ref TEXT NOT NULL DEFAULT '',
    actor_id      TEXT NOT NULL DEFAULT '',
    reverses_id   TEXT,
    reason        TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plate_gen_parent ON plate_genealogy (parent_id);
CREATE INDEX IF NOT EXISTS idx_plate_gen_child ON plate_genealogy (child_id);
CREATE INDEX IF NOT EXISTS idx_plate_gen_operation ON plate_genealogy (tenant_id, operation_ref);
`,
	},
	{
		Name:    "create_plate_audit",
		Version: "20240601000004",
		Up: `
CREATE TABLE IF NOT EXISTS plate_audit (
    seq              BIGSERIAL,
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    license_plate_id TEXT NOT NULL REFERENCES plate_license_plates (id),
    field            TEXT NOT NULL,
    from_value       TEXT NOT NULL,
    to_value         TEXT NOT NULL,
    reason           TEXT NOT NULL DEFAULT '',
    actor_id         TEXT NOT NULL DEFAULT '',
    automatic        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plate_audit_lp ON plate_audit (license_plate_id, seq);
`,
	},
}

// migrationLock is the advisory lock key that serializes concurrent Migrate calls.
const migrationLock = 0x706c617465

func migrate(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
CREATE TABLE IF NOT EXISTS plate_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `SELECT version FROM plate_migrations`)
	if err != nil {
		return err
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range Migrations {
		if done[m.Version] {
			continue
		}
		if _, err := tx.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO plate_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
			return err
		}
	}
	return nil
}
