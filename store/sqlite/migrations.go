package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one forward schema change.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Migrations lists the Plate schema (SQLite) in apply order. Timestamps are
// fixed-width UTC text so they sort lexically; decimals are text.
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
    quantity         TEXT NOT NULL,
    uom              TEXT NOT NULL,
    catch_weight     TEXT,
    batch_number     TEXT NOT NULL DEFAULT '',
    expiry_date      TEXT,
    manufacture_date TEXT,
    status           TEXT NOT NULL,
    qa_status        TEXT NOT NULL,
    source           TEXT NOT NULL,
    parent_id        TEXT,
    consumed_by_ref  TEXT NOT NULL DEFAULT '',
    version          INTEGER NOT NULL,
    metadata         TEXT NOT NULL DEFAULT '{}',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_plate_lp_number ON plate_license_plates (tenant_id, number);
CREATE INDEX IF NOT EXISTS idx_plate_lp_availability ON plate_license_plates (tenant_id, product_id, warehouse_id, status);
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
    quantity         TEXT NOT NULL,
    status           TEXT NOT NULL,
    created_by       TEXT NOT NULL DEFAULT '',
    over_committed   INTEGER NOT NULL DEFAULT 0,
    released_by      TEXT NOT NULL DEFAULT '',
    released_at      TEXT,
    consumed_by      TEXT NOT NULL DEFAULT '',
    consumed_at      TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plate_rsv_lp ON plate_reservations (license_plate_id, status);
CREATE INDEX IF NOT EXISTS idx_plate_rsv_demand ON plate_reservations (tenant_id, demand_ref);
`,
	},
	{
		Name:    "create_plate_genealogy",
		Version: "20240601000003",
		Up: `
CREATE TABLE IF NOT EXISTS plate_genealogy (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    id            TEXT NOT NULL UNIQUE,
    tenant_id     TEXT NOT NULL,
    parent_id     TEXT NOT NULL REFERENCES plate_license_plates (id),
    child_id      TEXT NOT NULL REFERENCES plate_license_plates (id),
    relationship  TEXT NOT NULL,
    quantity      TEXT NOT NULL,
    operation_ref TEXT NOT NULL DEFAULT '',
    actor_id      TEXT NOT NULL DEFAULT '',
    reverses_id   TEXT,
    reason        TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL
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
    seq              INTEGER PRIMARY KEY AUTOINCREMENT,
    id               TEXT NOT NULL UNIQUE,
    tenant_id        TEXT NOT NULL,
    license_plate_id TEXT NOT NULL REFERENCES plate_license_plates (id),
    field            TEXT NOT NULL,
    from_value       TEXT NOT NULL,
    to_value         TEXT NOT NULL,
    reason           TEXT NOT NULL DEFAULT '',
    actor_id         TEXT NOT NULL DEFAULT '',
    automatic        INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plate_audit_lp ON plate_audit (license_plate_id, seq);
`,
	},
}

func migrate(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS plate_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`); err != nil {
		return err
	}

	done := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, `SELECT version FROM plate_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		done[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range Migrations {
		if done[m.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			return fmt.Errorf("%s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO plate_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name); err != nil {
			return err
		}
	}
	return nil
}
