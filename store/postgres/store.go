// Package postgres provides a PostgreSQL Store built on pgx. Plates are
// locked with SELECT ... FOR UPDATE in ascending ID order, and every plate
// update is additionally guarded by its version column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xraph/plate"
	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
	platestore "github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// compile-time interface check
var _ platestore.Store = (*Store)(nil)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("plate/postgres: connect: %w", err)
	}
	return New(pool), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return migrate(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("plate/postgres: %w: %w", plate.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Isolation between
// writers comes from row locks and version checks, not from the isolation
// level.
func (s *Store) RunInTx(ctx context.Context, fn platestore.TxFunc) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

// ReadTx runs fn in a read-only REPEATABLE READ transaction so every query
// sees the same snapshot.
func (s *Store) ReadTx(ctx context.Context, fn platestore.TxFunc) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn platestore.TxFunc) error {
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{tx: ptx})
	})
	return mapError(err)
}

// mapError translates PostgreSQL failures into the engine's sentinels.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %s", plate.ErrConcurrentModification, pgErr.Message)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", plate.ErrAlreadyExists, pgErr.Detail)
	}
	return fmt.Errorf("plate/postgres: %w", err)
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	tx pgx.Tx
}

// ==================== License Plate Store ====================

func (t *tx) CreateLicensePlate(ctx context.Context, p *lp.LicensePlate) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO plate_license_plates (`+plateColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		plateArgs(p)...)
	return mapError(err)
}

func (t *tx) GetLicensePlate(ctx context.Context, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	p, err := scanPlate(t.tx.QueryRow(ctx,
		`SELECT `+plateColumns+` FROM plate_license_plates WHERE id = $1`, lpID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plate.ErrLPNotFound
	}
	return p, err
}

func (t *tx) LockLicensePlates(ctx context.Context, ids []id.LicensePlateID) ([]*lp.LicensePlate, error) {
	keys := uniqueStrings(ids)
	rows, err := t.tx.Query(ctx,
		`SELECT `+plateColumns+` FROM plate_license_plates WHERE id = ANY($1) ORDER BY id COLLATE "C" FOR UPDATE`, keys)
	if err != nil {
		return nil, mapError(err)
	}
	plates, err := collectPlates(rows)
	if err != nil {
		return nil, mapError(err)
	}
	if len(plates) != len(keys) {
		return nil, plate.ErrLPNotFound
	}
	return plates, nil
}

func (t *tx) UpdateLicensePlate(ctx context.Context, p *lp.LicensePlate, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE plate_license_plates SET
    location_id = $3, quantity = $4, catch_weight = $5, status = $6, qa_status = $7,
    consumed_by_ref = $8, metadata = $9, updated_at = $10, version = version + 1
WHERE id = $1 AND version = $2`,
		p.ID.String(), expectedVersion,
		p.LocationID, p.Quantity, nullDecimal(p.CatchWeight), string(p.Status), string(p.QAStatus),
		p.ConsumedByRef, metadata(p.Metadata), p.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM plate_license_plates WHERE id = $1)`, p.ID.String()).Scan(&exists); err != nil {
			return mapError(err)
		}
		if !exists {
			return plate.ErrLPNotFound
		}
		return plate.ErrConcurrentModification
	}
	p.Version = expectedVersion + 1
	return nil
}

func (t *tx) ListLicensePlates(ctx context.Context, opts lp.ListOpts) ([]*lp.LicensePlate, error) {
	var w where
	w.eq("tenant_id", opts.TenantID)
	w.eq("product_id", opts.ProductID)
	w.eq("warehouse_id", opts.WarehouseID)
	w.eq("batch_number", opts.BatchNumber)
	if len(opts.LocationIDs) > 0 {
		w.add("location_id = ANY($%d)", opts.LocationIDs)
	}
	if len(opts.Statuses) > 0 {
		w.add("status = ANY($%d)", toStrings(opts.Statuses))
	}
	if len(opts.QAStatuses) > 0 {
		w.add("qa_status = ANY($%d)", toStrings(opts.QAStatuses))
	}
	if opts.ExpiresOnOrBefore != nil {
		w.add("expiry_date <= $%d", types.Day(*opts.ExpiresOnOrBefore))
	}

	q := `SELECT ` + plateColumns + ` FROM plate_license_plates` + w.sql() + ` ORDER BY created_at, id COLLATE "C"` + page(opts.Limit, opts.Offset)
	rows, err := t.tx.Query(ctx, q, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	return collectPlates(rows)
}

// ==================== Reservation Store ====================

func (t *tx) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO plate_reservations (`+reservationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		reservationArgs(r)...)
	return mapError(err)
}

func (t *tx) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM plate_reservations WHERE id = $1`, rsvID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plate.ErrReservationNotFound
	}
	return r, err
}

func (t *tx) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE plate_reservations SET
    status = $2, released_by = $3, released_at = $4, consumed_by = $5, consumed_at = $6, updated_at = $7
WHERE id = $1`,
		r.ID.String(), string(r.Status), r.ReleasedBy, r.ReleasedAt, r.ConsumedBy, r.ConsumedAt, r.UpdatedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return plate.ErrReservationNotFound
	}
	return nil
}

func (t *tx) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var w where
	w.eq("tenant_id", opts.TenantID)
	w.eq("demand_ref", opts.DemandRef)
	w.eq("status", string(opts.Status))
	if !opts.LicensePlateID.IsNil() {
		w.add("license_plate_id = $%d", opts.LicensePlateID.String())
	}

	q := `SELECT ` + reservationColumns + ` FROM plate_reservations` + w.sql() + ` ORDER BY created_at, id COLLATE "C"` + page(opts.Limit, opts.Offset)
	rows, err := t.tx.Query(ctx, q, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*reservation.Reservation, error) {
		return scanReservation(row)
	})
}

func (t *tx) ActiveQuantities(ctx context.Context, lpIDs []id.LicensePlateID) (map[string]decimal.Decimal, error) {
	rows, err := t.tx.Query(ctx, `
SELECT license_plate_id, SUM(quantity)
FROM plate_reservations
WHERE status = 'active' AND license_plate_id = ANY($1)
GROUP BY license_plate_id`, uniqueStrings(lpIDs))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			lpID string
			sum  decimal.Decimal
		)
		if err := rows.Scan(&lpID, &sum); err != nil {
			return nil, err
		}
		out[lpID] = sum
	}
	return out, rows.Err()
}

// ==================== Genealogy Store ====================

func (t *tx) AppendGenealogy(ctx context.Context, r *genealogy.Record) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO plate_genealogy (`+genealogyColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		genealogyArgs(r)...)
	return mapError(err)
}

func (t *tx) GetGenealogy(ctx context.Context, genID id.GenealogyID) (*genealogy.Record, error) {
	r, err := scanGenealogy(t.tx.QueryRow(ctx,
		`SELECT `+genealogyColumns+` FROM plate_genealogy WHERE id = $1`, genID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, plate.ErrGenealogyNotFound
	}
	return r, err
}

func (t *tx) ListGenealogy(ctx context.Context, opts genealogy.ListOpts) ([]*genealogy.Record, error) {
	var w where
	w.eq("tenant_id", opts.TenantID)
	w.eq("operation_ref", opts.OperationRef)
	w.eq("relationship", string(opts.Relationship))
	if !opts.ParentID.IsNil() {
		w.add("parent_id = $%d", opts.ParentID.String())
	}
	if !opts.ChildID.IsNil() {
		w.add("child_id = $%d", opts.ChildID.String())
	}

	rows, err := t.tx.Query(ctx, `SELECT `+genealogyColumns+` FROM plate_genealogy`+w.sql()+` ORDER BY seq`, w.args...)
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*genealogy.Record, error) {
		return scanGenealogy(row)
	})
}

// ==================== Audit Store ====================

func (t *tx) AppendAudit(ctx context.Context, e *audit.Entry) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO plate_audit (`+auditColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		auditArgs(e)...)
	return mapError(err)
}

func (t *tx) ListAudit(ctx context.Context, lpID id.LicensePlateID) ([]*audit.Entry, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+auditColumns+` FROM plate_audit WHERE license_plate_id = $1 ORDER BY created_at DESC, seq DESC`, lpID.String())
	if err != nil {
		return nil, mapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*audit.Entry, error) {
		return scanAudit(row)
	})
}

// ──────────────────────────────────────────────────
// Query helpers
// ──────────────────────────────────────────────────

// where accumulates AND-ed conditions with numbered placeholders.
type where struct {
	conds []string
	args  []any
}

// add appends cond, whose single %d is replaced by the next placeholder index.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

// eq adds col = value unless value is empty.
func (w *where) eq(col, value string) {
	if value != "" {
		w.add(col+" = $%d", value)
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func page(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func uniqueStrings(ids []id.ID) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, i := range ids {
		s := i.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
