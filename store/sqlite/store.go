// Package sqlite provides a SQLite Store on database/sql and the pure-Go
// modernc.org/sqlite driver. The pool holds a single connection, so
// transactions run one at a time; plate updates still carry the version
// check the engine relies on.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/plate"
	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
	platestore "github.com/xraph/plate/store"
)

// compile-time interface check
var _ platestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the database at dsn, for example "file:plate.db". Transactions
// start with BEGIN IMMEDIATE unless dsn sets _txlock itself.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if !strings.Contains(dsn, "_txlock=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_txlock=immediate"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("plate/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("plate/sqlite: %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("plate/sqlite: %w: %w", plate.ErrMigrationFailed, err)
	}
	if err := migrate(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("plate/sqlite: %w: %w", plate.ErrMigrationFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("plate/sqlite: %w: %w", plate.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn in a transaction and commits it if fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn platestore.TxFunc) error {
	return s.run(ctx, false, fn)
}

// ReadTx runs fn in a transaction that is always rolled back. Writes are
// rejected before they reach the database.
func (s *Store) ReadTx(ctx context.Context, fn platestore.TxFunc) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, readOnly bool, fn platestore.TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	if err := fn(ctx, &tx{tx: sqlTx, readOnly: readOnly}); err != nil {
		_ = sqlTx.Rollback()
		return mapError(err)
	}
	if readOnly {
		return sqlTx.Rollback()
	}
	return mapError(sqlTx.Commit())
}

// mapError translates SQLite result codes into the engine's sentinels.
func mapError(err error) error {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return err
	}
	code := sqErr.Code()
	switch {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %s", plate.ErrAlreadyExists, sqErr.Error())
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %s", plate.ErrConcurrentModification, sqErr.Error())
	}
	return fmt.Errorf("plate/sqlite: %w", err)
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

var errReadOnly = errors.New("plate/sqlite: write in read-only transaction")

type tx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	return res, mapError(err)
}

func queryAll[T any](ctx context.Context, t *tx, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ==================== License Plate Store ====================

func (t *tx) CreateLicensePlate(ctx context.Context, p *lp.LicensePlate) error {
	m, err := toPlateModel(p)
	if err != nil {
		return err
	}
	_, err = t.exec(ctx,
		`INSERT INTO plate_license_plates (`+plateColumns+`) VALUES (`+placeholders(21)+`)`, m.args()...)
	return err
}

func (t *tx) GetLicensePlate(ctx context.Context, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	p, err := scanPlate(t.tx.QueryRowContext(ctx,
		`SELECT `+plateColumns+` FROM plate_license_plates WHERE id = ?`, lpID.String()))
	if isNoRows(err) {
		return nil, plate.ErrLPNotFound
	}
	return p, mapError(err)
}

func (t *tx) LockLicensePlates(ctx context.Context, ids []id.LicensePlateID) ([]*lp.LicensePlate, error) {
	keys := uniqueStrings(ids)
	plates, err := queryAll(ctx, t, scanPlate,
		`SELECT `+plateColumns+` FROM plate_license_plates WHERE id IN (`+placeholders(len(keys))+`) ORDER BY id`,
		anySlice(keys)...)
	if err != nil {
		return nil, err
	}
	if len(plates) != len(keys) {
		return nil, plate.ErrLPNotFound
	}
	return plates, nil
}

func (t *tx) UpdateLicensePlate(ctx context.Context, p *lp.LicensePlate, expectedVersion int64) error {
	m, err := toPlateModel(p)
	if err != nil {
		return err
	}
	res, err := t.exec(ctx, `
UPDATE plate_license_plates SET
    location_id = ?, quantity = ?, catch_weight = ?, status = ?, qa_status = ?,
    consumed_by_ref = ?, metadata = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		m.LocationID, m.Quantity, m.CatchWeight, m.Status, m.QAStatus,
		m.ConsumedByRef, m.Metadata, m.UpdatedAt, m.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := t.GetLicensePlate(ctx, p.ID); err != nil {
			return err
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
	w.in("location_id", opts.LocationIDs)
	w.in("status", toStrings(opts.Statuses))
	w.in("qa_status", toStrings(opts.QAStatuses))
	if opts.ExpiresOnOrBefore != nil {
		w.add("expiry_date IS NOT NULL AND expiry_date <= ?", nullDate(opts.ExpiresOnOrBefore).String)
	}

	return queryAll(ctx, t, scanPlate,
		`SELECT `+plateColumns+` FROM plate_license_plates`+w.sql()+` ORDER BY created_at, id`+page(opts.Limit, opts.Offset),
		w.args...)
}

// ==================== Reservation Store ====================

func (t *tx) CreateReservation(ctx context.Context, r *reservation.Reservation) error {
	_, err := t.exec(ctx,
		`INSERT INTO plate_reservations (`+reservationColumns+`) VALUES (`+placeholders(14)+`)`,
		toReservationModel(r).args()...)
	return err
}

func (t *tx) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM plate_reservations WHERE id = ?`, rsvID.String()))
	if isNoRows(err) {
		return nil, plate.ErrReservationNotFound
	}
	return r, mapError(err)
}

func (t *tx) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	m := toReservationModel(r)
	res, err := t.exec(ctx, `
UPDATE plate_reservations SET
    status = ?, released_by = ?, released_at = ?, consumed_by = ?, consumed_at = ?, updated_at = ?
WHERE id = ?`,
		m.Status, m.ReleasedBy, m.ReleasedAt, m.ConsumedBy, m.ConsumedAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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
		w.add("license_plate_id = ?", opts.LicensePlateID.String())
	}

	return queryAll(ctx, t, scanReservation,
		`SELECT `+reservationColumns+` FROM plate_reservations`+w.sql()+` ORDER BY created_at, id`+page(opts.Limit, opts.Offset),
		w.args...)
}

// ActiveQuantities sums in Go; SQLite would add the text quantities as floats.
func (t *tx) ActiveQuantities(ctx context.Context, lpIDs []id.LicensePlateID) (map[string]decimal.Decimal, error) {
	keys := uniqueStrings(lpIDs)
	out := make(map[string]decimal.Decimal)
	if len(keys) == 0 {
		return out, nil
	}
	active, err := queryAll(ctx, t, scanReservation,
		`SELECT `+reservationColumns+` FROM plate_reservations WHERE status = 'active' AND license_plate_id IN (`+placeholders(len(keys))+`)`,
		anySlice(keys)...)
	if err != nil {
		return nil, err
	}
	for _, r := range active {
		key := r.LicensePlateID.String()
		out[key] = out[key].Add(r.Quantity)
	}
	return out, nil
}

// ==================== Genealogy Store ====================

func (t *tx) AppendGenealogy(ctx context.Context, r *genealogy.Record) error {
	_, err := t.exec(ctx,
		`INSERT INTO plate_genealogy (`+genealogyColumns+`) VALUES (`+placeholders(11)+`)`, genealogyArgs(r)...)
	return err
}

func (t *tx) GetGenealogy(ctx context.Context, genID id.GenealogyID) (*genealogy.Record, error) {
	r, err := scanGenealogy(t.tx.QueryRowContext(ctx,
		`SELECT `+genealogyColumns+` FROM plate_genealogy WHERE id = ?`, genID.String()))
	if isNoRows(err) {
		return nil, plate.ErrGenealogyNotFound
	}
	return r, mapError(err)
}

func (t *tx) ListGenealogy(ctx context.Context, opts genealogy.ListOpts) ([]*genealogy.Record, error) {
	var w where
	w.eq("tenant_id", opts.TenantID)
	w.eq("operation_ref", opts.OperationRef)
	w.eq("relationship", string(opts.Relationship))
	if !opts.ParentID.IsNil() {
		w.add("parent_id = ?", opts.ParentID.String())
	}
	if !opts.ChildID.IsNil() {
		w.add("child_id = ?", opts.ChildID.String())
	}

	return queryAll(ctx, t, scanGenealogy,
		`SELECT `+genealogyColumns+` FROM plate_genealogy`+w.sql()+` ORDER BY seq`, w.args...)
}

// ==================== Audit Store ====================

func (t *tx) AppendAudit(ctx context.Context, e *audit.Entry) error {
	_, err := t.exec(ctx,
		`INSERT INTO plate_audit (`+auditColumns+`) VALUES (`+placeholders(10)+`)`, auditArgs(e)...)
	return err
}

func (t *tx) ListAudit(ctx context.Context, lpID id.LicensePlateID) ([]*audit.Entry, error) {
	return queryAll(ctx, t, scanAudit,
		`SELECT `+auditColumns+` FROM plate_audit WHERE license_plate_id = ? ORDER BY created_at DESC, seq DESC`,
		lpID.String())
}

// ==================== Helpers ====================

type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) eq(col, value string) {
	if value != "" {
		w.add(col+" = ?", value)
	}
}

func (w *where) in(col string, values []string) {
	if len(values) > 0 {
		w.add(col+" IN ("+placeholders(len(values))+")", anySlice(values)...)
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func page(limit, offset int) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT -1 OFFSET %d", offset)
	}
	return ""
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

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
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
