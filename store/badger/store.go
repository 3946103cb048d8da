// Package badger provides an embedded Store on BadgerDB. Badger's
// serializable snapshot transactions detect read-write conflicts at commit;
// a lost race surfaces as plate.ErrConcurrentModification.
//
// Layout:
//
//	lp/<id>                  plate JSON
//	lpn/<tenant>\x00<number> plate id
//	rsv/<id>                 reservation JSON
//	rsvlp/<plate>/<id>       index of reservations by plate
//	gen/<seq>                genealogy JSON, seq is zero padded
//	genid/<id>               gen/<seq> key
//	aud/<plate>/<seq>        audit entry JSON
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
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

// Config holds configuration for the underlying BadgerDB.
type Config struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	SyncWrites bool

	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultConfig returns durable settings for a data directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements store.Store on BadgerDB.
type Store struct {
	db       *badger.DB
	genSeq   *badger.Sequence
	auditSeq *badger.Sequence
}

// Open opens a database with cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("plate/badger: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("plate/badger: create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("plate/badger: open: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. The Store takes ownership of db.
func New(db *badger.DB) (*Store, error) {
	genSeq, err := db.GetSequence([]byte("seq/gen"), 100)
	if err != nil {
		return nil, fmt.Errorf("plate/badger: genealogy sequence: %w", err)
	}
	auditSeq, err := db.GetSequence([]byte("seq/aud"), 100)
	if err != nil {
		_ = genSeq.Release()
		return nil, fmt.Errorf("plate/badger: audit sequence: %w", err)
	}
	return &Store{db: db, genSeq: genSeq, auditSeq: auditSeq}, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *badger.DB { return s.db }

// Migrate records the schema version. The key layout needs no other setup.
func (s *Store) Migrate(_ context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("meta/schema"), []byte("1"))
	})
	if err != nil {
		return fmt.Errorf("plate/badger: %w: %w", plate.ErrMigrationFailed, err)
	}
	return nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return plate.ErrStoreClosed
	}
	return nil
}

// Close releases the sequences and closes the database.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	return errors.Join(s.genSeq.Release(), s.auditSeq.Release(), s.db.Close())
}

// RunInTx runs fn in a read-write transaction and commits it.
func (s *Store) RunInTx(ctx context.Context, fn platestore.TxFunc) error {
	if s.db.IsClosed() {
		return plate.ErrStoreClosed
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(ctx, &tx{s: s, txn: txn}); err != nil {
		return mapError(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(txn.Commit())
}

// ReadTx runs fn against a read-only snapshot.
func (s *Store) ReadTx(ctx context.Context, fn platestore.TxFunc) error {
	if s.db.IsClosed() {
		return plate.ErrStoreClosed
	}
	return mapError(s.db.View(func(txn *badger.Txn) error {
		return fn(ctx, &tx{s: s, txn: txn})
	}))
}

func mapError(err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %w", plate.ErrConcurrentModification, err)
	}
	return err
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	s   *Store
	txn *badger.Txn
}

func plateKey(lpID string) []byte { return []byte("lp/" + lpID) }

func numberKey(tenantID, number string) []byte {
	return []byte("lpn/" + tenantID + "\x00" + number)
}

func reservationKey(rsvID string) []byte { return []byte("rsv/" + rsvID) }

func reservationIndexKey(lpID, rsvID string) []byte {
	return []byte("rsvlp/" + lpID + "/" + rsvID)
}

func genealogyIDKey(genID string) []byte { return []byte("genid/" + genID) }

func (t *tx) get(key []byte, v any) (bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func (t *tx) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.txn.Set(key, data)
}

func (t *tx) exists(key []byte) (bool, error) {
	_, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan decodes every value under prefix in key order.
func scan[T any](t *tx, prefix string) ([]*T, error) {
	it := t.txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(prefix)})
	defer it.Close()

	var out []*T
	for it.Rewind(); it.Valid(); it.Next() {
		v := new(T)
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		}); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// keys lists the keys under prefix without reading values.
func (t *tx) keys(prefix string) []string {
	it := t.txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefix)})
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		out = append(out, string(it.Item().KeyCopy(nil)))
	}
	return out
}

// ==================== License Plate Store ====================

func (t *tx) CreateLicensePlate(_ context.Context, p *lp.LicensePlate) error {
	for _, key := range [][]byte{plateKey(p.ID.String()), numberKey(p.TenantID, p.Number)} {
		taken, err := t.exists(key)
		if err != nil {
			return err
		}
		if taken {
			return plate.ErrAlreadyExists
		}
	}
	if err := t.put(plateKey(p.ID.String()), p); err != nil {
		return err
	}
	return t.txn.Set(numberKey(p.TenantID, p.Number), []byte(p.ID.String()))
}

func (t *tx) GetLicensePlate(_ context.Context, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	p := new(lp.LicensePlate)
	found, err := t.get(plateKey(lpID.String()), p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, plate.ErrLPNotFound
	}
	return p, nil
}

// LockLicensePlates reads the plates in ID order. Badger has no row locks;
// the reads join the transaction's conflict set instead.
func (t *tx) LockLicensePlates(ctx context.Context, ids []id.LicensePlateID) ([]*lp.LicensePlate, error) {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b id.ID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	sorted = slices.CompactFunc(sorted, func(a, b id.ID) bool { return a.String() == b.String() })

	out := make([]*lp.LicensePlate, 0, len(sorted))
	for _, lpID := range sorted {
		p, err := t.GetLicensePlate(ctx, lpID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *tx) UpdateLicensePlate(ctx context.Context, p *lp.LicensePlate, expectedVersion int64) error {
	cur, err := t.GetLicensePlate(ctx, p.ID)
	if err != nil {
		return err
	}
	if cur.Version != expectedVersion {
		return plate.ErrConcurrentModification
	}
	next := p.Clone()
	next.Version = expectedVersion + 1
	if err := t.put(plateKey(p.ID.String()), next); err != nil {
		return err
	}
	p.Version = next.Version
	return nil
}

func (t *tx) ListLicensePlates(_ context.Context, opts lp.ListOpts) ([]*lp.LicensePlate, error) {
	all, err := scan[lp.LicensePlate](t, "lp/")
	if err != nil {
		return nil, err
	}
	result := slices.DeleteFunc(all, func(p *lp.LicensePlate) bool { return !opts.Matches(p) })
	lp.SortByCreation(result)
	return types.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Reservation Store ====================

func (t *tx) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	taken, err := t.exists(reservationKey(r.ID.String()))
	if err != nil {
		return err
	}
	if taken {
		return plate.ErrAlreadyExists
	}
	if err := t.put(reservationKey(r.ID.String()), r); err != nil {
		return err
	}
	return t.txn.Set(reservationIndexKey(r.LicensePlateID.String(), r.ID.String()), nil)
}

func (t *tx) GetReservation(_ context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	r := new(reservation.Reservation)
	found, err := t.get(reservationKey(rsvID.String()), r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, plate.ErrReservationNotFound
	}
	return r, nil
}

func (t *tx) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	if _, err := t.GetReservation(ctx, r.ID); err != nil {
		return err
	}
	return t.put(reservationKey(r.ID.String()), r)
}

func (t *tx) plateReservations(ctx context.Context, lpID string) ([]*reservation.Reservation, error) {
	prefix := "rsvlp/" + lpID + "/"
	var out []*reservation.Reservation
	for _, key := range t.keys(prefix) {
		rsvID, err := id.Parse(key[len(prefix):])
		if err != nil {
			return nil, err
		}
		r, err := t.GetReservation(ctx, rsvID)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *tx) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	var (
		all []*reservation.Reservation
		err error
	)
	if !opts.LicensePlateID.IsNil() {
		all, err = t.plateReservations(ctx, opts.LicensePlateID.String())
	} else {
		all, err = scan[reservation.Reservation](t, "rsv/")
	}
	if err != nil {
		return nil, err
	}

	result := slices.DeleteFunc(all, func(r *reservation.Reservation) bool { return !opts.Matches(r) })
	slices.SortStableFunc(result, func(a, b *reservation.Reservation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID.Less(b.ID):
			return -1
		case b.ID.Less(a.ID):
			return 1
		}
		return 0
	})
	return types.Page(result, opts.Offset, opts.Limit), nil
}

func (t *tx) ActiveQuantities(ctx context.Context, lpIDs []id.LicensePlateID) (map[string]decimal.Decimal, error) {
	totals := make(map[string]decimal.Decimal)
	for _, lpID := range lpIDs {
		key := lpID.String()
		if _, done := totals[key]; done {
			continue
		}
		rs, err := t.plateReservations(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, r := range rs {
			if r.IsActive() {
				totals[key] = totals[key].Add(r.Quantity)
			}
		}
	}
	return totals, nil
}

// ==================== Genealogy Store ====================

func (t *tx) AppendGenealogy(_ context.Context, r *genealogy.Record) error {
	seq, err := t.s.genSeq.Next()
	if err != nil {
		return err
	}
	key := fmt.Sprintf("gen/%020d", seq)
	if err := t.put([]byte(key), r); err != nil {
		return err
	}
	return t.txn.Set(genealogyIDKey(r.ID.String()), []byte(key))
}

func (t *tx) GetGenealogy(_ context.Context, genID id.GenealogyID) (*genealogy.Record, error) {
	item, err := t.txn.Get(genealogyIDKey(genID.String()))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, plate.ErrGenealogyNotFound
	}
	if err != nil {
		return nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	r := new(genealogy.Record)
	if _, err := t.get(key, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (t *tx) ListGenealogy(_ context.Context, opts genealogy.ListOpts) ([]*genealogy.Record, error) {
	all, err := scan[genealogy.Record](t, "gen/")
	if err != nil {
		return nil, err
	}
	result := slices.DeleteFunc(all, func(r *genealogy.Record) bool { return !opts.Matches(r) })
	slices.SortStableFunc(result, func(a, b *genealogy.Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// ==================== Audit Store ====================

func (t *tx) AppendAudit(_ context.Context, e *audit.Entry) error {
	seq, err := t.s.auditSeq.Next()
	if err != nil {
		return err
	}
	return t.put([]byte(fmt.Sprintf("aud/%s/%020d", e.LicensePlateID.String(), seq)), e)
}

func (t *tx) ListAudit(_ context.Context, lpID id.LicensePlateID) ([]*audit.Entry, error) {
	result, err := scan[audit.Entry](t, "aud/"+lpID.String()+"/")
	if err != nil {
		return nil, err
	}
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b *audit.Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}
