// Package memory provides an in-process Store. Transactions are optimistic:
// each one works on private copies, records the version of every plate it
// read, and validates those versions when it commits.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

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

type Store struct {
	mu     sync.RWMutex
	closed bool

	plates       map[string]*lp.LicensePlate
	numbers      map[string]string // tenant/number -> plate id
	reservations map[string]*reservation.Reservation
	genealogy    []*genealogy.Record
	audit        []*audit.Entry
}

func New() *Store {
	return &Store{
		plates:       make(map[string]*lp.LicensePlate),
		numbers:      make(map[string]string),
		reservations: make(map[string]*reservation.Reservation),
	}
}

func numberKey(tenantID, number string) string { return tenantID + "/" + number }

// RunInTx runs fn against private copies and publishes its writes atomically
// if no plate it read has changed in the meantime.
func (s *Store) RunInTx(ctx context.Context, fn platestore.TxFunc) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	t := newTx(s, false)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(t)
}

// ReadTx holds the read lock for the duration of fn, so fn sees one
// consistent state.
func (s *Store) ReadTx(ctx context.Context, fn platestore.TxFunc) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return plate.ErrStoreClosed
	}
	return fn(ctx, newTx(s, true))
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return plate.ErrStoreClosed
	}
	for lpID, version := range t.seen {
		cur, ok := s.plates[lpID]
		if !ok || cur.Version != version {
			return plate.ErrConcurrentModification
		}
	}
	for key, lpID := range t.numbers {
		if owner, taken := s.numbers[key]; taken && owner != lpID {
			return plate.ErrAlreadyExists
		}
	}

	for lpID, p := range t.plates {
		s.plates[lpID] = p
	}
	for key, lpID := range t.numbers {
		s.numbers[key] = lpID
	}
	for rsvID, r := range t.reservations {
		s.reservations[rsvID] = r
	}
	s.genealogy = append(s.genealogy, t.genealogy...)
	s.audit = append(s.audit, t.audit...)
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return plate.ErrStoreClosed
	}
	return nil
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error { return s.checkOpen() }

// Close marks the store closed. Later transactions fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	s        *Store
	readOnly bool // the store's read lock is held for the whole transaction

	seen         map[string]int64
	plates       map[string]*lp.LicensePlate
	numbers      map[string]string
	reservations map[string]*reservation.Reservation
	genealogy    []*genealogy.Record
	audit        []*audit.Entry
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		s:            s,
		readOnly:     readOnly,
		seen:         make(map[string]int64),
		plates:       make(map[string]*lp.LicensePlate),
		numbers:      make(map[string]string),
		reservations: make(map[string]*reservation.Reservation),
	}
}

// view runs fn with the base state readable.
func (t *tx) view(fn func()) {
	if !t.readOnly {
		t.s.mu.RLock()
		defer t.s.mu.RUnlock()
	}
	fn()
}

var errReadOnly = errors.New("plate/memory: write in read-only transaction")

func (t *tx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

// ==================== License plates ====================

func (t *tx) CreateLicensePlate(_ context.Context, p *lp.LicensePlate) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := numberKey(p.TenantID, p.Number)
	var exists bool
	t.view(func() {
		_, idTaken := t.s.plates[p.ID.String()]
		_, numTaken := t.s.numbers[key]
		exists = idTaken || numTaken
	})
	if _, ok := t.plates[p.ID.String()]; ok {
		exists = true
	}
	if _, ok := t.numbers[key]; ok {
		exists = true
	}
	if exists {
		return plate.ErrAlreadyExists
	}
	t.plates[p.ID.String()] = p.Clone()
	t.numbers[key] = p.ID.String()
	return nil
}

func (t *tx) current(lpID string) (*lp.LicensePlate, bool) {
	if p, ok := t.plates[lpID]; ok {
		return p, true
	}
	var base *lp.LicensePlate
	t.view(func() {
		base = t.s.plates[lpID].Clone()
	})
	if base == nil {
		return nil, false
	}
	if _, ok := t.seen[lpID]; !ok {
		t.seen[lpID] = base.Version
	}
	return base, true
}

func (t *tx) GetLicensePlate(_ context.Context, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	p, ok := t.current(lpID.String())
	if !ok {
		return nil, plate.ErrLPNotFound
	}
	return p.Clone(), nil
}

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

func (t *tx) UpdateLicensePlate(_ context.Context, p *lp.LicensePlate, expectedVersion int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.current(p.ID.String())
	if !ok {
		return plate.ErrLPNotFound
	}
	if cur.Version != expectedVersion {
		return plate.ErrConcurrentModification
	}
	p.Version = expectedVersion + 1
	t.plates[p.ID.String()] = p.Clone()
	return nil
}

func (t *tx) ListLicensePlates(_ context.Context, opts lp.ListOpts) ([]*lp.LicensePlate, error) {
	var result []*lp.LicensePlate
	t.view(func() {
		for lpID, p := range t.s.plates {
			if _, shadowed := t.plates[lpID]; shadowed {
				continue
			}
			if opts.Matches(p) {
				result = append(result, p.Clone())
			}
		}
	})
	for _, p := range t.plates {
		if opts.Matches(p) {
			result = append(result, p.Clone())
		}
	}
	lp.SortByCreation(result)
	return types.Page(result, opts.Offset, opts.Limit), nil
}

// ==================== Reservations ====================

func (t *tx) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.reservations[r.ID.String()]; ok {
		return plate.ErrAlreadyExists
	}
	var exists bool
	t.view(func() {
		_, exists = t.s.reservations[r.ID.String()]
	})
	if exists {
		return plate.ErrAlreadyExists
	}
	t.reservations[r.ID.String()] = r.Clone()
	return nil
}

func (t *tx) GetReservation(_ context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	if r, ok := t.reservations[rsvID.String()]; ok {
		return r.Clone(), nil
	}
	var r *reservation.Reservation
	t.view(func() {
		r = t.s.reservations[rsvID.String()].Clone()
	})
	if r == nil {
		return nil, plate.ErrReservationNotFound
	}
	return r, nil
}

func (t *tx) UpdateReservation(ctx context.Context, r *reservation.Reservation) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetReservation(ctx, r.ID); err != nil {
		return err
	}
	t.reservations[r.ID.String()] = r.Clone()
	return nil
}

func (t *tx) allReservations(match func(*reservation.Reservation) bool) []*reservation.Reservation {
	var result []*reservation.Reservation
	t.view(func() {
		for rsvID, r := range t.s.reservations {
			if _, shadowed := t.reservations[rsvID]; shadowed {
				continue
			}
			if match(r) {
				result = append(result, r.Clone())
			}
		}
	})
	for _, r := range t.reservations {
		if match(r) {
			result = append(result, r.Clone())
		}
	}
	return result
}

func (t *tx) ListReservations(_ context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	result := t.allReservations(opts.Matches)
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

func (t *tx) ActiveQuantities(_ context.Context, lpIDs []id.LicensePlateID) (map[string]decimal.Decimal, error) {
	wanted := make(map[string]struct{}, len(lpIDs))
	for _, lpID := range lpIDs {
		wanted[lpID.String()] = struct{}{}
	}
	totals := make(map[string]decimal.Decimal)
	for _, r := range t.allReservations(func(r *reservation.Reservation) bool {
		_, ok := wanted[r.LicensePlateID.String()]
		return ok && r.IsActive()
	}) {
		key := r.LicensePlateID.String()
		totals[key] = totals[key].Add(r.Quantity)
	}
	return totals, nil
}

// ==================== Genealogy ====================

func (t *tx) AppendGenealogy(_ context.Context, r *genealogy.Record) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.genealogy = append(t.genealogy, r.Clone())
	return nil
}

func (t *tx) GetGenealogy(_ context.Context, genID id.GenealogyID) (*genealogy.Record, error) {
	for _, r := range t.genealogy {
		if r.ID.String() == genID.String() {
			return r.Clone(), nil
		}
	}
	var found *genealogy.Record
	t.view(func() {
		for _, r := range t.s.genealogy {
			if r.ID.String() == genID.String() {
				found = r.Clone()
				return
			}
		}
	})
	if found == nil {
		return nil, plate.ErrGenealogyNotFound
	}
	return found, nil
}

func (t *tx) ListGenealogy(_ context.Context, opts genealogy.ListOpts) ([]*genealogy.Record, error) {
	var result []*genealogy.Record
	t.view(func() {
		for _, r := range t.s.genealogy {
			if opts.Matches(r) {
				result = append(result, r.Clone())
			}
		}
	})
	for _, r := range t.genealogy {
		if opts.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	slices.SortStableFunc(result, func(a, b *genealogy.Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// ==================== Audit ====================

func (t *tx) AppendAudit(_ context.Context, e *audit.Entry) error {
	if err := t.writable(); err != nil {
		return err
	}
	c := *e
	t.audit = append(t.audit, &c)
	return nil
}

func (t *tx) ListAudit(_ context.Context, lpID id.LicensePlateID) ([]*audit.Entry, error) {
	var result []*audit.Entry
	collect := func(entries []*audit.Entry) {
		for _, e := range entries {
			if e.LicensePlateID.String() == lpID.String() {
				c := *e
				result = append(result, &c)
			}
		}
	}
	t.view(func() { collect(t.s.audit) })
	collect(t.audit)

	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b *audit.Entry) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result, nil
}
