// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/plate"
	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// Factory returns an empty, migrated store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"LicensePlateRoundTrip", testPlateRoundTrip},
		{"DuplicateNumber", testDuplicateNumber},
		{"PlateNotFound", testPlateNotFound},
		{"VersionedUpdate", testVersionedUpdate},
		{"LockOrder", testLockOrder},
		{"ListLicensePlates", testListPlates},
		{"Rollback", testRollback},
		{"ReadTxRejectsWrites", testReadTxRejectsWrites},
		{"Reservations", testReservations},
		{"ActiveQuantities", testActiveQuantities},
		{"Genealogy", testGenealogy},
		{"AuditOrder", testAuditOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

var base = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newPlate(tenant, number string, created time.Time) *lp.LicensePlate {
	return &lp.LicensePlate{
		Entity:      types.NewEntityAt(created),
		ID:          id.NewLicensePlateID(),
		TenantID:    tenant,
		Number:      number,
		ProductID:   "sku-1",
		WarehouseID: "wh-1",
		Quantity:    decimal.NewFromInt(100),
		UoM:         "ea",
		Status:      lp.StatusAvailable,
		QAStatus:    lp.QAPassed,
		Source:      lp.SourceReceiving,
		Version:     1,
	}
}

func write(t *testing.T, s store.Store, fn store.TxFunc) {
	t.Helper()
	require.NoError(t, s.RunInTx(context.Background(), fn))
}

func createPlates(t *testing.T, s store.Store, plates ...*lp.LicensePlate) {
	t.Helper()
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, p := range plates {
			if err := tx.CreateLicensePlate(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func getPlate(t *testing.T, s store.Store, lpID id.LicensePlateID) *lp.LicensePlate {
	t.Helper()
	var got *lp.LicensePlate
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.GetLicensePlate(ctx, lpID)
		return err
	}))
	return got
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got)
}

func plateIDs(plates []*lp.LicensePlate) []string {
	out := make([]string, len(plates))
	for i, p := range plates {
		out[i] = p.ID.String()
	}
	return out
}

func testPlateRoundTrip(t *testing.T, s store.Store) {
	p := newPlate("t1", "LP-1", base)
	cw := decimal.RequireFromString("12.5")
	p.CatchWeight = &cw
	p.BatchNumber = "B-7"
	p.LocationID = "A-01"
	p.ExpiryDate = day(2024, 9, 1)
	p.ManufactureDate = day(2024, 5, 1)
	p.ParentID = id.NewLicensePlateID()
	p.Metadata = map[string]string{"origin": "dock-3"}
	createPlates(t, s, p)

	got := getPlate(t, s, p.ID)
	assert.Equal(t, p.ID.String(), got.ID.String())
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "LP-1", got.Number)
	assertDecimal(t, "100", got.Quantity)
	require.NotNil(t, got.CatchWeight)
	assertDecimal(t, "12.5", *got.CatchWeight)
	assert.Equal(t, "B-7", got.BatchNumber)
	assert.Equal(t, "A-01", got.LocationID)
	require.NotNil(t, got.ExpiryDate)
	assert.True(t, types.SameDay(got.ExpiryDate, p.ExpiryDate))
	require.NotNil(t, got.ManufactureDate)
	assert.True(t, types.SameDay(got.ManufactureDate, p.ManufactureDate))
	assert.Equal(t, lp.StatusAvailable, got.Status)
	assert.Equal(t, lp.QAPassed, got.QAStatus)
	assert.Equal(t, lp.SourceReceiving, got.Source)
	assert.Equal(t, p.ParentID.String(), got.ParentID.String())
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, map[string]string{"origin": "dock-3"}, got.Metadata)
	assert.True(t, got.CreatedAt.Equal(base))

	bare := newPlate("t1", "LP-2", base)
	createPlates(t, s, bare)
	got = getPlate(t, s, bare.ID)
	assert.Nil(t, got.CatchWeight)
	assert.Nil(t, got.ExpiryDate)
	assert.True(t, got.ParentID.IsNil())
}

func testDuplicateNumber(t *testing.T, s store.Store) {
	createPlates(t, s, newPlate("t1", "LP-1", base))

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateLicensePlate(ctx, newPlate("t1", "LP-1", base))
	})
	assert.ErrorIs(t, err, plate.ErrAlreadyExists)

	// Numbers are unique per tenant only.
	createPlates(t, s, newPlate("t2", "LP-1", base))
}

func testPlateNotFound(t *testing.T, s store.Store) {
	err := s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetLicensePlate(ctx, id.NewLicensePlateID())
		return err
	})
	assert.ErrorIs(t, err, plate.ErrLPNotFound)

	p := newPlate("t1", "LP-1", base)
	createPlates(t, s, p)
	err = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockLicensePlates(ctx, []id.LicensePlateID{p.ID, id.NewLicensePlateID()})
		return err
	})
	assert.ErrorIs(t, err, plate.ErrLPNotFound)
}

func testVersionedUpdate(t *testing.T, s store.Store) {
	p := newPlate("t1", "LP-1", base)
	createPlates(t, s, p)

	write(t, s, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.GetLicensePlate(ctx, p.ID)
		if err != nil {
			return err
		}
		cur.Quantity = decimal.NewFromInt(40)
		cur.Status = lp.StatusReserved
		cur.LocationID = "B-02"
		cur.ConsumedByRef = "wo-1"
		cur.TouchAt(base.Add(time.Hour))
		if err := tx.UpdateLicensePlate(ctx, cur, cur.Version); err != nil {
			return err
		}
		assert.Equal(t, int64(2), cur.Version)
		return nil
	})

	got := getPlate(t, s, p.ID)
	assert.Equal(t, int64(2), got.Version)
	assertDecimal(t, "40", got.Quantity)
	assert.Equal(t, lp.StatusReserved, got.Status)
	assert.Equal(t, "B-02", got.LocationID)
	assert.Equal(t, "wo-1", got.ConsumedByRef)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		stale := got.Clone()
		stale.Quantity = decimal.NewFromInt(1)
		return tx.UpdateLicensePlate(ctx, stale, 1)
	})
	assert.ErrorIs(t, err, plate.ErrConcurrentModification)
	assertDecimal(t, "40", getPlate(t, s, p.ID).Quantity)

	err = s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateLicensePlate(ctx, newPlate("t1", "LP-X", base), 1)
	})
	assert.ErrorIs(t, err, plate.ErrLPNotFound)
}

func testLockOrder(t *testing.T, s store.Store) {
	a := newPlate("t1", "LP-1", base)
	b := newPlate("t1", "LP-2", base)
	c := newPlate("t1", "LP-3", base)
	createPlates(t, s, a, b, c)

	var locked []*lp.LicensePlate
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		var err error
		locked, err = tx.LockLicensePlates(ctx, []id.LicensePlateID{c.ID, a.ID, b.ID, a.ID})
		return err
	})
	require.Len(t, locked, 3)
	for i := 1; i < len(locked); i++ {
		assert.True(t, locked[i-1].ID.Less(locked[i].ID), "plates must come back in ascending ID order")
	}
}

func testListPlates(t *testing.T, s store.Store) {
	first := newPlate("t1", "LP-1", base)
	second := newPlate("t1", "LP-2", base.Add(time.Minute))
	second.Status = lp.StatusBlocked
	second.ExpiryDate = day(2024, 7, 1)
	third := newPlate("t1", "LP-3", base.Add(2*time.Minute))
	third.ProductID = "sku-2"
	third.LocationID = "A-01"
	third.ExpiryDate = day(2024, 8, 1)
	other := newPlate("t2", "LP-1", base)
	createPlates(t, s, third, other, second, first)

	cases := []struct {
		name string
		opts lp.ListOpts
		want []*lp.LicensePlate
	}{
		{"tenant", lp.ListOpts{TenantID: "t1"}, []*lp.LicensePlate{first, second, third}},
		{"product", lp.ListOpts{TenantID: "t1", ProductID: "sku-2"}, []*lp.LicensePlate{third}},
		{"statuses", lp.ListOpts{TenantID: "t1", Statuses: []lp.Status{lp.StatusBlocked}}, []*lp.LicensePlate{second}},
		{"location", lp.ListOpts{TenantID: "t1", LocationIDs: []string{"A-01"}}, []*lp.LicensePlate{third}},
		{"expiry", lp.ListOpts{TenantID: "t1", ExpiresOnOrBefore: day(2024, 7, 1)}, []*lp.LicensePlate{second}},
		{"page", lp.ListOpts{TenantID: "t1", Limit: 1, Offset: 1}, []*lp.LicensePlate{second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []*lp.LicensePlate
			require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				var err error
				got, err = tx.ListLicensePlates(ctx, tc.opts)
				return err
			}))
			assert.Equal(t, plateIDs(tc.want), plateIDs(got))
		})
	}
}

func testRollback(t *testing.T, s store.Store) {
	p := newPlate("t1", "LP-1", base)
	boom := errors.New("boom")

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateLicensePlate(ctx, p); err != nil {
			return err
		}
		if _, err := tx.GetLicensePlate(ctx, p.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetLicensePlate(ctx, p.ID)
		return err
	})
	assert.ErrorIs(t, err, plate.ErrLPNotFound)
}

func testReadTxRejectsWrites(t *testing.T, s store.Store) {
	err := s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateLicensePlate(ctx, newPlate("t1", "LP-1", base))
	})
	assert.Error(t, err)
}

func newReservation(p *lp.LicensePlate, demand string, qty int64, created time.Time) *reservation.Reservation {
	return &reservation.Reservation{
		Entity:         types.NewEntityAt(created),
		ID:             id.NewReservationID(),
		TenantID:       p.TenantID,
		LicensePlateID: p.ID,
		DemandRef:      demand,
		Quantity:       decimal.NewFromInt(qty),
		Status:         reservation.StatusActive,
		CreatedBy:      "u1",
	}
}

func listReservations(t *testing.T, s store.Store, opts reservation.ListOpts) []*reservation.Reservation {
	t.Helper()
	var got []*reservation.Reservation
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListReservations(ctx, opts)
		return err
	}))
	return got
}

func reservationIDs(rs []*reservation.Reservation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID.String()
	}
	return out
}

func testReservations(t *testing.T, s store.Store) {
	p := newPlate("t1", "LP-1", base)
	createPlates(t, s, p)
	r1 := newReservation(p, "so-1", 30, base)
	r2 := newReservation(p, "so-2", 20, base.Add(time.Minute))
	r2.OverCommitted = true
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateReservation(ctx, r2); err != nil {
			return err
		}
		return tx.CreateReservation(ctx, r1)
	})

	var got *reservation.Reservation
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.GetReservation(ctx, r2.ID)
		return err
	}))
	assert.Equal(t, "so-2", got.DemandRef)
	assertDecimal(t, "20", got.Quantity)
	assert.True(t, got.OverCommitted)
	assert.Equal(t, p.ID.String(), got.LicensePlateID.String())
	assert.Nil(t, got.ReleasedAt)

	released := base.Add(time.Hour)
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		got.Status = reservation.StatusReleased
		got.ReleasedBy = "u2"
		got.ReleasedAt = &released
		got.TouchAt(released)
		return tx.UpdateReservation(ctx, got)
	})

	all := listReservations(t, s, reservation.ListOpts{LicensePlateID: p.ID})
	assert.Equal(t, reservationIDs([]*reservation.Reservation{r1, r2}), reservationIDs(all))

	active := listReservations(t, s, reservation.ListOpts{TenantID: "t1", Status: reservation.StatusActive})
	assert.Equal(t, reservationIDs([]*reservation.Reservation{r1}), reservationIDs(active))

	byDemand := listReservations(t, s, reservation.ListOpts{DemandRef: "so-2"})
	require.Len(t, byDemand, 1)
	assert.Equal(t, reservation.StatusReleased, byDemand[0].Status)
	assert.Equal(t, "u2", byDemand[0].ReleasedBy)
	require.NotNil(t, byDemand[0].ReleasedAt)
	assert.True(t, byDemand[0].ReleasedAt.Equal(released))

	err := s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetReservation(ctx, id.NewReservationID())
		return err
	})
	assert.ErrorIs(t, err, plate.ErrReservationNotFound)
}

func testActiveQuantities(t *testing.T, s store.Store) {
	a := newPlate("t1", "LP-1", base)
	b := newPlate("t1", "LP-2", base)
	c := newPlate("t1", "LP-3", base)
	createPlates(t, s, a, b, c)

	done := newReservation(b, "so-3", 50, base)
	done.Status = reservation.StatusConsumed
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, r := range []*reservation.Reservation{
			newReservation(a, "so-1", 30, base),
			newReservation(a, "so-2", 12, base),
			done,
			newReservation(c, "so-4", 5, base),
		} {
			if err := tx.CreateReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})

	var got map[string]decimal.Decimal
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ActiveQuantities(ctx, []id.LicensePlateID{a.ID, b.ID})
		return err
	}))
	require.Len(t, got, 1)
	assertDecimal(t, "42", got[a.ID.String()])
}

func testGenealogy(t *testing.T, s store.Store) {
	parent := newPlate("t1", "LP-1", base)
	child := newPlate("t1", "LP-2", base.Add(time.Minute))
	other := newPlate("t1", "LP-3", base.Add(2*time.Minute))
	createPlates(t, s, parent, child, other)

	edge := &genealogy.Record{
		ID: id.NewGenealogyID(), TenantID: "t1", ParentID: parent.ID, ChildID: child.ID,
		Relationship: genealogy.RelSplit, Quantity: decimal.NewFromInt(40),
		OperationRef: "op-1", ActorID: "u1", CreatedAt: base.Add(time.Minute),
	}
	second := &genealogy.Record{
		ID: id.NewGenealogyID(), TenantID: "t1", ParentID: child.ID, ChildID: other.ID,
		Relationship: genealogy.RelConsumption, Quantity: decimal.NewFromInt(10),
		OperationRef: "op-2", CreatedAt: base.Add(2 * time.Minute),
	}
	reversal := &genealogy.Record{
		ID: id.NewGenealogyID(), TenantID: "t1", ParentID: parent.ID, ChildID: child.ID,
		Relationship: genealogy.RelReversal, Quantity: decimal.NewFromInt(40),
		ReversesID: edge.ID, Reason: "wrong lot", CreatedAt: base.Add(3 * time.Minute),
	}
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, r := range []*genealogy.Record{edge, second, reversal} {
			if err := tx.AppendGenealogy(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})

	list := func(opts genealogy.ListOpts) []string {
		var got []*genealogy.Record
		require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			var err error
			got, err = tx.ListGenealogy(ctx, opts)
			return err
		}))
		out := make([]string, len(got))
		for i, r := range got {
			out[i] = r.ID.String()
		}
		return out
	}

	assert.Equal(t, []string{edge.ID.String(), reversal.ID.String()}, list(genealogy.ListOpts{ParentID: parent.ID}))
	assert.Equal(t, []string{edge.ID.String(), reversal.ID.String()}, list(genealogy.ListOpts{ChildID: child.ID}))
	assert.Equal(t, []string{second.ID.String()}, list(genealogy.ListOpts{TenantID: "t1", OperationRef: "op-2"}))
	assert.Equal(t, []string{reversal.ID.String()}, list(genealogy.ListOpts{Relationship: genealogy.RelReversal}))

	var got *genealogy.Record
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.GetGenealogy(ctx, reversal.ID)
		return err
	}))
	assert.Equal(t, edge.ID.String(), got.ReversesID.String())
	assert.Equal(t, "wrong lot", got.Reason)
	assertDecimal(t, "40", got.Quantity)

	err := s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetGenealogy(ctx, id.NewGenealogyID())
		return err
	})
	assert.ErrorIs(t, err, plate.ErrGenealogyNotFound)
}

func testAuditOrder(t *testing.T, s store.Store) {
	p := newPlate("t1", "LP-1", base)
	createPlates(t, s, p)

	entry := func(field audit.Field, from, to string, at time.Time) *audit.Entry {
		return &audit.Entry{
			ID: id.NewAuditID(), TenantID: "t1", LicensePlateID: p.ID,
			Field: field, From: from, To: to, ActorID: "u1", CreatedAt: at,
		}
	}
	early := entry(audit.FieldStatus, "available", "blocked", base)
	qa := entry(audit.FieldQAStatus, "passed", "failed", base.Add(time.Hour))
	cascade := entry(audit.FieldStatus, "blocked", "blocked", base.Add(time.Hour))
	cascade.Automatic = true
	write(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, e := range []*audit.Entry{early, qa, cascade} {
			if err := tx.AppendAudit(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	var got []*audit.Entry
	require.NoError(t, s.ReadTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.ListAudit(ctx, p.ID)
		return err
	}))
	require.Len(t, got, 3)
	assert.Equal(t, cascade.ID.String(), got[0].ID.String())
	assert.True(t, got[0].Automatic)
	assert.Equal(t, qa.ID.String(), got[1].ID.String())
	assert.Equal(t, audit.FieldQAStatus, got[1].Field)
	assert.Equal(t, "failed", got[1].To)
	assert.Equal(t, early.ID.String(), got[2].ID.String())
}
