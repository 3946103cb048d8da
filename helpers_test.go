package plate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/plate"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store/memory"
)

const (
	testTenant    = "tenant-a"
	testProduct   = "sku-1"
	testWarehouse = "wh-1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Today() time.Time {
	n := c.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

type harness struct {
	engine *plate.Engine
	store  *memory.Store
	clock  *testClock
	ctx    context.Context
}

func newHarness(t *testing.T, opts ...plate.Option) *harness {
	t.Helper()
	h := &harness{store: memory.New(), clock: newTestClock()}
	opts = append([]plate.Option{plate.WithClock(h.clock.Now)}, opts...)
	h.engine = plate.New(h.store, opts...)
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.engine.Stop() })
	h.ctx = plate.WithTenant(context.Background(), testTenant)
	return h
}

// create makes a plate of testProduct in testWarehouse with QA passed unless
// in says otherwise, then advances the clock one minute.
func (h *harness) create(t *testing.T, qty int64, in lp.CreateInput) *lp.LicensePlate {
	t.Helper()
	if in.ProductID == "" {
		in.ProductID = testProduct
	}
	if in.WarehouseID == "" {
		in.WarehouseID = testWarehouse
	}
	if in.UoM == "" {
		in.UoM = "ea"
	}
	if in.QAStatus == "" {
		in.QAStatus = lp.QAPassed
	}
	in.Quantity = plate.QtyInt(qty)
	p, err := h.engine.CreateLicensePlate(h.ctx, in)
	if err != nil {
		t.Fatalf("CreateLicensePlate: %v", err)
	}
	h.clock.Advance(time.Minute)
	return p
}

func (h *harness) reserve(t *testing.T, p *lp.LicensePlate, demand string, qty int64) *plate.ReserveResult {
	t.Helper()
	res, err := h.engine.Reserve(h.ctx, plate.ReserveRequest{
		LicensePlateID: p.ID,
		DemandRef:      demand,
		Quantity:       plate.QtyInt(qty),
		ActorID:        "user-1",
	})
	if err != nil {
		t.Fatalf("Reserve(%s, %d): %v", demand, qty, err)
	}
	return res
}

func (h *harness) get(t *testing.T, p *lp.LicensePlate) *lp.LicensePlate {
	t.Helper()
	got, err := h.engine.GetLicensePlate(h.ctx, p.ID)
	if err != nil {
		t.Fatalf("GetLicensePlate: %v", err)
	}
	return got
}

func (h *harness) free(t *testing.T, p *lp.LicensePlate) string {
	t.Helper()
	free, err := h.engine.FreeQuantity(h.ctx, p.ID)
	if err != nil {
		t.Fatalf("FreeQuantity: %v", err)
	}
	return free.String()
}

func wantCode(t *testing.T, err error, code plate.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", code)
	}
	if got := plate.CodeOf(err); got != code {
		t.Fatalf("expected %s, got %s (%v)", code, got, err)
	}
	var de *plate.DomainError
	if !errors.As(err, &de) {
		t.Fatalf("expected *plate.DomainError, got %T", err)
	}
}

func datePtr(t time.Time) *time.Time { return &t }
