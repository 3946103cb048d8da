package plate_test

import (
	"context"
	"testing"

	"github.com/xraph/plate"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
)

func TestSplit(t *testing.T) {
	h := newHarness(t)
	weight := plate.Qty("200")
	expiry := h.clock.Today().AddDate(0, 0, 90)
	src := h.create(t, 100, lp.CreateInput{
		LocationID: "A-01", BatchNumber: "B-7", ExpiryDate: &expiry, CatchWeight: &weight,
	})

	res, err := h.engine.Split(h.ctx, plate.SplitRequest{
		SourceID: src.ID, Quantity: plate.QtyInt(30), DestinationLocationID: "B-02",
		ActorID: "user-1", OperationRef: "move-1",
	})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}

	if sum := res.Remaining.Quantity.Add(res.New.Quantity); !sum.Equal(src.Quantity) {
		t.Fatalf("split lost quantity: %s + %s != %s", res.Remaining.Quantity, res.New.Quantity, src.Quantity)
	}
	n := res.New
	if n.Source != lp.SourceSplit || n.ParentID.String() != src.ID.String() {
		t.Errorf("new plate must record its split parent, got source %s parent %s", n.Source, n.ParentID)
	}
	if n.LocationID != "B-02" || res.Remaining.LocationID != "A-01" {
		t.Errorf("unexpected locations %s / %s", n.LocationID, res.Remaining.LocationID)
	}
	if n.BatchNumber != "B-7" || n.ExpiryDate == nil || !n.ExpiryDate.Equal(expiry) || n.QAStatus != lp.QAPassed {
		t.Errorf("new plate must inherit batch, expiry and QA, got %+v", n)
	}
	if n.CatchWeight == nil || n.CatchWeight.String() != "60" || res.Remaining.CatchWeight.String() != "140" {
		t.Errorf("catch weight must be prorated, got %v / %v", n.CatchWeight, res.Remaining.CatchWeight)
	}

	g := res.Genealogy
	if g.Relationship != genealogy.RelSplit || g.ParentID.String() != src.ID.String() ||
		g.ChildID.String() != n.ID.String() || g.Quantity.String() != "30" || g.OperationRef != "move-1" {
		t.Errorf("unexpected genealogy %+v", g)
	}
	if got := h.get(t, src); got.Quantity.String() != "70" || got.Version != src.Version+1 {
		t.Errorf("expected source at 70 v%d, got %s v%d", src.Version+1, got.Quantity, got.Version)
	}
}

func TestSplitRejects(t *testing.T) {
	h := newHarness(t)
	src := h.create(t, 100, lp.CreateInput{})
	blocked := h.create(t, 100, lp.CreateInput{Status: lp.StatusBlocked})
	full := h.create(t, 10, lp.CreateInput{})
	h.reserve(t, full, "d", 10)

	tests := []struct {
		name string
		req  plate.SplitRequest
		code plate.Code
	}{
		{"Zero", plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(0)}, plate.CodeInvalidSplitQuantity},
		{"Negative", plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(-5)}, plate.CodeInvalidSplitQuantity},
		{"Whole", plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(100)}, plate.CodeInvalidSplitQuantity},
		{"MoreThanOnHand", plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(150)}, plate.CodeInvalidSplitQuantity},
		{"Blocked", plate.SplitRequest{SourceID: blocked.ID, Quantity: plate.QtyInt(10)}, plate.CodeLPNotAvailable},
		{"Reserved", plate.SplitRequest{SourceID: full.ID, Quantity: plate.QtyInt(5)}, plate.CodeLPNotAvailable},
		{"Unknown", plate.SplitRequest{SourceID: id.NewLicensePlateID(), Quantity: plate.QtyInt(5)}, plate.CodeLPNotFound},
		{"Disabled", plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(5), Settings: &plate.SplitMergeSettings{MergeEnabled: true}}, plate.CodeSplitMergeDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Split(h.ctx, tt.req)
			wantCode(t, err, tt.code)
		})
	}

	if got := h.get(t, src); got.Quantity.String() != "100" {
		t.Errorf("rejected splits must not touch the source, got %s", got.Quantity)
	}
}

func TestSplitKeepsReservationsCovered(t *testing.T) {
	h := newHarness(t)
	src := h.create(t, 100, lp.CreateInput{})
	h.reserve(t, src, "d", 80)

	_, err := h.engine.Split(h.ctx, plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(30)})
	wantCode(t, err, plate.CodeInvalidSplitQuantity)

	res, err := h.engine.Split(h.ctx, plate.SplitRequest{SourceID: src.ID, Quantity: plate.QtyInt(20)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Remaining.Status != lp.StatusReserved {
		t.Errorf("remaining plate is fully reserved, expected reserved, got %s", res.Remaining.Status)
	}
}

func TestSplitMergeSettingsResolver(t *testing.T) {
	h := newHarness(t, plate.WithSettingsResolver(plate.StaticSettings{SplitEnabled: false, MergeEnabled: false}))
	a := h.create(t, 10, lp.CreateInput{})
	b := h.create(t, 10, lp.CreateInput{})

	_, err := h.engine.Split(h.ctx, plate.SplitRequest{SourceID: a.ID, Quantity: plate.QtyInt(5)})
	wantCode(t, err, plate.CodeSplitMergeDisabled)
	_, err = h.engine.Merge(h.ctx, plate.MergeRequest{IDs: []id.LicensePlateID{a.ID, b.ID}})
	wantCode(t, err, plate.CodeSplitMergeDisabled)

	// A per-call override wins over the resolver.
	_, err = h.engine.Split(h.ctx, plate.SplitRequest{
		SourceID: a.ID, Quantity: plate.QtyInt(5), Settings: &plate.SplitMergeSettings{SplitEnabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
}

type mergeWatcher struct {
	sources int
}

func (w *mergeWatcher) Name() string { return "merge-watcher" }

func (w *mergeWatcher) OnMerge(_ context.Context, _ *lp.LicensePlate, sources []*lp.LicensePlate) error {
	w.sources = len(sources)
	return nil
}

func TestMerge(t *testing.T) {
	w := &mergeWatcher{}
	h := newHarness(t, plate.WithPlugin(w))
	a := h.create(t, 40, lp.CreateInput{BatchNumber: "B-1", LocationID: "A-01"})
	b := h.create(t, 25, lp.CreateInput{BatchNumber: "B-1", LocationID: "A-02"})

	res, err := h.engine.Merge(h.ctx, plate.MergeRequest{
		IDs: []id.LicensePlateID{b.ID, a.ID}, DestinationLocationID: "C-01", OperationRef: "consolidate-1",
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	m := res.Merged
	if m.Quantity.String() != "65" || m.Source != lp.SourceMerge || m.LocationID != "C-01" || m.BatchNumber != "B-1" {
		t.Fatalf("unexpected merged plate %+v", m)
	}
	for _, src := range []*lp.LicensePlate{a, b} {
		got := h.get(t, src)
		if !got.Quantity.IsZero() || got.Status != lp.StatusConsumed || got.ConsumedByRef != m.ID.String() {
			t.Errorf("source %s: expected consumed at zero, got %s %s", src.Number, got.Quantity, got.Status)
		}
	}
	if len(res.Genealogy) != 2 {
		t.Fatalf("expected 2 merge records, got %d", len(res.Genealogy))
	}

	back, err := h.engine.BackwardTrace(h.ctx, m.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Nodes) != 2 {
		t.Errorf("expected both sources in the backward trace, got %d", len(back.Nodes))
	}
	if w.sources != 2 {
		t.Errorf("expected OnMerge with 2 sources, got %d", w.sources)
	}
}

func TestMergeIneligible(t *testing.T) {
	h := newHarness(t)
	today := h.clock.Today()
	base := h.create(t, 10, lp.CreateInput{BatchNumber: "B-1", ExpiryDate: datePtr(today.AddDate(0, 0, 30))})

	mk := func(in lp.CreateInput) *lp.LicensePlate {
		if in.BatchNumber == "" {
			in.BatchNumber = "B-1"
		}
		if in.ExpiryDate == nil {
			in.ExpiryDate = datePtr(today.AddDate(0, 0, 30))
		}
		return h.create(t, 10, in)
	}
	reserved := mk(lp.CreateInput{})
	h.reserve(t, reserved, "d", 1)

	tests := []struct {
		name  string
		other *lp.LicensePlate
	}{
		{"Product", mk(lp.CreateInput{ProductID: "sku-2"})},
		{"Warehouse", mk(lp.CreateInput{WarehouseID: "wh-2"})},
		{"UoM", mk(lp.CreateInput{UoM: "kg"})},
		{"Batch", mk(lp.CreateInput{BatchNumber: "B-2"})},
		{"Expiry", mk(lp.CreateInput{ExpiryDate: datePtr(today.AddDate(0, 0, 31))})},
		{"QA", mk(lp.CreateInput{QAStatus: lp.QAPending})},
		{"Blocked", mk(lp.CreateInput{Status: lp.StatusBlocked})},
		{"ActiveReservation", reserved},
		{"Self", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Merge(h.ctx, plate.MergeRequest{IDs: []id.LicensePlateID{base.ID, tt.other.ID}})
			wantCode(t, err, plate.CodeMergeIneligible)
		})
	}

	if got := h.get(t, base); got.Status != lp.StatusAvailable || got.Quantity.String() != "10" {
		t.Errorf("rejected merges must not touch inputs, got %s %s", got.Status, got.Quantity)
	}
}
