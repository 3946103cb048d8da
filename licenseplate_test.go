package plate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/xraph/plate"
	"github.com/xraph/plate/event"
	"github.com/xraph/plate/lp"
)

type changeWatcher struct {
	events []*event.ChangeEvent
}

func (w *changeWatcher) Name() string { return "change-watcher" }

func (w *changeWatcher) OnLicensePlateChanged(_ context.Context, e *event.ChangeEvent) error {
	w.events = append(w.events, e)
	return nil
}

func TestCreateLicensePlateDefaults(t *testing.T) {
	w := &changeWatcher{}
	h := newHarness(t, plate.WithPlugin(w))

	p, err := h.engine.CreateLicensePlate(h.ctx, lp.CreateInput{
		ProductID: testProduct, WarehouseID: testWarehouse, UoM: "ea", Quantity: plate.QtyInt(12),
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != lp.StatusAvailable || p.QAStatus != lp.QAPending || p.Source != lp.SourceManual || p.Version != 1 {
		t.Errorf("unexpected defaults: %s %s %s v%d", p.Status, p.QAStatus, p.Source, p.Version)
	}
	if p.TenantID != testTenant {
		t.Errorf("expected tenant %s, got %s", testTenant, p.TenantID)
	}
	if !strings.HasPrefix(p.Number, "LP-20240615-") || len(p.Number) != len("LP-20240615-")+8 {
		t.Errorf("unexpected number %q", p.Number)
	}
	if len(w.events) != 1 || w.events[0].Before != nil || w.events[0].Kind != event.KindCreated {
		t.Errorf("expected one created event, got %d", len(w.events))
	}
}

func TestCreateLicensePlateValidation(t *testing.T) {
	h := newHarness(t)
	base := lp.CreateInput{ProductID: testProduct, WarehouseID: testWarehouse, UoM: "ea", Quantity: plate.QtyInt(1)}

	tests := []struct {
		name   string
		modify func(*lp.CreateInput)
	}{
		{"MissingProduct", func(in *lp.CreateInput) { in.ProductID = "" }},
		{"MissingWarehouse", func(in *lp.CreateInput) { in.WarehouseID = "" }},
		{"MissingUoM", func(in *lp.CreateInput) { in.UoM = "" }},
		{"NegativeQuantity", func(in *lp.CreateInput) { in.Quantity = plate.QtyInt(-1) }},
		{"CreatedReserved", func(in *lp.CreateInput) { in.Status = lp.StatusReserved }},
		{"CreatedConsumed", func(in *lp.CreateInput) { in.Status = lp.StatusConsumed }},
		{"UnknownQA", func(in *lp.CreateInput) { in.QAStatus = "maybe" }},
		{"UnknownSource", func(in *lp.CreateInput) { in.Source = "found" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.modify(&in)
			_, err := h.engine.CreateLicensePlate(h.ctx, in)
			wantCode(t, err, plate.CodeInvalidInput)
		})
	}
}

func TestCreateLicensePlateDuplicateNumber(t *testing.T) {
	h := newHarness(t)
	h.create(t, 1, lp.CreateInput{Number: "PAL-001"})

	_, err := h.engine.CreateLicensePlate(h.ctx, lp.CreateInput{
		Number: "PAL-001", ProductID: testProduct, WarehouseID: testWarehouse, UoM: "ea", Quantity: plate.QtyInt(1),
	})
	wantCode(t, err, plate.CodeAlreadyExists)

	// Numbers are unique per tenant.
	other := plate.WithTenant(context.Background(), "tenant-b")
	if _, err := h.engine.CreateLicensePlate(other, lp.CreateInput{
		Number: "PAL-001", ProductID: testProduct, WarehouseID: testWarehouse, UoM: "ea", Quantity: plate.QtyInt(1),
	}); err != nil {
		t.Fatalf("expected the number to be free in another tenant, got %v", err)
	}
}

func TestListLicensePlates(t *testing.T) {
	h := newHarness(t)
	h.create(t, 1, lp.CreateInput{LocationID: "A-01", BatchNumber: "B-1"})
	h.create(t, 1, lp.CreateInput{LocationID: "A-02", BatchNumber: "B-1"})
	h.create(t, 1, lp.CreateInput{LocationID: "A-01", BatchNumber: "B-2", Status: lp.StatusQuarantine})

	tests := []struct {
		name string
		opts lp.ListOpts
		want int
	}{
		{"All", lp.ListOpts{}, 3},
		{"Location", lp.ListOpts{LocationIDs: []string{"A-01"}}, 2},
		{"Batch", lp.ListOpts{BatchNumber: "B-1"}, 2},
		{"Status", lp.ListOpts{Statuses: []lp.Status{lp.StatusQuarantine}}, 1},
		{"Limit", lp.ListOpts{Limit: 2}, 2},
		{"Offset", lp.ListOpts{Offset: 2}, 1},
		// The tenant always comes from the context.
		{"TenantOverride", lp.ListOpts{TenantID: "tenant-b"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.engine.ListLicensePlates(h.ctx, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d, got %d", tt.want, len(got))
			}
		})
	}
}
