package lp_test

import (
	"testing"
	"time"

	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/types"
)

func TestCloneIsDeep(t *testing.T) {
	w := types.QtyInt(10)
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &lp.LicensePlate{
		ID:          id.NewLicensePlateID(),
		Quantity:    types.QtyInt(5),
		CatchWeight: &w,
		ExpiryDate:  &exp,
		Metadata:    map[string]string{"pallet": "euro"},
	}

	c := p.Clone()
	*c.CatchWeight = types.QtyInt(99)
	*c.ExpiryDate = exp.AddDate(1, 0, 0)
	c.Metadata["pallet"] = "us"

	if p.CatchWeight.String() != "10" || !p.ExpiryDate.Equal(exp) || p.Metadata["pallet"] != "euro" {
		t.Error("mutating a clone changed the original")
	}

	var nilPlate *lp.LicensePlate
	if nilPlate.Clone() != nil {
		t.Error("clone of nil must be nil")
	}
}

func TestEnums(t *testing.T) {
	if !lp.StatusQuarantine.IsValid() || lp.Status("archived").IsValid() {
		t.Error("Status.IsValid")
	}
	if !lp.QAFailed.IsValid() || lp.QAStatus("").IsValid() {
		t.Error("QAStatus.IsValid")
	}
	if !lp.SourceMerge.IsValid() || lp.Source("transfer").IsValid() {
		t.Error("Source.IsValid")
	}
}

func TestIsExpired(t *testing.T) {
	exp := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	p := &lp.LicensePlate{ExpiryDate: &exp}

	if p.IsExpired(time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)) {
		t.Error("a plate is usable through its expiry day")
	}
	if !p.IsExpired(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Error("a plate is expired the day after its expiry date")
	}
	if (&lp.LicensePlate{}).IsExpired(time.Now()) {
		t.Error("a plate without expiry never expires")
	}
}

func TestListOptsMatches(t *testing.T) {
	exp := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	p := &lp.LicensePlate{
		TenantID:    "t1",
		ProductID:   "sku-1",
		WarehouseID: "wh-1",
		LocationID:  "A-01",
		BatchNumber: "B-1",
		ExpiryDate:  &exp,
		Status:      lp.StatusAvailable,
		QAStatus:    lp.QAPassed,
	}
	before := exp.AddDate(0, 0, -1)

	tests := []struct {
		name string
		opts lp.ListOpts
		want bool
	}{
		{"Empty", lp.ListOpts{}, true},
		{"Tenant", lp.ListOpts{TenantID: "t2"}, false},
		{"Product", lp.ListOpts{ProductID: "sku-1"}, true},
		{"Warehouse", lp.ListOpts{WarehouseID: "wh-2"}, false},
		{"Locations", lp.ListOpts{LocationIDs: []string{"A-02", "A-01"}}, true},
		{"Statuses", lp.ListOpts{Statuses: []lp.Status{lp.StatusBlocked}}, false},
		{"QAStatuses", lp.ListOpts{QAStatuses: []lp.QAStatus{lp.QAPassed, lp.QAPending}}, true},
		{"Batch", lp.ListOpts{BatchNumber: "B-2"}, false},
		{"ExpiresOnDay", lp.ListOpts{ExpiresOnOrBefore: &exp}, true},
		{"ExpiresLater", lp.ListOpts{ExpiresOnOrBefore: &before}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Matches(p); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSortByCreation(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &lp.LicensePlate{ID: id.NewLicensePlateID(), Entity: types.NewEntityAt(t0.Add(time.Hour))}
	b := &lp.LicensePlate{ID: id.NewLicensePlateID(), Entity: types.NewEntityAt(t0)}
	c := &lp.LicensePlate{ID: id.NewLicensePlateID(), Entity: types.NewEntityAt(t0)}

	plates := []*lp.LicensePlate{a, c, b}
	lp.SortByCreation(plates)

	if plates[2] != a {
		t.Fatal("latest plate must sort last")
	}
	if !plates[0].ID.Less(plates[1].ID) {
		t.Error("equal creation times must be ordered by ID")
	}
}
