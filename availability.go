package plate

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// Strategy orders allocation candidates.
type Strategy string

const (
	// FIFO allocates the oldest plates first.
	FIFO Strategy = "fifo"
	// FEFO allocates the soonest-expiring plates first; plates without an
	// expiry date go last.
	FEFO Strategy = "fefo"
)

// AvailabilityFilters narrows an availability query.
type AvailabilityFilters struct {
	IncludeExpired bool
	// QAStatuses overrides the engine's acceptable QA statuses.
	QAStatuses      []lp.QAStatus
	LocationIDs     []string
	BatchNumber     string
	ExcludeIDs      []id.LicensePlateID
	MinFreeQuantity decimal.Decimal
	// AsOf is "today" for expiry checks. Zero means the engine clock.
	AsOf time.Time
}

// AvailabilityQuery asks which plates can satisfy a product in a warehouse.
type AvailabilityQuery struct {
	ProductID   string
	WarehouseID string
	Strategy    Strategy
	Filters     AvailabilityFilters
}

// Candidate is a plate with unreserved quantity.
type Candidate struct {
	LicensePlate *lp.LicensePlate `json:"license_plate"`
	FreeQuantity decimal.Decimal  `json:"free_quantity"`
}

// FindAvailable returns the plates that can be allocated for the query, in
// suggested allocation order. Free quantities are computed from the
// reservations live at call time.
func (e *Engine) FindAvailable(ctx context.Context, q AvailabilityQuery) ([]Candidate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	var out []Candidate
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out, err = e.findAvailable(ctx, tx, tenantID, q)
		return err
	})
	return out, err
}

func validateQuery(q AvailabilityQuery) error {
	if q.ProductID == "" {
		return invalidInput("product_id", "is required")
	}
	if q.WarehouseID == "" {
		return invalidInput("warehouse_id", "is required")
	}
	switch q.Strategy {
	case FIFO, FEFO, "":
	default:
		return invalidInput("strategy", "unknown strategy %q", q.Strategy)
	}
	return nil
}

func (e *Engine) findAvailable(ctx context.Context, tx store.Tx, tenantID string, q AvailabilityQuery) ([]Candidate, error) {
	qa := q.Filters.QAStatuses
	if len(qa) == 0 {
		qa = e.acceptableQA
	}
	asOf := q.Filters.AsOf
	if asOf.IsZero() {
		asOf = e.clock()
	}

	plates, err := tx.ListLicensePlates(ctx, lp.ListOpts{
		TenantID:    tenantID,
		ProductID:   q.ProductID,
		WarehouseID: q.WarehouseID,
		LocationIDs: q.Filters.LocationIDs,
		Statuses:    []lp.Status{lp.StatusAvailable},
		QAStatuses:  qa,
		BatchNumber: q.Filters.BatchNumber,
	})
	if err != nil {
		return nil, err
	}

	eligible := make([]*lp.LicensePlate, 0, len(plates))
	ids := make([]id.LicensePlateID, 0, len(plates))
	for _, p := range plates {
		if !p.Quantity.IsPositive() {
			continue
		}
		if !q.Filters.IncludeExpired && p.IsExpired(asOf) {
			continue
		}
		if slices.ContainsFunc(q.Filters.ExcludeIDs, func(x id.ID) bool { return x.String() == p.ID.String() }) {
			continue
		}
		eligible = append(eligible, p)
		ids = append(ids, p.ID)
	}
	if len(eligible) == 0 {
		return []Candidate{}, nil
	}

	reserved, err := tx.ActiveQuantities(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(eligible))
	for _, p := range eligible {
		free := p.Quantity.Sub(reserved[p.ID.String()])
		if !free.IsPositive() {
			continue
		}
		if q.Filters.MinFreeQuantity.IsPositive() && free.LessThan(q.Filters.MinFreeQuantity) {
			continue
		}
		out = append(out, Candidate{LicensePlate: p, FreeQuantity: free})
	}

	SortCandidates(out, q.Strategy)
	return out, nil
}

// SortCandidates orders candidates for allocation. FIFO is creation time
// ascending; FEFO is expiry ascending with missing expiries last, then
// creation time. Plate ID breaks remaining ties.
func SortCandidates(c []Candidate, s Strategy) {
	slices.SortStableFunc(c, func(a, b Candidate) int {
		pa, pb := a.LicensePlate, b.LicensePlate
		if s == FEFO {
			if c := compareExpiry(pa.ExpiryDate, pb.ExpiryDate); c != 0 {
				return c
			}
		}
		if c := pa.CreatedAt.Compare(pb.CreatedAt); c != 0 {
			return c
		}
		switch {
		case pa.ID.Less(pb.ID):
			return -1
		case pb.ID.Less(pa.ID):
			return 1
		}
		return 0
	})
}

func compareExpiry(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return types.Day(*a).Compare(types.Day(*b))
}

// FreeQuantity returns a plate's on-hand quantity minus its active
// reservations. It can be negative for over-committed plates.
func (e *Engine) FreeQuantity(ctx context.Context, lpID id.LicensePlateID) (decimal.Decimal, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var free decimal.Decimal
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := getPlate(ctx, tx, tenantID, lpID)
		if err != nil {
			return err
		}
		reserved, err := reservedQuantity(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		free = p.Quantity.Sub(reserved)
		return nil
	})
	return free, err
}

// TotalAvailable sums the free quantity of every allocatable plate of a
// product in a warehouse.
func (e *Engine) TotalAvailable(ctx context.Context, productID, warehouseID string) (decimal.Decimal, error) {
	candidates, err := e.FindAvailable(ctx, AvailabilityQuery{ProductID: productID, WarehouseID: warehouseID})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, c := range candidates {
		total = total.Add(c.FreeQuantity)
	}
	return total, nil
}

// ──────────────────────────────────────────────────
// Allocation suggestions
// ──────────────────────────────────────────────────

// AllocationLine is one plate's share of a suggested allocation.
type AllocationLine struct {
	LicensePlate *lp.LicensePlate `json:"license_plate"`
	Quantity     decimal.Decimal  `json:"quantity"`
	FreeQuantity decimal.Decimal  `json:"free_quantity"`
}

// Allocation is a greedy walk of the candidate list until the requirement
// is covered.
type Allocation struct {
	Lines    []AllocationLine `json:"lines"`
	Total    decimal.Decimal  `json:"total"`
	Shortage decimal.Decimal  `json:"shortage"`
}

// SuggestAllocation proposes which plates to reserve, in strategy order, to
// cover required. Nothing is reserved.
func (e *Engine) SuggestAllocation(ctx context.Context, q AvailabilityQuery, required decimal.Decimal) (*Allocation, error) {
	if !required.IsPositive() {
		return nil, invalidInput("required", "must be positive")
	}
	candidates, err := e.FindAvailable(ctx, q)
	if err != nil {
		return nil, err
	}
	return allocate(candidates, required), nil
}

func allocate(candidates []Candidate, required decimal.Decimal) *Allocation {
	a := &Allocation{Lines: []AllocationLine{}, Total: decimal.Zero}
	remaining := required
	for _, c := range candidates {
		if !remaining.IsPositive() {
			break
		}
		take := types.MinQty(c.FreeQuantity, remaining)
		a.Lines = append(a.Lines, AllocationLine{
			LicensePlate: c.LicensePlate,
			Quantity:     take,
			FreeQuantity: c.FreeQuantity,
		})
		a.Total = a.Total.Add(take)
		remaining = remaining.Sub(take)
	}
	a.Shortage = types.ClampZero(remaining)
	return a
}

// CoverageStatus summarizes reserved against required quantity.
type CoverageStatus string

const (
	CoverageNone    CoverageStatus = "none"
	CoveragePartial CoverageStatus = "partial"
	CoverageFull    CoverageStatus = "full"
	CoverageOver    CoverageStatus = "over"
)

// CoverageResult reports how much of a requirement is reserved.
type CoverageResult struct {
	Percent  int64           `json:"percent"`
	Shortage decimal.Decimal `json:"shortage"`
	Status   CoverageStatus  `json:"status"`
}

// Coverage compares a reserved quantity with a requirement. Percent is
// rounded to the nearest whole number. A non-positive requirement is covered
// by nothing and over-covered by anything.
func Coverage(required, reserved decimal.Decimal) CoverageResult {
	if !required.IsPositive() {
		if reserved.IsPositive() {
			return CoverageResult{Percent: 100, Shortage: decimal.Zero, Status: CoverageOver}
		}
		return CoverageResult{Percent: 0, Shortage: decimal.Zero, Status: CoverageNone}
	}

	res := CoverageResult{
		Percent:  reserved.Div(required).Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
		Shortage: types.ClampZero(required.Sub(reserved)),
	}
	switch {
	case !reserved.IsPositive():
		res.Status = CoverageNone
	case reserved.GreaterThan(required):
		res.Status = CoverageOver
	case reserved.Equal(required):
		res.Status = CoverageFull
	default:
		res.Status = CoveragePartial
	}
	return res
}
