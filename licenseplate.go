package plate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// ──────────────────────────────────────────────────
// LP Store
// ──────────────────────────────────────────────────

// CreateLicensePlate creates a plate in the caller's tenant.
func (e *Engine) CreateLicensePlate(ctx context.Context, in lp.CreateInput) (*lp.LicensePlate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	p, err := e.newPlate(tenantID, in)
	if err != nil {
		return nil, err
	}

	err = e.inTx(ctx, "create_license_plate", func(ctx context.Context, tx store.Tx) error {
		return tx.CreateLicensePlate(ctx, p)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, newError(CodeAlreadyExists, "license plate number %q already exists", p.Number)
		}
		return nil, err
	}

	e.publish(ctx, []*event.ChangeEvent{event.New(event.KindCreated, nil, p, in.ActorID, p.CreatedAt)})
	return p, nil
}

var creatableStatuses = []lp.Status{lp.StatusAvailable, lp.StatusPending, lp.StatusBlocked, lp.StatusQuarantine}

func (e *Engine) newPlate(tenantID string, in lp.CreateInput) (*lp.LicensePlate, error) {
	switch {
	case in.ProductID == "":
		return nil, invalidInput("product_id", "is required")
	case in.WarehouseID == "":
		return nil, invalidInput("warehouse_id", "is required")
	case in.UoM == "":
		return nil, invalidInput("uom", "is required")
	case in.Quantity.IsNegative():
		return nil, invalidInput("quantity", "must not be negative")
	}

	status := in.Status
	if status == "" {
		status = lp.StatusAvailable
	}
	if !slices.Contains(creatableStatuses, status) {
		return nil, invalidInput("status", "a plate cannot be created as %q", status)
	}
	qa := in.QAStatus
	if qa == "" {
		qa = lp.QAPending
	}
	if !qa.IsValid() {
		return nil, invalidInput("qa_status", "unknown QA status %q", qa)
	}
	source := in.Source
	if source == "" {
		source = lp.SourceManual
	}
	if !source.IsValid() {
		return nil, invalidInput("source", "unknown source %q", source)
	}

	now := e.clock()
	p := &lp.LicensePlate{
		Entity:          types.NewEntityAt(now),
		ID:              id.NewLicensePlateID(),
		TenantID:        tenantID,
		Number:          in.Number,
		ProductID:       in.ProductID,
		WarehouseID:     in.WarehouseID,
		LocationID:      in.LocationID,
		Quantity:        in.Quantity,
		UoM:             in.UoM,
		CatchWeight:     in.CatchWeight,
		BatchNumber:     in.BatchNumber,
		ExpiryDate:      types.DayPtr(in.ExpiryDate),
		ManufactureDate: types.DayPtr(in.ManufactureDate),
		Status:          status,
		QAStatus:        qa,
		Source:          source,
		Version:         1,
		Metadata:        in.Metadata,
	}
	if p.Number == "" {
		p.Number = plateNumber(p)
	}
	return p, nil
}

// plateNumber derives a human label such as LP-20240615-7ZQ3K1AB from the
// creation day and the tail of the plate's ID.
func plateNumber(p *lp.LicensePlate) string {
	s := p.ID.String()
	if len(s) > 8 {
		s = s[len(s)-8:]
	}
	return fmt.Sprintf("LP-%s-%s", p.CreatedAt.Format("20060102"), strings.ToUpper(s))
}

// GetLicensePlate returns a plate of the caller's tenant.
func (e *Engine) GetLicensePlate(ctx context.Context, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var p *lp.LicensePlate
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err = getPlate(ctx, tx, tenantID, lpID)
		return err
	})
	return p, err
}

// ListLicensePlates lists plates of the caller's tenant, oldest first.
func (e *Engine) ListLicensePlates(ctx context.Context, opts lp.ListOpts) ([]*lp.LicensePlate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	opts.TenantID = tenantID
	var out []*lp.LicensePlate
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out, err = tx.ListLicensePlates(ctx, opts)
		return err
	})
	return out, err
}

// ExpiringWithin lists plates still holding stock whose expiry date falls
// within the next days days, including already expired ones, soonest first.
func (e *Engine) ExpiringWithin(ctx context.Context, days int) ([]*lp.LicensePlate, error) {
	if days < 0 {
		return nil, invalidInput("days", "must not be negative")
	}
	horizon := types.Day(e.clock()).AddDate(0, 0, days)
	plates, err := e.ListLicensePlates(ctx, lp.ListOpts{
		Statuses: []lp.Status{
			lp.StatusPending, lp.StatusAvailable, lp.StatusReserved,
			lp.StatusBlocked, lp.StatusQuarantine,
		},
		ExpiresOnOrBefore: &horizon,
	})
	if err != nil {
		return nil, err
	}
	out := plates[:0]
	for _, p := range plates {
		if p.Quantity.IsPositive() {
			out = append(out, p)
		}
	}
	candidates := make([]Candidate, len(out))
	for i, p := range out {
		candidates[i] = Candidate{LicensePlate: p}
	}
	SortCandidates(candidates, FEFO)
	for i, c := range candidates {
		out[i] = c.LicensePlate
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Transaction helpers
// ──────────────────────────────────────────────────

// getPlate loads a plate, hiding plates of other tenants.
func getPlate(ctx context.Context, tx store.Tx, tenantID string, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	p, err := tx.GetLicensePlate(ctx, lpID)
	if err != nil {
		if errors.Is(err, ErrLPNotFound) {
			return nil, newError(CodeLPNotFound, "license plate %s not found", lpID)
		}
		return nil, err
	}
	if p.TenantID != tenantID {
		return nil, newError(CodeLPNotFound, "license plate %s not found", lpID)
	}
	return p, nil
}

// lockPlates locks plates in ascending ID order and checks tenancy. The
// result follows the lock order, not the input order.
func lockPlates(ctx context.Context, tx store.Tx, tenantID string, ids ...id.LicensePlateID) ([]*lp.LicensePlate, error) {
	plates, err := tx.LockLicensePlates(ctx, ids)
	if err != nil {
		if errors.Is(err, ErrLPNotFound) {
			return nil, newError(CodeLPNotFound, "license plate not found")
		}
		return nil, err
	}
	for _, p := range plates {
		if p.TenantID != tenantID {
			return nil, newError(CodeLPNotFound, "license plate %s not found", p.ID)
		}
	}
	return plates, nil
}

func lockPlate(ctx context.Context, tx store.Tx, tenantID string, lpID id.LicensePlateID) (*lp.LicensePlate, error) {
	plates, err := lockPlates(ctx, tx, tenantID, lpID)
	if err != nil {
		return nil, err
	}
	if len(plates) != 1 {
		return nil, newError(CodeLPNotFound, "license plate %s not found", lpID)
	}
	return plates[0], nil
}

func reservedQuantity(ctx context.Context, tx store.Tx, lpID id.LicensePlateID) (decimal.Decimal, error) {
	totals, err := tx.ActiveQuantities(ctx, []id.LicensePlateID{lpID})
	if err != nil {
		return decimal.Zero, err
	}
	return totals[lpID.String()], nil
}

// publish hands committed changes to plugins.
func (e *Engine) publish(ctx context.Context, events []*event.ChangeEvent) {
	for _, ev := range events {
		if ev.Before == nil {
			e.plugins.EmitLicensePlateCreated(ctx, ev.After)
		}
		e.plugins.EmitLicensePlateChanged(ctx, ev)
		if ev.Before == nil {
			continue
		}
		if ev.Before.QAStatus != ev.After.QAStatus {
			e.plugins.EmitQAStatusChanged(ctx, ev.After, ev.Before.QAStatus, ev.After.QAStatus)
		}
		if ev.StatusChanged() {
			e.plugins.EmitStatusChanged(ctx, ev.After, ev.Before.Status, ev.After.Status, ev.Cascade)
		}
	}
}
