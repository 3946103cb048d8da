package plate

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// ReserveRequest claims quantity on one plate for a demand.
type ReserveRequest struct {
	LicensePlateID id.LicensePlateID
	DemandRef      string
	Quantity       decimal.Decimal
	ActorID        string

	// ExpectedProductID and ExpectedWarehouseID are checked against the
	// plate when no DemandResolver is configured. Empty values skip the check.
	ExpectedProductID   string
	ExpectedWarehouseID string

	// AllowOverCommit asks to proceed past the free quantity. It only takes
	// effect under OverCommitWarn.
	AllowOverCommit bool
}

// ReserveResult is a committed reservation.
type ReserveResult struct {
	Reservation  *reservation.Reservation `json:"reservation"`
	LicensePlate *lp.LicensePlate         `json:"license_plate"`
	FreeQuantity decimal.Decimal          `json:"free_quantity"`
	Warnings     []string                 `json:"warnings,omitempty"`
}

// Reserve places a reservation after checking, in order: the plate exists,
// product and warehouse match the demand, the plate is available with an
// acceptable QA status, and the free quantity covers the request.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case req.LicensePlateID.IsNil():
		return nil, invalidInput("license_plate_id", "is required")
	case req.DemandRef == "":
		return nil, invalidInput("demand_ref", "is required")
	case !req.Quantity.IsPositive():
		return nil, invalidInput("quantity", "must be positive")
	}
	expect, err := e.expectation(ctx, tenantID, req.DemandRef, DemandExpectation{
		ProductID:   req.ExpectedProductID,
		WarehouseID: req.ExpectedWarehouseID,
	})
	if err != nil {
		return nil, err
	}

	var (
		res    *ReserveResult
		free   decimal.Decimal
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "reserve", func(ctx context.Context, tx store.Tx) error {
		p, err := lockPlate(ctx, tx, tenantID, req.LicensePlateID)
		if err != nil {
			return err
		}
		if err := e.checkReservable(p, expect); err != nil {
			return err
		}

		reserved, err := reservedQuantity(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		free = p.Quantity.Sub(reserved)

		var warnings []string
		over := free.LessThan(req.Quantity)
		if over {
			if e.overCommit != OverCommitWarn || !req.AllowOverCommit {
				return newError(CodeExceedsAvailable, "requested %s %s but only %s free on license plate %s",
					req.Quantity, p.UoM, types.ClampZero(free), p.Number)
			}
			warnings = append(warnings, fmt.Sprintf("license plate %s over-committed: requested %s, free %s",
				p.Number, req.Quantity, types.ClampZero(free)))
		}

		now := e.clock()
		r := &reservation.Reservation{
			Entity:         types.NewEntityAt(now),
			ID:             id.NewReservationID(),
			TenantID:       tenantID,
			LicensePlateID: p.ID,
			DemandRef:      req.DemandRef,
			Quantity:       req.Quantity,
			Status:         reservation.StatusActive,
			CreatedBy:      req.ActorID,
			OverCommitted:  over,
		}
		if err := tx.CreateReservation(ctx, r); err != nil {
			return err
		}

		after := p.Clone()
		ev, err := e.writePlate(ctx, tx, p, after, event.KindReserved, req.ActorID, "")
		if err != nil {
			return err
		}
		ev.OperationRef = req.DemandRef

		res = &ReserveResult{
			Reservation:  r,
			LicensePlate: after,
			FreeQuantity: free.Sub(req.Quantity),
			Warnings:     warnings,
		}
		events = []*event.ChangeEvent{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	e.plugins.EmitReservationCreated(ctx, res.Reservation)
	if res.Reservation.OverCommitted {
		e.logger.Warn("reservation over-commits license plate",
			"license_plate", res.LicensePlate.Number,
			"demand_ref", req.DemandRef,
			"quantity", req.Quantity.String(),
			"free", free.String(),
		)
		e.plugins.EmitOverCommit(ctx, res.Reservation, free)
	}
	return res, nil
}

// expectation resolves what a demand expects to consume. The configured
// resolver wins over the request's own fields.
func (e *Engine) expectation(ctx context.Context, tenantID, demandRef string, fallback DemandExpectation) (DemandExpectation, error) {
	if e.demandResolver == nil {
		return fallback, nil
	}
	exp, err := e.demandResolver.ResolveDemand(ctx, tenantID, demandRef)
	if err != nil {
		return DemandExpectation{}, fmt.Errorf("plate: resolve demand %q: %w", demandRef, err)
	}
	return exp, nil
}

func (e *Engine) checkReservable(p *lp.LicensePlate, expect DemandExpectation) error {
	if expect.ProductID != "" && p.ProductID != expect.ProductID {
		return newError(CodeProductMismatch, "license plate %s holds product %s, demand expects %s",
			p.Number, p.ProductID, expect.ProductID)
	}
	if expect.WarehouseID != "" && p.WarehouseID != expect.WarehouseID {
		return newError(CodeWarehouseMismatch, "license plate %s is in warehouse %s, demand expects %s",
			p.Number, p.WarehouseID, expect.WarehouseID)
	}
	if p.Status != lp.StatusAvailable {
		return newError(CodeLPNotAvailable, "license plate %s is %s", p.Number, p.Status)
	}
	if !e.qaAcceptable(p.QAStatus) {
		return newError(CodeLPNotAvailable, "license plate %s has QA status %s", p.Number, p.QAStatus)
	}
	if p.IsExpired(e.clock()) {
		return newError(CodeLPNotAvailable, "license plate %s expired on %s", p.Number, p.ExpiryDate.Format("2006-01-02"))
	}
	return nil
}

// getReservation loads a reservation, hiding other tenants' reservations.
func getReservation(ctx context.Context, tx store.Tx, tenantID string, rsvID id.ReservationID) (*reservation.Reservation, error) {
	r, err := tx.GetReservation(ctx, rsvID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, newError(CodeReservationNotFound, "reservation %s not found", rsvID)
		}
		return nil, err
	}
	if r.TenantID != tenantID {
		return nil, newError(CodeReservationNotFound, "reservation %s not found", rsvID)
	}
	return r, nil
}

// lockReservation locks the reservation's plate and then re-reads the
// reservation, so the returned state cannot change before commit.
func lockReservation(ctx context.Context, tx store.Tx, tenantID string, rsvID id.ReservationID) (*reservation.Reservation, *lp.LicensePlate, error) {
	r, err := getReservation(ctx, tx, tenantID, rsvID)
	if err != nil {
		return nil, nil, err
	}
	p, err := lockPlate(ctx, tx, tenantID, r.LicensePlateID)
	if err != nil {
		return nil, nil, err
	}
	r, err = getReservation(ctx, tx, tenantID, rsvID)
	if err != nil {
		return nil, nil, err
	}
	return r, p, nil
}

// Release returns a reservation's quantity to the plate. Releasing a
// reservation that is no longer active fails with ALREADY_RELEASED.
func (e *Engine) Release(ctx context.Context, rsvID id.ReservationID, actorID string) (*reservation.Reservation, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}

	var (
		out    *reservation.Reservation
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "release", func(ctx context.Context, tx store.Tx) error {
		r, p, err := lockReservation(ctx, tx, tenantID, rsvID)
		if err != nil {
			return err
		}
		ev, err := e.releaseLocked(ctx, tx, r, p, actorID)
		if err != nil {
			return err
		}
		out, events = r, []*event.ChangeEvent{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	e.plugins.EmitReservationReleased(ctx, out)
	return out, nil
}

func (e *Engine) releaseLocked(ctx context.Context, tx store.Tx, r *reservation.Reservation, p *lp.LicensePlate, actorID string) (*event.ChangeEvent, error) {
	if !r.IsActive() {
		return nil, newError(CodeAlreadyReleased, "reservation %s is %s", r.ID, r.Status)
	}
	now := e.clock()
	r.Status = reservation.StatusReleased
	r.ReleasedBy = actorID
	r.ReleasedAt = &now
	r.TouchAt(now)
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	ev, err := e.writePlate(ctx, tx, p, p.Clone(), event.KindReleased, actorID, "")
	if err != nil {
		return nil, err
	}
	ev.OperationRef = r.DemandRef
	return ev, nil
}

// ReleaseByDemand releases every active reservation of a demand, for
// example when the demand is cancelled. Plates are locked in ascending ID
// order.
func (e *Engine) ReleaseByDemand(ctx context.Context, demandRef, actorID string) ([]*reservation.Reservation, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if demandRef == "" {
		return nil, invalidInput("demand_ref", "is required")
	}

	var (
		released []*reservation.Reservation
		events   []*event.ChangeEvent
	)
	err = e.inTx(ctx, "release_by_demand", func(ctx context.Context, tx store.Tx) error {
		released, events = nil, nil

		active, err := tx.ListReservations(ctx, reservation.ListOpts{
			TenantID:  tenantID,
			DemandRef: demandRef,
			Status:    reservation.StatusActive,
		})
		if err != nil || len(active) == 0 {
			return err
		}

		ids := make([]id.LicensePlateID, 0, len(active))
		seen := make(map[string]bool)
		for _, r := range active {
			if !seen[r.LicensePlateID.String()] {
				seen[r.LicensePlateID.String()] = true
				ids = append(ids, r.LicensePlateID)
			}
		}
		plates, err := lockPlates(ctx, tx, tenantID, ids...)
		if err != nil {
			return err
		}

		for _, p := range plates {
			current := p
			for _, r := range active {
				if r.LicensePlateID.String() != p.ID.String() {
					continue
				}
				fresh, err := getReservation(ctx, tx, tenantID, r.ID)
				if err != nil {
					return err
				}
				if !fresh.IsActive() {
					continue
				}
				ev, err := e.releaseLocked(ctx, tx, fresh, current, actorID)
				if err != nil {
					return err
				}
				current = ev.After.Clone()
				released = append(released, fresh)
				events = append(events, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	for _, r := range released {
		e.plugins.EmitReservationReleased(ctx, r)
	}
	return released, nil
}

// ConsumptionContext links a consumption to the plate it produced.
type ConsumptionContext struct {
	OutputLicensePlateID id.LicensePlateID
	OperationRef         string
}

// ConsumeRequest deducts a reservation's quantity from its plate.
type ConsumeRequest struct {
	ReservationID id.ReservationID
	ActorID       string
	Output        *ConsumptionContext
}

// ConsumeResult is a committed consumption.
type ConsumeResult struct {
	Reservation  *reservation.Reservation `json:"reservation"`
	LicensePlate *lp.LicensePlate         `json:"license_plate"`
	Genealogy    *genealogy.Record        `json:"genealogy,omitempty"`
}

// Consume deducts an active reservation from its plate and marks it
// consumed. A plate reaching zero becomes consumed. With an output context a
// consumption genealogy record is written in the same transaction.
func (e *Engine) Consume(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if req.Output != nil && req.Output.OutputLicensePlateID.IsNil() {
		return nil, invalidInput("output.license_plate_id", "is required")
	}

	var (
		res    *ConsumeResult
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "consume", func(ctx context.Context, tx store.Tx) error {
		r, p, err := lockReservation(ctx, tx, tenantID, req.ReservationID)
		if err != nil {
			return err
		}
		if !r.IsActive() {
			return newError(CodeAlreadyReleased, "reservation %s is %s", r.ID, r.Status)
		}
		if p.Status != lp.StatusAvailable && p.Status != lp.StatusReserved {
			return newError(CodeLPNotAvailable, "license plate %s is %s", p.Number, p.Status)
		}
		if p.Quantity.LessThan(r.Quantity) {
			return newError(CodeExceedsAvailable, "license plate %s holds %s, reservation needs %s", p.Number, p.Quantity, r.Quantity)
		}

		now := e.clock()
		r.Status = reservation.StatusConsumed
		r.ConsumedBy = req.ActorID
		r.ConsumedAt = &now
		r.TouchAt(now)
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}

		after := p.Clone()
		after.Quantity = p.Quantity.Sub(r.Quantity)
		if p.CatchWeight != nil && p.Quantity.IsPositive() {
			w := p.CatchWeight.Mul(after.Quantity).Div(p.Quantity)
			after.CatchWeight = &w
		}
		if after.Quantity.IsZero() {
			after.Status = lp.StatusConsumed
			after.ConsumedByRef = r.DemandRef
		}
		ev, err := e.writePlate(ctx, tx, p, after, event.KindConsumed, req.ActorID, "consumed by "+r.DemandRef)
		if err != nil {
			return err
		}
		ev.OperationRef = r.DemandRef

		res = &ConsumeResult{Reservation: r, LicensePlate: after}
		if req.Output != nil {
			rec, err := e.appendGenealogy(ctx, tx, tenantID, genealogyInput{
				parentID:     p.ID,
				childID:      req.Output.OutputLicensePlateID,
				relationship: genealogy.RelConsumption,
				quantity:     r.Quantity,
				operationRef: req.Output.OperationRef,
				actorID:      req.ActorID,
			})
			if err != nil {
				return err
			}
			res.Genealogy = rec
		}
		events = []*event.ChangeEvent{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	e.plugins.EmitReservationConsumed(ctx, res.Reservation, res.LicensePlate)
	return res, nil
}

// GetReservation returns a reservation of the caller's tenant.
func (e *Engine) GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var r *reservation.Reservation
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		r, err = getReservation(ctx, tx, tenantID, rsvID)
		return err
	})
	return r, err
}

// ListReservations lists reservations of the caller's tenant, oldest first.
func (e *Engine) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	opts.TenantID = tenantID
	var out []*reservation.Reservation
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		out, err = tx.ListReservations(ctx, opts)
		return err
	})
	return out, err
}

// AutoReserveRequest reserves a requirement across as many plates as needed.
type AutoReserveRequest struct {
	Query     AvailabilityQuery
	DemandRef string
	Quantity  decimal.Decimal
	ActorID   string
}

// AutoReserveResult lists the reservations made and what is still missing.
type AutoReserveResult struct {
	Reservations []*reservation.Reservation `json:"reservations"`
	Total        decimal.Decimal            `json:"total"`
	Shortage     decimal.Decimal            `json:"shortage"`
}

// AutoReserve walks the candidates in strategy order and reserves from each
// until the requirement is covered, all in one transaction. Running short is
// reported through Shortage, not as an error.
func (e *Engine) AutoReserve(ctx context.Context, req AutoReserveRequest) (*AutoReserveResult, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if req.DemandRef == "" {
		return nil, invalidInput("demand_ref", "is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, invalidInput("quantity", "must be positive")
	}
	if err := validateQuery(req.Query); err != nil {
		return nil, err
	}
	expect, err := e.expectation(ctx, tenantID, req.DemandRef, DemandExpectation{})
	if err != nil {
		return nil, err
	}
	if expect.ProductID != "" && expect.ProductID != req.Query.ProductID {
		return nil, newError(CodeProductMismatch, "demand %s expects product %s", req.DemandRef, expect.ProductID)
	}
	if expect.WarehouseID != "" && expect.WarehouseID != req.Query.WarehouseID {
		return nil, newError(CodeWarehouseMismatch, "demand %s expects warehouse %s", req.DemandRef, expect.WarehouseID)
	}

	var (
		res    *AutoReserveResult
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "auto_reserve", func(ctx context.Context, tx store.Tx) error {
		events = nil
		candidates, err := e.findAvailable(ctx, tx, tenantID, req.Query)
		if err != nil {
			return err
		}
		plan := allocate(candidates, req.Quantity)

		ids := make([]id.LicensePlateID, len(plan.Lines))
		for i, line := range plan.Lines {
			ids[i] = line.LicensePlate.ID
		}
		res = &AutoReserveResult{Reservations: []*reservation.Reservation{}, Total: decimal.Zero}
		if len(ids) == 0 {
			res.Shortage = req.Quantity
			return nil
		}
		locked, err := lockPlates(ctx, tx, tenantID, ids...)
		if err != nil {
			return err
		}
		byID := make(map[string]*lp.LicensePlate, len(locked))
		for _, p := range locked {
			byID[p.ID.String()] = p
		}

		// Free quantities are re-read under lock; the plan only fixes the order.
		remaining := req.Quantity
		now := e.clock()
		for _, line := range plan.Lines {
			p := byID[line.LicensePlate.ID.String()]
			if !remaining.IsPositive() {
				break
			}
			if p.Status != lp.StatusAvailable {
				continue
			}
			reserved, err := reservedQuantity(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			free := p.Quantity.Sub(reserved)
			if !free.IsPositive() {
				continue
			}
			take := types.MinQty(free, remaining)
			r := &reservation.Reservation{
				Entity:         types.NewEntityAt(now),
				ID:             id.NewReservationID(),
				TenantID:       tenantID,
				LicensePlateID: p.ID,
				DemandRef:      req.DemandRef,
				Quantity:       take,
				Status:         reservation.StatusActive,
				CreatedBy:      req.ActorID,
			}
			if err := tx.CreateReservation(ctx, r); err != nil {
				return err
			}
			ev, err := e.writePlate(ctx, tx, p, p.Clone(), event.KindReserved, req.ActorID, "")
			if err != nil {
				return err
			}
			ev.OperationRef = req.DemandRef
			events = append(events, ev)
			res.Reservations = append(res.Reservations, r)
			res.Total = res.Total.Add(take)
			remaining = remaining.Sub(take)
		}
		res.Shortage = types.ClampZero(remaining)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	for _, r := range res.Reservations {
		e.plugins.EmitReservationCreated(ctx, r)
	}
	return res, nil
}
