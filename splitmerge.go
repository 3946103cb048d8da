package plate

import (
	"context"
	"maps"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/types"
)

// ──────────────────────────────────────────────────
// Split/Merge Operator
// ──────────────────────────────────────────────────

// SplitRequest moves part of a plate onto a new plate.
type SplitRequest struct {
	SourceID id.LicensePlateID
	Quantity decimal.Decimal
	// DestinationLocationID places the new plate. Empty keeps the source location.
	DestinationLocationID string
	ActorID               string
	OperationRef          string
	// Settings overrides the configured SettingsResolver for this call.
	Settings *SplitMergeSettings
}

// SplitResult holds both plates after a split and the edge linking them.
type SplitResult struct {
	Remaining *lp.LicensePlate  `json:"remaining"`
	New       *lp.LicensePlate  `json:"new"`
	Genealogy *genealogy.Record `json:"genealogy"`
}

// Split divides an available plate in two. The quantity must be strictly
// between zero and the source quantity, and what remains on the source must
// still cover its active reservations.
func (e *Engine) Split(ctx context.Context, req SplitRequest) (*SplitResult, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := e.splitMergeSettings(ctx, tenantID, req.Settings)
	if err != nil {
		return nil, err
	}
	if !settings.SplitEnabled {
		return nil, newError(CodeSplitMergeDisabled, "split is disabled")
	}
	if req.SourceID.IsNil() {
		return nil, invalidInput("source_id", "is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, newError(CodeInvalidSplitQuantity, "split quantity must be positive, got %s", req.Quantity)
	}

	var (
		res    *SplitResult
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "split", func(ctx context.Context, tx store.Tx) error {
		src, err := lockPlate(ctx, tx, tenantID, req.SourceID)
		if err != nil {
			return err
		}
		if src.Status != lp.StatusAvailable {
			return newError(CodeLPNotAvailable, "license plate %s is %s", src.Number, src.Status)
		}
		if !req.Quantity.LessThan(src.Quantity) {
			return newError(CodeInvalidSplitQuantity, "split quantity %s must be less than %s on %s",
				req.Quantity, src.Quantity, src.Number)
		}
		remaining := src.Quantity.Sub(req.Quantity)
		reserved, err := reservedQuantity(ctx, tx, src.ID)
		if err != nil {
			return err
		}
		if remaining.LessThan(reserved) {
			return newError(CodeInvalidSplitQuantity, "splitting %s leaves %s on %s, below the %s reserved",
				req.Quantity, remaining, src.Number, reserved)
		}

		now := e.clock()
		child := &lp.LicensePlate{
			Entity:          types.NewEntityAt(now),
			ID:              id.NewLicensePlateID(),
			TenantID:        tenantID,
			ProductID:       src.ProductID,
			WarehouseID:     src.WarehouseID,
			LocationID:      src.LocationID,
			Quantity:        req.Quantity,
			UoM:             src.UoM,
			BatchNumber:     src.BatchNumber,
			ExpiryDate:      src.ExpiryDate,
			ManufactureDate: src.ManufactureDate,
			Status:          lp.StatusAvailable,
			QAStatus:        src.QAStatus,
			Source:          lp.SourceSplit,
			ParentID:        src.ID,
			Version:         1,
			Metadata:        maps.Clone(src.Metadata),
		}
		if req.DestinationLocationID != "" {
			child.LocationID = req.DestinationLocationID
		}
		child.Number = plateNumber(child)

		after := src.Clone()
		after.Quantity = remaining
		if src.CatchWeight != nil {
			moved := src.CatchWeight.Mul(req.Quantity).Div(src.Quantity)
			left := src.CatchWeight.Sub(moved)
			child.CatchWeight, after.CatchWeight = &moved, &left
		}

		if err := tx.CreateLicensePlate(ctx, child); err != nil {
			return err
		}
		ev, err := e.writePlate(ctx, tx, src, after, event.KindSplit, req.ActorID, "")
		if err != nil {
			return err
		}
		ev.OperationRef = req.OperationRef

		rec := &genealogy.Record{
			ID:           id.NewGenealogyID(),
			TenantID:     tenantID,
			ParentID:     src.ID,
			ChildID:      child.ID,
			Relationship: genealogy.RelSplit,
			Quantity:     req.Quantity,
			OperationRef: req.OperationRef,
			ActorID:      req.ActorID,
			CreatedAt:    now,
		}
		if err := tx.AppendGenealogy(ctx, rec); err != nil {
			return err
		}

		created := event.New(event.KindSplit, nil, child, req.ActorID, now)
		created.OperationRef = req.OperationRef
		events = []*event.ChangeEvent{ev, created}
		res = &SplitResult{Remaining: after, New: child, Genealogy: rec}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	e.plugins.EmitSplit(ctx, res.Remaining, res.New, req.Quantity)
	return res, nil
}

// MergeRequest combines compatible plates into one new plate.
type MergeRequest struct {
	IDs                   []id.LicensePlateID
	DestinationLocationID string
	ActorID               string
	OperationRef          string
	Settings              *SplitMergeSettings
}

// MergeResult holds the new plate, the consumed sources and one edge per
// source.
type MergeResult struct {
	Merged    *lp.LicensePlate    `json:"merged"`
	Sources   []*lp.LicensePlate  `json:"sources"`
	Genealogy []*genealogy.Record `json:"genealogy"`
}

// Merge consumes two or more plates into a new one holding their summed
// quantity. Sources must share product, warehouse, unit of measure, batch,
// expiry day and QA status, be available, and carry no active reservations.
func (e *Engine) Merge(ctx context.Context, req MergeRequest) (*MergeResult, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := e.splitMergeSettings(ctx, tenantID, req.Settings)
	if err != nil {
		return nil, err
	}
	if !settings.MergeEnabled {
		return nil, newError(CodeSplitMergeDisabled, "merge is disabled")
	}
	ids := dedupe(req.IDs)
	if len(ids) < 2 {
		return nil, newError(CodeMergeIneligible, "merge needs at least two distinct license plates")
	}

	var (
		res    *MergeResult
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "merge", func(ctx context.Context, tx store.Tx) error {
		sources, err := lockPlates(ctx, tx, tenantID, ids...)
		if err != nil {
			return err
		}
		if err := checkMergeable(sources); err != nil {
			return err
		}
		active, err := tx.ActiveQuantities(ctx, ids)
		if err != nil {
			return err
		}
		for _, p := range sources {
			if q, ok := active[p.ID.String()]; ok && q.IsPositive() {
				return newError(CodeMergeIneligible, "license plate %s has active reservations", p.Number)
			}
		}

		now := e.clock()
		first := sources[0]
		merged := &lp.LicensePlate{
			Entity:          types.NewEntityAt(now),
			ID:              id.NewLicensePlateID(),
			TenantID:        tenantID,
			ProductID:       first.ProductID,
			WarehouseID:     first.WarehouseID,
			LocationID:      first.LocationID,
			Quantity:        decimal.Zero,
			UoM:             first.UoM,
			BatchNumber:     first.BatchNumber,
			ExpiryDate:      first.ExpiryDate,
			ManufactureDate: first.ManufactureDate,
			Status:          lp.StatusAvailable,
			QAStatus:        first.QAStatus,
			Source:          lp.SourceMerge,
			Version:         1,
		}
		if req.DestinationLocationID != "" {
			merged.LocationID = req.DestinationLocationID
		}
		weighed := true
		weight := decimal.Zero
		for _, p := range sources {
			merged.Quantity = merged.Quantity.Add(p.Quantity)
			if p.CatchWeight == nil {
				weighed = false
			} else {
				weight = weight.Add(*p.CatchWeight)
			}
			if p.ManufactureDate != nil && (merged.ManufactureDate == nil || p.ManufactureDate.Before(*merged.ManufactureDate)) {
				merged.ManufactureDate = p.ManufactureDate
			}
		}
		if weighed {
			merged.CatchWeight = &weight
		}
		merged.Number = plateNumber(merged)
		if err := tx.CreateLicensePlate(ctx, merged); err != nil {
			return err
		}

		created := event.New(event.KindMerged, nil, merged, req.ActorID, now)
		created.OperationRef = req.OperationRef
		events = []*event.ChangeEvent{created}
		res = &MergeResult{Merged: merged}

		for _, p := range sources {
			rec := &genealogy.Record{
				ID:           id.NewGenealogyID(),
				TenantID:     tenantID,
				ParentID:     p.ID,
				ChildID:      merged.ID,
				Relationship: genealogy.RelMerge,
				Quantity:     p.Quantity,
				OperationRef: req.OperationRef,
				ActorID:      req.ActorID,
				CreatedAt:    now,
			}
			if err := tx.AppendGenealogy(ctx, rec); err != nil {
				return err
			}

			after := p.Clone()
			after.Quantity = decimal.Zero
			after.Status = lp.StatusConsumed
			after.ConsumedByRef = merged.ID.String()
			if after.CatchWeight != nil {
				zero := decimal.Zero
				after.CatchWeight = &zero
			}
			ev, err := e.writePlate(ctx, tx, p, after, event.KindMerged, req.ActorID, "merged into "+merged.Number)
			if err != nil {
				return err
			}
			ev.OperationRef = req.OperationRef
			events = append(events, ev)
			res.Sources = append(res.Sources, after)
			res.Genealogy = append(res.Genealogy, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	e.plugins.EmitMerge(ctx, res.Merged, res.Sources)
	return res, nil
}

func checkMergeable(sources []*lp.LicensePlate) error {
	first := sources[0]
	for _, p := range sources {
		if p.Status != lp.StatusAvailable {
			return newError(CodeMergeIneligible, "license plate %s is %s", p.Number, p.Status)
		}
		switch {
		case p.ProductID != first.ProductID:
			return newError(CodeMergeIneligible, "license plates %s and %s hold different products", first.Number, p.Number)
		case p.WarehouseID != first.WarehouseID:
			return newError(CodeMergeIneligible, "license plates %s and %s are in different warehouses", first.Number, p.Number)
		case p.UoM != first.UoM:
			return newError(CodeMergeIneligible, "license plates %s and %s use different units", first.Number, p.Number)
		case p.BatchNumber != first.BatchNumber:
			return newError(CodeMergeIneligible, "license plates %s and %s belong to different batches", first.Number, p.Number)
		case !types.SameDay(p.ExpiryDate, first.ExpiryDate):
			return newError(CodeMergeIneligible, "license plates %s and %s expire on different days", first.Number, p.Number)
		case p.QAStatus != first.QAStatus:
			return newError(CodeMergeIneligible, "license plates %s and %s have different QA status", first.Number, p.Number)
		}
	}
	return nil
}

func dedupe(ids []id.LicensePlateID) []id.LicensePlateID {
	seen := make(map[string]struct{}, len(ids))
	out := make([]id.LicensePlateID, 0, len(ids))
	for _, i := range ids {
		if i.IsNil() {
			continue
		}
		if _, ok := seen[i.String()]; ok {
			continue
		}
		seen[i.String()] = struct{}{}
		out = append(out, i)
	}
	return out
}
