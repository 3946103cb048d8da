package plate

import (
	"context"
	"slices"

	"github.com/xraph/plate/audit"
	"github.com/xraph/plate/event"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/store"
)

// transitions is the status state machine. reserved is the engine-managed
// soft flag on an available plate; callers never move a plate into or out
// of it directly.
var transitions = map[lp.Status][]lp.Status{
	lp.StatusPending:    {lp.StatusAvailable, lp.StatusConsumed},
	lp.StatusAvailable:  {lp.StatusReserved, lp.StatusBlocked, lp.StatusQuarantine, lp.StatusConsumed},
	lp.StatusReserved:   {lp.StatusAvailable, lp.StatusConsumed},
	lp.StatusBlocked:    {lp.StatusAvailable, lp.StatusConsumed},
	lp.StatusQuarantine: {lp.StatusAvailable, lp.StatusConsumed},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to lp.Status) bool {
	return slices.Contains(transitions[from], to)
}

// manualBase maps the soft reserved flag back onto available for caller
// initiated transitions.
func manualBase(s lp.Status) lp.Status {
	if s == lp.StatusReserved {
		return lp.StatusAvailable
	}
	return s
}

func isSoftFlip(from, to lp.Status) bool {
	return (from == lp.StatusAvailable && to == lp.StatusReserved) ||
		(from == lp.StatusReserved && to == lp.StatusAvailable)
}

// ChangeStatus moves a plate to a new status on behalf of a caller and
// records one audit entry.
func (e *Engine) ChangeStatus(ctx context.Context, lpID id.LicensePlateID, to lp.Status, actorID, reason string) (*lp.LicensePlate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if !to.IsValid() {
		return nil, invalidInput("status", "unknown status %q", to)
	}
	if to == lp.StatusReserved {
		return nil, newError(CodeInvalidStatusTransition, "reserved is managed by the reservation manager")
	}

	var (
		out    *lp.LicensePlate
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "change_status", func(ctx context.Context, tx store.Tx) error {
		p, err := lockPlate(ctx, tx, tenantID, lpID)
		if err != nil {
			return err
		}
		from := manualBase(p.Status)
		if from == to || !CanTransition(from, to) {
			return newError(CodeInvalidStatusTransition, "cannot move license plate %s from %s to %s", p.Number, p.Status, to)
		}
		if to == lp.StatusConsumed && p.Quantity.IsPositive() {
			return newError(CodeInvalidStatusTransition, "license plate %s still holds %s %s", p.Number, p.Quantity, p.UoM)
		}
		if to == lp.StatusAvailable && p.QAStatus == lp.QAFailed {
			return newError(CodeInvalidStatusTransition, "license plate %s failed QA", p.Number)
		}

		after := p.Clone()
		after.Status = to
		ev, err := e.writePlate(ctx, tx, p, after, event.KindStatusChanged, actorID, reason)
		if err != nil {
			return err
		}
		out, events = after, []*event.ChangeEvent{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	return out, nil
}

// Block moves an available plate to blocked.
func (e *Engine) Block(ctx context.Context, lpID id.LicensePlateID, actorID, reason string) (*lp.LicensePlate, error) {
	return e.ChangeStatus(ctx, lpID, lp.StatusBlocked, actorID, reason)
}

// Unblock returns a blocked or quarantined plate to available.
func (e *Engine) Unblock(ctx context.Context, lpID id.LicensePlateID, actorID, reason string) (*lp.LicensePlate, error) {
	return e.ChangeStatus(ctx, lpID, lp.StatusAvailable, actorID, reason)
}

// Quarantine moves an available plate to quarantine.
func (e *Engine) Quarantine(ctx context.Context, lpID id.LicensePlateID, actorID, reason string) (*lp.LicensePlate, error) {
	return e.ChangeStatus(ctx, lpID, lp.StatusQuarantine, actorID, reason)
}

// UpdateQAStatus records a QA disposition. Failing QA blocks the plate;
// passing QA out of quarantine unblocks it. Each cascade adds a second audit
// entry for the status field in the same transaction.
func (e *Engine) UpdateQAStatus(ctx context.Context, lpID id.LicensePlateID, qa lp.QAStatus, actorID, reason string) (*lp.LicensePlate, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if !qa.IsValid() {
		return nil, invalidInput("qa_status", "unknown QA status %q", qa)
	}

	var (
		out    *lp.LicensePlate
		events []*event.ChangeEvent
	)
	err = e.inTx(ctx, "update_qa_status", func(ctx context.Context, tx store.Tx) error {
		p, err := lockPlate(ctx, tx, tenantID, lpID)
		if err != nil {
			return err
		}
		if p.IsConsumed() {
			return newError(CodeInvalidStatusTransition, "license plate %s is consumed", p.Number)
		}
		if p.QAStatus == qa {
			return newError(CodeInvalidStatusTransition, "license plate %s already has QA status %s", p.Number, qa)
		}

		after := p.Clone()
		after.QAStatus = qa
		ev, err := e.writePlate(ctx, tx, p, after, event.KindQAChanged, actorID, reason)
		if err != nil {
			return err
		}
		out, events = after, []*event.ChangeEvent{ev}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events)
	return out, nil
}

// AuditTrail returns a plate's status and QA history, newest first.
func (e *Engine) AuditTrail(ctx context.Context, lpID id.LicensePlateID) ([]*audit.Entry, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var out []*audit.Entry
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getPlate(ctx, tx, tenantID, lpID); err != nil {
			return err
		}
		out, err = tx.ListAudit(ctx, lpID)
		return err
	})
	return out, err
}

// ──────────────────────────────────────────────────
// Write path
// ──────────────────────────────────────────────────

// cascade applies the automatic QA-driven transitions to a pending change.
// It reports whether it changed the status.
func cascade(before, after *lp.LicensePlate) bool {
	if before.QAStatus == after.QAStatus || after.IsConsumed() {
		return false
	}
	switch {
	case after.QAStatus == lp.QAFailed && after.Status != lp.StatusBlocked:
		after.Status = lp.StatusBlocked
		return true
	case after.QAStatus == lp.QAPassed && before.QAStatus == lp.QAQuarantine && after.Status == lp.StatusBlocked:
		after.Status = lp.StatusAvailable
		return true
	}
	return false
}

// softFlag keeps the advisory reserved flag in step with reservations: an
// available plate with nothing left free is reserved, and a reserved plate
// with quantity free again is available.
func softFlag(ctx context.Context, tx store.Tx, p *lp.LicensePlate) error {
	if p.Status != lp.StatusAvailable && p.Status != lp.StatusReserved {
		return nil
	}
	reserved, err := reservedQuantity(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	fullyReserved := reserved.IsPositive() && !p.Quantity.GreaterThan(reserved)
	switch {
	case p.Status == lp.StatusAvailable && fullyReserved:
		p.Status = lp.StatusReserved
	case p.Status == lp.StatusReserved && !fullyReserved:
		p.Status = lp.StatusAvailable
	}
	return nil
}

// writePlate is the single write path for existing plates. It runs the
// cascade rules over the change, refreshes the soft flag, writes with the
// version check against before, and audits QA and status changes. after is
// updated in place, including its new version.
func (e *Engine) writePlate(ctx context.Context, tx store.Tx, before, after *lp.LicensePlate, kind event.Kind, actorID, reason string) (*event.ChangeEvent, error) {
	now := e.clock()

	cascaded := cascade(before, after)
	if err := softFlag(ctx, tx, after); err != nil {
		return nil, err
	}
	after.TouchAt(now)
	if err := tx.UpdateLicensePlate(ctx, after, before.Version); err != nil {
		return nil, err
	}

	if before.QAStatus != after.QAStatus {
		if err := e.appendAudit(ctx, tx, after, audit.FieldQAStatus, string(before.QAStatus), string(after.QAStatus), actorID, reason, false); err != nil {
			return nil, err
		}
	}
	if before.Status != after.Status && !isSoftFlip(before.Status, after.Status) {
		if err := e.appendAudit(ctx, tx, after, audit.FieldStatus, string(before.Status), string(after.Status), actorID, reason, cascaded); err != nil {
			return nil, err
		}
	}

	ev := event.New(kind, before, after, actorID, now)
	ev.Cascade = cascaded
	return ev, nil
}

func (e *Engine) appendAudit(ctx context.Context, tx store.Tx, p *lp.LicensePlate, field audit.Field, from, to, actorID, reason string, automatic bool) error {
	if automatic && reason == "" {
		reason = "automatic: qa status " + string(p.QAStatus)
	}
	return tx.AppendAudit(ctx, &audit.Entry{
		ID:             id.NewAuditID(),
		TenantID:       p.TenantID,
		LicensePlateID: p.ID,
		Field:          field,
		From:           from,
		To:             to,
		Reason:         reason,
		ActorID:        actorID,
		Automatic:      automatic,
		CreatedAt:      e.clock(),
	})
}
