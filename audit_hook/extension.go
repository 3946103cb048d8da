// Package audithook bridges Plate lifecycle events to an external audit
// trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit service directly. Callers inject a RecorderFunc adapter at wiring
// time. The engine's own field-level status trail lives in package audit;
// this extension is for organisation-wide audit logs.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/plugin"
	"github.com/xraph/plate/reservation"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnLicensePlateCreated = (*Extension)(nil)
	_ plugin.OnStatusChanged       = (*Extension)(nil)
	_ plugin.OnQAStatusChanged     = (*Extension)(nil)
	_ plugin.OnReservationCreated  = (*Extension)(nil)
	_ plugin.OnReservationReleased = (*Extension)(nil)
	_ plugin.OnReservationConsumed = (*Extension)(nil)
	_ plugin.OnOverCommit          = (*Extension)(nil)
	_ plugin.OnSplit               = (*Extension)(nil)
	_ plugin.OnMerge               = (*Extension)(nil)
	_ plugin.OnConflictRetry       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Plate lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// License plate hooks
// ──────────────────────────────────────────────────

// OnLicensePlateCreated implements plugin.OnLicensePlateCreated.
func (e *Extension) OnLicensePlateCreated(ctx context.Context, p *lp.LicensePlate) error {
	return e.record(ctx, ActionLicensePlateCreated, SeverityInfo, OutcomeSuccess,
		ResourceLicensePlate, p.ID.String(), p.TenantID, CategoryInventory, nil,
		"number", p.Number,
		"product_id", p.ProductID,
		"warehouse_id", p.WarehouseID,
		"quantity", p.Quantity.String(),
		"source", string(p.Source),
	)
}

// OnStatusChanged implements plugin.OnStatusChanged. Cascaded changes get
// their own action so they can be filtered separately.
func (e *Extension) OnStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.Status, automatic bool) error {
	action, severity := ActionStatusChanged, SeverityInfo
	if automatic {
		action = ActionStatusCascaded
	}
	if to == lp.StatusBlocked || to == lp.StatusQuarantine {
		severity = SeverityWarning
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceLicensePlate, p.ID.String(), p.TenantID, CategoryInventory, nil,
		"from", string(from),
		"to", string(to),
	)
}

// OnQAStatusChanged implements plugin.OnQAStatusChanged.
func (e *Extension) OnQAStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.QAStatus) error {
	severity := SeverityInfo
	if to == lp.QAFailed {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionQAStatusChanged, severity, OutcomeSuccess,
		ResourceLicensePlate, p.ID.String(), p.TenantID, CategoryQuality, nil,
		"from", string(from),
		"to", string(to),
		"batch_number", p.BatchNumber,
	)
}

// OnSplit implements plugin.OnSplit.
func (e *Extension) OnSplit(ctx context.Context, source, created *lp.LicensePlate, qty decimal.Decimal) error {
	return e.record(ctx, ActionSplit, SeverityInfo, OutcomeSuccess,
		ResourceLicensePlate, source.ID.String(), source.TenantID, CategoryInventory, nil,
		"created_id", created.ID.String(),
		"quantity", qty.String(),
		"remaining", source.Quantity.String(),
	)
}

// OnMerge implements plugin.OnMerge.
func (e *Extension) OnMerge(ctx context.Context, merged *lp.LicensePlate, sources []*lp.LicensePlate) error {
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID.String()
	}
	return e.record(ctx, ActionMerged, SeverityInfo, OutcomeSuccess,
		ResourceLicensePlate, merged.ID.String(), merged.TenantID, CategoryInventory, nil,
		"source_ids", ids,
		"quantity", merged.Quantity.String(),
	)
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (e *Extension) OnReservationCreated(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationCreated, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), r.TenantID, CategoryAllocation, nil,
		"license_plate_id", r.LicensePlateID.String(),
		"demand_ref", r.DemandRef,
		"quantity", r.Quantity.String(),
	)
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (e *Extension) OnReservationReleased(ctx context.Context, r *reservation.Reservation) error {
	return e.record(ctx, ActionReservationReleased, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), r.TenantID, CategoryAllocation, nil,
		"license_plate_id", r.LicensePlateID.String(),
		"demand_ref", r.DemandRef,
		"released_by", r.ReleasedBy,
	)
}

// OnReservationConsumed implements plugin.OnReservationConsumed.
func (e *Extension) OnReservationConsumed(ctx context.Context, r *reservation.Reservation, p *lp.LicensePlate) error {
	return e.record(ctx, ActionReservationConsumed, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), r.TenantID, CategoryAllocation, nil,
		"license_plate_id", p.ID.String(),
		"demand_ref", r.DemandRef,
		"quantity", r.Quantity.String(),
		"remaining", p.Quantity.String(),
	)
}

// OnOverCommit implements plugin.OnOverCommit.
func (e *Extension) OnOverCommit(ctx context.Context, r *reservation.Reservation, free decimal.Decimal) error {
	return e.record(ctx, ActionOverCommit, SeverityWarning, OutcomePartial,
		ResourceReservation, r.ID.String(), r.TenantID, CategoryAllocation, nil,
		"license_plate_id", r.LicensePlateID.String(),
		"quantity", r.Quantity.String(),
		"free", free.String(),
	)
}

// ──────────────────────────────────────────────────
// Engine hooks
// ──────────────────────────────────────────────────

// OnConflictRetry implements plugin.OnConflictRetry.
func (e *Extension) OnConflictRetry(ctx context.Context, op string, attempt int, err error) error {
	return e.record(ctx, ActionConflictRetry, SeverityWarning, OutcomeFailure,
		ResourceOperation, op, "", CategorySystem, err,
		"attempt", attempt,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, tenantID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		TenantID:   tenantID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
