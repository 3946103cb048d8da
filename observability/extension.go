// Package observability provides a metrics extension for Plate that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/plugin"
	"github.com/xraph/plate/reservation"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnLicensePlateCreated = (*MetricsExtension)(nil)
	_ plugin.OnLicensePlateChanged = (*MetricsExtension)(nil)
	_ plugin.OnStatusChanged       = (*MetricsExtension)(nil)
	_ plugin.OnQAStatusChanged     = (*MetricsExtension)(nil)
	_ plugin.OnReservationCreated  = (*MetricsExtension)(nil)
	_ plugin.OnReservationReleased = (*MetricsExtension)(nil)
	_ plugin.OnReservationConsumed = (*MetricsExtension)(nil)
	_ plugin.OnOverCommit          = (*MetricsExtension)(nil)
	_ plugin.OnSplit               = (*MetricsExtension)(nil)
	_ plugin.OnMerge               = (*MetricsExtension)(nil)
	_ plugin.OnConflictRetry       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Plate plugin to track inventory movement.
type MetricsExtension struct {
	factory MetricFactory

	// License plate metrics
	LicensePlateCreated Counter
	LicensePlateChanges Counter
	StatusChanged       Counter
	StatusCascaded      Counter
	QAFailed            Counter
	Blocked             Counter

	// Reservation metrics
	ReservationCreated  Counter
	ReservationReleased Counter
	ReservationConsumed Counter
	ReservedQuantity    Histogram
	ConsumedQuantity    Histogram
	OverCommits         Counter

	// Split/merge metrics
	Splits      Counter
	Merges      Counter
	MergeInputs Histogram

	// Concurrency metrics
	ConflictRetries Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		LicensePlateCreated: factory.Counter("plate.license_plate.created"),
		LicensePlateChanges: factory.Counter("plate.license_plate.changes"),
		StatusChanged:       factory.Counter("plate.license_plate.status_changed"),
		StatusCascaded:      factory.Counter("plate.license_plate.status_cascaded"),
		QAFailed:            factory.Counter("plate.license_plate.qa_failed"),
		Blocked:             factory.Counter("plate.license_plate.blocked"),

		ReservationCreated:  factory.Counter("plate.reservation.created"),
		ReservationReleased: factory.Counter("plate.reservation.released"),
		ReservationConsumed: factory.Counter("plate.reservation.consumed"),
		ReservedQuantity:    factory.Histogram("plate.reservation.quantity"),
		ConsumedQuantity:    factory.Histogram("plate.reservation.consumed_quantity"),
		OverCommits:         factory.Counter("plate.reservation.over_commits"),

		Splits:      factory.Counter("plate.split.total"),
		Merges:      factory.Counter("plate.merge.total"),
		MergeInputs: factory.Histogram("plate.merge.inputs"),

		ConflictRetries: factory.Counter("plate.conflict.retries"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// License plate hooks
// ──────────────────────────────────────────────────

// OnLicensePlateCreated implements plugin.OnLicensePlateCreated.
func (m *MetricsExtension) OnLicensePlateCreated(_ context.Context, _ *lp.LicensePlate) error {
	m.LicensePlateCreated.Inc()
	return nil
}

// OnLicensePlateChanged implements plugin.OnLicensePlateChanged.
func (m *MetricsExtension) OnLicensePlateChanged(_ context.Context, _ *event.ChangeEvent) error {
	m.LicensePlateChanges.Inc()
	return nil
}

// OnStatusChanged implements plugin.OnStatusChanged.
func (m *MetricsExtension) OnStatusChanged(_ context.Context, _ *lp.LicensePlate, _, to lp.Status, automatic bool) error {
	if automatic {
		m.StatusCascaded.Inc()
	} else {
		m.StatusChanged.Inc()
	}
	if to == lp.StatusBlocked {
		m.Blocked.Inc()
	}
	return nil
}

// OnQAStatusChanged implements plugin.OnQAStatusChanged.
func (m *MetricsExtension) OnQAStatusChanged(_ context.Context, _ *lp.LicensePlate, _, to lp.QAStatus) error {
	if to == lp.QAFailed {
		m.QAFailed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationCreated implements plugin.OnReservationCreated.
func (m *MetricsExtension) OnReservationCreated(_ context.Context, r *reservation.Reservation) error {
	m.ReservationCreated.Inc()
	m.ReservedQuantity.Observe(r.Quantity.InexactFloat64())
	return nil
}

// OnReservationReleased implements plugin.OnReservationReleased.
func (m *MetricsExtension) OnReservationReleased(_ context.Context, _ *reservation.Reservation) error {
	m.ReservationReleased.Inc()
	return nil
}

// OnReservationConsumed implements plugin.OnReservationConsumed.
func (m *MetricsExtension) OnReservationConsumed(_ context.Context, r *reservation.Reservation, _ *lp.LicensePlate) error {
	m.ReservationConsumed.Inc()
	m.ConsumedQuantity.Observe(r.Quantity.InexactFloat64())
	return nil
}

// OnOverCommit implements plugin.OnOverCommit.
func (m *MetricsExtension) OnOverCommit(_ context.Context, _ *reservation.Reservation, _ decimal.Decimal) error {
	m.OverCommits.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Split/merge hooks
// ──────────────────────────────────────────────────

// OnSplit implements plugin.OnSplit.
func (m *MetricsExtension) OnSplit(_ context.Context, _, _ *lp.LicensePlate, _ decimal.Decimal) error {
	m.Splits.Inc()
	return nil
}

// OnMerge implements plugin.OnMerge.
func (m *MetricsExtension) OnMerge(_ context.Context, _ *lp.LicensePlate, sources []*lp.LicensePlate) error {
	m.Merges.Inc()
	m.MergeInputs.Observe(float64(len(sources)))
	return nil
}

// ──────────────────────────────────────────────────
// Concurrency hooks
// ──────────────────────────────────────────────────

// OnConflictRetry implements plugin.OnConflictRetry.
func (m *MetricsExtension) OnConflictRetry(_ context.Context, _ string, _ int, _ error) error {
	m.ConflictRetries.Inc()
	return nil
}
