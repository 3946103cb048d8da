// Package plugin provides an extensible plugin system for Plate.
// Plugins can hook into license plate lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/event"
	"github.com/xraph/plate/lp"
	"github.com/xraph/plate/reservation"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// License plate hooks
// ──────────────────────────────────────────────────

// OnLicensePlateCreated is called after a plate is created by any path,
// including split and merge.
type OnLicensePlateCreated interface {
	Plugin
	OnLicensePlateCreated(ctx context.Context, p *lp.LicensePlate) error
}

// OnLicensePlateChanged receives every committed change event.
type OnLicensePlateChanged interface {
	Plugin
	OnLicensePlateChanged(ctx context.Context, e *event.ChangeEvent) error
}

// OnStatusChanged is called when a plate's status moves, manually or by cascade.
type OnStatusChanged interface {
	Plugin
	OnStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.Status, automatic bool) error
}

// OnQAStatusChanged is called when a plate's QA status moves.
type OnQAStatusChanged interface {
	Plugin
	OnQAStatusChanged(ctx context.Context, p *lp.LicensePlate, from, to lp.QAStatus) error
}

// ──────────────────────────────────────────────────
// Reservation hooks
// ──────────────────────────────────────────────────

// OnReservationCreated is called after a reservation commits.
type OnReservationCreated interface {
	Plugin
	OnReservationCreated(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationReleased is called after a reservation is released.
type OnReservationReleased interface {
	Plugin
	OnReservationReleased(ctx context.Context, r *reservation.Reservation) error
}

// OnReservationConsumed is called after reserved quantity is deducted.
type OnReservationConsumed interface {
	Plugin
	OnReservationConsumed(ctx context.Context, r *reservation.Reservation, p *lp.LicensePlate) error
}

// OnOverCommit is called when a reservation was accepted beyond the free
// quantity under the warn policy. free is the quantity that was available.
type OnOverCommit interface {
	Plugin
	OnOverCommit(ctx context.Context, r *reservation.Reservation, free decimal.Decimal) error
}

// ──────────────────────────────────────────────────
// Split/merge hooks
// ──────────────────────────────────────────────────

// OnSplit is called after a split commits.
type OnSplit interface {
	Plugin
	OnSplit(ctx context.Context, source, created *lp.LicensePlate, qty decimal.Decimal) error
}

// OnMerge is called after a merge commits.
type OnMerge interface {
	Plugin
	OnMerge(ctx context.Context, merged *lp.LicensePlate, sources []*lp.LicensePlate) error
}

// ──────────────────────────────────────────────────
// Concurrency hooks
// ──────────────────────────────────────────────────

// OnConflictRetry is called each time an operation is retried after losing
// an optimistic race.
type OnConflictRetry interface {
	Plugin
	OnConflictRetry(ctx context.Context, op string, attempt int, err error) error
}
