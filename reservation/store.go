package reservation

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/id"
)

// Store persists reservations inside a transaction.
type Store interface {
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, rsvID id.ReservationID) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error

	// ListReservations returns matching reservations ordered by creation time.
	ListReservations(ctx context.Context, opts ListOpts) ([]*Reservation, error)

	// ActiveQuantities sums active reservation quantities per plate, keyed
	// by plate ID string. Plates without active reservations are absent.
	ActiveQuantities(ctx context.Context, lpIDs []id.LicensePlateID) (map[string]decimal.Decimal, error)
}
