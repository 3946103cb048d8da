// Package reservation defines claims placed against a license plate's
// quantity by downstream demand.
package reservation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/id"
	"github.com/xraph/plate/types"
)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusActive   Status = "active"
	StatusReleased Status = "released"
	StatusConsumed Status = "consumed"
)

// Reservation is a soft claim on part of one plate's quantity. Its quantity
// is immutable; a change is a release followed by a new reservation.
type Reservation struct {
	types.Entity
	ID             id.ReservationID  `json:"id"`
	TenantID       string            `json:"tenant_id"`
	LicensePlateID id.LicensePlateID `json:"license_plate_id"`
	DemandRef      string            `json:"demand_ref"`
	Quantity       decimal.Decimal   `json:"quantity"`
	Status         Status            `json:"status"`
	CreatedBy      string            `json:"created_by"`
	OverCommitted  bool              `json:"over_committed,omitempty"`
	ReleasedBy     string            `json:"released_by,omitempty"`
	ReleasedAt     *time.Time        `json:"released_at,omitempty"`
	ConsumedBy     string            `json:"consumed_by,omitempty"`
	ConsumedAt     *time.Time        `json:"consumed_at,omitempty"`
}

// IsActive reports whether the reservation still holds quantity.
func (r *Reservation) IsActive() bool {
	return r.Status == StatusActive
}

// Clone returns a deep copy of the reservation.
func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	c := *r
	if r.ReleasedAt != nil {
		t := *r.ReleasedAt
		c.ReleasedAt = &t
	}
	if r.ConsumedAt != nil {
		t := *r.ConsumedAt
		c.ConsumedAt = &t
	}
	return &c
}

// ListOpts filters reservation listings.
type ListOpts struct {
	TenantID       string
	LicensePlateID id.LicensePlateID
	DemandRef      string
	Status         Status
	Limit          int
	Offset         int
}

// Matches reports whether r passes every filter in o.
func (o ListOpts) Matches(r *Reservation) bool {
	if o.TenantID != "" && r.TenantID != o.TenantID {
		return false
	}
	if !o.LicensePlateID.IsNil() && r.LicensePlateID.String() != o.LicensePlateID.String() {
		return false
	}
	if o.DemandRef != "" && r.DemandRef != o.DemandRef {
		return false
	}
	if o.Status != "" && r.Status != o.Status {
		return false
	}
	return true
}
