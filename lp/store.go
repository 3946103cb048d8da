package lp

import (
	"context"

	"github.com/xraph/plate/id"
)

// Store persists license plates inside a transaction. Every method returns
// copies; mutating a returned plate has no effect until UpdateLicensePlate.
type Store interface {
	CreateLicensePlate(ctx context.Context, p *LicensePlate) error
	GetLicensePlate(ctx context.Context, lpID id.LicensePlateID) (*LicensePlate, error)

	// LockLicensePlates loads the plates for update, acquiring them in
	// ascending ID order. The result is in that order too.
	LockLicensePlates(ctx context.Context, ids []id.LicensePlateID) ([]*LicensePlate, error)

	// UpdateLicensePlate writes p if the stored version equals
	// expectedVersion, then sets p.Version to expectedVersion+1.
	UpdateLicensePlate(ctx context.Context, p *LicensePlate, expectedVersion int64) error

	// ListLicensePlates returns matching plates ordered by creation time.
	ListLicensePlates(ctx context.Context, opts ListOpts) ([]*LicensePlate, error)
}
