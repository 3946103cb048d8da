package plate

import "github.com/xraph/plate/id"

// ID is the identifier type for all Plate entities.
type ID = id.ID

// LicensePlateID identifies a license plate.
type LicensePlateID = id.LicensePlateID

// ReservationID identifies a reservation.
type ReservationID = id.ReservationID
