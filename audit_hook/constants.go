package audithook

// Action constants for audit events.
const (
	// License plate actions
	ActionLicensePlateCreated = "license_plate.created"
	ActionStatusChanged       = "license_plate.status_changed"
	ActionStatusCascaded      = "license_plate.status_cascaded"
	ActionQAStatusChanged     = "license_plate.qa_changed"
	ActionSplit               = "license_plate.split"
	ActionMerged              = "license_plate.merged"

	// Reservation actions
	ActionReservationCreated  = "reservation.created"
	ActionReservationReleased = "reservation.released"
	ActionReservationConsumed = "reservation.consumed"
	ActionOverCommit          = "reservation.over_committed"

	// Engine actions
	ActionConflictRetry = "engine.conflict_retry"
)

// Resource constants for audit events.
const (
	ResourceLicensePlate = "license_plate"
	ResourceReservation  = "reservation"
	ResourceOperation    = "operation"
)

// Category constants for audit events.
const (
	CategoryInventory  = "inventory"
	CategoryQuality    = "quality"
	CategoryAllocation = "allocation"
	CategorySystem     = "system"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
