// Package id defines TypeID-based identity types for all Plate entities.
//
// Every entity in Plate uses a single ID struct with a prefix that identifies
// the entity type. IDs are K-sortable (UUIDv7-based), globally unique,
// and URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Plate entity types.
const (
	PrefixLicensePlate Prefix = "lp"  // License plate
	PrefixReservation  Prefix = "rsv" // Reservation against a plate
	PrefixGenealogy    Prefix = "gen" // Genealogy edge
	PrefixAudit        Prefix = "aud" // Status audit entry
	PrefixEvent        Prefix = "evt" // Change event
)

// ID is the primary identifier type for all Plate entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "lp_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Typed aliases
// ──────────────────────────────────────────────────

// LicensePlateID is a type-safe identifier for license plates (prefix: "lp").
type LicensePlateID = ID

// ReservationID is a type-safe identifier for reservations (prefix: "rsv").
type ReservationID = ID

// GenealogyID is a type-safe identifier for genealogy records (prefix: "gen").
type GenealogyID = ID

// AuditID is a type-safe identifier for audit entries (prefix: "aud").
type AuditID = ID

// EventID is a type-safe identifier for change events (prefix: "evt").
type EventID = ID

// NewLicensePlateID generates a new unique license plate ID.
func NewLicensePlateID() ID { return New(PrefixLicensePlate) }

// NewReservationID generates a new unique reservation ID.
func NewReservationID() ID { return New(PrefixReservation) }

// NewGenealogyID generates a new unique genealogy ID.
func NewGenealogyID() ID { return New(PrefixGenealogy) }

// NewAuditID generates a new unique audit entry ID.
func NewAuditID() ID { return New(PrefixAudit) }

// NewEventID generates a new unique change event ID.
func NewEventID() ID { return New(PrefixEvent) }

// ParseLicensePlateID parses a string and validates the "lp" prefix.
func ParseLicensePlateID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLicensePlate) }

// ParseReservationID parses a string and validates the "rsv" prefix.
func ParseReservationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixReservation) }

// ParseGenealogyID parses a string and validates the "gen" prefix.
func ParseGenealogyID(s string) (ID, error) { return ParseWithPrefix(s, PrefixGenealogy) }

// ParseAuditID parses a string and validates the "aud" prefix.
func ParseAuditID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAudit) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Less reports whether i sorts before other by string form. Multi-plate
// operations acquire locks in this order.
func (i ID) Less(other ID) bool {
	return i.String() < other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
