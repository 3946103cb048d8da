// Package audit holds the field-level status trail of license plates.
package audit

import (
	"context"
	"time"

	"github.com/xraph/plate/id"
)

// Field names the plate attribute an entry records.
type Field string

const (
	FieldStatus   Field = "status"
	FieldQAStatus Field = "qa_status"
)

// Entry records one field change on one plate.
type Entry struct {
	ID             id.AuditID        `json:"id"`
	TenantID       string            `json:"tenant_id"`
	LicensePlateID id.LicensePlateID `json:"license_plate_id"`
	Field          Field             `json:"field"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Reason         string            `json:"reason,omitempty"`
	ActorID        string            `json:"actor_id,omitempty"`
	// Automatic marks entries written by a cascade rather than a caller.
	Automatic bool      `json:"automatic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists audit entries.
type Store interface {
	AppendAudit(ctx context.Context, e *Entry) error

	// ListAudit returns a plate's entries newest first. Entries written at
	// the same instant come back in reverse insertion order.
	ListAudit(ctx context.Context, lpID id.LicensePlateID) ([]*Entry, error)
}
