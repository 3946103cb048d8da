// Package event describes the change notifications emitted after every
// committed license plate mutation.
package event

import (
	"time"

	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
)

// Kind names the operation that produced a change.
type Kind string

const (
	KindCreated       Kind = "lp.created"
	KindReserved      Kind = "lp.reserved"
	KindReleased      Kind = "lp.released"
	KindConsumed      Kind = "lp.consumed"
	KindSplit         Kind = "lp.split"
	KindMerged        Kind = "lp.merged"
	KindStatusChanged Kind = "lp.status_changed"
	KindQAChanged     Kind = "lp.qa_changed"
)

// ChangeEvent carries a plate's state before and after one committed
// mutation. Before is nil for newly created plates.
type ChangeEvent struct {
	ID             id.EventID        `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Kind           Kind              `json:"kind"`
	LicensePlateID id.LicensePlateID `json:"license_plate_id"`
	Before         *lp.LicensePlate  `json:"before,omitempty"`
	After          *lp.LicensePlate  `json:"after"`
	ActorID        string            `json:"actor_id,omitempty"`
	OperationRef   string            `json:"operation_ref,omitempty"`
	// Cascade is set when the Status Transition Controller changed the
	// status as a consequence of the triggering update.
	Cascade    bool      `json:"cascade,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New builds an event for the change from before to after.
func New(kind Kind, before, after *lp.LicensePlate, actorID string, at time.Time) *ChangeEvent {
	e := &ChangeEvent{
		ID:         id.NewEventID(),
		Kind:       kind,
		Before:     before.Clone(),
		After:      after.Clone(),
		ActorID:    actorID,
		OccurredAt: at.UTC(),
	}
	if after != nil {
		e.TenantID = after.TenantID
		e.LicensePlateID = after.ID
	}
	return e
}

// StatusChanged reports whether the event moved the plate's status.
func (e *ChangeEvent) StatusChanged() bool {
	return e.Before != nil && e.After != nil && e.Before.Status != e.After.Status
}
