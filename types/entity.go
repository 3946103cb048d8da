// Package types provides common types used across Plate.
package types

import "time"

// Entity is the base type for all Plate entities with timestamps.
// Embed this in your domain types to get automatic timestamp handling.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity with current timestamps.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates a new Entity stamped with t (normalized to UTC).
func NewEntityAt(t time.Time) Entity {
	t = t.UTC()
	return Entity{
		CreatedAt: t,
		UpdatedAt: t,
	}
}

// Touch updates the UpdatedAt timestamp to now.
func (e *Entity) Touch() {
	e.TouchAt(time.Now())
}

// TouchAt updates the UpdatedAt timestamp to t.
func (e *Entity) TouchAt(t time.Time) {
	e.UpdatedAt = t.UTC()
}

// Age returns how long ago the entity was created.
func (e Entity) Age() time.Duration {
	return time.Since(e.CreatedAt)
}
