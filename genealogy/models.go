// Package genealogy records the provenance of quantity as it moves between
// license plates. Records are append-only; a correction is a new reversal
// record pointing at the edge it cancels.
package genealogy

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/id"
)

// Relationship classifies a parent→child edge.
type Relationship string

const (
	RelSplit       Relationship = "split"
	RelMerge       Relationship = "merge"
	RelProduction  Relationship = "production"
	RelConsumption Relationship = "consumption"
	RelReversal    Relationship = "reversal"
)

// IsValid reports whether r is a known relationship.
func (r Relationship) IsValid() bool {
	switch r {
	case RelSplit, RelMerge, RelProduction, RelConsumption, RelReversal:
		return true
	}
	return false
}

// Record is one edge: Quantity moved from ParentID into ChildID.
type Record struct {
	ID           id.GenealogyID    `json:"id"`
	TenantID     string            `json:"tenant_id"`
	ParentID     id.LicensePlateID `json:"parent_id"`
	ChildID      id.LicensePlateID `json:"child_id"`
	Relationship Relationship      `json:"relationship"`
	Quantity     decimal.Decimal   `json:"quantity"`
	OperationRef string            `json:"operation_ref,omitempty"`
	ActorID      string            `json:"actor_id,omitempty"`
	ReversesID   id.GenealogyID    `json:"reverses_id,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ListOpts filters genealogy listings.
type ListOpts struct {
	TenantID     string
	ParentID     id.LicensePlateID
	ChildID      id.LicensePlateID
	OperationRef string
	Relationship Relationship
}

// Matches reports whether r passes every filter in o.
func (o ListOpts) Matches(r *Record) bool {
	if o.TenantID != "" && r.TenantID != o.TenantID {
		return false
	}
	if !o.ParentID.IsNil() && r.ParentID.String() != o.ParentID.String() {
		return false
	}
	if !o.ChildID.IsNil() && r.ChildID.String() != o.ChildID.String() {
		return false
	}
	if o.OperationRef != "" && r.OperationRef != o.OperationRef {
		return false
	}
	if o.Relationship != "" && r.Relationship != o.Relationship {
		return false
	}
	return true
}

// Effective drops reversal records and every edge a reversal in the same
// slice cancels. A reversal shares its edge's parent and child, so listing by
// either endpoint always returns both.
func Effective(records []*Record) []*Record {
	reversed := make(map[string]struct{})
	for _, r := range records {
		if r.Relationship == RelReversal && !r.ReversesID.IsNil() {
			reversed[r.ReversesID.String()] = struct{}{}
		}
	}
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if r.Relationship == RelReversal {
			continue
		}
		if _, ok := reversed[r.ID.String()]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}
