package plate

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/store"
)

type genealogyInput struct {
	parentID     id.LicensePlateID
	childID      id.LicensePlateID
	relationship genealogy.Relationship
	quantity     decimal.Decimal
	operationRef string
	actorID      string
}

// LinkInput records one quantity movement between existing plates.
type LinkInput struct {
	ParentID     id.LicensePlateID
	ChildID      id.LicensePlateID
	Relationship genealogy.Relationship
	Quantity     decimal.Decimal
	OperationRef string
	ActorID      string
}

// edges reads effective genealogy inside tx.
func edges(tx store.Tx, tenantID string) genealogy.EdgeFunc {
	return func(ctx context.Context, lpID id.LicensePlateID, dir genealogy.Direction) ([]*genealogy.Record, error) {
		opts := genealogy.ListOpts{TenantID: tenantID}
		if dir == genealogy.Forward {
			opts.ParentID = lpID
		} else {
			opts.ChildID = lpID
		}
		recs, err := tx.ListGenealogy(ctx, opts)
		if err != nil {
			return nil, err
		}
		return genealogy.Effective(recs), nil
	}
}

// appendGenealogy validates and writes one edge: both plates exist in the
// tenant, the edge is not a self reference or a duplicate, it does not close
// a cycle, and the child is not older than the parent.
func (e *Engine) appendGenealogy(ctx context.Context, tx store.Tx, tenantID string, in genealogyInput) (*genealogy.Record, error) {
	if !in.relationship.IsValid() || in.relationship == genealogy.RelReversal {
		return nil, invalidInput("relationship", "unsupported relationship %q", in.relationship)
	}
	if in.quantity.IsNegative() {
		return nil, invalidInput("quantity", "must not be negative")
	}
	if in.parentID.IsNil() || in.childID.IsNil() {
		return nil, invalidInput("parent_id", "parent and child are required")
	}
	if in.parentID.String() == in.childID.String() {
		return nil, newError(CodeGenealogyInvalid, "license plate %s cannot be its own parent", in.parentID)
	}

	parent, err := getPlate(ctx, tx, tenantID, in.parentID)
	if err != nil {
		return nil, err
	}
	child, err := getPlate(ctx, tx, tenantID, in.childID)
	if err != nil {
		return nil, err
	}
	if child.CreatedAt.Before(parent.CreatedAt) {
		return nil, newError(CodeGenealogyInvalid, "child %s was created before parent %s", child.Number, parent.Number)
	}

	walk := edges(tx, tenantID)
	existing, err := walk(ctx, parent.ID, genealogy.Forward)
	if err != nil {
		return nil, err
	}
	for _, r := range existing {
		if r.ChildID.String() == child.ID.String() &&
			r.Relationship == in.relationship &&
			r.OperationRef == in.operationRef {
			return nil, newError(CodeGenealogyInvalid, "%s link %s → %s already recorded for %q",
				in.relationship, parent.Number, child.Number, in.operationRef)
		}
	}
	cycle, err := genealogy.Reachable(ctx, child.ID, parent.ID, walk)
	if err != nil {
		return nil, err
	}
	if cycle {
		return nil, newError(CodeGenealogyInvalid, "linking %s → %s would create a cycle", parent.Number, child.Number)
	}

	rec := &genealogy.Record{
		ID:           id.NewGenealogyID(),
		TenantID:     tenantID,
		ParentID:     parent.ID,
		ChildID:      child.ID,
		Relationship: in.relationship,
		Quantity:     in.quantity,
		OperationRef: in.operationRef,
		ActorID:      in.actorID,
		CreatedAt:    e.clock(),
	}
	if err := tx.AppendGenealogy(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordGenealogy appends one validated edge.
func (e *Engine) RecordGenealogy(ctx context.Context, in LinkInput) (*genealogy.Record, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var rec *genealogy.Record
	err = e.inTx(ctx, "record_genealogy", func(ctx context.Context, tx store.Tx) error {
		rec, err = e.appendGenealogy(ctx, tx, tenantID, genealogyInput{
			parentID:     in.ParentID,
			childID:      in.ChildID,
			relationship: in.Relationship,
			quantity:     in.Quantity,
			operationRef: in.OperationRef,
			actorID:      in.ActorID,
		})
		return err
	})
	return rec, err
}

// LinkConsumption records that quantity of a consumed plate went into an
// output plate.
func (e *Engine) LinkConsumption(ctx context.Context, consumedID, outputID id.LicensePlateID, qty decimal.Decimal, operationRef, actorID string) (*genealogy.Record, error) {
	return e.RecordGenealogy(ctx, LinkInput{
		ParentID:     consumedID,
		ChildID:      outputID,
		Relationship: genealogy.RelConsumption,
		Quantity:     qty,
		OperationRef: operationRef,
		ActorID:      actorID,
	})
}

// ConsumedInput is one input plate of a production output.
type ConsumedInput struct {
	LicensePlateID id.LicensePlateID
	Quantity       decimal.Decimal
}

// LinkOutput records a production output made from several inputs. All
// links are written in one transaction.
func (e *Engine) LinkOutput(ctx context.Context, outputID id.LicensePlateID, inputs []ConsumedInput, operationRef, actorID string) ([]*genealogy.Record, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, invalidInput("inputs", "at least one input is required")
	}
	var recs []*genealogy.Record
	err = e.inTx(ctx, "link_output", func(ctx context.Context, tx store.Tx) error {
		recs = make([]*genealogy.Record, 0, len(inputs))
		for _, in := range inputs {
			rec, err := e.appendGenealogy(ctx, tx, tenantID, genealogyInput{
				parentID:     in.LicensePlateID,
				childID:      outputID,
				relationship: genealogy.RelProduction,
				quantity:     in.Quantity,
				operationRef: operationRef,
				actorID:      actorID,
			})
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// ReverseGenealogy appends a reversal of an existing edge. The original
// record is kept; traces stop following it.
func (e *Engine) ReverseGenealogy(ctx context.Context, genID id.GenealogyID, actorID, reason string) (*genealogy.Record, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var rev *genealogy.Record
	err = e.inTx(ctx, "reverse_genealogy", func(ctx context.Context, tx store.Tx) error {
		orig, err := tx.GetGenealogy(ctx, genID)
		if errors.Is(err, ErrGenealogyNotFound) || (err == nil && orig.TenantID != tenantID) {
			return newError(CodeGenealogyNotFound, "genealogy record %s not found", genID)
		}
		if err != nil {
			return err
		}
		if orig.Relationship == genealogy.RelReversal {
			return newError(CodeGenealogyInvalid, "record %s is itself a reversal", genID)
		}
		siblings, err := tx.ListGenealogy(ctx, genealogy.ListOpts{
			TenantID:     tenantID,
			ParentID:     orig.ParentID,
			ChildID:      orig.ChildID,
			Relationship: genealogy.RelReversal,
		})
		if err != nil {
			return err
		}
		for _, s := range siblings {
			if s.ReversesID.String() == orig.ID.String() {
				return newError(CodeGenealogyInvalid, "record %s is already reversed", genID)
			}
		}

		rev = &genealogy.Record{
			ID:           id.NewGenealogyID(),
			TenantID:     tenantID,
			ParentID:     orig.ParentID,
			ChildID:      orig.ChildID,
			Relationship: genealogy.RelReversal,
			Quantity:     orig.Quantity,
			OperationRef: orig.OperationRef,
			ActorID:      actorID,
			ReversesID:   orig.ID,
			Reason:       reason,
			CreatedAt:    e.clock(),
		}
		return tx.AppendGenealogy(ctx, rev)
	})
	if err != nil {
		return nil, err
	}
	return rev, nil
}

// ForwardTrace follows a plate's quantity to everything made from it.
func (e *Engine) ForwardTrace(ctx context.Context, lpID id.LicensePlateID, maxDepth int) (*genealogy.Trace, error) {
	return e.trace(ctx, lpID, genealogy.Forward, maxDepth)
}

// BackwardTrace follows a plate back to everything it was made from.
func (e *Engine) BackwardTrace(ctx context.Context, lpID id.LicensePlateID, maxDepth int) (*genealogy.Trace, error) {
	return e.trace(ctx, lpID, genealogy.Backward, maxDepth)
}

func (e *Engine) trace(ctx context.Context, lpID id.LicensePlateID, dir genealogy.Direction, maxDepth int) (*genealogy.Trace, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	var t *genealogy.Trace
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getPlate(ctx, tx, tenantID, lpID); err != nil {
			return err
		}
		t, err = genealogy.Walk(ctx, lpID, dir, maxDepth, edges(tx, tenantID))
		return err
	})
	return t, err
}

// FullTree returns a plate's lineage as a nested tree.
func (e *Engine) FullTree(ctx context.Context, lpID id.LicensePlateID, dir genealogy.Direction, maxDepth int) (*genealogy.TreeNode, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if dir != genealogy.Forward && dir != genealogy.Backward {
		return nil, invalidInput("direction", "unknown direction %q", dir)
	}
	var root *genealogy.TreeNode
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := getPlate(ctx, tx, tenantID, lpID); err != nil {
			return err
		}
		root, err = genealogy.BuildTree(ctx, lpID, dir, maxDepth, edges(tx, tenantID))
		return err
	})
	return root, err
}

// ByOperation lists the effective records written by one business operation.
func (e *Engine) ByOperation(ctx context.Context, operationRef string) ([]*genealogy.Record, error) {
	tenantID, err := tenantScope(ctx)
	if err != nil {
		return nil, err
	}
	if operationRef == "" {
		return nil, invalidInput("operation_ref", "is required")
	}
	var out []*genealogy.Record
	err = e.inReadTx(ctx, func(ctx context.Context, tx store.Tx) error {
		recs, err := tx.ListGenealogy(ctx, genealogy.ListOpts{TenantID: tenantID, OperationRef: operationRef})
		if err != nil {
			return err
		}
		out = genealogy.Effective(recs)
		return nil
	})
	return out, err
}
