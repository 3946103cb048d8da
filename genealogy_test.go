package plate_test

import (
	"testing"
	"time"

	"github.com/xraph/plate"
	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
	"github.com/xraph/plate/lp"
)

func (h *harness) link(t *testing.T, parent, child *lp.LicensePlate, op string) *genealogy.Record {
	t.Helper()
	rec, err := h.engine.RecordGenealogy(h.ctx, plate.LinkInput{
		ParentID: parent.ID, ChildID: child.ID, Relationship: genealogy.RelProduction,
		Quantity: plate.QtyInt(1), OperationRef: op,
	})
	if err != nil {
		t.Fatalf("RecordGenealogy: %v", err)
	}
	return rec
}

func TestRecordGenealogyValidation(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 10, lp.CreateInput{})
	b := h.create(t, 10, lp.CreateInput{})
	c := h.create(t, 10, lp.CreateInput{})
	h.link(t, a, b, "op-1")
	h.link(t, b, c, "op-1")

	tests := []struct {
		name string
		in   plate.LinkInput
		code plate.Code
	}{
		{"SelfReference", plate.LinkInput{ParentID: a.ID, ChildID: a.ID, Relationship: genealogy.RelProduction}, plate.CodeGenealogyInvalid},
		{"Duplicate", plate.LinkInput{ParentID: a.ID, ChildID: b.ID, Relationship: genealogy.RelProduction, OperationRef: "op-1"}, plate.CodeGenealogyInvalid},
		{"ChildOlderThanParent", plate.LinkInput{ParentID: c.ID, ChildID: a.ID, Relationship: genealogy.RelProduction}, plate.CodeGenealogyInvalid},
		{"UnknownChild", plate.LinkInput{ParentID: a.ID, ChildID: id.NewLicensePlateID(), Relationship: genealogy.RelProduction}, plate.CodeLPNotFound},
		{"ReversalRelationship", plate.LinkInput{ParentID: a.ID, ChildID: c.ID, Relationship: genealogy.RelReversal}, plate.CodeInvalidInput},
		{"NegativeQuantity", plate.LinkInput{ParentID: a.ID, ChildID: c.ID, Relationship: genealogy.RelProduction, Quantity: plate.QtyInt(-1)}, plate.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.RecordGenealogy(h.ctx, tt.in)
			wantCode(t, err, tt.code)
		})
	}

	// Same edge under another operation is a distinct movement.
	h.link(t, a, b, "op-2")
}

func TestRecordGenealogyRejectsCycle(t *testing.T) {
	h := newHarness(t)
	x := h.create(t, 10, lp.CreateInput{})
	h.clock.Advance(-time.Minute)
	y := h.create(t, 10, lp.CreateInput{})
	if !x.CreatedAt.Equal(y.CreatedAt) {
		t.Fatalf("test setup: expected equal creation times")
	}
	h.link(t, x, y, "op")

	// Equal creation times pass the timestamp rule, so only the cycle check
	// rejects y -> x.
	_, err := h.engine.RecordGenealogy(h.ctx, plate.LinkInput{
		ParentID: y.ID, ChildID: x.ID, Relationship: genealogy.RelProduction, OperationRef: "op",
	})
	wantCode(t, err, plate.CodeGenealogyInvalid)
}

func TestTraces(t *testing.T) {
	h := newHarness(t)
	chain := make([]*lp.LicensePlate, 4)
	for i := range chain {
		chain[i] = h.create(t, 10, lp.CreateInput{})
	}
	for i := 0; i+1 < len(chain); i++ {
		h.link(t, chain[i], chain[i+1], "batch-1")
	}

	t.Run("ForwardTruncated", func(t *testing.T) {
		tr, err := h.engine.ForwardTrace(h.ctx, chain[0].ID, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(tr.Nodes) != 2 || !tr.HasMoreLevels {
			t.Fatalf("expected 2 nodes with more levels, got %d (%v)", len(tr.Nodes), tr.HasMoreLevels)
		}
		if tr.Nodes[1].LicensePlateID.String() != chain[2].ID.String() || tr.Nodes[1].Depth != 2 {
			t.Errorf("unexpected second node %+v", tr.Nodes[1])
		}
	})

	t.Run("ForwardComplete", func(t *testing.T) {
		tr, err := h.engine.ForwardTrace(h.ctx, chain[0].ID, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(tr.Nodes) != 3 || tr.HasMoreLevels || tr.MaxDepth != genealogy.DefaultMaxDepth {
			t.Fatalf("expected the whole chain, got %d nodes (%v)", len(tr.Nodes), tr.HasMoreLevels)
		}
	})

	t.Run("Backward", func(t *testing.T) {
		tr, err := h.engine.BackwardTrace(h.ctx, chain[3].ID, 50)
		if err != nil {
			t.Fatal(err)
		}
		if tr.MaxDepth != genealogy.MaxDepthLimit {
			t.Errorf("expected depth clamped to %d, got %d", genealogy.MaxDepthLimit, tr.MaxDepth)
		}
		if len(tr.Nodes) != 3 || tr.Nodes[2].LicensePlateID.String() != chain[0].ID.String() {
			t.Fatalf("expected the chain back to its root, got %d nodes", len(tr.Nodes))
		}
	})

	t.Run("FullTree", func(t *testing.T) {
		root, err := h.engine.FullTree(h.ctx, chain[0].ID, genealogy.Forward, 0)
		if err != nil {
			t.Fatal(err)
		}
		depth := 0
		for n := root; len(n.Children) > 0; n = n.Children[0] {
			depth++
		}
		if depth != 3 {
			t.Errorf("expected a tree 3 levels deep, got %d", depth)
		}
	})

	t.Run("ByOperation", func(t *testing.T) {
		recs, err := h.engine.ByOperation(h.ctx, "batch-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 3 {
			t.Errorf("expected 3 records, got %d", len(recs))
		}
	})

	t.Run("UnknownRoot", func(t *testing.T) {
		_, err := h.engine.ForwardTrace(h.ctx, id.NewLicensePlateID(), 0)
		wantCode(t, err, plate.CodeLPNotFound)
	})
}

func TestLinkOutput(t *testing.T) {
	h := newHarness(t)
	in1 := h.create(t, 10, lp.CreateInput{})
	in2 := h.create(t, 10, lp.CreateInput{})
	out := h.create(t, 1, lp.CreateInput{ProductID: "fg-1", Source: lp.SourceProduction})

	recs, err := h.engine.LinkOutput(h.ctx, out.ID, []plate.ConsumedInput{
		{LicensePlateID: in1.ID, Quantity: plate.QtyInt(4)},
		{LicensePlateID: in2.ID, Quantity: plate.QtyInt(6)},
	}, "mo-9", "op-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Relationship != genealogy.RelProduction {
		t.Fatalf("expected 2 production records, got %d", len(recs))
	}

	// A failing input rolls back the whole batch.
	_, err = h.engine.LinkOutput(h.ctx, out.ID, []plate.ConsumedInput{
		{LicensePlateID: in1.ID, Quantity: plate.QtyInt(1)},
		{LicensePlateID: id.NewLicensePlateID(), Quantity: plate.QtyInt(1)},
	}, "mo-10", "op-1")
	wantCode(t, err, plate.CodeLPNotFound)
	recs, err = h.engine.ByOperation(h.ctx, "mo-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records for the failed batch, got %d", len(recs))
	}
}

func TestReverseGenealogy(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, 10, lp.CreateInput{})
	b := h.create(t, 10, lp.CreateInput{})
	rec := h.link(t, a, b, "op-1")

	rev, err := h.engine.ReverseGenealogy(h.ctx, rec.ID, "user-1", "wrong pallet")
	if err != nil {
		t.Fatal(err)
	}
	if rev.Relationship != genealogy.RelReversal || rev.ReversesID.String() != rec.ID.String() {
		t.Fatalf("unexpected reversal %+v", rev)
	}

	tr, err := h.engine.ForwardTrace(h.ctx, a.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Nodes) != 0 {
		t.Errorf("reversed edges must not be traced, got %d nodes", len(tr.Nodes))
	}

	_, err = h.engine.ReverseGenealogy(h.ctx, rec.ID, "user-1", "")
	wantCode(t, err, plate.CodeGenealogyInvalid)
	_, err = h.engine.ReverseGenealogy(h.ctx, rev.ID, "user-1", "")
	wantCode(t, err, plate.CodeGenealogyInvalid)
	_, err = h.engine.ReverseGenealogy(h.ctx, id.NewGenealogyID(), "user-1", "")
	wantCode(t, err, plate.CodeGenealogyNotFound)

	// The same link may be recorded again once reversed.
	h.link(t, a, b, "op-1")
}
