package genealogy_test

import (
	"context"
	"testing"

	"github.com/xraph/plate/genealogy"
	"github.com/xraph/plate/id"
)

// graph is an in-memory edge list.
type graph []*genealogy.Record

func (g *graph) add(parent, child id.LicensePlateID) *genealogy.Record {
	r := &genealogy.Record{ID: id.NewGenealogyID(), ParentID: parent, ChildID: child, Relationship: genealogy.RelSplit}
	*g = append(*g, r)
	return r
}

func (g graph) edges(_ context.Context, lpID id.LicensePlateID, dir genealogy.Direction) ([]*genealogy.Record, error) {
	var out []*genealogy.Record
	for _, r := range genealogy.Effective(g) {
		if dir == genealogy.Forward && r.ParentID.String() == lpID.String() ||
			dir == genealogy.Backward && r.ChildID.String() == lpID.String() {
			out = append(out, r)
		}
	}
	return out, nil
}

func plates(n int) []id.LicensePlateID {
	out := make([]id.LicensePlateID, n)
	for i := range out {
		out[i] = id.NewLicensePlateID()
	}
	return out
}

func TestClampDepth(t *testing.T) {
	tests := []struct{ in, want int }{
		{-1, genealogy.DefaultMaxDepth},
		{0, genealogy.DefaultMaxDepth},
		{1, 1},
		{20, 20},
		{21, genealogy.MaxDepthLimit},
	}
	for _, tt := range tests {
		if got := genealogy.ClampDepth(tt.in); got != tt.want {
			t.Errorf("ClampDepth(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWalkDiamond(t *testing.T) {
	// p0 splits into p1 and p2, which merge into p3.
	p := plates(4)
	var g graph
	g.add(p[0], p[1])
	g.add(p[0], p[2])
	g.add(p[1], p[3])
	g.add(p[2], p[3])

	tr, err := genealogy.Walk(context.Background(), p[0], genealogy.Forward, 0, g.edges)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Nodes) != 3 {
		t.Fatalf("each plate is visited once, expected 3 nodes, got %d", len(tr.Nodes))
	}
	if tr.Nodes[2].LicensePlateID.String() != p[3].String() || tr.Nodes[2].Depth != 2 {
		t.Errorf("unexpected last node %+v", tr.Nodes[2])
	}

	tree, err := genealogy.BuildTree(context.Background(), p[0], genealogy.Forward, 0, g.edges)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 2 || len(tree.Children[0].Children) != 1 || len(tree.Children[1].Children) != 1 {
		t.Error("the tree repeats p3 under both branches")
	}
}

func TestWalkHasMoreLevels(t *testing.T) {
	p := plates(3)
	var g graph
	g.add(p[0], p[1])
	g.add(p[1], p[2])

	tr, err := genealogy.Walk(context.Background(), p[2], genealogy.Backward, 1, g.edges)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Nodes) != 1 || !tr.HasMoreLevels {
		t.Fatalf("expected 1 node and more levels, got %d (%v)", len(tr.Nodes), tr.HasMoreLevels)
	}

	tr, err = genealogy.Walk(context.Background(), p[2], genealogy.Backward, 2, g.edges)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Nodes) != 2 || tr.HasMoreLevels {
		t.Fatalf("expected 2 nodes and no more levels, got %d (%v)", len(tr.Nodes), tr.HasMoreLevels)
	}
}

func TestReachable(t *testing.T) {
	p := plates(4)
	var g graph
	g.add(p[0], p[1])
	edge := g.add(p[1], p[2])

	ctx := context.Background()
	tests := []struct {
		name     string
		from, to id.LicensePlateID
		want     bool
	}{
		{"Self", p[0], p[0], true},
		{"Direct", p[0], p[1], true},
		{"Transitive", p[0], p[2], true},
		{"Backwards", p[2], p[0], false},
		{"Disconnected", p[0], p[3], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := genealogy.Reachable(ctx, tt.from, tt.to, g.edges)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	g = append(g, &genealogy.Record{
		ID: id.NewGenealogyID(), ParentID: p[1], ChildID: p[2],
		Relationship: genealogy.RelReversal, ReversesID: edge.ID,
	})
	if got, _ := genealogy.Reachable(ctx, p[0], p[2], g.edges); got {
		t.Error("a reversed edge must not connect plates")
	}
}
