package genealogy

import (
	"context"

	"github.com/xraph/plate/id"
)

// Direction selects which way a trace follows edges.
type Direction string

const (
	// Forward follows parent→child: where did this quantity go?
	Forward Direction = "forward"
	// Backward follows child→parent: where did this quantity come from?
	Backward Direction = "backward"
)

// Trace depth limits.
const (
	DefaultMaxDepth = 10
	MaxDepthLimit   = 20
)

// ClampDepth maps a requested depth onto [1, MaxDepthLimit], with zero or
// negative meaning DefaultMaxDepth.
func ClampDepth(depth int) int {
	switch {
	case depth <= 0:
		return DefaultMaxDepth
	case depth > MaxDepthLimit:
		return MaxDepthLimit
	}
	return depth
}

// EdgeFunc returns the effective edges touching lpID in the given direction:
// records with ParentID == lpID for Forward, ChildID == lpID for Backward.
type EdgeFunc func(ctx context.Context, lpID id.LicensePlateID, dir Direction) ([]*Record, error)

// Node is one plate reached by a trace and the edge that reached it.
type Node struct {
	LicensePlateID id.LicensePlateID `json:"license_plate_id"`
	Depth          int               `json:"depth"`
	Via            *Record           `json:"via"`
}

// Trace is a flat, breadth-first view of a plate's lineage.
type Trace struct {
	Root          id.LicensePlateID `json:"root"`
	Direction     Direction         `json:"direction"`
	MaxDepth      int               `json:"max_depth"`
	Nodes         []Node            `json:"nodes"`
	HasMoreLevels bool              `json:"has_more_levels"`
}

// TreeNode is a nested view of a plate's lineage.
type TreeNode struct {
	LicensePlateID id.LicensePlateID `json:"license_plate_id"`
	Via            *Record           `json:"via,omitempty"`
	Children       []*TreeNode       `json:"children,omitempty"`
}

func far(r *Record, dir Direction) id.LicensePlateID {
	if dir == Forward {
		return r.ChildID
	}
	return r.ParentID
}

// Walk traces breadth-first from root, visiting each plate once. Plates at
// MaxDepth are probed for further edges so callers learn whether the trace
// was truncated.
func Walk(ctx context.Context, root id.LicensePlateID, dir Direction, maxDepth int, edges EdgeFunc) (*Trace, error) {
	maxDepth = ClampDepth(maxDepth)
	t := &Trace{Root: root, Direction: dir, MaxDepth: maxDepth, Nodes: []Node{}}

	visited := map[string]struct{}{root.String(): {}}
	frontier := []id.LicensePlateID{root}

	for depth := 1; len(frontier) > 0; depth++ {
		if depth > maxDepth {
			for _, lpID := range frontier {
				more, err := edges(ctx, lpID, dir)
				if err != nil {
					return nil, err
				}
				if len(more) > 0 {
					t.HasMoreLevels = true
					break
				}
			}
			break
		}

		var next []id.LicensePlateID
		for _, lpID := range frontier {
			recs, err := edges(ctx, lpID, dir)
			if err != nil {
				return nil, err
			}
			for _, r := range recs {
				target := far(r, dir)
				if _, seen := visited[target.String()]; seen {
					continue
				}
				visited[target.String()] = struct{}{}
				t.Nodes = append(t.Nodes, Node{LicensePlateID: target, Depth: depth, Via: r})
				next = append(next, target)
			}
		}
		frontier = next
	}

	return t, nil
}

// BuildTree returns the lineage of root as a tree, up to maxDepth levels.
// A plate reachable along two paths appears under each.
func BuildTree(ctx context.Context, root id.LicensePlateID, dir Direction, maxDepth int, edges EdgeFunc) (*TreeNode, error) {
	maxDepth = ClampDepth(maxDepth)
	node := &TreeNode{LicensePlateID: root}
	if err := grow(ctx, node, dir, 1, maxDepth, edges); err != nil {
		return nil, err
	}
	return node, nil
}

func grow(ctx context.Context, n *TreeNode, dir Direction, depth, maxDepth int, edges EdgeFunc) error {
	if depth > maxDepth {
		return nil
	}
	recs, err := edges(ctx, n.LicensePlateID, dir)
	if err != nil {
		return err
	}
	for _, r := range recs {
		child := &TreeNode{LicensePlateID: far(r, dir), Via: r}
		if err := grow(ctx, child, dir, depth+1, maxDepth, edges); err != nil {
			return err
		}
		n.Children = append(n.Children, child)
	}
	return nil
}

// Reachable reports whether to can be reached from from by following
// forward edges. Adding an edge parent→child closes a cycle exactly when
// parent is reachable from child.
func Reachable(ctx context.Context, from, to id.LicensePlateID, edges EdgeFunc) (bool, error) {
	if from.String() == to.String() {
		return true, nil
	}
	visited := map[string]struct{}{from.String(): {}}
	queue := []id.LicensePlateID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		recs, err := edges(ctx, cur, Forward)
		if err != nil {
			return false, err
		}
		for _, r := range recs {
			next := r.ChildID
			if next.String() == to.String() {
				return true, nil
			}
			if _, seen := visited[next.String()]; seen {
				continue
			}
			visited[next.String()] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false, nil
}
