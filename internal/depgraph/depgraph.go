// ABOUTME: Shared cycle detection over a declared-dependency adjacency map
// ABOUTME: Used by both the Template Loader (load-time validation) and the scheduler (pre-dispatch validation)

package depgraph

import "github.com/loomrun/loom/pkg/types"

// DetectCycle runs a three-color DFS over a dependency graph described by
// downstream (instance_id -> ids that depend on it), visiting ids in order
// for deterministic cycle reporting. It returns a *types.ValidationError
// naming the first cycle found, or nil if the graph is acyclic, per
// spec.md §3 Invariants ("the static graph of declared dependencies is
// acyclic; cycles abort workflow creation").
func DetectCycle(order []string, downstream map[string][]string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(order))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case gray:
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			return types.NewValidationError("dependencies", "circular dependency: "+joinCycle(append(path[cycleStart:], id)), nil)
		case black:
			return nil
		}

		color[id] = gray
		path = append(path, id)
		for _, next := range downstream[id] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func joinCycle(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}
