// ABOUTME: Static graph validation: dangling references and cycle detection
// ABOUTME: Adapted from the teacher's DFS-based dependency resolver, generalized to the new TaskSpec shape

package scheduler

import (
	"fmt"

	"github.com/loomrun/loom/internal/depgraph"
	"github.com/loomrun/loom/pkg/types"
)

// graph is the static dependency structure derived from a Workflow, built
// once before a run starts.
type graph struct {
	downstream map[string][]string // instance_id -> instance ids that depend on it
	inDegree   map[string]int
	specs      map[string]*types.TaskSpec
	order      []string // declaration order
}

// buildGraph validates every dependency reference exists and the graph is
// acyclic, per spec.md §4.8 step 1. A dangling reference or a cycle fails
// the whole run before any task executes.
func buildGraph(wf *types.Workflow) (*graph, error) {
	g := &graph{
		downstream: make(map[string][]string),
		inDegree:   make(map[string]int),
		specs:      make(map[string]*types.TaskSpec),
		order:      append([]string(nil), wf.TaskOrder...),
	}

	for _, id := range wf.TaskOrder {
		spec, ok := wf.Tasks[id]
		if !ok {
			return nil, types.NewValidationError("tasks", fmt.Sprintf("declared task '%s' missing from task map", id), nil)
		}
		g.specs[id] = spec
		g.inDegree[id] = 0
	}

	for _, id := range wf.TaskOrder {
		spec := g.specs[id]
		for _, dep := range spec.Dependencies {
			if _, ok := g.specs[dep]; !ok {
				return nil, types.NewValidationError("dependencies", fmt.Sprintf("task '%s' depends on unknown task '%s'", id, dep), nil)
			}
			g.downstream[dep] = append(g.downstream[dep], id)
			g.inDegree[id]++
		}
	}

	if err := depgraph.DetectCycle(g.order, g.downstream); err != nil {
		return nil, err
	}
	return g, nil
}
