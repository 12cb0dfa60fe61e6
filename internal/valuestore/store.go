// ABOUTME: Per-run store of task outputs keyed by instance id
// ABOUTME: Resolves dotted reference paths, prev/prevN aliases, and fan-out element selectors

package valuestore

import (
	"strconv"
	"strings"
	"sync"

	"github.com/loomrun/loom/pkg/types"
)

// Store holds per-task TaskResults for the lifetime of one workflow run and
// resolves reference paths against them, per spec.md §4.1.
type Store struct {
	mu      sync.RWMutex
	results map[string]*types.TaskResult

	// declaredDeps and declOrder back the prev/prevN alias resolution: for a
	// task at current_instance_id, "prev" walks its declared dependencies in
	// declaration order, most recent first.
	declaredDeps map[string][]string
	declOrder    map[string]int
}

// New creates an empty Store for one workflow run.
func New() *Store {
	return &Store{
		results:      make(map[string]*types.TaskResult),
		declaredDeps: make(map[string][]string),
		declOrder:    make(map[string]int),
	}
}

// RegisterTask tells the store a task's declared dependencies and its
// position in declaration order, used later to resolve prev/prevN.
func (s *Store) RegisterTask(instanceID string, dependencies []string, order int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declaredDeps[instanceID] = dependencies
	s.declOrder[instanceID] = order
}

// Put records the final TaskResult for instanceID. A task executes at most
// once per run except inside a fan-out group or a retry, which overwrites
// the prior entry.
func (s *Store) Put(instanceID string, result *types.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[instanceID] = result
}

// Get returns the raw TaskResult for instanceID, if any.
func (s *Store) Get(instanceID string) (*types.TaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[instanceID]
	return r, ok
}

// GetPath resolves a reference path against currentInstanceID's view of the
// store: absolute "<instance_id>.<field>..." paths, "prev[.field...]" and
// "prevN[.field...]" relative aliases. "$.field" paths are not handled here;
// see ResolveFanOutElement.
func (s *Store) GetPath(path, currentInstanceID string) (types.Value, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return types.Null(), types.NewReferenceError(path, "empty path")
	}

	head := segments[0]
	rest := segments[1:]

	if head == "prev" || isPrevN(head) {
		n := 1
		if head != "prev" {
			n, _ = strconv.Atoi(strings.TrimPrefix(head, "prev"))
		}
		dep, err := s.resolvePrev(currentInstanceID, n)
		if err != nil {
			return types.Null(), types.NewReferenceError(path, err.Error())
		}
		return s.resultField(dep, rest, path)
	}

	// Absolute path: head is an instance_id.
	return s.resultField(head, rest, path)
}

// ResolveInstance returns the instance_id a path's head segment names,
// resolving prev/prevN aliases against currentInstanceID's declared
// dependencies without touching the rest of the path. Used by the scheduler
// to decide whether a condition's target has been skipped or failed.
func (s *Store) ResolveInstance(path, currentInstanceID string) (string, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return "", types.NewReferenceError(path, "empty path")
	}
	head := segments[0]
	if head == "prev" || isPrevN(head) {
		n := 1
		if head != "prev" {
			n, _ = strconv.Atoi(strings.TrimPrefix(head, "prev"))
		}
		return s.resolvePrev(currentInstanceID, n)
	}
	return head, nil
}

// resolvePrev walks currentInstanceID's declared dependencies, ordered most
// recently declared first, n-1 steps back. prev1 == prev.
func (s *Store) resolvePrev(currentInstanceID string, n int) (string, error) {
	s.mu.RLock()
	deps := append([]string(nil), s.declaredDeps[currentInstanceID]...)
	order := s.declOrder
	s.mu.RUnlock()

	if len(deps) == 0 {
		return "", types.NewReferenceError(currentInstanceID, "no dependencies to resolve prev against")
	}

	sorted := append([]string(nil), deps...)
	sortByDeclOrderDesc(sorted, order)

	if n < 1 || n > len(sorted) {
		return "", types.NewReferenceError(currentInstanceID, "prev index out of range")
	}
	return sorted[n-1], nil
}

func sortByDeclOrderDesc(ids []string, order map[string]int) {
	for i := 1; i < len(ids); i++ {
		j := i
		for j > 0 && order[ids[j-1]] < order[ids[j]] {
			ids[j-1], ids[j] = ids[j], ids[j-1]
			j--
		}
	}
}

// resultField looks up instanceID's TaskResult and walks the remaining
// segments against it, applying the output-bypass rule: "success", "output",
// and "error" as the first remaining segment address the TaskResult's own
// fields; any other first segment implicitly dereferences Output.
func (s *Store) resultField(instanceID string, rest []string, fullPath string) (types.Value, error) {
	s.mu.RLock()
	result, ok := s.results[instanceID]
	s.mu.RUnlock()
	if !ok {
		return types.Null(), types.NewReferenceError(fullPath, "unknown instance id '"+instanceID+"'")
	}

	if len(rest) == 0 {
		return result.Output, nil
	}

	switch rest[0] {
	case "success":
		return types.NewBool(result.Success), nil
	case "error":
		if result.Error == nil {
			return types.Null(), nil
		}
		return types.NewString(result.Error.Message), nil
	case "output":
		return walk(result.Output, rest[1:], fullPath)
	default:
		return walk(result.Output, rest, fullPath)
	}
}

// walk descends a Value by successive map-key or list-index segments.
func walk(v types.Value, segments []string, fullPath string) (types.Value, error) {
	cur := v
	for _, seg := range segments {
		switch cur.Kind {
		case types.KindMap:
			next, ok := cur.Map[seg]
			if !ok {
				return types.Null(), types.NewReferenceError(fullPath, "missing field '"+seg+"'")
			}
			cur = next
		case types.KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.List) {
				return types.Null(), types.NewReferenceError(fullPath, "index out of range '"+seg+"'")
			}
			cur = cur.List[idx]
		default:
			return types.Null(), types.NewReferenceError(fullPath, "cannot descend into scalar at '"+seg+"'")
		}
	}
	return cur, nil
}

// ResolveFanOutElement resolves a "$.field..." path against a single fan-out
// element value. Only top-level map fields of the element are walked, per
// the engine's documented $. contract (nested lists/maps under $. are not
// walked further).
func ResolveFanOutElement(element types.Value, path string) (types.Value, error) {
	segments := splitPath(strings.TrimPrefix(path, "$."))
	if path == "$" || len(segments) == 0 {
		return element, nil
	}
	if element.Kind != types.KindMap {
		return types.Null(), types.NewReferenceError(path, "fan-out element is not a map")
	}
	v, ok := element.Map[segments[0]]
	if !ok {
		return types.Null(), types.NewReferenceError(path, "missing field '"+segments[0]+"'")
	}
	return v, nil
}

func isPrevN(s string) bool {
	if !strings.HasPrefix(s, "prev") {
		return false
	}
	suffix := strings.TrimPrefix(s, "prev")
	if suffix == "" {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
