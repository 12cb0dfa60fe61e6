// ABOUTME: Task registry mapping type strings to task constructors
// ABOUTME: Generalizes the teacher's type-to-executor map with plain function registration

package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomrun/loom/pkg/types"
)

// Registry maps a TaskSpec's `type` string to the constructor that produces
// the Task instance responsible for executing it, per spec.md §4.9.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]types.TaskFactory
}

// New creates an empty registry. Unlike the teacher, no task types are
// registered by default — the concrete task catalog is an external
// collaborator (spec.md §1); callers register their own types.
func New() *Registry {
	return &Registry{factories: make(map[string]types.TaskFactory)}
}

// Register adds a task constructor under taskType. Registration is
// explicit; re-registering a type overwrites the previous constructor.
func (r *Registry) Register(taskType string, factory types.TaskFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[taskType] = factory
}

// RegisterFunction wraps a plain callable into a Task under taskType, per
// spec.md §4.9's "registry additionally accepts function registration."
func (r *Registry) RegisterFunction(taskType string, fn func(ctx context.Context, instanceID string, config map[string]interface{}) (*types.TaskResult, error)) {
	r.Register(taskType, func(instanceID string) types.Task {
		return &funcTask{taskType: taskType, fn: fn, instanceID: instanceID}
	})
}

// funcTask adapts a plain function into types.Task.
type funcTask struct {
	taskType   string
	fn         func(ctx context.Context, instanceID string, config map[string]interface{}) (*types.TaskResult, error)
	instanceID string
}

func (a *funcTask) Type() string { return a.taskType }

func (a *funcTask) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	return a.fn(ctx, a.instanceID, config)
}

// Create constructs a new Task instance for instanceID using the registered
// constructor for taskType. Lookup failures are graph-validation errors.
func (r *Registry) Create(taskType, instanceID string) (types.Task, error) {
	r.mu.RLock()
	factory, ok := r.factories[taskType]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewValidationError("type", fmt.Sprintf("unknown task type '%s'", taskType), nil)
	}
	return factory(instanceID), nil
}

// Has reports whether taskType has a registered constructor.
func (r *Registry) Has(taskType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[taskType]
	return ok
}

// Types returns all registered type strings.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	return out
}
