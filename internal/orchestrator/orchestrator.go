// ABOUTME: Orchestrator wires the loader, registry, cache backend, and scheduler into one entry point
// ABOUTME: Adapted from the teacher's parser+resolver+context+executor wiring to the new component set

package orchestrator

import (
	"context"
	"fmt"

	"github.com/loomrun/loom/internal/ambient"
	"github.com/loomrun/loom/internal/cache"
	"github.com/loomrun/loom/internal/filesystem"
	"github.com/loomrun/loom/internal/fingerprint"
	"github.com/loomrun/loom/internal/loader"
	"github.com/loomrun/loom/internal/registry"
	"github.com/loomrun/loom/internal/scheduler"
	"github.com/loomrun/loom/internal/tasks/command"
	"github.com/loomrun/loom/internal/tasks/debug"
	"github.com/loomrun/loom/pkg/types"
)

// Config configures an Orchestrator.
type Config struct {
	MaxConcurrency int
	Logger         types.Logger

	// Vars feeds the ambient Sprig/text-template pass applied to a
	// workflow template's raw bytes before it is parsed, letting callers
	// parameterize a template with --var/--var-file-sourced values.
	Vars map[string]interface{}

	// FingerprintOpts controls what the cache-key fingerprint includes,
	// per spec.md §9 open question (a).
	FingerprintOpts fingerprint.Options

	// Filesystem carries remote credentials for s3:// / sftp:// template
	// sources; nil uses environment-derived defaults.
	Filesystem *filesystem.Config
}

// Orchestrator owns the task registry and produces one Scheduler run per
// workflow. Unlike a Scheduler, which is single-use, an Orchestrator can
// load and run many workflows across its lifetime.
type Orchestrator struct {
	registry *registry.Registry
	config   Config
}

// New creates an Orchestrator with the two demonstration task types
// registered (command, debug). The concrete task catalog is an external
// collaborator (spec.md §1); callers extend the registry with Registry().
func New(config *Config) (*Orchestrator, error) {
	cfg := Config{MaxConcurrency: types.DefaultConcurrency}
	if config != nil {
		cfg = *config
	}
	maxConcurrency, err := types.ValidateConcurrency(cfg.MaxConcurrency)
	if err != nil {
		return nil, fmt.Errorf("invalid orchestrator configuration: %w", err)
	}
	cfg.MaxConcurrency = maxConcurrency

	reg := registry.New()
	reg.Register("command", command.New)
	reg.Register("shell", command.New)
	reg.Register("debug", debug.New)

	return &Orchestrator{registry: reg, config: cfg}, nil
}

// Registry returns the task registry for custom task registration.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// LoadWorkflowFile loads, variable-renders, parses, and statically
// validates a workflow template from filename (local path or a
// s3://, sftp://, ssh:// URI), including its declared task types against
// the registry.
func (o *Orchestrator) LoadWorkflowFile(filename string) (*types.Workflow, error) {
	raw, err := filesystem.ReadFile(filename, o.config.Filesystem)
	if err != nil {
		return nil, types.NewValidationError("template", fmt.Sprintf("cannot read '%s'", filename), err)
	}
	return o.parse(raw)
}

// ParseWorkflowYAML builds a Workflow from in-memory YAML/JSON content,
// applying the same variable-rendering and type-validation as
// LoadWorkflowFile.
func (o *Orchestrator) ParseWorkflowYAML(data []byte) (*types.Workflow, error) {
	return o.parse(data)
}

func (o *Orchestrator) parse(raw []byte) (*types.Workflow, error) {
	rendered, err := ambient.RenderVars(raw, o.config.Vars)
	if err != nil {
		return nil, types.NewValidationError("template", "variable rendering failed", err)
	}
	wf, err := loader.Parse(rendered)
	if err != nil {
		return nil, err
	}
	if err := loader.ValidateTypes(wf, o.registry.Has); err != nil {
		return nil, err
	}
	return wf, nil
}

// Run builds the cache backend named by wf.Cache and drives one Scheduler
// run to completion.
func (o *Orchestrator) Run(ctx context.Context, wf *types.Workflow) (*types.WorkflowResult, error) {
	result, _, err := o.RunWithStats(ctx, wf)
	return result, err
}

// RunWithStats behaves like Run but also returns the cache backend's usage
// counters for the run just performed, per spec.md §4.8's GetCacheStats.
func (o *Orchestrator) RunWithStats(ctx context.Context, wf *types.Workflow) (*types.WorkflowResult, cache.Stats, error) {
	backend, err := cache.FromConfig(wf.Cache)
	if err != nil {
		return nil, cache.Stats{}, fmt.Errorf("failed to build cache backend: %w", err)
	}
	if backend != nil {
		defer backend.Close()
	}

	sched := scheduler.New(wf, o.registry, scheduler.Config{
		Cache:           backend,
		MaxConcurrency:  o.config.MaxConcurrency,
		FingerprintOpts: o.config.FingerprintOpts,
		Logger:          o.config.Logger,
	})
	result, err := sched.Run(ctx)
	return result, sched.GetCacheStats(), err
}
