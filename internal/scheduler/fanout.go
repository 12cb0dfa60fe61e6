// ABOUTME: Dynamic task-group expansion for specs carrying for_each/config_template
// ABOUTME: Children run bounded by max_concurrent; the parent publishes a single aggregated result, per spec.md §4.6

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/loomrun/loom/internal/interpolate"
	"github.com/loomrun/loom/internal/retry"
	"github.com/loomrun/loom/internal/valuestore"
	"github.com/loomrun/loom/pkg/types"
)

// runFanOut resolves spec.ForEach to a sequence, expands one child task per
// element, and aggregates their results into the parent's TaskResult. Each
// child is a full singleton execution (retry/timeout/cache per the parent's
// own policy) keyed by a synthetic instance id never exposed to the rest of
// the graph.
func (s *Scheduler) runFanOut(ctx context.Context, spec *types.TaskSpec, resolver interpolate.PathResolver) *types.TaskResult {
	started := time.Now()

	elements, err := resolver.Resolve(spec.ForEach)
	if err != nil {
		return failedResult(started, "ReferenceError", err.Error())
	}
	if elements.Kind != types.KindList {
		return failedResult(started, "ValidationError", fmt.Sprintf("for_each path '%s' did not resolve to a list", spec.ForEach))
	}

	n := len(elements.List)
	maxConcurrent := spec.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	// conc's ResultPool caps simultaneous children at maxConcurrent and
	// hands back results in Go()-call order, which is input order here —
	// exactly the ordering spec.md §4.6 requires for the aggregate.
	p := pool.NewWithResults[*types.TaskResult]().WithMaxGoroutines(maxConcurrent)
	for i, element := range elements.List {
		i, element := i, element
		p.Go(func() *types.TaskResult {
			return s.runFanOutChild(ctx, spec, i, element)
		})
	}
	results := p.Wait()

	successCount, failureCount := 0, 0
	outputs := make([]types.Value, n)
	for i, r := range results {
		outputs[i] = r.Output
		if r.Success {
			successCount++
		} else {
			failureCount++
		}
	}

	aggregate := types.NewMap(map[string]types.Value{
		"results":       types.NewList(outputs),
		"success_count": types.NewInt(int64(successCount)),
		"failure_count": types.NewInt(int64(failureCount)),
		"items":         elements,
	})

	return &types.TaskResult{
		Success:    failureCount < n,
		Output:     aggregate,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Attempts:   1,
	}
}

func (s *Scheduler) runFanOutChild(ctx context.Context, spec *types.TaskSpec, index int, element types.Value) *types.TaskResult {
	childInstanceID := fmt.Sprintf("%s[%d]#%s", spec.InstanceID, index, uuid.NewString())

	childResolver := interpolate.ResolverFunc(func(path string) (types.Value, error) {
		if len(path) >= 2 && path[0] == '$' && path[1] == '.' {
			return valuestore.ResolveFanOutElement(element, path)
		}
		if path == "$" {
			return valuestore.ResolveFanOutElement(element, path)
		}
		return s.store.GetPath(path, spec.InstanceID)
	})

	nativeTemplate, err := interpolate.Interpolate(spec.ConfigTemplate, childResolver)
	if err != nil {
		return failedResult(time.Now(), "ReferenceError", err.Error())
	}
	config, _ := nativeTemplate.(map[string]interface{})

	task, err := s.registry.Create(spec.Type, childInstanceID)
	if err != nil {
		return failedResult(time.Now(), "ValidationError", err.Error())
	}

	policy := types.RetryPolicy{MaxAttempts: 1}
	if spec.Retry != nil {
		policy = *spec.Retry
	}

	if !spec.Cache.Enabled || s.cache == nil {
		return retry.Run(ctx, task, config, policy, spec.TimeoutSecs)
	}

	key := s.computeFingerprint(spec.Type, config, nil)
	if entry, hit, err := s.cache.Get(key); err == nil && hit {
		now := time.Now()
		return &types.TaskResult{Success: true, Output: entry.Value, StartedAt: now, FinishedAt: now, Attempts: 1}
	}

	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		r := retry.Run(ctx, task, config, policy, spec.TimeoutSecs)
		if r.Success {
			s.putCache(key, r.Output, spec.Cache.TTLSeconds)
		}
		return r, nil
	})
	if err != nil {
		return failedResult(time.Now(), "TaskError", err.Error())
	}
	return v.(*types.TaskResult)
}
