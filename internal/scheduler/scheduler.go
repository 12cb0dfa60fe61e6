// ABOUTME: Ready-queue workflow scheduler: dispatch, caching, retries, conditions, cascade-skip
// ABOUTME: Redesigned from the teacher's static-layer executor per spec.md §4.8 REDESIGN FLAG; grounded on
// ABOUTME: other_examples' ready-queue + inDegree + cascadeSkip BFS pattern

package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/loomrun/loom/internal/cache"
	"github.com/loomrun/loom/internal/condition"
	"github.com/loomrun/loom/internal/fingerprint"
	"github.com/loomrun/loom/internal/interpolate"
	"github.com/loomrun/loom/internal/registry"
	"github.com/loomrun/loom/internal/retry"
	"github.com/loomrun/loom/internal/valuestore"
	"github.com/loomrun/loom/pkg/types"
)

// Scheduler is the Workflow Runner of spec.md §4.8 (L8): it resolves
// dependencies, materialises fan-out groups, evaluates conditions, invokes
// the cache, enforces retry/timeout, and drives parallel dispatch with
// cooperative cancellation.
type Scheduler struct {
	wf             *types.Workflow
	registry       *registry.Registry
	store          *valuestore.Store
	cache          cache.Cache
	inflight       *cache.InFlight
	fpOpts         fingerprint.Options
	maxConcurrency int
	logger         types.Logger
}

// Config configures a Scheduler run.
type Config struct {
	Cache          cache.Cache // nil disables caching entirely
	MaxConcurrency int         // 0 means unbounded global dispatch
	FingerprintOpts fingerprint.Options
	Logger         types.Logger
}

// New constructs a Scheduler for wf, ready to Run once.
func New(wf *types.Workflow, reg *registry.Registry, cfg Config) *Scheduler {
	store := valuestore.New()
	for _, id := range wf.TaskOrder {
		spec := wf.Tasks[id]
		store.RegisterTask(id, spec.Dependencies, spec.DeclOrder())
	}
	return &Scheduler{
		wf:             wf,
		registry:       reg,
		store:          store,
		cache:          cfg.Cache,
		inflight:       cache.NewInFlight(),
		fpOpts:         cfg.FingerprintOpts,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         cfg.Logger,
	}
}

type completion struct {
	id     string
	result *types.TaskResult
}

// Run executes the workflow to completion, per spec.md §4.8's four-step
// algorithm, and returns every instance_id's final TaskResult including
// skipped and failed ones.
func (s *Scheduler) Run(ctx context.Context) (*types.WorkflowResult, error) {
	started := time.Now()

	g, err := buildGraph(s.wf)
	if err != nil {
		return nil, err
	}

	degree := make(map[string]int, len(g.inDegree))
	for id, d := range g.inDegree {
		degree[id] = d
	}

	results := make(map[string]*types.TaskResult, len(g.order))
	done := make(map[string]bool, len(g.order))
	consumedByPair := make(map[string]bool) // producer ids already folded into a stream pair

	producers := make(map[string]string) // producerID -> consumerID
	for _, id := range g.order {
		spec := g.specs[id]
		if spec.Consumes != "" {
			if _, ok := g.specs[spec.Consumes]; ok {
				producers[spec.Consumes] = id
			}
		}
	}

	var queue []string
	for _, id := range g.order {
		if degree[id] == 0 {
			queue = append(queue, id)
		}
	}

	completions := make(chan completion)
	running := 0
	cancelled := false

	sortByDeclOrder(queue, func(id string) int { return g.specs[id].DeclOrder() })

	launch := func(id string) {
		running++
		go func() {
			r := s.execOne(ctx, g.specs[id])
			completions <- completion{id: id, result: r}
		}()
	}

	launchPair := func(producerID, consumerID string) {
		running += 2
		go func() {
			pr, cr := s.execStreamPair(ctx, g.specs[producerID], g.specs[consumerID])
			completions <- completion{id: producerID, result: pr}
			completions <- completion{id: consumerID, result: cr}
		}()
	}

	// cascadeSkip marks every transitive dependent of failedID as
	// Skipped-Due-To-Upstream-Failure, never entering the queue, per
	// spec.md §4.8 step 4 and §7 UpstreamError.
	var cascadeSkip func(originID string, frontier []string)
	cascadeSkip = func(originID string, frontier []string) {
		for len(frontier) > 0 {
			id := frontier[0]
			frontier = frontier[1:]
			if done[id] {
				continue
			}
			done[id] = true
			now := time.Now()
			r := &types.TaskResult{
				Success:    true,
				Output:     types.NewMap(nil),
				Skipped:    true,
				StartedAt:  now,
				FinishedAt: now,
				Attempts:   0,
				Error:      &types.ErrorInfo{Kind: "UpstreamError", Message: types.NewUpstreamError(id, originID).Error(), OriginInstanceID: originID},
			}
			results[id] = r
			s.store.Put(id, r)
			for _, next := range g.downstream[id] {
				frontier = append(frontier, next)
			}
		}
	}

	for len(done) < len(g.order) {
		for len(queue) > 0 && (s.maxConcurrency <= 0 || running < s.maxConcurrency) {
			id := queue[0]
			queue = queue[1:]
			if done[id] || consumedByPair[id] {
				continue
			}
			if consumerID, isProducer := producers[id]; isProducer && degree[consumerID] == 0 && !done[consumerID] && !consumedByPair[consumerID] {
				consumedByPair[id] = true
				consumedByPair[consumerID] = true
				removeFromQueue(&queue, consumerID)
				launchPair(id, consumerID)
				continue
			}
			launch(id)
		}

		if running == 0 {
			break
		}

		select {
		case <-ctx.Done():
			cancelled = true
			// Drain remaining completions from already-launched goroutines
			// before returning, so no result is silently lost.
			for running > 0 {
				c := <-completions
				running--
				if !done[c.id] {
					done[c.id] = true
					results[c.id] = c.result
					s.store.Put(c.id, c.result)
				}
			}
		case c := <-completions:
			running--
			if !done[c.id] {
				done[c.id] = true
				results[c.id] = c.result
				s.store.Put(c.id, c.result)
			}
			failed := !c.result.Success && !c.result.Skipped
			for _, next := range g.downstream[c.id] {
				degree[next]--
				if degree[next] == 0 && !done[next] {
					queue = append(queue, next)
				}
			}
			if failed {
				cascadeSkip(c.id, append([]string(nil), g.downstream[c.id]...))
			}
		}
		if cancelled {
			break
		}
		sortByDeclOrder(queue, func(id string) int { return g.specs[id].DeclOrder() })
	}

	return &types.WorkflowResult{
		Name:       s.wf.Name,
		Results:    results,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Cancelled:  cancelled,
	}, nil
}

// execOne resolves interpolations, evaluates the condition, consults the
// cache, and executes a single (possibly fan-out) TaskSpec, per spec.md
// §4.8 step 3.
func (s *Scheduler) execOne(ctx context.Context, spec *types.TaskSpec) *types.TaskResult {
	started := time.Now()
	visited := map[string]bool{}
	resolver := interpolate.ResolverFunc(func(path string) (types.Value, error) {
		if instID, err := s.store.ResolveInstance(path, spec.InstanceID); err == nil && instID != "" {
			visited[instID] = true
		}
		return s.store.GetPath(path, spec.InstanceID)
	})

	if spec.Condition != nil {
		targetPath := condition.TargetPath(spec.Condition)
		upstreamBad := false
		if targetPath != "" {
			if instID, err := s.store.ResolveInstance(targetPath, spec.InstanceID); err == nil {
				if r, ok := s.store.Get(instID); ok && (r.Skipped || !r.Success) {
					upstreamBad = true
				}
			}
		}
		ok, err := condition.Evaluate(spec.Condition, resolver, upstreamBad)
		if err != nil {
			return failedResult(started, errKindForConditionErr(err), err.Error())
		}
		if !ok {
			now := time.Now()
			return &types.TaskResult{Success: true, Output: types.NewMap(nil), Skipped: true, StartedAt: started, FinishedAt: now}
		}
	}

	if spec.IsFanOut() {
		return s.runFanOut(ctx, spec, resolver)
	}

	nativeConfig, err := interpolate.Interpolate(spec.Config, resolver)
	if err != nil {
		return failedResult(started, "ReferenceError", err.Error())
	}
	config, _ := nativeConfig.(map[string]interface{})
	if config == nil {
		config = map[string]interface{}{}
	}

	task, err := s.registry.Create(spec.Type, spec.InstanceID)
	if err != nil {
		return failedResult(started, "ValidationError", err.Error())
	}

	policy := types.RetryPolicy{MaxAttempts: 1}
	if spec.Retry != nil {
		policy = *spec.Retry
	}

	if !spec.Cache.Enabled || s.cache == nil {
		return retry.Run(ctx, task, config, policy, spec.TimeoutSecs)
	}

	upstreamFPs := s.upstreamFingerprints(visited)
	key := s.computeFingerprint(spec.Type, config, upstreamFPs)

	if entry, hit, err := s.cache.Get(key); err == nil && hit {
		now := time.Now()
		return &types.TaskResult{Success: true, Output: entry.Value, StartedAt: started, FinishedAt: now, Attempts: 0}
	}

	v, _, _ := s.inflight.Do(key, func() (interface{}, error) {
		r := retry.Run(ctx, task, config, policy, spec.TimeoutSecs)
		if r.Success {
			s.putCache(key, r.Output, spec.Cache.TTLSeconds)
		}
		return r, nil
	})
	return v.(*types.TaskResult)
}

func (s *Scheduler) execStreamPair(ctx context.Context, producerSpec, consumerSpec *types.TaskSpec) (*types.TaskResult, *types.TaskResult) {
	started := time.Now()

	pTask, err := s.registry.Create(producerSpec.Type, producerSpec.InstanceID)
	if err != nil {
		f := failedResult(started, "ValidationError", err.Error())
		return f, f
	}
	cTask, err := s.registry.Create(consumerSpec.Type, consumerSpec.InstanceID)
	if err != nil {
		f := failedResult(started, "ValidationError", err.Error())
		return f, f
	}
	producer, pOK := pTask.(types.StreamProducer)
	consumer, cOK := cTask.(types.StreamConsumer)
	if !pOK || !cOK {
		f := failedResult(started, "ValidationError", "consumes pairing requires a StreamProducer/StreamConsumer task pair")
		return f, f
	}

	pResolver := interpolate.ResolverFunc(func(path string) (types.Value, error) {
		return s.store.GetPath(path, producerSpec.InstanceID)
	})
	cResolver := interpolate.ResolverFunc(func(path string) (types.Value, error) {
		return s.store.GetPath(path, consumerSpec.InstanceID)
	})

	pConfigNative, err := interpolate.Interpolate(producerSpec.Config, pResolver)
	if err != nil {
		f := failedResult(started, "ReferenceError", err.Error())
		return f, f
	}
	cConfigNative, err := interpolate.Interpolate(consumerSpec.Config, cResolver)
	if err != nil {
		f := failedResult(started, "ReferenceError", err.Error())
		return f, f
	}
	pConfig, _ := pConfigNative.(map[string]interface{})
	cConfig, _ := cConfigNative.(map[string]interface{})

	return runStreamPair(ctx, producer, producerSpec.InstanceID, pConfig, consumer, consumerSpec.InstanceID, cConfig)
}

func (s *Scheduler) upstreamFingerprints(visited map[string]bool) []string {
	if len(visited) == 0 {
		return nil
	}
	out := make([]string, 0, len(visited))
	for id := range visited {
		if r, ok := s.store.Get(id); ok {
			out = append(out, fingerprint.Canonical(r.Output))
		}
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) computeFingerprint(taskType string, resolvedConfig map[string]interface{}, upstreamFingerprints []string) string {
	return fingerprint.Compute(taskType, resolvedConfig, upstreamFingerprints, s.fpOpts)
}

func (s *Scheduler) putCache(key string, value types.Value, ttlSeconds *int) {
	if s.cache == nil {
		return
	}
	var ttl time.Duration
	if ttlSeconds != nil {
		ttl = time.Duration(*ttlSeconds) * time.Second
	}
	if err := s.cache.Put(key, value, ttl); err != nil {
		if s.logger != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache put failed, result still delivered to workflow")
		}
	}
}

// GetCacheStats returns the cache backend's usage counters, or zero Stats
// if no cache is configured.
func (s *Scheduler) GetCacheStats() cache.Stats {
	if s.cache == nil {
		return cache.Stats{}
	}
	return s.cache.Stats()
}

// ClearCache empties the configured cache backend.
func (s *Scheduler) ClearCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear()
}

// CleanupExpiredCache evicts expired entries from the configured cache
// backend and reports how many were removed.
func (s *Scheduler) CleanupExpiredCache() (int, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.CleanupExpired()
}

func failedResult(started time.Time, kind, message string) *types.TaskResult {
	now := time.Now()
	return &types.TaskResult{
		Success:    false,
		Output:     types.Null(),
		Error:      &types.ErrorInfo{Kind: kind, Message: message},
		StartedAt:  started,
		FinishedAt: now,
		Attempts:   1,
	}
}

func errKindForConditionErr(err error) string {
	if _, ok := err.(*types.ReferenceError); ok {
		return "ReferenceError"
	}
	return "ConditionError"
}

func sortByDeclOrder(ids []string, order func(string) int) {
	sort.SliceStable(ids, func(i, j int) bool { return order(ids[i]) < order(ids[j]) })
}

func removeFromQueue(queue *[]string, id string) {
	q := *queue
	for i, v := range q {
		if v == id {
			*queue = append(q[:i], q[i+1:]...)
			return
		}
	}
}
