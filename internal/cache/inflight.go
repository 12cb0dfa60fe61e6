// ABOUTME: Per-fingerprint in-flight de-duplication for cache-enabled tasks
// ABOUTME: At most one computation per fingerprint runs concurrently within a workflow run

package cache

import (
	"golang.org/x/sync/singleflight"
)

// InFlight guards against redundant concurrent recomputation of the same
// cache key within a single workflow run, per spec.md §4.4/§9. It is keyed
// by fingerprint, not instance_id, so fan-out children sharing an effective
// input collapse onto a single execution.
type InFlight struct {
	group singleflight.Group
}

// NewInFlight creates an empty in-flight registry.
func NewInFlight() *InFlight { return &InFlight{} }

// Do runs fn at most once per concurrently-active key; other callers with
// the same key block until fn returns and receive its result.
func (f *InFlight) Do(key string, fn func() (interface{}, error)) (interface{}, error, bool) {
	v, err, shared := f.group.Do(key, fn)
	return v, err, shared
}
