// ABOUTME: Tests for the memory, file, and redis-like cache backends and the in-flight lock

package cache

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/loomrun/loom/pkg/types"
)

func TestMemoryGetPutHitMiss(t *testing.T) {
	m, err := NewMemory(10, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok, _ := m.Get("k"); ok {
		t.Fatal("expected miss before any put")
	}
	if err := m.Put("k", types.NewInt(42), 0); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	e, ok, err := m.Get("k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if e.Value.Int != 42 {
		t.Fatalf("expected 42, got %+v", e.Value)
	}

	stats := m.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Puts != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m, _ := NewMemory(10, 0)
	_ = m.Put("k", types.NewInt(1), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := m.Get("k"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestFileAtomicWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, time.Minute, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Put("key1", types.NewString("hello"), 0); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	e, ok, err := f.Get("key1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if e.Value.Str != "hello" {
		t.Fatalf("expected 'hello', got %+v", e.Value)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one cache file, got %d", len(entries))
	}
}

func TestFileCompressedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir, time.Minute, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	val := types.NewMap(map[string]types.Value{"n": types.NewInt(7)})
	if err := f.Put("k", val, 0); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	e, ok, err := f.Get("k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if e.Value.Map["n"].Int != 7 {
		t.Fatalf("expected n=7, got %+v", e.Value)
	}
}

func TestFileCleanupExpired(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFile(dir, 0, false)
	_ = f.Put("expired", types.NewInt(1), 1*time.Millisecond)
	_ = f.Put("fresh", types.NewInt(2), time.Hour)
	time.Sleep(20 * time.Millisecond)

	removed, err := f.CleanupExpired()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed entry, got %d", removed)
	}
}

func TestRedisGetPutAgainstMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	r := NewRedis(mr.Addr(), RedisConfig{KeyPrefix: "loom:", DefaultTTL: time.Minute})
	defer r.Close()

	if _, ok, _ := r.Get("k"); ok {
		t.Fatal("expected miss before any put")
	}
	if err := r.Put("k", types.NewString("v"), 0); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	e, ok, err := r.Get("k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if e.Value.Str != "v" {
		t.Fatalf("expected 'v', got %+v", e.Value)
	}
}

func TestInFlightDeduplicatesConcurrentCallers(t *testing.T) {
	f := NewInFlight()
	var calls int64

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, _, _ := f.Do("same-key", func() (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return 99, nil
			})
			results[idx] = v
		}(i)
	}
	wg.Wait()

	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("expected exactly one underlying computation, got %d", calls)
	}
	for _, v := range results {
		if v != 99 {
			t.Fatalf("expected all callers to observe 99, got %v", v)
		}
	}
}
