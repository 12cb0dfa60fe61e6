// ABOUTME: File cache backend storing one file per key under a directory
// ABOUTME: Atomic write-temp-then-rename per the teacher's history store; optional bzip2 entry compression

package cache

import (
	"bytes"
	"compress/bzip2"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bzip2w "github.com/dsnet/compress/bzip2"

	"github.com/loomrun/loom/pkg/types"
)

// File is the File cache backend of spec.md §4.4/§6. The filename is the
// hex-encoded key itself (the caller already passes a fingerprint).
type File struct {
	mu         sync.Mutex
	dir        string
	defaultTTL time.Duration
	compress   bool
	hits       int64
	misses     int64
	puts       int64
}

type fileEntry struct {
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Compressed bool       `json:"compressed"`
	Payload    []byte     `json:"payload"`
}

// NewFile creates a File backend rooted at dir, creating it if necessary.
// When compress is true, payloads are bzip2-compressed before being written.
func NewFile(dir string, defaultTTL time.Duration, compress bool) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir '%s': %w", dir, err)
	}
	return &File{dir: dir, defaultTTL: defaultTTL, compress: compress}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".cache")
}

func (f *File) Get(key string) (Entry, bool, error) {
	raw, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			atomic.AddInt64(&f.misses, 1)
			return Entry{}, false, nil
		}
		return Entry{}, false, types.NewCacheBackendError("file", "get", err)
	}

	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		return Entry{}, false, types.NewCacheBackendError("file", "get", err)
	}

	entry := Entry{CreatedAt: fe.CreatedAt, ExpiresAt: fe.ExpiresAt}
	if entry.Expired(time.Now()) {
		_ = os.Remove(f.path(key))
		atomic.AddInt64(&f.misses, 1)
		return Entry{}, false, nil
	}

	payload := fe.Payload
	if fe.Compressed {
		r := bzip2.NewReader(bytes.NewReader(payload))
		decoded, err := io.ReadAll(r)
		if err != nil {
			return Entry{}, false, types.NewCacheBackendError("file", "get", err)
		}
		payload = decoded
	}

	var native interface{}
	if err := json.Unmarshal(payload, &native); err != nil {
		return Entry{}, false, types.NewCacheBackendError("file", "get", err)
	}
	entry.Value = types.FromNative(native)

	atomic.AddInt64(&f.hits, 1)
	return entry, true, nil
}

func (f *File) Put(key string, value types.Value, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ttl <= 0 {
		ttl = f.defaultTTL
	}

	payload, err := json.Marshal(value.Native())
	if err != nil {
		return types.NewCacheBackendError("file", "put", err)
	}

	compressed := false
	if f.compress {
		var buf bytes.Buffer
		w, werr := bzip2w.NewWriter(&buf, &bzip2w.WriterConfig{Level: bzip2w.DefaultCompression})
		if werr == nil {
			if _, werr = w.Write(payload); werr == nil {
				if werr = w.Close(); werr == nil {
					payload = buf.Bytes()
					compressed = true
				}
			}
		}
		// A compression failure is not reported; the raw (uncompressed)
		// payload is written instead so the value is not lost.
	}

	fe := fileEntry{CreatedAt: time.Now(), Compressed: compressed, Payload: payload}
	if ttl > 0 {
		exp := fe.CreatedAt.Add(ttl)
		fe.ExpiresAt = &exp
	}

	raw, err := json.Marshal(fe)
	if err != nil {
		return types.NewCacheBackendError("file", "put", err)
	}

	final := f.path(key)
	tmp := final + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return types.NewCacheBackendError("file", "put", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return types.NewCacheBackendError("file", "put", err)
	}

	atomic.AddInt64(&f.puts, 1)
	return nil
}

func (f *File) Invalidate(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !os.IsNotExist(err) {
		return types.NewCacheBackendError("file", "invalidate", err)
	}
	return nil
}

func (f *File) Clear() error {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return types.NewCacheBackendError("file", "clear", err)
	}
	for _, e := range entries {
		_ = os.Remove(filepath.Join(f.dir, e.Name()))
	}
	return nil
}

func (f *File) CleanupExpired() (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, types.NewCacheBackendError("file", "cleanup_expired", err)
	}

	removed := 0
	now := time.Now()
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(f.dir, e.Name()))
		if err != nil {
			continue
		}
		var fe fileEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			continue
		}
		entry := Entry{ExpiresAt: fe.ExpiresAt}
		if entry.Expired(now) {
			_ = os.Remove(filepath.Join(f.dir, e.Name()))
			removed++
		}
	}
	return removed, nil
}

func (f *File) Stats() Stats {
	entries, _ := os.ReadDir(f.dir)
	return Stats{
		Hits:    atomic.LoadInt64(&f.hits),
		Misses:  atomic.LoadInt64(&f.misses),
		Puts:    atomic.LoadInt64(&f.puts),
		Size:    len(entries),
		Backend: "file",
	}
}

func (f *File) Close() error { return nil }
