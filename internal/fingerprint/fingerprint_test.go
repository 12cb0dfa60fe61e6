// ABOUTME: Tests for cache key canonicalization and fingerprint stability

package fingerprint

import (
	"testing"

	"github.com/loomrun/loom/pkg/types"
)

func TestCanonicalIsKeyOrderIndependent(t *testing.T) {
	a := types.NewMap(map[string]types.Value{
		"b": types.NewInt(2),
		"a": types.NewInt(1),
	})
	b := types.NewMap(map[string]types.Value{
		"a": types.NewInt(1),
		"b": types.NewInt(2),
	})
	if Canonical(a) != Canonical(b) {
		t.Fatalf("expected canonical form to ignore map key order: %q vs %q", Canonical(a), Canonical(b))
	}
}

func TestComputeDeterministic(t *testing.T) {
	cfg := map[string]interface{}{"url": "https://example.com"}
	f1 := Compute("http_check", cfg, nil, Options{})
	f2 := Compute("http_check", cfg, nil, Options{})
	if f1 != f2 {
		t.Fatalf("expected identical fingerprints, got %q vs %q", f1, f2)
	}
}

func TestComputeDiffersByType(t *testing.T) {
	cfg := map[string]interface{}{"url": "https://example.com"}
	f1 := Compute("http_check", cfg, nil, Options{})
	f2 := Compute("other_type", cfg, nil, Options{})
	if f1 == f2 {
		t.Fatal("expected fingerprints to differ by task type")
	}
}

func TestComputeDiffersByUpstream(t *testing.T) {
	cfg := map[string]interface{}{"url": "https://example.com"}
	f1 := Compute("http_check", cfg, []string{"abc"}, Options{})
	f2 := Compute("http_check", cfg, []string{"def"}, Options{})
	if f1 == f2 {
		t.Fatal("expected fingerprints to differ by upstream fingerprints")
	}
}
