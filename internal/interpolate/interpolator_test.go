// ABOUTME: Tests for the ${path} interpolation grammar

package interpolate

import (
	"testing"

	"github.com/loomrun/loom/pkg/types"
)

func staticResolver(values map[string]types.Value) PathResolver {
	return ResolverFunc(func(path string) (types.Value, error) {
		v, ok := values[path]
		if !ok {
			return types.Null(), types.NewReferenceError(path, "not found")
		}
		return v, nil
	})
}

func TestInterpolateSingleTokenPreservesType(t *testing.T) {
	resolver := staticResolver(map[string]types.Value{
		"gen.numbers": types.NewList([]types.Value{types.NewInt(10), types.NewInt(20), types.NewInt(30)}),
	})

	out, err := Interpolate("${gen.numbers}", resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, ok := out.([]interface{})
	if !ok || len(list) != 3 {
		t.Fatalf("expected a 3-element slice, got %#v", out)
	}
}

func TestInterpolateConcatStringifies(t *testing.T) {
	resolver := staticResolver(map[string]types.Value{
		"stats.average": types.NewInt(20),
	})

	out, err := Interpolate("avg=${stats.average}", resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "avg=20" {
		t.Fatalf("expected 'avg=20', got %q", out)
	}
}

func TestInterpolateEscapesExpand(t *testing.T) {
	resolver := staticResolver(nil)
	out, err := Interpolate(`line1\nline2\ttabbed`, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "line1\nline2\ttabbed" {
		t.Fatalf("escapes not expanded: %q", out)
	}
}

func TestInterpolateNestedTree(t *testing.T) {
	resolver := staticResolver(map[string]types.Value{
		"a.x": types.NewString("hello"),
	})
	in := map[string]interface{}{
		"list": []interface{}{"${a.x}", "literal"},
		"nested": map[string]interface{}{
			"k": "${a.x}",
		},
	}
	out, err := Interpolate(in, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := out.(map[string]interface{})
	list := m["list"].([]interface{})
	if list[0] != "hello" || list[1] != "literal" {
		t.Fatalf("unexpected list contents: %#v", list)
	}
	nested := m["nested"].(map[string]interface{})
	if nested["k"] != "hello" {
		t.Fatalf("unexpected nested value: %#v", nested)
	}
}

func TestInterpolateResolutionFailurePropagates(t *testing.T) {
	resolver := staticResolver(nil)
	_, err := Interpolate("${missing.path}", resolver)
	if err == nil {
		t.Fatal("expected resolution failure to propagate")
	}
}

func TestInterpolateIdempotentOnOtherFields(t *testing.T) {
	resolver := staticResolver(map[string]types.Value{
		"a.x": types.NewString("hello"),
	})
	in := map[string]interface{}{"a": "${a.x}", "b": "unchanged"}
	out, err := Interpolate(in, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := out.(map[string]interface{})
	if m["b"] != "unchanged" {
		t.Fatalf("expected field b to remain unchanged, got %#v", m["b"])
	}
}
