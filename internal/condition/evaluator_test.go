// ABOUTME: Tests for condition evaluation, structured and string-expression forms

package condition

import (
	"testing"

	"github.com/loomrun/loom/internal/interpolate"
	"github.com/loomrun/loom/pkg/types"
)

func resolverFor(path string, v types.Value) interpolate.PathResolver {
	return interpolate.ResolverFunc(func(p string) (types.Value, error) {
		if p == path {
			return v, nil
		}
		return types.Null(), types.NewReferenceError(p, "not found")
	})
}

func TestEvaluateStructuredGt(t *testing.T) {
	cond := &types.Condition{Structured: &types.ConditionClause{
		Operator: types.OpGt, Value: 50, Path: "stats.average",
	}}
	ok, err := Evaluate(cond, resolverFor("stats.average", types.NewInt(20)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected gt 50 to be false for average=20")
	}
}

func TestEvaluateStructuredLte(t *testing.T) {
	cond := &types.Condition{Structured: &types.ConditionClause{
		Operator: types.OpLte, Value: 50, Path: "stats.average",
	}}
	ok, err := Evaluate(cond, resolverFor("stats.average", types.NewInt(20)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected lte 50 to be true for average=20")
	}
}

func TestEvaluateStructuredIn(t *testing.T) {
	cond := &types.Condition{Structured: &types.ConditionClause{
		Operator: types.OpIn,
		Value:    []interface{}{"a", "b", "c"},
		Path:     "x",
	}}
	ok, err := Evaluate(cond, resolverFor("x", types.NewString("b")), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected 'b' in [a,b,c] to be true")
	}
}

func TestEvaluateStringExpr(t *testing.T) {
	cond := &types.Condition{Expr: "${count} >= 3"}
	ok, err := Evaluate(cond, resolverFor("count", types.NewInt(5)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected count(5) >= 3 to be true")
	}
}

func TestEvaluateStringExprBoolLiteral(t *testing.T) {
	cond := &types.Condition{Expr: "${flag} == true"}
	ok, err := Evaluate(cond, resolverFor("flag", types.NewBool(true)), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected flag == true to be true")
	}
}

func TestEvaluateUpstreamSkippedIsFalseNotError(t *testing.T) {
	cond := &types.Condition{Expr: "${count} >= 3"}
	ok, err := Evaluate(cond, resolverFor("count", types.NewInt(5)), true)
	if err != nil {
		t.Fatalf("expected no error when upstream skipped, got %v", err)
	}
	if ok {
		t.Fatal("expected condition to be false when upstream skipped")
	}
}

func TestEvaluateMalformedExprIsConditionError(t *testing.T) {
	cond := &types.Condition{Expr: "not a valid expression"}
	_, err := Evaluate(cond, resolverFor("x", types.Null()), false)
	if err == nil {
		t.Fatal("expected condition error for malformed expression")
	}
	if _, ok := err.(*types.ConditionError); !ok {
		t.Fatalf("expected *types.ConditionError, got %T", err)
	}
}
