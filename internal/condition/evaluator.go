// ABOUTME: Decides whether a task should run, per the structured and string condition forms
// ABOUTME: Generalizes the teacher executor's isTruthy/shouldSkipTask into the full operator set

package condition

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loomrun/loom/internal/interpolate"
	"github.com/loomrun/loom/pkg/types"
)

var stringExprPattern = regexp.MustCompile(`^\s*\$\{([^}]+)\}\s*(==|!=|>=|<=|>|<)\s*(.+?)\s*$`)

// Evaluate decides whether cond is satisfied, given a resolver for reference
// paths. When upstreamFailedOrSkipped is true the condition evaluates false
// without error, since conditional chains legitimately depend on upstream
// skips (spec.md §4.3).
func Evaluate(cond *types.Condition, resolver interpolate.PathResolver, upstreamFailedOrSkipped bool) (bool, error) {
	if upstreamFailedOrSkipped {
		return false, nil
	}
	if cond == nil {
		return true, nil
	}
	if cond.Structured != nil {
		return evaluateStructured(cond.Structured, resolver)
	}
	return evaluateExpr(cond.Expr, resolver)
}

// TargetPath extracts the reference path a condition evaluates against, so
// callers can check whether that path's owning instance was itself skipped
// or failed before invoking Evaluate. Returns "" if cond is nil or its
// string-expression form is malformed.
func TargetPath(cond *types.Condition) string {
	if cond == nil {
		return ""
	}
	if cond.Structured != nil {
		return cond.Structured.Path
	}
	m := stringExprPattern.FindStringSubmatch(cond.Expr)
	if m == nil {
		return ""
	}
	return m[1]
}

func evaluateStructured(c *types.ConditionClause, resolver interpolate.PathResolver) (bool, error) {
	left, err := resolver.Resolve(c.Path)
	if err != nil {
		return false, err
	}
	right := types.FromNative(c.Value)

	switch c.Operator {
	case types.OpIn, types.OpNotIn:
		found := sequenceContains(right, left)
		if c.Operator == types.OpNotIn {
			found = !found
		}
		return found, nil
	default:
		return compareOp(string(c.Operator), left, right)
	}
}

func evaluateExpr(expr string, resolver interpolate.PathResolver) (bool, error) {
	m := stringExprPattern.FindStringSubmatch(expr)
	if m == nil {
		return false, types.NewConditionError(expr, "malformed condition expression")
	}
	path, op, literal := m[1], m[2], strings.TrimSpace(m[3])

	left, err := resolver.Resolve(path)
	if err != nil {
		return false, err
	}

	if literal == "true" || literal == "false" {
		b := literal == "true"
		eq := left.Kind == types.KindBool && left.Bool == b
		if op == "==" {
			return eq, nil
		}
		if op == "!=" {
			return !eq, nil
		}
	}

	right := types.FromNative(parseLiteral(literal))
	return compareOp(symbolicToName(op), left, right)
}

func symbolicToName(op string) string {
	switch op {
	case "==":
		return "eq"
	case "!=":
		return "ne"
	case ">":
		return "gt"
	case "<":
		return "lt"
	case ">=":
		return "gte"
	case "<=":
		return "lte"
	default:
		return op
	}
}

func parseLiteral(s string) interface{} {
	s = strings.Trim(s, `"'`)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func compareOp(op string, left, right types.Value) (bool, error) {
	if op == "eq" || op == "ne" {
		eq := valuesEqual(left, right)
		if op == "eq" {
			return eq, nil
		}
		return !eq, nil
	}

	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if lok && rok {
		switch op {
		case "gt":
			return lf > rf, nil
		case "lt":
			return lf < rf, nil
		case "gte":
			return lf >= rf, nil
		case "lte":
			return lf <= rf, nil
		}
	}

	ls, rs := stringOf(left), stringOf(right)
	switch op {
	case "gt":
		return ls > rs, nil
	case "lt":
		return ls < rs, nil
	case "gte":
		return ls >= rs, nil
	case "lte":
		return ls <= rs, nil
	default:
		return false, types.NewConditionError(op, "unknown operator")
	}
}

func valuesEqual(a, b types.Value) bool {
	af, aok := asNumber(a)
	bf, bok := asNumber(b)
	if aok && bok {
		return af == bf
	}
	return stringOf(a) == stringOf(b)
}

func asNumber(v types.Value) (float64, bool) {
	switch v.Kind {
	case types.KindInt:
		return float64(v.Int), true
	case types.KindFloat:
		return v.Flt, true
	case types.KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringOf(v types.Value) string {
	switch v.Kind {
	case types.KindString:
		return v.Str
	case types.KindBool:
		return strconv.FormatBool(v.Bool)
	case types.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case types.KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	default:
		return ""
	}
}

func sequenceContains(seq, needle types.Value) bool {
	if seq.Kind != types.KindList {
		return false
	}
	for _, e := range seq.List {
		if valuesEqual(e, needle) {
			return true
		}
	}
	return false
}
