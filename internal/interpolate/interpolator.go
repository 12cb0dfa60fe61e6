// ABOUTME: Substitutes ${path} reference tokens into task configuration trees
// ABOUTME: A small hand-rolled scanner, distinct from the ambient Sprig/text-template engine

package interpolate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loomrun/loom/pkg/types"
)

// PathResolver resolves a single "${path}" token's inner path to a Value.
// The scheduler supplies one as a ResolverFunc over valuestore.Store.GetPath
// (absolute/prev paths), and fan-out supplies one bound to the current
// element (for "$.field" paths).
type PathResolver interface {
	Resolve(path string) (types.Value, error)
}

// ResolverFunc adapts a plain function to PathResolver.
type ResolverFunc func(path string) (types.Value, error)

func (f ResolverFunc) Resolve(path string) (types.Value, error) { return f(path) }

// Interpolate walks a config tree (map/list/string/scalar) and returns a
// value of the same shape with every "${path}" token substituted, per
// spec.md §4.2. A string consisting of exactly one token preserves the
// resolved value's type; otherwise tokens are stringified and concatenated.
// \n and \t escape sequences in the surrounding literal text are expanded.
func Interpolate(v interface{}, resolver PathResolver) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			r, err := Interpolate(e, resolver)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			r, err := Interpolate(e, resolver)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case string:
		return interpolateString(t, resolver)
	default:
		return v, nil
	}
}

// InterpolateValue is the types.Value-typed equivalent of Interpolate, for
// callers holding a types.Value tree. The scheduler interpolates config and
// config_template through Interpolate, not through this function.
func InterpolateValue(v types.Value, resolver PathResolver) (types.Value, error) {
	switch v.Kind {
	case types.KindMap:
		out := make(map[string]types.Value, len(v.Map))
		for k, e := range v.Map {
			r, err := InterpolateValue(e, resolver)
			if err != nil {
				return types.Null(), err
			}
			out[k] = r
		}
		return types.NewMap(out), nil
	case types.KindList:
		out := make([]types.Value, len(v.List))
		for i, e := range v.List {
			r, err := InterpolateValue(e, resolver)
			if err != nil {
				return types.Null(), err
			}
			out[i] = r
		}
		return types.NewList(out), nil
	case types.KindString:
		r, err := interpolateString(v.Str, resolver)
		if err != nil {
			return types.Null(), err
		}
		return types.FromNative(r), nil
	default:
		return v, nil
	}
}

func interpolateString(s string, resolver PathResolver) (interface{}, error) {
	tokens, literalOnly := scanTokens(s)
	if literalOnly {
		return expandEscapes(s), nil
	}
	if len(tokens) == 1 && tokens[0].full == s {
		v, err := resolver.Resolve(tokens[0].path)
		if err != nil {
			return nil, err
		}
		return v.Native(), nil
	}

	var sb strings.Builder
	last := 0
	for _, tok := range tokens {
		sb.WriteString(expandEscapes(s[last:tok.start]))
		v, err := resolver.Resolve(tok.path)
		if err != nil {
			return nil, err
		}
		sb.WriteString(stringify(v))
		last = tok.end
	}
	sb.WriteString(expandEscapes(s[last:]))
	return sb.String(), nil
}

type token struct {
	path       string
	full       string
	start, end int
}

// scanTokens finds every "${...}" occurrence in s. literalOnly is true when
// s contains no tokens at all.
func scanTokens(s string) ([]token, bool) {
	var tokens []token
	i := 0
	for {
		start := strings.Index(s[i:], "${")
		if start == -1 {
			break
		}
		start += i
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start + 1
		tokens = append(tokens, token{
			path:  s[start+2 : end-1],
			full:  s[start:end],
			start: start,
			end:   end,
		})
		i = end
	}
	return tokens, len(tokens) == 0
}

func expandEscapes(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, `\t`, "\t")
	return s
}

func stringify(v types.Value) string {
	switch v.Kind {
	case types.KindNull:
		return ""
	case types.KindString:
		return v.Str
	case types.KindBool:
		return strconv.FormatBool(v.Bool)
	case types.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case types.KindFloat:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Native())
	}
}
