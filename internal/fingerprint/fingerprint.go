// ABOUTME: Canonical serialization and fingerprint hashing for cache keys
// ABOUTME: Adapts the teacher's blake2b checksum usage to hash a task's type + resolved config + upstream fingerprints

package fingerprint

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/loomrun/loom/pkg/types"
)

// Options controls what the fingerprint includes. IncludeSource defaults to
// false per spec.md §9 open question (a); it would hash the task type's
// source code if ever wired up, which this engine does not do.
type Options struct {
	IncludeSource bool
}

// Compute produces a stable fingerprint for (taskType, resolvedConfig,
// upstreamFingerprints), per spec.md §3 Cache Key: two tasks of the same
// type whose effective inputs are identical must hit the same cache line
// regardless of surrounding graph structure.
func Compute(taskType string, resolvedConfig map[string]interface{}, upstreamFingerprints []string, opts Options) string {
	var sb strings.Builder
	sb.WriteString("type:")
	sb.WriteString(taskType)
	sb.WriteString("|config:")
	sb.WriteString(Canonical(types.FromNative(resolvedConfig)))
	if len(upstreamFingerprints) > 0 {
		sorted := append([]string(nil), upstreamFingerprints...)
		sort.Strings(sorted)
		sb.WriteString("|upstream:")
		sb.WriteString(strings.Join(sorted, ","))
	}

	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Canonical renders a Value as a deterministic string: map keys sorted,
// consistent scalar formatting, so two structurally-equal trees always
// produce the same bytes.
func Canonical(v types.Value) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v types.Value) {
	switch v.Kind {
	case types.KindNull:
		sb.WriteString("null")
	case types.KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool))
	case types.KindInt:
		sb.WriteString(strconv.FormatInt(v.Int, 10))
	case types.KindFloat:
		sb.WriteString(strconv.FormatFloat(v.Flt, 'g', -1, 64))
	case types.KindString:
		sb.WriteString(strconv.Quote(v.Str))
	case types.KindList:
		sb.WriteString("[")
		for i, e := range v.List {
			if i > 0 {
				sb.WriteString(",")
			}
			writeCanonical(sb, e)
		}
		sb.WriteString("]")
	case types.KindMap:
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(":")
			writeCanonical(sb, v.Map[k])
		}
		sb.WriteString("}")
	default:
		sb.WriteString(fmt.Sprintf("%v", v.Native()))
	}
}
