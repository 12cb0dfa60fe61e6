// ABOUTME: Pre-YAML variable substitution for workflow templates using Sprig's text/template funcmap
// ABOUTME: Distinct from internal/interpolate's runtime ${path} grammar: this pass resolves CLI/env
// ABOUTME: supplied workflow variables before the document is even parsed into a graph

package ambient

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// RenderVars preprocesses raw template bytes as a Go text/template carrying
// Sprig's function map, substituting "{{ .var }}"-style tokens against vars
// before the document reaches the YAML decoder. It has nothing to do with
// the engine's own "${path}" reference grammar: that grammar resolves task
// outputs during dispatch, long after the graph already exists, while this
// pass only resolves values a caller already has in hand (--var flags,
// environment, a loaded variable file) so the template author can write
// things like `host: {{ .env | default "staging" }}`.
//
// Documents containing no "{{" are returned unchanged without invoking the
// template engine, so templates with literal "${...}" task references are
// never mistaken for Go template actions.
func RenderVars(raw []byte, vars map[string]interface{}) ([]byte, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}

	tmpl, err := template.New("workflow").Funcs(sprig.TxtFuncMap()).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("workflow variable template: %w", err)
	}

	if vars == nil {
		vars = map[string]interface{}{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return nil, fmt.Errorf("workflow variable template: %w", err)
	}
	return buf.Bytes(), nil
}
