// ABOUTME: Template Loader (L9): converts a declarative YAML/JSON workflow description
// ABOUTME: into an in-memory Workflow graph of TaskSpecs, per spec.md §6. Grounded on the
// ABOUTME: teacher's strict-decode parser, adapted to a map-keyed tasks schema that needs
// ABOUTME: declaration-order preservation via gopkg.in/yaml.v3's Node API.

package loader

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loomrun/loom/internal/depgraph"
	"github.com/loomrun/loom/internal/filesystem"
	"github.com/loomrun/loom/pkg/types"
)

// rawCache mirrors the §6 "cache:" block.
type rawCache struct {
	Type           string `yaml:"type"`
	MaxSize        int    `yaml:"max_size"`
	DefaultTTL     int    `yaml:"default_ttl"`
	CacheDir       string `yaml:"cache_dir"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	DB             int    `yaml:"db"`
	Password       string `yaml:"password"`
	KeyPrefix      string `yaml:"key_prefix"`
	MaxConnections int    `yaml:"max_connections"`
}

// rawRetry mirrors the §6 "retry:" block.
type rawRetry struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	BackoffSeconds float64 `yaml:"backoff_seconds"`
}

// rawTask mirrors one entry of the §6 "tasks:" map.
type rawTask struct {
	Type           string                 `yaml:"type"`
	Config         map[string]interface{} `yaml:"config"`
	Dependencies   []string               `yaml:"dependencies"`
	Condition      yaml.Node              `yaml:"condition"`
	CacheEnabled   bool                   `yaml:"cache_enabled"`
	CacheTTL       *int                   `yaml:"cache_ttl"`
	ForEach        string                 `yaml:"for_each"`
	ConfigTemplate map[string]interface{} `yaml:"config_template"`
	MaxConcurrent  int                    `yaml:"max_concurrent"`
	Retry          *rawRetry              `yaml:"retry"`
	TimeoutSeconds *float64               `yaml:"timeout_seconds"`
	Consumes       string                 `yaml:"consumes"`
}

// rawTemplate mirrors the whole §6 document, minus the "tasks:" map itself,
// which is walked separately from the raw yaml.Node tree to preserve
// declaration order (a plain Go map does not).
type rawTemplate struct {
	Name         string              `yaml:"name"`
	Cache        rawCache            `yaml:"cache"`
	Dependencies map[string][]string `yaml:"dependencies"`
	Variables    map[string]interface{} `yaml:"variables"`
	Environment  map[string]string   `yaml:"environment"`
}

// Load reads a workflow template from filename or URI (YAML or JSON; JSON
// is a syntactic subset of YAML so the same decoder handles both) and
// builds the in-memory Workflow graph. filename may be a local path or a
// s3:// / sftp:// / ssh:// URI; see internal/filesystem.
func Load(filename string) (*types.Workflow, error) {
	return LoadWithFS(filename, nil)
}

// LoadWithFS is Load with explicit remote-filesystem credentials, for
// s3:// and sftp:// template sources.
func LoadWithFS(filename string, fsConfig *filesystem.Config) (*types.Workflow, error) {
	data, err := filesystem.ReadFile(filename, fsConfig)
	if err != nil {
		return nil, types.NewValidationError("template", fmt.Sprintf("cannot read '%s'", filename), err)
	}
	return Parse(data)
}

// Parse builds a Workflow from raw template bytes, per spec.md §6.
func Parse(data []byte) (*types.Workflow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, types.NewValidationError("template", "invalid YAML/JSON", err)
	}
	if len(root.Content) == 0 {
		return nil, types.NewValidationError("template", "empty document", nil)
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, types.NewValidationError("template", "top-level document must be a mapping", nil)
	}

	var raw rawTemplate
	if err := doc.Decode(&raw); err != nil {
		return nil, types.NewValidationError("template", "malformed template", err)
	}
	if raw.Name == "" {
		return nil, types.NewValidationError("name", "workflow name is required", nil)
	}

	tasksNode := findKey(doc, "tasks")
	if tasksNode == nil || tasksNode.Kind != yaml.MappingNode {
		return nil, types.NewValidationError("tasks", "workflow must declare a 'tasks' mapping", nil)
	}

	wf := &types.Workflow{
		Name:        raw.Name,
		Tasks:       make(map[string]*types.TaskSpec),
		Environment: raw.Environment,
		Variables:   raw.Variables,
		Cache:       buildCacheConfig(raw.Cache),
	}

	order := 0
	for i := 0; i+1 < len(tasksNode.Content); i += 2 {
		keyNode := tasksNode.Content[i]
		valNode := tasksNode.Content[i+1]
		instanceID := keyNode.Value
		if instanceID == "" {
			return nil, types.NewValidationError("tasks", "task instance id must not be empty", nil)
		}
		if _, dup := wf.Tasks[instanceID]; dup {
			return nil, types.NewValidationError("tasks", fmt.Sprintf("duplicate instance id '%s'", instanceID), nil)
		}

		var rt rawTask
		if err := valNode.Decode(&rt); err != nil {
			return nil, types.NewValidationError("tasks", fmt.Sprintf("task '%s' is malformed", instanceID), err)
		}
		if rt.Type == "" {
			return nil, types.NewValidationError("tasks", fmt.Sprintf("task '%s' is missing 'type'", instanceID), nil)
		}
		if rt.ForEach != "" && rt.ConfigTemplate == nil {
			return nil, types.NewValidationError("tasks", fmt.Sprintf("task '%s' declares for_each without config_template", instanceID), nil)
		}

		cond, err := buildCondition(&rt.Condition, instanceID)
		if err != nil {
			return nil, err
		}

		spec := &types.TaskSpec{
			InstanceID:     instanceID,
			Type:           rt.Type,
			Config:         rt.Config,
			Dependencies:   append([]string(nil), rt.Dependencies...),
			Condition:      cond,
			Cache:          types.CachePolicy{Enabled: rt.CacheEnabled, TTLSeconds: rt.CacheTTL},
			ForEach:        rt.ForEach,
			ConfigTemplate: rt.ConfigTemplate,
			MaxConcurrent:  rt.MaxConcurrent,
			TimeoutSecs:    rt.TimeoutSeconds,
			Consumes:       rt.Consumes,
		}
		if rt.Retry != nil {
			spec.Retry = &types.RetryPolicy{MaxAttempts: rt.Retry.MaxAttempts, BackoffSeconds: rt.Retry.BackoffSeconds}
		}
		spec.SetDeclOrder(order)
		order++

		wf.Tasks[instanceID] = spec
		wf.TaskOrder = append(wf.TaskOrder, instanceID)
	}

	// Merge the top-level dependencies: map into each task's own
	// dependencies list, per spec.md §6 ("also derivable from top-level").
	for id, deps := range raw.Dependencies {
		spec, ok := wf.Tasks[id]
		if !ok {
			return nil, types.NewValidationError("dependencies", fmt.Sprintf("top-level dependencies reference unknown task '%s'", id), nil)
		}
		spec.Dependencies = mergeUnique(spec.Dependencies, deps)
	}

	if err := validateStatic(wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// ValidateTypes checks every declared task type against a registry, per
// spec.md §4.9 ("lookup failures are graph-validation errors").
func ValidateTypes(wf *types.Workflow, known func(taskType string) bool) error {
	for _, id := range wf.TaskOrder {
		spec := wf.Tasks[id]
		if !known(spec.Type) {
			return types.NewValidationError("type", fmt.Sprintf("task '%s' has unregistered type '%s'", id, spec.Type), nil)
		}
	}
	return nil
}

// validateStatic enforces the structural checks of spec.md §4.8 step 1 that
// belong to load time rather than run time: dangling dependency and
// consumes references, and circular dependencies ("cycles abort workflow
// creation", spec.md §3 Invariants). The for_each/config_template pairing
// is checked earlier, in Parse. prev*-alias paths are not checked here;
// they are resolved only when a task's config is interpolated at run time.
func validateStatic(wf *types.Workflow) error {
	downstream := make(map[string][]string, len(wf.TaskOrder))
	for _, id := range wf.TaskOrder {
		spec := wf.Tasks[id]
		for _, dep := range spec.Dependencies {
			if _, ok := wf.Tasks[dep]; !ok {
				return types.NewValidationError("dependencies", fmt.Sprintf("task '%s' depends on unknown task '%s'", id, dep), nil)
			}
			downstream[dep] = append(downstream[dep], id)
		}
		if spec.Consumes != "" {
			if _, ok := wf.Tasks[spec.Consumes]; !ok {
				return types.NewValidationError("consumes", fmt.Sprintf("task '%s' consumes unknown task '%s'", id, spec.Consumes), nil)
			}
		}
	}
	return depgraph.DetectCycle(wf.TaskOrder, downstream)
}

func buildCacheConfig(c rawCache) types.CacheConfig {
	return types.CacheConfig{
		Type:           c.Type,
		MaxSize:        c.MaxSize,
		DefaultTTL:     time.Duration(c.DefaultTTL) * time.Second,
		CacheDir:       c.CacheDir,
		Host:           c.Host,
		Port:           c.Port,
		DB:             c.DB,
		Password:       c.Password,
		KeyPrefix:      c.KeyPrefix,
		MaxConnections: c.MaxConnections,
	}
}

// buildCondition decodes a task's "condition:" field, which is either a
// bare string expression or the structured {operator, value, path} form,
// per spec.md §4.3.
func buildCondition(node *yaml.Node, instanceID string) (*types.Condition, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		var expr string
		if err := node.Decode(&expr); err != nil {
			return nil, types.NewValidationError("condition", fmt.Sprintf("task '%s' has malformed condition", instanceID), err)
		}
		if expr == "" {
			return nil, nil
		}
		return &types.Condition{Expr: expr}, nil
	case yaml.MappingNode:
		var clause types.ConditionClause
		if err := node.Decode(&clause); err != nil {
			return nil, types.NewValidationError("condition", fmt.Sprintf("task '%s' has malformed structured condition", instanceID), err)
		}
		if clause.Path == "" || clause.Operator == "" {
			return nil, types.NewValidationError("condition", fmt.Sprintf("task '%s' structured condition requires operator and path", instanceID), nil)
		}
		return &types.Condition{Structured: &clause}, nil
	default:
		return nil, nil
	}
}

func findKey(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func mergeUnique(existing []string, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	out := append([]string(nil), existing...)
	for _, a := range add {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}
