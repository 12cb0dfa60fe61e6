// ABOUTME: Variable file loader for loading workflow variables from external files
// ABOUTME: Supports YAML, JSON, and .env file formats, surfaced as the engine's own Value model

package variables

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/loomrun/loom/pkg/types"
)

// FileLoader handles loading variables from external files, relative to
// basePath (the directory a workflow template was loaded from).
type FileLoader struct {
	basePath string
}

// New creates a new variable file loader.
func New(basePath string) *FileLoader {
	return &FileLoader{
		basePath: basePath,
	}
}

// LoadVariableFile loads variables from a file as a map of the engine's
// own Value type, matching the type-preserving model interpolation and
// conditions use everywhere else (spec.md §4.1/§4.2).
func (fl *FileLoader) LoadVariableFile(filePath string) (map[string]types.Value, error) {
	resolved := fl.resolve(filePath)

	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return nil, fmt.Errorf("variable file not found: %s", resolved)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	switch ext {
	case ".yaml", ".yml", ".json":
		return fl.loadStructuredFile(resolved)
	case ".env":
		return fl.loadEnvFile(resolved)
	default:
		return fl.loadAutoDetect(resolved)
	}
}

func (fl *FileLoader) resolve(filePath string) string {
	if !filepath.IsAbs(filePath) && fl.basePath != "" {
		return filepath.Join(fl.basePath, filePath)
	}
	return filePath
}

// loadStructuredFile loads a YAML or JSON file; JSON is a syntactic subset
// of YAML so the same decoder handles both, as in internal/loader.
func (fl *FileLoader) loadStructuredFile(filePath string) (map[string]types.Value, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read variable file '%s': %w", filePath, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse variable file '%s': %w", filePath, err)
	}

	return valueMapFromNative(raw), nil
}

// loadEnvFile loads variables from a .env file (KEY=value per line).
func (fl *FileLoader) loadEnvFile(filePath string) (map[string]types.Value, error) {
	lines, err := readEnvLines(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load .env file '%s': %w", filePath, err)
	}

	result := make(map[string]types.Value, len(lines))
	for _, line := range lines {
		key, value, err := splitVariableLine(line)
		if err != nil {
			return nil, fmt.Errorf("failed to parse variable in file '%s': %w", filePath, err)
		}
		result[key] = parseScalar(value)
	}
	return result, nil
}

// loadAutoDetect guesses a file's format from its content when the
// extension alone doesn't tell us (a workflow directory may keep variable
// files under an arbitrary name).
func (fl *FileLoader) loadAutoDetect(filePath string) (map[string]types.Value, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", filePath, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(content, &raw); err == nil {
		return valueMapFromNative(raw), nil
	}

	contentStr := strings.TrimSpace(string(content))
	if strings.Contains(contentStr, "=") && !strings.Contains(contentStr, "{") {
		return fl.loadEnvFile(filePath)
	}

	return nil, fmt.Errorf("unable to determine format of file '%s'", filePath)
}

// LoadVariableFiles loads and merges several variable files in order;
// later files override keys set by earlier ones, per spec.md §6's
// --var-file semantics.
func (fl *FileLoader) LoadVariableFiles(filePaths []string) (map[string]types.Value, error) {
	merged := make(map[string]types.Value)

	for _, filePath := range filePaths {
		vars, err := fl.LoadVariableFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load variable file '%s': %w", filePath, err)
		}
		for key, value := range vars {
			merged[key] = value
		}
	}

	return fl.ResolveVariableReferences(merged)
}

// ResolveVariableReferences expands "@path/to/file" string values into the
// referenced file's contents (a single-key file collapses to that key's
// own value; otherwise the whole file becomes a nested map), recursing
// into nested maps of vars. Values loaded from a referenced file are not
// expanded again, so an "@path" string inside that file stays a string.
func (fl *FileLoader) ResolveVariableReferences(vars map[string]types.Value) (map[string]types.Value, error) {
	result := make(map[string]types.Value, len(vars))

	for key, value := range vars {
		switch {
		case value.Kind == types.KindString && strings.HasPrefix(value.Str, "@"):
			filePath := strings.TrimPrefix(value.Str, "@")
			fileVars, err := fl.LoadVariableFile(filePath)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve variable reference '%s': %w", value.Str, err)
			}
			if single, exists := fileVars[key]; exists && len(fileVars) == 1 {
				result[key] = single
			} else {
				result[key] = types.NewMap(fileVars)
			}
		case value.Kind == types.KindMap:
			resolved, err := fl.ResolveVariableReferences(value.Map)
			if err != nil {
				return nil, err
			}
			result[key] = types.NewMap(resolved)
		default:
			result[key] = value
		}
	}

	return result, nil
}

func valueMapFromNative(raw map[string]interface{}) map[string]types.Value {
	out := make(map[string]types.Value, len(raw))
	for k, v := range raw {
		out[k] = types.FromNative(v)
	}
	return out
}

func readEnvLines(filename string) ([]string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file '%s': %w", filename, err)
	}

	var lines []string
	for lineNum, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			return nil, fmt.Errorf("invalid format at line %d: %s", lineNum+1, line)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func splitVariableLine(line string) (string, string, error) {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid variable format '%s' (expected key=value)", line)
	}
	return parts[0], parts[1], nil
}

// parseScalar infers a Value's Kind from a .env file's raw string, the
// same bool/int/float/string fallback order as internal/loader's raw YAML
// decoding (a .env file carries no type tags of its own).
func parseScalar(value string) types.Value {
	if lower := strings.ToLower(value); lower == "true" || lower == "false" {
		return types.NewBool(lower == "true")
	}
	if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
		return types.NewInt(intVal)
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return types.NewFloat(floatVal)
	}
	return types.NewString(value)
}
