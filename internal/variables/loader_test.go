// ABOUTME: Tests for variable file loading and @file reference resolution

package variables

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomrun/loom/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", path, err)
	}
	return path
}

func TestLoadVariableFileYAMLPreservesKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vars.yaml", "env: prod\nreplicas: 3\nratio: 0.5\nenabled: true\n")

	loader := New(dir)
	vars, err := loader.LoadVariableFile("vars.yaml")
	if err != nil {
		t.Fatalf("LoadVariableFile: %v", err)
	}

	if vars["env"].Kind != types.KindString || vars["env"].Str != "prod" {
		t.Fatalf("expected env to be string 'prod', got %+v", vars["env"])
	}
	if vars["replicas"].Kind != types.KindInt || vars["replicas"].Int != 3 {
		t.Fatalf("expected replicas to be int 3, got %+v", vars["replicas"])
	}
	if vars["enabled"].Kind != types.KindBool || !vars["enabled"].Bool {
		t.Fatalf("expected enabled to be bool true, got %+v", vars["enabled"])
	}
}

func TestLoadVariableFileEnvInfersScalarKinds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vars.env", "# comment\nDEBUG=true\nMAX_RETRIES=5\nNAME=loom\n")

	loader := New(dir)
	vars, err := loader.LoadVariableFile("vars.env")
	if err != nil {
		t.Fatalf("LoadVariableFile: %v", err)
	}

	if vars["DEBUG"].Kind != types.KindBool || !vars["DEBUG"].Bool {
		t.Fatalf("expected DEBUG=true to parse as bool, got %+v", vars["DEBUG"])
	}
	if vars["MAX_RETRIES"].Kind != types.KindInt || vars["MAX_RETRIES"].Int != 5 {
		t.Fatalf("expected MAX_RETRIES=5 to parse as int, got %+v", vars["MAX_RETRIES"])
	}
	if vars["NAME"].Kind != types.KindString || vars["NAME"].Str != "loom" {
		t.Fatalf("expected NAME to remain a string, got %+v", vars["NAME"])
	}
}

func TestLoadVariableFilesMergesLaterOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "env: staging\nregion: us-east-1\n")
	writeFile(t, dir, "override.yaml", "env: prod\n")

	loader := New(dir)
	merged, err := loader.LoadVariableFiles([]string{"base.yaml", "override.yaml"})
	if err != nil {
		t.Fatalf("LoadVariableFiles: %v", err)
	}

	if merged["env"].Str != "prod" {
		t.Fatalf("expected override.yaml's env to win, got %+v", merged["env"])
	}
	if merged["region"].Str != "us-east-1" {
		t.Fatalf("expected base.yaml's region to survive the merge, got %+v", merged["region"])
	}
}

func TestResolveVariableReferencesExpandsFileRef(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "creds.yaml", "creds: {user: admin, pass: secret}\n")

	loader := New(dir)
	vars := map[string]types.Value{
		"creds": types.NewString("@creds.yaml"),
	}
	resolved, err := loader.ResolveVariableReferences(vars)
	if err != nil {
		t.Fatalf("ResolveVariableReferences: %v", err)
	}

	creds := resolved["creds"]
	if creds.Kind != types.KindMap {
		t.Fatalf("expected single-key file ref to collapse to its value, got %+v", creds)
	}
	if creds.Map["user"].Str != "admin" {
		t.Fatalf("expected nested user=admin, got %+v", creds.Map)
	}
}

func TestLoadVariableFileMissingReturnsError(t *testing.T) {
	loader := New(t.TempDir())
	if _, err := loader.LoadVariableFile("does-not-exist.yaml"); err == nil {
		t.Fatal("expected an error for a missing variable file")
	}
}
