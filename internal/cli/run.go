// ABOUTME: Run command for executing workflows
// ABOUTME: Implements the primary workflow execution functionality

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/orchestrator"
	"github.com/loomrun/loom/internal/variables"
	"github.com/loomrun/loom/pkg/types"
)

var (
	runVariables     []string
	runVariableFiles []string
	runMaxConcurrent int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [workflow.yaml]",
	Short: "Execute a workflow",
	Long: `Execute a workflow from a YAML (or JSON) file. The template is loaded,
rendered against any --var/--var-file values, validated, and run to
completion.

Examples:
  loom run workflow.yaml
  loom run workflow.yaml --var env=prod
  loom run workflow.yaml --var-file vars.yaml
  loom run workflow.yaml --max-concurrent 4`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]
	log := GetLogger()

	vars, err := buildVars(workflowPath)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(&orchestrator.Config{
		MaxConcurrency: runMaxConcurrent,
		Logger:         log,
		Vars:           vars,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	wf, err := orch.LoadWorkflowFile(workflowPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := orch.Run(ctx, wf)
	if err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}

	printWorkflowResult(result)

	if hasFailures(result) {
		os.Exit(1)
	}
	return nil
}

// buildVars merges --var-file and --var sources into one map, loaded
// relative to workflowPath's directory, per spec.md §6's variable
// substitution ambient concern (later sources override earlier ones).
// File-sourced values travel through the engine's own Value model
// (internal/variables resolves "@file" references and infers scalar kinds
// the same way internal/loader does for inline YAML) and are unwrapped to
// plain interface{} only at this boundary, since the ambient Sprig/
// text-template render (internal/ambient.RenderVars) works on the generic
// Go value tree produced by yaml.v3, not on types.Value.
func buildVars(workflowPath string) (map[string]interface{}, error) {
	loader := variables.New(dirOf(workflowPath))

	merged := make(map[string]interface{})
	if len(runVariableFiles) > 0 {
		fileVars, err := loader.LoadVariableFiles(runVariableFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to load variable files: %w", err)
		}
		for k, v := range fileVars {
			merged[k] = v.Native()
		}
	}
	for _, kv := range runVariables {
		k, v, err := parseVarFlag(kv)
		if err != nil {
			return nil, err
		}
		merged[k] = v
	}
	return merged, nil
}

func parseVarFlag(kv string) (string, string, error) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid --var %q (expected key=value)", kv)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// printWorkflowResult prints a workflow run's final results, per spec.md
// §6's exit/failure surface: every instance_id, including skipped and
// failed ones.
func printWorkflowResult(wr *types.WorkflowResult) {
	statusIcon := "✅"
	if hasFailures(wr) {
		statusIcon = "❌"
	}

	fmt.Printf("\n%s Workflow: %s\n", statusIcon, wr.Name)
	fmt.Printf("   Duration: %s\n", wr.FinishedAt.Sub(wr.StartedAt))
	fmt.Printf("   Tasks: %d\n", len(wr.Results))
	if wr.Cancelled {
		fmt.Printf("   Cancelled: true\n")
	}

	if len(wr.Results) == 0 {
		return
	}
	fmt.Printf("\nTasks:\n")
	for instanceID, r := range wr.Results {
		icon := "✅"
		switch {
		case r.Skipped:
			icon = "⏭️"
		case !r.Success:
			icon = "❌"
		}
		fmt.Printf("  %s %s (attempts=%d)\n", icon, instanceID, r.Attempts)
		if r.Error != nil && verboseMode {
			fmt.Printf("    %s: %s\n", r.Error.Kind, r.Error.Message)
		}
	}
}

func hasFailures(wr *types.WorkflowResult) bool {
	if wr.Cancelled {
		return true
	}
	for _, r := range wr.Results {
		if !r.Success && !r.Skipped {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runVariables, "var", []string{}, "set a workflow variable (key=value)")
	runCmd.Flags().StringSliceVar(&runVariableFiles, "var-file", []string{}, "load workflow variables from a YAML/JSON/.env file")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", types.DefaultConcurrency, "global dispatch concurrency limit")
}
