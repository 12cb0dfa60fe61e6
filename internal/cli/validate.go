// ABOUTME: Validate command for checking workflow syntax and dependencies
// ABOUTME: Provides workflow validation without execution

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/orchestrator"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate [workflow.yaml]",
	Short: "Validate workflow syntax and dependencies",
	Long: `Validate a workflow file for syntax errors, dependency issues,
and unknown task types without executing any tasks.

The validate command checks:
• YAML/JSON syntax and structure
• Dependency graph for cycles and dangling references
• Registered task types
• for_each declared without a config_template

Examples:
  loom validate workflow.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: validateWorkflow,
}

func validateWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]
	log := GetLogger()
	log.Info().Str("workflow", workflowPath).Msg("Validating workflow")

	orch, err := orchestrator.New(&orchestrator.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	wf, err := orch.LoadWorkflowFile(workflowPath)
	if err != nil {
		fmt.Printf("❌ %s\n", err)
		return fmt.Errorf("validation failed")
	}

	fmt.Printf("✅ Workflow '%s' validation passed (%d tasks)\n", wf.Name, len(wf.TaskOrder))
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
