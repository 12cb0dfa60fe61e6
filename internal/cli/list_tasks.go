// ABOUTME: List-tasks command for showing available task types
// ABOUTME: Helps users discover what task types are available in the system

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/orchestrator"
)

// listTasksCmd represents the list-tasks command
var listTasksCmd = &cobra.Command{
	Use:   "list-tasks",
	Short: "Show available task types",
	Long: `Display the task types registered with the orchestrator's registry.

Examples:
  loom list-tasks`,
	RunE: listTasks,
}

var taskDescriptions = map[string]string{
	"command": "Run a shell command and capture stdout/stderr/exit code",
	"shell":   "Alias for command",
	"debug":   "Log a message and output the message and level, for testing workflows",
}

func listTasks(cmd *cobra.Command, args []string) error {
	orch, err := orchestrator.New(&orchestrator.Config{Logger: GetLogger()})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	available := orch.Registry().Types()
	sort.Strings(available)

	fmt.Println("✨ Available Task Types")
	fmt.Println()
	for _, taskType := range available {
		desc := taskDescriptions[taskType]
		if desc == "" {
			desc = "No description available"
		}
		fmt.Printf("  %-12s %s\n", taskType, desc)
	}
	fmt.Printf("\nTotal: %d task types available\n", len(available))

	return nil
}

func init() {
	rootCmd.AddCommand(listTasksCmd)
}
