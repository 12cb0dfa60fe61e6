// ABOUTME: Dry-run command for showing workflow execution plans
// ABOUTME: Allows users to preview what a workflow would do without executing it

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/orchestrator"
	"github.com/loomrun/loom/pkg/types"
)

var dryRunFormat string

// dryRunCmd represents the dry-run command
var dryRunCmd = &cobra.Command{
	Use:   "dry-run [workflow.yaml]",
	Short: "Show a workflow's task plan without running it",
	Long: `Load and validate a workflow, then print its tasks in declaration
order along with dependencies, conditions, caching, fan-out, and streaming
configuration — without invoking the task registry.

Examples:
  loom dry-run workflow.yaml
  loom dry-run workflow.yaml --format json`,
	Args: cobra.ExactArgs(1),
	RunE: dryRunWorkflow,
}

// taskPlan is one line of a dry-run's execution plan.
type taskPlan struct {
	InstanceID    string   `json:"instance_id"`
	Type          string   `json:"type"`
	Dependencies  []string `json:"dependencies,omitempty"`
	HasCondition  bool     `json:"has_condition"`
	CacheEnabled  bool     `json:"cache_enabled"`
	IsFanOut      bool     `json:"is_fan_out,omitempty"`
	ForEachPath   string   `json:"for_each,omitempty"`
	MaxConcurrent int      `json:"max_concurrent,omitempty"`
	Consumes      string   `json:"consumes,omitempty"`
}

// workflowPlan is the full dry-run execution plan.
type workflowPlan struct {
	Name  string     `json:"name"`
	Cache string     `json:"cache_backend,omitempty"`
	Tasks []taskPlan `json:"tasks"`
}

func dryRunWorkflow(cmd *cobra.Command, args []string) error {
	workflowPath := args[0]
	log := GetLogger()

	orch, err := orchestrator.New(&orchestrator.Config{Logger: log})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	wf, err := orch.LoadWorkflowFile(workflowPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", err)
		return fmt.Errorf("dry-run failed")
	}

	plan := buildPlan(wf)
	switch dryRunFormat {
	case "json":
		return printPlanJSON(plan)
	case "text":
		printPlanText(plan)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", dryRunFormat)
	}
}

func buildPlan(wf *types.Workflow) workflowPlan {
	plan := workflowPlan{Name: wf.Name, Cache: wf.Cache.Type}
	for _, id := range wf.TaskOrder {
		spec := wf.Tasks[id]
		plan.Tasks = append(plan.Tasks, taskPlan{
			InstanceID:    id,
			Type:          spec.Type,
			Dependencies:  spec.Dependencies,
			HasCondition:  spec.Condition != nil,
			CacheEnabled:  spec.Cache.Enabled,
			IsFanOut:      spec.IsFanOut(),
			ForEachPath:   spec.ForEach,
			MaxConcurrent: spec.MaxConcurrent,
			Consumes:      spec.Consumes,
		})
	}
	return plan
}

func printPlanJSON(plan workflowPlan) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(plan)
}

func printPlanText(plan workflowPlan) {
	fmt.Printf("🔍 DRY RUN — no tasks will be executed\n\n")
	fmt.Printf("Workflow: %s\n", plan.Name)
	if plan.Cache != "" {
		fmt.Printf("Cache backend: %s\n", plan.Cache)
	}
	fmt.Printf("Tasks: %d\n\n", len(plan.Tasks))

	for _, t := range plan.Tasks {
		fmt.Printf("  • %s (%s)\n", t.InstanceID, t.Type)
		if len(t.Dependencies) > 0 {
			fmt.Printf("      depends_on: %s\n", strings.Join(t.Dependencies, ", "))
		}
		if t.HasCondition {
			fmt.Printf("      condition: set\n")
		}
		if t.CacheEnabled {
			fmt.Printf("      cache: enabled\n")
		}
		if t.IsFanOut {
			fmt.Printf("      fan_out: for_each=%s max_concurrent=%d\n", t.ForEachPath, t.MaxConcurrent)
		}
		if t.Consumes != "" {
			fmt.Printf("      consumes: %s\n", t.Consumes)
		}
	}
}

func init() {
	rootCmd.AddCommand(dryRunCmd)
	dryRunCmd.Flags().StringVar(&dryRunFormat, "format", "text", "output format (text, json)")
}
