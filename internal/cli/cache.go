// ABOUTME: Cache command for inspecting and clearing a workflow's cache backend
// ABOUTME: Surfaces spec.md §4.8's stats/clear/cleanup-expired operations outside of a run

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomrun/loom/internal/cache"
	"github.com/loomrun/loom/internal/orchestrator"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear a workflow's cache backend",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [workflow.yaml]",
	Short: "Show cache hit/miss/put counters and current size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkflowCache(args[0], func(c cache.Cache) error {
			stats := c.Stats()
			fmt.Printf("backend: %s\n", stats.Backend)
			fmt.Printf("hits:    %d\n", stats.Hits)
			fmt.Printf("misses:  %d\n", stats.Misses)
			fmt.Printf("puts:    %d\n", stats.Puts)
			fmt.Printf("size:    %d\n", stats.Size)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [workflow.yaml]",
	Short: "Remove every cached entry for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkflowCache(args[0], func(c cache.Cache) error {
			if err := c.Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			fmt.Println("cache cleared")
			return nil
		})
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup-expired [workflow.yaml]",
	Short: "Evict only entries past their TTL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkflowCache(args[0], func(c cache.Cache) error {
			n, err := c.CleanupExpired()
			if err != nil {
				return fmt.Errorf("failed to clean up cache: %w", err)
			}
			fmt.Printf("removed %d expired entries\n", n)
			return nil
		})
	},
}

// withWorkflowCache loads workflowPath's cache backend (by its own cache:
// block, not a running Scheduler) and runs fn against it, closing it
// afterward. A workflow with no cache: block has nothing to show or clear.
func withWorkflowCache(workflowPath string, fn func(cache.Cache) error) error {
	orch, err := orchestrator.New(&orchestrator.Config{Logger: GetLogger()})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	wf, err := orch.LoadWorkflowFile(workflowPath)
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}

	backend, err := cache.FromConfig(wf.Cache)
	if err != nil {
		return fmt.Errorf("failed to build cache backend: %w", err)
	}
	if backend == nil {
		fmt.Println("workflow has no cache: block configured")
		return nil
	}
	defer backend.Close()

	return fn(backend)
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheCleanupCmd)
}
