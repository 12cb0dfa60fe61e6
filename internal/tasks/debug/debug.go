// ABOUTME: Debug task: logs a message, a demonstration task type
// ABOUTME: Adapted from the teacher's debug executor to the engine's Task interface

package debug

import (
	"context"
	"fmt"

	"github.com/loomrun/loom/pkg/types"
)

// Task logs a message at the requested level and echoes it in its output,
// useful for troubleshooting workflows during development.
type Task struct {
	instanceID string
}

// New constructs a debug Task for instanceID, matching types.TaskFactory.
func New(instanceID string) types.Task {
	return &Task{instanceID: instanceID}
}

func (t *Task) Type() string { return "debug" }

func (t *Task) Execute(_ context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	message, _ := config["message"].(string)
	if message == "" {
		return nil, types.NewTaskError(t.instanceID, "debug task requires 'message'", nil)
	}
	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	fmt.Printf("[%s] %s\n", level, message)

	output := types.NewMap(map[string]types.Value{
		"message": types.NewString(message),
		"level":   types.NewString(level),
	})
	return &types.TaskResult{Success: true, Output: output}, nil
}
