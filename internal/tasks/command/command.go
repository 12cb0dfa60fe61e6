// ABOUTME: Command task: runs a shell command or script, a demonstration task type
// ABOUTME: Adapted from the teacher's command executor to the engine's Task interface

package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/loomrun/loom/pkg/types"
)

// Task runs a shell command or inline script. It is one of two
// demonstration task types kept to exercise the engine end-to-end; the
// concrete task catalog itself is out of scope.
type Task struct {
	instanceID string
}

// New constructs a command Task for instanceID, matching types.TaskFactory.
func New(instanceID string) types.Task {
	return &Task{instanceID: instanceID}
}

func (t *Task) Type() string { return "command" }

func (t *Task) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	command, _ := config["command"].(string)
	script, _ := config["script"].(string)
	shell := "/bin/sh"
	if s, ok := config["shell"].(string); ok && s != "" {
		shell = s
	}
	workDir, _ := config["working_dir"].(string)

	if command == "" && script == "" {
		return nil, types.NewTaskError(t.instanceID, "command task requires 'command' or 'script'", nil)
	}

	var cmd *exec.Cmd
	if script != "" {
		cmd = exec.CommandContext(ctx, shell, "-c", script)
	} else {
		parts := strings.Fields(command)
		cmd = exec.CommandContext(ctx, parts[0], parts[1:]...)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = os.Environ()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	returnCode := 0
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.NewTimeoutError(t.instanceID, "command exceeded its timeout")
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				returnCode = status.ExitStatus()
			} else {
				returnCode = 1
			}
			return nil, types.NewTaskError(t.instanceID, fmt.Sprintf("command exited %d: %s", returnCode, stderr.String()), nil)
		}
		return nil, types.NewTaskError(t.instanceID, "failed to execute command", err)
	}

	output := types.NewMap(map[string]types.Value{
		"stdout":      types.NewString(stdout.String()),
		"stderr":      types.NewString(stderr.String()),
		"return_code": types.NewInt(int64(returnCode)),
	})
	return &types.TaskResult{Success: true, Output: output}, nil
}
