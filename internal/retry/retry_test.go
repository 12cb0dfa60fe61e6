// ABOUTME: Tests for retry/backoff/timeout enforcement around a task attempt

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loomrun/loom/pkg/types"
)

type flakyTask struct {
	failuresBeforeSuccess int
	calls                 int
}

func (f *flakyTask) Type() string { return "flaky" }

func (f *flakyTask) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	f.calls++
	if f.calls <= f.failuresBeforeSuccess {
		return nil, types.NewTaskError("t", "simulated failure", nil)
	}
	return &types.TaskResult{Success: true, Output: types.NewString("ok")}, nil
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	task := &flakyTask{failuresBeforeSuccess: 2}
	policy := types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 0.01}

	result := Run(context.Background(), task, nil, policy, nil)
	if !result.Success {
		t.Fatalf("expected eventual success, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	task := &flakyTask{failuresBeforeSuccess: 10}
	policy := types.RetryPolicy{MaxAttempts: 2}

	result := Run(context.Background(), task, nil, policy, nil)
	if result.Success {
		t.Fatal("expected failure after exhausting attempts")
	}
	if result.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", result.Attempts)
	}
}

type refErrTask struct{ calls int }

func (r *refErrTask) Type() string { return "ref" }

func (r *refErrTask) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	r.calls++
	return nil, types.NewReferenceError("p.q", "missing field")
}

func TestRetrySkippedForReferenceError(t *testing.T) {
	task := &refErrTask{}
	policy := types.RetryPolicy{MaxAttempts: 3}

	result := Run(context.Background(), task, nil, policy, nil)
	if result.Success {
		t.Fatal("expected failure for a reference-resolution error")
	}
	if task.calls != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, task was called %d times", task.calls)
	}
	if result.Attempts != 1 {
		t.Fatalf("expected Attempts to report the actual attempt count (1), got %d", result.Attempts)
	}
}

type bareErrTask struct {
	failuresBeforeSuccess int
	calls                 int
}

func (b *bareErrTask) Type() string { return "bare" }

// Execute returns a plain, unwrapped error — the way an external task
// implementer who never imports pkg/types would write one — instead of one
// of the engine's typed errors.
func (b *bareErrTask) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	b.calls++
	if b.calls <= b.failuresBeforeSuccess {
		return nil, errors.New("boom")
	}
	return &types.TaskResult{Success: true, Output: types.NewString("ok")}, nil
}

func TestRetryWrapsBareErrorAndRetries(t *testing.T) {
	task := &bareErrTask{failuresBeforeSuccess: 2}
	policy := types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 0.01}

	result := Run(context.Background(), task, nil, policy, nil)
	if !result.Success {
		t.Fatalf("expected eventual success after retrying a bare error, got %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if task.calls != 3 {
		t.Fatalf("expected the task to be called 3 times, got %d", task.calls)
	}
}

func TestRetryExhaustsAttemptsForBareError(t *testing.T) {
	task := &bareErrTask{failuresBeforeSuccess: 10}
	policy := types.RetryPolicy{MaxAttempts: 3}

	result := Run(context.Background(), task, nil, policy, nil)
	if result.Success {
		t.Fatal("expected failure after exhausting attempts")
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
	if result.Error == nil || result.Error.Kind != "TaskError" {
		t.Fatalf("expected a bare error to be normalized into TaskError, got %+v", result.Error)
	}
}

type slowTask struct{}

func (s *slowTask) Type() string { return "slow" }

func (s *slowTask) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	select {
	case <-time.After(time.Second):
		return &types.TaskResult{Success: true}, nil
	case <-ctx.Done():
		return nil, types.NewTimeoutError("t", "exceeded")
	}
}

func TestRetryTimeoutTriggersFailure(t *testing.T) {
	budget := 0.01
	policy := types.RetryPolicy{MaxAttempts: 1}
	result := Run(context.Background(), &slowTask{}, nil, policy, &budget)
	if result.Success {
		t.Fatal("expected timeout to produce a failed result")
	}
	if result.Error == nil || result.Error.Kind != "TimeoutError" {
		t.Fatalf("expected TimeoutError, got %+v", result.Error)
	}
}
