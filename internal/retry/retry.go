// ABOUTME: Retry and timeout policy enforcement around a single task attempt
// ABOUTME: Grounded on the teacher's context.WithTimeout usage in the command task, generalized to any Task

package retry

import (
	"context"
	"errors"
	"time"

	"github.com/loomrun/loom/pkg/types"
)

// Run executes task.Execute up to policy.Attempts() times, waiting
// policy.Backoff() between attempts, honouring timeoutSecs per attempt if
// set. It returns the final TaskResult with StartedAt/FinishedAt/Attempts
// populated, per spec.md §4.5.
//
// A ReferenceError returned by the task short-circuits retries entirely
// (types.IsRetryable reports it as not retryable), since the input cannot
// change by retrying.
func Run(ctx context.Context, task types.Task, config map[string]interface{}, policy types.RetryPolicy, timeoutSecs *float64) *types.TaskResult {
	started := time.Now()
	maxAttempts := policy.Attempts()
	backoff := policy.Backoff()

	var lastErr error
	var lastResult *types.TaskResult
	lastAttempt := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastAttempt = attempt
		attemptCtx := ctx
		var cancel context.CancelFunc
		if timeoutSecs != nil && *timeoutSecs > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(*timeoutSecs*float64(time.Second)))
		}

		result, err := task.Execute(attemptCtx, config)
		if cancel != nil {
			cancel()
		}

		if err == nil && result != nil && result.Success {
			result.StartedAt = started
			result.FinishedAt = time.Now()
			result.Attempts = attempt
			return result
		}

		if err == nil {
			err = types.NewTaskError("", "task reported success=false", nil)
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			err = types.NewTimeoutError("", "attempt exceeded timeout")
		}
		err = normalizeTaskErr(err)

		lastErr = err
		lastResult = result

		if !types.IsRetryable(err) {
			break
		}
		if attempt < maxAttempts && backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return failureResult(started, attempt, types.NewCancelled("context cancelled during retry backoff"))
			case <-timer.C:
			}
		}
	}

	if lastResult != nil && lastResult.Error == nil {
		lastResult.StartedAt = started
		lastResult.FinishedAt = time.Now()
		lastResult.Attempts = lastAttempt
		lastResult.Success = false
		lastResult.Error = &types.ErrorInfo{Kind: errorKind(lastErr), Message: lastErr.Error()}
		return lastResult
	}
	return failureResult(started, lastAttempt, lastErr)
}

// normalizeTaskErr wraps any error not already one of the engine's typed
// errors into a TaskError. The types.Task interface lets an implementer's
// Execute return a bare, unwrapped error; without this, types.IsRetryable
// would treat it as unrecognized and non-retryable, silently dropping the
// task's configured retries after a single attempt.
func normalizeTaskErr(err error) error {
	var refErr *types.ReferenceError
	var taskErr *types.TaskError
	var timeoutErr *types.TimeoutError
	var cancelled *types.Cancelled
	var retryableErr *types.RetryableError
	if errors.As(err, &refErr) || errors.As(err, &taskErr) || errors.As(err, &timeoutErr) ||
		errors.As(err, &cancelled) || errors.As(err, &retryableErr) {
		return err
	}
	return types.NewTaskError("", "task raised", err)
}

func failureResult(started time.Time, attempts int, err error) *types.TaskResult {
	return &types.TaskResult{
		Success:    false,
		Output:     types.Null(),
		Error:      &types.ErrorInfo{Kind: errorKind(err), Message: err.Error()},
		StartedAt:  started,
		FinishedAt: time.Now(),
		Attempts:   attempts,
	}
}

func errorKind(err error) string {
	switch err.(type) {
	case *types.ReferenceError:
		return "ReferenceError"
	case *types.TimeoutError:
		return "TimeoutError"
	case *types.Cancelled:
		return "Cancelled"
	default:
		return "TaskError"
	}
}
