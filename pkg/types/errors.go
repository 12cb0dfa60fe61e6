// ABOUTME: Error kinds for the Loom workflow engine
// ABOUTME: One Go type per error kind in the error handling design, each with Unwrap support

package types

import (
	"errors"
	"fmt"
)

// ValidationError covers a malformed template, unknown task type, a cycle,
// or a dangling reference. Raised at load time; the workflow does not start.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

func NewValidationError(field, message string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Cause: cause}
}

// ReferenceError is a runtime reference-resolution failure: missing
// instance_id, missing field, or an out-of-range index. Not retried.
type ReferenceError struct {
	Path    string
	Message string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("reference error for path '%s': %s", e.Path, e.Message)
}

func NewReferenceError(path, message string) *ReferenceError {
	return &ReferenceError{Path: path, Message: message}
}

// ConditionError is a malformed condition expression. Treated as a
// ValidationError when detectable statically, otherwise as a ReferenceError.
type ConditionError struct {
	Expr    string
	Message string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition error in '%s': %s", e.Expr, e.Message)
}

func NewConditionError(expr, message string) *ConditionError {
	return &ConditionError{Expr: expr, Message: message}
}

// TaskError wraps a task that returned success=false or raised. Subject to
// retry.
type TaskError struct {
	InstanceID string
	Message    string
	Cause      error
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task '%s': %s: %v", e.InstanceID, e.Message, e.Cause)
	}
	return fmt.Sprintf("task '%s': %s", e.InstanceID, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Cause }

func NewTaskError(instanceID, message string, cause error) *TaskError {
	return &TaskError{InstanceID: instanceID, Message: message, Cause: cause}
}

// TimeoutError means the task's timeout budget was exceeded. Subject to
// retry.
type TimeoutError struct {
	InstanceID string
	Budget     string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task '%s' exceeded timeout %s", e.InstanceID, e.Budget)
}

func NewTimeoutError(instanceID, budget string) *TimeoutError {
	return &TimeoutError{InstanceID: instanceID, Budget: budget}
}

// CacheBackendError means a cache operation failed. Downgraded to a miss on
// read, logged on write; never fails a task.
type CacheBackendError struct {
	Backend string
	Op      string
	Cause   error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache backend '%s' %s failed: %v", e.Backend, e.Op, e.Cause)
}

func (e *CacheBackendError) Unwrap() error { return e.Cause }

func NewCacheBackendError(backend, op string, cause error) *CacheBackendError {
	return &CacheBackendError{Backend: backend, Op: op, Cause: cause}
}

// UpstreamError means a dependency failed; the dependent is skipped and its
// TaskResult carries the originating instance id.
type UpstreamError struct {
	InstanceID       string
	OriginInstanceID string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("task '%s' skipped: upstream failure in '%s'", e.InstanceID, e.OriginInstanceID)
}

func NewUpstreamError(instanceID, originInstanceID string) *UpstreamError {
	return &UpstreamError{InstanceID: instanceID, OriginInstanceID: originInstanceID}
}

// Cancelled signals a top-level cancellation; all running tasks receive a
// cancellation signal and the workflow returns promptly.
type Cancelled struct {
	Reason string
}

func (e *Cancelled) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cancelled: %s", e.Reason)
	}
	return "cancelled"
}

func NewCancelled(reason string) *Cancelled {
	return &Cancelled{Reason: reason}
}

// RetryableError tags an error with whether a retry is worthwhile; reference
// resolution failures are not retryable because the input cannot change by
// retrying.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }
func (e *RetryableError) IsRetryable() bool { return e.Retryable }

func NewRetryableError(err error, retryable bool) *RetryableError {
	return &RetryableError{Err: err, Retryable: retryable}
}

// IsRetryable reports whether err (or a wrapped RetryableError within it)
// should be retried. ReferenceError is never retryable.
func IsRetryable(err error) bool {
	var refErr *ReferenceError
	if errors.As(err, &refErr) {
		return false
	}
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}
	// TaskError and TimeoutError are retryable by default.
	var taskErr *TaskError
	var timeoutErr *TimeoutError
	return errors.As(err, &taskErr) || errors.As(err, &timeoutErr)
}
