package types

import (
	"errors"
	"fmt"
)

// Scheduler failure sentinels. Callers detect them with errors.Is.
var (
	// ErrPreempted is reported when a submission is stopped to admit a
	// higher priority one.
	ErrPreempted = errors.New("sched: preempted")

	// ErrCancelled is reported when a caller cancels a submission.
	ErrCancelled = errors.New("sched: cancelled")

	// ErrClosed is reported for submissions rejected or stopped by shutdown.
	ErrClosed = errors.New("sched: scheduler closed")

	// ErrUnschedulable is reported when a submission can never be admitted,
	// for example its resource requirement exceeds total capacity.
	ErrUnschedulable = errors.New("sched: unschedulable")

	// ErrConfig matches every *ConfigError.
	ErrConfig = errors.New("sched: invalid configuration")
)

// ConfigError describes a rejected configuration call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sched: invalid %v: %v", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) true for any ConfigError
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a configuration error
func NewConfigError(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExecutionError wraps a failure returned (or panic raised) by an executor.
type ExecutionError struct {
	TaskID     string
	InstanceID string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("task %v (%v) failed: %v", e.TaskID, e.InstanceID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsPreempted returns true if err reports a preemption
func IsPreempted(err error) bool {
	return errors.Is(err, ErrPreempted)
}

// IsExecutionError returns true if err was produced by an executor
func IsExecutionError(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr)
}
