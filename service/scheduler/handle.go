package scheduler

import (
	"context"
	"sync"
)

// Outcome is the terminal state of a submission
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePreempted Outcome = "preempted"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeRejected marks submissions dropped while pending, e.g. because
	// they became unschedulable or the scheduler shut down.
	OutcomeRejected Outcome = "rejected"
)

// Handle settles once with the executor result or a failure
type Handle struct {
	taskID     string
	instanceID string
	done       chan struct{}
	once       sync.Once
	result     interface{}
	err        error
	outcome    Outcome
}

// TaskID returns the task-type id
func (h *Handle) TaskID() string {
	return h.taskID
}

// InstanceID returns the scheduler generated submission id
func (h *Handle) InstanceID() string {
	return h.instanceID
}

// Done is closed once the handle settles
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle settles or ctx is done
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the failure, nil while unsettled or on success
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Result returns the executor result, nil while unsettled
func (h *Handle) Result() interface{} {
	select {
	case <-h.done:
		return h.result
	default:
		return nil
	}
}

// Outcome returns the terminal state, empty while unsettled
func (h *Handle) Outcome() Outcome {
	select {
	case <-h.done:
		return h.outcome
	default:
		return ""
	}
}

func (h *Handle) settle(outcome Outcome, result interface{}, err error) bool {
	settled := false
	h.once.Do(func() {
		h.outcome = outcome
		h.result = result
		h.err = err
		close(h.done)
		settled = true
	})
	return settled
}

func newHandle(taskID, instanceID string) *Handle {
	return &Handle{taskID: taskID, instanceID: instanceID, done: make(chan struct{})}
}
