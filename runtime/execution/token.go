package execution

import (
	"context"
	"sync"
)

// Token is a cooperative cancellation signal handed to an executor. The
// scheduler cancels it on preemption, cancellation or shutdown; the
// executor polls Cancelled, selects on Done or registers OnCancel.
type Token struct {
	mu        sync.Mutex
	cause     error
	done      chan struct{}
	observers []func(cause error)
}

// NewToken creates an active token
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel signals cancellation with cause, context.Canceled when nil. Only
// the first call has effect; it returns false when the token was already
// cancelled.
func (t *Token) Cancel(cause error) bool {
	if cause == nil {
		cause = context.Canceled
	}
	t.mu.Lock()
	if t.cause != nil {
		t.mu.Unlock()
		return false
	}
	t.cause = cause
	close(t.done)
	observers := t.observers
	t.observers = nil
	t.mu.Unlock()
	for _, fn := range observers {
		fn(cause)
	}
	return true
}

// Cancelled returns true once Cancel was called
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause != nil
}

// Cause returns the cancellation cause or nil
func (t *Token) Cause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

// Done returns a channel closed on cancellation
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// OnCancel registers fn to run on cancellation. If the token is already
// cancelled fn runs immediately.
func (t *Token) OnCancel(fn func(cause error)) {
	t.mu.Lock()
	if t.cause != nil {
		cause := t.cause
		t.mu.Unlock()
		fn(cause)
		return
	}
	t.observers = append(t.observers, fn)
	t.mu.Unlock()
}
