// Package progress keeps aggregated scheduler counters (submitted, running,
// completed, preempted, …). Components update it via Delta; observers read
// a Snapshot or register an OnChange callback.
package progress

import (
	"sync"
	"time"
)

// Delta represents an incremental counter change. The fields are signed
// and therefore can be either positive or negative.
type Delta struct {
	Submitted int
	Rejected  int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Preempted int
	Cancelled int
}

// Counters is a point-in-time copy of the tracked values
type Counters struct {
	StartedAt time.Time

	Submitted int
	Rejected  int
	Pending   int
	Running   int
	Completed int
	Failed    int
	Preempted int
	Cancelled int
}

// Settled returns the number of submissions that reached a terminal state
func (c Counters) Settled() int {
	return c.Completed + c.Failed + c.Preempted + c.Cancelled + c.Rejected
}

// Progress keeps aggregated counters. It is safe for concurrent use.
type Progress struct {
	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// Update applies the supplied delta. The onChange callback, if any, is
// invoked with a copy outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.counters.Submitted += d.Submitted
	p.counters.Rejected += d.Rejected
	p.counters.Pending += d.Pending
	p.counters.Running += d.Running
	p.counters.Completed += d.Completed
	p.counters.Failed += d.Failed
	p.counters.Preempted += d.Preempted
	p.counters.Cancelled += d.Cancelled
	snapshot := p.counters
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the counters
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// OnChange registers a callback invoked after every Update; nil disables
// it. Only one callback is active at a time.
func (p *Progress) OnChange(cb func(Counters)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

// New creates a tracker
func New() *Progress {
	return &Progress{counters: Counters{StartedAt: time.Now()}}
}
