// Package admission decides whether a ready submission may start now given
// global, group and resource capacity.
package admission

import (
	"github.com/viant/sched/model/task"
)

// Reason explains an admission outcome
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonGlobal   Reason = "global"
	ReasonGroup    Reason = "group"
	ReasonResource Reason = "resource"
)

// Decision is the admission outcome for a candidate
type Decision struct {
	Admitted bool
	Reason   Reason
	// Resource names the first exhausted resource when Reason is ReasonResource.
	Resource string
}

// State is a read-only view of scheduler capacity.
type State interface {
	Running() int
	MaxConcurrent() int
	Group(name string) (running, maxConcurrent int, ok bool)
	Resource(name string) (allocated, capacity int, ok bool)
}

// Controller evaluates admission against a State
type Controller struct{}

// Admit checks that the global slot, the group slot and every required
// resource are available at the same time.
func (c *Controller) Admit(demand task.Demand, state State) Decision {
	if state.Running() >= state.MaxConcurrent() {
		return Decision{Reason: ReasonGlobal}
	}
	if demand.Group != "" {
		running, maxConcurrent, ok := state.Group(demand.Group)
		if !ok || running >= maxConcurrent {
			return Decision{Reason: ReasonGroup}
		}
	}
	for name, units := range demand.Resources {
		allocated, capacity, ok := state.Resource(name)
		if !ok || allocated+units > capacity {
			return Decision{Reason: ReasonResource, Resource: name}
		}
	}
	return Decision{Admitted: true}
}

// New creates an admission controller
func New() *Controller {
	return &Controller{}
}

type without struct {
	State
	released task.Demand
}

func (w *without) Running() int {
	return w.State.Running() - 1
}

func (w *without) Group(name string) (int, int, bool) {
	running, maxConcurrent, ok := w.State.Group(name)
	if ok && name == w.released.Group {
		running--
	}
	return running, maxConcurrent, ok
}

func (w *without) Resource(name string) (int, int, bool) {
	allocated, capacity, ok := w.State.Resource(name)
	if ok {
		allocated -= w.released.Resources[name]
	}
	return allocated, capacity, ok
}

// Without returns a view of state as if a running submission holding
// released had settled.
func Without(state State, released task.Demand) State {
	return &without{State: state, released: released}
}
