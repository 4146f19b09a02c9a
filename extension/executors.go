package extension

import (
	"fmt"
	"sort"
	"sync"

	"github.com/viant/sched/model/task"
)

// Executors maps task-type ids to executors
type Executors struct {
	executors map[string]task.Executor
	mux       sync.RWMutex
}

// Register registers an executor for id, replacing a previous one
func (e *Executors) Register(id string, executor task.Executor) error {
	if id == "" {
		return fmt.Errorf("executor id was empty")
	}
	if executor == nil {
		return fmt.Errorf("executor for %v was nil", id)
	}
	e.mux.Lock()
	defer e.mux.Unlock()
	e.executors[id] = executor
	return nil
}

// Lookup returns an executor by id or nil
func (e *Executors) Lookup(id string) task.Executor {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.executors[id]
}

// IDs returns registered ids, sorted
func (e *Executors) IDs() []string {
	e.mux.RLock()
	defer e.mux.RUnlock()
	ret := make([]string, 0, len(e.executors))
	for id := range e.executors {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// NewExecutors creates an empty registry
func NewExecutors() *Executors {
	return &Executors{executors: make(map[string]task.Executor)}
}
