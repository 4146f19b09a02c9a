// Package group tracks named concurrency domains, each with its own
// ceiling and an optional priority override.
package group

import (
	"fmt"

	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/types"
)

// Options configures a group
type Options struct {
	Priority      priority.Level `json:"priority,omitempty" yaml:"priority,omitempty"`
	MaxConcurrent int            `json:"maxConcurrent" yaml:"maxConcurrent"`
}

// Group is a named concurrency domain
type Group struct {
	Name             string
	PriorityOverride priority.Level
	MaxConcurrent    int
	Running          int
}

// Manager tracks groups and their running members. It is owned by a single
// scheduler and not safe for concurrent use on its own.
type Manager struct {
	groups  map[string]*Group
	members map[string]string
}

// Create creates or updates a group; MaxConcurrent may not drop below the
// current running count.
func (m *Manager) Create(name string, options Options) error {
	if name == "" {
		return types.NewConfigError("group.name", "must not be empty")
	}
	if options.MaxConcurrent <= 0 {
		return types.NewConfigError("group.maxConcurrent", "%v: must be > 0, got %v", name, options.MaxConcurrent)
	}
	if options.Priority != priority.Unspecified && !options.Priority.IsValid() {
		return types.NewConfigError("group.priority", "%v: unsupported level %v", name, options.Priority)
	}
	if existing, ok := m.groups[name]; ok {
		if options.MaxConcurrent < existing.Running {
			return types.NewConfigError("group.maxConcurrent", "%v: %v is below running %v", name, options.MaxConcurrent, existing.Running)
		}
		existing.MaxConcurrent = options.MaxConcurrent
		existing.PriorityOverride = options.Priority
		return nil
	}
	m.groups[name] = &Group{Name: name, PriorityOverride: options.Priority, MaxConcurrent: options.MaxConcurrent}
	return nil
}

// Has returns true if group exists
func (m *Manager) Has(name string) bool {
	_, ok := m.groups[name]
	return ok
}

// Usage returns running count and ceiling
func (m *Manager) Usage(name string) (running, maxConcurrent int, ok bool) {
	g, ok := m.groups[name]
	if !ok {
		return 0, 0, false
	}
	return g.Running, g.MaxConcurrent, true
}

// Override returns the group priority override, Unspecified if none
func (m *Manager) Override(name string) priority.Level {
	if g, ok := m.groups[name]; ok {
		return g.PriorityOverride
	}
	return priority.Unspecified
}

// Acquire takes a group slot for instanceID
func (m *Manager) Acquire(instanceID, name string) error {
	if name == "" {
		return nil
	}
	if _, ok := m.members[instanceID]; ok {
		return fmt.Errorf("instance %v already holds a slot", instanceID)
	}
	g, ok := m.groups[name]
	if !ok {
		return fmt.Errorf("unknown group %v", name)
	}
	if g.Running >= g.MaxConcurrent {
		return fmt.Errorf("group %v is at capacity %v", name, g.MaxConcurrent)
	}
	g.Running++
	m.members[instanceID] = name
	return nil
}

// Release frees the slot held by instanceID; a second call is a no-op.
func (m *Manager) Release(instanceID string) bool {
	name, ok := m.members[instanceID]
	if !ok {
		return false
	}
	delete(m.members, instanceID)
	if g, ok := m.groups[name]; ok {
		g.Running--
	}
	return true
}

// New creates a group manager
func New() *Manager {
	return &Manager{groups: make(map[string]*Group), members: make(map[string]string)}
}
