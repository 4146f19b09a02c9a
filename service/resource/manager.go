package resource

import (
	"fmt"

	"github.com/viant/sched/model/types"
)

// Resource is a named capacity pool
type Resource struct {
	Name      string `json:"name" yaml:"name"`
	Capacity  int    `json:"capacity" yaml:"capacity"`
	Allocated int    `json:"allocated,omitempty" yaml:"-"`
}

// Manager tracks capacity pools and per-instance reservations
type Manager struct {
	resources    map[string]*Resource
	reservations map[string]map[string]int
}

// Define creates or resizes a resource. Capacity must be positive and not
// below what is currently allocated.
func (m *Manager) Define(name string, capacity int) error {
	if name == "" {
		return types.NewConfigError("resource.name", "must not be empty")
	}
	if capacity <= 0 {
		return types.NewConfigError("resource.capacity", "%v: must be > 0, got %v", name, capacity)
	}
	if existing, ok := m.resources[name]; ok {
		if capacity < existing.Allocated {
			return types.NewConfigError("resource.capacity", "%v: %v is below allocated %v", name, capacity, existing.Allocated)
		}
		existing.Capacity = capacity
		return nil
	}
	m.resources[name] = &Resource{Name: name, Capacity: capacity}
	return nil
}

// Has returns true if resource is defined
func (m *Manager) Has(name string) bool {
	_, ok := m.resources[name]
	return ok
}

// Usage returns allocated and capacity units
func (m *Manager) Usage(name string) (allocated, capacity int, ok bool) {
	res, ok := m.resources[name]
	if !ok {
		return 0, 0, false
	}
	return res.Allocated, res.Capacity, true
}

// CheckRequirements validates requirement units are positive
func CheckRequirements(requirements map[string]int) error {
	for name, units := range requirements {
		if name == "" {
			return types.NewConfigError("resources", "resource name must not be empty")
		}
		if units <= 0 {
			return types.NewConfigError("resources", "%v: units must be > 0, got %v", name, units)
		}
	}
	return nil
}

// Schedulable returns ErrUnschedulable when requirements reference an
// unknown resource or exceed total capacity.
func (m *Manager) Schedulable(requirements map[string]int) error {
	for name, units := range requirements {
		res, ok := m.resources[name]
		if !ok {
			return fmt.Errorf("%w: unknown resource %v", types.ErrUnschedulable, name)
		}
		if units > res.Capacity {
			return fmt.Errorf("%w: %v requires %v units, capacity is %v", types.ErrUnschedulable, name, units, res.Capacity)
		}
	}
	return nil
}

// Fits returns true if every requirement can be reserved now
func (m *Manager) Fits(requirements map[string]int) bool {
	for name, units := range requirements {
		res, ok := m.resources[name]
		if !ok || res.Allocated+units > res.Capacity {
			return false
		}
	}
	return true
}

// Reserve allocates requirements for instanceID; all or nothing.
func (m *Manager) Reserve(instanceID string, requirements map[string]int) error {
	if _, ok := m.reservations[instanceID]; ok {
		return fmt.Errorf("instance %v already holds a reservation", instanceID)
	}
	if !m.Fits(requirements) {
		return fmt.Errorf("insufficient capacity for instance %v", instanceID)
	}
	reservation := make(map[string]int, len(requirements))
	for name, units := range requirements {
		m.resources[name].Allocated += units
		reservation[name] = units
	}
	m.reservations[instanceID] = reservation
	return nil
}

// Release frees instanceID reservation. It returns false when nothing was
// held, so a second release is a no-op.
func (m *Manager) Release(instanceID string) bool {
	reservation, ok := m.reservations[instanceID]
	if !ok {
		return false
	}
	delete(m.reservations, instanceID)
	for name, units := range reservation {
		if res, ok := m.resources[name]; ok {
			res.Allocated -= units
		}
	}
	return true
}

// New creates a resource manager
func New() *Manager {
	return &Manager{
		resources:    make(map[string]*Resource),
		reservations: make(map[string]map[string]int),
	}
}
