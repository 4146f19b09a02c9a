// Package task defines task descriptors, task-type profiles and the
// submission record tracked by the scheduler.
package task

import (
	"context"
	"time"

	"github.com/viant/sched/model/priority"
)

// Executor runs a unit of work. It should observe ctx cancellation (or the
// execution.Token carried by ctx) and return promptly when preempted.
type Executor func(ctx context.Context, input interface{}) (interface{}, error)

// Descriptor describes a single submit request
type Descriptor struct {
	ID                string
	Executor          Executor
	Input             interface{}
	Priority          priority.Level
	EstimatedDuration time.Duration
	Deadline          time.Time
	Group             string
	Resources         map[string]int
}

// Profile holds task-type defaults applied to every submission of ID.
type Profile struct {
	ID                string         `json:"id" yaml:"id"`
	Priority          priority.Level `json:"priority,omitempty" yaml:"priority,omitempty"`
	EstimatedDuration time.Duration  `json:"estimatedDuration,omitempty" yaml:"estimatedDuration,omitempty"`
	DeadlineIn        time.Duration  `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Group             string         `json:"group,omitempty" yaml:"group,omitempty"`
	Resources         map[string]int `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	ret := *p
	ret.Resources = CloneResources(p.Resources)
	return &ret
}

// Demand is the capacity a submission holds while running.
type Demand struct {
	Group     string
	Resources map[string]int
}

// Submission is one request to run a unit of work.
type Submission struct {
	ID         string
	InstanceID string
	// Requested is the priority resolved before any group override.
	Requested         priority.Level
	Base              priority.Level
	Boost             int
	Boosted           bool
	EnqueuedAt        time.Time
	EstimatedDuration time.Duration
	Deadline          time.Time
	Group             string
	Resources         map[string]int
	// Seq orders submissions sharing an EnqueuedAt timestamp.
	Seq      uint64
	Input    interface{}
	Executor Executor
}

// Effective returns the base priority raised by the aging boost.
func (s *Submission) Effective() priority.Level {
	return s.Base.Add(s.Boost)
}

// HasEstimate returns true if an estimated duration was supplied
func (s *Submission) HasEstimate() bool {
	return s.EstimatedDuration > 0
}

// HasDeadline returns true if a deadline was supplied
func (s *Submission) HasDeadline() bool {
	return !s.Deadline.IsZero()
}

// Demand returns the capacity required to run the submission
func (s *Submission) Demand() Demand {
	return Demand{Group: s.Group, Resources: s.Resources}
}

// CloneResources returns a copy of a resource requirement map
func CloneResources(resources map[string]int) map[string]int {
	if resources == nil {
		return nil
	}
	ret := make(map[string]int, len(resources))
	for k, v := range resources {
		ret[k] = v
	}
	return ret
}
