// Package preemption decides whether an incoming submission may stop a
// running lower-priority one.
package preemption

import (
	"sort"
	"time"

	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/service/admission"
)

// Config controls preemption
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Gap is the minimum effective priority difference between candidate
	// and victim.
	Gap int `json:"gap" yaml:"gap"`
	// PreemptorLevel is the minimum effective priority a candidate needs
	// to preempt anything.
	PreemptorLevel priority.Level `json:"preemptorLevel" yaml:"preemptorLevel"`
	// ForResources allows preemption when admission fails on group or
	// resource capacity, not only on the global ceiling.
	ForResources bool `json:"forResources" yaml:"forResources"`
}

// DefaultConfig returns disabled preemption where only CRITICAL preempts
// lower tiers.
func DefaultConfig() Config {
	return Config{Gap: 1, PreemptorLevel: priority.Critical}
}

// Validate checks config values
func (c Config) Validate() error {
	if c.Gap < 1 {
		return types.NewConfigError("preemptionGap", "must be >= 1, got %v", c.Gap)
	}
	if !c.PreemptorLevel.IsValid() {
		return types.NewConfigError("preemptorLevel", "unsupported level %v", c.PreemptorLevel)
	}
	return nil
}

// Running describes a running submission as seen by the controller
type Running struct {
	InstanceID string
	Priority   priority.Level
	StartedAt  time.Time
	Seq        uint64
	Demand     task.Demand
}

// Controller selects preemption victims
type Controller struct {
	config    Config
	admission *admission.Controller
}

// Configure replaces preemption settings
func (c *Controller) Configure(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	c.config = config
	return nil
}

// SetEnabled toggles preemption
func (c *Controller) SetEnabled(enabled bool) {
	c.config.Enabled = enabled
}

// Config returns current settings
func (c *Controller) Config() Config {
	return c.config
}

// Consulted returns true when a failed admission with reason may be
// resolved by preemption.
func (c *Controller) Consulted(reason admission.Reason) bool {
	if !c.config.Enabled {
		return false
	}
	switch reason {
	case admission.ReasonGlobal:
		return true
	case admission.ReasonGroup, admission.ReasonResource:
		return c.config.ForResources
	}
	return false
}

// Eligible returns true when candidate outranks victim by the configured gap
func (c *Controller) Eligible(candidate, victim priority.Level) bool {
	if candidate < c.config.PreemptorLevel {
		return false
	}
	return int(candidate)-int(victim) >= c.config.Gap
}

// FindVictim returns the lowest priority running submission whose release
// makes candidate admissible, or nil. Among equal priorities the most
// recently started one is chosen.
func (c *Controller) FindVictim(candidate *task.Submission, running []*Running, state admission.State) *Running {
	if !c.config.Enabled || len(running) == 0 {
		return nil
	}
	ranked := make([]*Running, len(running))
	copy(ranked, running)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority < ranked[j].Priority
		}
		if !ranked[i].StartedAt.Equal(ranked[j].StartedAt) {
			return ranked[i].StartedAt.After(ranked[j].StartedAt)
		}
		return ranked[i].Seq > ranked[j].Seq
	})
	effective := candidate.Effective()
	demand := candidate.Demand()
	for _, victim := range ranked {
		if !c.Eligible(effective, victim.Priority) {
			// ranked ascending: no higher victim can satisfy the gap either
			return nil
		}
		if c.admission.Admit(demand, admission.Without(state, victim.Demand)).Admitted {
			return victim
		}
	}
	return nil
}

// New creates a controller using admission to simulate releases
func New(controller *admission.Controller, config Config) *Controller {
	if controller == nil {
		controller = admission.New()
	}
	return &Controller{config: config, admission: controller}
}
