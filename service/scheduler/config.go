package scheduler

import (
	"errors"
	"time"

	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/policy"
	"github.com/viant/sched/service/aging"
	"github.com/viant/sched/service/preemption"
)

// Config holds scheduler-wide settings
type Config struct {
	DefaultPriority  priority.Level
	Policy           policy.Policy
	MaxConcurrent    int
	Preemption       preemption.Config
	Aging            aging.Config
	ReassessInterval time.Duration
}

// DefaultConfig returns FIFO scheduling of MEDIUM submissions, ten at a time,
// without preemption or aging.
func DefaultConfig() Config {
	return Config{
		DefaultPriority:  priority.Medium,
		Policy:           policy.FIFO,
		MaxConcurrent:    10,
		Preemption:       preemption.DefaultConfig(),
		ReassessInterval: time.Second,
	}
}

// Validate checks all settings and joins every violation found
func (c *Config) Validate() error {
	var errs []error
	if !c.DefaultPriority.IsValid() {
		errs = append(errs, types.NewConfigError("defaultPriority", "unsupported level %v", c.DefaultPriority))
	}
	if !c.Policy.IsValid() {
		errs = append(errs, types.NewConfigError("defaultPolicy", "unsupported policy %q", c.Policy))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, types.NewConfigError("maxConcurrentTasks", "must be positive, got %v", c.MaxConcurrent))
	}
	if c.ReassessInterval < 0 {
		errs = append(errs, types.NewConfigError("reassessInterval", "must not be negative, got %v", c.ReassessInterval))
	}
	if err := c.Preemption.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Aging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
