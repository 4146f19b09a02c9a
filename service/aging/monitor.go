// Package aging raises the priority of submissions that waited too long.
package aging

import (
	"time"

	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
)

// Config controls aging
type Config struct {
	WaitingTimeThreshold time.Duration `json:"waitingTimeThreshold" yaml:"waitingTimeThreshold"`
	BoostAmount          int           `json:"boostAmount" yaml:"boostAmount"`
}

// Enabled returns true when aging applies
func (c Config) Enabled() bool {
	return c.WaitingTimeThreshold > 0 && c.BoostAmount > 0
}

// Validate checks config values
func (c Config) Validate() error {
	if c.WaitingTimeThreshold < 0 {
		return types.NewConfigError("aging.waitingTimeThreshold", "must be >= 0, got %v", c.WaitingTimeThreshold)
	}
	if c.BoostAmount < 0 {
		return types.NewConfigError("aging.boostAmount", "must be >= 0, got %v", c.BoostAmount)
	}
	return nil
}

// Monitor applies a one-time boost to submissions waiting past a threshold.
type Monitor struct {
	config Config
}

// Configure replaces aging settings. A zero config disables aging; boosts
// already applied are kept.
func (m *Monitor) Configure(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.config = config
	return nil
}

// Config returns current settings
func (m *Monitor) Config() Config {
	return m.config
}

// Refresh boosts eligible pending submissions in place and returns the
// ones boosted by this call.
func (m *Monitor) Refresh(pending []*task.Submission, now time.Time) []*task.Submission {
	if !m.config.Enabled() {
		return nil
	}
	var boosted []*task.Submission
	for _, candidate := range pending {
		if candidate.Boosted {
			continue
		}
		if now.Sub(candidate.EnqueuedAt) < m.config.WaitingTimeThreshold {
			continue
		}
		candidate.Boost += m.config.BoostAmount
		candidate.Boosted = true
		boosted = append(boosted, candidate)
	}
	return boosted
}

// New creates a monitor, disabled until configured
func New() *Monitor {
	return &Monitor{}
}
