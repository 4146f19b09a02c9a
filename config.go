package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/afs"
	"github.com/viant/sched/internal/logging"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/policy"
	"github.com/viant/sched/service/aging"
	"github.com/viant/sched/service/group"
	"github.com/viant/sched/service/preemption"
	"github.com/viant/sched/service/scheduler"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the scheduler configuration.
// Fields left out of a YAML document keep their DefaultConfig values.
type Config struct {
	DefaultPriority     priority.Level   `json:"defaultPriority" yaml:"defaultPriority"`
	DefaultPolicy       policy.Policy    `json:"defaultPolicy" yaml:"defaultPolicy"`
	MaxConcurrentTasks  int              `json:"maxConcurrentTasks" yaml:"maxConcurrentTasks"`
	EnablePreemption    bool             `json:"enablePreemption" yaml:"enablePreemption"`
	PreemptionGap       int              `json:"preemptionGap" yaml:"preemptionGap"`
	PreemptorLevel      priority.Level   `json:"preemptorLevel" yaml:"preemptorLevel"`
	PreemptForResources bool             `json:"preemptForResources" yaml:"preemptForResources"`
	ReassessInterval    time.Duration    `json:"reassessInterval" yaml:"reassessInterval"`
	Aging               aging.Config     `json:"aging" yaml:"aging"`
	Resources           []ResourceConfig `json:"resources,omitempty" yaml:"resources,omitempty"`
	Groups              []GroupConfig    `json:"groups,omitempty" yaml:"groups,omitempty"`
	Tasks               []*task.Profile  `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Events              EventsConfig     `json:"events" yaml:"events"`
	Logging             logging.Config   `json:"logging" yaml:"logging"`
	Metrics             MetricsConfig    `json:"metrics" yaml:"metrics"`
	Tracing             TracingConfig    `json:"tracing" yaml:"tracing"`
}

// ResourceConfig defines a named capacity pool
type ResourceConfig struct {
	Name     string `json:"name" yaml:"name"`
	Capacity int    `json:"capacity" yaml:"capacity"`
}

// GroupConfig defines a named concurrency domain
type GroupConfig struct {
	Name          string         `json:"name" yaml:"name"`
	Priority      priority.Level `json:"priority,omitempty" yaml:"priority,omitempty"`
	MaxConcurrent int            `json:"maxConcurrent" yaml:"maxConcurrent"`
}

// Options returns group manager options
func (g *GroupConfig) Options() group.Options {
	return group.Options{Priority: g.Priority, MaxConcurrent: g.MaxConcurrent}
}

type EventsConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	QueueBuffer int    `json:"queueBuffer,omitempty" yaml:"queueBuffer,omitempty"`
	// JournalURL persists events to afs storage instead of memory queues
	JournalURL string `json:"journalURL,omitempty" yaml:"journalURL,omitempty"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

type TracingConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	ServiceName    string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty" yaml:"serviceVersion,omitempty"`
	OutputFile     string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config populated with scheduler defaults
func DefaultConfig() *Config {
	defaults := scheduler.DefaultConfig()
	return &Config{
		DefaultPriority:    defaults.DefaultPriority,
		DefaultPolicy:      defaults.Policy,
		MaxConcurrentTasks: defaults.MaxConcurrent,
		PreemptionGap:      defaults.Preemption.Gap,
		PreemptorLevel:     defaults.Preemption.PreemptorLevel,
		ReassessInterval:   defaults.ReassessInterval,
		Logging:            logging.Config{Level: "info", Format: logging.FormatText},
		Metrics:            MetricsConfig{Namespace: "sched"},
		Tracing:            TracingConfig{ServiceName: "sched"},
	}
}

// SchedulerConfig returns the scheduler section of the config
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		DefaultPriority: c.DefaultPriority,
		Policy:          c.DefaultPolicy,
		MaxConcurrent:   c.MaxConcurrentTasks,
		Preemption: preemption.Config{
			Enabled:        c.EnablePreemption,
			Gap:            c.PreemptionGap,
			PreemptorLevel: c.PreemptorLevel,
			ForResources:   c.PreemptForResources,
		},
		Aging:            c.Aging,
		ReassessInterval: c.ReassessInterval,
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	schedulerConfig := c.SchedulerConfig()
	errs := []error{schedulerConfig.Validate()}
	resources := map[string]bool{}
	for i, res := range c.Resources {
		if res.Name == "" {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("resources[%d].name", i), "was empty"))
		}
		if res.Capacity <= 0 {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("resources[%d].capacity", i), "must be positive, got %v", res.Capacity))
		}
		resources[res.Name] = true
	}
	groups := map[string]bool{}
	for i, g := range c.Groups {
		if g.Name == "" {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("groups[%d].name", i), "was empty"))
		}
		if g.MaxConcurrent <= 0 {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("groups[%d].maxConcurrent", i), "must be positive, got %v", g.MaxConcurrent))
		}
		groups[g.Name] = true
	}
	for i, profile := range c.Tasks {
		if profile == nil || profile.ID == "" {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("tasks[%d].id", i), "was empty"))
			continue
		}
		if profile.Group != "" && !groups[profile.Group] {
			errs = append(errs, types.NewConfigError(fmt.Sprintf("tasks[%d].group", i), "unknown group %q", profile.Group))
		}
		for name := range profile.Resources {
			if !resources[name] {
				errs = append(errs, types.NewConfigError(fmt.Sprintf("tasks[%d].resources", i), "unknown resource %q", name))
			}
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML config from any afs supported URL
// (file://, mem://, embed://, s3:// ...).
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result
func ParseConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
