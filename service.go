package sched

import (
	"context"
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/sched/extension"
	"github.com/viant/sched/internal/logging"
	schedprom "github.com/viant/sched/metrics/prometheus"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/service/event"
	"github.com/viant/sched/service/messaging/memory"
	"github.com/viant/sched/service/scheduler"
	"github.com/viant/sched/tracing"
)

// Service bundles the scheduler with its event bus, executor registry and metrics.
type Service struct {
	config           *Config
	scheduler        *scheduler.Service
	events           *event.Service
	ownEvents        bool
	executors        *extension.Executors
	metrics          *schedprom.MetricsExporter
	registerer       prom.Registerer
	logger           logrus.FieldLogger
	schedulerOptions []scheduler.Option
	tracingErr       error
	ownTracing       bool
}

// Scheduler returns the scheduler
func (s *Service) Scheduler() *scheduler.Service {
	return s.scheduler
}

// Events returns the event service, nil when events are disabled
func (s *Service) Events() *event.Service {
	return s.events
}

// Executors returns the executor registry
func (s *Service) Executors() *extension.Executors {
	return s.executors
}

// Metrics returns the Prometheus exporter, nil when metrics are disabled
func (s *Service) Metrics() *schedprom.MetricsExporter {
	return s.metrics
}

// Config returns the config the service was built from
func (s *Service) Config() *Config {
	return s.config
}

// RegisterExecutor registers the executor used by submissions of id
func (s *Service) RegisterExecutor(id string, executor task.Executor) error {
	return s.executors.Register(id, executor)
}

// Submit enqueues a submission
func (s *Service) Submit(ctx context.Context, descriptor *task.Descriptor) (*scheduler.Handle, error) {
	return s.scheduler.Submit(ctx, descriptor)
}

// Start runs periodic reassessment until ctx is done or Shutdown is called
func (s *Service) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Shutdown stops the scheduler, then closes the event service and tracing
// provider when this service created them.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.scheduler.Shutdown(ctx)
	if s.ownEvents && s.events != nil {
		s.events.Close()
	}
	if s.ownTracing {
		s.ownTracing = false
		err = errors.Join(err, tracing.Shutdown(ctx))
	}
	return err
}

// initTracing installs a provider unless one is already active
func (s *Service) initTracing(install func() error) {
	if s.tracingErr != nil || tracing.Enabled() {
		return
	}
	s.tracingErr = install()
	s.ownTracing = s.tracingErr == nil
}

func (s *Service) init(config *Config) error {
	if s.logger == nil {
		logger, err := logging.New(config.Logging, nil)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = logger
	}
	if s.executors == nil {
		s.executors = extension.NewExecutors()
	}
	if s.events == nil && config.Events.Enabled {
		options := []event.Option{
			event.WithLogger(s.logger),
			event.WithNewMemoryQueueConfig(func(name string) memory.Config {
				ret := event.DefaultQueueConfig(name)
				if config.Events.QueueBuffer > 0 {
					ret.QueueBuffer = config.Events.QueueBuffer
				}
				return ret
			}),
		}
		if config.Events.JournalURL != "" {
			options = append(options, event.WithJournal(afs.New(), config.Events.JournalURL))
		}
		events, err := event.New(options...)
		if err != nil {
			return fmt.Errorf("failed to create event service: %w", err)
		}
		s.events = events
		s.ownEvents = true
	}
	if s.registerer != nil || config.Metrics.Enabled {
		exporter, err := schedprom.NewMetricsExporter(config.Metrics.Namespace, s.registerer, schedprom.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		s.metrics = exporter
	}
	if config.Tracing.Enabled {
		s.initTracing(func() error {
			return tracing.Init(config.Tracing.ServiceName, config.Tracing.ServiceVersion, config.Tracing.OutputFile)
		})
	}
	if s.tracingErr != nil {
		return fmt.Errorf("failed to init tracing: %w", s.tracingErr)
	}

	options := []scheduler.Option{
		scheduler.WithConfig(config.SchedulerConfig()),
		scheduler.WithLogger(s.logger),
		scheduler.WithExecutors(s.executors),
	}
	if s.events != nil {
		options = append(options, scheduler.WithEventService(s.events))
	}
	if s.metrics != nil {
		options = append(options, scheduler.WithMetrics(s.metrics))
	}
	options = append(options, s.schedulerOptions...)
	var err error
	if s.scheduler, err = scheduler.New(options...); err != nil {
		return err
	}
	return s.apply(config)
}

// apply defines resources, then groups, then task profiles
func (s *Service) apply(config *Config) error {
	for _, res := range config.Resources {
		if err := s.scheduler.DefineResource(res.Name, res.Capacity); err != nil {
			return err
		}
	}
	for i := range config.Groups {
		g := &config.Groups[i]
		if err := s.scheduler.CreateGroup(g.Name, g.Options()); err != nil {
			return err
		}
	}
	for _, profile := range config.Tasks {
		if err := s.scheduler.SetProfile(profile); err != nil {
			return fmt.Errorf("failed to apply task %v: %w", profile.ID, err)
		}
	}
	return nil
}

// New creates a service with DefaultConfig
func New(options ...Option) (*Service, error) {
	return NewFromConfig(DefaultConfig(), options...)
}

// NewFromConfig validates config and creates a service
func NewFromConfig(config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(config); err != nil {
		return nil, err
	}
	return ret, nil
}
