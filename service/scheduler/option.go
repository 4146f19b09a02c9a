package scheduler

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/sched/extension"
	"github.com/viant/sched/internal/clock"
	"github.com/viant/sched/internal/idgen"
	"github.com/viant/sched/progress"
	"github.com/viant/sched/service/event"
)

// Option configures the scheduler
type Option func(s *Service)

// WithConfig replaces the default config; it is validated by New
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithIDGenerator overrides instance id generation
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Service) {
		s.newID = gen
	}
}

// WithEventService publishes lifecycle notifications onto events
func WithEventService(events *event.Service) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithExecutors sets the registry used for descriptors without an executor
func WithExecutors(executors *extension.Executors) Option {
	return func(s *Service) {
		s.executors = executors
	}
}

// WithProgress sets the counters tracker
func WithProgress(p *progress.Progress) Option {
	return func(s *Service) {
		s.progress = p
	}
}
