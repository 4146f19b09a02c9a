package sched

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/viant/sched/extension"
	"github.com/viant/sched/service/event"
	"github.com/viant/sched/service/scheduler"
	"github.com/viant/sched/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the Service
type Option func(s *Service)

// WithLogger overrides the logger built from Config.Logging
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventService publishes lifecycle events onto service, regardless of Config.Events
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithExecutors sets the executor registry
func WithExecutors(executors *extension.Executors) Option {
	return func(s *Service) {
		s.executors = executors
	}
}

// WithMetricsRegisterer registers collectors on reg instead of the default
// registerer; it enables metrics regardless of Config.Metrics.
func WithMetricsRegisterer(reg prom.Registerer) Option {
	return func(s *Service) {
		s.registerer = reg
	}
}

// WithSchedulerOptions passes additional options to the scheduler, e.g. a clock
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(s *Service) {
		s.schedulerOptions = append(s.schedulerOptions, opts...)
	}
}

// WithTracing configures OpenTelemetry tracing. If outputFile is empty the
// stdout exporter is used. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.initTracing(func() error { return tracing.Init(serviceName, serviceVersion, outputFile) })
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter (OTLP, Jaeger, Zipkin, in-memory).
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.initTracing(func() error { return tracing.InitWithExporter(serviceName, serviceVersion, exporter) })
	}
}
