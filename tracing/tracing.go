package tracing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/viant/sched"

// Init configures OpenTelemetry with the stdout exporter backed by either
// os.Stdout or the specified file. The first successful initialisation wins;
// later calls leave the installed provider and do not touch outputFile.
func Init(serviceName, serviceVersion, outputFile string) error {
	return install(serviceName, serviceVersion, func() (sdktrace.SpanExporter, io.Closer, error) {
		var w io.Writer = os.Stdout
		var closer io.Closer
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return nil, nil, err
			}
			w, closer = f, f
		}
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil && closer != nil {
			_ = closer.Close()
		}
		return exporter, closer, err
	})
}

// InitWithExporter configures OpenTelemetry using the supplied SpanExporter
// (OTLP, Jaeger, Zipkin, in-memory test exporters).
func InitWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) error {
	if exporter == nil {
		return nil
	}
	return install(serviceName, serviceVersion, func() (sdktrace.SpanExporter, io.Closer, error) {
		return exporter, nil, nil
	})
}

var (
	providerMux sync.Mutex
	provider    *sdktrace.TracerProvider
	output      io.Closer
)

// Enabled returns true while a provider installed by this package is active
func Enabled() bool {
	providerMux.Lock()
	defer providerMux.Unlock()
	return provider != nil
}

func install(serviceName, serviceVersion string, newExporter func() (sdktrace.SpanExporter, io.Closer, error)) error {
	providerMux.Lock()
	defer providerMux.Unlock()
	if provider != nil {
		return nil
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return err
	}
	exporter, closer, err := newExporter()
	if err != nil {
		return err
	}
	provider = sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	output = closer
	otel.SetTracerProvider(provider)
	return nil
}

// Shutdown flushes and stops the installed provider and closes its output
// file. A later Init installs a new provider.
func Shutdown(ctx context.Context) error {
	providerMux.Lock()
	defer providerMux.Unlock()
	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	if output != nil {
		err = errors.Join(err, output.Close())
	}
	provider, output = nil, nil
	return err
}

// Span wraps an OpenTelemetry span
type Span struct {
	span trace.Span
}

// WithAttributes attaches all provided attributes to the span.
func (s *Span) WithAttributes(attrs map[string]string) *Span {
	if s == nil || len(attrs) == 0 {
		return s
	}
	otelAttrs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		otelAttrs = append(otelAttrs, attribute.String(k, v))
	}
	s.span.SetAttributes(otelAttrs...)
	return s
}

// AddEvent records a named event on the span
func (s *Span) AddEvent(name string) {
	if s == nil {
		return
	}
	s.span.AddEvent(name)
}

// SetStatus records an error status on the span. If err is nil an OK status is recorded instead.
func (s *Span) SetStatus(err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
}

// StartSpan starts a child span. Kind is one of SERVER, CLIENT, PRODUCER,
// CONSUMER; anything else maps to INTERNAL.
func StartSpan(ctx context.Context, name, kind string) (context.Context, *Span) {
	tracer := otel.Tracer(instrumentationName)
	var spanKind trace.SpanKind
	switch kind {
	case "SERVER":
		spanKind = trace.SpanKindServer
	case "CLIENT":
		spanKind = trace.SpanKindClient
	case "PRODUCER":
		spanKind = trace.SpanKindProducer
	case "CONSUMER":
		spanKind = trace.SpanKindConsumer
	default:
		spanKind = trace.SpanKindInternal
	}
	ctx, span := tracer.Start(ctx, name, trace.WithSpanKind(spanKind))
	return ctx, &Span{span: span}
}

// EndSpan finalises the span and records status depending on the provided error.
func EndSpan(sp *Span, err error) {
	if sp == nil {
		return
	}
	sp.SetStatus(err)
	sp.span.End()
}
