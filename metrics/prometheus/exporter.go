// Package prometheus exports scheduler measurements as Prometheus collectors.
package prometheus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/service/scheduler"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	WaitBuckets []float64
	RunBuckets  []float64
}

// MetricsExporter adapts scheduler.Metrics to Prometheus collectors.
type MetricsExporter struct {
	submittedTotal   *prom.CounterVec
	startedTotal     *prom.CounterVec
	settledTotal     *prom.CounterVec
	waitSeconds      *prom.HistogramVec
	runSeconds       *prom.HistogramVec
	pendingTasks     prom.Gauge
	runningTasks     prom.Gauge
	resourceAlloc    *prom.GaugeVec
	resourceCapacity *prom.GaugeVec
}

var _ scheduler.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers collectors. Collectors already
// registered on reg under the same names are reused.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "sched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	waitBuckets := opts.WaitBuckets
	if len(waitBuckets) == 0 {
		waitBuckets = prom.DefBuckets
	}
	runBuckets := opts.RunBuckets
	if len(runBuckets) == 0 {
		runBuckets = prom.DefBuckets
	}

	submitted := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_submitted_total",
		Help:      "Total number of accepted submissions.",
	}, []string{"priority"})
	started := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_started_total",
		Help:      "Total number of started submissions.",
	}, []string{"priority"})
	settled := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_settled_total",
		Help:      "Total number of settled submissions by outcome.",
	}, []string{"priority", "outcome"})
	wait := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_wait_seconds",
		Help:      "Time from submission to start in seconds.",
		Buckets:   waitBuckets,
	}, []string{"priority"})
	run := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_run_seconds",
		Help:      "Time from start to settlement in seconds.",
		Buckets:   runBuckets,
	}, []string{"priority", "outcome"})
	pending := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_tasks",
		Help:      "Current number of pending submissions.",
	})
	running := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "running_tasks",
		Help:      "Current number of running submissions.",
	})
	allocated := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "resource_allocated_units",
		Help:      "Currently reserved units per resource.",
	}, []string{"resource"})
	capacity := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "resource_capacity_units",
		Help:      "Total units per resource.",
	}, []string{"resource"})

	var err error
	if submitted, err = registerCollector(reg, submitted); err != nil {
		return nil, err
	}
	if started, err = registerCollector(reg, started); err != nil {
		return nil, err
	}
	if settled, err = registerCollector(reg, settled); err != nil {
		return nil, err
	}
	if wait, err = registerCollector(reg, wait); err != nil {
		return nil, err
	}
	if run, err = registerCollector(reg, run); err != nil {
		return nil, err
	}
	if pending, err = registerCollector(reg, pending); err != nil {
		return nil, err
	}
	if running, err = registerCollector(reg, running); err != nil {
		return nil, err
	}
	if allocated, err = registerCollector(reg, allocated); err != nil {
		return nil, err
	}
	if capacity, err = registerCollector(reg, capacity); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		submittedTotal:   submitted,
		startedTotal:     started,
		settledTotal:     settled,
		waitSeconds:      wait,
		runSeconds:       run,
		pendingTasks:     pending,
		runningTasks:     running,
		resourceAlloc:    allocated,
		resourceCapacity: capacity,
	}, nil
}

// RecordSubmitted counts an accepted submission
func (m *MetricsExporter) RecordSubmitted(level priority.Level) {
	if m == nil {
		return
	}
	m.submittedTotal.WithLabelValues(priorityLabel(level)).Inc()
}

// RecordStarted counts a start and observes its queue wait
func (m *MetricsExporter) RecordStarted(level priority.Level, wait time.Duration) {
	if m == nil {
		return
	}
	label := priorityLabel(level)
	m.startedTotal.WithLabelValues(label).Inc()
	m.waitSeconds.WithLabelValues(label).Observe(wait.Seconds())
}

// RecordSettled counts a settlement. Run time is observed only for
// submissions that were started.
func (m *MetricsExporter) RecordSettled(level priority.Level, outcome scheduler.Outcome, run time.Duration) {
	if m == nil {
		return
	}
	label := priorityLabel(level)
	outcomeLabel := normalizeLabel(string(outcome), "unknown")
	m.settledTotal.WithLabelValues(label, outcomeLabel).Inc()
	if run > 0 {
		m.runSeconds.WithLabelValues(label, outcomeLabel).Observe(run.Seconds())
	}
}

// RecordQueue records pending and running sizes
func (m *MetricsExporter) RecordQueue(pending, running int) {
	if m == nil {
		return
	}
	m.pendingTasks.Set(float64(pending))
	m.runningTasks.Set(float64(running))
}

// RecordResource records allocation of a resource
func (m *MetricsExporter) RecordResource(name string, allocated, capacity int) {
	if m == nil {
		return
	}
	label := normalizeLabel(name, "unknown")
	m.resourceAlloc.WithLabelValues(label).Set(float64(allocated))
	m.resourceCapacity.WithLabelValues(label).Set(float64(capacity))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func priorityLabel(level priority.Level) string {
	if !level.IsValid() {
		return "unknown"
	}
	return strings.ToLower(level.String())
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
