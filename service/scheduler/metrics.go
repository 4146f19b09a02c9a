package scheduler

import (
	"time"

	"github.com/viant/sched/model/priority"
)

// Metrics receives scheduler measurements. Implementations must not block.
type Metrics interface {
	RecordSubmitted(level priority.Level)
	RecordStarted(level priority.Level, wait time.Duration)
	RecordSettled(level priority.Level, outcome Outcome, run time.Duration)
	RecordQueue(pending, running int)
	RecordResource(name string, allocated, capacity int)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmitted(priority.Level)                       {}
func (noopMetrics) RecordStarted(priority.Level, time.Duration)          {}
func (noopMetrics) RecordSettled(priority.Level, Outcome, time.Duration) {}
func (noopMetrics) RecordQueue(int, int)                                 {}
func (noopMetrics) RecordResource(string, int, int)                      {}
