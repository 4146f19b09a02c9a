// Package sched provides a priority based concurrent task scheduler.
//
// Submissions are ordered by effective priority and tie-broken by the
// active policy (FIFO, shortest-job-first or earliest-deadline-first).
// Admission respects a global ceiling, per-group ceilings and named
// resource pools. Higher priority work may preempt running work, and
// priority aging keeps long waiting submissions from starving.
//
// The root package wires the scheduler with its ambient stack (logging,
// lifecycle events, Prometheus metrics and OpenTelemetry tracing):
//
//	srv, _ := sched.New()
//	_ = srv.RegisterExecutor("report", buildReport)
//	handle, _ := srv.Submit(ctx, &task.Descriptor{ID: "report", Priority: priority.High})
//	result, err := handle.Wait(ctx)
package sched
