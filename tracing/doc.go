// Package tracing wraps OpenTelemetry so the scheduler can record one span
// per executor run without importing the SDK directly. Without Init the
// global no-op provider is used.
package tracing
