// Package extension provides the run-time registry of executors keyed by
// task-type id, so submissions may reference work by id alone.
package extension
