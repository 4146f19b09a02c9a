// Package policy defines the ordering policies used to rank pending
// submissions: FIFO, shortest-job-first and earliest-deadline-first.
package policy
