package policy

import (
	"sort"
	"strings"

	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"gopkg.in/yaml.v3"
)

// Policy names the tie-break rule applied among equal effective priorities.
type Policy string

// Ordering policies recognised by the scheduler.
const (
	FIFO Policy = "fifo" // ascending enqueue time
	SJF  Policy = "sjf"  // ascending estimated duration
	EDF  Policy = "edf"  // ascending deadline
)

// Parse converts a policy name to Policy. Long forms such as
// "shortest-job-first" are accepted.
func Parse(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fifo", "first-in-first-out":
		return FIFO, nil
	case "sjf", "shortest-job-first", "shortest_job_first":
		return SJF, nil
	case "edf", "earliest-deadline-first", "earliest_deadline_first", "deadline":
		return EDF, nil
	}
	return "", types.NewConfigError("policy", "unsupported ordering policy: %q", name)
}

// IsValid returns true for a known policy
func (p Policy) IsValid() bool {
	switch p {
	case FIFO, SJF, EDF:
		return true
	}
	return false
}

// UnmarshalYAML implements yaml.Unmarshaler
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := Parse(node.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Less reports whether a should run before b: higher effective priority
// first, then the policy key, then enqueue order.
func (p Policy) Less(a, b *task.Submission) bool {
	if ea, eb := a.Effective(), b.Effective(); ea != eb {
		return ea > eb
	}
	switch p {
	case SJF:
		if a.HasEstimate() != b.HasEstimate() {
			return a.HasEstimate()
		}
		if a.EstimatedDuration != b.EstimatedDuration {
			return a.EstimatedDuration < b.EstimatedDuration
		}
	case EDF:
		if a.HasDeadline() != b.HasDeadline() {
			return a.HasDeadline()
		}
		if !a.Deadline.Equal(b.Deadline) {
			return a.Deadline.Before(b.Deadline)
		}
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.Seq < b.Seq
}

// Order returns a ranked copy of pending; the input slice is not modified.
func (p Policy) Order(pending []*task.Submission) []*task.Submission {
	ret := make([]*task.Submission, len(pending))
	copy(ret, pending)
	sort.SliceStable(ret, func(i, j int) bool {
		return p.Less(ret[i], ret[j])
	})
	return ret
}
