package event

import "time"

// Type names a lifecycle notification
type Type string

// Lifecycle notifications emitted by the scheduler.
const (
	TaskSubmitted Type = "task-submitted"
	TaskStarted   Type = "task-started"
	TaskCompleted Type = "task-completed"
	TaskFailed    Type = "task-failed"
	TaskPreempted Type = "task-preempted"
	TaskCancelled Type = "task-cancelled"
)

// Context identifies the submission an event refers to
type Context struct {
	TaskID      string `json:"taskID"`
	InstanceID  string `json:"instanceID"`
	EventType   Type   `json:"eventType"`
	Priority    string `json:"priority,omitempty"`
	Group       string `json:"group,omitempty"`
	TimeTakenMs int    `json:"timeTakenMs,omitempty"`
}

type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata"`
	Data      T                      `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}
