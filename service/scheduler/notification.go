package scheduler

import (
	"context"
	"time"

	"github.com/viant/sched/model/task"
	"github.com/viant/sched/runtime/execution"
	"github.com/viant/sched/service/event"
)

// Notification is the payload of scheduler lifecycle events
type Notification struct {
	TaskID     string `json:"taskID"`
	InstanceID string `json:"instanceID"`
	Priority   string `json:"priority"`
	Group      string `json:"group,omitempty"`
	Error      string `json:"error,omitempty"`
}

type notice struct {
	eventType event.Type
	sub       *task.Submission
	err       error
	took      time.Duration
}

type cancellation struct {
	token *execution.Token
	cause error
}

// batch collects side effects of a pass to apply once the lock is released
type batch struct {
	notices []notice
	cancels []cancellation
}

func (b *batch) add(eventType event.Type, sub *task.Submission, took time.Duration, err error) {
	b.notices = append(b.notices, notice{eventType: eventType, sub: sub, took: took, err: err})
}

// cancel defers token cancellation until s.mux is released. Token
// observers run executor code that may call back into the scheduler.
func (b *batch) cancel(token *execution.Token, cause error) {
	b.cancels = append(b.cancels, cancellation{token: token, cause: cause})
}

// commit queues the batch notices in pass order, releases s.mux, then
// cancels the tokens of stopped executors. The caller holds s.mux.
func (s *Service) commit(b *batch) {
	s.enqueue(b)
	s.mux.Unlock()
	for _, c := range b.cancels {
		c.token.Cancel(c.cause)
	}
}

func (s *Service) enqueue(b *batch) {
	if s.publisher == nil || len(b.notices) == 0 {
		return
	}
	s.emitMux.Lock()
	s.emitQueue = append(s.emitQueue, b)
	s.emitMux.Unlock()
	select {
	case s.emitSignal <- struct{}{}:
	default:
	}
}

// runEmitter publishes queued batches in order. Publishing never holds a
// scheduler lock, so a blocking queue only delays notifications.
func (s *Service) runEmitter() {
	defer close(s.emitDone)
	for {
		s.emitMux.Lock()
		batches, stopping := s.emitQueue, s.emitStopping
		s.emitQueue = nil
		s.emitMux.Unlock()
		for _, b := range batches {
			s.emit(context.Background(), b)
		}
		if len(batches) > 0 {
			continue
		}
		if stopping {
			return
		}
		<-s.emitSignal
	}
}

// stopEmitter lets the emitter drain what was queued and exit
func (s *Service) stopEmitter() <-chan struct{} {
	if s.emitDone == nil {
		return nil
	}
	s.emitMux.Lock()
	s.emitStopping = true
	s.emitMux.Unlock()
	select {
	case s.emitSignal <- struct{}{}:
	default:
	}
	return s.emitDone
}

func (s *Service) emit(ctx context.Context, b *batch) {
	for _, n := range b.notices {
		payload := &Notification{
			TaskID:     n.sub.ID,
			InstanceID: n.sub.InstanceID,
			Priority:   n.sub.Effective().String(),
			Group:      n.sub.Group,
		}
		if n.err != nil {
			payload.Error = n.err.Error()
		}
		evt := event.NewEvent(&event.Context{
			TaskID:      n.sub.ID,
			InstanceID:  n.sub.InstanceID,
			EventType:   n.eventType,
			Priority:    payload.Priority,
			Group:       n.sub.Group,
			TimeTakenMs: int(n.took.Milliseconds()),
		}, payload)
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.WithError(err).WithField("event", n.eventType).Debug("event dropped")
		}
	}
}
