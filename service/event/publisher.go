package event

import (
	"context"
	"time"

	"github.com/viant/sched/service/messaging"
)

// Publisher writes events of T to its typed queue and, when attached to a
// Service, mirrors them on the untyped stream.
type Publisher[T any] struct {
	queue  messaging.Queue[Event[T]]
	mirror messaging.Queue[Event[any]]
}

func NewPublisher[T any](queue messaging.Queue[Event[T]]) *Publisher[T] {
	return &Publisher[T]{queue: queue}
}

// Publish stamps the event and enqueues it. A full or failing mirror never
// fails the typed publish.
func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if p.mirror != nil {
		_ = p.mirror.Publish(ctx, &Event[any]{
			Context:   event.Context,
			CreatedAt: event.CreatedAt,
			Metadata:  event.Metadata,
			Data:      event.Data,
		})
	}
	return p.queue.Publish(ctx, event)
}

// Consume blocks for the next message; the caller acks or nacks it
func (p *Publisher[T]) Consume(ctx context.Context) (messaging.Message[Event[T]], error) {
	return p.queue.Consume(ctx)
}
