package event

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Handler processes one event. A returned error, or a panic, nacks the
// message so the queue retries it; nil acknowledges it.
type Handler[T any] func(*Event[T]) error

type Listener[T any] struct {
	publisher *Publisher[T]
	handler   Handler[T]
	logger    logrus.FieldLogger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewListener[T any](publisher *Publisher[T], handler Handler[T], logger logrus.FieldLogger) *Listener[T] {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Listener[T]{
		publisher: publisher,
		handler:   handler,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Stop terminates the consume loop
func (l *Listener[T]) Stop() {
	l.cancel()
}

func (l *Listener[T]) Start() {
	go func() {
		for {
			message, err := l.publisher.Consume(l.ctx)
			if l.ctx.Err() != nil {
				return
			}
			if err != nil {
				l.logger.WithError(err).Warn("failed to consume event")
				continue
			}
			if message == nil {
				continue
			}
			if err = l.handle(message.T()); err != nil {
				l.logger.WithError(err).Warn("event handler failed")
				err = message.Nack(err)
			} else {
				err = message.Ack()
			}
			if err != nil {
				l.logger.WithError(err).Warn("failed to settle event")
			}
		}
	}()
}

func (l *Listener[T]) handle(event *Event[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return l.handler(event)
}
