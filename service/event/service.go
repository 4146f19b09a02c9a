// Package event is the one-way lifecycle notification bus. The default
// memory queues drop events rather than block publishers; the fs vendor
// journals every event to afs storage. A failing listener handler nacks its
// event for redelivery.
package event

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/sched/service/messaging"
	fsqueue "github.com/viant/sched/service/messaging/fs"
	"github.com/viant/sched/service/messaging/memory"
)

type Service struct {
	publisher         *Publisher[any]
	listener          *Listener[any]
	typedPublishers   map[reflect.Type]any
	typedListener     map[reflect.Type]any
	mux               *sync.RWMutex
	queueVendor       messaging.Vendor
	memNewQueueConfig func(name string) memory.Config
	fs                afs.Service
	journalURL        string
	logger            logrus.FieldLogger
}

// DefaultQueueConfig returns a non-blocking memory queue config
func DefaultQueueConfig(string) memory.Config {
	config := memory.DefaultConfig()
	config.DropWhenFull = true
	return config
}

// SetListener consumes the untyped stream that mirrors every publisher
func (s *Service) SetListener(handler Handler[any]) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener[any](s.publisher, handler, s.logger)
	s.listener.Start()
}

// Close stops all listeners
func (s *Service) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	for _, listener := range s.typedListener {
		if stopper, ok := listener.(interface{ Stop() }); ok {
			stopper.Stop()
		}
	}
}

func New(opts ...Option) (*Service, error) {
	ret := &Service{
		queueVendor:       messaging.VendorMemory,
		typedPublishers:   make(map[reflect.Type]any),
		typedListener:     make(map[reflect.Type]any),
		mux:               &sync.RWMutex{},
		memNewQueueConfig: DefaultQueueConfig,
		logger:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	queue, err := QueueOf[Event[any]](ret, "any")
	if err != nil {
		return nil, err
	}
	ret.publisher = NewPublisher[any](queue)
	return ret, nil
}

func QueueOf[T any](s *Service, name string) (messaging.Queue[T], error) {
	switch s.queueVendor {
	case messaging.VendorMemory:
		return memory.NewQueue[T](s.memNewQueueConfig(name)), nil
	case messaging.VendorFS:
		return fsqueue.NewQueue[T](context.Background(), s.fs, fsqueue.DefaultConfig(url.Join(s.journalURL, name)))
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.queueVendor)
}

func keyOf[T any]() reflect.Type {
	var t T
	rType := reflect.TypeOf(t)
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType
}

func SetListenerOf[T any](s *Service, handler Handler[T]) error {
	key := keyOf[T]()
	publisher, err := PublisherOf[T](s)
	if err != nil {
		return err
	}
	listener := NewListener[T](publisher, handler, s.logger)
	s.mux.Lock()
	if previous, ok := s.typedListener[key]; ok {
		previous.(*Listener[T]).Stop()
	}
	s.typedListener[key] = listener
	listener.Start()
	s.mux.Unlock()
	return nil
}

// PublisherOf returns a publisher for the provided type
func PublisherOf[T any](s *Service) (*Publisher[T], error) {
	key := keyOf[T]()
	s.mux.RLock()
	ret, ok := s.typedPublishers[key]
	s.mux.RUnlock()
	if ok {
		return ret.(*Publisher[T]), nil
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	if ret, ok = s.typedPublishers[key]; ok {
		return ret.(*Publisher[T]), nil
	}
	queue, err := QueueOf[Event[T]](s, key.String())
	if err != nil {
		return nil, err
	}
	publisher := NewPublisher[T](queue)
	publisher.mirror = s.publisher.queue
	s.typedPublishers[key] = publisher
	return publisher, nil
}
