package event

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/sched/service/messaging"
	"github.com/viant/sched/service/messaging/memory"
)

type Option func(s *Service)

// WithNewMemoryQueueConfig sets the new memory queue configuration
func WithNewMemoryQueueConfig(newQueue func(name string) memory.Config) Option {
	return func(s *Service) {
		s.memNewQueueConfig = newQueue
	}
}

// WithLogger sets listener logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithJournal switches queues to the fs vendor rooted at baseURL
func WithJournal(fs afs.Service, baseURL string) Option {
	return func(s *Service) {
		if fs == nil {
			fs = afs.New()
		}
		s.fs = fs
		s.journalURL = baseURL
		s.queueVendor = messaging.VendorFS
	}
}
