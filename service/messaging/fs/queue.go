// Package fs implements a durable messaging.Queue on top of afs storage.
// Each message is a JSON file that moves between pending, processing,
// completed and dlq folders under the queue base URL.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"github.com/viant/sched/service/messaging"
)

// State is the lifecycle position of a journaled message
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

var errProcessed = errors.New("message already processed")

// Config holds journal queue settings
type Config struct {
	BaseURL      string
	MaxRetries   int
	PollInterval time.Duration
	// RetainCompleted keeps acknowledged messages under completed/
	RetainCompleted bool
}

// DefaultConfig returns a journal config rooted at baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		MaxRetries:   3,
		PollInterval: 50 * time.Millisecond,
	}
}

// Message is a journaled payload
type Message[T any] struct {
	ID        string    `json:"id"`
	Data      T         `json:"data"`
	State     State     `json:"state"`
	Error     string    `json:"error,omitempty"`
	Retries   int       `json:"retries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	name      string
	queue     *Queue[T]
	processed bool
	mux       sync.Mutex
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.Data
}

// Ack marks the message completed
func (m *Message[T]) Ack() error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return errProcessed
	}
	m.processed = true
	m.State = StateCompleted
	m.UpdatedAt = time.Now()
	return m.queue.complete(context.Background(), m)
}

// Nack returns the message to pending, or to dlq once retries run out
func (m *Message[T]) Nack(err error) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.processed {
		return errProcessed
	}
	m.processed = true
	m.State = StateFailed
	if err != nil {
		m.Error = err.Error()
	}
	m.Retries++
	m.UpdatedAt = time.Now()
	return m.queue.fail(context.Background(), m)
}

// Queue is an afs backed FIFO queue
type Queue[T any] struct {
	fs            afs.Service
	config        Config
	pendingURL    string
	processingURL string
	completedURL  string
	dlqURL        string
	seq           int64
	mux           sync.Mutex
}

// NewQueue creates the queue folders and returns the queue
func NewQueue[T any](ctx context.Context, fs afs.Service, config Config) (*Queue[T], error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("journal base URL was empty")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig("").PollInterval
	}
	q := &Queue[T]{
		fs:            fs,
		config:        config,
		pendingURL:    url.Join(config.BaseURL, string(StatePending)),
		processingURL: url.Join(config.BaseURL, string(StateProcessing)),
		completedURL:  url.Join(config.BaseURL, string(StateCompleted)),
		dlqURL:        url.Join(config.BaseURL, "dlq"),
		seq:           time.Now().UnixNano(),
	}
	for _, location := range []string{q.pendingURL, q.processingURL, q.completedURL, q.dlqURL} {
		if exists, _ := fs.Exists(ctx, location); exists {
			continue
		}
		if err := fs.Create(ctx, location, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create journal folder %v: %w", location, err)
		}
	}
	return q, nil
}

// Publish writes a pending message
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	now := time.Now()
	message := &Message[T]{
		ID:        uuid.New().String(),
		Data:      *t,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// names sort in publish order
	message.name = fmt.Sprintf("%020d-%s.json", atomic.AddInt64(&q.seq, 1), message.ID)
	return q.write(ctx, url.Join(q.pendingURL, message.name), message)
}

// Consume blocks until a pending message is claimed or ctx is done
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		message, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if message != nil {
			return message, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.config.PollInterval):
		}
	}
}

// Pending returns the number of unclaimed messages
func (q *Queue[T]) Pending(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.pendingURL)
	return len(objects), err
}

// DeadLetters returns the number of messages that exhausted their retries
func (q *Queue[T]) DeadLetters(ctx context.Context) (int, error) {
	objects, err := q.list(ctx, q.dlqURL)
	return len(objects), err
}

func (q *Queue[T]) claim(ctx context.Context) (*Message[T], error) {
	q.mux.Lock()
	defer q.mux.Unlock()
	objects, err := q.list(ctx, q.pendingURL)
	if err != nil || len(objects) == 0 {
		return nil, err
	}
	object := objects[0]
	message, err := q.read(ctx, object.URL())
	if err != nil {
		_ = q.fs.Move(ctx, object.URL(), url.Join(q.dlqURL, object.Name()))
		return nil, err
	}
	message.name = object.Name()
	message.queue = q
	message.State = StateProcessing
	message.UpdatedAt = time.Now()
	if err = q.write(ctx, url.Join(q.processingURL, message.name), message); err != nil {
		return nil, err
	}
	if err = q.fs.Delete(ctx, object.URL()); err != nil {
		return nil, fmt.Errorf("failed to remove claimed message %v: %w", object.URL(), err)
	}
	return message, nil
}

func (q *Queue[T]) complete(ctx context.Context, m *Message[T]) error {
	q.mux.Lock()
	defer q.mux.Unlock()
	if q.config.RetainCompleted {
		if err := q.write(ctx, url.Join(q.completedURL, m.name), m); err != nil {
			return err
		}
	}
	return q.release(ctx, m)
}

func (q *Queue[T]) fail(ctx context.Context, m *Message[T]) error {
	q.mux.Lock()
	defer q.mux.Unlock()
	target := q.pendingURL
	if m.Retries > q.config.MaxRetries {
		target = q.dlqURL
	} else {
		m.State = StatePending
	}
	if err := q.write(ctx, url.Join(target, m.name), m); err != nil {
		return err
	}
	return q.release(ctx, m)
}

func (q *Queue[T]) release(ctx context.Context, m *Message[T]) error {
	location := url.Join(q.processingURL, m.name)
	if exists, _ := q.fs.Exists(ctx, location); !exists {
		return nil
	}
	if err := q.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to release message %v: %w", m.ID, err)
	}
	return nil
}

func (q *Queue[T]) list(ctx context.Context, location string) ([]storage.Object, error) {
	objects, err := q.fs.List(ctx, location, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("failed to list %v: %w", location, err)
	}
	var ret []storage.Object
	for _, object := range objects {
		if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
			ret = append(ret, object)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name() < ret[j].Name() })
	return ret, nil
}

func (q *Queue[T]) write(ctx context.Context, location string, m *Message[T]) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message %v: %w", m.ID, err)
	}
	if err = q.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write message %v: %w", m.ID, err)
	}
	return nil
}

func (q *Queue[T]) read(ctx context.Context, location string) (*Message[T], error) {
	data, err := q.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %v: %w", location, err)
	}
	message := &Message[T]{}
	if err = json.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("failed to decode message %v: %w", location, err)
	}
	return message, nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
