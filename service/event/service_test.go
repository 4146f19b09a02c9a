package event

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/sched/service/messaging/memory"
)

type started struct {
	InstanceID string
}

func TestService_PublishTyped(t *testing.T) {
	srv, err := New()
	require.NoError(t, err)
	defer srv.Close()

	received := make(chan *Event[*started], 1)
	require.NoError(t, SetListenerOf[*started](srv, func(e *Event[*started]) error {
		received <- e
		return nil
	}))

	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	again, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	assert.Same(t, publisher, again)

	eCtx := &Context{TaskID: "build", InstanceID: "i-1", EventType: TaskStarted}
	require.NoError(t, publisher.Publish(context.Background(), NewEvent(eCtx, &started{InstanceID: "i-1"})))

	select {
	case e := <-received:
		assert.Equal(t, TaskStarted, e.Context.EventType)
		assert.Equal(t, "i-1", e.Data.InstanceID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestService_AnyStream(t *testing.T) {
	srv, err := New(WithNewMemoryQueueConfig(func(string) memory.Config {
		return memory.Config{QueueBuffer: 10, DropWhenFull: true}
	}))
	require.NoError(t, err)
	defer srv.Close()

	received := make(chan *Event[any], 1)
	srv.SetListener(func(e *Event[any]) error {
		received <- e
		return nil
	})

	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), NewEvent(&Context{EventType: TaskCompleted}, &started{InstanceID: "i-2"})))

	select {
	case e := <-received:
		assert.Equal(t, TaskCompleted, e.Context.EventType)
	case <-time.After(time.Second):
		t.Fatal("event not mirrored on any stream")
	}
}

func TestService_DropsWhenUnconsumed(t *testing.T) {
	srv, err := New(WithNewMemoryQueueConfig(func(string) memory.Config {
		return memory.Config{QueueBuffer: 1, DropWhenFull: true}
	}))
	require.NoError(t, err)
	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, publisher.Publish(ctx, NewEvent(&Context{}, &started{})))
	assert.Error(t, publisher.Publish(ctx, NewEvent(&Context{}, &started{})))
}

func TestService_Journal(t *testing.T) {
	srv, err := New(WithJournal(nil, "mem://localhost/events/"+t.Name()))
	require.NoError(t, err)
	defer srv.Close()

	received := make(chan *Event[*started], 1)
	require.NoError(t, SetListenerOf[*started](srv, func(e *Event[*started]) error {
		received <- e
		return nil
	}))
	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), NewEvent(&Context{InstanceID: "i-3", EventType: TaskFailed}, &started{InstanceID: "i-3"})))

	select {
	case e := <-received:
		assert.Equal(t, TaskFailed, e.Context.EventType)
		assert.Equal(t, "i-3", e.Data.InstanceID)
	case <-time.After(2 * time.Second):
		t.Fatal("journaled event not delivered")
	}
}

func TestService_HandlerErrorRetries(t *testing.T) {
	srv, err := New(WithNewMemoryQueueConfig(func(string) memory.Config {
		return memory.Config{QueueBuffer: 10, MaxRetries: 3, RetryDelay: time.Millisecond, DropWhenFull: true}
	}))
	require.NoError(t, err)
	defer srv.Close()

	var attempts atomic.Int32
	delivered := make(chan string, 1)
	require.NoError(t, SetListenerOf[*started](srv, func(e *Event[*started]) error {
		switch attempts.Add(1) {
		case 1:
			return errors.New("listener not ready")
		case 2:
			panic("listener crashed")
		}
		delivered <- e.Data.InstanceID
		return nil
	}))
	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), NewEvent(&Context{EventType: TaskStarted}, &started{InstanceID: "i-4"})))

	select {
	case instanceID := <-delivered:
		assert.Equal(t, "i-4", instanceID)
		assert.EqualValues(t, 3, attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("event was not redelivered after handler failures")
	}
}

func TestService_JournalDeadLetters(t *testing.T) {
	fs := afs.New()
	baseURL := "mem://localhost/events/" + t.Name()
	srv, err := New(WithJournal(fs, baseURL))
	require.NoError(t, err)
	defer srv.Close()

	var attempts atomic.Int32
	require.NoError(t, SetListenerOf[*started](srv, func(e *Event[*started]) error {
		attempts.Add(1)
		return errors.New("downstream unavailable")
	}))
	publisher, err := PublisherOf[*started](srv)
	require.NoError(t, err)
	require.NoError(t, publisher.Publish(context.Background(), NewEvent(&Context{EventType: TaskStarted}, &started{InstanceID: "i-5"})))

	dlqURL := url.Join(baseURL, keyOf[*started]().String(), "dlq")
	require.Eventually(t, func() bool {
		objects, err := fs.List(context.Background(), dlqURL)
		if err != nil {
			return false
		}
		for _, object := range objects {
			if !object.IsDir() && strings.HasSuffix(object.Name(), ".json") {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	// default journal config allows three retries after the first attempt
	assert.EqualValues(t, 4, attempts.Load())
}
