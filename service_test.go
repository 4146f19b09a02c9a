package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sched/internal/logging"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/service/event"
	"github.com/viant/sched/service/scheduler"
)

func TestNewFromConfig(t *testing.T) {
	config, err := ParseConfig([]byte(testConfigYAML))
	require.NoError(t, err)
	reg := prom.NewRegistry()
	srv, err := NewFromConfig(config, WithLogger(logging.Discard()), WithMetricsRegisterer(reg))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	require.NotNil(t, srv.Events())
	require.NotNil(t, srv.Metrics())
	sched := srv.Scheduler()
	assert.Equal(t, priority.High, sched.GetPriority("other"))
	running, maxConcurrent, ok := sched.GroupRunning("io")
	require.True(t, ok)
	assert.Equal(t, 0, running)
	assert.Equal(t, 1, maxConcurrent)
	_, capacity, err := sched.GetResourceAllocation("cpu")
	require.NoError(t, err)
	assert.Equal(t, 2, capacity)
	profile, ok := sched.Profile("crunch")
	require.True(t, ok)
	assert.Equal(t, priority.Critical, profile.Priority)

	var mux sync.Mutex
	var received []event.Type
	require.NoError(t, event.SetListenerOf[*scheduler.Notification](srv.Events(), func(e *event.Event[*scheduler.Notification]) error {
		mux.Lock()
		received = append(received, e.Context.EventType)
		mux.Unlock()
		return nil
	}))

	require.NoError(t, srv.RegisterExecutor("fetch", func(_ context.Context, input interface{}) (interface{}, error) {
		return input, nil
	}))
	handle, err := srv.Submit(context.Background(), &task.Descriptor{ID: "fetch", Input: "page"})
	require.NoError(t, err)
	result, err := handle.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "page", result)

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(received) == 3
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "sched_task_submitted_total"))
}

func TestNew_Defaults(t *testing.T) {
	srv, err := New(WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Nil(t, srv.Events())
	assert.Nil(t, srv.Metrics())
	assert.Equal(t, 10, srv.Scheduler().Config().MaxConcurrent)

	require.NoError(t, srv.Shutdown(context.Background()))
	_, err = srv.Submit(context.Background(), &task.Descriptor{ID: "x", Executor: func(context.Context, interface{}) (interface{}, error) {
		return nil, nil
	}})
	assert.ErrorIs(t, err, types.ErrClosed)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	config := DefaultConfig()
	config.MaxConcurrentTasks = -1
	_, err := NewFromConfig(config)
	assert.ErrorIs(t, err, types.ErrConfig)

	config = DefaultConfig()
	config.Logging.Format = "xml"
	_, err = NewFromConfig(config)
	assert.Error(t, err)
}

func TestNewFromConfig_EventJournal(t *testing.T) {
	config := DefaultConfig()
	config.Events.Enabled = true
	config.Events.JournalURL = "mem://localhost/sched/" + t.Name()
	srv, err := NewFromConfig(config, WithLogger(logging.Discard()))
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	completed := make(chan string, 1)
	require.NoError(t, event.SetListenerOf[*scheduler.Notification](srv.Events(), func(e *event.Event[*scheduler.Notification]) error {
		if e.Context.EventType == event.TaskCompleted {
			completed <- e.Data.InstanceID
		}
		return nil
	}))
	handle, err := srv.Submit(context.Background(), &task.Descriptor{ID: "journaled", Executor: func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	}})
	require.NoError(t, err)
	_, err = handle.Wait(context.Background())
	require.NoError(t, err)

	select {
	case instanceID := <-completed:
		assert.Equal(t, handle.InstanceID(), instanceID)
	case <-time.After(2 * time.Second):
		t.Fatal("completion not read back from the journal")
	}
}
