package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/sched/internal/clock"
	"github.com/viant/sched/internal/logging"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/policy"
	"github.com/viant/sched/service/aging"
	"github.com/viant/sched/service/group"
	"github.com/viant/sched/service/preemption"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const waitTimeout = 2 * time.Second

func newTestService(t *testing.T, maxConcurrent int, opts ...Option) *Service {
	t.Helper()
	config := DefaultConfig()
	config.MaxConcurrent = maxConcurrent
	opts = append([]Option{WithConfig(config), WithLogger(logging.Discard())}, opts...)
	srv, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

// recorder records executor start order
type recorder struct {
	mux   sync.Mutex
	order []string
}

func (r *recorder) execute(_ context.Context, input interface{}) (interface{}, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.order = append(r.order, input.(string))
	return input, nil
}

func (r *recorder) Order() []string {
	r.mux.Lock()
	defer r.mux.Unlock()
	return append([]string{}, r.order...)
}

// gate blocks executors until released or cancelled
type gate struct {
	started chan string
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan string, 64), release: make(chan struct{})}
}

func (g *gate) execute(ctx context.Context, input interface{}) (interface{}, error) {
	g.started <- input.(string)
	select {
	case <-g.release:
		return input, nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (g *gate) awaitStart(t *testing.T, expect string) {
	t.Helper()
	select {
	case name := <-g.started:
		require.Equal(t, expect, name)
	case <-time.After(waitTimeout):
		require.FailNow(t, "executor did not start", expect)
	}
}

func waitAll(t *testing.T, handles ...*Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for _, handle := range handles {
		_, err := handle.Wait(ctx)
		require.NotErrorIs(t, err, context.DeadlineExceeded)
	}
}

func submit(t *testing.T, srv *Service, descriptor *task.Descriptor) *Handle {
	t.Helper()
	handle, err := srv.Submit(context.Background(), descriptor)
	require.NoError(t, err)
	return handle
}

func TestService_Ordering(t *testing.T) {
	now := epoch
	testCases := []struct {
		description string
		policy      policy.Policy
		descriptors []*task.Descriptor
		expect      []string
	}{
		{
			description: "fifo",
			policy:      policy.FIFO,
			descriptors: []*task.Descriptor{
				{ID: "job", Input: "A"},
				{ID: "job", Input: "B"},
				{ID: "job", Input: "C"},
			},
			expect: []string{"A", "B", "C"},
		},
		{
			description: "shortest job first",
			policy:      policy.SJF,
			descriptors: []*task.Descriptor{
				{ID: "job", Input: "20ms", EstimatedDuration: 20 * time.Millisecond},
				{ID: "job", Input: "30ms", EstimatedDuration: 30 * time.Millisecond},
				{ID: "job", Input: "10ms", EstimatedDuration: 10 * time.Millisecond},
			},
			expect: []string{"10ms", "20ms", "30ms"},
		},
		{
			description: "earliest deadline first",
			policy:      policy.EDF,
			descriptors: []*task.Descriptor{
				{ID: "job", Input: "50ms", Deadline: now.Add(50 * time.Millisecond)},
				{ID: "job", Input: "100ms", Deadline: now.Add(100 * time.Millisecond)},
				{ID: "job", Input: "30ms", Deadline: now.Add(30 * time.Millisecond)},
			},
			expect: []string{"30ms", "50ms", "100ms"},
		},
		{
			description: "priority precedes policy",
			policy:      policy.FIFO,
			descriptors: []*task.Descriptor{
				{ID: "job", Input: "low", Priority: priority.Low},
				{ID: "job", Input: "critical", Priority: priority.Critical},
				{ID: "job", Input: "medium"},
			},
			expect: []string{"critical", "medium", "low"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			srv := newTestService(t, 1, WithClock(clock.NewFake(now)))
			require.NoError(t, srv.SetPolicy(testCase.policy))
			rec := &recorder{}
			srv.Pause()
			var handles []*Handle
			for _, descriptor := range testCase.descriptors {
				descriptor.Executor = rec.execute
				handles = append(handles, submit(t, srv, descriptor))
			}
			assert.Empty(t, srv.ListRunning())
			assert.Len(t, srv.ListPending(), len(testCase.descriptors))
			srv.Resume()
			waitAll(t, handles...)
			assert.Equal(t, testCase.expect, rec.Order())
			for _, handle := range handles {
				assert.Equal(t, OutcomeCompleted, handle.Outcome())
			}
		})
	}
}

func TestService_PriorityResolution(t *testing.T) {
	srv := newTestService(t, 1)
	srv.Pause()
	require.NoError(t, srv.CreateGroup("batch", group.Options{MaxConcurrent: 1, Priority: priority.Low}))
	require.NoError(t, srv.SetPriority("report", priority.High))
	assert.Equal(t, priority.High, srv.GetPriority("report"))
	assert.Equal(t, priority.Medium, srv.GetPriority("unknown"))

	noop := func(context.Context, interface{}) (interface{}, error) { return nil, nil }
	testCases := []struct {
		description string
		descriptor  *task.Descriptor
		expect      priority.Level
	}{
		{description: "default", descriptor: &task.Descriptor{ID: "other"}, expect: priority.Medium},
		{description: "profile", descriptor: &task.Descriptor{ID: "report"}, expect: priority.High},
		{description: "descriptor wins over profile", descriptor: &task.Descriptor{ID: "report", Priority: priority.Critical}, expect: priority.Critical},
		{description: "group override replaces", descriptor: &task.Descriptor{ID: "report", Priority: priority.Critical, Group: "batch"}, expect: priority.Low},
	}
	for _, testCase := range testCases {
		testCase.descriptor.Executor = noop
		handle := submit(t, srv, testCase.descriptor)
		actual, ok := srv.EffectivePriority(handle.InstanceID())
		require.True(t, ok, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func TestService_GroupOverrideUpdate(t *testing.T) {
	srv := newTestService(t, 1)
	srv.Pause()
	require.NoError(t, srv.CreateGroup("batch", group.Options{MaxConcurrent: 1}))
	rec := &recorder{}
	member := submit(t, srv, &task.Descriptor{ID: "member", Input: "member", Priority: priority.Low, Group: "batch", Executor: rec.execute})
	outsider := submit(t, srv, &task.Descriptor{ID: "outsider", Input: "outsider", Priority: priority.Medium, Executor: rec.execute})

	require.NoError(t, srv.CreateGroup("batch", group.Options{MaxConcurrent: 1, Priority: priority.Critical}))
	actual, ok := srv.EffectivePriority(member.InstanceID())
	require.True(t, ok)
	assert.Equal(t, priority.Critical, actual, "pending members follow the new override")

	srv.Resume()
	waitAll(t, member, outsider)
	assert.Equal(t, []string{"member", "outsider"}, rec.Order())

	require.NoError(t, srv.CreateGroup("batch", group.Options{MaxConcurrent: 1}))
	srv.Pause()
	again := submit(t, srv, &task.Descriptor{ID: "member", Priority: priority.Low, Group: "batch", Executor: rec.execute, Input: "again"})
	actual, ok = srv.EffectivePriority(again.InstanceID())
	require.True(t, ok)
	assert.Equal(t, priority.Low, actual, "clearing the override restores the requested priority")
}

func TestService_Preemption(t *testing.T) {
	srv := newTestService(t, 1)
	srv.SetPreemptionEnabled(true)
	running := newGate()
	high := submit(t, srv, &task.Descriptor{ID: "high", Input: "high", Priority: priority.High, Executor: running.execute})
	running.awaitStart(t, "high")

	medium := submit(t, srv, &task.Descriptor{ID: "medium", Input: "medium", Priority: priority.Medium, Executor: running.execute})
	assert.Equal(t, []string{high.InstanceID()}, srv.ListRunning(), "medium must not preempt high")
	assert.Equal(t, []string{medium.InstanceID()}, srv.ListPending())

	var observed Outcome
	critical := submit(t, srv, &task.Descriptor{ID: "critical", Priority: priority.Critical,
		Executor: func(context.Context, interface{}) (interface{}, error) {
			observed = high.Outcome()
			return "done", nil
		}})
	waitAll(t, high, critical)

	assert.Equal(t, OutcomePreempted, observed, "victim settles before the preemptor starts")
	assert.True(t, types.IsPreempted(high.Err()))
	assert.False(t, types.IsExecutionError(high.Err()))
	assert.Equal(t, "done", critical.Result())

	running.awaitStart(t, "medium")
	close(running.release)
	waitAll(t, medium)
	assert.Equal(t, OutcomeCompleted, medium.Outcome())

	snapshot := srv.Snapshot()
	assert.Equal(t, 1, snapshot.Preempted)
	assert.Equal(t, 2, snapshot.Completed)
	assert.Equal(t, 0, snapshot.Running)
}

func TestService_PreemptionGap(t *testing.T) {
	testCases := []struct {
		description string
		config      preemption.Config
		victim      priority.Level
		candidate   priority.Level
		expect      bool
	}{
		{description: "critical over high", config: preemption.Config{Enabled: true, Gap: 1, PreemptorLevel: priority.Critical}, victim: priority.High, candidate: priority.Critical, expect: true},
		{description: "gap two blocks critical over high", config: preemption.Config{Enabled: true, Gap: 2, PreemptorLevel: priority.Critical}, victim: priority.High, candidate: priority.Critical},
		{description: "high preempts low with lower preemptor level", config: preemption.Config{Enabled: true, Gap: 2, PreemptorLevel: priority.High}, victim: priority.Low, candidate: priority.High, expect: true},
		{description: "disabled", config: preemption.Config{Gap: 1, PreemptorLevel: priority.Critical}, victim: priority.Low, candidate: priority.Critical},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			srv := newTestService(t, 1)
			require.NoError(t, srv.SetPreemptionConfig(testCase.config))
			g := newGate()
			victim := submit(t, srv, &task.Descriptor{ID: "victim", Input: "victim", Priority: testCase.victim, Executor: g.execute})
			g.awaitStart(t, "victim")
			candidate := submit(t, srv, &task.Descriptor{ID: "candidate", Input: "candidate", Priority: testCase.candidate, Executor: g.execute})
			if testCase.expect {
				waitAll(t, victim)
				assert.Equal(t, OutcomePreempted, victim.Outcome())
				g.awaitStart(t, "candidate")
				assert.Equal(t, []string{candidate.InstanceID()}, srv.ListRunning())
			} else {
				assert.Equal(t, []string{victim.InstanceID()}, srv.ListRunning())
				assert.Equal(t, []string{candidate.InstanceID()}, srv.ListPending())
			}
			close(g.release)
		})
	}
}

func TestService_PreemptionDiscardsLateResult(t *testing.T) {
	srv := newTestService(t, 1)
	srv.SetPreemptionEnabled(true)
	started := make(chan struct{})
	finish := make(chan struct{})
	stubborn := submit(t, srv, &task.Descriptor{ID: "stubborn", Priority: priority.Low,
		Executor: func(context.Context, interface{}) (interface{}, error) {
			close(started)
			<-finish
			return "late", nil
		}})
	<-started
	critical := submit(t, srv, &task.Descriptor{ID: "critical", Priority: priority.Critical,
		Executor: func(context.Context, interface{}) (interface{}, error) { return "ok", nil }})
	waitAll(t, stubborn, critical)
	close(finish)

	require.Eventually(t, func() bool { return srv.Snapshot().Completed == 1 }, waitTimeout, time.Millisecond)
	assert.Equal(t, OutcomePreempted, stubborn.Outcome())
	assert.Nil(t, stubborn.Result())
	snapshot := srv.Snapshot()
	assert.Equal(t, 1, snapshot.Preempted)
	assert.Equal(t, 0, snapshot.Running)
}

func TestService_Aging(t *testing.T) {
	fake := clock.NewFake(epoch)
	srv := newTestService(t, 1, WithClock(fake))
	require.NoError(t, srv.EnableAging(aging.Config{WaitingTimeThreshold: 100 * time.Millisecond, BoostAmount: 1}))
	rec := &recorder{}
	srv.Pause()

	low := submit(t, srv, &task.Descriptor{ID: "low", Input: "low", Priority: priority.Low, Executor: rec.execute})
	level, _ := srv.EffectivePriority(low.InstanceID())
	assert.Equal(t, priority.Low, level)

	fake.Advance(150 * time.Millisecond)
	medium := submit(t, srv, &task.Descriptor{ID: "medium", Input: "medium", Priority: priority.Medium, Executor: rec.execute})
	level, _ = srv.EffectivePriority(low.InstanceID())
	assert.Equal(t, priority.Medium, level, "boosted after the threshold")

	fake.Advance(time.Hour)
	srv.Reassess()
	level, _ = srv.EffectivePriority(low.InstanceID())
	assert.Equal(t, priority.Medium, level, "boost applied once")

	srv.Resume()
	waitAll(t, low, medium)
	assert.Equal(t, []string{"low", "medium"}, rec.Order(), "aged submission waited longer")
}

func TestService_ResourceAffinity(t *testing.T) {
	srv := newTestService(t, 10)
	require.NoError(t, srv.DefineResource("cpu", 2))
	require.NoError(t, srv.DefineResource("memory", 1))
	require.NoError(t, srv.SetResourceRequirements("cpu-bound", map[string]int{"cpu": 1}))
	require.NoError(t, srv.SetResourceRequirements("memory-bound", map[string]int{"memory": 1}))

	g := newGate()
	cpu1 := submit(t, srv, &task.Descriptor{ID: "cpu-bound", Input: "cpu1", Executor: g.execute})
	cpu2 := submit(t, srv, &task.Descriptor{ID: "cpu-bound", Input: "cpu2", Executor: g.execute})
	mem := submit(t, srv, &task.Descriptor{ID: "memory-bound", Input: "mem", Executor: g.execute})
	cpu3 := submit(t, srv, &task.Descriptor{ID: "cpu-bound", Input: "cpu3", Executor: g.execute})

	assert.Len(t, srv.ListRunning(), 3)
	assert.Equal(t, []string{cpu3.InstanceID()}, srv.ListPending())
	allocated, capacity, err := srv.GetResourceAllocation("cpu")
	require.NoError(t, err)
	assert.Equal(t, 2, allocated)
	assert.Equal(t, 2, capacity)
	allocated, _, err = srv.GetResourceAllocation("memory")
	require.NoError(t, err)
	assert.Equal(t, 1, allocated)

	require.True(t, srv.Cancel(cpu1.InstanceID()))
	assert.ErrorIs(t, cpu1.Err(), types.ErrCancelled)
	assert.NotContains(t, srv.ListPending(), cpu3.InstanceID())
	assert.Len(t, srv.ListRunning(), 3)

	close(g.release)
	waitAll(t, cpu2, mem, cpu3)
	allocated, _, _ = srv.GetResourceAllocation("cpu")
	assert.Equal(t, 0, allocated)
	allocated, _, _ = srv.GetResourceAllocation("memory")
	assert.Equal(t, 0, allocated)
	_, _, err = srv.GetResourceAllocation("gpu")
	assert.ErrorIs(t, err, types.ErrUnschedulable)
}

func TestService_GroupCeiling(t *testing.T) {
	srv := newTestService(t, 10)
	require.NoError(t, srv.CreateGroup("io", group.Options{MaxConcurrent: 1}))
	require.NoError(t, srv.AssignToGroup("fetch", "io"))
	assert.Error(t, srv.AssignToGroup("fetch", "missing"))

	g := newGate()
	first := submit(t, srv, &task.Descriptor{ID: "fetch", Input: "first", Executor: g.execute})
	second := submit(t, srv, &task.Descriptor{ID: "fetch", Input: "second", Executor: g.execute})
	other := submit(t, srv, &task.Descriptor{ID: "compute", Input: "other", Executor: g.execute})

	running, maxConcurrent, ok := srv.GroupRunning("io")
	require.True(t, ok)
	assert.Equal(t, 1, running)
	assert.Equal(t, 1, maxConcurrent)
	assert.ElementsMatch(t, []string{first.InstanceID(), other.InstanceID()}, srv.ListRunning())
	assert.Equal(t, []string{second.InstanceID()}, srv.ListPending())

	require.NoError(t, srv.CreateGroup("io", group.Options{MaxConcurrent: 2}))
	assert.Len(t, srv.ListRunning(), 3)
	close(g.release)
	waitAll(t, first, second, other)
	running, _, _ = srv.GroupRunning("io")
	assert.Equal(t, 0, running)
}

func TestService_SetMaxConcurrent(t *testing.T) {
	srv := newTestService(t, 1)
	g := newGate()
	a := submit(t, srv, &task.Descriptor{ID: "job", Input: "a", Executor: g.execute})
	b := submit(t, srv, &task.Descriptor{ID: "job", Input: "b", Executor: g.execute})
	assert.Len(t, srv.ListRunning(), 1)
	require.NoError(t, srv.SetMaxConcurrent(2))
	assert.Len(t, srv.ListRunning(), 2)
	assert.True(t, errors.Is(srv.SetMaxConcurrent(0), types.ErrConfig))
	close(g.release)
	waitAll(t, a, b)
}
