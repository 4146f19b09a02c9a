// Package scheduler owns the pending queue and running set, and runs a
// scheduling pass on every submission and settlement: aging refresh,
// policy ordering, admission, then preemption when admission fails.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/sched/extension"
	"github.com/viant/sched/internal/clock"
	"github.com/viant/sched/internal/idgen"
	"github.com/viant/sched/model/priority"
	"github.com/viant/sched/model/task"
	"github.com/viant/sched/model/types"
	"github.com/viant/sched/policy"
	"github.com/viant/sched/progress"
	"github.com/viant/sched/runtime/execution"
	"github.com/viant/sched/service/admission"
	"github.com/viant/sched/service/aging"
	"github.com/viant/sched/service/dao"
	"github.com/viant/sched/service/event"
	"github.com/viant/sched/service/group"
	"github.com/viant/sched/service/preemption"
	"github.com/viant/sched/service/resource"
	"github.com/viant/sched/tracing"
)

type pendingTask struct {
	sub    *task.Submission
	handle *Handle
	ctx    context.Context
}

type runningTask struct {
	*pendingTask
	token     *execution.Token
	priority  priority.Level
	startedAt time.Time
}

// Service schedules submissions
type Service struct {
	mux     sync.Mutex
	config  Config
	paused  bool
	closed  bool
	seq     uint64
	pending map[string]*pendingTask
	running map[string]*runningTask

	resources  *resource.Manager
	groups     *group.Manager
	aging      *aging.Monitor
	admission  *admission.Controller
	preemption *preemption.Controller
	profiles   dao.Service[string, task.Profile]

	executors *extension.Executors
	clock     clock.Clock
	newID     idgen.Generator
	logger    logrus.FieldLogger
	events    *event.Service
	publisher *event.Publisher[*Notification]
	metrics   Metrics
	progress  *progress.Progress

	wg         sync.WaitGroup
	shutdownCh chan struct{}
	closeOnce  sync.Once

	emitMux      sync.Mutex
	emitQueue    []*batch
	emitStopping bool
	emitSignal   chan struct{}
	emitDone     chan struct{}
}

// Submit enqueues a submission and runs a scheduling pass. Errors are
// returned for an invalid descriptor or a submission that could never be
// admitted; every later failure is reported through the handle.
func (s *Service) Submit(ctx context.Context, descriptor *task.Descriptor) (*Handle, error) {
	if descriptor == nil || descriptor.ID == "" {
		return nil, types.NewConfigError("id", "task id was empty")
	}
	if descriptor.Priority != priority.Unspecified && !descriptor.Priority.IsValid() {
		return nil, types.NewConfigError("priority", "unsupported level %v", descriptor.Priority)
	}
	if err := resource.CheckRequirements(descriptor.Resources); err != nil {
		return nil, err
	}
	executor := descriptor.Executor
	if executor == nil && s.executors != nil {
		executor = s.executors.Lookup(descriptor.ID)
	}
	if executor == nil {
		return nil, types.NewConfigError("executor", "no executor for task %v", descriptor.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	b := &batch{}
	s.mux.Lock()
	if s.closed {
		s.mux.Unlock()
		return nil, types.ErrClosed
	}
	sub, err := s.resolve(descriptor, executor)
	if err != nil {
		s.mux.Unlock()
		return nil, err
	}
	handle := newHandle(sub.ID, sub.InstanceID)
	s.pending[sub.InstanceID] = &pendingTask{sub: sub, handle: handle, ctx: context.WithoutCancel(ctx)}
	s.progress.Update(progress.Delta{Submitted: 1, Pending: 1})
	s.metrics.RecordSubmitted(sub.Effective())
	b.add(event.TaskSubmitted, sub, 0, nil)
	s.logger.WithFields(logrus.Fields{"task": sub.ID, "instance": sub.InstanceID, "priority": sub.Effective()}).Debug("submitted")
	s.pass(b)
	s.commit(b)
	return handle, nil
}

// resolve builds a submission from descriptor, profile and defaults.
// Descriptor values win over profile values; a group override replaces the
// resolved priority.
func (s *Service) resolve(descriptor *task.Descriptor, executor task.Executor) (*task.Submission, error) {
	now := s.clock.Now()
	s.seq++
	sub := &task.Submission{
		ID:                descriptor.ID,
		InstanceID:        s.newID(),
		Base:              descriptor.Priority,
		EnqueuedAt:        now,
		EstimatedDuration: descriptor.EstimatedDuration,
		Deadline:          descriptor.Deadline,
		Group:             descriptor.Group,
		Resources:         task.CloneResources(descriptor.Resources),
		Seq:               s.seq,
		Input:             descriptor.Input,
		Executor:          executor,
	}
	if profile := s.profile(descriptor.ID); profile != nil {
		sub.Base = sub.Base.Or(profile.Priority)
		if sub.EstimatedDuration == 0 {
			sub.EstimatedDuration = profile.EstimatedDuration
		}
		if sub.Deadline.IsZero() && profile.DeadlineIn > 0 {
			sub.Deadline = now.Add(profile.DeadlineIn)
		}
		if sub.Group == "" {
			sub.Group = profile.Group
		}
		if sub.Resources == nil {
			sub.Resources = task.CloneResources(profile.Resources)
		}
	}
	sub.Requested = sub.Base.Or(s.config.DefaultPriority)
	sub.Base = sub.Requested
	if sub.Group != "" {
		if !s.groups.Has(sub.Group) {
			return nil, fmt.Errorf("%w: unknown group %q", types.ErrUnschedulable, sub.Group)
		}
		s.applyOverride(sub)
	}
	if err := s.resources.Schedulable(sub.Resources); err != nil {
		return nil, err
	}
	return sub, nil
}

// pass starts every admissible pending submission in policy order.
// The caller holds s.mux.
func (s *Service) pass(b *batch) {
	if s.closed {
		return
	}
	now := s.clock.Now()
	subs := s.pendingSubmissions()
	for _, sub := range subs {
		s.applyOverride(sub)
	}
	for _, boosted := range s.aging.Refresh(subs, now) {
		s.logger.WithFields(logrus.Fields{"task": boosted.ID, "instance": boosted.InstanceID, "priority": boosted.Effective()}).Debug("aged")
	}
	s.sweepUnschedulable(b)
	if s.paused {
		s.recordQueue()
		return
	}
	state := &capacity{s: s}
	for _, sub := range s.config.Policy.Order(subs) {
		candidate, ok := s.pending[sub.InstanceID]
		if !ok {
			continue
		}
		decision := s.admission.Admit(sub.Demand(), state)
		if !decision.Admitted && s.preemption.Consulted(decision.Reason) {
			if victim := s.preemption.FindVictim(sub, s.runningRecords(), state); victim != nil {
				s.preempt(victim.InstanceID, sub, b)
				decision = s.admission.Admit(sub.Demand(), state)
			}
		}
		if !decision.Admitted {
			s.logger.WithFields(logrus.Fields{"task": sub.ID, "instance": sub.InstanceID, "reason": decision.Reason, "resource": decision.Resource}).Debug("not admitted")
			continue
		}
		s.start(candidate, now, b)
	}
	s.recordQueue()
}

// applyOverride replaces the requested priority with the current group
// override, if any
func (s *Service) applyOverride(sub *task.Submission) {
	if sub.Group == "" {
		return
	}
	sub.Base = s.groups.Override(sub.Group).Or(sub.Requested)
}

func (s *Service) pendingSubmissions() []*task.Submission {
	ret := make([]*task.Submission, 0, len(s.pending))
	for _, p := range s.pending {
		ret = append(ret, p.sub)
	}
	return ret
}

func (s *Service) runningRecords() []*preemption.Running {
	ret := make([]*preemption.Running, 0, len(s.running))
	for _, r := range s.running {
		ret = append(ret, &preemption.Running{
			InstanceID: r.sub.InstanceID,
			Priority:   r.priority,
			StartedAt:  r.startedAt,
			Seq:        r.sub.Seq,
			Demand:     r.sub.Demand(),
		})
	}
	return ret
}

// sweepUnschedulable rejects pending submissions whose requirements exceed
// the current total capacity.
func (s *Service) sweepUnschedulable(b *batch) {
	for id, p := range s.pending {
		err := s.resources.Schedulable(p.sub.Resources)
		if err == nil {
			continue
		}
		delete(s.pending, id)
		s.progress.Update(progress.Delta{Pending: -1, Rejected: 1})
		s.metrics.RecordSettled(p.sub.Effective(), OutcomeRejected, 0)
		b.add(event.TaskCancelled, p.sub, 0, err)
		p.handle.settle(OutcomeRejected, nil, err)
		s.logger.WithFields(logrus.Fields{"task": p.sub.ID, "instance": id}).WithError(err).Warn("rejected")
	}
}

func (s *Service) start(p *pendingTask, now time.Time, b *batch) {
	sub := p.sub
	if err := s.resources.Reserve(sub.InstanceID, sub.Resources); err != nil {
		s.logger.WithField("instance", sub.InstanceID).WithError(err).Error("failed to reserve resources")
		return
	}
	if err := s.groups.Acquire(sub.InstanceID, sub.Group); err != nil {
		s.resources.Release(sub.InstanceID)
		s.logger.WithField("instance", sub.InstanceID).WithError(err).Error("failed to acquire group slot")
		return
	}
	delete(s.pending, sub.InstanceID)
	r := &runningTask{pendingTask: p, token: execution.NewToken(), priority: sub.Effective(), startedAt: now}
	s.running[sub.InstanceID] = r
	s.progress.Update(progress.Delta{Pending: -1, Running: 1})
	s.metrics.RecordStarted(r.priority, now.Sub(sub.EnqueuedAt))
	s.recordResources(sub.Resources)
	b.add(event.TaskStarted, sub, now.Sub(sub.EnqueuedAt), nil)
	s.logger.WithFields(logrus.Fields{"task": sub.ID, "instance": sub.InstanceID, "priority": r.priority}).Debug("started")
	s.wg.Add(1)
	go s.execute(r)
}

func (s *Service) execute(r *runningTask) {
	defer s.wg.Done()
	sub := r.sub
	info := &execution.Info{TaskID: sub.ID, InstanceID: sub.InstanceID, Priority: r.priority, Group: sub.Group}
	execCtx, release := execution.NewContext(r.ctx, r.token, info)
	defer release()
	ctx, span := tracing.StartSpan(execCtx, "sched.execute "+sub.ID, "INTERNAL")
	span.WithAttributes(map[string]string{
		"task.id":       sub.ID,
		"task.instance": sub.InstanceID,
		"task.priority": r.priority.String(),
		"task.group":    sub.Group,
	})
	result, err := invoke(ctx, sub)
	if cause := r.token.Cause(); cause != nil {
		if types.IsPreempted(cause) {
			span.AddEvent("preempted")
		} else {
			span.AddEvent("cancelled")
		}
	}
	tracing.EndSpan(span, err)
	s.settle(r, result, err)
}

func invoke(ctx context.Context, sub *task.Submission) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return sub.Executor(ctx, sub.Input)
}

// settle records an executor return. A result for a submission that was
// already preempted, cancelled or shut down is discarded.
func (s *Service) settle(r *runningTask, result interface{}, err error) {
	b := &batch{}
	s.mux.Lock()
	if current, ok := s.running[r.sub.InstanceID]; !ok || current != r {
		s.mux.Unlock()
		s.logger.WithField("instance", r.sub.InstanceID).Debug("discarded late result")
		return
	}
	took := s.release(r)
	sub := r.sub
	fields := logrus.Fields{"task": sub.ID, "instance": sub.InstanceID, "took": took}
	if err != nil {
		err = &types.ExecutionError{TaskID: sub.ID, InstanceID: sub.InstanceID, Err: err}
		s.progress.Update(progress.Delta{Running: -1, Failed: 1})
		s.metrics.RecordSettled(r.priority, OutcomeFailed, took)
		b.add(event.TaskFailed, sub, took, err)
		r.handle.settle(OutcomeFailed, nil, err)
		s.logger.WithFields(fields).WithError(err).Debug("failed")
	} else {
		s.progress.Update(progress.Delta{Running: -1, Completed: 1})
		s.metrics.RecordSettled(r.priority, OutcomeCompleted, took)
		b.add(event.TaskCompleted, sub, took, nil)
		r.handle.settle(OutcomeCompleted, result, nil)
		s.logger.WithFields(fields).Debug("completed")
	}
	s.pass(b)
	s.commit(b)
}

// release frees the global slot, the group slot and reserved resources of
// r exactly once. The caller holds s.mux.
func (s *Service) release(r *runningTask) time.Duration {
	id := r.sub.InstanceID
	delete(s.running, id)
	s.groups.Release(id)
	s.resources.Release(id)
	s.recordResources(r.sub.Resources)
	return s.clock.Now().Sub(r.startedAt)
}

func (s *Service) preempt(instanceID string, candidate *task.Submission, b *batch) {
	r, ok := s.running[instanceID]
	if !ok {
		return
	}
	b.cancel(r.token, types.ErrPreempted)
	took := s.release(r)
	err := fmt.Errorf("%w by %v (%v)", types.ErrPreempted, candidate.InstanceID, candidate.Effective())
	s.progress.Update(progress.Delta{Running: -1, Preempted: 1})
	s.metrics.RecordSettled(r.priority, OutcomePreempted, took)
	b.add(event.TaskPreempted, r.sub, took, err)
	r.handle.settle(OutcomePreempted, nil, err)
	s.logger.WithFields(logrus.Fields{
		"task":      r.sub.ID,
		"instance":  instanceID,
		"priority":  r.priority,
		"preemptor": candidate.InstanceID,
	}).Debug("preempted")
}

// Cancel removes a pending submission or stops a running one; its handle
// settles with ErrCancelled. It returns false for unknown or settled ids.
func (s *Service) Cancel(instanceID string) bool {
	b := &batch{}
	s.mux.Lock()
	found := s.cancel(instanceID, types.ErrCancelled, OutcomeCancelled, b)
	if found {
		s.pass(b)
	}
	s.commit(b)
	return found
}

func (s *Service) cancel(instanceID string, cause error, outcome Outcome, b *batch) bool {
	if p, ok := s.pending[instanceID]; ok {
		delete(s.pending, instanceID)
		delta := progress.Delta{Pending: -1, Cancelled: 1}
		if outcome == OutcomeRejected {
			delta = progress.Delta{Pending: -1, Rejected: 1}
		}
		s.progress.Update(delta)
		s.metrics.RecordSettled(p.sub.Effective(), outcome, 0)
		b.add(event.TaskCancelled, p.sub, 0, cause)
		p.handle.settle(outcome, nil, cause)
		return true
	}
	r, ok := s.running[instanceID]
	if !ok {
		return false
	}
	b.cancel(r.token, cause)
	took := s.release(r)
	s.progress.Update(progress.Delta{Running: -1, Cancelled: 1})
	s.metrics.RecordSettled(r.priority, OutcomeCancelled, took)
	b.add(event.TaskCancelled, r.sub, took, cause)
	r.handle.settle(OutcomeCancelled, nil, cause)
	return true
}

// Pause stops admission; submissions keep queueing until Resume
func (s *Service) Pause() {
	s.mux.Lock()
	s.paused = true
	s.mux.Unlock()
}

// Resume re-enables admission and runs a pass
func (s *Service) Resume() {
	s.mux.Lock()
	s.paused = false
	s.mux.Unlock()
	s.Reassess()
}

// Reassess runs a scheduling pass, refreshing aging first
func (s *Service) Reassess() {
	b := &batch{}
	s.mux.Lock()
	s.pass(b)
	s.commit(b)
}

// Start runs Reassess every ReassessInterval until ctx is done or Shutdown is called
func (s *Service) Start(ctx context.Context) error {
	interval := s.config.ReassessInterval
	if interval <= 0 {
		return types.NewConfigError("reassessInterval", "must be positive to start, got %v", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			s.Reassess()
		}
	}
}

// Shutdown rejects pending submissions, cancels running ones with
// ErrClosed, then waits for executors to return or ctx to be done.
func (s *Service) Shutdown(ctx context.Context) error {
	b := &batch{}
	s.mux.Lock()
	s.closed = true
	for id := range s.pending {
		s.cancel(id, types.ErrClosed, OutcomeRejected, b)
	}
	for id := range s.running {
		s.cancel(id, types.ErrClosed, OutcomeCancelled, b)
	}
	s.recordQueue()
	s.commit(b)
	s.closeOnce.Do(func() { close(s.shutdownCh) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if emitted := s.stopEmitter(); emitted != nil {
		select {
		case <-emitted:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SetPolicy changes the tie-break policy for the next pass
func (s *Service) SetPolicy(p policy.Policy) error {
	if !p.IsValid() {
		return types.NewConfigError("policy", "unsupported policy %q", p)
	}
	s.mux.Lock()
	s.config.Policy = p
	s.mux.Unlock()
	return nil
}

// SetPolicyName parses name and changes the policy
func (s *Service) SetPolicyName(name string) error {
	p, err := policy.Parse(name)
	if err != nil {
		return err
	}
	return s.SetPolicy(p)
}

// Policy returns the active policy
func (s *Service) Policy() policy.Policy {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.config.Policy
}

// SetMaxConcurrent changes the global ceiling. Lowering it never stops
// running submissions.
func (s *Service) SetMaxConcurrent(n int) error {
	if n <= 0 {
		return types.NewConfigError("maxConcurrentTasks", "must be positive, got %v", n)
	}
	s.mux.Lock()
	s.config.MaxConcurrent = n
	s.mux.Unlock()
	s.Reassess()
	return nil
}

// SetDefaultPriority changes the fallback priority of submissions without one
func (s *Service) SetDefaultPriority(level priority.Level) error {
	if !level.IsValid() {
		return types.NewConfigError("defaultPriority", "unsupported level %v", level)
	}
	s.mux.Lock()
	s.config.DefaultPriority = level
	s.mux.Unlock()
	return nil
}

// SetPreemptionEnabled toggles preemption
func (s *Service) SetPreemptionEnabled(enabled bool) {
	s.mux.Lock()
	s.preemption.SetEnabled(enabled)
	s.config.Preemption.Enabled = enabled
	s.mux.Unlock()
}

// SetPreemptionConfig replaces all preemption settings
func (s *Service) SetPreemptionConfig(config preemption.Config) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.preemption.Configure(config); err != nil {
		return err
	}
	s.config.Preemption = config
	return nil
}

// EnableAging configures the aging monitor
func (s *Service) EnableAging(config aging.Config) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.aging.Configure(config); err != nil {
		return err
	}
	s.config.Aging = config
	return nil
}

// CreateGroup creates or updates a group and runs a pass
func (s *Service) CreateGroup(name string, options group.Options) error {
	s.mux.Lock()
	err := s.groups.Create(name, options)
	s.mux.Unlock()
	if err != nil {
		return err
	}
	s.Reassess()
	return nil
}

// DefineResource creates or resizes a resource and runs a pass. Pending
// submissions that no longer fit are rejected with ErrUnschedulable.
func (s *Service) DefineResource(name string, capacity int) error {
	s.mux.Lock()
	err := s.resources.Define(name, capacity)
	if err == nil {
		s.recordResources(map[string]int{name: 0})
	}
	s.mux.Unlock()
	if err != nil {
		return err
	}
	s.Reassess()
	return nil
}

// ListRunning returns instance ids of running submissions, sorted
func (s *Service) ListRunning() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := make([]string, 0, len(s.running))
	for id := range s.running {
		ret = append(ret, id)
	}
	sort.Strings(ret)
	return ret
}

// ListPending returns instance ids of pending submissions in policy order
func (s *Service) ListPending() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	ordered := s.config.Policy.Order(s.pendingSubmissions())
	ret := make([]string, len(ordered))
	for i, sub := range ordered {
		ret[i] = sub.InstanceID
	}
	return ret
}

// EffectivePriority returns the priority a pending submission is ordered
// by, or the one a running submission started with.
func (s *Service) EffectivePriority(instanceID string) (priority.Level, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if p, ok := s.pending[instanceID]; ok {
		return p.sub.Effective(), true
	}
	if r, ok := s.running[instanceID]; ok {
		return r.priority, true
	}
	return priority.Unspecified, false
}

// GetResourceAllocation returns allocated units of a resource
func (s *Service) GetResourceAllocation(name string) (allocated, capacity int, err error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	allocated, capacity, ok := s.resources.Usage(name)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unknown resource %q", types.ErrUnschedulable, name)
	}
	return allocated, capacity, nil
}

// GroupRunning returns the running count and ceiling of a group
func (s *Service) GroupRunning(name string) (running, maxConcurrent int, ok bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.groups.Usage(name)
}

// Snapshot returns aggregated counters
func (s *Service) Snapshot() progress.Counters {
	return s.progress.Snapshot()
}

// Config returns the current settings
func (s *Service) Config() Config {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.config
}

func (s *Service) recordQueue() {
	s.metrics.RecordQueue(len(s.pending), len(s.running))
}

func (s *Service) recordResources(resources map[string]int) {
	for name := range resources {
		if allocated, capacity, ok := s.resources.Usage(name); ok {
			s.metrics.RecordResource(name, allocated, capacity)
		}
	}
}

// capacity is the admission view of live scheduler state
type capacity struct {
	s *Service
}

func (c *capacity) Running() int       { return len(c.s.running) }
func (c *capacity) MaxConcurrent() int { return c.s.config.MaxConcurrent }
func (c *capacity) Group(name string) (int, int, bool) {
	return c.s.groups.Usage(name)
}
func (c *capacity) Resource(name string) (int, int, bool) {
	return c.s.resources.Usage(name)
}

// New creates a scheduler
func New(opts ...Option) (*Service, error) {
	ret := &Service{
		config:     DefaultConfig(),
		pending:    make(map[string]*pendingTask),
		running:    make(map[string]*runningTask),
		resources:  resource.New(),
		groups:     group.New(),
		aging:      aging.New(),
		admission:  admission.New(),
		profiles:   newProfileStore(),
		clock:      clock.System,
		newID:      idgen.New,
		logger:     logrus.StandardLogger(),
		metrics:    noopMetrics{},
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	if ret.progress == nil {
		ret.progress = progress.New()
	}
	if err := ret.aging.Configure(ret.config.Aging); err != nil {
		return nil, err
	}
	ret.preemption = preemption.New(ret.admission, ret.config.Preemption)
	if ret.events != nil {
		publisher, err := event.PublisherOf[*Notification](ret.events)
		if err != nil {
			return nil, err
		}
		ret.publisher = publisher
		ret.emitSignal = make(chan struct{}, 1)
		ret.emitDone = make(chan struct{})
		go ret.runEmitter()
	}
	return ret, nil
}
