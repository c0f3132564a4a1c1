package cohook

import (
	"context"
	"runtime/trace"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"
)

// wakeup is a run queue entry.
type wakeup struct {
	task   *Task
	reason wakeReason
}

// Scheduler multiplexes tasks over one thread. Each pass waits for
// descriptor readiness, samples the clock, dispatches readiness,
// expires timers and then runs every queued task. A Scheduler is not
// safe for use from multiple goroutines.
type Scheduler struct {
	noCopy   noCopy
	cfg      Config
	log      logrus.FieldLogger
	ctx      context.Context
	clock    *tickClock
	timers   *TimerManager
	registry *Registry
	poller   *poller
	hooks    *Hooks
	runq     deque.Deque[wakeup]
	tasks    map[*Task]struct{}
	nextID   uint64
	waiting  int // socket waits with registered interest
	closed   bool
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	cfg       Config
	log       logrus.FieldLogger
	sys       *Syscalls
	intercept *bool
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger. The default is the logrus standard
// logger with a component field.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithSyscalls replaces the native syscall table the hooks delegate
// to.
func WithSyscalls(sys *Syscalls) Option {
	return func(o *options) {
		o.sys = sys
	}
}

// WithInterception overrides Config.Intercept. Interception is fixed
// for the life of the scheduler.
func WithInterception(on bool) Option {
	return func(o *options) {
		o.intercept = &on
	}
}

// New builds a Scheduler with its timer manager, descriptor registry,
// readiness source and hooks.
func New(opts ...Option) (*Scheduler, error) {
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.log == nil {
		o.log = logrus.StandardLogger().WithField("component", "cohook")
	}
	intercept := o.cfg.Intercept
	if o.intercept != nil {
		intercept = *o.intercept
	}

	p, err := newPoller(o.cfg.PollEvents)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:    o.cfg,
		log:    o.log,
		ctx:    context.Background(),
		clock:  newTickClock(),
		poller: p,
		tasks:  make(map[*Task]struct{}),
	}
	s.clock.refresh()
	s.timers = NewTimerManager(o.cfg.TimerCapacity, s.clock, o.log)
	s.registry = NewRegistry(o.cfg.MaxFDs, o.cfg.DefaultTimeout)
	s.hooks = &Hooks{
		sched:    s,
		registry: s.registry,
		active:   intercept,
		sys:      o.sys,
		log:      o.log,
	}
	return s, nil
}

// Hooks returns the socket interception layer bound to s.
func (s *Scheduler) Hooks() *Hooks {
	return s.hooks
}

// Timers returns the scheduler's timer manager.
func (s *Scheduler) Timers() *TimerManager {
	return s.timers
}

// Registry returns the descriptor hook registry.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Now returns the clock sampled at the start of the current pass.
func (s *Scheduler) Now() int64 {
	return s.clock.Now()
}

// Go spawns a task running fn. It first runs on the next pass, after
// the tasks already queued.
func (s *Scheduler) Go(fn func(context.Context)) *Task {
	return s.goctx(s.ctx, fn)
}

func (s *Scheduler) goctx(ctx context.Context, fn func(context.Context)) *Task {
	s.nextID++
	t := newTask(ctx, fn, s, s.nextID)
	s.tasks[t] = struct{}{}
	s.runq.PushBack(wakeup{task: t, reason: wakeStart})
	t.Log("GO")
	return t
}

// ready queues t to be resumed with reason. Finished tasks are
// ignored.
func (s *Scheduler) ready(t *Task, reason wakeReason) {
	if t.done {
		return
	}
	s.runq.PushBack(wakeup{task: t, reason: reason})
}

// Run drives tasks until none are left. It returns ctx.Err() if ctx is
// cancelled and ErrStalled if live tasks remain that nothing can wake;
// in both cases every remaining task is cancelled and its waits torn
// down.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.closed {
		return ErrSchedulerClosed
	}

	var tracer *trace.Task
	ctx, tracer = trace.NewTask(ctx, taskTraceTaskType)
	defer tracer.End()

	trace.Log(ctx, taskTraceCategory, "LOOP")

	for len(s.tasks) > 0 {
		if err := ctx.Err(); err != nil {
			s.abort(err)
			return err
		}

		timeout, ok := s.pollTimeout()
		if !ok {
			s.abort(ErrStalled)
			return ErrStalled
		}

		n, err := s.poller.wait(timeout)
		if err != nil {
			s.abort(err)
			return err
		}

		s.clock.refresh()
		for i := 0; i < n; i++ {
			s.dispatch(s.poller.event(i))
		}
		if fired := s.timers.Tick(); fired > 0 {
			trace.Logf(ctx, taskTraceCategory, "TIMERS %d", fired)
		}

		for s.runq.Len() > 0 {
			w := s.runq.PopFront()
			s.step(w.task, w.reason)
		}
	}

	trace.Log(ctx, taskTraceCategory, "LOOP DONE")
	return nil
}

// Close releases the readiness source. Run must not be active.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.tasks) > 0 {
		s.abort(ErrSchedulerClosed)
	}
	return s.poller.close()
}

// pollTimeout picks how long the readiness wait may block: not at all
// with runnable tasks, until the next deadline with armed timers, one
// quantum with only socket waits. It reports false when nothing can
// ever wake the live tasks.
func (s *Scheduler) pollTimeout() (int, bool) {
	if s.runq.Len() > 0 {
		return 0, true
	}
	quantum := int64(s.cfg.PollQuantum)
	if next, ok := s.timers.Next(); ok {
		d := next - s.clock.peek()
		if d < 0 {
			d = 0
		}
		if d > quantum {
			d = quantum
		}
		return int(d), true
	}
	if s.waiting > 0 {
		return int(quantum), true
	}
	return 0, false
}

// step resumes one task.
func (s *Scheduler) step(t *Task, reason wakeReason) {
	if t.done {
		return
	}
	if t.run(reason) {
		return
	}
	t.done = true
	delete(s.tasks, t)
	t.Log("DONE")
}

// abort cancels every live task. Pending socket waits are withdrawn
// from the poller and the timer heap before the coroutines unwind.
func (s *Scheduler) abort(cause error) {
	s.log.WithError(cause).WithField("tasks", len(s.tasks)).Warn("aborting scheduler run")
	for t := range s.tasks {
		if t.wait != nil {
			t.wait.wake(wakeClosed)
		}
		s.timers.Disarm(&t.sleep)
		t.done = true
		t.cancel()
	}
	clear(s.tasks)
	s.runq.Clear()
}
