package cohook

import (
	"context"
	"fmt"
	"runtime/trace"

	"github.com/webriots/coro"
)

const (
	taskTraceTaskType   = "cohook-loop"
	taskTraceRegionType = "cohook-task"
	taskTraceCategory   = "cohook"
)

// wakeReason tells a resumed task why it was resumed.
type wakeReason uint8

const (
	wakeStart   wakeReason = iota // first run, or woken by a task primitive
	wakeReady                     // the awaited descriptor became ready
	wakeTimeout                   // the wait's deadline passed
	wakeClosed                    // the descriptor was closed under the wait
)

func (r wakeReason) String() string {
	switch r {
	case wakeStart:
		return "start"
	case wakeReady:
		return "ready"
	case wakeTimeout:
		return "timeout"
	case wakeClosed:
		return "closed"
	default:
		return fmt.Sprintf("wakeReason(%d)", uint8(r))
	}
}

// Task is a cooperatively scheduled coroutine. Exactly one task runs at
// a time; a task only gives up control inside a hooked socket call,
// Sleep, or a task synchronization primitive.
type Task struct {
	ctx     context.Context
	id      uint64
	suspend func() wakeReason
	resume  func(wakeReason) (struct{}, bool)
	cancel  func()
	sched   *Scheduler
	wait    *pendingWait // set while suspended in a socket call
	pw      pendingWait  // reused by every socket wait of this task
	sleep   Timer
	done    bool
}

func newTask(ctx context.Context, fn func(context.Context), sched *Scheduler, id uint64) *Task {
	task := &Task{sched: sched, id: id}
	task.ctx = withTaskContext(ctx, task)
	task.sleep.notify = NotifyFunc(func() {
		task.sched.ready(task, wakeTimeout)
	})

	resume, cancel := coro.New(
		func(_ func(struct{}) wakeReason, suspend func() wakeReason) (z struct{}) {
			region := trace.StartRegion(task.ctx, taskTraceRegionType)
			defer region.End()

			task.suspend = suspend
			fn(task.ctx)
			return
		},
	)

	task.resume = resume
	task.cancel = cancel
	return task
}

// ID returns the task's scheduler-unique identifier.
func (t *Task) ID() uint64 {
	return t.id
}

// Context returns the context the task runs with.
func (t *Task) Context() context.Context {
	return t.ctx
}

// Go spawns a task on the same scheduler with a context derived from
// t's.
func (t *Task) Go(fn func(context.Context)) *Task {
	return t.sched.goctx(t.ctx, fn)
}

// Sleep suspends the task for at least ms milliseconds of scheduler
// clock. Sleep(0) yields until the next scheduling pass.
func (t *Task) Sleep(ms int64) {
	if ms < 0 {
		ms = 0
	}
	if err := t.sched.timers.Arm(&t.sleep, ms); err != nil {
		return
	}
	t.Logf("SLEEP %d", ms)
	t.park()
}

// park suspends the task until the scheduler resumes it and returns
// the reason it was resumed.
func (t *Task) park() wakeReason {
	t.Log("SUSPEND")
	reason := t.suspend()
	t.Logf("RESUME %v", reason)
	return reason
}

// run resumes the task and reports whether it is still alive.
func (t *Task) run(reason wakeReason) bool {
	_, ok := t.resume(reason)
	return ok
}

// Log writes msg to the execution trace, tagged with the task id.
func (t *Task) Log(msg string) {
	if trace.IsEnabled() {
		trace.Log(t.ctx, taskTraceCategory, fmt.Sprintf("task %d %s", t.id, msg))
	}
}

// Logf is Log with formatting.
func (t *Task) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		t.Log(fmt.Sprintf(format, args...))
	}
}
