package cohook

import (
	"context"

	"golang.org/x/sys/unix"
)

// pendingWait ties one suspended task to the two sources that can
// resume it: readiness of fd in direction ev, and timer. Whichever
// fires first resolves the wait and withdraws the other.
type pendingWait struct {
	sched      *Scheduler
	task       *Task
	fd         int
	ev         IOEvents
	timer      Timer
	registered bool // interest is held in the registry and poller
	done       bool
}

// Notify is the timer's expiry.
func (w *pendingWait) Notify() {
	w.wake(wakeTimeout)
}

// wake resolves the wait. Only the first call has any effect: it
// disarms the timer, withdraws the readiness interest and queues the
// task exactly once.
func (w *pendingWait) wake(reason wakeReason) {
	if w.done {
		return
	}
	w.done = true
	w.sched.timers.Disarm(&w.timer)
	w.sched.unwatch(w)
	w.task.wait = nil
	w.sched.ready(w.task, reason)
}

// await suspends t until fd is ready in direction ev, the deadline
// passes (when bounded) or the descriptor is closed.
func (s *Scheduler) await(t *Task, fd int, st *HookState, ev IOEvents, deadline int64, bounded bool) (wakeReason, error) {
	if st.wait(ev) != nil {
		return 0, ErrWaitConflict
	}

	w := &t.pw
	*w = pendingWait{sched: s, task: t, fd: fd, ev: ev}
	w.timer.notify = w

	if bounded {
		// An unarmed timer leaves the wait unbounded; ArmAt has
		// already logged why.
		_ = s.timers.ArmAt(&w.timer, deadline)
	}

	st.setWait(ev, w)
	want := st.interest()
	if err := s.poller.update(fd, st.events, want); err != nil {
		st.setWait(ev, nil)
		s.timers.Disarm(&w.timer)
		w.done = true
		return 0, err
	}
	st.events = want
	w.registered = true
	s.waiting++
	t.wait = w

	return t.park(), nil
}

// unwatch drops w's readiness interest.
func (s *Scheduler) unwatch(w *pendingWait) {
	if !w.registered {
		return
	}
	w.registered = false
	s.waiting--

	st := s.registry.Lookup(w.fd)
	if st == nil || st.wait(w.ev) != w {
		return
	}
	st.setWait(w.ev, nil)
	want := st.interest()
	if err := s.poller.update(w.fd, st.events, want); err != nil {
		s.log.WithError(err).WithField("fd", w.fd).Warn("dropping readiness interest failed")
	}
	st.events = want
}

// dispatch delivers one readiness event to the waits on fd. Errors
// and hangups wake both directions so the retried call observes them.
func (s *Scheduler) dispatch(fd int, ev IOEvents) {
	st := s.registry.Lookup(fd)
	if st == nil {
		_ = s.poller.update(fd, EventRead, 0)
		return
	}
	if ev&(EventError|EventHangup) != 0 {
		ev |= EventRead | EventWrite
	}
	if w := st.readWait; w != nil && ev&EventRead != 0 {
		w.wake(wakeReady)
	}
	if w := st.writeWait; w != nil && ev&EventWrite != 0 {
		w.wake(wakeReady)
	}
}

// cancelWaits resolves every wait on a descriptor that is being
// closed. The waiting tasks resume with EBADF and never retry on the
// descriptor number, which may be reused once the close completes.
func (s *Scheduler) cancelWaits(st *HookState) {
	if w := st.readWait; w != nil {
		w.wake(wakeClosed)
	}
	if w := st.writeWait; w != nil {
		w.wake(wakeClosed)
	}
}

// emulate runs op as an emulated blocking call. The descriptor is
// non-blocking at the OS level; while op would block the calling task
// is suspended until fd is ready in direction ev or the direction's
// timeout elapses. The timeout bounds the whole call, not each wait.
// Without a task in ctx the native would-block error is returned.
func (h *Hooks) emulate(ctx context.Context, fd int, st *HookState, ev IOEvents, op func() error) error {
	s := h.sched
	task, _ := TaskFromContext(ctx)

	var (
		gen      = st.gen
		deadline int64
		bounded  bool
		started  bool
	)
	for {
		err := op()
		if !wouldBlock(err) {
			return err
		}
		if task == nil || task.sched != s || task.done {
			return err
		}

		if !started {
			started = true
			if timeout := st.Timeout(ev); timeout > 0 {
				deadline, bounded = s.clock.Now()+int64(timeout), true
			}
		} else if bounded && s.clock.Now() >= deadline {
			// readiness keeps arriving but the call still would block
			return unix.ETIMEDOUT
		}

		reason, werr := s.await(task, fd, st, ev, deadline, bounded)
		if werr != nil {
			return werr
		}
		switch reason {
		case wakeTimeout:
			return unix.ETIMEDOUT
		case wakeClosed:
			return unix.EBADF
		}

		// A task queued by readiness can be overtaken by one that closes
		// the descriptor and reuses its number. Never retry on it then.
		if !h.registry.current(fd, st, gen) {
			return unix.EBADF
		}
	}
}
