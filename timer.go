package cohook

import (
	"github.com/sirupsen/logrus"
)

// Notifier is woken when a Timer's deadline passes.
type Notifier interface {
	Notify()
}

// NotifyFunc adapts a plain function to Notifier.
type NotifyFunc func()

// Notify calls f.
func (f NotifyFunc) Notify() { f() }

// Timer is an entity that can wait for a deadline. The TimerManager
// only references a Timer while it is armed and never owns it.
type Timer struct {
	expire int64    // absolute deadline, clock milliseconds
	slot   int      // 1-based heap position, 0 when not armed
	notify Notifier // invoked once per expiry
}

// NewTimer returns an unarmed timer that wakes n.
func NewTimer(n Notifier) *Timer {
	return &Timer{notify: n}
}

// Armed reports whether the timer currently sits in a heap.
func (t *Timer) Armed() bool {
	return t.slot > 0
}

// Deadline returns the absolute deadline of the last arm.
func (t *Timer) Deadline() int64 {
	return t.expire
}

// Clock supplies the scheduler's millisecond clock. Now returns the
// value sampled at the start of the current tick; it is not re-read
// from the system on every call.
type Clock interface {
	Now() int64
}

// TimerManager arms and expires timers over a deadline heap.
type TimerManager struct {
	noCopy noCopy
	heap   *deadlineHeap
	clock  Clock
	log    logrus.FieldLogger
}

// NewTimerManager builds a manager holding up to capacity armed timers
// (raised to MinTimerCapacity). A nil log uses the logrus standard
// logger.
func NewTimerManager(capacity int, clock Clock, log logrus.FieldLogger) *TimerManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TimerManager{
		heap:  newDeadlineHeap(capacity),
		clock: clock,
		log:   log,
	}
}

// Arm schedules t to fire intervalMs after the current clock. An armed
// timer is moved rather than duplicated. On failure t is left unarmed
// and the caller must proceed as if it will never fire.
func (m *TimerManager) Arm(t *Timer, intervalMs int64) error {
	return m.ArmAt(t, m.clock.Now()+intervalMs)
}

// ArmAt schedules t at an absolute deadline.
func (m *TimerManager) ArmAt(t *Timer, deadline int64) error {
	if t == nil {
		m.log.Error("timer start failed: nil timer")
		return ErrNilTimer
	}
	m.heap.remove(t)
	t.expire = deadline
	if err := m.heap.push(t); err != nil {
		m.log.WithFields(logrus.Fields{
			"deadline": deadline,
			"armed":    m.heap.size(),
		}).WithError(err).Error("timer start failed")
		return err
	}
	return nil
}

// Disarm removes t if armed. Calling it on an unarmed or nil timer does
// nothing.
func (m *TimerManager) Disarm(t *Timer) {
	m.heap.remove(t)
}

// Tick notifies every timer whose deadline is at or before the clock.
// A timer leaves the heap before its notification runs, so the
// notification may re-arm it, or any other timer; the minimum is
// re-read after each notification and already expired re-arms fire in
// the same call. It returns the number of notifications made.
func (m *TimerManager) Tick() int {
	n := 0
	for {
		t := m.heap.min()
		if t == nil || t.expire > m.clock.Now() {
			return n
		}
		m.heap.remove(t)
		n++
		if t.notify != nil {
			t.notify.Notify()
		}
	}
}

// Next returns the earliest armed deadline.
func (m *TimerManager) Next() (int64, bool) {
	t := m.heap.min()
	if t == nil {
		return 0, false
	}
	return t.expire, true
}

// Len returns the number of armed timers.
func (m *TimerManager) Len() int {
	return m.heap.size()
}

// Cap returns the maximum number of armed timers.
func (m *TimerManager) Cap() int {
	return m.heap.capacity()
}
