package cohook

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	// ErrNilTimer is returned when a nil timer is armed.
	ErrNilTimer = errors.New("cohook: nil timer")

	// ErrTimerCapacity is returned when the deadline heap is full.
	ErrTimerCapacity = errors.New("cohook: timer capacity exceeded")

	// ErrWaitConflict is returned when a second task tries to wait on
	// a descriptor direction that already has a waiter.
	ErrWaitConflict = errors.New("cohook: descriptor already has a waiter in this direction")

	// ErrStalled is returned by Run when live tasks remain but nothing
	// can ever wake them.
	ErrStalled = errors.New("cohook: live tasks can never be woken")

	// ErrSchedulerClosed is returned when a closed scheduler is run.
	ErrSchedulerClosed = errors.New("cohook: scheduler closed")

	// ErrUnsupported is returned by New on platforms without a
	// readiness source.
	ErrUnsupported = errors.New("cohook: platform not supported")
)

// wouldBlock reports whether a native non-blocking call asked to be
// retried once the descriptor becomes ready.
func wouldBlock(err error) bool {
	switch err {
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
		return true
	}
	return false
}
