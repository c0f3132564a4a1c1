package cohook

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Hooks is the socket interception layer. Its methods are drop-in
// replacements for the socket system calls. A call on a tracked,
// emulated descriptor from inside a task behaves as a blocking call
// bounded by the descriptor's timeout; everything else (interception
// off, untracked descriptors, descriptors the application made
// non-blocking itself) goes straight to the native call.
//
// Counts are never negative; a failed call returns 0, or the number of
// bytes already transferred for Write and Send. Errors are unix.Errno
// values and an expired timeout is unix.ETIMEDOUT.
type Hooks struct {
	sched    *Scheduler
	registry *Registry
	active   bool
	log      logrus.FieldLogger

	once sync.Once
	sys  *Syscalls
}

// Active reports whether interception is on.
func (h *Hooks) Active() bool {
	return h.active
}

// syscalls resolves the native table on first use.
func (h *Hooks) syscalls() *Syscalls {
	h.once.Do(func() {
		if h.sys == nil {
			h.sys = NativeSyscalls()
		}
	})
	return h.sys
}

// tracked returns the hook state of fd when interception is on.
func (h *Hooks) tracked(fd int) *HookState {
	if !h.active {
		return nil
	}
	return h.registry.Lookup(fd)
}

// emulated returns the hook state of fd when calls on it are emulated.
func (h *Hooks) emulated(fd int) *HookState {
	st := h.tracked(fd)
	if st == nil || st.Nonblocking() {
		return nil
	}
	return st
}

// Socket creates a socket. With interception on, the descriptor is
// registered and switched to non-blocking at the OS level.
func (h *Hooks) Socket(domain, typ, proto int) (int, error) {
	sys := h.syscalls()
	fd, err := sys.Socket(domain, typ, proto)
	if err != nil || !h.active {
		return fd, err
	}
	if err := h.Track(fd); err != nil {
		_ = sys.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Socketpair creates a connected pair of sockets, tracking both ends
// like Socket.
func (h *Hooks) Socketpair(domain, typ, proto int) ([2]int, error) {
	sys := h.syscalls()
	fds, err := sys.Socketpair(domain, typ, proto)
	if err != nil || !h.active {
		return fds, err
	}
	for i, fd := range fds {
		if err := h.Track(fd); err != nil {
			for _, tracked := range fds[:i] {
				h.registry.Unregister(tracked)
			}
			_ = sys.Close(fds[0])
			_ = sys.Close(fds[1])
			return [2]int{-1, -1}, err
		}
	}
	return fds, nil
}

// Track registers a descriptor that was created outside Socket, such
// as one returned by Accept, and switches it to non-blocking.
// Descriptors beyond the registry are left untracked, and tracking an
// already tracked descriptor keeps its state.
func (h *Hooks) Track(fd int) error {
	if !h.active || h.registry.Lookup(fd) != nil {
		return nil
	}
	if !h.registry.Register(fd) {
		h.log.WithField("fd", fd).Warn("descriptor outside hook table, not tracked")
		return nil
	}
	if err := h.syscalls().SetNonblock(fd, true); err != nil {
		h.registry.Unregister(fd)
		return fmt.Errorf("set non-blocking fd %d: %w", fd, err)
	}
	return nil
}

// Close closes fd. Any task suspended on it is resumed with EBADF and
// its timer and readiness interest are withdrawn before the slot is
// cleared and the descriptor number can be reused.
func (h *Hooks) Close(fd int) error {
	if st := h.tracked(fd); st != nil {
		h.sched.cancelWaits(st)
		if st.events != 0 {
			_ = h.sched.poller.update(fd, st.events, 0)
		}
	}
	if h.active {
		h.registry.Unregister(fd)
	}
	return h.syscalls().Close(fd)
}

// Connect connects fd to sa, waiting up to the write timeout for an
// in-progress connection to complete.
func (h *Hooks) Connect(ctx context.Context, fd int, sa unix.Sockaddr) error {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil {
		return sys.Connect(fd, sa)
	}

	attempted := false
	return h.emulate(ctx, fd, st, EventWrite, func() error {
		if attempted {
			soerr, err := sys.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if err != nil {
				return err
			}
			if soerr != 0 {
				return unix.Errno(soerr)
			}
		}
		err := sys.Connect(fd, sa)
		if attempted && err == unix.EISCONN {
			return nil
		}
		attempted = true
		return err
	})
}

// Read reads into p, waiting up to the read timeout for data.
func (h *Hooks) Read(ctx context.Context, fd int, p []byte) (int, error) {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil {
		n, err := sys.Read(fd, p)
		return count(n), err
	}

	var n int
	err := h.emulate(ctx, fd, st, EventRead, func() (err error) {
		n, err = sys.Read(fd, p)
		return err
	})
	return count(n), err
}

// Recv receives into p, waiting up to the read timeout.
func (h *Hooks) Recv(ctx context.Context, fd int, p []byte, flags int) (int, error) {
	n, _, err := h.Recvfrom(ctx, fd, p, flags)
	return n, err
}

// Recvfrom receives a message and its source address, waiting up to
// the read timeout. MSG_DONTWAIT keeps native semantics for the call.
func (h *Hooks) Recvfrom(ctx context.Context, fd int, p []byte, flags int) (int, unix.Sockaddr, error) {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil || flags&unix.MSG_DONTWAIT != 0 {
		n, from, err := sys.Recvfrom(fd, p, flags)
		return count(n), from, err
	}

	var (
		n    int
		from unix.Sockaddr
	)
	err := h.emulate(ctx, fd, st, EventRead, func() (err error) {
		n, from, err = sys.Recvfrom(fd, p, flags)
		return err
	})
	return count(n), from, err
}

// Write writes all of p, waiting up to the write timeout in total
// whenever the socket buffer is full.
func (h *Hooks) Write(ctx context.Context, fd int, p []byte) (int, error) {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil {
		n, err := sys.Write(fd, p)
		return count(n), err
	}
	return h.sendAll(ctx, fd, st, p, func(b []byte) (int, error) {
		return sys.Write(fd, b)
	})
}

// Send sends all of p on a connected socket, like Write.
// MSG_DONTWAIT keeps native semantics for the call.
func (h *Hooks) Send(ctx context.Context, fd int, p []byte, flags int) (int, error) {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil || flags&unix.MSG_DONTWAIT != 0 {
		n, err := sys.Sendmsg(fd, p, nil, flags)
		return count(n), err
	}
	return h.sendAll(ctx, fd, st, p, func(b []byte) (int, error) {
		return sys.Sendmsg(fd, b, nil, flags)
	})
}

// Sendto sends one datagram to to, waiting up to the write timeout
// for buffer space.
func (h *Hooks) Sendto(ctx context.Context, fd int, p []byte, flags int, to unix.Sockaddr) (int, error) {
	sys := h.syscalls()
	st := h.emulated(fd)
	if st == nil || flags&unix.MSG_DONTWAIT != 0 {
		n, err := sys.Sendmsg(fd, p, to, flags)
		return count(n), err
	}

	var n int
	err := h.emulate(ctx, fd, st, EventWrite, func() (err error) {
		n, err = sys.Sendmsg(fd, p, to, flags)
		return err
	})
	return count(n), err
}

// sendAll loops over partial sends. Bytes sent before a failure are
// reported with the error.
func (h *Hooks) sendAll(ctx context.Context, fd int, st *HookState, p []byte, send func([]byte) (int, error)) (int, error) {
	sent := 0
	err := h.emulate(ctx, fd, st, EventWrite, func() error {
		for sent < len(p) {
			n, err := send(p[sent:])
			if n > 0 {
				sent += n
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return sent, err
}

// SetsockoptTimeval sets a timeval option. SO_RCVTIMEO and SO_SNDTIMEO
// on a tracked descriptor also become its emulated read and write
// timeouts, in milliseconds.
func (h *Hooks) SetsockoptTimeval(fd, level, opt int, tv *unix.Timeval) error {
	if st := h.tracked(fd); st != nil && level == unix.SOL_SOCKET && tv != nil {
		ms := timevalMillis(tv)
		switch opt {
		case unix.SO_RCVTIMEO:
			h.registry.SetTimeout(fd, EventRead, ms)
		case unix.SO_SNDTIMEO:
			h.registry.SetTimeout(fd, EventWrite, ms)
		}
	}
	return h.syscalls().SetsockoptTimeval(fd, level, opt, tv)
}

// SetsockoptInt sets an integer option.
func (h *Hooks) SetsockoptInt(fd, level, opt, value int) error {
	return h.syscalls().SetsockoptInt(fd, level, opt, value)
}

// FcntlInt performs fcntl. F_SETFL with O_NONBLOCK opts the descriptor
// out of emulation. While emulated, the OS descriptor stays
// non-blocking whatever F_SETFL asks, and F_GETFL does not report the
// O_NONBLOCK the application never set.
func (h *Hooks) FcntlInt(fd, cmd, arg int) (int, error) {
	sys := h.syscalls()
	st := h.tracked(fd)
	if st == nil {
		return sys.FcntlInt(fd, cmd, arg)
	}

	switch cmd {
	case unix.F_SETFL:
		if arg&unix.O_NONBLOCK != 0 {
			h.registry.SetNonblocking(fd)
		}
		if !st.Nonblocking() {
			arg |= unix.O_NONBLOCK
		}
	case unix.F_GETFL:
		flags, err := sys.FcntlInt(fd, cmd, arg)
		if err == nil && !st.Nonblocking() {
			flags &^= unix.O_NONBLOCK
		}
		return flags, err
	}
	return sys.FcntlInt(fd, cmd, arg)
}

// IoctlSetInt performs an integer ioctl. A non-zero FIONBIO opts the
// descriptor out of emulation; a zero FIONBIO on an emulated
// descriptor does not make the OS descriptor blocking.
func (h *Hooks) IoctlSetInt(fd int, req uint, value int) error {
	if st := h.tracked(fd); st != nil && req == unix.FIONBIO {
		if value != 0 {
			h.registry.SetNonblocking(fd)
		} else if !st.Nonblocking() {
			value = 1
		}
	}
	return h.syscalls().IoctlSetInt(fd, req, value)
}

// Listen always passes through.
func (h *Hooks) Listen(fd, backlog int) error {
	return h.syscalls().Listen(fd, backlog)
}

// Bind always passes through.
func (h *Hooks) Bind(fd int, sa unix.Sockaddr) error {
	return h.syscalls().Bind(fd, sa)
}

// Accept always passes through, without emulated blocking: on a
// tracked listener it returns EAGAIN when no connection is pending.
// The accepted descriptor is not tracked; pass it to Track to emulate
// calls on it.
func (h *Hooks) Accept(fd int) (int, unix.Sockaddr, error) {
	return h.syscalls().Accept(fd)
}

// timevalMillis converts tv to milliseconds, rounding up so that a
// non-zero timeout never becomes 0, which means no bound.
func timevalMillis(tv *unix.Timeval) int {
	us := int64(tv.Sec)*1_000_000 + int64(tv.Usec)
	if us <= 0 {
		return 0
	}
	return int((us + 999) / 1000)
}

func count(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
