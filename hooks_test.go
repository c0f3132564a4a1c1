//go:build linux

package cohook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var loopback = [4]byte{127, 0, 0, 1}

func newPair(t *testing.T, h *Hooks, typ int) [2]int {
	t.Helper()
	fds, err := h.Socketpair(unix.AF_UNIX, typ, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Close(fds[0])
		_ = h.Close(fds[1])
	})
	return fds
}

func osNonblocking(t *testing.T, fd int) bool {
	t.Helper()
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	return flags&unix.O_NONBLOCK != 0
}

func TestSocketIsTrackedAndNonblocking(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	r.True(h.Active())

	fd, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	r.NoError(err)

	st := s.Registry().Lookup(fd)
	r.NotNil(st)
	r.Equal(DefaultTimeout, st.Timeout(EventRead))
	r.True(osNonblocking(t, fd))

	// the application still sees a blocking descriptor
	flags, err := h.FcntlInt(fd, unix.F_GETFL, 0)
	r.NoError(err)
	r.Zero(flags & unix.O_NONBLOCK)

	// clearing the flags keeps the OS descriptor non-blocking
	_, err = h.FcntlInt(fd, unix.F_SETFL, 0)
	r.NoError(err)
	r.True(osNonblocking(t, fd))
	r.NoError(h.IoctlSetInt(fd, unix.FIONBIO, 0))
	r.True(osNonblocking(t, fd))
	r.False(st.Nonblocking())

	r.NoError(h.Close(fd))
	r.Nil(s.Registry().Lookup(fd))
}

func TestReadTimesOut(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	r.NoError(h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Usec: 200_000}))
	st := s.Registry().Lookup(fds[0])
	r.Equal(200, st.Timeout(EventRead))
	r.Equal(DefaultTimeout, st.Timeout(EventWrite))

	var (
		n       int
		rerr    error
		elapsed time.Duration
		pending bool
	)
	s.Go(func(ctx context.Context) {
		start := time.Now()
		n, rerr = h.Read(ctx, fds[0], make([]byte, 16))
		elapsed = time.Since(start)
	})
	s.Go(func(ctx context.Context) {
		MustTaskFromContext(ctx).Sleep(50)
		pending = st.Pending()
	})

	r.NoError(s.Run(context.Background()))
	r.True(pending)
	r.ErrorIs(rerr, unix.ETIMEDOUT)
	r.Zero(n)
	// the deadline counts from the pass's clock sample, in whole
	// milliseconds
	r.GreaterOrEqual(elapsed, 195*time.Millisecond)
	r.Less(elapsed, time.Second)
	r.False(st.Pending())
	r.Zero(s.Timers().Len())
}

func TestReadReadyBeforeDeadline(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	var (
		n           int
		rerr, werr  error
		armedInWait int
		buf         = make([]byte, 16)
	)
	s.Go(func(ctx context.Context) {
		n, rerr = h.Read(ctx, fds[0], buf)
	})
	s.Go(func(ctx context.Context) {
		MustTaskFromContext(ctx).Sleep(20)
		armedInWait = s.Timers().Len()
		_, werr = h.Write(ctx, fds[1], []byte("hello"))
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(werr)
	r.NoError(rerr)
	r.Equal("hello", string(buf[:n]))
	r.Equal(1, armedInWait)
	r.Zero(s.Timers().Len())
	r.False(s.Registry().Lookup(fds[0]).Pending())
}

func TestReadinessBeatsTimeoutInSamePass(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	s.Registry().SetTimeout(fds[0], EventRead, 30)

	var (
		n    int
		rerr error
		buf  = make([]byte, 4)
	)
	s.Go(func(ctx context.Context) {
		n, rerr = h.Read(ctx, fds[0], buf)
	})
	s.Go(func(context.Context) {
		// make the data and the deadline land in the same pass
		_, _ = unix.Write(fds[1], []byte("x"))
		time.Sleep(60 * time.Millisecond)
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(rerr)
	r.Equal("x", string(buf[:n]))
	r.Zero(s.Timers().Len())
}

func TestFcntlNonblockOptOut(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	flags, err := h.FcntlInt(fds[0], unix.F_GETFL, 0)
	r.NoError(err)
	_, err = h.FcntlInt(fds[0], unix.F_SETFL, flags|unix.O_NONBLOCK)
	r.NoError(err)
	r.True(s.Registry().Lookup(fds[0]).Nonblocking())

	flags, err = h.FcntlInt(fds[0], unix.F_GETFL, 0)
	r.NoError(err)
	r.NotZero(flags & unix.O_NONBLOCK)

	var (
		rerr    error
		elapsed time.Duration
	)
	s.Go(func(ctx context.Context) {
		start := time.Now()
		_, rerr = h.Read(ctx, fds[0], make([]byte, 8))
		elapsed = time.Since(start)
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(rerr, unix.EAGAIN)
	r.Less(elapsed, 50*time.Millisecond)
	r.Zero(s.Timers().Len())
}

func TestIoctlNonblockOptOut(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_DGRAM)

	r.NoError(h.IoctlSetInt(fds[0], unix.FIONBIO, 1))
	r.True(s.Registry().Lookup(fds[0]).Nonblocking())

	var rerr error
	s.Go(func(ctx context.Context) {
		_, rerr = h.Recv(ctx, fds[0], make([]byte, 8), 0)
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(rerr, unix.EAGAIN)
	r.Zero(s.Timers().Len())
}

func TestCloseWhileSuspended(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds, err := h.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	r.NoError(err)
	defer h.Close(fds[1])
	s.Registry().SetTimeout(fds[0], EventRead, 5000)

	var (
		rerr, cerr error
		elapsed    time.Duration
		resumed    int
		pending    bool
	)
	s.Go(func(ctx context.Context) {
		start := time.Now()
		_, rerr = h.Read(ctx, fds[0], make([]byte, 8))
		elapsed = time.Since(start)
		resumed++
	})
	s.Go(func(ctx context.Context) {
		MustTaskFromContext(ctx).Sleep(20)
		pending = s.Registry().Lookup(fds[0]).Pending()
		cerr = h.Close(fds[0])
	})

	r.NoError(s.Run(context.Background()))
	r.True(pending)
	r.NoError(cerr)
	r.ErrorIs(rerr, unix.EBADF)
	r.Equal(1, resumed)
	r.Less(elapsed, time.Second)
	r.Zero(s.Timers().Len())
	r.Nil(s.Registry().Lookup(fds[0]))
}

func TestWriteTimesOutWithPartialCount(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	r.NoError(h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_SNDTIMEO, &unix.Timeval{Usec: 100_000}))

	var (
		n    int
		werr error
	)
	payload := make([]byte, 16<<20)
	s.Go(func(ctx context.Context) {
		n, werr = h.Write(ctx, fds[0], payload)
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(werr, unix.ETIMEDOUT)
	r.Positive(n)
	r.Less(n, len(payload))
}

func TestWriteCompletesAcrossPartialWrites(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	s.Registry().SetTimeout(fds[0], EventWrite, 2000)
	s.Registry().SetTimeout(fds[1], EventRead, 2000)

	payload := make([]byte, 4<<20)
	for i := range payload {
		payload[i] = byte(i)
	}

	var (
		n, got     int
		werr, rerr error
	)
	s.Go(func(ctx context.Context) {
		n, werr = h.Write(ctx, fds[0], payload)
	})
	s.Go(func(ctx context.Context) {
		buf := make([]byte, 64<<10)
		for got < len(payload) {
			m, err := h.Read(ctx, fds[1], buf)
			if err != nil {
				rerr = err
				return
			}
			got += m
		}
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(werr)
	r.NoError(rerr)
	r.Equal(len(payload), n)
	r.Equal(len(payload), got)
}

func TestDatagramSendRecv(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_DGRAM)
	s.Registry().SetTimeout(fds[1], EventRead, 50)

	var (
		first, second []byte
		sendErr       error
		recvErr       error
		timeoutErr    error
	)
	s.Go(func(ctx context.Context) {
		buf := make([]byte, 32)
		n, _, err := h.Recvfrom(ctx, fds[1], buf, 0)
		if err != nil {
			recvErr = err
			return
		}
		first = append(first, buf[:n]...)

		n, err = h.Recv(ctx, fds[1], buf, 0)
		if err != nil {
			recvErr = err
			return
		}
		second = append(second, buf[:n]...)

		_, timeoutErr = h.Recv(ctx, fds[1], buf, 0)
	})
	s.Go(func(ctx context.Context) {
		if _, err := h.Sendto(ctx, fds[0], []byte("one"), 0, nil); err != nil {
			sendErr = err
			return
		}
		MustTaskFromContext(ctx).Sleep(10)
		_, sendErr = h.Send(ctx, fds[0], []byte("two"), 0)
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(sendErr)
	r.NoError(recvErr)
	r.Equal("one", string(first))
	r.Equal("two", string(second))
	r.ErrorIs(timeoutErr, unix.ETIMEDOUT)
}

func TestConcurrentWaitersConflict(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	var first, second error
	s.Go(func(ctx context.Context) {
		_, first = h.Read(ctx, fds[0], make([]byte, 8))
	})
	s.Go(func(ctx context.Context) {
		_, second = h.Read(ctx, fds[0], make([]byte, 8))
		_, _ = h.Write(ctx, fds[1], []byte("go"))
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(first)
	r.ErrorIs(second, ErrWaitConflict)
}

func TestCallOutsideTaskDoesNotSuspend(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	_, err := h.Read(context.Background(), fds[0], make([]byte, 8))
	r.ErrorIs(err, unix.EAGAIN)
	r.Zero(s.Timers().Len())
}

func TestInterceptionDisabledPassesThrough(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t, WithInterception(false))
	h := s.Hooks()
	r.False(h.Active())

	fds := newPair(t, h, unix.SOCK_STREAM)
	r.Nil(s.Registry().Lookup(fds[0]))
	r.False(osNonblocking(t, fds[0]))

	r.NoError(h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Sec: 1}))
	r.Nil(s.Registry().Lookup(fds[0]))

	n, err := h.Write(context.Background(), fds[1], []byte("abc"))
	r.NoError(err)
	r.Equal(3, n)

	buf := make([]byte, 8)
	n, err = h.Read(context.Background(), fds[0], buf)
	r.NoError(err)
	r.Equal("abc", string(buf[:n]))
}

func TestConnectAndAccept(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()

	ln, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	r.NoError(err)
	defer h.Close(ln)
	r.NoError(h.Bind(ln, &unix.SockaddrInet4{Addr: loopback}))
	r.NoError(h.Listen(ln, 16))
	sa, err := unix.Getsockname(ln)
	r.NoError(err)
	port := sa.(*unix.SockaddrInet4).Port

	// accept is never emulated
	_, _, err = h.Accept(ln)
	r.ErrorIs(err, unix.EAGAIN)

	cl, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	r.NoError(err)
	defer h.Close(cl)

	var (
		cerr, aerr, rerr error
		got              string
	)
	s.Go(func(ctx context.Context) {
		if cerr = h.Connect(ctx, cl, &unix.SockaddrInet4{Port: port, Addr: loopback}); cerr != nil {
			return
		}
		_, cerr = h.Write(ctx, cl, []byte("ping"))
	})
	s.Go(func(ctx context.Context) {
		task := MustTaskFromContext(ctx)
		var nfd int
		for {
			nfd, _, aerr = h.Accept(ln)
			if aerr != unix.EAGAIN {
				break
			}
			task.Sleep(2)
		}
		if aerr != nil {
			return
		}
		defer h.Close(nfd)
		if aerr = h.Track(nfd); aerr != nil {
			return
		}
		buf := make([]byte, 8)
		n, err := h.Read(ctx, nfd, buf)
		got, rerr = string(buf[:n]), err
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(cerr)
	r.NoError(aerr)
	r.NoError(rerr)
	r.Equal("ping", got)
}

func TestConnectRefused(t *testing.T) {
	r := require.New(t)

	// find a port nobody listens on
	probe, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	r.NoError(err)
	r.NoError(unix.Bind(probe, &unix.SockaddrInet4{Addr: loopback}))
	sa, err := unix.Getsockname(probe)
	r.NoError(err)
	port := sa.(*unix.SockaddrInet4).Port
	r.NoError(unix.Close(probe))

	s := newTestScheduler(t)
	h := s.Hooks()
	fd, err := h.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	r.NoError(err)
	defer h.Close(fd)

	var cerr error
	s.Go(func(ctx context.Context) {
		cerr = h.Connect(ctx, fd, &unix.SockaddrInet4{Port: port, Addr: loopback})
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(cerr, unix.ECONNREFUSED)
	r.Zero(s.Timers().Len())
}

func TestCustomSyscallTable(t *testing.T) {
	r := require.New(t)

	sys := NativeSyscalls()
	reads := 0
	read := sys.Read
	sys.Read = func(fd int, p []byte) (int, error) {
		reads++
		return read(fd, p)
	}

	s := newTestScheduler(t, WithSyscalls(sys))
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	var rerr error
	s.Go(func(ctx context.Context) {
		_, rerr = h.Read(ctx, fds[0], make([]byte, 8))
	})
	s.Go(func(ctx context.Context) {
		MustTaskFromContext(ctx).Sleep(5)
		_, _ = h.Write(ctx, fds[1], []byte("z"))
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(rerr)
	r.Equal(2, reads)
}

func TestSetsockoptTimeoutRoundsUp(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	st := s.Registry().Lookup(fds[0])

	for _, tc := range []struct {
		tv unix.Timeval
		ms int
	}{
		{unix.Timeval{Usec: 500}, 1},
		{unix.Timeval{Usec: 1}, 1},
		{unix.Timeval{Sec: 1, Usec: 1}, 1001},
		{unix.Timeval{Usec: 2000}, 2},
		{unix.Timeval{}, 0},
	} {
		r.NoError(h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tc.tv))
		r.Equal(tc.ms, st.Timeout(EventRead), "%+v", tc.tv)
	}
}

// requireTimesOut runs call in a task and checks it fails with
// ETIMEDOUT after roughly ms, leaving no timer or wait behind.
func requireTimesOut(t *testing.T, s *Scheduler, fd int, ms int, call func(context.Context) (int, error)) {
	t.Helper()
	r := require.New(t)

	var (
		n       int
		err     error
		elapsed time.Duration
	)
	s.Go(func(ctx context.Context) {
		start := time.Now()
		n, err = call(ctx)
		elapsed = time.Since(start)
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(err, unix.ETIMEDOUT)
	r.Zero(n)
	r.GreaterOrEqual(elapsed, time.Duration(ms-5)*time.Millisecond)
	r.Less(elapsed, time.Second)
	r.Zero(s.Timers().Len())
	r.False(s.Registry().Lookup(fd).Pending())
}

func TestConnectTimesOut(t *testing.T) {
	sys := NativeSyscalls()
	connects := 0
	sys.Connect = func(int, unix.Sockaddr) error {
		connects++
		return unix.EINPROGRESS
	}

	s := newTestScheduler(t, WithSyscalls(sys))
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	require.NoError(t, h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_SNDTIMEO, &unix.Timeval{Usec: 100_000}))

	// the descriptor stays writable, so only the deadline ends the call
	requireTimesOut(t, s, fds[0], 100, func(ctx context.Context) (int, error) {
		return 0, h.Connect(ctx, fds[0], &unix.SockaddrInet4{Addr: loopback, Port: 9})
	})
	require.Greater(t, connects, 1)
}

func TestSendTimesOut(t *testing.T) {
	sys := NativeSyscalls()
	sys.Sendmsg = func(int, []byte, unix.Sockaddr, int) (int, error) {
		return 0, unix.EAGAIN
	}

	s := newTestScheduler(t, WithSyscalls(sys))
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	require.NoError(t, h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_SNDTIMEO, &unix.Timeval{Usec: 100_000}))

	requireTimesOut(t, s, fds[0], 100, func(ctx context.Context) (int, error) {
		return h.Send(ctx, fds[0], []byte("payload"), 0)
	})
}

func TestRecvTimesOut(t *testing.T) {
	sys := NativeSyscalls()
	sys.Recvfrom = func(int, []byte, int) (int, unix.Sockaddr, error) {
		return 0, nil, unix.EAGAIN
	}

	s := newTestScheduler(t, WithSyscalls(sys))
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	require.NoError(t, h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Usec: 100_000}))

	requireTimesOut(t, s, fds[0], 100, func(ctx context.Context) (int, error) {
		return h.Recv(ctx, fds[0], make([]byte, 8), 0)
	})
}

func TestDontWaitDoesNotSuspend(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)

	// fill the send buffer
	chunk := make([]byte, 64<<10)
	for {
		if _, err := unix.Write(fds[0], chunk); err != nil {
			r.ErrorIs(err, unix.EAGAIN)
			break
		}
	}

	var (
		recvErr, sendErr error
		siblingRan       bool
		ranBefore        bool
	)
	s.Go(func(ctx context.Context) {
		_, recvErr = h.Recv(ctx, fds[0], make([]byte, 8), unix.MSG_DONTWAIT)
		_, sendErr = h.Send(ctx, fds[0], []byte("x"), unix.MSG_DONTWAIT)
		ranBefore = siblingRan
	})
	s.Go(func(context.Context) {
		siblingRan = true
	})

	r.NoError(s.Run(context.Background()))
	r.ErrorIs(recvErr, unix.EAGAIN)
	r.ErrorIs(sendErr, unix.EAGAIN)
	r.False(ranBefore)
	r.Zero(s.Timers().Len())
	r.False(s.Registry().Lookup(fds[0]).Pending())
}

func TestCloseAfterReadinessDoesNotRetryReusedDescriptor(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	old, err := h.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	r.NoError(err)
	defer h.Close(old[1])
	victim := old[0]

	var (
		n         int
		rerr      error
		reused    [2]int
		reusedErr error
	)
	buf := make([]byte, 8)
	s.Go(func(ctx context.Context) {
		n, rerr = h.Read(ctx, victim, buf)
	})
	s.Go(func(ctx context.Context) {
		// readiness has already queued the reader when the descriptor
		// is closed and its number handed to a new socket
		s.dispatch(victim, EventRead)
		r.False(s.Registry().Lookup(victim).Pending())
		r.NoError(h.Close(victim))

		reused, reusedErr = h.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if reusedErr != nil {
			return
		}
		for i, fd := range reused {
			if fd == victim {
				_, _ = h.Write(ctx, reused[1-i], []byte("evil"))
			}
		}
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(reusedErr)
	defer h.Close(reused[0])
	defer h.Close(reused[1])

	r.ErrorIs(rerr, unix.EBADF)
	r.Zero(n)
	r.NotEqual("evil", string(buf[:4]))
	r.Zero(s.Timers().Len())
}

func TestTrackKeepsExistingState(t *testing.T) {
	r := require.New(t)

	s := newTestScheduler(t)
	h := s.Hooks()
	fds := newPair(t, h, unix.SOCK_STREAM)
	r.NoError(h.SetsockoptTimeval(fds[0], unix.SOL_SOCKET, unix.SO_RCVTIMEO, &unix.Timeval{Sec: 2}))
	st := s.Registry().Lookup(fds[0])
	gen := st.gen

	var (
		n        int
		rerr     error
		pending  bool
		trackErr error
	)
	s.Go(func(ctx context.Context) {
		n, rerr = h.Read(ctx, fds[0], make([]byte, 8))
	})
	s.Go(func(ctx context.Context) {
		MustTaskFromContext(ctx).Sleep(10)
		trackErr = h.Track(fds[0])
		pending = st.Pending()
		_, _ = h.Write(ctx, fds[1], []byte("x"))
	})

	r.NoError(s.Run(context.Background()))
	r.NoError(trackErr)
	r.True(pending)
	r.NoError(rerr)
	r.Equal(1, n)
	r.Same(st, s.Registry().Lookup(fds[0]))
	r.Equal(gen, st.gen)
	r.Equal(2000, st.Timeout(EventRead))
	r.Zero(s.Timers().Len())
}
