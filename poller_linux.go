//go:build linux

package cohook

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// poller is the epoll readiness source. It only stores the epoll
// descriptor and an event buffer; per-descriptor interest lives in
// the Registry.
type poller struct {
	epfd   int
	events []unix.EpollEvent
}

func newPoller(size int) (*poller, error) {
	if size < 1 {
		size = 1
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, size),
	}, nil
}

// update moves fd from interest from to interest to.
func (p *poller) update(fd int, from, to IOEvents) error {
	var op int
	switch {
	case from == to:
		return nil
	case from == 0:
		op = unix.EPOLL_CTL_ADD
	case to == 0:
		op = unix.EPOLL_CTL_DEL
	default:
		op = unix.EPOLL_CTL_MOD
	}
	ev := unix.EpollEvent{Events: eventsToEpoll(to), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl fd %d: %w", fd, err)
	}
	return nil
}

// wait blocks up to timeoutMs (-1 for no bound) and returns the
// number of ready descriptors, read back with event. An interrupted
// wait reports none.
func (p *poller) wait(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}
	return n, nil
}

// event returns the i-th result of the last wait.
func (p *poller) event(i int) (int, IOEvents) {
	ev := &p.events[i]
	return int(ev.Fd), epollToEvents(ev.Events)
}

func (p *poller) close() error {
	if p.epfd < 0 {
		return nil
	}
	err := unix.Close(p.epfd)
	p.epfd = -1
	return err
}

func eventsToEpoll(events IOEvents) uint32 {
	var ev uint32
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func epollToEvents(ev uint32) IOEvents {
	var events IOEvents
	if ev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		events |= EventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if ev&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
