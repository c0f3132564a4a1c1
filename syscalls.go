package cohook

import (
	"golang.org/x/sys/unix"
)

// Syscalls is the table of native socket entry points the hooks
// delegate to. Every field must be set.
type Syscalls struct {
	Socket            func(domain, typ, proto int) (int, error)
	Socketpair        func(domain, typ, proto int) ([2]int, error)
	Close             func(fd int) error
	Connect           func(fd int, sa unix.Sockaddr) error
	Read              func(fd int, p []byte) (int, error)
	Write             func(fd int, p []byte) (int, error)
	Sendmsg           func(fd int, p []byte, to unix.Sockaddr, flags int) (int, error)
	Recvfrom          func(fd int, p []byte, flags int) (int, unix.Sockaddr, error)
	SetsockoptTimeval func(fd, level, opt int, tv *unix.Timeval) error
	SetsockoptInt     func(fd, level, opt, value int) error
	GetsockoptInt     func(fd, level, opt int) (int, error)
	FcntlInt          func(fd, cmd, arg int) (int, error)
	IoctlSetInt       func(fd int, req uint, value int) error
	SetNonblock       func(fd int, nonblocking bool) error
	Listen            func(fd, backlog int) error
	Bind              func(fd int, sa unix.Sockaddr) error
	Accept            func(fd int) (int, unix.Sockaddr, error)
}

// NativeSyscalls returns a table bound to the kernel through
// golang.org/x/sys/unix.
func NativeSyscalls() *Syscalls {
	return &Syscalls{
		Socket:     unix.Socket,
		Socketpair: unix.Socketpair,
		Close:      unix.Close,
		Connect:    unix.Connect,
		Read:       unix.Read,
		Write:      unix.Write,
		Sendmsg: func(fd int, p []byte, to unix.Sockaddr, flags int) (int, error) {
			return unix.SendmsgN(fd, p, nil, to, flags)
		},
		Recvfrom:          unix.Recvfrom,
		SetsockoptTimeval: unix.SetsockoptTimeval,
		SetsockoptInt:     unix.SetsockoptInt,
		GetsockoptInt:     unix.GetsockoptInt,
		FcntlInt: func(fd, cmd, arg int) (int, error) {
			return unix.FcntlInt(uintptr(fd), cmd, arg)
		},
		IoctlSetInt: unix.IoctlSetInt,
		SetNonblock: unix.SetNonblock,
		Listen:      unix.Listen,
		Bind:        unix.Bind,
		Accept:      unix.Accept,
	}
}
