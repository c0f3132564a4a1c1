package cohook

const (
	// DefaultMaxFDs bounds the descriptor table. Descriptors at or
	// above the bound are never hooked.
	DefaultMaxFDs = 65535 * 2

	// DefaultTimeout is the read and write timeout, in milliseconds,
	// given to a freshly registered descriptor.
	DefaultTimeout = 500
)

type hookFlags uint8

const (
	hookInUse hookFlags = 1 << iota
	hookNonblock
)

// HookState is the per-descriptor interception state. It is only
// meaningful while the descriptor is tracked.
type HookState struct {
	flags        hookFlags
	readTimeout  int
	writeTimeout int
	readWait     *pendingWait
	writeWait    *pendingWait
	events       IOEvents // interest currently registered with the poller
	gen          uint32   // bumped whenever the slot is registered or cleared
}

// Nonblocking reports whether the application asked for native
// non-blocking semantics on this descriptor.
func (st *HookState) Nonblocking() bool {
	return st.flags&hookNonblock != 0
}

// Timeout returns the timeout in milliseconds for the direction in ev:
// the read timeout for EventRead, otherwise the write timeout.
func (st *HookState) Timeout(ev IOEvents) int {
	if ev&EventRead != 0 {
		return st.readTimeout
	}
	return st.writeTimeout
}

// Pending reports whether a task is suspended on this descriptor.
func (st *HookState) Pending() bool {
	return st.readWait != nil || st.writeWait != nil
}

func (st *HookState) wait(ev IOEvents) *pendingWait {
	if ev&EventRead != 0 {
		return st.readWait
	}
	return st.writeWait
}

func (st *HookState) setWait(ev IOEvents, w *pendingWait) {
	if ev&EventRead != 0 {
		st.readWait = w
	} else {
		st.writeWait = w
	}
}

// interest is the readiness mask the pending waits need.
func (st *HookState) interest() IOEvents {
	var ev IOEvents
	if st.readWait != nil {
		ev |= EventRead
	}
	if st.writeWait != nil {
		ev |= EventWrite
	}
	return ev
}

// Registry maps descriptor numbers to hook state. It is a dense arena
// indexed by descriptor, allocated once; registering never allocates.
// It is owned by a single scheduling thread and is not locked.
type Registry struct {
	noCopy         noCopy
	fds            []HookState
	defaultTimeout int
}

// NewRegistry builds a registry for descriptors [0, maxFDs). maxFDs <=
// 0 selects DefaultMaxFDs and timeout <= 0 selects DefaultTimeout.
func NewRegistry(maxFDs, timeout int) *Registry {
	if maxFDs <= 0 {
		maxFDs = DefaultMaxFDs
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		fds:            make([]HookState, maxFDs),
		defaultTimeout: timeout,
	}
}

// Lookup returns the state of a tracked descriptor, or nil when fd is
// out of range or not tracked.
func (r *Registry) Lookup(fd int) *HookState {
	if fd < 0 || fd >= len(r.fds) {
		return nil
	}
	st := &r.fds[fd]
	if st.flags&hookInUse == 0 {
		return nil
	}
	return st
}

// Register starts tracking fd with default timeouts. It reports false
// when fd is outside the table.
func (r *Registry) Register(fd int) bool {
	if fd < 0 || fd >= len(r.fds) {
		return false
	}
	r.fds[fd] = HookState{
		flags:        hookInUse,
		readTimeout:  r.defaultTimeout,
		writeTimeout: r.defaultTimeout,
		gen:          r.fds[fd].gen + 1,
	}
	return true
}

// Unregister clears the slot for fd. Untracked descriptors are
// ignored. Callers cancel pending waits first.
func (r *Registry) Unregister(fd int) {
	if fd < 0 || fd >= len(r.fds) {
		return
	}
	r.fds[fd] = HookState{gen: r.fds[fd].gen + 1}
}

// SetTimeout records a timeout in milliseconds for the directions in
// ev. Negative values are stored as 0, meaning no bound.
func (r *Registry) SetTimeout(fd int, ev IOEvents, ms int) {
	st := r.Lookup(fd)
	if st == nil {
		return
	}
	if ms < 0 {
		ms = 0
	}
	if ev&EventRead != 0 {
		st.readTimeout = ms
	}
	if ev&EventWrite != 0 {
		st.writeTimeout = ms
	}
}

// SetNonblocking marks fd as managed by the application's own
// non-blocking logic. Hooked calls on it pass straight through.
func (r *Registry) SetNonblocking(fd int) {
	if st := r.Lookup(fd); st != nil {
		st.flags |= hookNonblock
	}
}

// current reports whether st is still the live state of fd, registered
// under generation gen.
func (r *Registry) current(fd int, st *HookState, gen uint32) bool {
	return r.Lookup(fd) == st && st.gen == gen
}

// Len returns the size of the descriptor table.
func (r *Registry) Len() int {
	return len(r.fds)
}
