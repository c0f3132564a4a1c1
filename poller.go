package cohook

// IOEvents is a readiness mask.
type IOEvents uint32

const (
	// EventRead indicates the descriptor is readable.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the descriptor is writable.
	EventWrite
	// EventError indicates an error condition on the descriptor.
	EventError
	// EventHangup indicates the peer closed its end.
	EventHangup
)
