//go:build !linux

package cohook

type poller struct{}

func newPoller(int) (*poller, error) {
	return nil, ErrUnsupported
}

func (p *poller) update(int, IOEvents, IOEvents) error { return ErrUnsupported }

func (p *poller) wait(int) (int, error) { return 0, ErrUnsupported }

func (p *poller) event(int) (int, IOEvents) { return -1, 0 }

func (p *poller) close() error { return nil }
