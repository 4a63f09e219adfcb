package connectivity

import (
	"context"
	"net"
	"time"
)

// InterfaceWatcher polls the host's network interfaces and reports when the
// set of usable (up, non-loopback) interfaces becomes empty or non-empty.
type InterfaceWatcher struct {
	Interval time.Duration

	interfaces func() ([]net.Interface, error)
}

func NewInterfaceWatcher(interval time.Duration) *InterfaceWatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &InterfaceWatcher{Interval: interval, interfaces: net.Interfaces}
}

func (w *InterfaceWatcher) Watch(ctx context.Context) <-chan bool {
	out := make(chan bool, 1)

	go func() {
		defer close(out)

		last, err := w.usable()
		known := err == nil

		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				up, err := w.usable()
				if err != nil {
					continue
				}
				if known && up == last {
					continue
				}
				last, known = up, true
				select {
				case out <- up:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (w *InterfaceWatcher) usable() (bool, error) {
	ifaces, err := w.interfaces()
	if err != nil {
		return false, err
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return true, nil
		}
	}
	return false, nil
}
