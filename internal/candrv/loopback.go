package candrv

import (
	"sync"

	"github.com/cankit/canpubsub/internal/wire"
)

// Bus is a shared in-memory bus for tests and simulated multi-client
// scenarios: every Endpoint opened from the same Bus receives every
// other endpoint's frames. Paired endpoints fan out over per-endpoint
// channels, built directly against wire.Frame rather than canbus.Frame
// since pure in-process delivery has no wire encoding to perform.
type Bus struct {
	mu        sync.Mutex
	closed    bool
	endpoints map[*Endpoint]struct{}
}

func NewBus() *Bus {
	return &Bus{endpoints: make(map[*Endpoint]struct{})}
}

// Open attaches a new Controller to the bus.
func (b *Bus) Open() *Endpoint {
	ep := &Endpoint{
		bus:     b,
		queue:   make(chan wire.Frame, 256),
		stopped: make(chan struct{}),
	}
	b.mu.Lock()
	if !b.closed {
		b.endpoints[ep] = struct{}{}
	}
	b.mu.Unlock()
	return ep
}

// Close detaches every endpoint and closes the bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.closeNoLock()
	}
	b.endpoints = nil
	return nil
}

func (b *Bus) detach(ep *Endpoint) {
	b.mu.Lock()
	if b.endpoints != nil {
		delete(b.endpoints, ep)
	}
	b.mu.Unlock()
}

func (b *Bus) broadcast(from *Endpoint, f wire.Frame) {
	b.mu.Lock()
	targets := make([]*Endpoint, 0, len(b.endpoints))
	for ep := range b.endpoints {
		if ep != from {
			targets = append(targets, ep)
		}
	}
	b.mu.Unlock()
	for _, ep := range targets {
		select {
		case ep.queue <- f:
		case <-ep.stopped:
		}
	}
}

// Endpoint is one bus attachment; it implements Controller directly
// with no bridging goroutine needed, since a loopback delivery is
// already just an in-process channel send.
type Endpoint struct {
	bus     *Bus
	queue   chan wire.Frame
	stopped chan struct{}
	mu      sync.Mutex
	dead    bool
}

func (e *Endpoint) closeNoLock() {
	if e.dead {
		return
	}
	e.dead = true
	close(e.stopped)
}

func (e *Endpoint) Send(frame wire.Frame) error {
	e.mu.Lock()
	dead := e.dead
	e.mu.Unlock()
	if dead {
		return ErrClosed
	}
	e.bus.broadcast(e, frame)
	return nil
}

func (e *Endpoint) TryReceive() (wire.Frame, bool) {
	select {
	case f := <-e.queue:
		return f, true
	default:
		return wire.Frame{}, false
	}
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closeNoLock()
	e.mu.Unlock()
	e.bus.detach(e)
	return nil
}
