//go:build linux

package candrv

import (
	"context"
	"sync"

	"github.com/cankit/canpubsub/internal/wire"
	"github.com/notnil/canbus/canbus"
)

// SocketCAN wraps canbus's DialSocketCAN, bridging its blocking
// context.Context-based Receive to the non-blocking TryReceive poll
// contract Controller requires. One background goroutine per instance
// does the blocking read; it is the only concurrency on the frame path —
// the protocol engine draining TryReceive stays single-threaded.
type SocketCAN struct {
	bus    canbus.Bus
	queue  chan wire.Frame
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// DialSocketCAN opens a raw CAN socket bound to the given interface
// (e.g. "can0") and starts the background receive pump.
func DialSocketCAN(iface string) (*SocketCAN, error) {
	bus, err := canbus.DialSocketCAN(iface)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &SocketCAN{
		bus:    bus,
		queue:  make(chan wire.Frame, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(ctx)
	return s, nil
}

func (s *SocketCAN) pump(ctx context.Context) {
	defer close(s.done)
	for {
		f, err := s.bus.Receive(ctx)
		if err != nil {
			return
		}
		select {
		case s.queue <- toWireFrame(f):
		case <-ctx.Done():
			return
		}
	}
}

func (s *SocketCAN) Send(frame wire.Frame) error {
	return s.bus.Send(context.Background(), toCanbusFrame(frame))
}

func (s *SocketCAN) TryReceive() (wire.Frame, bool) {
	select {
	case f := <-s.queue:
		return f, true
	default:
		return wire.Frame{}, false
	}
}

func (s *SocketCAN) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.bus.Close()
	<-s.done
	return err
}

func toCanbusFrame(f wire.Frame) canbus.Frame {
	out := canbus.Frame{ID: f.ID, Extended: f.Extended, Len: uint8(len(f.Data))}
	copy(out.Data[:], f.Data)
	return out
}

func toWireFrame(f canbus.Frame) wire.Frame {
	return wire.Frame{ID: f.ID, Extended: f.Extended, Data: append([]byte(nil), f.Data[:f.Len]...)}
}
