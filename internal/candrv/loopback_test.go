package candrv

import (
	"testing"
	"time"

	"github.com/cankit/canpubsub/internal/wire"
)

func TestLoopbackDeliversToOtherEndpointOnly(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	frame := wire.Frame{ID: uint32(wire.Ping), Data: []byte{0x01}}
	if err := a.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, ok := a.TryReceive(); ok {
		t.Fatal("a must not receive its own frame")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got, ok := b.TryReceive(); ok {
			if got.ID != frame.ID || string(got.Data) != string(frame.Data) {
				t.Fatalf("got %+v, want %+v", got, frame)
			}
			return
		}
	}
	t.Fatal("b never received the frame")
}

func TestTryReceiveNonBlockingWhenEmpty(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	a := bus.Open()
	defer a.Close()

	if _, ok := a.TryReceive(); ok {
		t.Fatal("TryReceive on an empty queue must report ok=false, not block")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	a := bus.Open()
	_ = a.Close()

	if err := a.Send(wire.Frame{ID: 1}); err != ErrClosed {
		t.Fatalf("got %v, want ErrClosed", err)
	}
}
