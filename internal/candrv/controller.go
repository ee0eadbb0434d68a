// Package candrv adapts CAN bus transports to a non-blocking poll
// contract: send a frame, and check for one waiting frame per loop
// tick without blocking the caller. This package owns the only I/O
// boundary that talks to real hardware or an external CAN library.
package candrv

import (
	"errors"

	"github.com/cankit/canpubsub/internal/wire"
)

// ErrClosed is returned by a loopback Endpoint's Send after Close.
var ErrClosed = errors.New("candrv: controller closed")

// Controller is the non-blocking transport the broker and client loops
// consume, generalizing a granular begin_packet/write/end_packet/
// parse_packet/available/read sequence into two calls.
type Controller interface {
	// Send transmits one frame, blocking only long enough to queue it.
	Send(frame wire.Frame) error

	// TryReceive returns the next queued frame without blocking. ok is
	// false when nothing is waiting this tick.
	TryReceive() (frame wire.Frame, ok bool)

	// Close releases the underlying transport.
	Close() error
}
