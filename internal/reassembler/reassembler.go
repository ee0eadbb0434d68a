// Package reassembler implements the single shared extended-frame buffer
// used by both broker and client, parameterized by a completion handler
// instead of a base-class virtual method — avoiding the original's
// inheritance-based CANPubSubBase::processExtendedFrame hierarchy.
package reassembler

import (
	"time"

	"github.com/cankit/canpubsub/internal/wire"
)

// Handler receives a fully reassembled extended message.
type Handler func(msgType wire.MsgType, senderID wire.ClientID, payload []byte)

type buffer struct {
	active        bool
	msgType       wire.MsgType
	senderID      wire.ClientID
	data          []byte
	lastFrameTime time.Time
}

// Reassembler tracks one in-flight extended message at a time, mirroring
// the wire contract's single ExtendedReassemblyBuffer per endpoint.
type Reassembler struct {
	buf     buffer
	onDone  Handler
	timeout time.Duration
	now     func() time.Time
}

// New builds a Reassembler that invokes onDone once a message completes.
func New(onDone Handler) *Reassembler {
	return &Reassembler{
		onDone:  onDone,
		timeout: wire.ReassemblyTimeout * time.Millisecond,
		now:     time.Now,
	}
}

// Feed processes one extended CAN frame. It is the only entry point; the
// caller has already confirmed the frame carries an extended ID.
func (r *Reassembler) Feed(id uint32, data []byte) {
	msgType, frameSeq, totalFrames := wire.DecodeExtendedID(id)
	now := r.now()

	if r.buf.active && now.Sub(r.buf.lastFrameTime) > r.timeout {
		r.buf = buffer{}
	}

	if frameSeq == 0 {
		sender := wire.ClientID(0)
		rest := data
		if len(data) > 0 {
			sender = wire.ClientID(data[0])
			rest = data[1:]
		}
		r.buf = buffer{
			active:        true,
			msgType:       msgType,
			senderID:      sender,
			data:          make([]byte, 0, len(rest)),
			lastFrameTime: now,
		}
		data = rest
	}

	if !r.buf.active || r.buf.msgType != msgType {
		return
	}

	room := wire.MaxExtendedMsgSize - len(r.buf.data)
	if room > 0 {
		if len(data) > room {
			data = data[:room]
		}
		r.buf.data = append(r.buf.data, data...)
	}
	r.buf.lastFrameTime = now

	if frameSeq == byte(totalFrames-1) {
		msgType, senderID, payload := r.buf.msgType, r.buf.senderID, r.buf.data
		r.buf = buffer{}
		if r.onDone != nil {
			r.onDone(msgType, senderID, payload)
		}
	}
}

// Active reports whether a reassembly is in progress, for diagnostics.
func (r *Reassembler) Active() bool {
	return r.buf.active
}
