package client

import (
	"time"

	"github.com/cankit/canpubsub/internal/wire"
)

// peerMessageDedupWindow is the window for suppressing a repeated
// PEER_MSG delivery.
const peerMessageDedupWindow = 50 * time.Millisecond

// dedupState remembers only the single most recent PEER_MSG, matching
// a "duplicates of the last peer message" rule literally rather than
// tracking an unbounded history.
type dedupState struct {
	sender  wire.ClientID
	payload string
	at      time.Time
	seen    bool
}

func (d *dedupState) isDuplicate(sender wire.ClientID, payload []byte, now time.Time) bool {
	return d.seen && d.sender == sender && d.payload == string(payload) && now.Sub(d.at) <= peerMessageDedupWindow
}

func (d *dedupState) record(sender wire.ClientID, payload []byte, now time.Time) {
	d.sender = sender
	d.payload = string(payload)
	d.at = now
	d.seen = true
}
