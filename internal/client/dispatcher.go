package client

import (
	"fmt"

	"github.com/cankit/canpubsub/internal/wire"
)

// dispatch routes one decoded frame body by msgType. Every case here
// answers a broker-originated message; ID_REQUEST is never received
// here since only clients send it.
func (c *Client) dispatch(msgType wire.MsgType, body []byte) {
	switch msgType {
	case wire.IDResponse:
		c.handleIDResponse(body)
	case wire.TopicData:
		c.handleTopicData(body)
	case wire.DirectMsg:
		c.handleDirectMessage(body)
	case wire.PeerMsg:
		c.handlePeerMessage(body)
	case wire.SubRestore:
		c.handleSubRestore(body)
	case wire.Ping:
		c.handlePing(body)
	case wire.Pong:
		c.handlePong(body)
	case wire.Ack:
		// Unreliable receipt for a DIRECT_MSG; nothing to do with it.
	default:
		// Unknown or out-of-place message type, dropped silently.
	}
}

// handleIDResponse implements the serial-echo check required on a
// shared bus: a response whose echoed serial differs from this client's
// own (empty for an anonymous request) is ignored.
func (c *Client) handleIDResponse(body []byte) {
	resp, ok := wire.DecodeIDResponse(body)
	if !ok {
		return
	}
	if resp.Serial != c.serial {
		return
	}
	c.id = resp.AssignedID
}

func (c *Client) handleTopicData(body []byte) {
	td, ok := wire.DecodeTopicData(body)
	if !ok || td.SubID != c.id {
		return
	}
	if c.callbacks.OnMessage != nil {
		c.callbacks.OnMessage(td.Hash, c.getTopicName(td.Hash), td.Payload)
	}
}

func (c *Client) handleDirectMessage(body []byte) {
	dm, ok := wire.DecodeDirectMsgDown(body)
	if !ok || dm.TargetID != c.id {
		return
	}
	if c.callbacks.OnDirectMessage != nil {
		c.callbacks.OnDirectMessage(wire.BrokerID, dm.Payload)
	}
}

// handlePeerMessage suppresses duplicate deliveries of the same
// (sender, payload) pair seen within the last 50 ms; see dedup.go.
// A PEER_MSG whose sender is not a permanent ID is ignored, so the
// sender's own copy seen on the shared bus is not delivered either.
func (c *Client) handlePeerMessage(body []byte) {
	pm, ok := wire.DecodePeerMsg(body)
	if !ok || pm.TargetID != c.id || !pm.SenderID.IsPermanent() {
		return
	}
	now := c.now()
	if c.dedup.isDuplicate(pm.SenderID, pm.Payload, now) {
		return
	}
	c.dedup.record(pm.SenderID, pm.Payload, now)
	if c.callbacks.OnPeerMessage != nil {
		c.callbacks.OnPeerMessage(pm.SenderID, pm.Payload)
	}
}

func (c *Client) handleSubRestore(body []byte) {
	sr, ok := wire.DecodeSubRestore(body)
	if !ok || sr.ClientID != c.id {
		return
	}
	if sr.Name != "" {
		c.topicNames[sr.Hash] = sr.Name
	}
	c.subscribedTopics[sr.Hash] = true
}

// handlePing answers the broker's liveness wave:
// PING [brokerId][myId] -> PONG [myId][brokerId].
func (c *Client) handlePing(body []byte) {
	targetID, ok := wire.DecodePingDown(body)
	if !ok || targetID != c.id {
		return
	}
	c.send(wire.Pong, wire.EncodePong(c.id, wire.BrokerID))
}

// handlePong answers this client's own Ping (the symmetric case):
// PONG [0x00][myId] carries the round trip.
func (c *Client) handlePong(body []byte) {
	pb, ok := wire.DecodePong(body)
	if !ok || pb.TargetID != c.id || pb.SenderID != wire.BrokerID {
		return
	}
	c.lastPong = c.now()
	c.lastRoundTrip = c.lastPong.Sub(c.lastPing)
}

func defaultTopicNameFor(hash uint16) string {
	return fmt.Sprintf("0x%X", hash)
}
