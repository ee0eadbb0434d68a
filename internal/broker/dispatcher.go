package broker

import (
	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/wire"
)

// dispatch routes one decoded frame body by msgType. body still carries
// its leading sender/client-id byte except for ID_REQUEST, whose wire
// body has none.
func (b *Broker) dispatch(msgType wire.MsgType, senderID wire.ClientID, body []byte) {
	if msgType != wire.IDRequest {
		b.trackClientActivity(senderID)
	}

	switch msgType {
	case wire.Subscribe:
		b.handleSubscribe(body)
	case wire.Unsubscribe:
		b.handleUnsubscribe(body)
	case wire.Publish:
		b.handlePublish(body)
	case wire.DirectMsg:
		b.handleDirectMessage(body)
	case wire.PeerMsg:
		b.handlePeerMessage(body)
	case wire.Ping:
		b.handlePing(body)
	case wire.Pong:
		// Activity tracking above already reset this client's ping
		// state; a broker-side PONG has nothing further to do.
	case wire.IDRequest:
		b.handleIDRequest(body)
	default:
		// TOPIC_DATA, SUB_RESTORE, ID_RESPONSE, ACK are outbound-only;
		// an unexpected inbound copy is dropped silently.
	}
}

// trackClientActivity is the first action of every handler whose frame
// carries a ClientId: mark the sender online, invoking on_client_connect
// on first sight, and refresh its liveness state.
func (b *Broker) trackClientActivity(id wire.ClientID) {
	if id == wire.UnassignedID {
		return
	}
	if !b.connected[id] {
		b.connected[id] = true
		if b.callbacks.OnClientConnect != nil {
			b.callbacks.OnClientConnect(id)
		}
	}
	b.resetPingState(id)
}

func (b *Broker) handleSubscribe(body []byte) {
	sub, ok := wire.DecodeSubscribe(body)
	if !ok {
		return
	}
	if sub.Name != "" {
		b.RegisterTopic(sub.Name)
	}
	b.addSubscription(sub.ClientID, sub.Hash)
	b.storeClientSubscriptions(sub.ClientID)
}

func (b *Broker) handleUnsubscribe(body []byte) {
	un, ok := wire.DecodeUnsubscribe(body)
	if !ok {
		return
	}
	b.removeSubscription(un.ClientID, un.Hash)
	b.storeClientSubscriptions(un.ClientID)
}

func (b *Broker) handlePublish(body []byte) {
	pub, ok := wire.DecodePublish(body)
	if !ok {
		return
	}
	if b.callbacks.OnPublish != nil {
		b.callbacks.OnPublish(pub.Hash, b.GetTopicName(pub.Hash), pub.Payload)
	}
	b.forwardToSubscribers(pub.Hash, pub.Payload)
}

func (b *Broker) handleDirectMessage(body []byte) {
	msg, ok := wire.DecodeDirectMsgUp(body)
	if !ok {
		return
	}
	if b.callbacks.OnDirectMessage != nil {
		b.callbacks.OnDirectMessage(msg.SenderID, msg.Payload)
	}
	b.send(wire.Ack, wire.EncodeAck(msg.SenderID))
}

// handlePeerMessage forwards a client-to-client unicast. Both ends
// must hold a permanent, registered ID; otherwise the frame is dropped
// with no error surfaced to either side.
func (b *Broker) handlePeerMessage(body []byte) {
	msg, ok := wire.DecodePeerMsg(body)
	if !ok {
		return
	}
	if b.findMappingByID(msg.SenderID) < 0 || b.findMappingByID(msg.TargetID) < 0 {
		logger.DebugF("broker: dropping PEER_MSG %#x -> %#x, one side unregistered", byte(msg.SenderID), byte(msg.TargetID))
		return
	}
	b.send(wire.PeerMsg, wire.EncodePeerMsg(msg.SenderID, msg.TargetID, msg.Payload))
}

func (b *Broker) handlePing(body []byte) {
	clientID, ok := wire.DecodePingUp(body)
	if !ok {
		return
	}
	b.send(wire.Pong, wire.EncodePong(wire.BrokerID, clientID))
}

// handleIDRequest implements the anonymous and by-serial handshakes.
func (b *Broker) handleIDRequest(body []byte) {
	serial := wire.DecodeIDRequest(body)

	if serial == "" {
		id := b.nextAnonymousID()
		b.send(wire.IDResponse, wire.EncodeIDResponse(id, false, ""))
		return
	}

	id, hasStoredSubs := b.RegisterClient(serial)
	b.send(wire.IDResponse, wire.EncodeIDResponse(id, hasStoredSubs, serial))
	if id == wire.UnassignedID {
		return
	}
	if hasStoredSubs {
		sleep(wire.SubRestoreSettleMillis)
		b.restoreClientSubscriptions(id)
	}
}
