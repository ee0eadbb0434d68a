// Package client implements the client-side half of the CAN pub/sub
// protocol: the identity handshake, the pub/sub API, and the local
// subscription mirror. Generalized from an original single-threaded
// C++ client to a richer ID_RESPONSE/SUB_RESTORE/PEER_MSG wire contract.
package client

import (
	"time"

	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/reassembler"
	"github.com/cankit/canpubsub/internal/wire"
)

// Callbacks are explicit closure-typed fields, mirroring the broker's
// convention in internal/broker.
type Callbacks struct {
	OnMessage       func(hash uint16, name string, payload []byte)
	OnDirectMessage func(senderID wire.ClientID, payload []byte)
	OnPeerMessage   func(senderID wire.ClientID, payload []byte)
	OnConnect       func()
	OnDisconnect    func()
}

// Client is one endpoint's session state. Not safe for concurrent use;
// a single-threaded caller is assumed to drive Loop.
type Client struct {
	can   candrv.Controller
	reasm *reassembler.Reassembler
	now   func() time.Time

	callbacks Callbacks

	id        wire.ClientID
	serial    string
	connected bool

	subscribedTopics map[uint16]bool
	topicNames       map[uint16]string

	lastPing      time.Time
	lastPong      time.Time
	lastRoundTrip time.Duration

	dedup dedupState
}

// New builds a Client bound to can for transport. It starts
// unconnected and unassigned (UnassignedID).
func New(can candrv.Controller) *Client {
	c := &Client{
		can:              can,
		now:              time.Now,
		id:               wire.UnassignedID,
		subscribedTopics: make(map[uint16]bool),
		topicNames:       make(map[uint16]string),
	}
	c.reasm = reassembler.New(c.handleComplete)
	return c
}

func (c *Client) SetCallbacks(cb Callbacks) {
	c.callbacks = cb
}

func (c *Client) IsConnected() bool     { return c.connected }
func (c *Client) ClientID() wire.ClientID { return c.id }
func (c *Client) SerialNumber() string  { return c.serial }

// LastRoundTrip returns the duration between the client's last
// self-initiated PING and the PONG that answered it.
func (c *Client) LastRoundTrip() time.Duration { return c.lastRoundTrip }

// Connect requests an anonymous, non-persisted temporary ID and blocks
// (busy-polling the controller) until ID_RESPONSE arrives or timeout
// elapses.
func (c *Client) Connect(timeout time.Duration) bool {
	return c.connect("", timeout)
}

// ConnectWithSerial requests a permanent, serial-bound ID.
func (c *Client) ConnectWithSerial(serial string, timeout time.Duration) bool {
	return c.connect(serial, timeout)
}

func (c *Client) connect(serial string, timeout time.Duration) bool {
	c.serial = serial
	c.sendIDRequest(serial)

	deadline := c.now().Add(timeout)
	for c.id == wire.UnassignedID && c.now().Before(deadline) {
		if frame, ok := c.can.TryReceive(); ok {
			c.handleFrame(frame)
		}
		sleep(10)
	}

	if c.id == wire.UnassignedID {
		return false
	}
	c.connected = true
	if c.callbacks.OnConnect != nil {
		c.callbacks.OnConnect()
	}
	return true
}

// End resets the session to its unconnected state; the host must call
// Connect/ConnectWithSerial again before using the pub/sub API.
func (c *Client) End() {
	c.connected = false
	c.id = wire.UnassignedID
	c.serial = ""
	c.subscribedTopics = make(map[uint16]bool)
	if c.callbacks.OnDisconnect != nil {
		c.callbacks.OnDisconnect()
	}
}

// Loop processes at most one inbound frame.
func (c *Client) Loop() {
	if frame, ok := c.can.TryReceive(); ok {
		c.handleFrame(frame)
	}
}

func (c *Client) handleFrame(f wire.Frame) {
	if f.Extended {
		c.reasm.Feed(f.ID, f.Data)
		return
	}
	c.dispatch(wire.MsgType(f.ID), f.Data)
}

// handleComplete reconstructs the leading id byte the reassembler
// extracted (every downstream message type carries one in its first
// payload byte) before handing the body to dispatch.
func (c *Client) handleComplete(msgType wire.MsgType, senderID wire.ClientID, payload []byte) {
	body := append([]byte{byte(senderID)}, payload...)
	c.dispatch(msgType, body)
}

func (c *Client) sendIDRequest(serial string) {
	c.send(wire.IDRequest, wire.EncodeIDRequest(serial))
}

func (c *Client) send(msgType wire.MsgType, body []byte) {
	for _, f := range wire.EncodeAuto(msgType, body) {
		if err := c.can.Send(f); err != nil {
			return
		}
		if f.Extended {
			sleep(wire.InterFrameDelayMillis)
		}
	}
}

// Subscribe registers topic both on the wire and in the local mirror.
func (c *Client) Subscribe(topic string) bool {
	if !c.connected {
		return false
	}
	hash := wire.HashTopic(topic)
	c.registerTopicName(hash, topic)
	c.send(wire.Subscribe, wire.EncodeSubscribe(c.id, hash, topic))
	c.subscribedTopics[hash] = true
	return true
}

func (c *Client) Unsubscribe(topic string) bool {
	if !c.connected {
		return false
	}
	hash := wire.HashTopic(topic)
	c.send(wire.Unsubscribe, wire.EncodeUnsubscribe(c.id, hash))
	delete(c.subscribedTopics, hash)
	return true
}

func (c *Client) Publish(topic string, payload []byte) bool {
	if !c.connected {
		return false
	}
	hash := wire.HashTopic(topic)
	c.registerTopicName(hash, topic)
	c.send(wire.Publish, wire.EncodePublish(c.id, hash, payload))
	return true
}

func (c *Client) SendDirectMessage(payload []byte) bool {
	if !c.connected {
		return false
	}
	c.send(wire.DirectMsg, wire.EncodeDirectMsgUp(c.id, payload))
	return true
}

// SendPeerMessage unicasts payload to another client via the broker.
// Forwarding only succeeds if both ends hold permanent IDs; a
// temporary-ID client's message is silently dropped broker-side and
// ignored by the receiving client.
func (c *Client) SendPeerMessage(targetID wire.ClientID, payload []byte) bool {
	if !c.connected {
		return false
	}
	c.send(wire.PeerMsg, wire.EncodePeerMsg(c.id, targetID, payload))
	return true
}

// Ping sends a client-initiated liveness probe and records the send
// time for LastRoundTrip once the matching PONG arrives.
func (c *Client) Ping() bool {
	if !c.connected {
		return false
	}
	c.send(wire.Ping, wire.EncodePingUp(c.id))
	c.lastPing = c.now()
	return true
}

func (c *Client) IsSubscribed(topic string) bool {
	return c.subscribedTopics[wire.HashTopic(topic)]
}

func (c *Client) GetSubscriptionCount() int {
	return len(c.subscribedTopics)
}

func (c *Client) ListSubscribedTopics(fn func(hash uint16, name string)) {
	for hash := range c.subscribedTopics {
		fn(hash, c.getTopicName(hash))
	}
}

// registerTopicName and getTopicName mirror CANPubSubBase's
// registerTopic/getTopicName. They are unexported: the name cache is
// filled by Subscribe, Publish and SUB_RESTORE, not by callers outside
// this package.
func (c *Client) registerTopicName(hash uint16, name string) {
	if _, ok := c.topicNames[hash]; ok {
		return
	}
	c.topicNames[hash] = name
}

func (c *Client) getTopicName(hash uint16) string {
	if name, ok := c.topicNames[hash]; ok {
		return name
	}
	return defaultTopicNameFor(hash)
}

func sleep(millis int) {
	time.Sleep(time.Duration(millis) * time.Millisecond)
}
