// Package broker implements the CAN pub/sub coordinator: the client
// registry, subscription table, liveness engine, and topic-name cache,
// wrapped around a single-threaded frame loop that processes at most
// one inbound frame per call.
package broker

import (
	"time"

	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/reassembler"
	"github.com/cankit/canpubsub/internal/store"
	"github.com/cankit/canpubsub/internal/wire"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Callbacks are explicit closure-typed fields rather than function
// pointers. They must not call back into mutating Broker methods during
// dispatch.
type Callbacks struct {
	OnClientConnect    func(id wire.ClientID)
	OnClientDisconnect func(id wire.ClientID)
	OnPublish          func(hash uint16, name string, payload []byte)
	OnDirectMessage    func(senderID wire.ClientID, payload []byte)
}

type pingState struct {
	lastPongTime time.Time
	missedPings  int
}

// Broker is the coordinator: one instance owns the persistent store and
// the CAN controller exclusively.
type Broker struct {
	can   candrv.Controller
	db    store.Store
	reasm *reassembler.Reassembler
	now   func() time.Time

	callbacks Callbacks

	// registry
	mappings      []store.ClientMapping
	nextPermanent wire.ClientID
	nextTemporary wire.ClientID

	// subscriptions: topic hash -> ordered subscriber list
	subs map[uint16][]wire.ClientID

	// persisted per-client topic sets, replayed at Begin and on reconnect
	storedSubs map[wire.ClientID][]uint16

	// runtime topic-name cache, hash -> name
	topicNames *lru.LRU[uint16, string]

	// topic names durable enough to survive a topicNames LRU eviction;
	// flushed to store.NamespaceTopicNames on every registerTopic
	persistedTopicNames map[uint16]string

	// connected clients set (transient)
	connected map[wire.ClientID]bool

	// liveness
	autoPingEnabled bool
	pingInterval    time.Duration
	maxMissedPings  int
	pingStates      map[wire.ClientID]*pingState
	lastPingWave    time.Time
}

// New builds a Broker bound to can for transport and db for persistence.
func New(can candrv.Controller, db store.Store) *Broker {
	b := &Broker{
		can:           can,
		db:            db,
		now:           time.Now,
		nextPermanent: wire.PermanentIDMin,
		nextTemporary: wire.TemporaryIDMin,
		subs:                 make(map[uint16][]wire.ClientID),
		storedSubs:           make(map[wire.ClientID][]uint16),
		topicNames:           lru.NewLRU[uint16, string](wire.MaxActiveTopics, nil, time.Hour),
		persistedTopicNames:  make(map[uint16]string),
		connected:            make(map[wire.ClientID]bool),
		pingStates:           make(map[wire.ClientID]*pingState),
	}
	b.reasm = reassembler.New(b.handleComplete)
	return b
}

// SetCallbacks installs the endpoint-lifecycle callbacks.
func (b *Broker) SetCallbacks(c Callbacks) {
	b.callbacks = c
}

// Begin loads persisted state and rebuilds runtime tables from it.
func (b *Broker) Begin() error {
	b.loadRegistry()
	b.loadSubscriptions()
	b.loadTopicNames()
	b.loadPingConfig()

	if b.autoPingEnabled {
		for _, m := range b.mappings {
			if m.Registered {
				b.pingStates[wire.ClientID(m.ClientID)] = &pingState{lastPongTime: b.now()}
			}
		}
		logger.DebugF("broker: auto-ping enabled, %d client(s) tracked", len(b.pingStates))
		time.Sleep(wire.SubRestoreSettleMillis * time.Millisecond)
		b.sendPingWave()
		b.lastPingWave = b.now()
	}
	return nil
}

// End clears transient runtime state; persisted state is untouched.
func (b *Broker) End() {
	b.connected = make(map[wire.ClientID]bool)
	b.subs = make(map[uint16][]wire.ClientID)
}

// Loop processes at most one inbound frame plus any timer-driven action.
// The host must call this repeatedly.
func (b *Broker) Loop() {
	if frame, ok := b.can.TryReceive(); ok {
		b.handleFrame(frame)
	}
	if b.autoPingEnabled {
		b.tickLiveness()
	}
}

func (b *Broker) handleFrame(f wire.Frame) {
	if f.Extended {
		b.reasm.Feed(f.ID, f.Data)
		return
	}
	b.dispatch(wire.MsgType(f.ID), b.reassemblerSenderID(f.Data), f.Data)
}

// reassemblerSenderID extracts the sender for a short frame the same way
// the reassembler does for frame 0 of an extended one: first payload byte
// for message types that carry it. Handlers re-decode it themselves; this
// exists only to share trackClientActivity's first-byte convention.
func (b *Broker) reassemblerSenderID(body []byte) wire.ClientID {
	if len(body) == 0 {
		return wire.UnassignedID
	}
	return wire.ClientID(body[0])
}

func (b *Broker) handleComplete(msgType wire.MsgType, senderID wire.ClientID, payload []byte) {
	// The reassembler always consumes one leading byte as the logical
	// sender_id, even for ID_REQUEST whose wire body has no client-id
	// prefix at all — for ID_REQUEST that stripped byte is really
	// serial[0]. Re-prepending it here restores the original body for
	// every message type, ID_REQUEST included, so DecodeIDRequest sees
	// the full serial.
	body := append([]byte{byte(senderID)}, payload...)
	b.dispatch(msgType, senderID, body)
}

// SendToClient emits a TOPIC_DATA frame to a specific client outside
// the normal publish/forward path.
func (b *Broker) SendToClient(targetID wire.ClientID, hash uint16, payload []byte) {
	b.send(wire.TopicData, wire.EncodeTopicData(targetID, hash, payload))
}

// SendDirectMessage emits a broker-originated DIRECT_MSG to targetID.
func (b *Broker) SendDirectMessage(targetID wire.ClientID, payload []byte) {
	b.send(wire.DirectMsg, wire.EncodeDirectMsgDown(targetID, payload))
}

// Broadcast forwards payload to every current subscriber of hash,
// identical to a PUBLISH's forwarding step but callable without an
// inbound PUBLISH frame.
func (b *Broker) Broadcast(hash uint16, payload []byte) {
	b.forwardToSubscribers(hash, payload)
}

func (b *Broker) send(msgType wire.MsgType, body []byte) {
	for _, f := range wire.EncodeAuto(msgType, body) {
		if err := b.can.Send(f); err != nil {
			logger.WarnF("broker: send %s failed: %v", msgType, err)
			return
		}
		if f.Extended {
			time.Sleep(wire.InterFrameDelayMillis * time.Millisecond)
		}
	}
}
