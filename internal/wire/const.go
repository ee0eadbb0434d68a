// Package wire implements the CAN pub/sub wire format: message types,
// the topic hash, standard/extended frame encoding, and the
// fixed-size limits that make persisted records byte-sized.
package wire

// MsgType identifies the payload carried by a frame.
type MsgType byte

const (
	Subscribe   MsgType = 0x01
	Unsubscribe MsgType = 0x02
	Publish     MsgType = 0x03
	TopicData   MsgType = 0x04
	DirectMsg   MsgType = 0x05
	Ping        MsgType = 0x06
	Pong        MsgType = 0x07
	Ack         MsgType = 0x08
	PeerMsg     MsgType = 0x09
	SubRestore  MsgType = 0x0A
	IDResponse  MsgType = 0xFE
	IDRequest   MsgType = 0xFF
)

var msgTypeNames = map[MsgType]string{
	Subscribe:   "SUBSCRIBE",
	Unsubscribe: "UNSUBSCRIBE",
	Publish:     "PUBLISH",
	TopicData:   "TOPIC_DATA",
	DirectMsg:   "DIRECT_MSG",
	Ping:        "PING",
	Pong:        "PONG",
	Ack:         "ACK",
	PeerMsg:     "PEER_MSG",
	SubRestore:  "SUB_RESTORE",
	IDResponse:  "ID_RESPONSE",
	IDRequest:   "ID_REQUEST",
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ClientID identifies an endpoint on the bus.
type ClientID byte

const (
	BrokerID     ClientID = 0x00
	UnassignedID ClientID = 0xFF

	// PermanentIDMin/Max bound the persisted, serial-bound ID range.
	PermanentIDMin ClientID = 0x01
	PermanentIDMax ClientID = 0x64

	// TemporaryIDMin/Max bound the non-persisted anonymous ID range.
	TemporaryIDMin ClientID = 0x65
	TemporaryIDMax ClientID = 0xFE
)

// IsTemporary reports whether id falls in the anonymous, non-persisted range.
func (id ClientID) IsTemporary() bool {
	return id >= TemporaryIDMin && id <= TemporaryIDMax
}

// IsPermanent reports whether id falls in the persisted, serial-bound range.
func (id ClientID) IsPermanent() bool {
	return id >= PermanentIDMin && id <= PermanentIDMax
}

// Size limits from the wire contract. These are defaults for
// wire-compatible behavior; hosts with heaps may widen the backing
// storage but must not change what a byte-exact persisted record means.
const (
	MaxSerialLength          = 31 // + terminator
	MaxTopicNameLength       = 31 // + terminator
	MaxSubscribersPerTopic   = 10
	MaxActiveTopics          = 20
	MaxStoredTopicsPerClient = 10
	MaxClientMappings        = 50

	FrameDataSize      = 8   // bytes per CAN frame
	MaxExtendedMsgSize = 128 // bytes, cumulative reassembly cap
	ReassemblyTimeout  = 1000 // milliseconds since last frame

	InterFrameDelayMillis      = 5   // between frames of one extended send
	InterForwardDelayMillis    = 10  // between subscriber forwards
	SubRestorePacingMillis     = 15  // between SUB_RESTORE frames
	SubRestoreSettleMillis     = 100 // wait after ID_RESPONSE before replay
)
