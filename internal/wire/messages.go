package wire

// This file encodes and decodes the frame bodies for every message
// type. Encoders build a body byte slice for EncodeAuto/EncodeShort/
// EncodeExtended; decoders return ok=false on any body shorter than
// its required prefix — callers must drop the frame without side
// effects.

// --- SUBSCRIBE: clientId, hash_hi, hash_lo, [name_len, name...] ---

type SubscribeBody struct {
	ClientID ClientID
	Hash     uint16
	Name     string // empty if the frame carried no name
}

func EncodeSubscribe(clientID ClientID, hash uint16, name string) []byte {
	body := []byte{byte(clientID), byte(hash >> 8), byte(hash)}
	if name != "" {
		if len(name) > MaxTopicNameLength {
			name = name[:MaxTopicNameLength]
		}
		body = append(body, byte(len(name)))
		body = append(body, name...)
	}
	return body
}

func DecodeSubscribe(body []byte) (SubscribeBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return SubscribeBody{}, false
	}
	hash, ok := c.readUint16()
	if !ok {
		return SubscribeBody{}, false
	}
	out := SubscribeBody{ClientID: ClientID(id), Hash: hash}
	if c.remaining() > 0 {
		name, ok := c.readLengthPrefixed(MaxTopicNameLength)
		if ok {
			out.Name = string(name)
		}
	}
	return out, true
}

// --- UNSUBSCRIBE: clientId, hash_hi, hash_lo ---

type UnsubscribeBody struct {
	ClientID ClientID
	Hash     uint16
}

func EncodeUnsubscribe(clientID ClientID, hash uint16) []byte {
	return []byte{byte(clientID), byte(hash >> 8), byte(hash)}
}

func DecodeUnsubscribe(body []byte) (UnsubscribeBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return UnsubscribeBody{}, false
	}
	hash, ok := c.readUint16()
	if !ok {
		return UnsubscribeBody{}, false
	}
	return UnsubscribeBody{ClientID: ClientID(id), Hash: hash}, true
}

// --- PUBLISH: publisherId, hash_hi, hash_lo, payload... ---

type PublishBody struct {
	PublisherID ClientID
	Hash        uint16
	Payload     []byte
}

func EncodePublish(publisherID ClientID, hash uint16, payload []byte) []byte {
	body := []byte{byte(publisherID), byte(hash >> 8), byte(hash)}
	return append(body, payload...)
}

func DecodePublish(body []byte) (PublishBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return PublishBody{}, false
	}
	hash, ok := c.readUint16()
	if !ok {
		return PublishBody{}, false
	}
	return PublishBody{PublisherID: ClientID(id), Hash: hash, Payload: c.rest()}, true
}

// --- TOPIC_DATA: subId, hash_hi, hash_lo, payload... (outbound only) ---

func EncodeTopicData(subID ClientID, hash uint16, payload []byte) []byte {
	body := []byte{byte(subID), byte(hash >> 8), byte(hash)}
	return append(body, payload...)
}

type TopicDataBody struct {
	SubID   ClientID
	Hash    uint16
	Payload []byte
}

func DecodeTopicData(body []byte) (TopicDataBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return TopicDataBody{}, false
	}
	hash, ok := c.readUint16()
	if !ok {
		return TopicDataBody{}, false
	}
	return TopicDataBody{SubID: ClientID(id), Hash: hash, Payload: c.rest()}, true
}

// --- DIRECT_MSG client->broker: senderId, payload... ---

type DirectMsgUpBody struct {
	SenderID ClientID
	Payload  []byte
}

func EncodeDirectMsgUp(senderID ClientID, payload []byte) []byte {
	return append([]byte{byte(senderID)}, payload...)
}

func DecodeDirectMsgUp(body []byte) (DirectMsgUpBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return DirectMsgUpBody{}, false
	}
	return DirectMsgUpBody{SenderID: ClientID(id), Payload: c.rest()}, true
}

// --- DIRECT_MSG broker->client: 0x00, targetId, payload... ---

type DirectMsgDownBody struct {
	TargetID ClientID
	Payload  []byte
}

func EncodeDirectMsgDown(targetID ClientID, payload []byte) []byte {
	body := []byte{byte(BrokerID), byte(targetID)}
	return append(body, payload...)
}

func DecodeDirectMsgDown(body []byte) (DirectMsgDownBody, bool) {
	c := newCursor(body)
	if _, ok := c.readByte(); !ok { // sender, always 0x00 (broker)
		return DirectMsgDownBody{}, false
	}
	target, ok := c.readByte()
	if !ok {
		return DirectMsgDownBody{}, false
	}
	return DirectMsgDownBody{TargetID: ClientID(target), Payload: c.rest()}, true
}

// --- PEER_MSG: senderId, targetId, payload... ---

type PeerMsgBody struct {
	SenderID ClientID
	TargetID ClientID
	Payload  []byte
}

func EncodePeerMsg(senderID, targetID ClientID, payload []byte) []byte {
	body := []byte{byte(senderID), byte(targetID)}
	return append(body, payload...)
}

func DecodePeerMsg(body []byte) (PeerMsgBody, bool) {
	c := newCursor(body)
	sender, ok := c.readByte()
	if !ok {
		return PeerMsgBody{}, false
	}
	target, ok := c.readByte()
	if !ok {
		return PeerMsgBody{}, false
	}
	return PeerMsgBody{SenderID: ClientID(sender), TargetID: ClientID(target), Payload: c.rest()}, true
}

// --- PING client->broker: senderId ---

func EncodePingUp(senderID ClientID) []byte {
	return []byte{byte(senderID)}
}

func DecodePingUp(body []byte) (ClientID, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	return ClientID(id), ok
}

// --- PING broker->client: 0x00, targetId ---

func EncodePingDown(targetID ClientID) []byte {
	return []byte{byte(BrokerID), byte(targetID)}
}

func DecodePingDown(body []byte) (ClientID, bool) {
	c := newCursor(body)
	if _, ok := c.readByte(); !ok {
		return 0, false
	}
	target, ok := c.readByte()
	return ClientID(target), ok
}

// --- PONG: senderId, targetId ---

type PongBody struct {
	SenderID ClientID
	TargetID ClientID
}

func EncodePong(senderID, targetID ClientID) []byte {
	return []byte{byte(senderID), byte(targetID)}
}

func DecodePong(body []byte) (PongBody, bool) {
	c := newCursor(body)
	sender, ok := c.readByte()
	if !ok {
		return PongBody{}, false
	}
	target, ok := c.readByte()
	if !ok {
		return PongBody{}, false
	}
	return PongBody{SenderID: ClientID(sender), TargetID: ClientID(target)}, true
}

// --- ACK: 0x00, targetId, "ACK" ---

func EncodeAck(targetID ClientID) []byte {
	return append([]byte{byte(BrokerID), byte(targetID)}, "ACK"...)
}

func DecodeAck(body []byte) (ClientID, bool) {
	c := newCursor(body)
	if _, ok := c.readByte(); !ok {
		return 0, false
	}
	target, ok := c.readByte()
	if !ok {
		return 0, false
	}
	return ClientID(target), true
}

// --- ID_REQUEST: empty (anonymous) or serial... (by serial) ---

func EncodeIDRequest(serial string) []byte {
	if serial == "" {
		return nil
	}
	if len(serial) > MaxSerialLength {
		serial = serial[:MaxSerialLength]
	}
	return []byte(serial)
}

// DecodeIDRequest returns the serial number, or "" for an anonymous request.
func DecodeIDRequest(body []byte) string {
	if len(body) > MaxSerialLength {
		body = body[:MaxSerialLength]
	}
	return string(body)
}

// --- ID_RESPONSE: assignedId, hasStoredSubs, serial_len, serial... ---

type IDResponseBody struct {
	AssignedID    ClientID
	HasStoredSubs bool
	Serial        string
}

func EncodeIDResponse(assignedID ClientID, hasStoredSubs bool, serial string) []byte {
	if len(serial) > MaxSerialLength {
		serial = serial[:MaxSerialLength]
	}
	flag := byte(0x00)
	if hasStoredSubs {
		flag = 0x01
	}
	body := []byte{byte(assignedID), flag, byte(len(serial))}
	return append(body, serial...)
}

func DecodeIDResponse(body []byte) (IDResponseBody, bool) {
	c := newCursor(body)
	assigned, ok := c.readByte()
	if !ok {
		return IDResponseBody{}, false
	}
	flag, ok := c.readByte()
	if !ok {
		return IDResponseBody{}, false
	}
	serial, ok := c.readLengthPrefixed(MaxSerialLength)
	if !ok {
		return IDResponseBody{}, false
	}
	return IDResponseBody{
		AssignedID:    ClientID(assigned),
		HasStoredSubs: flag == 0x01,
		Serial:        string(serial),
	}, true
}

// --- SUB_RESTORE: clientId, hash_hi, hash_lo, name_len, name... ---

type SubRestoreBody struct {
	ClientID ClientID
	Hash     uint16
	Name     string
}

func EncodeSubRestore(clientID ClientID, hash uint16, name string) []byte {
	if len(name) > MaxTopicNameLength {
		name = name[:MaxTopicNameLength]
	}
	body := []byte{byte(clientID), byte(hash >> 8), byte(hash), byte(len(name))}
	return append(body, name...)
}

func DecodeSubRestore(body []byte) (SubRestoreBody, bool) {
	c := newCursor(body)
	id, ok := c.readByte()
	if !ok {
		return SubRestoreBody{}, false
	}
	hash, ok := c.readUint16()
	if !ok {
		return SubRestoreBody{}, false
	}
	name, ok := c.readLengthPrefixed(MaxTopicNameLength)
	if !ok {
		return SubRestoreBody{}, false
	}
	return SubRestoreBody{ClientID: ClientID(id), Hash: hash, Name: string(name)}, true
}
