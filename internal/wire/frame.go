package wire

// Frame is a single outbound CAN data frame: either a short-form frame
// whose 11-bit standard ID equals its message type, or one frame of an
// extended sequence carrying a 29-bit ID built by ExtendedID.
type Frame struct {
	Extended bool
	ID       uint32
	Data     []byte
}

// ExtendedID packs the 29-bit extended arbitration ID:
// [msg_type:8][frame_seq:8][total_frames:13]. Bits above the 13
// reserved for total_frames are always zero on send (Open Question #3);
// DecodeExtendedID masks them off on receive regardless of what a
// non-conforming sender puts there.
func ExtendedID(msgType MsgType, frameSeq byte, totalFrames uint16) uint32 {
	return uint32(msgType)<<21 | uint32(frameSeq)<<13 | uint32(totalFrames&0x1FFF)
}

// DecodeExtendedID unpacks an extended arbitration ID.
func DecodeExtendedID(id uint32) (msgType MsgType, frameSeq byte, totalFrames uint16) {
	msgType = MsgType((id >> 21) & 0xFF)
	frameSeq = byte((id >> 13) & 0xFF)
	totalFrames = uint16(id & 0x1FFF)
	return
}

// TruncateExtendedPayload caps a payload at the reassembly limit, the
// same "deliver truncated" policy the receive side applies.
func TruncateExtendedPayload(payload []byte) []byte {
	if len(payload) > MaxExtendedMsgSize {
		return payload[:MaxExtendedMsgSize]
	}
	return payload
}

// EncodeShort builds a single standard-ID frame if body fits in one
// frame's 8 data bytes. ok is false when the body must be sent as an
// extended sequence instead.
func EncodeShort(msgType MsgType, body []byte) (Frame, bool) {
	if len(body) > FrameDataSize {
		return Frame{}, false
	}
	return Frame{Extended: false, ID: uint32(msgType), Data: body}, true
}

// EncodeExtended splits body into an ordered sequence of extended
// frames, each carrying up to FrameDataSize bytes. body is truncated to
// MaxExtendedMsgSize first.
func EncodeExtended(msgType MsgType, body []byte) []Frame {
	body = TruncateExtendedPayload(body)
	total := (len(body) + FrameDataSize - 1) / FrameDataSize
	if total == 0 {
		total = 1
	}
	frames := make([]Frame, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * FrameDataSize
		end := start + FrameDataSize
		if end > len(body) {
			end = len(body)
		}
		frames = append(frames, Frame{
			Extended: true,
			ID:       ExtendedID(msgType, byte(seq), uint16(total)),
			Data:     body[start:end],
		})
	}
	return frames
}

// EncodeAuto picks the short form when the body fits in one frame,
// otherwise an extended sequence.
func EncodeAuto(msgType MsgType, body []byte) []Frame {
	if f, ok := EncodeShort(msgType, body); ok {
		return []Frame{f}
	}
	return EncodeExtended(msgType, body)
}
