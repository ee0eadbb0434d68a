package wire

import "testing"

func TestExtendedIDRoundTrip(t *testing.T) {
	id := ExtendedID(Publish, 3, 6)
	msgType, seq, total := DecodeExtendedID(id)
	if msgType != Publish || seq != 3 || total != 6 {
		t.Fatalf("got (%v, %d, %d), want (PUBLISH, 3, 6)", msgType, seq, total)
	}
}

func TestDecodeExtendedIDMasksReservedBits(t *testing.T) {
	// A non-conforming sender sets bits above the 13 reserved for
	// total_frames; the decoder must ignore them (Open Question #3).
	id := ExtendedID(Ping, 0, 0x1FFF) | 0x3<<29 // out-of-range high bits, harmless on a real 29-bit bus
	msgType, _, total := DecodeExtendedID(id)
	if msgType != Ping {
		t.Fatalf("msg_type = %v, want PING", msgType)
	}
	if total != 0x1FFF {
		t.Fatalf("total_frames = %#x, want %#x", total, 0x1FFF)
	}
}

func TestEncodeShortRejectsOversizedBody(t *testing.T) {
	if _, ok := EncodeShort(Publish, make([]byte, FrameDataSize+1)); ok {
		t.Fatal("EncodeShort must reject a body over 8 bytes")
	}
	if f, ok := EncodeShort(Publish, make([]byte, FrameDataSize)); !ok || f.Extended {
		t.Fatal("EncodeShort must accept an 8-byte body as a standard frame")
	}
}

func TestEncodeExtendedSplitsAndReassembles(t *testing.T) {
	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	frames := EncodeExtended(Publish, payload)
	if len(frames) != 5 { // ceil(40/8)
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	var reassembled []byte
	for i, f := range frames {
		msgType, seq, total := DecodeExtendedID(f.ID)
		if msgType != Publish {
			t.Fatalf("frame %d: msg_type = %v, want PUBLISH", i, msgType)
		}
		if int(seq) != i {
			t.Fatalf("frame %d: frame_seq = %d, want %d", i, seq, i)
		}
		if int(total) != len(frames) {
			t.Fatalf("frame %d: total_frames = %d, want %d", i, total, len(frames))
		}
		reassembled = append(reassembled, f.Data...)
	}
	if len(reassembled) != len(payload) {
		t.Fatalf("reassembled %d bytes, want %d", len(reassembled), len(payload))
	}
	for i := range payload {
		if reassembled[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, reassembled[i], payload[i])
		}
	}
}

func TestEncodeExtendedTruncatesAt128(t *testing.T) {
	payload := make([]byte, 200)
	frames := EncodeExtended(Publish, payload)
	var total int
	for _, f := range frames {
		total += len(f.Data)
	}
	if total != MaxExtendedMsgSize {
		t.Fatalf("reassembled length %d, want %d (truncated)", total, MaxExtendedMsgSize)
	}
}

func TestEncodeAutoPicksShortForm(t *testing.T) {
	frames := EncodeAuto(Ping, []byte{0x01})
	if len(frames) != 1 || frames[0].Extended {
		t.Fatal("EncodeAuto must use a standard frame for a body that fits in 8 bytes")
	}
}

func TestEncodeAutoPicksExtendedForm(t *testing.T) {
	frames := EncodeAuto(Publish, make([]byte, 9))
	if len(frames) < 2 || !frames[0].Extended {
		t.Fatal("EncodeAuto must use extended frames for a body over 8 bytes")
	}
}
