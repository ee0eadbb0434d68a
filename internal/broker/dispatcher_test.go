package broker

import (
	"testing"
	"time"

	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/reassembler"
	"github.com/cankit/canpubsub/internal/store/memstore"
	"github.com/cankit/canpubsub/internal/wire"
)

// brokerAndPeer wires a Broker to one loopback endpoint and hands the
// test the other endpoint to act as a client.
func brokerAndPeer(t *testing.T) (*Broker, *candrv.Endpoint) {
	t.Helper()
	bus := candrv.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	brokerEP := bus.Open()
	peer := bus.Open()

	b := New(brokerEP, memstore.New())
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return b, peer
}

func recvWithin(t *testing.T, peer *candrv.Endpoint, d time.Duration) wire.Frame {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if f, ok := peer.TryReceive(); ok {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a frame")
	return wire.Frame{}
}

// recvMessage returns the next whole message body: a standard frame's
// data as is, or an extended sequence reassembled the way an endpoint's
// reassembler would deliver it.
func recvMessage(t *testing.T, peer *candrv.Endpoint, d time.Duration) (wire.MsgType, []byte) {
	t.Helper()
	var msgType wire.MsgType
	var body []byte
	done := false
	r := reassembler.New(func(mt wire.MsgType, sender wire.ClientID, payload []byte) {
		msgType, body, done = mt, append([]byte{byte(sender)}, payload...), true
	})
	deadline := time.Now().Add(d)
	for !done && time.Now().Before(deadline) {
		f, ok := peer.TryReceive()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		if !f.Extended {
			return wire.MsgType(f.ID), f.Data
		}
		r.Feed(f.ID, f.Data)
	}
	if !done {
		t.Fatal("timed out waiting for a message")
	}
	return msgType, body
}

func TestAnonymousIDRequestGetsTemporaryID(t *testing.T) {
	b, peer := brokerAndPeer(t)

	frame, _ := wire.EncodeShort(wire.IDRequest, nil)
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	resp := recvWithin(t, peer, time.Second)
	if resp.ID != uint32(wire.IDResponse) {
		t.Fatalf("got msg type %#x, want ID_RESPONSE", resp.ID)
	}
	body, ok := wire.DecodeIDResponse(resp.Data)
	if !ok {
		t.Fatal("could not decode ID_RESPONSE")
	}
	if !body.AssignedID.IsTemporary() {
		t.Fatalf("got id %#x, want a temporary id", byte(body.AssignedID))
	}
}

func TestBySerialIDRequestRestoresStoredSubscriptions(t *testing.T) {
	b, peer := brokerAndPeer(t)

	id, _ := b.RegisterClient("serial-x")
	b.addSubscription(id, wire.HashTopic("weather"))
	b.storeClientSubscriptions(id)

	frame, _ := wire.EncodeShort(wire.IDRequest, wire.EncodeIDRequest("serial-x"))
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	_, respBody := recvMessage(t, peer, time.Second)
	idResp, ok := wire.DecodeIDResponse(respBody)
	if !ok || !idResp.HasStoredSubs {
		t.Fatalf("got %+v ok=%v, want has_stored_subs=true", idResp, ok)
	}
	if idResp.Serial != "serial-x" {
		t.Fatalf("got echoed serial %q, want serial-x", idResp.Serial)
	}

	restore := recvWithin(t, peer, 2*time.Second)
	if restore.ID != uint32(wire.SubRestore) {
		t.Fatalf("got msg type %#x, want SUB_RESTORE", restore.ID)
	}
}

func TestFragmentedIDRequestPreservesFullSerial(t *testing.T) {
	b, peer := brokerAndPeer(t)

	serial := "1234567890"
	for _, f := range wire.EncodeExtended(wire.IDRequest, wire.EncodeIDRequest(serial)) {
		if err := peer.Send(f); err != nil {
			t.Fatalf("Send: %v", err)
		}
		b.Loop()
	}

	_, respBody := recvMessage(t, peer, time.Second)
	idResp, ok := wire.DecodeIDResponse(respBody)
	if !ok {
		t.Fatal("could not decode ID_RESPONSE")
	}
	if idResp.Serial != serial {
		t.Fatalf("got echoed serial %q, want %q", idResp.Serial, serial)
	}
	if idResp.AssignedID == wire.UnassignedID {
		t.Fatal("got UnassignedID, want a permanent id for a fresh serial")
	}
}

func TestPublishForwardsToSubscribers(t *testing.T) {
	b, peer := brokerAndPeer(t)
	hash := wire.HashTopic("weather")
	subID := wire.ClientID(0x42)
	b.addSubscription(subID, hash)

	frame, _ := wire.EncodeShort(wire.Publish, wire.EncodePublish(0x10, hash, []byte("sunny")))
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	data := recvWithin(t, peer, time.Second)
	if data.ID != uint32(wire.TopicData) {
		t.Fatalf("got msg type %#x, want TOPIC_DATA", data.ID)
	}
	topicData, ok := wire.DecodeTopicData(data.Data)
	if !ok || topicData.SubID != subID || string(topicData.Payload) != "sunny" {
		t.Fatalf("got %+v ok=%v, want subId=%#x payload=sunny", topicData, ok, byte(subID))
	}
}

func TestDirectMessageGetsAcked(t *testing.T) {
	b, peer := brokerAndPeer(t)

	frame, _ := wire.EncodeShort(wire.DirectMsg, wire.EncodeDirectMsgUp(0x10, []byte("hello")))
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	ack := recvWithin(t, peer, time.Second)
	if ack.ID != uint32(wire.Ack) {
		t.Fatalf("got msg type %#x, want ACK", ack.ID)
	}
	target, ok := wire.DecodeAck(ack.Data)
	if !ok || target != 0x10 {
		t.Fatalf("got target %#x ok=%v, want 0x10", byte(target), ok)
	}
}

func TestPeerMessageDroppedWhenOneSideUnregistered(t *testing.T) {
	b, peer := brokerAndPeer(t)
	sender, _ := b.RegisterClient("serial-sender")

	frame, _ := wire.EncodeShort(wire.PeerMsg, wire.EncodePeerMsg(sender, 0x99, []byte("hi")))
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	if _, ok := peer.TryReceive(); ok {
		t.Fatal("a PEER_MSG to an unregistered target must be dropped silently")
	}
}

func TestPeerMessageForwardedWhenBothPermanent(t *testing.T) {
	b, peer := brokerAndPeer(t)
	sender, _ := b.RegisterClient("serial-sender")
	target, _ := b.RegisterClient("serial-target")

	frame, _ := wire.EncodeShort(wire.PeerMsg, wire.EncodePeerMsg(sender, target, []byte("hi")))
	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	b.Loop()

	got := recvWithin(t, peer, time.Second)
	msg, ok := wire.DecodePeerMsg(got.Data)
	if !ok || msg.SenderID != sender || msg.TargetID != target {
		t.Fatalf("got %+v ok=%v, want sender=%#x target=%#x", msg, ok, byte(sender), byte(target))
	}
}
