// Package integration_test drives internal/broker and internal/client
// together over a shared internal/candrv loopback bus, exercising
// end-to-end scenarios: identity handshakes, fragmented publishes,
// peer messaging, and liveness. Each endpoint's Loop is pumped from its
// own dedicated goroutine (mirroring one real process per endpoint)
// once its handshake (which self-polls) has completed; callback results
// reach the test goroutine through channels, while the other assertions
// poll endpoint getters directly.
package integration_test

import (
	"testing"
	"time"

	"github.com/cankit/canpubsub/internal/broker"
	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/client"
	"github.com/cankit/canpubsub/internal/store/memstore"
	"github.com/cankit/canpubsub/internal/wire"
)

// pump repeatedly calls loop until stop is closed, standing in for one
// endpoint's single-threaded process. Must not be started against a
// *client.Client still inside Connect/ConnectWithSerial: that call
// already polls the same endpoint itself.
func pump(t *testing.T, loop func()) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				loop()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(done) }
}

func TestBySerialRejoinRestoresSubscriptions(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	stopBroker := pump(t, b.Loop)

	clientEP := bus.Open()
	c := client.New(clientEP)
	if !c.ConnectWithSerial("A1", time.Second) {
		t.Fatal("first connect with serial A1 must succeed")
	}
	if c.ClientID() != 0x01 {
		t.Fatalf("got id %#x, want 0x01 for the first registered serial", byte(c.ClientID()))
	}
	stopClient := pump(t, c.Loop)
	if !c.Subscribe("temp/1") {
		t.Fatal("Subscribe must succeed once connected")
	}
	time.Sleep(50 * time.Millisecond)

	stopClient()
	stopBroker()
	_ = clientEP.Close()
	_ = brokerEP.Close()

	brokerEP2 := bus.Open()
	b2 := broker.New(brokerEP2, db)
	if err := b2.Begin(); err != nil {
		t.Fatalf("Begin after restart: %v", err)
	}
	defer pump(t, b2.Loop)()

	clientEP2 := bus.Open()
	c2 := client.New(clientEP2)
	if !c2.ConnectWithSerial("A1", time.Second) {
		t.Fatal("reconnect with serial A1 must succeed")
	}
	if c2.ClientID() != 0x01 {
		t.Fatalf("got id %#x, want the same permanent id 0x01 after rejoin", byte(c2.ClientID()))
	}
	defer pump(t, c2.Loop)()

	deadline := time.Now().Add(time.Second)
	for !c2.IsSubscribed("temp/1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !c2.IsSubscribed("temp/1") {
		t.Fatal("client must have temp/1 restored via SUB_RESTORE after rejoin")
	}
	if got := c2.GetSubscriptionCount(); got != 1 {
		t.Fatalf("got %d restored subscriptions, want exactly 1", got)
	}
}

func TestFragmentedPublishReachesSubscriber(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	published := make(chan int, 1)
	b.SetCallbacks(broker.Callbacks{OnPublish: func(hash uint16, name string, payload []byte) {
		published <- len(payload)
	}})
	defer pump(t, b.Loop)()

	pubEP, subEP := bus.Open(), bus.Open()
	publisher, subscriber := client.New(pubEP), client.New(subEP)

	if !publisher.Connect(time.Second) || !subscriber.Connect(time.Second) {
		t.Fatal("both clients must connect")
	}
	received := make(chan []byte, 1)
	subscriber.SetCallbacks(client.Callbacks{OnMessage: func(hash uint16, name string, payload []byte) {
		received <- append([]byte(nil), payload...)
	}})
	defer pump(t, publisher.Loop)()
	defer pump(t, subscriber.Loop)()

	if !subscriber.Subscribe("d") {
		t.Fatal("Subscribe must succeed")
	}
	time.Sleep(50 * time.Millisecond)

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	if !publisher.Publish("d", payload) {
		t.Fatal("Publish must succeed once connected")
	}

	select {
	case n := <-published:
		if n != 40 {
			t.Fatalf("on_publish saw %d bytes, want 40", n)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for on_publish to fire for the fragmented PUBLISH")
	}

	select {
	case got := <-received:
		if len(got) != 40 {
			t.Fatalf("got %d reassembled bytes, want 40", len(got))
		}
		for i, v := range got {
			if v != byte(i) {
				t.Fatalf("byte %d: got %#x, want %#x", i, v, byte(i))
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the fragmented TOPIC_DATA to reassemble")
	}
}

func TestTemporaryIDPeerMessageIsDroppedSilently(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer pump(t, b.Loop)()

	aEP, bEP := bus.Open(), bus.Open()
	clientA, clientB := client.New(aEP), client.New(bEP)

	if !clientA.ConnectWithSerial("A1", time.Second) {
		t.Fatal("clientA must register with a permanent id")
	}
	if !clientB.Connect(time.Second) {
		t.Fatal("clientB must connect anonymously")
	}
	if !clientB.ClientID().IsTemporary() {
		t.Fatalf("got id %#x, want a temporary id for the anonymous client", byte(clientB.ClientID()))
	}

	delivered := make(chan struct{}, 1)
	clientA.SetCallbacks(client.Callbacks{OnPeerMessage: func(wire.ClientID, []byte) {
		delivered <- struct{}{}
	}})
	defer pump(t, clientA.Loop)()
	defer pump(t, clientB.Loop)()

	if !clientB.SendPeerMessage(clientA.ClientID(), []byte("hi")) {
		t.Fatal("SendPeerMessage must succeed at the client API level")
	}

	select {
	case <-delivered:
		t.Fatal("a PEER_MSG from a temporary-id client must be dropped by the broker, never delivered")
	case <-time.After(200 * time.Millisecond):
		// expected: silently dropped
	}
}

func TestSerialMismatchIgnoredOnSharedBus(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer pump(t, b.Loop)()

	aEP, bEP := bus.Open(), bus.Open()
	clientA, clientB := client.New(aEP), client.New(bEP)

	if !clientA.ConnectWithSerial("A1", time.Second) {
		t.Fatal("clientA must register")
	}
	beforeA := clientA.ClientID()

	if !clientB.ConnectWithSerial("B2", time.Second) {
		t.Fatal("clientB must register")
	}

	if clientA.ClientID() != beforeA {
		t.Fatalf("clientA's id changed from %#x to %#x after clientB's ID_RESPONSE; a shared bus response for a different serial must be ignored",
			byte(beforeA), byte(clientA.ClientID()))
	}
}

func TestUnsubscribeLastSubscriberEmptiesTopic(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer pump(t, b.Loop)()

	aEP := bus.Open()
	clientA := client.New(aEP)

	if !clientA.ConnectWithSerial("A1", time.Second) {
		t.Fatal("clientA must register")
	}
	defer pump(t, clientA.Loop)()

	if !clientA.Subscribe("x") {
		t.Fatal("Subscribe must succeed")
	}

	deadline := time.Now().Add(time.Second)
	for b.GetSubscriptionCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if b.GetSubscriptionCount() != 1 {
		t.Fatal("broker must have exactly one active topic after the subscribe")
	}

	if !clientA.Unsubscribe("x") {
		t.Fatal("Unsubscribe must succeed")
	}
	deadline = time.Now().Add(time.Second)
	for b.GetSubscriptionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := b.GetSubscriptionCount(); got != 0 {
		t.Fatalf("got %d active topics, want 0 once the only subscriber leaves", got)
	}
	if got := b.GetClientSubscriptionCount(clientA.ClientID()); got != 0 {
		t.Fatalf("got %d subscribed topics for clientA, want 0 after unsubscribe", got)
	}
}

func TestLivenessTimeoutFiresDisconnectOnce(t *testing.T) {
	bus := candrv.NewBus()
	defer func() { _ = bus.Close() }()
	db := memstore.New()

	brokerEP := bus.Open()
	b := broker.New(brokerEP, db)
	if !b.SetPingConfig(true, 30, 2) {
		t.Fatal("SetPingConfig must accept a 30ms interval and 2 max missed pings")
	}
	if err := b.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	disconnects := make(chan wire.ClientID, 4)
	b.SetCallbacks(broker.Callbacks{OnClientDisconnect: func(id wire.ClientID) {
		disconnects <- id
	}})
	defer pump(t, b.Loop)()

	aEP := bus.Open()
	clientA := client.New(aEP)
	if !clientA.ConnectWithSerial("A1", time.Second) {
		t.Fatal("clientA must register")
	}
	// Any post-handshake message brings the client under liveness
	// tracking (the broker only starts counting missed pings once it
	// has seen activity from a client). clientA's own Loop is pumped
	// only until here: it never answers the broker's ping waves after.
	stopClient := pump(t, clientA.Loop)
	if !clientA.Ping() {
		t.Fatal("Ping must succeed once connected")
	}
	time.Sleep(50 * time.Millisecond)
	stopClient()

	select {
	case id := <-disconnects:
		if id != clientA.ClientID() {
			t.Fatalf("got disconnect for %#x, want %#x", byte(id), byte(clientA.ClientID()))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for on_client_disconnect after missed ping waves")
	}

	select {
	case id := <-disconnects:
		t.Fatalf("got a second disconnect callback for %#x, want exactly one", byte(id))
	case <-time.After(100 * time.Millisecond):
		// expected: no second callback
	}
}
