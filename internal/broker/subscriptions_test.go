package broker

import (
	"testing"

	"github.com/cankit/canpubsub/internal/wire"
)

func TestAddSubscriptionDeduplicatesAndBoundsSubscribers(t *testing.T) {
	b := newTestBroker(t)
	hash := wire.HashTopic("weather")

	b.addSubscription(1, hash)
	b.addSubscription(1, hash) // duplicate, no-op
	if got := len(b.subs[hash]); got != 1 {
		t.Fatalf("got %d subscribers, want 1 after a duplicate add", got)
	}

	for i := 0; i < wire.MaxSubscribersPerTopic+5; i++ {
		b.addSubscription(wire.ClientID(i+2), hash)
	}
	if got := len(b.subs[hash]); got != wire.MaxSubscribersPerTopic {
		t.Fatalf("got %d subscribers, want the row capped at %d", got, wire.MaxSubscribersPerTopic)
	}
}

func TestRemoveSubscriptionDeletesEmptyRow(t *testing.T) {
	b := newTestBroker(t)
	hash := wire.HashTopic("weather")
	b.addSubscription(1, hash)

	b.removeSubscription(1, hash)

	if _, exists := b.subs[hash]; exists {
		t.Fatal("a row with no remaining subscribers must be deleted, not left empty")
	}
	if b.GetSubscriptionCount() != 0 {
		t.Fatalf("got subscription count %d, want 0", b.GetSubscriptionCount())
	}
}

func TestStoreAndRestoreClientSubscriptions(t *testing.T) {
	b := newTestBroker(t)
	hash := wire.HashTopic("weather")
	id := wire.ClientID(5)

	b.addSubscription(id, hash)
	b.storeClientSubscriptions(id)

	if !b.hasStoredSubscriptions(id) {
		t.Fatal("storeClientSubscriptions must persist a non-empty topic set")
	}

	// Simulate a fresh process picking the same store back up.
	b2 := New(b.can, b.db)
	if err := b2.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if got := b2.GetSubscriptionCount(); got != 1 {
		t.Fatalf("got %d active topics after replay, want 1", got)
	}
	if !b2.hasStoredSubscriptions(id) {
		t.Fatal("the reloaded broker must know this client has stored subscriptions")
	}
}

func TestForwardToSubscribersSkipsUnknownTopic(t *testing.T) {
	b := newTestBroker(t)
	// No subscribers registered for this hash; forwarding must not panic
	// or block on b.send trying to reach a nonexistent row.
	b.forwardToSubscribers(wire.HashTopic("nobody-subscribes"), []byte("payload"))
}

func TestGetTopicNameFallsBackToHex(t *testing.T) {
	b := newTestBroker(t)
	hash := wire.HashTopic("unregistered-topic")
	got := b.GetTopicName(hash)
	want := defaultTopicName(hash)
	if got != want {
		t.Fatalf("got %q, want fallback %q", got, want)
	}

	b.RegisterTopic("unregistered-topic")
	if got := b.GetTopicName(hash); got != "unregistered-topic" {
		t.Fatalf("got %q after RegisterTopic, want the registered name", got)
	}
}
