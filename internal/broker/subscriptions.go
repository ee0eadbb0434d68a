package broker

import (
	"github.com/cankit/canpubsub/internal/store"
	"github.com/cankit/canpubsub/internal/wire"
)

// addSubscription inserts clientID into hash's subscriber row, creating
// the row if needed. Duplicates are a no-op; overflow of either bound
// (10 subscribers/topic, 20 active topics) is silently dropped,
// mirroring the original's fixed-array saturation behavior.
func (b *Broker) addSubscription(clientID wire.ClientID, hash uint16) {
	row, exists := b.subs[hash]
	if exists {
		for _, id := range row {
			if id == clientID {
				return
			}
		}
		if len(row) >= wire.MaxSubscribersPerTopic {
			return
		}
		b.subs[hash] = append(row, clientID)
		return
	}
	if len(b.subs) >= wire.MaxActiveTopics {
		return
	}
	b.subs[hash] = []wire.ClientID{clientID}
}

// removeSubscription drops clientID from hash's row. Unlike the
// original, which leaves an empty row's slot occupied, an emptied row
// is deleted outright so the active-topic count reflects only topics
// that still have a subscriber.
func (b *Broker) removeSubscription(clientID wire.ClientID, hash uint16) {
	row, exists := b.subs[hash]
	if !exists {
		return
	}
	for i, id := range row {
		if id != clientID {
			continue
		}
		row = append(row[:i], row[i+1:]...)
		if len(row) == 0 {
			delete(b.subs, hash)
		} else {
			b.subs[hash] = row
		}
		return
	}
}

// removeAllSubscriptions drops clientID from every row it appears in,
// used on unregister. A liveness disconnect leaves subscriptions intact.
func (b *Broker) removeAllSubscriptions(clientID wire.ClientID) {
	for hash := range b.subs {
		b.removeSubscription(clientID, hash)
	}
	b.storeClientSubscriptions(clientID)
}

// clientTopics collects the hashes clientID currently subscribes to.
func (b *Broker) clientTopics(clientID wire.ClientID) []uint16 {
	var topics []uint16
	for hash, row := range b.subs {
		for _, id := range row {
			if id == clientID {
				topics = append(topics, hash)
				break
			}
		}
	}
	return topics
}

// storeClientSubscriptions re-derives clientID's stored topic set from
// the live table and flushes the whole namespace, mirroring the
// original's storeClientSubscriptions/saveSubscriptionsToStorage pair.
func (b *Broker) storeClientSubscriptions(clientID wire.ClientID) {
	topics := b.clientTopics(clientID)
	if len(topics) == 0 {
		delete(b.storedSubs, clientID)
	} else {
		if len(topics) > wire.MaxStoredTopicsPerClient {
			topics = topics[:wire.MaxStoredTopicsPerClient]
		}
		b.storedSubs[clientID] = topics
	}
	b.saveSubscriptions()
}

// hasStoredSubscriptions reports whether clientID has a non-empty
// persisted topic set, used by RegisterClient to set the ID_RESPONSE
// has_stored_subs flag.
func (b *Broker) hasStoredSubscriptions(clientID wire.ClientID) bool {
	return len(b.storedSubs[clientID]) > 0
}

// restoreClientSubscriptions replays clientID's stored topics into the
// active table and emits one SUB_RESTORE frame per topic with a pacing
// gap, so the client's local mirror catches up.
func (b *Broker) restoreClientSubscriptions(clientID wire.ClientID) {
	topics, ok := b.storedSubs[clientID]
	if !ok {
		return
	}
	for _, hash := range topics {
		b.addSubscription(clientID, hash)
		name := b.GetTopicName(hash)
		if isDefaultTopicName(name, hash) {
			name = ""
		}
		b.send(wire.SubRestore, wire.EncodeSubRestore(clientID, hash, name))
		sleep(wire.SubRestorePacingMillis)
	}
}

// forwardToSubscribers emits one TOPIC_DATA frame per subscriber of
// hash, short or extended as size requires, with an inter-send gap.
func (b *Broker) forwardToSubscribers(hash uint16, payload []byte) {
	row, ok := b.subs[hash]
	if !ok {
		return
	}
	for _, subID := range row {
		b.send(wire.TopicData, wire.EncodeTopicData(subID, hash, payload))
		sleep(wire.InterForwardDelayMillis)
	}
}

// RegisterTopic and GetTopicName expose a public API letting a caller
// seed the name cache independent of an actual SUBSCRIBE round-trip.
func (b *Broker) RegisterTopic(name string) {
	hash := wire.HashTopic(name)
	if _, ok := b.topicNames.Get(hash); ok {
		return
	}
	b.topicNames.Add(hash, name)
	b.persistedTopicNames[hash] = name
	b.saveTopicNames()
}

func (b *Broker) loadSubscriptions() {
	var doc store.SubscriptionDoc
	found, err := b.db.Load(store.NamespaceSubscription, &doc)
	if err != nil || !found || doc.Magic != store.MagicSubscription {
		b.storedSubs = make(map[wire.ClientID][]uint16)
		return
	}
	b.storedSubs = make(map[wire.ClientID][]uint16, len(doc.Subscribers))
	for _, cs := range doc.Subscribers {
		b.storedSubs[wire.ClientID(cs.ClientID)] = cs.Topics
	}
	// Rebuild the active table by replaying every stored entry —
	// clients that never reconnect still show up as subscribers until
	// an UNSUBSCRIBE or unregister removes them.
	for clientID, topics := range b.storedSubs {
		for _, hash := range topics {
			b.addSubscription(clientID, hash)
		}
	}
}

func (b *Broker) saveSubscriptions() {
	doc := store.SubscriptionDoc{Magic: store.MagicSubscription}
	for clientID, topics := range b.storedSubs {
		doc.Subscribers = append(doc.Subscribers, store.ClientSubscriptions{
			ClientID: byte(clientID),
			Topics:   topics,
		})
	}
	_ = b.db.Save(store.NamespaceSubscription, doc)
}

// ListSubscribedTopics invokes fn once per active topic row, mirroring
// listSubscribedTopics's flat scan.
func (b *Broker) ListSubscribedTopics(fn func(hash uint16, name string, subscriberCount int)) {
	for hash, row := range b.subs {
		fn(hash, b.GetTopicName(hash), len(row))
	}
}

// GetSubscriptionCount returns the number of distinct active topics.
func (b *Broker) GetSubscriptionCount() int {
	return len(b.subs)
}

// GetClientSubscriptionCount returns how many topics clientID is
// currently subscribed to.
func (b *Broker) GetClientSubscriptionCount(clientID wire.ClientID) int {
	return len(b.clientTopics(clientID))
}

// ClearStoredSubscriptions wipes the persisted per-client topic sets,
// mirroring clearStoredSubscriptions. The live subscription table is
// untouched.
func (b *Broker) ClearStoredSubscriptions() error {
	b.storedSubs = make(map[wire.ClientID][]uint16)
	return b.db.Clear(store.NamespaceSubscription)
}
