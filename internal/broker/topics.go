package broker

import (
	"fmt"
	"time"

	"github.com/cankit/canpubsub/internal/store"
	"github.com/cankit/canpubsub/internal/wire"
)

// GetTopicName resolves hash to the name first learned from a
// SUBSCRIBE/RegisterTopic call that carried one (RegisterTopic does not
// replace a name still in the cache), falling back to a
// hex placeholder the same way the original's getTopicName does when
// nothing has been registered for it.
func (b *Broker) GetTopicName(hash uint16) string {
	if name, ok := b.topicNames.Get(hash); ok {
		return name
	}
	if name, ok := b.persistedTopicNames[hash]; ok {
		b.topicNames.Add(hash, name)
		return name
	}
	return defaultTopicName(hash)
}

func defaultTopicName(hash uint16) string {
	return fmt.Sprintf("0x%X", hash)
}

func isDefaultTopicName(name string, hash uint16) bool {
	return name == defaultTopicName(hash) || name == ""
}

func (b *Broker) loadTopicNames() {
	var doc store.TopicNamesDoc
	found, err := b.db.Load(store.NamespaceTopicNames, &doc)
	if err != nil || !found || doc.Magic != store.MagicTopicNames {
		b.persistedTopicNames = make(map[uint16]string)
		return
	}
	b.persistedTopicNames = make(map[uint16]string, len(doc.Topics))
	for _, t := range doc.Topics {
		if !t.Active {
			continue
		}
		b.persistedTopicNames[t.Hash] = t.Name
		b.topicNames.Add(t.Hash, t.Name)
	}
}

// ClearStoredTopicNames wipes the persisted topic-name mappings. The
// runtime LRU cache is untouched, so names already learned this session
// keep resolving.
func (b *Broker) ClearStoredTopicNames() error {
	b.persistedTopicNames = make(map[uint16]string)
	return b.db.Clear(store.NamespaceTopicNames)
}

func (b *Broker) saveTopicNames() {
	doc := store.TopicNamesDoc{Magic: store.MagicTopicNames}
	for hash, name := range b.persistedTopicNames {
		doc.Topics = append(doc.Topics, store.StoredTopicName{Hash: hash, Name: name, Active: true})
	}
	_ = b.db.Save(store.NamespaceTopicNames, doc)
}

// sleep is a thin wrapper so pacing calls read like the original's
// delay(ms) rather than a raw time.Sleep at every call site.
func sleep(millis int) {
	time.Sleep(time.Duration(millis) * time.Millisecond)
}
