// Package memstore is a map-backed, in-memory store.Store. Used by
// tests and by hosts that don't need persistence across restarts.
package memstore

import (
	"encoding/json"
	"sync"

	"github.com/cankit/canpubsub/internal/logger"
)

// MemStore keeps one JSON-encoded document per namespace. Round-tripping
// through JSON (rather than keeping the live value) matches the
// save/load-by-value semantics a real database gives mongostore, so
// callers can't accidentally rely on aliasing.
type MemStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func New() *MemStore {
	return &MemStore{docs: make(map[string][]byte)}
}

func (m *MemStore) Load(namespace string, out any) (bool, error) {
	m.mu.Lock()
	data, ok := m.docs[namespace]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.ErrorF("memstore: namespace %s failed to decode: %v", namespace, err)
		return false, nil
	}
	return true, nil
}

func (m *MemStore) Save(namespace string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[namespace] = data
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Clear(namespace string) error {
	m.mu.Lock()
	delete(m.docs, namespace)
	m.mu.Unlock()
	return nil
}
