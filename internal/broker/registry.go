package broker

import (
	"github.com/cankit/canpubsub/internal/store"
	"github.com/cankit/canpubsub/internal/wire"
)

// findMappingBySerial and findMappingByID mirror the original's linear
// findClientMapping/findClientMappingById scans; the table is bounded to
// MaxClientMappings so a scan is cheap and needs no index.
func (b *Broker) findMappingBySerial(serial string) int {
	for i, m := range b.mappings {
		if m.Serial == serial {
			return i
		}
	}
	return -1
}

func (b *Broker) findMappingByID(id wire.ClientID) int {
	for i, m := range b.mappings {
		if wire.ClientID(m.ClientID) == id {
			return i
		}
	}
	return -1
}

// RegisterClient finds or creates a permanent ID for serial, the
// by-serial handshake. Returns (id, hasStoredSubs).
// Returns UnassignedID if the registry is full (REGISTRY_FULL).
func (b *Broker) RegisterClient(serial string) (wire.ClientID, bool) {
	if idx := b.findMappingBySerial(serial); idx >= 0 {
		b.mappings[idx].Registered = true
		b.saveRegistry()
		return wire.ClientID(b.mappings[idx].ClientID), b.hasStoredSubscriptions(wire.ClientID(b.mappings[idx].ClientID))
	}

	if len(b.mappings) >= wire.MaxClientMappings {
		return wire.UnassignedID, false
	}

	assigned := b.nextPermanent
	b.mappings = append(b.mappings, store.ClientMapping{
		ClientID:   byte(assigned),
		Serial:     serial,
		Registered: true,
	})

	// ID wrap-around collision: both permanent and temporary ranges wrap
	// with no collision guard. A wrapped ID still held by another
	// registered client silently aliases it.
	b.nextPermanent++
	if b.nextPermanent > wire.PermanentIDMax {
		b.nextPermanent = wire.PermanentIDMin
	}

	b.saveRegistry()
	return assigned, false
}

// nextAnonymousID allocates the next temporary ID, wrapping within the
// temporary range. Never persisted.
func (b *Broker) nextAnonymousID() wire.ClientID {
	assigned := b.nextTemporary
	b.nextTemporary++
	if b.nextTemporary > wire.TemporaryIDMax {
		b.nextTemporary = wire.TemporaryIDMin
	}
	return assigned
}

// UnregisterClient marks a permanent client's mapping as unregistered
// and drops its subscriptions. It stays in the mapping table so a
// reconnect with the same serial reuses the same ID.
func (b *Broker) UnregisterClient(id wire.ClientID) bool {
	idx := b.findMappingByID(id)
	if idx < 0 {
		return false
	}
	b.mappings[idx].Registered = false
	b.removeAllSubscriptions(id)
	b.saveRegistry()
	return true
}

func (b *Broker) UnregisterClientBySerial(serial string) bool {
	idx := b.findMappingBySerial(serial)
	if idx < 0 {
		return false
	}
	b.mappings[idx].Registered = false
	b.removeAllSubscriptions(wire.ClientID(b.mappings[idx].ClientID))
	b.saveRegistry()
	return true
}

func (b *Broker) GetClientIDBySerial(serial string) wire.ClientID {
	if idx := b.findMappingBySerial(serial); idx >= 0 {
		return wire.ClientID(b.mappings[idx].ClientID)
	}
	return wire.UnassignedID
}

func (b *Broker) GetSerialByClientID(id wire.ClientID) (string, bool) {
	if idx := b.findMappingByID(id); idx >= 0 {
		return b.mappings[idx].Serial, true
	}
	return "", false
}

// UpdateClientSerial rebinds a registered client's serial, refusing a
// serial already claimed by another entry (SERIAL_CONFLICT).
func (b *Broker) UpdateClientSerial(id wire.ClientID, newSerial string) bool {
	idx := b.findMappingByID(id)
	if idx < 0 {
		return false
	}
	if other := b.findMappingBySerial(newSerial); other >= 0 && other != idx {
		return false
	}
	b.mappings[idx].Serial = newSerial
	b.saveRegistry()
	return true
}

// ListRegisteredClients invokes fn for every permanent mapping, active
// or not — mirroring listRegisteredClients's flat scan.
func (b *Broker) ListRegisteredClients(fn func(id wire.ClientID, serial string, registered bool)) {
	for _, m := range b.mappings {
		fn(wire.ClientID(m.ClientID), m.Serial, m.Registered)
	}
}

func (b *Broker) IsClientOnline(id wire.ClientID) bool {
	return b.connected[id]
}

// ClearRegistry wipes every persisted client mapping, mirroring
// clearStoredMappings.
func (b *Broker) ClearRegistry() error {
	b.mappings = nil
	b.nextPermanent = wire.PermanentIDMin
	b.nextTemporary = wire.TemporaryIDMin
	return b.db.Clear(store.NamespaceRegistry)
}

func (b *Broker) loadRegistry() {
	var doc store.RegistryDoc
	found, err := b.db.Load(store.NamespaceRegistry, &doc)
	if err != nil || !found || doc.Magic != store.MagicRegistry {
		// Missing or STORE_INVALID_MAGIC: treat as empty.
		b.mappings = nil
		b.nextPermanent = wire.PermanentIDMin
		b.nextTemporary = wire.TemporaryIDMin
		return
	}
	b.mappings = doc.ClientMapping
	b.nextPermanent = wire.ClientID(doc.NextClientID)
	b.nextTemporary = wire.ClientID(doc.NextTempID)
	if b.nextPermanent < wire.PermanentIDMin || b.nextPermanent > wire.PermanentIDMax {
		b.nextPermanent = wire.PermanentIDMin
	}
	if b.nextTemporary < wire.TemporaryIDMin || b.nextTemporary > wire.TemporaryIDMax {
		b.nextTemporary = wire.TemporaryIDMin
	}
}

// saveRegistry flushes the namespace synchronously on every mutation;
// no debouncing is applied by default.
func (b *Broker) saveRegistry() {
	doc := store.RegistryDoc{
		Magic:         store.MagicRegistry,
		NextClientID:  byte(b.nextPermanent),
		NextTempID:    byte(b.nextTemporary),
		ClientMapping: b.mappings,
	}
	_ = b.db.Save(store.NamespaceRegistry, doc)
}
