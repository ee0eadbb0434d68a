// Package store defines the persistent key/value contract the broker
// uses to save the registry, stored subscriptions, stored topic names,
// and ping configuration across restarts, plus the fixed-size data
// model each namespace round-trips.
package store

import "errors"

// Namespace names, one per persisted table.
const (
	NamespaceRegistry     = "registry"
	NamespaceSubscription = "stored_subscriptions"
	NamespaceTopicNames   = "stored_topic_names"
	NamespacePingConfig   = "ping_config"
)

// Magic sentinels guard each namespace against a partially-written or
// foreign document; a mismatch is treated as STORE_INVALID_MAGIC and
// the namespace is loaded as empty rather than surfaced as an error.
const (
	MagicRegistry     = 0xCABE
	MagicSubscription = 0xCAFF
	MagicTopicNames   = 0xCA7E
)

var ErrNotFound = errors.New("store: namespace not found")

// Store persists one document per namespace. Load reports found=false
// (not an error) when the namespace has never been written or cannot be
// decoded; it does not check magic sentinels — the broker's load
// functions do, and treat a mismatch as an empty table, never a fault.
type Store interface {
	Load(namespace string, out any) (found bool, err error)
	Save(namespace string, value any) error
	Clear(namespace string) error
}

// RegistryDoc is the persisted form of the client registry.
type RegistryDoc struct {
	Magic         uint32          `bson:"magic" json:"magic"`
	NextClientID  byte            `bson:"next_client_id" json:"next_client_id"`
	NextTempID    byte            `bson:"next_temp_id" json:"next_temp_id"`
	ClientMapping []ClientMapping `bson:"mappings" json:"mappings"`
}

// ClientMapping binds a permanent client ID to its serial number.
type ClientMapping struct {
	ClientID   byte   `bson:"client_id" json:"client_id"`
	Serial     string `bson:"serial" json:"serial"`
	Registered bool   `bson:"registered" json:"registered"`
}

// SubscriptionDoc is the persisted form of every permanent client's
// stored topic set, replayed at reconnect.
type SubscriptionDoc struct {
	Magic       uint32                `bson:"magic" json:"magic"`
	Subscribers []ClientSubscriptions `bson:"subscribers" json:"subscribers"`
}

// ClientSubscriptions is one client's stored topic-hash set.
type ClientSubscriptions struct {
	ClientID byte     `bson:"client_id" json:"client_id"`
	Topics   []uint16 `bson:"topics" json:"topics"`
}

// TopicNamesDoc recovers human-readable names for hashes seen on the wire.
type TopicNamesDoc struct {
	Magic  uint32            `bson:"magic" json:"magic"`
	Topics []StoredTopicName `bson:"topics" json:"topics"`
}

// StoredTopicName is one hash->name mapping the broker has learned.
type StoredTopicName struct {
	Hash   uint16 `bson:"hash" json:"hash"`
	Name   string `bson:"name" json:"name"`
	Active bool   `bson:"active" json:"active"`
}

// PingConfigDoc is the persisted liveness configuration.
type PingConfigDoc struct {
	AutoPingEnabled bool `bson:"auto_ping_enabled" json:"auto_ping_enabled"`
	IntervalMillis  int  `bson:"interval_millis" json:"interval_millis"`
	MaxMissedPings  int  `bson:"max_missed_pings" json:"max_missed_pings"`
}

// DefaultPingConfig is the factory default: disabled, 5000ms interval, 2 max missed.
func DefaultPingConfig() PingConfigDoc {
	return PingConfigDoc{AutoPingEnabled: false, IntervalMillis: 5000, MaxMissedPings: 2}
}
