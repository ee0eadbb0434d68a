package broker

import (
	"time"

	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/store"
	"github.com/cankit/canpubsub/internal/wire"
)

// SetPingConfig validates and installs the auto-ping configuration
// (interval in [1, 3_600_000) ms, max missed pings in [1, 254]), then
// persists it. An invalid value leaves the current configuration
// untouched and reports false.
func (b *Broker) SetPingConfig(enabled bool, intervalMillis, maxMissedPings int) bool {
	if intervalMillis < 1 || intervalMillis >= 3_600_000 {
		return false
	}
	if maxMissedPings < 1 || maxMissedPings > 254 {
		return false
	}
	b.autoPingEnabled = enabled
	b.pingInterval = time.Duration(intervalMillis) * time.Millisecond
	b.maxMissedPings = maxMissedPings
	if enabled {
		for _, m := range b.mappings {
			if m.Registered {
				if _, tracked := b.pingStates[wire.ClientID(m.ClientID)]; !tracked {
					b.pingStates[wire.ClientID(m.ClientID)] = &pingState{lastPongTime: b.now()}
				}
			}
		}
	} else {
		b.pingStates = make(map[wire.ClientID]*pingState)
	}
	b.savePingConfig()
	return true
}

func (b *Broker) loadPingConfig() {
	var doc store.PingConfigDoc
	found, err := b.db.Load(store.NamespacePingConfig, &doc)
	if err != nil || !found {
		doc = store.DefaultPingConfig()
	}
	b.autoPingEnabled = doc.AutoPingEnabled
	b.pingInterval = time.Duration(doc.IntervalMillis) * time.Millisecond
	b.maxMissedPings = doc.MaxMissedPings
}

func (b *Broker) savePingConfig() {
	doc := store.PingConfigDoc{
		AutoPingEnabled: b.autoPingEnabled,
		IntervalMillis:  int(b.pingInterval / time.Millisecond),
		MaxMissedPings:  b.maxMissedPings,
	}
	_ = b.db.Save(store.NamespacePingConfig, doc)
}

// resetPingState clears missed_pings and refreshes last_pong_time for
// clientID, called from trackClientActivity on any inbound frame.
func (b *Broker) resetPingState(clientID wire.ClientID) {
	if !b.autoPingEnabled {
		return
	}
	st, ok := b.pingStates[clientID]
	if !ok {
		st = &pingState{}
		b.pingStates[clientID] = st
	}
	st.missedPings = 0
	st.lastPongTime = b.now()
}

// sendPingWave emits PING to every tracked client and increments its
// missed_pings counter, mirroring the broker's half of the ping/pong
// exchange.
func (b *Broker) sendPingWave() {
	for clientID := range b.pingStates {
		b.send(wire.Ping, wire.EncodePingDown(clientID))
		b.pingStates[clientID].missedPings++
	}
}

// tickLiveness runs one liveness cycle: if the ping interval has
// elapsed, send a wave, then drop any client whose missed_pings has
// reached max_missed_pings from the connected set (registry untouched).
func (b *Broker) tickLiveness() {
	now := b.now()
	if now.Sub(b.lastPingWave) < b.pingInterval {
		return
	}
	b.lastPingWave = now
	b.sendPingWave()

	for clientID, st := range b.pingStates {
		if st.missedPings < b.maxMissedPings {
			continue
		}
		if !b.connected[clientID] {
			continue
		}
		delete(b.connected, clientID)
		logger.DebugF("broker: client 0x%02X missed %d pings, marking offline", byte(clientID), st.missedPings)
		if b.callbacks.OnClientDisconnect != nil {
			b.callbacks.OnClientDisconnect(clientID)
		}
	}
}
