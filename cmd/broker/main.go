package main

import (
	"context"
	"time"

	"github.com/cankit/canpubsub/internal/broker"
	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/config"
	"github.com/cankit/canpubsub/internal/event"
	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/store/mongostore"
	"github.com/cankit/canpubsub/internal/utils"
	"github.com/cankit/canpubsub/internal/wire"
)

// canCleaner adapts candrv.Controller.Close to event.Callable.
type canCleaner struct{ can candrv.Controller }

func (c *canCleaner) Invoke(_ context.Context) error { return c.can.Close() }

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Broker initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	db, err := mongostore.Connect()
	if err != nil {
		logger.FatalF("Error occured while initializing database, details: %v", err)
		return
	}

	can, err := candrv.DialSocketCAN(cfg.CAN.Interface)
	if err != nil {
		logger.FatalF("Error occured while opening CAN interface %s, details: %v", cfg.CAN.Interface, err)
		return
	}
	cleaner.Add(&canCleaner{can: can})

	b := broker.New(can, db)
	b.SetCallbacks(broker.Callbacks{
		OnClientConnect: func(id wire.ClientID) {
			logger.InfoF("Client 0x%02X connected", byte(id))
		},
		OnClientDisconnect: func(id wire.ClientID) {
			logger.InfoF("Client 0x%02X went offline", byte(id))
		},
		OnPublish: func(hash uint16, name string, payload []byte) {
			logger.DebugF("PUBLISH %s (0x%04X): %d byte(s)", name, hash, len(payload))
		},
		OnDirectMessage: func(senderID wire.ClientID, payload []byte) {
			logger.DebugF("DIRECT_MSG from 0x%02X: %d byte(s)", byte(senderID), len(payload))
		},
	})

	if cfg.Ping.AutoPingEnabled {
		intervalMillis := int(utils.ParseStringTime(cfg.Ping.Interval) / time.Millisecond)
		if !b.SetPingConfig(true, intervalMillis, cfg.Ping.MaxMissed) {
			logger.WarnF("Invalid ping configuration (interval=%s, max_missed=%d), auto-ping stays disabled",
				cfg.Ping.Interval, cfg.Ping.MaxMissed)
		}
	}

	if err := b.Begin(); err != nil {
		logger.FatalF("Error occured while starting broker, details: %v", err)
		return
	}
	logger.InfoF("Broker listening on %s", cfg.CAN.Interface)

	for {
		b.Loop()
		time.Sleep(time.Millisecond)
	}
}
