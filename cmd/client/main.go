package main

import (
	"context"
	"time"

	"github.com/cankit/canpubsub/internal/candrv"
	"github.com/cankit/canpubsub/internal/client"
	"github.com/cankit/canpubsub/internal/config"
	"github.com/cankit/canpubsub/internal/event"
	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/utils"
	"github.com/cankit/canpubsub/internal/wire"
)

type canCleaner struct{ can candrv.Controller }

func (c *canCleaner) Invoke(_ context.Context) error { return c.can.Close() }

func main() {
	cfg, err := config.ReadConfig()
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		return
	}
	loggerCallback := logger.Init()
	logger.Debug("Client initializing...")
	cleaner := event.NewCleaner()
	cleaner.Init(loggerCallback)

	can, err := candrv.DialSocketCAN(cfg.CAN.Interface)
	if err != nil {
		logger.FatalF("Error occured while opening CAN interface %s, details: %v", cfg.CAN.Interface, err)
		return
	}
	cleaner.Add(&canCleaner{can: can})

	c := client.New(can)
	c.SetCallbacks(client.Callbacks{
		OnMessage: func(hash uint16, name string, payload []byte) {
			logger.InfoF("Message on %s (0x%04X): %s", name, hash, string(payload))
		},
		OnDirectMessage: func(senderID wire.ClientID, payload []byte) {
			logger.InfoF("DIRECT_MSG from 0x%02X: %s", byte(senderID), string(payload))
		},
		OnPeerMessage: func(senderID wire.ClientID, payload []byte) {
			logger.InfoF("PEER_MSG from 0x%02X: %s", byte(senderID), string(payload))
		},
		OnConnect: func() {
			logger.InfoF("Connected with client id 0x%02X", byte(c.ClientID()))
		},
		OnDisconnect: func() {
			logger.Info("Disconnected")
		},
	})

	connectTimeout := utils.ParseStringTime(cfg.Client.ConnectTimeout)
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}

	var connected bool
	if cfg.Client.Serial != "" {
		connected = c.ConnectWithSerial(cfg.Client.Serial, connectTimeout)
	} else {
		connected = c.Connect(connectTimeout)
	}
	if !connected {
		logger.FatalF("Timed out waiting for ID_RESPONSE from the broker")
		return
	}

	for _, topic := range cfg.Client.SubscribeTopics {
		if c.Subscribe(topic) {
			logger.InfoF("Subscribed to %s", topic)
		}
	}

	for {
		c.Loop()
		time.Sleep(time.Millisecond)
	}
}
