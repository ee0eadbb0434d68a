// Package mongostore is the MongoDB-backed store.Store: connection setup
// via Connect, and a ReplaceOne+SetUpsert(true) upsert idiom with
// duplicate-key/no-documents error classification.
package mongostore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cankit/canpubsub/internal/config"
	"github.com/cankit/canpubsub/internal/event"
	"github.com/cankit/canpubsub/internal/logger"
	"github.com/cankit/canpubsub/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	mongoevent "go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StateCollectionName holds one document per namespace, keyed by "namespace".
const StateCollectionName = "state"

// MongoStore persists one document per namespace in a single collection.
type MongoStore struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

type closeCallback struct{ store *MongoStore }

func (c *closeCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	return c.store.client.Disconnect(ctx)
}

// Connect dials MongoDB using the [database] section of config.json and
// registers a Cleaner callback to disconnect on shutdown.
func Connect() (*MongoStore, error) {
	logger.DebugF("Connecting to database...")
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}

	opTimeout := utils.ParseStringTime(cfg.Database.OperationTimeout)

	encodedUser := url.QueryEscape(cfg.Database.Username)
	encodedPass := url.QueryEscape(cfg.Database.Password)
	databaseURL := fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass, cfg.Database.Host, cfg.Database.Port)

	clientOptions := options.Client().ApplyURI(databaseURL).SetAppName(cfg.AppName)
	clientOptions.SetMinPoolSize(cfg.Database.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.Database.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.ParseStringTime(cfg.Database.ConnectIdleTimeout))
	clientOptions.SetConnectTimeout(utils.ParseStringTime(cfg.Database.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.ParseStringTime(cfg.Database.SocketTimeout))
	clientOptions.SetHeartbeatInterval(utils.ParseStringTime(cfg.Database.Heartbeat))
	if cfg.Database.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{InsecureSkipVerify: false})
	}
	clientOptions.SetPoolMonitor(&mongoevent.PoolMonitor{
		Event: func(evt *mongoevent.PoolEvent) {
			switch evt.Type {
			case mongoevent.ConnectionCreated:
				logger.DebugF("Database connection created: %+v", evt)
			case mongoevent.ConnectionClosed:
				logger.DebugF("Database connection closed: %+v", evt)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %v", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %v", err)
	}

	db := client.Database(cfg.Database.Database)
	collection := db.Collection(StateCollectionName)

	_, err = collection.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "namespace", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("state_namespace_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("error occured while creating database indexes: %v", err)
	}

	s := &MongoStore{client: client, db: db, operationTimeout: opTimeout}
	event.NewCleaner().Add(&closeCallback{store: s})
	return s, nil
}

type stateDoc struct {
	Namespace string `bson:"namespace"`
	Payload   bson.M `bson:"payload"`
}

func (s *MongoStore) Load(namespace string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.operationTimeout)
	defer cancel()

	var doc stateDoc
	start := time.Now()
	err := s.db.Collection(StateCollectionName).FindOne(ctx, bson.D{{Key: "namespace", Value: namespace}}).Decode(&doc)
	logger.DebugF("state query cost: %v", time.Since(start))

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("database operation failed: %w", err)
	}

	raw, err := bson.Marshal(doc.Payload)
	if err != nil {
		return false, fmt.Errorf("database operation failed: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		logger.ErrorF("mongostore: namespace %s failed to decode, treating as empty: %v", namespace, err)
		return false, nil
	}
	return true, nil
}

func (s *MongoStore) Save(namespace string, value any) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.operationTimeout)
	defer cancel()

	raw, err := bson.Marshal(value)
	if err != nil {
		return err
	}
	var payload bson.M
	if err := bson.Unmarshal(raw, &payload); err != nil {
		return err
	}

	filter := bson.D{{Key: "namespace", Value: namespace}}
	doc := stateDoc{Namespace: namespace, Payload: payload}
	opts := options.Replace().SetUpsert(true)

	result, err := s.db.Collection(StateCollectionName).ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("unique key conflicts: %w", err)
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	logger.DebugF("state saved: namespace=%s, matched=%d, modified=%d, upserted=%v",
		namespace, result.MatchedCount, result.ModifiedCount, result.UpsertedID != nil)
	return nil
}

func (s *MongoStore) Clear(namespace string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.operationTimeout)
	defer cancel()

	filter := bson.D{{Key: "namespace", Value: namespace}}
	result, err := s.db.Collection(StateCollectionName).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("database operation failed: %w", err)
	}
	logger.DebugF("state cleared: namespace=%s, deleted=%d", namespace, result.DeletedCount)
	return nil
}
