package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/keyxmakerx/campus/internal/config"
)

// NewMongo connects to cfg.MongoURI and returns the client together with
// the configured database. The caller owns the client and must Disconnect
// it on shutdown.
func NewMongo(ctx context.Context, cfg config.DatabaseConfig) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(uint64(max(cfg.MaxOpenConns, 1))).
		SetServerSelectionTimeout(10 * time.Second))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("pinging mongo: %w", err)
	}

	return client, client.Database(cfg.MongoDatabase), nil
}
