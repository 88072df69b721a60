package mongo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samancikme/fizika/internal/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	Client   *mongo.Client
	Database *mongo.Database
)

// IndexCreator is implemented by repositories that own collection indexes.
type IndexCreator interface {
	CreateIndexes(ctx context.Context) error
}

// InitMongoDB connects and pings the primary, retrying with a growing delay
// while the server is still coming up. The client is kept only once a ping
// succeeds.
func InitMongoDB(cfg *config.MongoDBConfig) error {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(cfg.AppName).
		SetMaxPoolSize(cfg.PoolSize).
		SetTimeout(cfg.Timeout)

	attempts := max(cfg.ConnectAttempts, 1)
	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := connect(clientOptions)
		if err == nil {
			Client = client
			Database = client.Database(cfg.Database)
			log.Printf("Successfully connected to MongoDB database: %s", cfg.Database)
			return nil
		}
		lastErr = err
		log.Printf("MongoDB not reachable (attempt %d/%d): %v", attempt, attempts, err)
		if attempt < attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("failed to connect to MongoDB after %d attempts: %w", attempts, lastErr)
}

func connect(clientOptions *options.ClientOptions) (*mongo.Client, error) {
	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes of every named repository. A failure on
// one collection does not stop the others; all failures are returned joined.
func EnsureIndexes(ctx context.Context, creators map[string]IndexCreator) error {
	var errs []error
	for name, creator := range creators {
		if err := creator.CreateIndexes(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Printf("Indexes ready for %s", name)
	}
	return errors.Join(errs...)
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context) error {
	if Client == nil {
		return errors.New("mongo client is not initialized")
	}
	return Client.Ping(ctx, readpref.Primary())
}

// CloseDB closes the MongoDB connection
func CloseDB() {
	if Client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := Client.Disconnect(ctx); err != nil {
		log.Printf("Error disconnecting from MongoDB: %v", err)
	}
}
