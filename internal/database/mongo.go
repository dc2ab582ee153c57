package database

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"legacy2norm/internal/source"
)

// Client owns the MongoDB connection lifecycle for a migration run.
// There is no automatic reconnection: an I/O failure during a batch
// propagates upward and fails the step.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewClient creates an unconnected client. Call Connect before use.
func NewClient(logger *zap.Logger) *Client {
	return &Client{logger: logger}
}

// Connect establishes the connection and verifies it with a ping.
func (c *Client) Connect(ctx context.Context, uri, dbName string) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return errors.Wrap(err, "connecting to mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return errors.Wrap(err, "pinging mongodb")
	}

	c.client = client
	c.db = client.Database(dbName)
	c.logger.Info("Connected to database", zap.String("database", dbName))
	return nil
}

// Disconnect releases the connection.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, "disconnecting from mongodb")
	}
	c.logger.Info("Disconnected from database")
	return nil
}

// Database returns the underlying database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Collection returns a batch iterator over the named source collection.
func (c *Client) Collection(name string) source.Collection {
	return source.NewMongoCollection(c.db.Collection(name))
}

// CountTagged counts documents in collection whose source field equals
// tag. Used by the verifier.
func (c *Client) CountTagged(ctx context.Context, collection, tag string) (int64, error) {
	n, err := c.db.Collection(collection).CountDocuments(ctx, bson.M{"source": tag})
	if err != nil {
		return 0, errors.Wrapf(err, "counting tagged documents in %s", collection)
	}
	return n, nil
}
