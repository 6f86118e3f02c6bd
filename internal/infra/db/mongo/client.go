package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// Client wraps one mongo database handle; all chat stores share it.
type Client struct {
	DB *mongo.Database
}

// New connects and selects the database. Retryable writes stay on so the
// unread $inc and upsert paths survive primary elections.
func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	conn, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: conn.Database(database)}, nil
}

// Ping backs the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

// Close releases the underlying connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}
