package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// Client is the shared Redis connection pool used by the location cache,
// the GPS relay and the event queue.
type Client struct {
	*redis.Client
}

// Connect parses a redis:// URL, opens the pool and verifies it with PING.
// Example: redis://:password@localhost:6379/0
func Connect(ctx context.Context, redisURL string, log *zap.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := &Client{Client: redis.NewClient(opts)}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Client.Ping(pingCtx).Err(); err != nil {
		_ = c.Client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info("Connected to redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return c, nil
}
