package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roaia/internal/model"
)

const (
	// LocationKeyPrefix is the key prefix for last known positions
	LocationKeyPrefix = "gps:last:"

	// DefaultLocationTTL bounds how long a position is served after the glasses go quiet
	DefaultLocationTTL = 10 * time.Minute
)

// LocationCache keeps the last reported position of each pair of glasses.
type LocationCache interface {
	// Set stores loc and refreshes the TTL.
	// Uses pipeline: HSET + EXPIRE
	Set(ctx context.Context, loc model.GPSLocation) error

	// Get returns the last position or model.ErrLocationNotFound.
	Get(ctx context.Context, glassesID string) (*model.GPSLocation, error)

	// Delete forgets the position, e.g. when the profile is reset.
	Delete(ctx context.Context, glassesID string) error
}

// RedisLocationCache implements LocationCache using Redis hashes.
type RedisLocationCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocationCache creates a LocationCache backed by Redis.
func NewLocationCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocationCache {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return &RedisLocationCache{client: client, ttl: ttl, logger: logger}
}

func locationKey(glassesID string) string {
	return LocationKeyPrefix + glassesID
}

func (c *RedisLocationCache) Set(ctx context.Context, loc model.GPSLocation) error {
	key := locationKey(loc.GlassesID)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key,
		"lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
		"lng", strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		"ts", loc.RecordedAt.UnixMilli(),
	)
	pipe.Expire(ctx, key, c.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Error("[LocationCache] Set FAILED", zap.String("glasses_id", loc.GlassesID), zap.Error(err))
		return fmt.Errorf("store location: %w", err)
	}
	return nil
}

func (c *RedisLocationCache) Get(ctx context.Context, glassesID string) (*model.GPSLocation, error) {
	fields, err := c.client.HGetAll(ctx, locationKey(glassesID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrLocationNotFound
		}
		return nil, fmt.Errorf("get location: %w", err)
	}
	if len(fields) == 0 {
		return nil, model.ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(fields["lat"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(fields["lng"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude: %w", err)
	}
	ts, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	return &model.GPSLocation{
		GlassesID:  glassesID,
		Latitude:   lat,
		Longitude:  lng,
		RecordedAt: time.UnixMilli(ts).UTC(),
	}, nil
}

func (c *RedisLocationCache) Delete(ctx context.Context, glassesID string) error {
	if err := c.client.Del(ctx, locationKey(glassesID)).Err(); err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	return nil
}
