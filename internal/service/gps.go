package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"roaia/internal/cache"
	"roaia/internal/model"
)

// GPSChannelPrefix prefixes the pubsub channel of each pair of glasses.
const GPSChannelPrefix = "gps:"

// subscriberBuffer is how many positions a slow watcher may lag behind before
// positions are dropped for it.
const subscriberBuffer = 16

// GPSRelay fans positions reported by the glasses out to caretakers watching them.
type GPSRelay struct {
	client   *redis.Client
	location cache.LocationCache
	logger   *zap.Logger
	now      func() time.Time
}

func NewGPSRelay(client *redis.Client, location cache.LocationCache, logger *zap.Logger) *GPSRelay {
	return &GPSRelay{client: client, location: location, logger: logger, now: time.Now}
}

func gpsChannel(glassesID string) string {
	return GPSChannelPrefix + glassesID
}

// Publish validates loc, records it as the last known position and announces it.
func (r *GPSRelay) Publish(ctx context.Context, loc model.GPSLocation) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if loc.RecordedAt.IsZero() {
		loc.RecordedAt = r.now().UTC()
	}

	if err := r.location.Set(ctx, loc); err != nil {
		return err
	}

	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	if err := r.client.Publish(ctx, gpsChannel(loc.GlassesID), payload).Err(); err != nil {
		return fmt.Errorf("publish location: %w", err)
	}
	return nil
}

// Last returns the last known position of the glasses.
func (r *GPSRelay) Last(ctx context.Context, glassesID string) (*model.GPSLocation, error) {
	return r.location.Get(ctx, glassesID)
}

// Subscribe streams positions of one pair of glasses until ctx is done.
// The returned channel is closed when the subscription ends.
func (r *GPSRelay) Subscribe(ctx context.Context, glassesID string) (<-chan model.GPSLocation, error) {
	if glassesID == "" {
		return nil, model.ErrGlassesIDRequired
	}

	sub := r.client.Subscribe(ctx, gpsChannel(glassesID))
	// Wait for the subscription confirmation so no position published after
	// Subscribe returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan model.GPSLocation, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var loc model.GPSLocation
				if err := json.Unmarshal([]byte(msg.Payload), &loc); err != nil {
					r.logger.Warn("[GPSRelay] Bad payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- loc:
				default:
					r.logger.Debug("[GPSRelay] Watcher lagging, position dropped", zap.String("glasses_id", glassesID))
				}
			}
		}
	}()

	return out, nil
}
