package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher defines the interface for publishing events to a stream.
type Publisher interface {
	// Publish adds an event to the specified stream.
	// Returns the message ID assigned by Redis.
	Publish(ctx context.Context, stream string, event Event) (messageID string, err error)
}

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewPublisher creates a new Publisher backed by Redis Streams.
func NewPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish adds an event to the stream using XADD with an auto-generated ID.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		p.logger.Error("[Publisher] Publish FAILED",
			zap.String("stream", stream),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	p.logger.Debug("[Publisher] Publish OK",
		zap.String("stream", stream),
		zap.String("type", event.Type),
		zap.String("msg_id", messageID),
		zap.Duration("duration", time.Since(startTime)),
	)
	return messageID, nil
}

// PublishContactAdded queues the new-contact notification for a wearer.
func (p *RedisPublisher) PublishContactAdded(ctx context.Context, glassesID, contactName string) error {
	_, err := p.Publish(ctx, StreamEvents, NewContactAddedEvent(glassesID, contactName))
	return err
}

// PublishEmail queues an email for delivery by a worker.
func (p *RedisPublisher) PublishEmail(ctx context.Context, to, subject, htmlBody string) error {
	_, err := p.Publish(ctx, StreamEvents, NewEmailRequestedEvent(to, subject, htmlBody))
	return err
}
