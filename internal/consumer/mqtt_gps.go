package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"roaia/internal/metrics"
	"roaia/internal/model"
	"roaia/internal/mqtt"
)

// Subscriber is the part of the MQTT client the consumer needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// LocationPublisher accepts validated positions.
type LocationPublisher interface {
	Publish(ctx context.Context, loc model.GPSLocation) error
}

type gpsPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	// Milliseconds since epoch; optional.
	Timestamp int64 `json:"timestamp"`
}

// MQTTGPSConsumer forwards positions reported by glasses over MQTT to the relay.
// The topic must contain one "+" wildcard that matches the glasses id,
// e.g. roaia/glasses/+/gps.
type MQTTGPSConsumer struct {
	topic   string
	idIndex int
	client  Subscriber
	relay   LocationPublisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	baseCtx context.Context
}

func NewMQTTGPSConsumer(topic string, client Subscriber, relay LocationPublisher, m *metrics.Metrics, logger *zap.Logger) (*MQTTGPSConsumer, error) {
	idx := -1
	for i, part := range strings.Split(topic, "/") {
		if part == "+" {
			if idx != -1 {
				return nil, fmt.Errorf("gps topic %q has more than one wildcard", topic)
			}
			idx = i
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("gps topic %q has no + wildcard for the glasses id", topic)
	}

	return &MQTTGPSConsumer{
		topic:   topic,
		idIndex: idx,
		client:  client,
		relay:   relay,
		metrics: m,
		logger:  logger,
		baseCtx: context.Background(),
	}, nil
}

// Start subscribes and blocks until ctx is cancelled.
func (c *MQTTGPSConsumer) Start(ctx context.Context) error {
	c.baseCtx = ctx
	if err := c.client.Subscribe(c.topic, 1, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to gps topic: %w", err)
	}
	c.logger.Info("[MQTTGPS] Consumer started", zap.String("topic", c.topic))

	<-ctx.Done()

	if err := c.client.Unsubscribe(c.topic); err != nil {
		c.logger.Warn("[MQTTGPS] Unsubscribe FAILED", zap.Error(err))
	}
	c.logger.Info("[MQTTGPS] Consumer stopped")
	return nil
}

func (c *MQTTGPSConsumer) handleMessage(topic string, payload []byte) error {
	loc, err := c.parse(topic, payload)
	if err != nil {
		c.metrics.GPSPosition("mqtt", "rejected")
		return err
	}

	if err := c.relay.Publish(c.baseCtx, loc); err != nil {
		c.metrics.GPSPosition("mqtt", "error")
		return fmt.Errorf("relay gps for %s: %w", loc.GlassesID, err)
	}

	c.metrics.GPSPosition("mqtt", "ok")
	return nil
}

func (c *MQTTGPSConsumer) parse(topic string, payload []byte) (model.GPSLocation, error) {
	parts := strings.Split(topic, "/")
	if len(parts) <= c.idIndex || parts[c.idIndex] == "" {
		return model.GPSLocation{}, fmt.Errorf("invalid topic format: %s", topic)
	}

	var p gpsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return model.GPSLocation{}, fmt.Errorf("failed to unmarshal gps payload: %w", err)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return model.GPSLocation{}, fmt.Errorf("gps payload missing coordinates: %w", model.ErrInvalidCoordinates)
	}

	loc := model.GPSLocation{
		GlassesID: parts[c.idIndex],
		Latitude:  *p.Latitude,
		Longitude: *p.Longitude,
	}
	if p.Timestamp > 0 {
		loc.RecordedAt = time.UnixMilli(p.Timestamp).UTC()
	}
	return loc, nil
}
