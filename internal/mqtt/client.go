package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler processes one message received on a subscribed topic.
type MessageHandler func(topic string, payload []byte) error

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client wraps a paho client with logging.
type Client struct {
	client paho.Client
	logger *zap.Logger
}

// Connect dials the broker and waits for the CONNACK.
func Connect(opts Options, logger *zap.Logger) (*Client, error) {
	po := paho.NewClientOptions()
	po.AddBroker(opts.Broker)
	po.SetClientID(opts.ClientID)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	po.SetAutoReconnect(true)
	po.SetCleanSession(true)
	po.SetConnectTimeout(10 * time.Second)
	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("[MQTT] Connection lost", zap.Error(err))
	})
	po.SetOnConnectHandler(func(_ paho.Client) {
		logger.Info("[MQTT] Connected", zap.String("broker", opts.Broker))
	})

	client := paho.NewClient(po)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &Client{client: client, logger: logger}, nil
}

// Subscribe registers handler for topic. Handler errors are logged and the
// message is dropped.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("[MQTT] Handle FAILED", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}
	return nil
}

// Disconnect waits up to 250ms for in-flight work.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
