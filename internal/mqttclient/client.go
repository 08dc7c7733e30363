package mqttclient

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler processes one inbound message. Returning an error logs the
// failure without tearing down the subscription.
type MessageHandler func(topic string, payload []byte) error

// Options carries broker connection settings for one client.
type Options struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client wraps a paho connection to a single broker. Subscriptions are kept
// in a registry and replayed after every reconnect, since clean sessions do
// not survive a connection loss.
type Client struct {
	logger    *zap.Logger
	brokerURL string

	mu   sync.Mutex
	subs map[string]subscription

	client mqtt.Client
}

// Connect dials the broker and blocks until the session is established or
// the connect timeout expires.
func Connect(opts Options, logger *zap.Logger) (*Client, error) {
	c := &Client{
		logger:    logger,
		brokerURL: opts.BrokerURL,
		subs:      make(map[string]subscription),
	}

	mqttOpts := mqtt.NewClientOptions()
	mqttOpts.AddBroker(opts.BrokerURL)
	mqttOpts.SetClientID(opts.ClientID)

	if opts.Username != "" {
		mqttOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		mqttOpts.SetPassword(opts.Password)
	}

	mqttOpts.SetAutoReconnect(true)
	mqttOpts.SetCleanSession(true)
	if opts.ConnectTimeout > 0 {
		mqttOpts.SetConnectTimeout(opts.ConnectTimeout)
	}

	mqttOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost",
			zap.String("broker", opts.BrokerURL),
			zap.Error(err))
	})
	mqttOpts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", opts.BrokerURL))
		c.resubscribe(client)
	})

	c.client = mqtt.NewClient(mqttOpts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", opts.BrokerURL, token.Error())
	}

	return c, nil
}

// Subscribe registers the handler and subscribes on the live session.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, qos, c.wrapHandler(handler)); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Unsubscribe drops the topics from the registry and the live session.
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}

	return nil
}

// Disconnect waits briefly for in-flight work before dropping the session.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected checks the session state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) BrokerURL() string {
	return c.brokerURL
}

func (c *Client) wrapHandler(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Error("Failed to handle MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	}
}

func (c *Client) resubscribe(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		if token := client.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler)); token.Wait() && token.Error() != nil {
			c.logger.Error("Failed to restore subscription",
				zap.String("topic", topic),
				zap.Error(token.Error()))
		}
	}
}
