package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"facegate/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client publishes recognition events to an MQTT broker. It is
// publish-only; the application never subscribes.
type Client struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

// NewClient creates an MQTT client from the configuration.
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg}
}

// Start connects to the broker. Disabled clients start successfully and
// silently drop all publishes.
func (c *Client) Start() error {
	if !c.cfg.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.cfg.Broker, c.cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.cfg.ClientID)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Stop disconnects from the broker.
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.client.Disconnect(250)
	}
}

// IsConnected reports whether the client has an active broker connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.cfg.Broker, c.cfg.Port)
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// PublishEvent publishes a JSON payload under the configured topic prefix.
// Publishing while disabled or disconnected is a silent no-op so the
// recognition pipeline never depends on broker availability.
func (c *Client) PublishEvent(subtopic string, payload interface{}) {
	if !c.cfg.Enabled || !c.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("Failed to marshal MQTT payload: %v", err)
		return
	}

	topic := fmt.Sprintf("%s/%s", c.cfg.TopicPrefix, subtopic)
	token := c.client.Publish(topic, 1, false, data)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish to %s: %v", topic, token.Error())
		return
	}
	log.Debugf("Published MQTT event to %s", topic)
}
