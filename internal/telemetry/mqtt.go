package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/xid"

	"github.com/dr-isosan/LifeNode/internal/logging"
)

// MQTTConfig governs the optional MQTT bridge. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Enabled reports whether a broker has been configured.
func (c MQTTConfig) Enabled() bool { return c.Broker != "" }

// MQTTConfigFromEnv pulls bridge configuration from environment variables,
// using sensible defaults when unset.
func MQTTConfigFromEnv() MQTTConfig {
	clientID := os.Getenv("LIFENODE_MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = "lifenode-" + xid.New().String()
	}
	prefix := os.Getenv("LIFENODE_MQTT_TOPIC_PREFIX")
	if prefix == "" {
		prefix = "lifenode"
	}

	var qos byte
	if raw := os.Getenv("LIFENODE_MQTT_QOS"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 && parsed <= 2 {
			qos = byte(parsed)
		}
	}

	return MQTTConfig{
		Broker:      os.Getenv("LIFENODE_MQTT_BROKER"),
		ClientID:    clientID,
		TopicPrefix: prefix,
		QoS:         qos,
	}
}

// MQTTPublisher forwards bus events to an MQTT broker, one topic per event
// type under the configured prefix.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger logging.Logger
}

// NewMQTTPublisher connects to the configured broker.
func NewMQTTPublisher(cfg MQTTConfig, logger logging.Logger) (*MQTTPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("mqtt broker not configured")
	}
	if logger == nil {
		logger = logging.Noop()
	}

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	return &MQTTPublisher{
		client: client,
		prefix: cfg.TopicPrefix,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// Publish sends one event to <prefix>/<event type> as JSON.
func (p *MQTTPublisher) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := p.prefix + "/" + string(e.Type)
	token := p.client.Publish(topic, p.qos, false, payload)
	token.Wait()
	return token.Error()
}

// Run pumps events to the broker until the channel closes or the context is
// cancelled. Publish failures are logged and skipped.
func (p *MQTTPublisher) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := p.Publish(e); err != nil {
				p.logger.Warn(ctx, "mqtt publish failed",
					logging.String("event_type", string(e.Type)),
					logging.Err(err),
				)
			}
		}
	}
}

// Close disconnects from the broker, allowing a short drain window.
func (p *MQTTPublisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
