// Package publish pushes classification results to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// MQTTPublisher publishes detections to {prefix}/detections/{label} and
// validation records to {prefix}/validation/{label}.
type MQTTPublisher struct {
	client mqtt.Client
	config MQTTConfig
}

// generateClientID creates a unique MQTT client ID
func generateClientID() string {
	return fmt.Sprintf("rtl_ml_%08x", utils.GenerateUniqueID())
}

// NewMQTTPublisher connects to the broker. Reconnects are handled by the client.
func NewMQTTPublisher(config MQTTConfig) (*MQTTPublisher, error) {
	logger := utils.GetLogger()
	if config.TopicPrefix == "" {
		config.TopicPrefix = "rtl_ml"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", config.Broker))
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(15*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return newMQTTPublisher(client, config), nil
}

func newMQTTPublisher(client mqtt.Client, config MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{client: client, config: config}
}

func (p *MQTTPublisher) Name() string {
	return "mqtt"
}

// Save publishes one detection.
func (p *MQTTPublisher) Save(ctx context.Context, detection models.Detection) error {
	return p.publish(ctx, p.topic("detections", detection.Label), p.config.Retain, detection)
}

// SaveReport publishes every validation record retained, so late subscribers
// see the latest report.
func (p *MQTTPublisher) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	for _, label := range report.Labels() {
		if err := p.publish(ctx, p.topic("validation", label), true, report[label]); err != nil {
			return err
		}
	}
	return nil
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, retain bool, payload any) error {
	if p == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT not connected")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	token := p.client.Publish(topic, p.config.QoS, retain, data)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) topic(kind, label string) string {
	return strings.Join([]string{p.config.TopicPrefix, kind, mqttSafe(label)}, "/")
}

// mqttSafe strips the topic wildcards and separators from a label.
func mqttSafe(label string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(label)
}

// Close disconnects gracefully from the broker.
func (p *MQTTPublisher) Close() error {
	if p != nil && p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
