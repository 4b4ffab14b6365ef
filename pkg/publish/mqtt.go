package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/homewatt/homewatt/pkg/types"
)

const mqttTimeout = 10 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each reading as JSON on <prefix>/<device_id>.
type MQTT struct {
	client mqttClient
	prefix string
}

// NewMQTT connects to broker.
func NewMQTT(broker, prefix string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("homewatt-" + uuid.New().String()).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}
	return &MQTT{client: client, prefix: prefix}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) topic(deviceID string) string {
	return m.prefix + "/" + deviceID
}

// Publish sends one message per reading and waits for each to be sent.
func (m *MQTT) Publish(ctx context.Context, readings []types.Reading) error {
	for _, r := range readings {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		token := m.client.Publish(m.topic(r.DeviceID), 0, false, payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to publish reading (device=%s): %w", r.DeviceID, err)
		}
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
