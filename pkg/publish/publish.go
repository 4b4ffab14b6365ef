// Package publish fans stored readings out to optional external sinks.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Publisher sends a batch of readings somewhere outside the store.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, readings []types.Reading) error
	Close() error
}

// Multi publishes to every publisher it holds. A failing publisher does not
// stop the others.
type Multi []Publisher

// Publish sends readings to each publisher, logging and collecting failures.
func (m Multi) Publish(ctx context.Context, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, readings); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish readings",
				slog.String("publisher", p.Name()),
				slog.Int("count", len(readings)),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Config selects which sinks are enabled. A sink is enabled when its address
// is set.
type Config struct {
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	MQTTBroker      string
	MQTTTopicPrefix string

	KafkaBrokers []string
	KafkaTopic   string
}

// Configured registers the publisher flags.
func Configured() *Config {
	influxURL := lflag.String("influx-url", "", "InfluxDB v2 URL to write readings to (disabled if empty)")
	influxToken := lflag.String("influx-token", "", "InfluxDB API token")
	influxOrg := lflag.String("influx-org", "homewatt", "InfluxDB organization")
	influxBucket := lflag.String("influx-bucket", "readings", "InfluxDB bucket")
	mqttBroker := lflag.String("mqtt-broker", "", "MQTT broker to publish readings to, e.g. tcp://localhost:1883 (disabled if empty)")
	mqttPrefix := lflag.String("mqtt-topic-prefix", "homewatt/readings", "MQTT topic prefix, the device id is appended")
	kafkaBrokers := lflag.String("kafka-brokers", "", "Comma separated Kafka brokers to publish readings to (disabled if empty)")
	kafkaTopic := lflag.String("kafka-topic", "homewatt.readings", "Kafka topic for readings")

	c := &Config{}

	lflag.Do(func() {
		c.InfluxURL = *influxURL
		c.InfluxToken = *influxToken
		c.InfluxOrg = *influxOrg
		c.InfluxBucket = *influxBucket
		c.MQTTBroker = *mqttBroker
		c.MQTTTopicPrefix = strings.TrimSuffix(*mqttPrefix, "/")
		c.KafkaTopic = *kafkaTopic
		for _, b := range strings.Split(*kafkaBrokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.KafkaBrokers = append(c.KafkaBrokers, b)
			}
		}
		if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
			panic("kafka-topic cannot be empty when kafka-brokers is set")
		}
	})

	return c
}

// Open connects every enabled sink. Sinks that were opened are closed again
// if a later one fails.
func Open(ctx context.Context, cfg Config) (Multi, error) {
	var m Multi
	if cfg.InfluxURL != "" {
		p, err := NewInflux(ctx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = append(m, p)
	}
	if cfg.MQTTBroker != "" {
		p, err := NewMQTT(cfg.MQTTBroker, cfg.MQTTTopicPrefix)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = append(m, p)
	}
	if len(cfg.KafkaBrokers) > 0 {
		m = append(m, NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	for _, p := range m {
		log.Ctx(ctx).InfoContext(ctx, "publishing readings", slog.String("publisher", p.Name()))
	}
	return m, nil
}
