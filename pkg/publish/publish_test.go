package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

var testReadings = []types.Reading{
	{
		DeviceID:   "kitchen_fridge",
		DeviceName: "Kitchen Fridge",
		Timestamp:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		State:      types.StateActive,
		PowerWatts: 150,
		Voltage:    120,
		EnergyKWH:  0.00125,
		Rate:       0.12,
		Cost:       0.00015,
	},
	{
		DeviceID:   "microwave",
		DeviceName: "Microwave",
		Timestamp:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		State:      types.StateStandby,
		PowerWatts: 2,
		Voltage:    120,
	},
}

type fakePublisher struct {
	name  string
	err   error
	calls int
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) Publish(ctx context.Context, readings []types.Reading) error {
	f.calls++
	return f.err
}

func (f *fakePublisher) Close() error { return f.err }

func TestMulti(t *testing.T) {
	ok := &fakePublisher{name: "ok"}
	bad := &fakePublisher{name: "bad", err: errors.New("down")}
	m := Multi{bad, ok}

	err := m.Publish(context.Background(), testReadings)
	assert.ErrorContains(t, err, "bad: down")
	assert.Equal(t, 1, ok.calls)
	assert.Equal(t, 1, bad.calls)

	assert.NoError(t, m.Publish(context.Background(), nil))
	assert.Equal(t, 1, ok.calls)

	assert.Error(t, m.Close())
	assert.NoError(t, Multi{}.Publish(context.Background(), testReadings))
}

func TestOpenNothingEnabled(t *testing.T) {
	m, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.Empty(t, m)
}

type fakePointWriter struct {
	points []*write.Point
}

func (f *fakePointWriter) WritePoint(ctx context.Context, point ...*write.Point) error {
	f.points = append(f.points, point...)
	return nil
}

func TestInfluxPublish(t *testing.T) {
	w := &fakePointWriter{}
	i := &Influx{writer: w}
	require.NoError(t, i.Publish(context.Background(), testReadings))
	require.Len(t, w.points, 2)

	p := w.points[0]
	assert.Equal(t, influxMeasurement, p.Name())
	assert.Equal(t, testReadings[0].Timestamp, p.Time())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{
		"device_id":   "kitchen_fridge",
		"device_name": "Kitchen Fridge",
		"state":       "active",
	}, tags)
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 150.0, fields["power_watts"])
	assert.Equal(t, 0.00015, fields["cost"])
	assert.Len(t, fields, 6)
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTTClient struct {
	mu           sync.Mutex
	topics       []string
	payloads     [][]byte
	err          error
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return newFakeToken(c.err)
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTPublish(t *testing.T) {
	c := &fakeMQTTClient{}
	m := &MQTT{client: c, prefix: "homewatt/readings"}
	require.NoError(t, m.Publish(context.Background(), testReadings))
	assert.Equal(t, []string{"homewatt/readings/kitchen_fridge", "homewatt/readings/microwave"}, c.topics)

	var got types.Reading
	require.NoError(t, json.Unmarshal(c.payloads[0], &got))
	assert.Equal(t, testReadings[0], got)

	c.err = errors.New("not connected")
	assert.ErrorContains(t, m.Publish(context.Background(), testReadings), "not connected")

	require.NoError(t, m.Close())
	assert.True(t, c.disconnected)
}

type fakeMessageWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeMessageWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublish(t *testing.T) {
	w := &fakeMessageWriter{}
	k := &Kafka{writer: w}
	require.NoError(t, k.Publish(context.Background(), testReadings))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, []byte("kitchen_fridge"), w.msgs[0].Key)
	assert.Equal(t, testReadings[0].Timestamp, w.msgs[0].Time)

	var got types.Reading
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &got))
	assert.Equal(t, "microwave", got.DeviceID)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}
