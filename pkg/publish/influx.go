package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/homewatt/homewatt/pkg/common"
	"github.com/homewatt/homewatt/pkg/types"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const influxMeasurement = "device_power"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx writes each reading as a point in an InfluxDB v2 bucket.
type Influx struct {
	client influxdb2.Client
	writer pointWriter
}

// NewInflux connects to InfluxDB and checks its health.
func NewInflux(ctx context.Context, url, token, org, bucket string) (*Influx, error) {
	opts := influxdb2.DefaultOptions().SetHTTPClient(common.HTTPClient(10 * time.Second))
	client := influxdb2.NewClientWithOptions(url, token, opts)
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to influxdb (url=%s): %w", url, err)
	}
	return &Influx{
		client: client,
		writer: client.WriteAPIBlocking(org, bucket),
	}, nil
}

func (i *Influx) Name() string { return "influxdb" }

func readingPoint(r types.Reading) *write.Point {
	return write.NewPoint(
		influxMeasurement,
		map[string]string{
			"device_id":   r.DeviceID,
			"device_name": r.DeviceName,
			"state":       string(r.State),
		},
		map[string]interface{}{
			"power_watts":  r.PowerWatts,
			"voltage":      r.Voltage,
			"current_amps": r.CurrentAmps,
			"energy_kwh":   r.EnergyKWH,
			"cost":         r.Cost,
			"rate":         r.Rate,
		},
		r.Timestamp,
	)
}

// Publish writes all readings in one request.
func (i *Influx) Publish(ctx context.Context, readings []types.Reading) error {
	points := make([]*write.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, readingPoint(r))
	}
	if err := i.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}
	return nil
}

func (i *Influx) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}
