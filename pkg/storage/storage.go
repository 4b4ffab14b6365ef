package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
)

// Database defines the interface for persisting readings and the device
// registry.
type Database interface {
	// Readings
	// InsertReadings writes a tick's readings atomically: either all of them
	// are stored or none are.
	InsertReadings(ctx context.Context, readings []types.Reading) error
	// GetReadings returns readings in [start, end) ordered by time. An empty
	// deviceID returns every device.
	GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error)
	// GetLatestReadings returns the most recent reading of each device.
	GetLatestReadings(ctx context.Context) ([]types.Reading, error)
	// GetLatestReadingTime returns the zero time if there are no readings.
	GetLatestReadingTime(ctx context.Context) (time.Time, error)
	// DeleteReadingsBefore removes readings older than cutoff and returns how
	// many were removed.
	DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Devices
	UpsertDevice(ctx context.Context, device types.Device) error
	GetDevice(ctx context.Context, deviceID string) (types.Device, error)
	ListDevices(ctx context.Context) ([]types.Device, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: sqlite, firestore)")

	var p struct{ Database }

	sq := configuredSQLite()
	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
			p.Database = sq
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
