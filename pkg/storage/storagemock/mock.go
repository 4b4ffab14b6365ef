package storagemock

import (
	"context"
	"time"

	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertReadings(ctx context.Context, readings []types.Reading) error {
	args := m.Called(ctx, readings)
	return args.Error(0)
}

func (m *MockDatabase) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	args := m.Called(ctx, deviceID, start, end)
	if len(args) > 0 {
		readings, _ := args.Get(0).([]types.Reading)
		return readings, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestReadings(ctx context.Context) ([]types.Reading, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		readings, _ := args.Get(0).([]types.Reading)
		return readings, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestReadingTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(time.Time), args.Error(1)
	}
	return time.Time{}, nil
}

func (m *MockDatabase) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	args := m.Called(ctx, cutoff)
	return args.Int(0), args.Error(1)
}

func (m *MockDatabase) UpsertDevice(ctx context.Context, device types.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDatabase) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.Device), args.Error(1)
	}
	return types.Device{}, nil
}

func (m *MockDatabase) ListDevices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		devices, _ := args.Get(0).([]types.Device)
		return devices, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
