package storage

import (
	"context"
	"testing"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReading(deviceID string, ts time.Time, watts float64) types.Reading {
	energy := watts / 1000 / 60
	return types.Reading{
		DeviceID:    deviceID,
		DeviceName:  deviceID + " name",
		Timestamp:   ts,
		State:       types.StateActive,
		PowerWatts:  watts,
		Voltage:     120,
		CurrentAmps: watts / 120,
		EnergyKWH:   energy,
		Rate:        0.12,
		Cost:        energy * 0.12,
	}
}

// testDatabase runs the behavior every provider must share.
func testDatabase(t *testing.T, db Database) {
	ctx := context.Background()
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	t.Run("Devices", func(t *testing.T) {
		fridge := types.Device{ID: "kitchen_fridge", Name: "Kitchen Fridge", BehaviorClass: types.BehaviorAlwaysOn, Location: "Kitchen", Active: true}
		tv := types.Device{ID: "living_room_tv", Name: "Living Room TV", BehaviorClass: types.BehaviorEntertainment, Active: true}
		require.NoError(t, db.UpsertDevice(ctx, tv))
		require.NoError(t, db.UpsertDevice(ctx, fridge))

		fridge.Location = "Garage"
		require.NoError(t, db.UpsertDevice(ctx, fridge))

		got, err := db.GetDevice(ctx, "kitchen_fridge")
		require.NoError(t, err)
		assert.Equal(t, fridge, got)

		devices, err := db.ListDevices(ctx)
		require.NoError(t, err)
		assert.Equal(t, []types.Device{fridge, tv}, devices)

		_, err = db.GetDevice(ctx, "missing")
		assert.ErrorIs(t, err, ErrDeviceNotFound)

		assert.Error(t, db.UpsertDevice(ctx, types.Device{}))
	})

	t.Run("Readings", func(t *testing.T) {
		latest, err := db.GetLatestReadingTime(ctx)
		require.NoError(t, err)
		assert.True(t, latest.IsZero())

		var batch []types.Reading
		for i := 0; i < 5; i++ {
			ts := base.Add(time.Duration(i) * time.Minute)
			batch = append(batch, testReading("kitchen_fridge", ts, 100+float64(i)), testReading("living_room_tv", ts, 2))
		}
		require.NoError(t, db.InsertReadings(ctx, batch))
		require.NoError(t, db.InsertReadings(ctx, nil))

		all, err := db.GetReadings(ctx, "", base, base.Add(5*time.Minute))
		require.NoError(t, err)
		assert.Len(t, all, 10)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp), "readings should be ordered by time")
		}
		assert.Equal(t, "kitchen_fridge", all[0].DeviceID)

		// end is exclusive
		fridge, err := db.GetReadings(ctx, "kitchen_fridge", base, base.Add(4*time.Minute))
		require.NoError(t, err)
		require.Len(t, fridge, 4)
		assert.Equal(t, batch[0], fridge[0])

		latestReadings, err := db.GetLatestReadings(ctx)
		require.NoError(t, err)
		require.Len(t, latestReadings, 2)
		assert.Equal(t, "kitchen_fridge", latestReadings[0].DeviceID)
		assert.Equal(t, 104.0, latestReadings[0].PowerWatts)
		assert.Equal(t, base.Add(4*time.Minute), latestReadings[1].Timestamp)

		latest, err = db.GetLatestReadingTime(ctx)
		require.NoError(t, err)
		assert.Equal(t, base.Add(4*time.Minute), latest)

		deleted, err := db.DeleteReadingsBefore(ctx, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 4, deleted)

		remaining, err := db.GetReadings(ctx, "", base.Add(-time.Hour), base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, remaining, 6)
	})

	t.Run("FailedInsertStoresNothing", func(t *testing.T) {
		ts := base.Add(24 * time.Hour)
		bad := []types.Reading{
			testReading("kitchen_fridge", ts, 120),
			testReading("", ts, 5),
		}
		assert.Error(t, db.InsertReadings(ctx, bad))

		got, err := db.GetReadings(ctx, "", ts, ts.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
