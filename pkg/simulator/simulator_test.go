package simulator

import (
	"testing"
	"time"

	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flatRate float64

func (f flatRate) RateAt(time.Time) float64 { return float64(f) }

func constantHourly(v float64) []float64 {
	h := make([]float64, 24)
	for i := range h {
		h[i] = v
	}
	return h
}

func burstProfile() types.DeviceProfile {
	return types.DeviceProfile{
		Name:              "Test Microwave",
		ID:                "test_microwave",
		BehaviorClass:     types.BehaviorBurst,
		Bands:             bands(1, 3, 100, 200, 800, 1200),
		HourlyActivity:    constantHourly(0.5),
		WeekendMultiplier: 1,
		NominalVoltage:    120,
	}
}

func fridgeProfile() types.DeviceProfile {
	return types.DeviceProfile{
		Name:              "Test Fridge",
		ID:                "test_fridge",
		BehaviorClass:     types.BehaviorAlwaysOn,
		Bands:             bands(35, 45, 120, 180, 180, 220),
		HourlyActivity:    constantHourly(0.8),
		WeekendMultiplier: 1,
		NominalVoltage:    120,
		DutyCycle:         45 * time.Minute,
	}
}

func washerProfile() types.DeviceProfile {
	return types.DeviceProfile{
		Name:              "Test Washer",
		ID:                "test_washer",
		BehaviorClass:     types.BehaviorApplianceCycle,
		Bands:             bands(1, 3, 400, 600, 600, 900),
		HourlyActivity:    constantHourly(1),
		WeekendMultiplier: 1,
		NominalVoltage:    120,
		CycleDuration:     20 * time.Minute,
		CycleStartChance:  1,
	}
}

func TestDefaultProfilesValid(t *testing.T) {
	profiles := DefaultProfiles()
	require.Len(t, profiles, 7)
	for _, p := range profiles {
		assert.NoError(t, p.Validate(), p.Name)
	}
	s, err := New(profiles, flatRate(0.12), Options{Interval: 30 * time.Second, Seed: 1, Perturb: true})
	require.NoError(t, err)
	readings := s.Tick(time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC))
	assert.Len(t, readings, 7)
	assert.Len(t, s.Devices(), 7)
}

func TestNewFailsFast(t *testing.T) {
	bad := fridgeProfile()
	bad.HourlyActivity = bad.HourlyActivity[:20]
	_, err := New([]types.DeviceProfile{burstProfile(), bad}, flatRate(0.1), Options{Interval: time.Minute})
	assert.ErrorIs(t, err, types.ErrInvalidProfile)

	_, err = New([]types.DeviceProfile{burstProfile(), burstProfile()}, flatRate(0.1), Options{Interval: time.Minute})
	assert.ErrorIs(t, err, types.ErrInvalidProfile)

	_, err = New(nil, flatRate(0.1), Options{Interval: time.Minute})
	assert.ErrorIs(t, err, types.ErrInvalidProfile)

	_, err = New([]types.DeviceProfile{burstProfile()}, nil, Options{Interval: time.Minute})
	assert.Error(t, err)

	_, err = New([]types.DeviceProfile{burstProfile()}, flatRate(0.1), Options{})
	assert.Error(t, err)
}

func TestTickReadingFields(t *testing.T) {
	schedule, err := tariff.NewSchedule(tariff.DefaultPlan(), time.UTC)
	require.NoError(t, err)
	s, err := New(DefaultProfiles(), schedule, Options{Interval: 30 * time.Second, Seed: 42})
	require.NoError(t, err)
	nominal := map[string]float64{}
	for _, p := range s.Profiles() {
		nominal[p.ID] = p.NominalVoltage
	}

	start := time.Date(2024, 7, 13, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 24*12; i++ {
		now := start.Add(time.Duration(i) * 5 * time.Minute)
		rate := schedule.RateAt(now)
		for _, r := range s.Tick(now) {
			require.Equal(t, now, r.Timestamp)
			assert.Equal(t, rate, r.Rate)
			// cost unity
			assert.Equal(t, tariff.Cost(r.EnergyKWH, rate), r.Cost)
			assert.InDelta(t, r.PowerWatts/1000*(30.0/3600), r.EnergyKWH, 1e-12)
			assert.InDelta(t, r.PowerWatts/r.Voltage, r.CurrentAmps, 1e-12)
			assert.GreaterOrEqual(t, r.PowerWatts, 0.0)
			assert.InDelta(t, nominal[r.DeviceID], r.Voltage, nominal[r.DeviceID]/60+1e-9)
		}
	}
}

func TestBurstBounds(t *testing.T) {
	tests := []struct {
		name     string
		activity float64
		seed     uint64
	}{
		{"half activity", 0.5, 7},
		{"full activity", 1, 7},
		{"full activity other seed", 1, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := burstProfile()
			p.Bands = bands(1, 3, 100, 200, 800, 1200)
			p.HourlyActivity = constantHourly(tt.activity)
			s, err := New([]types.DeviceProfile{p}, flatRate(0.12), Options{Interval: time.Minute, Seed: tt.seed})
			require.NoError(t, err)

			const ticks = 10000
			start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
			var standby, high int
			for i := 0; i < ticks; i++ {
				rs := s.Tick(start.Add(time.Duration(i) * time.Minute))
				require.Len(t, rs, 1)
				w := rs[0].PowerWatts
				assert.GreaterOrEqual(t, w, p.Bands.Standby.Min*0.9)
				assert.LessOrEqual(t, w, p.Bands.High.Max*1.1)
				if w >= p.Bands.Standby.Min*0.9 && w <= p.Bands.Standby.Max*1.1 {
					standby++
				}
				if rs[0].State == types.StateHigh {
					high++
				}
			}
			assert.GreaterOrEqual(t, float64(standby)/ticks, 0.95)
			// bursts still happen
			assert.Greater(t, high, 0)
		})
	}
}

func TestAlwaysOnDutyCycle(t *testing.T) {
	p := fridgeProfile()
	s, err := New([]types.DeviceProfile{p}, flatRate(0.12), Options{Interval: time.Minute, Seed: 3})
	require.NoError(t, err)

	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	var on int
	for i := 0; i < 45; i++ {
		r := s.Tick(start.Add(time.Duration(i) * time.Minute))[0]
		if r.State != types.StateStandby {
			on++
		}
		band := p.Bands.For(r.State)
		assert.GreaterOrEqual(t, r.PowerWatts, band.Min*0.9)
		assert.LessOrEqual(t, r.PowerWatts, band.Max*1.1)
	}
	// one third of each cycle
	assert.Equal(t, 15, on)
}

func TestApplianceCycleIsCoherent(t *testing.T) {
	p := washerProfile()
	s, err := New([]types.DeviceProfile{p}, flatRate(0.12), Options{Interval: time.Minute, Seed: 11})
	require.NoError(t, err)

	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	var cycleStart time.Time
	for i := 0; i < 100; i++ {
		now := start.Add(time.Duration(i) * time.Minute)
		if s.Tick(now)[0].State != types.StateStandby {
			cycleStart = now
			break
		}
	}
	require.False(t, cycleStart.IsZero(), "cycle never started")

	for i := 1; i < 20; i++ {
		r := s.Tick(cycleStart.Add(time.Duration(i) * time.Minute))[0]
		switch {
		case i <= 2:
			assert.Equal(t, types.StateActive, r.State, "ramp up minute %d", i)
		case i >= 5 && i <= 14:
			assert.Equal(t, types.StateHigh, r.State, "steady minute %d", i)
		case i >= 17:
			assert.Equal(t, types.StateActive, r.State, "wind down minute %d", i)
		default:
			assert.NotEqual(t, types.StateStandby, r.State, "minute %d", i)
		}
	}
}

func TestSeedDeterminism(t *testing.T) {
	newSim := func(seed uint64) *Simulator {
		s, err := New(DefaultProfiles(), flatRate(0.12), Options{Interval: time.Minute, Seed: seed, Perturb: true})
		require.NoError(t, err)
		return s
	}
	a, b, c := newSim(99), newSim(99), newSim(100)
	assert.Equal(t, uint64(99), a.Seed())

	now := time.Date(2024, 8, 1, 19, 0, 0, 0, time.UTC)
	var differs bool
	for i := 0; i < 10; i++ {
		at := now.Add(time.Duration(i) * time.Minute)
		ra, rb, rc := a.Tick(at), b.Tick(at), c.Tick(at)
		assert.Equal(t, ra, rb)
		for j := range ra {
			if ra[j].PowerWatts != rc[j].PowerWatts {
				differs = true
			}
		}
	}
	assert.True(t, differs)
}

func TestPerturbedPowerStaysInBand(t *testing.T) {
	s, err := New(DefaultProfiles(), flatRate(0.12), Options{Interval: time.Minute, Seed: 5, Perturb: true})
	require.NoError(t, err)
	profiles := map[string]types.DeviceProfile{}
	for _, p := range s.Profiles() {
		profiles[p.ID] = p
	}

	start := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24*60; i += 7 {
		for _, r := range s.Tick(start.Add(time.Duration(i) * time.Minute)) {
			band := profiles[r.DeviceID].Bands.For(r.State)
			assert.GreaterOrEqual(t, r.PowerWatts, band.Min*0.9, r.DeviceID)
			assert.LessOrEqual(t, r.PowerWatts, band.Max*1.1, r.DeviceID)
		}
	}
}

func TestClimateFollowsSeason(t *testing.T) {
	ac := types.DeviceProfile{
		Name:              "Test AC",
		ID:                "test_ac",
		BehaviorClass:     types.BehaviorClimate,
		Bands:             bands(3, 8, 1500, 2200, 2200, 3000),
		HourlyActivity:    constantHourly(0.9),
		WeekendMultiplier: 1,
		NominalVoltage:    240,
	}
	count := func(month time.Month) (on, high int) {
		s, err := New([]types.DeviceProfile{ac}, flatRate(0.12), Options{Interval: time.Minute, Seed: 21})
		require.NoError(t, err)
		start := time.Date(2024, month, 3, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 2000; i++ {
			switch s.Tick(start.Add(time.Duration(i) * time.Minute))[0].State {
			case types.StateHigh:
				high++
				on++
			case types.StateActive:
				on++
			}
		}
		return on, high
	}
	summerOn, summerHigh := count(time.July)
	winterOn, winterHigh := count(time.January)
	assert.Greater(t, summerOn, winterOn)
	assert.Greater(t, summerHigh, 0)
	// the winter temperature factor is below the threshold for high power
	assert.Equal(t, 0, winterHigh)
}
