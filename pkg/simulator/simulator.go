package simulator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
)

// RateResolver returns the dollars per kWh in effect at an instant.
type RateResolver interface {
	RateAt(t time.Time) float64
}

// Options control a Simulator.
type Options struct {
	// Interval is the span of time each tick's reading represents.
	Interval time.Duration

	// Seed seeds the simulator's random source. Zero picks a random seed.
	Seed uint64

	// Perturb fixes a random base wattage within each band at construction
	// so separate runs model slightly different hardware.
	Perturb bool

	// Location is used for the hour of day, weekend and season. Defaults to
	// UTC.
	Location *time.Location
}

// seasonTempFactor scales climate devices' activity and how hard they run.
var seasonTempFactor = map[types.Season]float64{
	types.SeasonWinter: 0.3,
	types.SeasonSpring: 0.7,
	types.SeasonSummer: 1.3,
	types.SeasonFall:   0.8,
}

const (
	alwaysOnHighChance      = 0.3
	burstHighChance         = 0.7
	workHighChance          = 0.4
	entertainmentHighChance = 0.25

	// burstOnScale caps how often a burst device leaves standby, even at
	// full activity.
	burstOnScale = 0.04

	cycleRampUp   = 0.15
	cycleWindDown = 0.8
)

type deviceState struct {
	profile types.DeviceProfile

	// dutyOffset shifts an always_on device's duty cycle so devices don't
	// all switch together.
	dutyOffset time.Duration

	cycleStart time.Time
	cycleEnd   time.Time

	// base is only set when perturbed
	base map[types.OperatingState]float64
}

// Simulator produces one reading per device per tick. It owns its random
// source and per-device state so separate instances never interfere. It is
// safe for concurrent use.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	seed     uint64
	rates    RateResolver
	interval time.Duration
	location *time.Location
	devices  []*deviceState
}

// New validates every profile and returns a Simulator. Any invalid profile
// aborts construction.
func New(profiles []types.DeviceProfile, rates RateResolver, opts Options) (*Simulator, error) {
	if rates == nil {
		return nil, errors.New("rate resolver is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive: %s", opts.Interval)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: no device profiles", types.ErrInvalidProfile)
	}
	seen := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate device id %q", types.ErrInvalidProfile, p.ID)
		}
		seen[p.ID] = true
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Simulator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed:     seed,
		rates:    rates,
		interval: opts.Interval,
		location: loc,
		devices:  make([]*deviceState, 0, len(profiles)),
	}
	for _, p := range profiles {
		p.HourlyActivity = append([]float64(nil), p.HourlyActivity...)
		d := &deviceState{profile: p}
		if p.BehaviorClass == types.BehaviorAlwaysOn {
			d.dutyOffset = time.Duration(s.rng.Int64N(int64(p.DutyCycle)))
		}
		if opts.Perturb {
			d.base = map[types.OperatingState]float64{
				types.StateStandby: s.uniform(p.Bands.Standby.Min, p.Bands.Standby.Max),
				types.StateActive:  s.uniform(p.Bands.Active.Min, p.Bands.Active.Max),
				types.StateHigh:    s.uniform(p.Bands.High.Min, p.Bands.High.Max),
			}
		}
		s.devices = append(s.devices, d)
	}
	return s, nil
}

// Seed returns the seed the simulator's random source started from.
func (s *Simulator) Seed() uint64 {
	return s.seed
}

// Interval returns the span each tick represents.
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

// Profiles returns a copy of the simulated profiles.
func (s *Simulator) Profiles() []types.DeviceProfile {
	out := make([]types.DeviceProfile, len(s.devices))
	for i, d := range s.devices {
		out[i] = d.profile
	}
	return out
}

// Devices returns the registry entries for the simulated devices.
func (s *Simulator) Devices() []types.Device {
	out := make([]types.Device, len(s.devices))
	for i, d := range s.devices {
		out[i] = types.Device{
			ID:            d.profile.ID,
			Name:          d.profile.Name,
			BehaviorClass: d.profile.BehaviorClass,
			Location:      d.profile.Location,
			Active:        true,
		}
	}
	return out
}

// Tick simulates every device at now and returns one reading per device in
// profile order.
func (s *Simulator) Tick(now time.Time) []types.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := now.In(s.location)
	hour := local.Hour()
	weekend := types.IsWeekend(local)
	season := types.SeasonForMonth(local.Month())
	rate := s.rates.RateAt(now)
	ts := now.Truncate(time.Second)

	readings := make([]types.Reading, 0, len(s.devices))
	for _, d := range s.devices {
		p := d.profile
		activity := s.activity(p, hour, weekend, season)
		state := s.resolveState(d, local, activity, season)
		power := s.drawPower(d, state)

		jitter := p.NominalVoltage / 60
		voltage := s.uniform(p.NominalVoltage-jitter, p.NominalVoltage+jitter)
		energy := power / 1000 * s.interval.Hours()

		readings = append(readings, types.Reading{
			DeviceID:    p.ID,
			DeviceName:  p.Name,
			Timestamp:   ts,
			State:       state,
			PowerWatts:  power,
			Voltage:     voltage,
			CurrentAmps: power / voltage,
			EnergyKWH:   energy,
			Rate:        rate,
			Cost:        tariff.Cost(energy, rate),
		})
	}
	return readings
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

func (s *Simulator) activity(p types.DeviceProfile, hour int, weekend bool, season types.Season) float64 {
	a := p.HourlyActivity[hour]
	if weekend {
		a *= p.WeekendMultiplier
	}
	if p.BehaviorClass == types.BehaviorClimate {
		a *= seasonTempFactor[season]
	}
	a *= s.uniform(0.8, 1.2)
	return clamp01(a)
}

func (s *Simulator) chance(p float64) bool {
	return s.rng.Float64() < p
}

func (s *Simulator) resolveState(d *deviceState, local time.Time, activity float64, season types.Season) types.OperatingState {
	p := d.profile
	switch p.BehaviorClass {
	case types.BehaviorAlwaysOn:
		cycle := int64(p.DutyCycle)
		pos := (local.UnixNano() + int64(d.dutyOffset)) % cycle
		if pos < 0 {
			pos += cycle
		}
		if pos >= cycle/3 {
			return types.StateStandby
		}
		if s.chance(alwaysOnHighChance * activity) {
			return types.StateHigh
		}
		return types.StateActive

	case types.BehaviorBurst:
		if !s.chance(activity * burstOnScale) {
			return types.StateStandby
		}
		if s.chance(burstHighChance) {
			return types.StateHigh
		}
		return types.StateActive

	case types.BehaviorClimate:
		if !s.chance(activity) {
			return types.StateStandby
		}
		if s.chance(clamp01(seasonTempFactor[season] - 0.5)) {
			return types.StateHigh
		}
		return types.StateActive

	case types.BehaviorWorkEquipment:
		if !s.chance(activity) {
			return types.StateStandby
		}
		h := local.Hour()
		if !types.IsWeekend(local) && h >= 9 && h <= 17 && s.chance(workHighChance) {
			return types.StateHigh
		}
		return types.StateActive

	case types.BehaviorApplianceCycle:
		return s.cycleState(d, local, activity)

	default:
		if !s.chance(activity) {
			return types.StateStandby
		}
		if s.chance(entertainmentHighChance) {
			return types.StateHigh
		}
		return types.StateActive
	}
}

// cycleState keeps a started cycle running for its full duration. The
// first part of a cycle ramps up and the last part winds down, both drawing
// active power, with the rest at high power.
func (s *Simulator) cycleState(d *deviceState, now time.Time, activity float64) types.OperatingState {
	if !d.cycleStart.IsZero() && (now.Before(d.cycleStart) || !now.Before(d.cycleEnd)) {
		d.cycleStart = time.Time{}
		d.cycleEnd = time.Time{}
	}
	if d.cycleStart.IsZero() {
		if !s.chance(activity * d.profile.CycleStartChance) {
			return types.StateStandby
		}
		d.cycleStart = now
		d.cycleEnd = now.Add(d.profile.CycleDuration)
	}
	progress := float64(now.Sub(d.cycleStart)) / float64(d.profile.CycleDuration)
	if progress < cycleRampUp || progress >= cycleWindDown {
		return types.StateActive
	}
	return types.StateHigh
}

func (s *Simulator) drawPower(d *deviceState, state types.OperatingState) float64 {
	var base float64
	if d.base != nil {
		base = d.base[state]
	} else {
		band := d.profile.Bands.For(state)
		base = s.uniform(band.Min, band.Max)
	}
	return base * s.uniform(0.9, 1.1)
}
