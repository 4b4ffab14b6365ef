package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidProfile is returned when a device profile cannot be simulated.
var ErrInvalidProfile = errors.New("invalid device profile")

// BehaviorClass selects the rule the simulator uses to pick a device's state.
type BehaviorClass string

const (
	BehaviorAlwaysOn       BehaviorClass = "always_on"
	BehaviorBurst          BehaviorClass = "burst"
	BehaviorClimate        BehaviorClass = "climate"
	BehaviorWorkEquipment  BehaviorClass = "work_equipment"
	BehaviorApplianceCycle BehaviorClass = "appliance_cycle"
	BehaviorEntertainment  BehaviorClass = "entertainment"
	BehaviorGeneric        BehaviorClass = "generic"
)

// Valid reports whether c is a known class.
func (c BehaviorClass) Valid() bool {
	switch c {
	case BehaviorAlwaysOn, BehaviorBurst, BehaviorClimate, BehaviorWorkEquipment,
		BehaviorApplianceCycle, BehaviorEntertainment, BehaviorGeneric:
		return true
	}
	return false
}

// Band is an inclusive wattage range.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether w is within the band.
func (b Band) Contains(w float64) bool {
	return w >= b.Min && w <= b.Max
}

// PowerBands holds the wattage range for each operating state.
type PowerBands struct {
	Standby Band `json:"standby"`
	Active  Band `json:"active"`
	High    Band `json:"high"`
}

// For returns the band for the given state.
func (p PowerBands) For(s OperatingState) Band {
	switch s {
	case StateHigh:
		return p.High
	case StateActive:
		return p.Active
	default:
		return p.Standby
	}
}

// DeviceProfile describes how a device behaves over a day.
type DeviceProfile struct {
	Name               string        `json:"name"`
	ID                 string        `json:"id"`
	BehaviorClass      BehaviorClass `json:"behavior_class"`
	Location           string        `json:"location,omitempty"`
	Bands              PowerBands    `json:"bands"`
	HourlyActivity     []float64     `json:"hourly_activity"`
	WeekendMultiplier  float64       `json:"weekend_multiplier"`
	AnnualKWHReference float64       `json:"annual_kwh_reference"`
	NominalVoltage     float64       `json:"nominal_voltage"`

	// DutyCycle is the compressor cycle length for always_on devices.
	DutyCycle time.Duration `json:"duty_cycle,omitempty"`

	// CycleDuration and CycleStartChance describe an appliance_cycle run.
	CycleDuration    time.Duration `json:"cycle_duration,omitempty"`
	CycleStartChance float64       `json:"cycle_start_chance,omitempty"`
}

func invalidProfile(name, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidProfile, name, fmt.Sprintf(format, args...))
}

// Validate checks the profile can be simulated.
func (p DeviceProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if p.ID == "" {
		return invalidProfile(p.Name, "missing id")
	}
	if !p.BehaviorClass.Valid() {
		return invalidProfile(p.Name, "unknown behavior class %q", p.BehaviorClass)
	}
	if len(p.HourlyActivity) != 24 {
		return invalidProfile(p.Name, "hourly activity has %d entries, need 24", len(p.HourlyActivity))
	}
	for h, a := range p.HourlyActivity {
		if a < 0 || a > 1 {
			return invalidProfile(p.Name, "hourly activity for hour %d is %v, must be within [0,1]", h, a)
		}
	}
	for _, nb := range []struct {
		name string
		band Band
	}{
		{"standby", p.Bands.Standby},
		{"active", p.Bands.Active},
		{"high", p.Bands.High},
	} {
		if nb.band.Min < 0 {
			return invalidProfile(p.Name, "%s band min %v is negative", nb.name, nb.band.Min)
		}
		if nb.band.Min > nb.band.Max {
			return invalidProfile(p.Name, "%s band min %v exceeds max %v", nb.name, nb.band.Min, nb.band.Max)
		}
	}
	if p.Bands.Standby.Min > p.Bands.Active.Min || p.Bands.Active.Min > p.Bands.High.Min {
		return invalidProfile(p.Name, "band floors must be ordered standby <= active <= high")
	}
	if p.WeekendMultiplier < 0 {
		return invalidProfile(p.Name, "weekend multiplier %v is negative", p.WeekendMultiplier)
	}
	if p.NominalVoltage <= 0 {
		return invalidProfile(p.Name, "nominal voltage must be positive")
	}
	switch p.BehaviorClass {
	case BehaviorAlwaysOn:
		if p.DutyCycle <= 0 {
			return invalidProfile(p.Name, "always_on requires a duty cycle")
		}
	case BehaviorApplianceCycle:
		if p.CycleDuration <= 0 {
			return invalidProfile(p.Name, "appliance_cycle requires a cycle duration")
		}
		if p.CycleStartChance <= 0 || p.CycleStartChance > 1 {
			return invalidProfile(p.Name, "cycle start chance %v must be within (0,1]", p.CycleStartChance)
		}
	}
	return nil
}
