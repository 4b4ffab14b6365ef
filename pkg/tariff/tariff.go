package tariff

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/homewatt/homewatt/pkg/types"
)

// ErrInvalidPlan is returned when a rate plan cannot be resolved.
var ErrInvalidPlan = errors.New("invalid rate plan")

// Mode selects how the base rate is determined.
type Mode string

const (
	ModeFlat Mode = "flat"
	ModeTOU  Mode = "tou"
)

// TOURates are the dollars per kWh for each time-of-use period.
type TOURates struct {
	Peak    float64 `json:"peak"`
	MidPeak float64 `json:"mid_peak"`
	OffPeak float64 `json:"off_peak"`
}

// Plan describes how electricity is priced.
type Plan struct {
	Mode              Mode     `json:"mode"`
	FlatDollarsPerKWH float64  `json:"flat_dollars_per_kwh"`
	TOU               TOURates `json:"tou"`

	// PeakWindows take precedence over OffPeakWindows. Anything in neither is
	// mid-peak.
	PeakWindows    []types.TimeWindow `json:"peak_windows"`
	OffPeakWindows []types.TimeWindow `json:"off_peak_windows"`

	// SeasonalMultipliers scale the base rate. A missing season is 1.
	SeasonalMultipliers map[types.Season]float64 `json:"seasonal_multipliers"`
}

// DefaultPlan is the US-average time-of-use plan with seasonal adjustments.
func DefaultPlan() Plan {
	return Plan{
		Mode:              ModeTOU,
		FlatDollarsPerKWH: 0.1168,
		TOU: TOURates{
			Peak:    0.1568,
			MidPeak: 0.1168,
			OffPeak: 0.0968,
		},
		PeakWindows: []types.TimeWindow{
			{HourStart: 16, HourEnd: 21, DaysOfTheWeek: types.Weekdays},
			{HourStart: 18, HourEnd: 22, DaysOfTheWeek: types.WeekendDays},
		},
		OffPeakWindows: []types.TimeWindow{
			{HourStart: 22, HourEnd: 24},
			{HourStart: 0, HourEnd: 6},
		},
		SeasonalMultipliers: map[types.Season]float64{
			types.SeasonWinter: 1.15,
			types.SeasonSummer: 1.25,
			types.SeasonSpring: 0.95,
			types.SeasonFall:   1.00,
		},
	}
}

// Validate checks the plan is usable.
func (p Plan) Validate() error {
	switch p.Mode {
	case ModeFlat:
		if p.FlatDollarsPerKWH < 0 {
			return fmt.Errorf("%w: negative flat rate", ErrInvalidPlan)
		}
	case ModeTOU:
		if p.TOU.Peak < 0 || p.TOU.MidPeak < 0 || p.TOU.OffPeak < 0 {
			return fmt.Errorf("%w: negative time-of-use rate", ErrInvalidPlan)
		}
		for i, w := range p.PeakWindows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("%w: peak window %d: %w", ErrInvalidPlan, i, err)
			}
		}
		for i, w := range p.OffPeakWindows {
			if err := w.Validate(); err != nil {
				return fmt.Errorf("%w: off-peak window %d: %w", ErrInvalidPlan, i, err)
			}
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPlan, p.Mode)
	}
	for s, m := range p.SeasonalMultipliers {
		if m < 0 {
			return fmt.Errorf("%w: negative multiplier for %s", ErrInvalidPlan, s)
		}
	}
	return nil
}

// Schedule resolves the rate in effect at an instant. It is safe for
// concurrent use.
type Schedule struct {
	plan     Plan
	location *time.Location
}

// NewSchedule validates plan and evaluates its windows in loc.
func NewSchedule(plan Plan, loc *time.Location) (*Schedule, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	plan.PeakWindows = resolveWindows(plan.PeakWindows, loc)
	plan.OffPeakWindows = resolveWindows(plan.OffPeakWindows, loc)
	for i := range plan.PeakWindows {
		if err := loadWindowLocation(&plan.PeakWindows[i]); err != nil {
			return nil, err
		}
	}
	for i := range plan.OffPeakWindows {
		if err := loadWindowLocation(&plan.OffPeakWindows[i]); err != nil {
			return nil, err
		}
	}
	return &Schedule{plan: plan, location: loc}, nil
}

// resolveWindows copies windows, giving any without a location the
// schedule's location.
func resolveWindows(windows []types.TimeWindow, loc *time.Location) []types.TimeWindow {
	out := make([]types.TimeWindow, len(windows))
	for i, w := range windows {
		if w.LocationPtr == nil && w.Location == "" {
			w.LocationPtr = loc
		}
		out[i] = w
	}
	return out
}

func loadWindowLocation(w *types.TimeWindow) error {
	if w.LocationPtr != nil {
		return nil
	}
	loc, err := time.LoadLocation(w.Location)
	if err != nil {
		return fmt.Errorf("%w: failed to load location %s: %w", ErrInvalidPlan, w.Location, err)
	}
	w.LocationPtr = loc
	return nil
}

// Plan returns the plan the schedule was built from.
func (s *Schedule) Plan() Plan {
	return s.plan
}

// Location returns the location windows and seasons are evaluated in.
func (s *Schedule) Location() *time.Location {
	return s.location
}

// Period returns the time-of-use period in effect at t. Flat plans always
// report "flat".
func (s *Schedule) Period(t time.Time) string {
	if s.plan.Mode == ModeFlat {
		return "flat"
	}
	switch {
	case inAny(s.plan.PeakWindows, t):
		return "peak"
	case inAny(s.plan.OffPeakWindows, t):
		return "off_peak"
	default:
		return "mid_peak"
	}
}

// RateAt returns the dollars per kWh in effect at t, rounded to 4 decimals.
// Seasonal multipliers only apply to time-of-use plans.
func (s *Schedule) RateAt(t time.Time) float64 {
	var base float64
	switch s.Period(t) {
	case "flat":
		return Round(s.plan.FlatDollarsPerKWH, 4)
	case "peak":
		base = s.plan.TOU.Peak
	case "off_peak":
		base = s.plan.TOU.OffPeak
	default:
		base = s.plan.TOU.MidPeak
	}
	mult := 1.0
	if m, ok := s.plan.SeasonalMultipliers[types.SeasonForMonth(t.In(s.location).Month())]; ok {
		mult = m
	}
	return Round(base*mult, 4)
}

func inAny(windows []types.TimeWindow, t time.Time) bool {
	for i := range windows {
		// locations were resolved in NewSchedule so Contains cannot fail
		if ok, _ := windows[i].Contains(t); ok {
			return true
		}
	}
	return false
}

// Cost is the only place energy is converted into dollars.
func Cost(energyKWH, dollarsPerKWH float64) float64 {
	return energyKWH * dollarsPerKWH
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
