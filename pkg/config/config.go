// Package config holds the settings shared by the simulator, the energy engine
// and the collector.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Config is built once at startup and passed to every component that needs it.
type Config struct {
	Location *time.Location
	Plan     tariff.Plan
	Schedule *tariff.Schedule

	TickInterval time.Duration
	RetryBackoff time.Duration
	Thresholds   types.Thresholds

	Retention       time.Duration
	CleanupInterval time.Duration

	// Seed of 0 picks a random seed.
	Seed    uint64
	Perturb bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	plan := tariff.DefaultPlan()
	schedule, err := tariff.NewSchedule(plan, time.UTC)
	if err != nil {
		panic(fmt.Errorf("default plan is invalid: %w", err))
	}
	return Config{
		Location:        time.UTC,
		Plan:            plan,
		Schedule:        schedule,
		TickInterval:    30 * time.Second,
		RetryBackoff:    5 * time.Second,
		Thresholds:      types.Thresholds{ActiveWatts: 50, StandbyWatts: 1},
		Retention:       365 * 24 * time.Hour,
		CleanupInterval: 24 * time.Hour,
		Perturb:         true,
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c Config) Validate() error {
	if c.Location == nil {
		return errors.New("location cannot be nil")
	}
	if c.Schedule == nil {
		return errors.New("schedule cannot be nil")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive: %s", c.TickInterval)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative: %s", c.RetryBackoff)
	}
	if c.Thresholds.StandbyWatts < 0 || c.Thresholds.ActiveWatts <= c.Thresholds.StandbyWatts {
		return fmt.Errorf("active threshold (%v) must be above standby threshold (%v)", c.Thresholds.ActiveWatts, c.Thresholds.StandbyWatts)
	}
	if c.Retention < 0 || c.CleanupInterval < 0 {
		return errors.New("retention and cleanup interval cannot be negative")
	}
	return nil
}

// Configured registers the shared flags. The returned Config is filled in
// when flags are parsed.
func Configured() *Config {
	def := Default()
	plan := def.Plan
	thresholds := def.Thresholds
	var seed uint64

	timezone := lflag.String("timezone", "UTC", "IANA time zone that days, months and rate windows are evaluated in")
	rateMode := lflag.String("rate-mode", string(plan.Mode), "Rate plan mode (available: flat, tou)")
	lflag.JSON(&plan.FlatDollarsPerKWH, "electricity-rate", plan.FlatDollarsPerKWH, "Flat rate in dollars per kWh")
	lflag.JSON(&plan.TOU, "tou-rates", plan.TOU, "JSON time-of-use rates in dollars per kWh")
	lflag.JSON(&plan.PeakWindows, "peak-windows", plan.PeakWindows, "JSON list of peak rate windows")
	lflag.JSON(&plan.OffPeakWindows, "off-peak-windows", plan.OffPeakWindows, "JSON list of off-peak rate windows")
	lflag.JSON(&plan.SeasonalMultipliers, "seasonal-rate-multipliers", plan.SeasonalMultipliers, "JSON map of season to rate multiplier")
	tickInterval := lflag.Duration("tick-interval", def.TickInterval, "How often the simulator takes a reading")
	retryBackoff := lflag.Duration("retry-backoff", def.RetryBackoff, "How long to wait after a failed store write")
	lflag.JSON(&thresholds.ActiveWatts, "active-threshold-watts", thresholds.ActiveWatts, "Average watts at or above which a device is Active")
	lflag.JSON(&thresholds.StandbyWatts, "standby-threshold-watts", thresholds.StandbyWatts, "Average watts at or above which a device is Standby")
	retention := lflag.Duration("retention", def.Retention, "How long readings are kept (0 keeps forever)")
	cleanupInterval := lflag.Duration("cleanup-interval", def.CleanupInterval, "How often old readings are removed")
	lflag.JSON(&seed, "sim-seed", seed, "Simulator seed (0 for random)")
	perturb := lflag.Bool("sim-perturb", def.Perturb, "Perturb each device's base power once at startup")

	c := &Config{}

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("invalid timezone %q: %v", *timezone, err))
		}
		plan.Mode = tariff.Mode(*rateMode)
		schedule, err := tariff.NewSchedule(plan, loc)
		if err != nil {
			panic(fmt.Sprintf("invalid rate plan: %v", err))
		}

		c.Location = loc
		c.Plan = plan
		c.Schedule = schedule
		c.TickInterval = *tickInterval
		c.RetryBackoff = *retryBackoff
		c.Thresholds = thresholds
		c.Retention = *retention
		c.CleanupInterval = *cleanupInterval
		c.Seed = seed
		c.Perturb = *perturb

		if err := c.Validate(); err != nil {
			panic(fmt.Sprintf("invalid config: %v", err))
		}
	})

	return c
}
