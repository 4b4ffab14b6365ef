package types

import (
	"fmt"
	"slices"
	"time"
)

// TimeWindow is a recurring span of hours, optionally limited to certain days
// of the week. HourEnd is exclusive so a window of 22-24 covers the last two
// hours of the day.
type TimeWindow struct {
	HourStart     int            `json:"hourStart"`
	HourEnd       int            `json:"hourEnd"`
	DaysOfTheWeek []time.Weekday `json:"daysOfTheWeek,omitempty"`
	Location      string         `json:"location,omitempty"`
	LocationPtr   *time.Location `json:"-"`
}

// Validate checks that the hours are within a single day.
func (w TimeWindow) Validate() error {
	if w.HourStart < 0 || w.HourStart > 23 {
		return fmt.Errorf("hourStart %d out of range", w.HourStart)
	}
	if w.HourEnd < 1 || w.HourEnd > 24 {
		return fmt.Errorf("hourEnd %d out of range", w.HourEnd)
	}
	if w.HourEnd <= w.HourStart {
		return fmt.Errorf("hourEnd %d must be after hourStart %d", w.HourEnd, w.HourStart)
	}
	return nil
}

// Contains checks if a time is within the window.
func (w *TimeWindow) Contains(t time.Time) (bool, error) {
	if w.LocationPtr != nil {
		t = t.In(w.LocationPtr)
	} else if w.Location != "" {
		loc, err := time.LoadLocation(w.Location)
		if err != nil {
			return false, fmt.Errorf("failed to load location %s: %w", w.Location, err)
		}
		t = t.In(loc)
	}
	if h := t.Hour(); h < w.HourStart || h >= w.HourEnd {
		return false, nil
	}
	if len(w.DaysOfTheWeek) > 0 && !slices.Contains(w.DaysOfTheWeek, t.Weekday()) {
		return false, nil
	}
	return true, nil
}

// Weekdays and WeekendDays are the day sets used by the default tariff windows.
var (
	Weekdays    = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	WeekendDays = []time.Weekday{time.Saturday, time.Sunday}
)

// IsWeekend reports whether t falls on a Saturday or Sunday in its own location.
func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// Season is a meteorological season in the northern hemisphere.
type Season string

const (
	SeasonWinter Season = "winter"
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonFall   Season = "fall"
)

// SeasonForMonth maps Dec-Feb to winter, Mar-May to spring, Jun-Aug to summer
// and Sep-Nov to fall.
func SeasonForMonth(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return SeasonWinter
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	default:
		return SeasonFall
	}
}
