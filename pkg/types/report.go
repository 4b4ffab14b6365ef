package types

import "time"

// DeviceStatus classifies a device by its average power over a period.
type DeviceStatus string

const (
	DeviceStatusActive  DeviceStatus = "Active"
	DeviceStatusStandby DeviceStatus = "Standby"
	DeviceStatusOff     DeviceStatus = "Off"
)

// Thresholds are the average-power cut-offs used to classify devices.
type Thresholds struct {
	ActiveWatts  float64 `json:"active_watts"`
	StandbyWatts float64 `json:"standby_watts"`
}

// Status classifies an average wattage. A device at exactly the threshold
// counts as being in the higher state.
func (t Thresholds) Status(avgWatts float64) DeviceStatus {
	switch {
	case avgWatts >= t.ActiveWatts:
		return DeviceStatusActive
	case avgWatts >= t.StandbyWatts:
		return DeviceStatusStandby
	default:
		return DeviceStatusOff
	}
}

// DeviceStats is the per-device part of a report.
type DeviceStats struct {
	DeviceID       string       `json:"device_id"`
	DeviceName     string       `json:"device_name"`
	AvgPowerWatts  float64      `json:"avg_power_watts"`
	PeakPowerWatts float64      `json:"peak_power_watts"`
	TotalEnergyKWH float64      `json:"total_energy_kwh"`
	TotalCost      float64      `json:"total_cost"`
	ReadingsCount  int          `json:"readings_count"`
	Status         DeviceStatus `json:"status"`
}

// Report holds totals that are exact sums of the per-device figures.
type Report struct {
	NoData         bool          `json:"no_data"`
	TotalEnergyKWH float64       `json:"total_energy_kwh"`
	TotalCost      float64       `json:"total_cost"`
	PeakPowerWatts float64       `json:"peak_power_watts"`
	Devices        []DeviceStats `json:"devices"`
	ActiveDevices  int           `json:"active_devices"`
	TotalDevices   int           `json:"total_devices"`
}

// DailyReport is either the actual consumption of a date or, when
// IsProjected is set, a 24 hour projection from current power draw.
type DailyReport struct {
	Report
	Date          string  `json:"date"`
	RequestedDate string  `json:"requested_date,omitempty"`
	IsProjected   bool    `json:"is_projected"`
	Rate          float64 `json:"rate_dollars_per_kwh,omitempty"`
}

// MonthlyReport is the consumption of a calendar month with a 30 day projection.
type MonthlyReport struct {
	Report
	Month         string      `json:"month"`
	Season        Season      `json:"season"`
	DaysElapsed   int         `json:"days_elapsed"`
	DaysWithData  int         `json:"days_with_data"`
	BlendedRate   float64     `json:"blended_rate"`
	ProjectedKWH  float64     `json:"projected_kwh"`
	ProjectedCost float64     `json:"projected_cost"`
	Comparison    *Comparison `json:"comparison,omitempty"`
}

// MonthCost is a prior month's total used as a comparison baseline.
type MonthCost struct {
	Month     string  `json:"month"`
	Season    Season  `json:"season"`
	MonthsAgo int     `json:"months_ago"`
	Cost      float64 `json:"cost"`
	KWH       float64 `json:"kwh"`
}

// Baseline is one reference the current month was compared against. Month
// is only set when the reference is a single month.
type Baseline struct {
	Name          string  `json:"name"`
	Month         string  `json:"month,omitempty"`
	ReferenceCost float64 `json:"reference_cost"`
	ChangePercent float64 `json:"change_percent"`
	Notable       bool    `json:"notable"`
}

// Comparison is the result of comparing a month with its history.
type Comparison struct {
	MonthsOfData int        `json:"months_of_data"`
	Baselines    []Baseline `json:"baselines"`
	Insights     []string   `json:"insights"`
}

// Summary is the instantaneous view of the home.
type Summary struct {
	Timestamp            time.Time `json:"timestamp"`
	TotalPowerWatts      float64   `json:"total_power_watts"`
	ProjectedDailyCost   float64   `json:"projected_daily_cost"`
	ProjectedMonthlyCost float64   `json:"projected_monthly_cost"`
	Rate                 float64   `json:"rate_dollars_per_kwh"`
	ActiveDevices        int       `json:"active_devices"`
	TotalDevices         int       `json:"total_devices"`
}
