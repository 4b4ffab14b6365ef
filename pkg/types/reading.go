package types

import (
	"strings"
	"time"
)

// OperatingState is the state the simulator resolved for a device on a tick.
type OperatingState string

const (
	StateStandby OperatingState = "standby"
	StateActive  OperatingState = "active"
	StateHigh    OperatingState = "high"
)

// Reading is a single power sample for one device. It is immutable once
// written; only retention cleanup removes it.
type Reading struct {
	DeviceID   string         `json:"device_id"`
	DeviceName string         `json:"device_name"`
	Timestamp  time.Time      `json:"timestamp"`
	State      OperatingState `json:"state,omitempty"`

	PowerWatts  float64 `json:"power_watts"`
	Voltage     float64 `json:"voltage"`
	CurrentAmps float64 `json:"current_amps"`

	// EnergyKWH is the energy consumed over the interval this reading
	// represents, not a cumulative meter value.
	EnergyKWH float64 `json:"energy_kwh"`

	// Rate is the dollars per kWh resolved when the reading was produced.
	Rate float64 `json:"rate"`
	Cost float64 `json:"cost"`
}

// Device is a registered device.
type Device struct {
	ID            string        `json:"device_id"`
	Name          string        `json:"device_name"`
	BehaviorClass BehaviorClass `json:"behavior_class"`
	Location      string        `json:"location,omitempty"`
	Active        bool          `json:"active"`
}

// DeviceID derives the stable identifier for a device name: lower case with
// runs of anything other than letters and digits collapsed into a single "_".
func DeviceID(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
