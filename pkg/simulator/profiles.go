package simulator

import (
	"time"

	"github.com/homewatt/homewatt/pkg/types"
)

func newProfile(name string, class types.BehaviorClass, bands types.PowerBands, hourly [24]float64, weekend, annualKWH, voltage float64) types.DeviceProfile {
	return types.DeviceProfile{
		Name:               name,
		ID:                 types.DeviceID(name),
		BehaviorClass:      class,
		Bands:              bands,
		HourlyActivity:     hourly[:],
		WeekendMultiplier:  weekend,
		AnnualKWHReference: annualKWH,
		NominalVoltage:     voltage,
	}
}

func bands(standbyMin, standbyMax, activeMin, activeMax, highMin, highMax float64) types.PowerBands {
	return types.PowerBands{
		Standby: types.Band{Min: standbyMin, Max: standbyMax},
		Active:  types.Band{Min: activeMin, Max: activeMax},
		High:    types.Band{Min: highMin, Max: highMax},
	}
}

// DefaultProfiles returns the seven household devices the simulator models
// out of the box.
func DefaultProfiles() []types.DeviceProfile {
	tv := newProfile("Living Room TV", types.BehaviorEntertainment,
		bands(1, 3, 80, 150, 150, 200),
		[24]float64{
			0.05, 0.02, 0.01, 0.01, 0.01, 0.02,
			0.15, 0.25, 0.20, 0.10, 0.08, 0.12,
			0.15, 0.18, 0.20, 0.25, 0.35, 0.50,
			0.70, 0.85, 0.90, 0.80, 0.60, 0.25,
		}, 1.4, 150, 120)
	tv.Location = "Living Room"

	microwave := newProfile("Kitchen Microwave", types.BehaviorBurst,
		bands(1, 2, 1000, 1200, 1200, 1500),
		[24]float64{
			0.01, 0.00, 0.00, 0.00, 0.00, 0.02,
			0.15, 0.30, 0.25, 0.10, 0.05, 0.20,
			0.40, 0.30, 0.15, 0.10, 0.15, 0.25,
			0.45, 0.35, 0.20, 0.10, 0.05, 0.02,
		}, 1.2, 60, 120)
	microwave.Location = "Kitchen"

	fridge := newProfile("Kitchen Fridge", types.BehaviorAlwaysOn,
		bands(35, 45, 120, 180, 180, 220),
		[24]float64{
			0.60, 0.55, 0.50, 0.50, 0.50, 0.55,
			0.65, 0.70, 0.75, 0.80, 0.85, 0.90,
			0.95, 0.90, 0.85, 0.80, 0.85, 0.90,
			0.95, 0.90, 0.85, 0.80, 0.75, 0.65,
		}, 1.1, 400, 120)
	fridge.Location = "Kitchen"
	fridge.DutyCycle = 45 * time.Minute

	ac := newProfile("Bedroom AC", types.BehaviorClimate,
		bands(3, 8, 1500, 2200, 2200, 3000),
		[24]float64{
			0.70, 0.75, 0.80, 0.80, 0.75, 0.70,
			0.60, 0.40, 0.30, 0.25, 0.30, 0.40,
			0.60, 0.80, 0.90, 0.95, 0.90, 0.80,
			0.70, 0.60, 0.55, 0.60, 0.65, 0.70,
		}, 1.1, 1200, 240)
	ac.Location = "Bedroom"

	computer := newProfile("Home Office Computer", types.BehaviorWorkEquipment,
		bands(5, 12, 200, 300, 300, 400),
		[24]float64{
			0.05, 0.02, 0.01, 0.01, 0.02, 0.05,
			0.10, 0.20, 0.60, 0.85, 0.90, 0.85,
			0.70, 0.85, 0.90, 0.85, 0.80, 0.70,
			0.50, 0.30, 0.20, 0.15, 0.10, 0.05,
		}, 0.3, 200, 120)
	computer.Location = "Home Office"

	washer := newProfile("Washing Machine", types.BehaviorApplianceCycle,
		bands(1, 3, 400, 600, 600, 900),
		[24]float64{
			0.01, 0.00, 0.00, 0.00, 0.00, 0.01,
			0.02, 0.05, 0.10, 0.20, 0.25, 0.20,
			0.15, 0.20, 0.25, 0.20, 0.15, 0.10,
			0.08, 0.05, 0.03, 0.02, 0.01, 0.01,
		}, 2.0, 90, 120)
	washer.Location = "Laundry Room"
	washer.CycleDuration = 45 * time.Minute
	washer.CycleStartChance = 0.08

	dryer := newProfile("Electric Dryer", types.BehaviorApplianceCycle,
		bands(2, 5, 2000, 2800, 2800, 3500),
		[24]float64{
			0.01, 0.00, 0.00, 0.00, 0.00, 0.01,
			0.02, 0.03, 0.05, 0.15, 0.20, 0.25,
			0.20, 0.25, 0.30, 0.25, 0.20, 0.15,
			0.10, 0.08, 0.05, 0.03, 0.02, 0.01,
		}, 2.0, 769, 240)
	dryer.Location = "Laundry Room"
	dryer.CycleDuration = time.Hour
	dryer.CycleStartChance = 0.06

	return []types.DeviceProfile{tv, microwave, fridge, ac, computer, washer, dryer}
}
