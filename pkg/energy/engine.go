package energy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownDevice  = errors.New("unknown device")
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	// projectionDays is the nominal month length used for projections.
	projectionDays = 30

	// MaxHistoryHours bounds a single device history request.
	MaxHistoryHours = 31 * 24

	// comparisonMonths is how far back a monthly analysis looks.
	comparisonMonths = 12
)

// RateResolver returns the dollars per kWh in effect at an instant.
type RateResolver interface {
	RateAt(t time.Time) float64
}

// Engine builds energy and cost reports from stored readings. Dates and
// months are evaluated in the engine's location.
type Engine struct {
	db         storage.Database
	rates      RateResolver
	thresholds types.Thresholds
	location   *time.Location
}

// NewEngine returns an Engine. A nil location means UTC.
func NewEngine(db storage.Database, rates RateResolver, thresholds types.Thresholds, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		db:         db,
		rates:      rates,
		thresholds: thresholds,
		location:   loc,
	}
}

// Thresholds returns the thresholds devices are classified with.
func (e *Engine) Thresholds() types.Thresholds {
	return e.thresholds
}

// Location returns the location days and months are evaluated in.
func (e *Engine) Location() *time.Location {
	return e.location
}

func (e *Engine) startOfDay(t time.Time) time.Time {
	t = t.In(e.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, e.location)
}

// ParseDate parses a YYYY-MM-DD date in the engine's location.
func (e *Engine) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, e.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidRequest, s)
	}
	return d, nil
}

type deviceAccumulator struct {
	stats    types.DeviceStats
	powerSum float64
}

// aggregate groups readings per device. Totals are summed from the
// per-device figures in device id order.
func (e *Engine) aggregate(readings []types.Reading) types.Report {
	report := types.Report{Devices: []types.DeviceStats{}}
	if len(readings) == 0 {
		report.NoData = true
		return report
	}

	byDevice := make(map[string]*deviceAccumulator)
	for _, r := range readings {
		acc, ok := byDevice[r.DeviceID]
		if !ok {
			acc = &deviceAccumulator{stats: types.DeviceStats{
				DeviceID:   r.DeviceID,
				DeviceName: r.DeviceName,
			}}
			byDevice[r.DeviceID] = acc
		}
		acc.stats.TotalEnergyKWH += r.EnergyKWH
		acc.stats.TotalCost += r.Cost
		acc.stats.PeakPowerWatts = max(acc.stats.PeakPowerWatts, r.PowerWatts)
		acc.stats.ReadingsCount++
		acc.powerSum += r.PowerWatts
	}

	ids := make([]string, 0, len(byDevice))
	for id := range byDevice {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		acc := byDevice[id]
		acc.stats.AvgPowerWatts = acc.powerSum / float64(acc.stats.ReadingsCount)
		acc.stats.Status = e.thresholds.Status(acc.stats.AvgPowerWatts)
		report.Devices = append(report.Devices, acc.stats)

		report.TotalEnergyKWH += acc.stats.TotalEnergyKWH
		report.TotalCost += acc.stats.TotalCost
		report.PeakPowerWatts = max(report.PeakPowerWatts, acc.stats.PeakPowerWatts)
		if acc.stats.Status == types.DeviceStatusActive {
			report.ActiveDevices++
		}
	}
	report.TotalDevices = len(report.Devices)
	return report
}

// DailyActual reports the readings recorded on the calendar day containing
// day. A day without readings yields a zeroed report flagged NoData.
func (e *Engine) DailyActual(ctx context.Context, day time.Time) (types.DailyReport, error) {
	start := e.startOfDay(day)
	end := start.AddDate(0, 0, 1)
	readings, err := e.db.GetReadings(ctx, "", start, end)
	if err != nil {
		return types.DailyReport{}, fmt.Errorf("failed to get readings for %s: %w", start.Format(dateLayout), err)
	}
	date := start.Format(dateLayout)
	return types.DailyReport{
		Report:        e.aggregate(readings),
		Date:          date,
		RequestedDate: date,
	}, nil
}

// LatestDaily reports the day containing now, or if that day has no
// readings, the most recent day that does. Callers must check Date rather
// than assume RequestedDate was reported.
func (e *Engine) LatestDaily(ctx context.Context, now time.Time) (types.DailyReport, error) {
	report, err := e.DailyActual(ctx, now)
	if err != nil || !report.NoData {
		return report, err
	}
	latest, err := e.db.GetLatestReadingTime(ctx)
	if err != nil {
		return types.DailyReport{}, fmt.Errorf("failed to get latest reading time: %w", err)
	}
	if latest.IsZero() {
		return report, nil
	}
	fallback, err := e.DailyActual(ctx, latest)
	if err != nil {
		return types.DailyReport{}, err
	}
	log.Ctx(ctx).DebugContext(ctx, "no readings for requested day, using latest day",
		slog.String("requested", report.Date),
		slog.String("date", fallback.Date),
	)
	fallback.RequestedDate = report.RequestedDate
	return fallback, nil
}

// DailyProjected extrapolates each device's latest power draw over a full
// day at the rate in effect at now.
func (e *Engine) DailyProjected(ctx context.Context, now time.Time) (types.DailyReport, error) {
	latest, err := e.db.GetLatestReadings(ctx)
	if err != nil {
		return types.DailyReport{}, fmt.Errorf("failed to get latest readings: %w", err)
	}
	rate := e.rates.RateAt(now)
	date := e.startOfDay(now).Format(dateLayout)
	report := types.DailyReport{
		Report:        types.Report{Devices: []types.DeviceStats{}},
		Date:          date,
		RequestedDate: date,
		IsProjected:   true,
		Rate:          rate,
	}
	if len(latest) == 0 {
		report.NoData = true
		return report, nil
	}

	slices.SortFunc(latest, func(a, b types.Reading) int {
		switch {
		case a.DeviceID < b.DeviceID:
			return -1
		case a.DeviceID > b.DeviceID:
			return 1
		}
		return 0
	})
	for _, r := range latest {
		energy := r.PowerWatts * 24 / 1000
		stats := types.DeviceStats{
			DeviceID:       r.DeviceID,
			DeviceName:     r.DeviceName,
			AvgPowerWatts:  r.PowerWatts,
			PeakPowerWatts: r.PowerWatts,
			TotalEnergyKWH: energy,
			TotalCost:      tariff.Cost(energy, rate),
			ReadingsCount:  1,
			Status:         e.thresholds.Status(r.PowerWatts),
		}
		report.Devices = append(report.Devices, stats)
		report.TotalEnergyKWH += stats.TotalEnergyKWH
		report.TotalCost += stats.TotalCost
		report.PeakPowerWatts = max(report.PeakPowerWatts, stats.PeakPowerWatts)
		if stats.Status == types.DeviceStatusActive {
			report.ActiveDevices++
		}
	}
	report.TotalDevices = len(report.Devices)
	return report, nil
}

func (e *Engine) monthBounds(year int, month time.Month) (time.Time, time.Time, error) {
	if year < 1970 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid year %d", ErrInvalidRequest, year)
	}
	if month < time.January || month > time.December {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid month %d", ErrInvalidRequest, month)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, e.location)
	return start, start.AddDate(0, 1, 0), nil
}

// monthly builds a month's report from readings already limited to it.
func (e *Engine) monthly(start time.Time, readings []types.Reading) types.MonthlyReport {
	report := types.MonthlyReport{
		Report: e.aggregate(readings),
		Month:  start.Format(monthLayout),
		Season: types.SeasonForMonth(start.Month()),
	}
	if report.NoData {
		return report
	}

	dates := mapset.NewSet[string]()
	for _, r := range readings {
		dates.Add(r.Timestamp.In(e.location).Format(dateLayout))
	}
	sorted := dates.ToSlice()
	slices.Sort(sorted)
	first, _ := time.Parse(dateLayout, sorted[0])
	last, _ := time.Parse(dateLayout, sorted[len(sorted)-1])
	report.DaysElapsed = int(last.Sub(first).Hours()/24) + 1
	report.DaysWithData = dates.Cardinality()

	report.ProjectedKWH = report.TotalEnergyKWH
	if report.DaysElapsed > 0 {
		report.ProjectedKWH = report.TotalEnergyKWH / float64(report.DaysElapsed) * projectionDays
	}
	if report.TotalEnergyKWH > 0 {
		report.BlendedRate = report.TotalCost / report.TotalEnergyKWH
	}
	report.ProjectedCost = tariff.Cost(report.ProjectedKWH, report.BlendedRate)
	return report
}

// Monthly reports a calendar month and projects it to a 30 day month from
// the days that have elapsed since its first reading.
func (e *Engine) Monthly(ctx context.Context, year int, month time.Month) (types.MonthlyReport, error) {
	start, end, err := e.monthBounds(year, month)
	if err != nil {
		return types.MonthlyReport{}, err
	}
	readings, err := e.db.GetReadings(ctx, "", start, end)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("failed to get readings for %s: %w", start.Format(monthLayout), err)
	}
	return e.monthly(start, readings), nil
}

// MonthlyAnalysis is Monthly plus a comparison against up to a year of
// prior months that have data.
func (e *Engine) MonthlyAnalysis(ctx context.Context, year int, month time.Month) (types.MonthlyReport, error) {
	report, err := e.Monthly(ctx, year, month)
	if err != nil {
		return types.MonthlyReport{}, err
	}
	start, _, _ := e.monthBounds(year, month)
	histStart := start.AddDate(0, -comparisonMonths, 0)
	readings, err := e.db.GetReadings(ctx, "", histStart, start)
	if err != nil {
		return types.MonthlyReport{}, fmt.Errorf("failed to get history readings: %w", err)
	}

	byMonth := make(map[string][]types.Reading)
	for _, r := range readings {
		key := r.Timestamp.In(e.location).Format(monthLayout)
		byMonth[key] = append(byMonth[key], r)
	}
	var history []types.MonthCost
	for i := 1; i <= comparisonMonths; i++ {
		mStart := start.AddDate(0, -i, 0)
		rs := byMonth[mStart.Format(monthLayout)]
		if len(rs) == 0 {
			continue
		}
		m := e.monthly(mStart, rs)
		history = append(history, types.MonthCost{
			Month:     m.Month,
			Season:    m.Season,
			MonthsAgo: i,
			Cost:      m.TotalCost,
			KWH:       m.TotalEnergyKWH,
		})
	}
	report.Comparison = Compare(report, history)
	return report, nil
}

// RecentReadings returns a device's readings over the given number of hours
// before now. An empty deviceID returns every device.
func (e *Engine) RecentReadings(ctx context.Context, deviceID string, hours int, now time.Time) ([]types.Reading, error) {
	if hours < 1 || hours > MaxHistoryHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidRequest, MaxHistoryHours)
	}
	if deviceID != "" {
		if _, err := e.db.GetDevice(ctx, deviceID); err != nil {
			if errors.Is(err, storage.ErrDeviceNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
			}
			return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
		}
	}
	start := now.Add(-time.Duration(hours) * time.Hour)
	readings, err := e.db.GetReadings(ctx, deviceID, start, now.Add(time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to get readings: %w", err)
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	return readings, nil
}

// CurrentSummary is the home's instantaneous draw and the costs it implies.
func (e *Engine) CurrentSummary(ctx context.Context, now time.Time) (types.Summary, error) {
	projected, err := e.DailyProjected(ctx, now)
	if err != nil {
		return types.Summary{}, err
	}
	summary := types.Summary{
		Timestamp:            now,
		ProjectedDailyCost:   projected.TotalCost,
		ProjectedMonthlyCost: projected.TotalCost * projectionDays,
		Rate:                 projected.Rate,
		ActiveDevices:        projected.ActiveDevices,
		TotalDevices:         projected.TotalDevices,
	}
	for _, d := range projected.Devices {
		summary.TotalPowerWatts += d.AvgPowerWatts
	}
	return summary, nil
}
