package energy

import (
	"fmt"
	"math"

	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
)

const (
	BaselinePreviousMonth = "previous_month"
	BaselineLatestMonth   = "latest_month_with_data"
	BaselineThreeMonth    = "three_month_average"
	BaselineSixMonth      = "six_month_average"
	BaselineSeasonal      = "same_season_last_year"
	BaselineTrend         = "six_month_trend"
)

// notable change thresholds in percent
const (
	previousMonthThreshold = 15
	threeMonthThreshold    = 25
	seasonalThreshold      = 20
	trendThreshold         = 15
)

// lastYearMinMonthsAgo is how far back a same-season month must be to count
// as last year's season rather than the current one.
const lastYearMinMonthsAgo = 9

func changePercent(current, reference float64) float64 {
	return (current - reference) / reference * 100
}

func averageCost(months []types.MonthCost) float64 {
	var sum float64
	for _, m := range months {
		sum += m.Cost
	}
	return sum / float64(len(months))
}

func moreOrLess(pct float64) string {
	if pct > 0 {
		return "more"
	}
	return "less"
}

// Compare compares a month's projected cost against prior months. history
// is ordered most recent first and only holds months that have data.
// Baselines with a zero reference are skipped, and a month without readings
// gets no baselines at all.
func Compare(current types.MonthlyReport, history []types.MonthCost) *types.Comparison {
	c := &types.Comparison{
		MonthsOfData: len(history),
		Baselines:    []types.Baseline{},
		Insights:     []string{},
	}
	projected := current.ProjectedCost

	add := func(name, month string, reference, threshold float64) (types.Baseline, bool) {
		if reference <= 0 {
			return types.Baseline{}, false
		}
		pct := changePercent(projected, reference)
		b := types.Baseline{
			Name:          name,
			Month:         month,
			ReferenceCost: tariff.Round(reference, 2),
			ChangePercent: tariff.Round(pct, 1),
			Notable:       math.Abs(pct) > threshold,
		}
		c.Baselines = append(c.Baselines, b)
		return b, true
	}

	if current.NoData {
		c.Insights = append(c.Insights, "No readings have been recorded for this month yet")
		return c
	}
	c.Insights = append(c.Insights, costInsight(projected))

	if len(history) == 0 {
		c.Insights = append(c.Insights, "Not enough history yet to compare this month with previous ones")
		return c
	}

	// the most recent month with data is only the previous month when there
	// is no gap
	latest := history[0]
	name, label := BaselinePreviousMonth, latest.Month
	if latest.MonthsAgo != 1 {
		name = BaselineLatestMonth
		label = fmt.Sprintf("%s, the last month with readings", latest.Month)
	}
	if b, ok := add(name, latest.Month, latest.Cost, previousMonthThreshold); ok {
		if b.Notable {
			c.Insights = append(c.Insights, fmt.Sprintf("This month is on track to cost %.0f%% %s than %s", math.Abs(b.ChangePercent), moreOrLess(b.ChangePercent), label))
		} else {
			c.Insights = append(c.Insights, fmt.Sprintf("This month is in line with %s", label))
		}
	}

	if len(history) >= 3 {
		if b, ok := add(BaselineThreeMonth, "", averageCost(history[:3]), threeMonthThreshold); ok && b.Notable {
			c.Insights = append(c.Insights, fmt.Sprintf("Projected cost is %.0f%% %s than your 3 month average", math.Abs(b.ChangePercent), moreOrLess(b.ChangePercent)))
		}
	}

	if len(history) < 6 {
		return c
	}

	add(BaselineSixMonth, "", averageCost(history[:6]), seasonalThreshold)

	var lastYear []types.MonthCost
	for _, m := range history {
		if m.Season == current.Season && m.MonthsAgo >= lastYearMinMonthsAgo {
			lastYear = append(lastYear, m)
		}
	}
	if len(lastYear) > 0 {
		if b, ok := add(BaselineSeasonal, "", averageCost(lastYear), seasonalThreshold); ok {
			if b.Notable {
				c.Insights = append(c.Insights, fmt.Sprintf("This %s you're using %.0f%% %s than last %s", current.Season, math.Abs(b.ChangePercent), moreOrLess(b.ChangePercent), current.Season))
			} else {
				c.Insights = append(c.Insights, fmt.Sprintf("Your %s usage is consistent with last year", current.Season))
			}
		}
	}

	// the trend compares the prior months with each other, not with the
	// current projection
	recent, older := averageCost(history[:3]), averageCost(history[3:6])
	if older > 0 {
		pct := changePercent(recent, older)
		c.Baselines = append(c.Baselines, types.Baseline{
			Name:          BaselineTrend,
			ReferenceCost: tariff.Round(older, 2),
			ChangePercent: tariff.Round(pct, 1),
			Notable:       math.Abs(pct) > trendThreshold,
		})
		if math.Abs(pct) > trendThreshold {
			dir := "up"
			if pct < 0 {
				dir = "down"
			}
			c.Insights = append(c.Insights, fmt.Sprintf("Usage has been trending %s %.0f%% over the last 6 months", dir, math.Abs(pct)))
		}
	}
	return c
}

func costInsight(projected float64) string {
	switch {
	case projected > 200:
		return fmt.Sprintf("Your bill might reach $%.0f this month, which is high", projected)
	case projected > 150:
		return fmt.Sprintf("Your bill looks like it will be around $%.0f, higher than average", projected)
	case projected > 100:
		return fmt.Sprintf("Your bill should be around $%.0f this month", projected)
	default:
		return fmt.Sprintf("Your bill looks like only $%.0f this month", projected)
	}
}
