package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/pkg/types"
)

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now()
	today := now.In(s.engine.Location()).Format(time.DateOnly)

	var (
		report types.DailyReport
		err    error
	)
	if date := r.URL.Query().Get("date"); date != "" {
		var day time.Time
		day, err = s.engine.ParseDate(date)
		if err == nil {
			report, err = s.engine.DailyActual(ctx, day)
		}
	} else {
		report, err = s.engine.LatestDaily(ctx, now)
	}
	if err != nil {
		writeEngineError(ctx, w, "failed to get daily report", err)
		return
	}

	// a fallback day can still receive readings until today's first one
	setCacheControl(w, report.Date < today && report.Date == report.RequestedDate)
	writeJSON(w, report)
}

func (s *Server) handleProjectedDailyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := s.engine.DailyProjected(ctx, s.now())
	if err != nil {
		writeEngineError(ctx, w, "failed to get projected daily report", err)
		return
	}
	setCacheControl(w, false)
	writeJSON(w, report)
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().In(s.engine.Location())
	year, month := now.Year(), now.Month()

	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid year: "+v, http.StatusBadRequest)
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid month: "+v, http.StatusBadRequest)
			return
		}
		month = time.Month(m)
	}

	report, err := s.engine.MonthlyAnalysis(ctx, year, month)
	if err != nil {
		writeEngineError(ctx, w, "failed to get monthly report", err)
		return
	}
	setCacheControl(w, report.Month < now.Format("2006-01"))
	writeJSON(w, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.engine.CurrentSummary(ctx, s.now())
	if err != nil {
		writeEngineError(ctx, w, "failed to get summary", err)
		return
	}
	setCacheControl(w, false)
	writeJSON(w, summary)
}

type thresholdsResponse struct {
	Thresholds  types.Thresholds `json:"thresholds"`
	RatePlan    tariff.Plan      `json:"rate_plan"`
	RatePeriod  string           `json:"rate_period"`
	CurrentRate float64          `json:"current_rate_dollars_per_kwh"`
	Timezone    string           `json:"timezone"`
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	setCacheControl(w, false)
	writeJSON(w, thresholdsResponse{
		Thresholds:  s.engine.Thresholds(),
		RatePlan:    s.schedule.Plan(),
		RatePeriod:  s.schedule.Period(now),
		CurrentRate: s.schedule.RateAt(now),
		Timezone:    s.schedule.Location().String(),
	})
}
