package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
)

const defaultHistoryHours = 24

func (s *Server) handleCurrentReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	readings, err := s.storage.GetLatestReadings(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get latest readings", slog.Any("error", err))
		writeJSONError(w, "failed to get latest readings", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	setCacheControl(w, false)
	writeJSON(w, readings)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	devices, err := s.storage.ListDevices(ctx)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to list devices", slog.Any("error", err))
		writeJSONError(w, "failed to list devices", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []types.Device{}
	}
	setCacheControl(w, false)
	writeJSON(w, devices)
}

func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deviceID := r.PathValue("id")
	hours := defaultHistoryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		var err error
		hours, err = strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, "invalid hours: "+v, http.StatusBadRequest)
			return
		}
	}

	readings, err := s.engine.RecentReadings(ctx, deviceID, hours, s.now())
	if err != nil {
		writeEngineError(ctx, w, "failed to get device history", err)
		return
	}
	setCacheControl(w, false)
	writeJSON(w, readings)
}
