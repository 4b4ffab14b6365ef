package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/homewatt/homewatt/pkg/collector"
	"github.com/homewatt/homewatt/pkg/common"
	"github.com/homewatt/homewatt/pkg/config"
	"github.com/homewatt/homewatt/pkg/energy"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/storage"
	"github.com/homewatt/homewatt/pkg/tariff"
	"github.com/homewatt/homewatt/web"
	"github.com/levenlabs/go-lflag"
)

type collectorStatus interface {
	Status() collector.Status
}

// Server serves the reports API and the dashboard.
type Server struct {
	engine    *energy.Engine
	storage   storage.Database
	schedule  *tariff.Schedule
	collector collectorStatus

	listenAddr       string
	devProxy         string
	httpServer       *http.Server
	serverName       string
	webCacheDuration time.Duration

	now func() time.Time
}

// Configured registers the server flags. The engine is built from cfg once
// flags are parsed.
func Configured(s storage.Database, cfg *config.Config) *Server {
	srv := &Server{
		storage:    s,
		serverName: "homewatt/" + common.Version(),
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	devProxy := lflag.String("dev-proxy", "", "Address of the dev server (e.g. http://localhost:5173)")
	webCacheDuration := lflag.Duration("web-cache-duration", 0, "Duration to cache web files (e.g. 1h, 5m). 0 means no cache.")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.devProxy = *devProxy
		srv.webCacheDuration = *webCacheDuration
		srv.schedule = cfg.Schedule
		srv.engine = energy.NewEngine(s, cfg.Schedule, cfg.Thresholds, cfg.Location)
	})

	return srv
}

// SetCollector makes the collector's progress part of the health check.
func (s *Server) SetCollector(c collectorStatus) {
	s.collector = c
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/readings/current", s.handleCurrentReadings)
	apiMux.HandleFunc("GET /api/devices", s.handleListDevices)
	apiMux.HandleFunc("GET /api/devices/{id}/history", s.handleDeviceHistory)
	apiMux.HandleFunc("GET /api/reports/daily", s.handleDailyReport)
	apiMux.HandleFunc("GET /api/reports/daily/projected", s.handleProjectedDailyReport)
	apiMux.HandleFunc("GET /api/reports/monthly", s.handleMonthlyReport)
	apiMux.HandleFunc("GET /api/summary", s.handleSummary)
	apiMux.HandleFunc("GET /api/thresholds", s.handleThresholds)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)

	// serve the dashboard, either from the embedded filesystem or from the dev server
	if s.devProxy != "" {
		u, err := url.Parse(s.devProxy)
		if err != nil {
			panic(fmt.Errorf("invalid dev-proxy url (%s): %w", s.devProxy, err))
		}
		mux.Handle("/", httputil.NewSingleHostReverseProxy(u))
	} else {
		distFS, err := fs.Sub(web.DistFS, "dist")
		if err != nil {
			panic(fmt.Errorf("failed to get web dist fs: %w", err))
		}
		fileServer := http.FileServer(http.FS(distFS))
		mux.Handle("/", s.webHandler(distFS, fileServer))
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(requestIDMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux))))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// writeEngineError maps request errors to 400 and everything else to 500.
func writeEngineError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, energy.ErrInvalidRequest) || errors.Is(err, energy.ErrUnknownDevice) {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
	writeJSONError(w, msg, http.StatusInternalServerError)
}

// setCacheControl caches responses about finished periods for a day and
// anything still changing for a minute.
func setCacheControl(w http.ResponseWriter, finished bool) {
	if finished {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.collector != nil {
		if st := s.collector.Status(); st.LastError != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, err := w.Write([]byte("collector: " + st.LastError)); err != nil {
				panic(http.ErrAbortHandler)
			}
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) webHandler(dir fs.FS, h http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			f, err := dir.Open(strings.TrimPrefix(r.URL.Path, "/"))
			if err == nil {
				f.Close()
			} else if errors.Is(err, fs.ErrNotExist) {
				if strings.HasPrefix(r.URL.Path, "/.well-known/") {
					// we don't write JSON here because we don't know what file type is expected
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				r.URL.Path = "/"
			} else {
				log.Ctx(r.Context()).ErrorContext(r.Context(), "failed to open file", "error", err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
		}
		if s.webCacheDuration > 0 {
			w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.webCacheDuration.Seconds())))
		}

		h.ServeHTTP(w, r)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
