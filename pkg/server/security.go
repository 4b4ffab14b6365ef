package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/homewatt/homewatt/pkg/log"
)

const requestIDHeader = "X-Request-ID"

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// the dashboard only loads its own scripts and calls its own API
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware tags every request with an id, reusing the caller's if
// it sent one, and puts a logger carrying it in the request context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := log.WithAttrs(r.Context(), slog.String("requestID", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
