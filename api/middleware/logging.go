package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/licensor-backend/pkg/logger"
)

// Logging writes one access line per request. 5xx responses log at warn so
// they stand out; error details are logged by responses.WriteError.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			sw := &statusWriter{ResponseWriter: w}
			r = r.WithContext(ctx)

			next.ServeHTTP(sw, r)

			fields := map[string]any{
				"status":      sw.code(),
				"bytes":       sw.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   ClientIP(r),
			}
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				fields["route"] = rc.RoutePattern()
			}
			done := logg.WithFields(ctx, fields)
			if sw.code() >= http.StatusInternalServerError {
				logg.Warn(done, "request failed")
				return
			}
			logg.Info(done, "request complete")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusWriter) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
