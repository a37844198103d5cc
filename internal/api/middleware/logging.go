package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"mybank/pkg/logger"
)

// RequestLogger writes one structured line per request.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			fields := map[string]interface{}{
				"method":      r.Method,
				"route":       routePattern(r),
				"status":      rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
				"request_id":  chimw.GetReqID(r.Context()),
			}

			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				log.ErrorContext(r.Context(), "HTTP request", fields)
			case rw.statusCode >= http.StatusBadRequest:
				log.WarnContext(r.Context(), "HTTP request", fields)
			default:
				log.InfoContext(r.Context(), "HTTP request", fields)
			}
		})
	}
}
