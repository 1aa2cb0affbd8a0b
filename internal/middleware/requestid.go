package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const loggerContextKey contextKey = "logger"

// RequestID tags every request with an id, taken from the incoming header
// or generated, and stores a request-scoped logger in the context.
func RequestID(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			entry := logger.WithFields(log.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(withLogger(r.Context(), entry)))
			entry.WithField("duration", time.Since(start)).Debug("Request handled")
		})
	}
}

// LoggerFromContext returns the request-scoped logger, or the standard
// logger outside a request.
func LoggerFromContext(ctx context.Context) log.FieldLogger {
	if entry, ok := ctx.Value(loggerContextKey).(log.FieldLogger); ok {
		return entry
	}
	return log.StandardLogger()
}

func withLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}
