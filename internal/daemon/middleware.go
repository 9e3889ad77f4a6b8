package daemon

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/google/uuid"
)

// ContextKey is the type for context keys used in this package
type ContextKey string

const (
	// CorrelationIDKey is the context key for the correlation ID
	CorrelationIDKey ContextKey = "correlation_id"
	// CorrelationIDHeader is the HTTP header name for correlation ID
	CorrelationIDHeader = "X-Request-ID"
)

// GetCorrelationID extracts the correlation ID from a context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// correlationIDMiddleware adds or propagates a correlation ID
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		w.Header().Set(CorrelationIDHeader, correlationID)
		ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request at a level derived from its status
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelDebug
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
		}

		logger.LogAttrs(r.Context(), level, "request",
			slog.String("correlation_id", GetCorrelationID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

// recoveryMiddleware turns panics into a 500 JSON error
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"correlation_id", GetCorrelationID(r.Context()),
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{
					Error:  "internal server error",
					Status: http.StatusInternalServerError,
					Kind:   "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimiter bounds evaluation requests per client address
type rateLimiter struct {
	limiter   ratelimit.RateLimiter
	perMinute int
	logger    *slog.Logger
	closeOnce sync.Once
}

// newRateLimiter returns nil when perMinute is not positive
func newRateLimiter(perMinute int, logger *slog.Logger) *rateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &rateLimiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     perMinute,
			Burst:    perMinute,
			Interval: time.Minute,
		}),
		perMinute: perMinute,
		logger:    logger,
	}
}

// wrap applies the limit to next. A nil limiter passes through.
func (rl *rateLimiter) wrap(next http.HandlerFunc) http.HandlerFunc {
	if rl == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if !rl.limiter.Allow(r.Context(), key) {
			rl.logger.Warn("rate limit exceeded",
				"client", key,
				"path", r.URL.Path,
				"correlation_id", GetCorrelationID(r.Context()),
			)
			w.Header().Set("Retry-After", strconv.Itoa(max(60/rl.perMinute, 1)))
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Error:  "too many evaluation requests, try again shortly",
				Status: http.StatusTooManyRequests,
				Kind:   "rate_limited",
			})
			return
		}
		next(w, r)
	}
}

func (rl *rateLimiter) Close() error {
	if rl == nil {
		return nil
	}
	var err error
	rl.closeOnce.Do(func() { err = rl.limiter.Close() })
	return err
}

// clientIP returns the first X-Forwarded-For hop or the remote host
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
