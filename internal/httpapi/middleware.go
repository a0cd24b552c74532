package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	requestLogKey
)

func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-Id")
			if id == "" {
				id = newRequestID()
			}
			w.Header().Set("X-Request-Id", id)
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// requestLog is the per-request logging scope. requireAuth fills in the
// caller once the bearer token resolves.
type requestLog struct {
	logger  *slog.Logger
	userID  string
	tokenID string
}

// requestLogger returns the logger scoped to the request, or fallback outside
// RequestLogger.
func requestLogger(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		if rl.userID != "" {
			return rl.logger.With("user_id", rl.userID)
		}
		return rl.logger
	}
	if fallback == nil {
		return slog.Default()
	}
	return fallback
}

func annotateCaller(ctx context.Context, userID, tokenID string) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.userID = userID
		rl.tokenID = tokenID
	}
}

// RequestLogger writes one access line per request, tagged with the request
// and trace ids. Authenticated requests also get user_id and token_id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			var scope []any
			if rid, ok := GetRequestID(r.Context()); ok {
				scope = append(scope, "request_id", rid)
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				scope = append(scope, "trace_id", sc.TraceID().String())
			}
			rl := &requestLog{logger: logger.With(scope...)}
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey, rl)))

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if rl.userID != "" {
				fields = append(fields, "user_id", rl.userID, "token_id", rl.tokenID)
			}
			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status == http.StatusTooManyRequests:
				level = slog.LevelWarn
			}
			rl.logger.Log(r.Context(), level, "http request", fields...)
		})
	}
}

func Recoverer(logger *slog.Logger, isProd bool) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if isProd {
						logger.Error("panic", "panic", rec)
					} else {
						logger.Error("panic", "panic", rec, "stack", string(debug.Stack()))
					}
					WriteError(w, http.StatusInternalServerError, "internal_error", "An error occurred.")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func newRequestID() string {
	var b [16]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return time.Now().UTC().Format("20060102T150405.000000000Z07:00")
	}
	return hex.EncodeToString(b[:])
}
