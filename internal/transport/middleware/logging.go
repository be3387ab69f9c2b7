package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/payment-gateway/pkg/logger"
	"github.com/go-chi/chi/middleware"
)

const maxLoggedBody = 4096

// redactedFields never reach the logs: API credentials, webhook secrets and
// card data. Matching is by substring on the lowercased key.
var redactedFields = []string{
	"secret",
	"api_key",
	"authorization",
	"signature",
	"cvv",
	"number",
	"expiry",
}

// LoggingMiddleware logs each request and response through the request-scoped
// logger, so trace and merchant ids set by earlier middleware are attached.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := requestLogger(r, base)

			var body []byte
			if r.Body != nil {
				body, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			log.Info("incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"idempotency_key", r.Header.Get("Idempotency-Key"),
				"body", redactBody(body),
			)

			ww := &responseWriter{ResponseWriter: w, body: &bytes.Buffer{}}
			next.ServeHTTP(ww, r)

			status := ww.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			log.Log(r.Context(), level, "response",
				"status_code", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", ww.size,
				"body", redactBody(ww.body.Bytes()),
			)
		})
	}
}

func requestLogger(r *http.Request, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = logger.LoggerWrapper()
	}
	log := logger.FromOr(r.Context(), base)
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		log = log.With("request_id", reqID)
	}
	return log
}

// responseWriter keeps the first maxLoggedBody bytes of the response for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - rw.body.Len(); room > 0 {
		rw.body.Write(b[:min(room, len(b))])
	}
	rw.size += len(b)
	return rw.ResponseWriter.Write(b)
}

func isRedacted(key string) bool {
	key = strings.ToLower(key)
	for _, f := range redactedFields {
		if strings.Contains(key, f) {
			return true
		}
	}
	return false
}

func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return "[non-json body]"
	}

	out, err := json.Marshal(redactJSON(data))
	if err != nil {
		return "[unloggable body]"
	}
	return string(out)
}

func redactJSON(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			if isRedacted(key) {
				out[key] = "[FILTERED]"
				continue
			}
			out[key] = redactJSON(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactJSON(item)
		}
		return out
	default:
		return v
	}
}
