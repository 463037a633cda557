package httpapi

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	authgate "github.com/authgate/authgate"
	"github.com/authgate/authgate/internal/ids"
)

const requestIDHeader = "X-Request-Id"

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

func requestLogger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

func logRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		requestLogger().Println(`{"level":"error","msg":"log marshal failed"}`)
		return
	}
	requestLogger().Println(string(data))
}

// withRequestContext assigns each request a ULID, attaches it together with
// the client IP to the context for audit correlation, and emits one JSON log
// line per request.
func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = ids.New()
		}
		w.Header().Set(requestIDHeader, rid)

		ctx := authgate.WithRequestID(r.Context(), rid)
		ctx = authgate.WithClientIP(ctx, clientIP(r))

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		logRequest(map[string]any{
			"ts":          time.Now().UTC().Format(time.RFC3339),
			"level":       "info",
			"msg":         "http_request",
			"request_id":  rid,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.code,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      clientIP(r),
		})
	})
}

// securityHeaders hardens every response. The CSP allows inline script and
// style because the root page embeds both.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy",
			"default-src 'self'; "+
				"style-src 'self' 'unsafe-inline'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop when present, falling back
// to the socket peer. Trust of the header is the deployment's concern; the
// value is only used for audit context.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
