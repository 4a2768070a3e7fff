package httpmw

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gateward/gateward/internal/log"
)

// statusWriter captures the response status and size for the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// WithLogger binds a request-scoped logger (request id, client address,
// method, path) into the context for downstream handlers.
func WithLogger(base log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			clientAddr := r.RemoteAddr
			// prefer the first hop of X-Forwarded-For behind a load balancer
			if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
				first, _, _ := strings.Cut(xf, ",")
				clientAddr = strings.TrimSpace(first)
			}
			if host, _, err := net.SplitHostPort(clientAddr); err == nil {
				clientAddr = host
			}

			L := base.With(
				"request_id", RequestIDFromContext(ctx),
				"client.address", clientAddr,
				"http.request.method", r.Method,
				"url.path", r.URL.Path,
			)
			ctx = log.WithContext(ctx, L)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessLog emits one record per completed request with status, size,
// and latency. Health endpoints are skipped to keep the log useful.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)

			if r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready" {
				return
			}

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			log.FromContext(r.Context()).Info(r.Context(), "request",
				"http.response.status_code", status,
				"http.response.body.size", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
