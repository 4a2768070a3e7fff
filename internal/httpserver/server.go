// Package httpserver assembles the public listener: auth API routes,
// the gateway as the catch-all, and the middleware stack.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gateward/gateward/internal/health"
	"github.com/gateward/gateward/internal/httpmw"
	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/xerrors"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// AuthRoutes mounts the auth API under /api/auth.
	AuthRoutes func(chi.Router)

	// Gateway handles every request no explicit route claims.
	Gateway http.Handler
}

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	r := chi.NewRouter()

	// Metrics first inside the router so the chi route pattern is
	// visible when the request completes
	if opts.MetricsMW != nil {
		r.Use(opts.MetricsMW)
	}

	// Compress text responses; gateway bodies are mostly HTML/JSON
	r.Use(middleware.Compress(5,
		"text/html",
		"text/css",
		"application/javascript",
		"text/javascript",
		"application/json",
		"image/svg+xml",
	))

	// Access log middleware
	r.Use(httpmw.AccessLog())

	// Auth request bodies are small JSON documents
	r.Use(httpmw.MaxBody(16 * 1024))

	// Register health routes at /-/healthy and /-/ready if probes provided
	if opts.Health != nil {
		r.Get("/-/healthy", health.Handler(opts.Health))
	}
	if opts.Readiness != nil {
		r.Get("/-/ready", health.Handler(opts.Readiness))
	}

	if opts.AuthRoutes != nil {
		r.Route("/api/auth", opts.AuthRoutes)
	}

	// Everything else is the gateway's problem
	if opts.Gateway != nil {
		r.NotFound(opts.Gateway.ServeHTTP)
		r.MethodNotAllowed(opts.Gateway.ServeHTTP)
	}

	// Request-scoped logging sits inside tracing so it sees trace_id
	var h http.Handler = httpmw.WithLogger(opts.Logger)(r)

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/-/healthy" && p != "/-/ready" && p != "/favicon.ico"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	// Outermost first: security headers on every response, panic recovery,
	// then request id so everything downstream sees it
	return httpmw.Chain(h,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID("X-Request-Id"),
	)
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)
	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
