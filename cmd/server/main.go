package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gateward/gateward/internal/authapi"
	"github.com/gateward/gateward/internal/cfg"
	"github.com/gateward/gateward/internal/edgecache"
	"github.com/gateward/gateward/internal/gateway"
	"github.com/gateward/gateward/internal/health"
	"github.com/gateward/gateward/internal/httpserver"
	"github.com/gateward/gateward/internal/log"
	"github.com/gateward/gateward/internal/metrics"
	"github.com/gateward/gateward/internal/opshttp"
	"github.com/gateward/gateward/internal/otelx"
	"github.com/gateward/gateward/internal/prof"
	"github.com/gateward/gateward/internal/secretsrc"
	"github.com/gateward/gateward/internal/session"
	"github.com/gateward/gateward/internal/token"
	"github.com/gateward/gateward/internal/userstore"
	v "github.com/gateward/gateward/internal/version"
)

const appName = "gateward"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_date=%s, go=%s, dirty=%v)\n",
			appName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix GATEWARD_ and validate
	cfg.FillFromEnv(flag.CommandLine, "GATEWARD_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        appName,
		Version:    vi.Version,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"origin_url", conf.OriginURL,
		"login_url", conf.LoginURL,
		"verify_url", conf.VerifyURL,
		"cache_backend", conf.CacheBackend,
		"cache_ttl", conf.CacheTTLSecs,
		"cookie_secure", conf.CookieSecure,
		"seed_demo_users", conf.SeedDemo,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       appName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":     appName,
			"version": vi.Version,
			"commit":  vi.Commit,
			"source":  "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we only write to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  appName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()
	m.SetBuildInfo(appName, vi.Version, vi.GoVersion)

	// Resolve the token encryption secret
	secret, err := secretsrc.Resolve(ctx, secretsrc.Options{
		Logger:   L,
		Explicit: conf.TokenSecret,
		SSMParam: conf.TokenSecretSSMParam,
		AllowDev: conf.AllowDevSecret,
	})
	if err != nil {
		L.Error(ctx, err, "token secret resolution failed")
		os.Exit(1)
	}

	codec, err := token.NewCodec(secret)
	if err != nil {
		L.Error(ctx, err, "token codec init failed")
		os.Exit(1)
	}

	// User store; the demo seed is for local development only
	store := userstore.NewMemory()
	if conf.SeedDemo {
		if err := userstore.SeedDemo(store, "demo123"); err != nil {
			L.Error(ctx, err, "failed to seed demo users")
			os.Exit(1)
		}
		L.Warn(ctx, "demo users seeded; do not run this in production")
	}

	authAPI, err := authapi.New(authapi.Options{
		Store:   store,
		Codec:   codec,
		Cookies: session.CookieWriter{Secure: conf.CookieSecure},
		Logger:  L.With("component", "authapi"),
		Metrics: m,
	})
	if err != nil {
		L.Error(ctx, err, "auth api init failed")
		os.Exit(1)
	}

	// Edge cache backend
	var cache edgecache.Cache
	switch conf.CacheBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: conf.RedisAddr,
			DB:   conf.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// degraded but not fatal: lookups will log and fall through
			// to the origin until redis comes back
			L.Warn(ctx, "redis unreachable at startup", "addr", conf.RedisAddr, "err", err.Error())
		}
		cache = edgecache.NewRedis(rdb, time.Duration(conf.CacheTTLSecs)*time.Second)
	default:
		cache = edgecache.NewMemory(time.Duration(conf.CacheTTLSecs) * time.Second)
	}

	// Verification path: a remote verify endpoint when configured,
	// otherwise the same comparison in-process
	var verifier gateway.Verifier
	if conf.VerifyURL != "" {
		verifier = gateway.NewHTTPVerifier(conf.VerifyURL)
	} else {
		verifier = gateway.VerifierFunc(authAPI.VerifyLocal)
	}

	originURL, err := url.Parse(conf.OriginURL)
	if err != nil {
		L.Error(ctx, err, "invalid origin url", "origin_url", conf.OriginURL)
		os.Exit(1)
	}

	gw, err := gateway.New(gateway.Options{
		Logger:   L.With("component", "gateway"),
		Origin:   originURL,
		Cache:    cache,
		Verifier: verifier,
		LoginURL: conf.LoginURL,
		Metrics:  m,
	})
	if err != nil {
		L.Error(ctx, err, "gateway init failed")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	// start public http server
	httpStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		AuthRoutes:   authAPI.RegisterRoutes,
		Gateway:      gw,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = httpStop(context.Background()) }()

	// start admin/ops listener for metrics, health checks, and pprof
	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness to drain connections before closing listeners
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining")

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(15 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when started with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
