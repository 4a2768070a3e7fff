package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/gateward/gateward/internal/log"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	// TokenSecret is the shared encryption secret. Empty means resolve
	// from SSM (token-secret-ssm-param), then fall back to the dev
	// default when allow-dev-secret is set.
	TokenSecret         string
	TokenSecretSSMParam string
	AllowDevSecret      bool

	OriginURL string
	LoginURL  string
	VerifyURL string

	CacheBackend string
	CacheTTLSecs int
	RedisAddr    string
	RedisDB      int

	CookieSecure bool
	SeedDemo     bool
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")

	fs.StringVar(&c.TokenSecret, "token-secret", "", "shared token encryption secret (prefer the SSM parameter in production)")
	fs.StringVar(&c.TokenSecretSSMParam, "token-secret-ssm-param", "/app/gateward/token-secret", "ssm parameter name holding the token secret")
	fs.BoolVar(&c.AllowDevSecret, "allow-dev-secret", false, "fall back to the built-in dev secret when no secret is configured")

	fs.StringVar(&c.OriginURL, "origin-url", "", "CMS origin base URL the gateway proxies (http://host:port)")
	fs.StringVar(&c.LoginURL, "login-url", "/login", "login page URL for unauthenticated redirects")
	fs.StringVar(&c.VerifyURL, "verify-url", "", "verification endpoint URL; empty verifies in-process")

	fs.StringVar(&c.CacheBackend, "cache-backend", "memory", "edge cache backend (memory|redis)")
	fs.IntVar(&c.CacheTTLSecs, "cache-ttl", 60, "edge cache entry TTL in seconds (1..86400)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "localhost:6379", "redis address (host:port) when cache-backend=redis")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis database number")

	fs.BoolVar(&c.CookieSecure, "cookie-secure", true, "set Secure on session cookies (disable only for plain-http dev)")
	fs.BoolVar(&c.SeedDemo, "seed-demo-users", false, "seed the in-memory user store with demo accounts")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log level
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Origin
	if c.OriginURL == "" {
		errs = append(errs, fmt.Errorf("ORIGIN_URL is required"))
	} else if u, err := url.Parse(c.OriginURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("ORIGIN_URL must be a URL (got %q)", c.OriginURL))
	}
	if c.LoginURL == "" {
		errs = append(errs, fmt.Errorf("LOGIN_URL is required"))
	}
	if c.VerifyURL != "" {
		if u, err := url.Parse(c.VerifyURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("VERIFY_URL must be a URL (got %q)", c.VerifyURL))
		}
	}

	// Cache
	switch c.CacheBackend {
	case "memory":
	case "redis":
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
		if c.RedisDB < 0 {
			errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0 (got %d)", c.RedisDB))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CACHE_BACKEND %q (must be memory|redis)", c.CacheBackend))
	}
	if c.CacheTTLSecs < 1 || c.CacheTTLSecs > 86400 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must be 1..86400 (got %d)", c.CacheTTLSecs))
	}

	// Secret sourcing: a fixed secret, an SSM parameter, or the explicit
	// dev opt-in. At least one path must exist.
	if c.TokenSecret == "" && c.TokenSecretSSMParam == "" && !c.AllowDevSecret {
		errs = append(errs, fmt.Errorf("one of TOKEN_SECRET, TOKEN_SECRET_SSM_PARAM, or ALLOW_DEV_SECRET is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
