package authsession

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config configures a Client.
//
// Config values are copied by Builder.WithConfig and treated as immutable
// once Build returns.
type Config struct {
	API     APIConfig
	Routes  RoutesConfig
	Cache   CacheConfig
	Actions ActionsConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the auth backend.
type APIConfig struct {
	// BaseURL is the backend origin, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout bounds every backend request.
	Timeout time.Duration
	// Origin, when set, is sent as Origin and Referer so that the backend treats
	// requests as coming from its stateful front-end domain.
	Origin string
	// Headers are added to every request.
	Headers        map[string]string
	CSRFCookieName string
	CSRFHeaderName string
	Endpoints      EndpointsConfig
}

// EndpointsConfig lists backend paths relative to BaseURL.
type EndpointsConfig struct {
	CSRFCookie               string
	User                     string
	Login                    string
	Register                 string
	ForgotPassword           string
	ResetPassword            string
	VerificationNotification string
	Logout                   string
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig names the front-end routes controllers navigate to.
type RoutesConfig struct {
	Login       string
	VerifyEmail string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheBackend selects the session cache implementation.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig selects the session cache when none is injected with
// Builder.WithSessionCache.
type CacheConfig struct {
	Backend CacheBackend
	// RedisAddr is dialed by Build when Backend is redis and no client was
	// supplied with Builder.WithRedis.
	RedisAddr   string
	RedisPrefix string
	// TTL expires Redis slots. Zero keeps them until logout.
	TTL time.Duration
}

/*
====================================
ACTIONS CONFIG
====================================
*/

// ActionsConfig controls how controllers run mutating actions.
type ActionsConfig struct {
	// DeduplicateMutations rejects a second concurrent call of the same action
	// on one controller with ErrActionInFlight.
	DeduplicateMutations bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used by New.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			Timeout:        5 * time.Second,
			CSRFCookieName: "XSRF-TOKEN",
			CSRFHeaderName: "X-XSRF-TOKEN",
			Endpoints: EndpointsConfig{
				CSRFCookie:               "/sanctum/csrf-cookie",
				User:                     "/api/user",
				Login:                    "/login",
				Register:                 "/register",
				ForgotPassword:           "/forgot-password",
				ResetPassword:            "/reset-password",
				VerificationNotification: "/email/verification-notification",
				Logout:                   "/logout",
			},
		},
		Routes: RoutesConfig{
			Login:       "/login",
			VerifyEmail: "/verify-email",
		},
		Cache: CacheConfig{
			Backend:     CacheMemory,
			RedisPrefix: "authsession",
		},
		Actions: ActionsConfig{
			DeduplicateMutations: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.API.Headers != nil {
		out.API.Headers = make(map[string]string, len(cfg.API.Headers))
		for k, v := range cfg.API.Headers {
			out.API.Headers[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API Timeout must be > 0")
	}
	if c.API.Origin != "" {
		o, err := url.Parse(c.API.Origin)
		if err != nil || o.Scheme == "" || o.Host == "" {
			return errors.New("API Origin must be an absolute URL")
		}
	}
	if strings.TrimSpace(c.API.CSRFCookieName) == "" || strings.TrimSpace(c.API.CSRFHeaderName) == "" {
		return errors.New("API CSRF cookie and header names are required")
	}
	ep := c.API.Endpoints
	for _, p := range []string{ep.CSRFCookie, ep.User, ep.Login, ep.Register, ep.ForgotPassword, ep.ResetPassword, ep.VerificationNotification, ep.Logout} {
		if !strings.HasPrefix(p, "/") {
			return errors.New("API Endpoints must be absolute paths")
		}
	}

	// Routes
	if !validRoute(c.Routes.Login) {
		return errors.New("Routes Login must be an absolute path")
	}
	if !validRoute(c.Routes.VerifyEmail) {
		return errors.New("Routes VerifyEmail must be an absolute path")
	}

	// Cache
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return errors.New("Cache Backend must be memory or redis")
	}
	if c.Cache.TTL < 0 {
		return errors.New("Cache TTL must be >= 0")
	}
	if c.Cache.Backend == CacheRedis && strings.TrimSpace(c.Cache.RedisPrefix) == "" {
		return errors.New("Cache RedisPrefix is required for the redis backend")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func validRoute(route string) bool {
	return strings.HasPrefix(route, "/") && !strings.HasPrefix(route, "//")
}
