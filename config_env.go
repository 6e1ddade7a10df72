package authsession

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// EnvConfig is the environment view of Config.
type EnvConfig struct {
	BackendURL  string        `env:"BACKEND_URL" env-default:"http://localhost:8000"`
	Timeout     time.Duration `env:"AUTHSESSION_TIMEOUT" env-default:"5s"`
	Origin      string        `env:"AUTHSESSION_ORIGIN"`
	LoginRoute  string        `env:"AUTHSESSION_LOGIN_ROUTE" env-default:"/login"`
	VerifyRoute string        `env:"AUTHSESSION_VERIFY_EMAIL_ROUTE" env-default:"/verify-email"`

	CacheBackend string        `env:"AUTHSESSION_CACHE_BACKEND" env-default:"memory"`
	RedisAddr    string        `env:"AUTHSESSION_REDIS_ADDR"`
	RedisPrefix  string        `env:"AUTHSESSION_REDIS_PREFIX" env-default:"authsession"`
	CacheTTL     time.Duration `env:"AUTHSESSION_CACHE_TTL" env-default:"0s"`

	AuditEnabled   bool `env:"AUTHSESSION_AUDIT" env-default:"false"`
	MetricsLatency bool `env:"AUTHSESSION_METRICS_LATENCY" env-default:"false"`
}

// LoadEnvFiles loads the given dotenv files, skipping missing ones. Variables
// already set in the process environment win.
func LoadEnvFiles(logger *slog.Logger, files ...string) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, file := range files {
		if _, err := os.Stat(file); os.IsNotExist(err) {
			logger.Debug("env file not found", "path", file)
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.Warn("failed to load env file", "path", file, "error", err)
			continue
		}
		logger.Debug("loaded env file", "path", file)
	}
}

// LoadConfigFromEnv returns DefaultConfig overridden by the environment.
func LoadConfigFromEnv() (Config, error) {
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	cfg := env.Apply(defaultConfig())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply overlays the environment view on cfg.
func (e EnvConfig) Apply(cfg Config) Config {
	cfg = cloneConfig(cfg)
	cfg.API.BaseURL = e.BackendURL
	cfg.API.Timeout = e.Timeout
	cfg.API.Origin = e.Origin
	cfg.Routes.Login = e.LoginRoute
	cfg.Routes.VerifyEmail = e.VerifyRoute
	cfg.Cache.Backend = CacheBackend(e.CacheBackend)
	cfg.Cache.RedisAddr = e.RedisAddr
	cfg.Cache.RedisPrefix = e.RedisPrefix
	cfg.Cache.TTL = e.CacheTTL
	cfg.Audit.Enabled = e.AuditEnabled
	if e.MetricsLatency {
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
	}
	return cfg
}
