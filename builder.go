package authsession

import (
	"errors"
	"log/slog"
	"net/http"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/transport"
	"github.com/MrEthical07/authsession/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Client. A Builder can be built once.
type Builder struct {
	config     Config
	httpClient *http.Client
	cache      session.Cache
	redis      redis.UniversalClient
	navigator  Navigator
	auditSink  AuditSink
	logger     *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The Builder keeps its own copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithHTTPClient sets the client used for backend requests. Its Jar, when
// set, is shared by every controller mounted without MountOptions.Jar; its
// Timeout, when zero, is taken from APIConfig.Timeout.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithSessionCache injects the session cache, overriding CacheConfig. The
// Client does not close an injected cache.
func (b *Builder) WithSessionCache(cache session.Cache) *Builder {
	b.cache = cache
	return b
}

// WithRedis supplies the Redis client for the redis cache backend and selects
// that backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	b.config.Cache.Backend = CacheRedis
	return b
}

// WithNavigator sets the default navigator for controllers mounted without
// MountOptions.Navigator.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

// WithAuditSink sets the sink the audit dispatcher delivers to.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger; slog.Default() is used otherwise.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles counter collection.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the session fetch latency histogram. Enabling
// it also enables metrics.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	if enabled {
		b.config.Metrics.Enabled = true
	}
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	api, err := transport.New(transport.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		Origin:         cfg.API.Origin,
		Headers:        cfg.API.Headers,
		CSRFCookieName: cfg.API.CSRFCookieName,
		CSRFHeaderName: cfg.API.CSRFHeaderName,
		RequestID:      RequestIDFromContext,
	}, b.httpClient)
	if err != nil {
		return nil, err
	}

	client := &Client{
		config:  cfg,
		api:     api,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- SESSION CACHE --------
	switch {
	case b.cache != nil:
		client.cache = b.cache
	case cfg.Cache.Backend == CacheRedis:
		rdb := b.redis
		if rdb == nil {
			if cfg.Cache.RedisAddr == "" {
				return nil, errors.New("redis cache backend requires a redis client or Cache RedisAddr")
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
			client.closers = append(client.closers, owned.Close)
			rdb = owned
		}
		rc := session.NewRedisCache(rdb, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
		client.closers = append([]func() error{rc.Close}, client.closers...)
		client.cache = rc
	default:
		client.cache = session.NewMemoryCache()
	}

	// -------- NAVIGATION --------
	client.navigator = b.navigator
	if client.navigator == nil {
		client.navigator = logNavigator{logger: logger}
	}

	// -------- AUDIT --------
	client.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			logger.Debug("authsession: audit event dropped", "event", ev.EventType, "request_id", ev.RequestID)
		},
	}, b.auditSink)

	b.built = true

	return client, nil
}
