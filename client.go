package authsession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/transport"
	"github.com/MrEthical07/authsession/session"
	"github.com/google/uuid"
)

// Client owns everything controllers share: the backend transport, the
// session cache, metrics, the audit dispatcher and the logger. It is safe for
// concurrent use; build one per backend and mount a Controller per page view,
// request or command.
type Client struct {
	config    Config
	api       *transport.API
	cache     session.Cache
	navigator Navigator
	logger    *slog.Logger
	metrics   *Metrics
	audit     *internalaudit.Dispatcher
	closers   []func() error

	closed    atomic.Bool
	closeOnce sync.Once
}

// MountOptions describe one controller mount.
type MountOptions struct {
	Policy Policy
	// RedirectTarget is where guest pages send users that already have a
	// session, and where the verify-email page sends verified users.
	RedirectTarget string
	// Route is the front-end route the controller is mounted on.
	Route string
	// Params are the route's query parameters (for example the reset token).
	Params map[string]string
	// Navigator overrides the Client's navigator.
	Navigator Navigator
	// Jar holds the cookies of this mount. Nil shares the Client's jar.
	Jar http.CookieJar
	// CacheScope separates session slots of different cookie holders that
	// share one cache. Mounts with a Jar should set it.
	CacheScope string
}

// NewCookieJar returns an empty jar with public-suffix domain rules.
func NewCookieJar() http.CookieJar {
	return transport.NewJar()
}

// Mount creates a controller and revalidates its session once. A failed
// current-user fetch does not fail Mount; it is recorded as the session error.
// The returned error is non-nil only when the controller could not be created
// or a navigation triggered by the first fetch failed; in the latter case the
// controller is still returned.
func (c *Client) Mount(ctx context.Context, opts MountOptions) (*Controller, error) {
	if c == nil || c.closed.Load() {
		return nil, ErrClientNotReady
	}
	if !opts.Policy.valid() {
		return nil, ErrInvalidPolicy
	}
	if opts.Route != "" && !validRoute(opts.Route) {
		return nil, ErrInvalidRoute
	}
	if opts.RedirectTarget != "" && !validRoute(opts.RedirectTarget) {
		return nil, ErrInvalidRoute
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = ensureRequestID(ctx)

	api := c.api
	if opts.Jar != nil {
		api = api.WithJar(opts.Jar)
	}
	nav := opts.Navigator
	if nav == nil {
		nav = c.navigator
	}

	ctrl := newController(c, api, nav, opts, ctx)
	if entry, err := c.cache.Load(ctx, ctrl.key); err != nil {
		c.logger.WarnContext(ctx, "authsession: session load failed", "key", ctrl.key, "error", err)
	} else {
		ctrl.apply(entry)
	}
	ctrl.unsubscribe = c.cache.Subscribe(ctrl.key, ctrl.onEntry)

	return ctrl, ctrl.Revalidate(ctx)
}

// Close stops the audit dispatcher and releases caches the Client created.
// Controllers mounted from a closed Client keep working on their cached state
// but cannot be mounted anew.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.audit.Close()
		for _, fn := range c.closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the Client's counters and
// the session fetch latency histogram. A disabled store yields empty maps.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Cache returns the session cache shared by this Client's controllers.
func (c *Client) Cache() session.Cache {
	return c.cache
}

// Config returns a copy of the Client's configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// BackendURL returns the backend base URL, the URL cookie jars key cookies by.
func (c *Client) BackendURL() *url.URL {
	return c.api.BaseURL()
}

// Jar returns the cookie jar shared by mounts without their own.
func (c *Client) Jar() http.CookieJar {
	return c.api.Jar()
}

func (c *Client) newMountID() string {
	return uuid.NewString()
}

func (c *Client) emitAudit(ctx context.Context, ev AuditEvent) {
	if c.audit == nil {
		return
	}
	if ev.RequestID == "" {
		ev.RequestID = RequestIDFromContext(ctx)
	}
	c.audit.Emit(ctx, ev)
}
