package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/MrEthical07/authsession"
)

// ErrResponseWritten is returned to a controller that navigates after the
// handler already started the response.
var ErrResponseWritten = errors.New("response already written")

type (
	controllerContextKey struct{}
	navigatorContextKey  struct{}
)

// ControllerFromContext returns the controller mounted for the request.
func ControllerFromContext(ctx context.Context) (*authsession.Controller, bool) {
	ctrl, ok := ctx.Value(controllerContextKey{}).(*authsession.Controller)
	return ctrl, ok
}

// StateFromContext returns the session state of the request's controller.
func StateFromContext(ctx context.Context) (authsession.State, bool) {
	ctrl, ok := ControllerFromContext(ctx)
	if !ok {
		return authsession.State{}, false
	}
	return ctrl.State(), true
}

// Redirected reports whether the request's controller already answered with a
// redirect. Handlers check it after an action before writing a response.
func Redirected(ctx context.Context) bool {
	nav, ok := ctx.Value(navigatorContextKey{}).(*redirectNavigator)
	return ok && nav.Redirected()
}

// Options configure a Guard.
type Options struct {
	Policy         authsession.Policy
	RedirectTarget string
	Logger         *slog.Logger
}

// Guard mounts a controller for every request and hands it to next through
// the request context. A navigation decided while mounting ends the request
// with a 303.
func Guard(client *authsession.Client, opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			cfg := client.Config()
			backend := client.BackendURL()
			sent := r.Cookies()
			jar := authsession.NewCookieJar()
			jar.SetCookies(backend, sent)

			rw := &responseWriter{ResponseWriter: w}
			rw.relay = func() {
				relayCookies(rw.ResponseWriter, jar.Cookies(backend), sent, cfg.API.CSRFCookieName, r.TLS != nil)
			}
			nav := &redirectNavigator{w: rw}

			ctrl, err := client.Mount(r.Context(), authsession.MountOptions{
				Policy:         opts.Policy,
				RedirectTarget: opts.RedirectTarget,
				Route:          r.URL.Path,
				Params:         queryParams(r),
				Navigator:      nav,
				Jar:            jar,
				CacheScope:     cookieScope(sent),
			})
			if ctrl == nil {
				status := http.StatusInternalServerError
				if errors.Is(err, authsession.ErrClientNotReady) {
					status = http.StatusServiceUnavailable
				}
				logger.ErrorContext(r.Context(), "authsession: mount failed", "path", r.URL.Path, "error", err)
				http.Error(w, http.StatusText(status), status)
				return
			}
			defer release(client, ctrl)
			if err != nil {
				logger.WarnContext(r.Context(), "authsession: navigation on mount failed", "path", r.URL.Path, "error", err)
			}

			if nav.Redirected() {
				return
			}

			ctx := context.WithValue(r.Context(), controllerContextKey{}, ctrl)
			ctx = context.WithValue(ctx, navigatorContextKey{}, nav)
			next.ServeHTTP(rw, r.WithContext(ctx))
			rw.flushCookies()
		})
	}
}

// RequireGuest guards pages for visitors without a session.
func RequireGuest(client *authsession.Client, target string) func(http.Handler) http.Handler {
	return Guard(client, Options{Policy: authsession.PolicyGuest, RedirectTarget: target})
}

// RequireAuth guards pages that need a session.
func RequireAuth(client *authsession.Client) func(http.Handler) http.Handler {
	return Guard(client, Options{Policy: authsession.PolicyAuth})
}

type subscriberCounter interface {
	Subscribers(key string) int
}

// release closes the controller and drops its slot when no other request
// still observes it.
func release(client *authsession.Client, ctrl *authsession.Controller) {
	ctrl.Close()
	cache := client.Cache()
	if counter, ok := cache.(subscriberCounter); ok && counter.Subscribers(ctrl.CacheKey()) == 0 {
		_ = cache.Delete(context.Background(), ctrl.CacheKey())
	}
}

type responseWriter struct {
	http.ResponseWriter
	relay func()

	mu    sync.Mutex
	wrote bool
}

func (w *responseWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeHeaderLocked(code)
}

func (w *responseWriter) writeHeaderLocked(code int) {
	if w.wrote {
		return
	}
	w.wrote = true
	w.relay()
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	w.writeHeaderLocked(http.StatusOK)
	w.mu.Unlock()
	return w.ResponseWriter.Write(b)
}

// flushCookies relays cookies for handlers that never wrote a response.
func (w *responseWriter) flushCookies() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.wrote {
		w.wrote = true
		w.relay()
	}
}

func (w *responseWriter) redirect(route string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wrote {
		return ErrResponseWritten
	}
	w.Header().Set("Location", route)
	w.writeHeaderLocked(http.StatusSeeOther)
	return nil
}

// redirectNavigator turns the first navigation into a 303.
type redirectNavigator struct {
	w *responseWriter

	mu    sync.Mutex
	route string
}

func (n *redirectNavigator) Navigate(_ context.Context, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route != "" {
		return nil
	}
	if err := n.w.redirect(route); err != nil {
		return err
	}
	n.route = route
	return nil
}

func (n *redirectNavigator) Redirected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route != ""
}

func queryParams(r *http.Request) map[string]string {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// cookieScope names the session slot for one set of browser cookies.
func cookieScope(cookies []*http.Cookie) string {
	if len(cookies) == 0 {
		return "anonymous"
	}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	sort.Strings(pairs)
	sum := sha256.Sum256([]byte(strings.Join(pairs, ";")))
	return hex.EncodeToString(sum[:16])
}

// relayCookies sends the browser every cookie the backend set, changed or
// expired during the request.
func relayCookies(w http.ResponseWriter, current, sent []*http.Cookie, csrfName string, secure bool) {
	before := make(map[string]string, len(sent))
	for _, c := range sent {
		before[c.Name] = c.Value
	}
	after := make(map[string]string, len(current))
	for _, c := range current {
		after[c.Name] = c.Value
	}

	names := make([]string, 0, len(after)+len(before))
	for name := range after {
		names = append(names, name)
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := after[name]
		old, had := before[name]
		if ok && had && value == old {
			continue
		}
		cookie := &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: name != csrfName,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		}
		if !ok {
			cookie.MaxAge = -1
		}
		http.SetCookie(w, cookie)
	}
}
