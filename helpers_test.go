package authsession

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/MrEthical07/authsession/internal/backendtest"
)

type navRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (n *navRecorder) Navigate(_ context.Context, route string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
	return nil
}

func (n *navRecorder) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.routes))
	copy(out, n.routes)
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(be *backendtest.Backend) Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = be.URL()
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestClient(t *testing.T, be *backendtest.Backend, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := testConfig(be)
	for _, fn := range mutate {
		fn(&cfg)
	}
	c, err := New().WithConfig(cfg).WithLogger(quietLogger()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func mount(t *testing.T, c *Client, opts MountOptions) (*Controller, *navRecorder) {
	t.Helper()
	nav := &navRecorder{}
	opts.Navigator = nav
	ctrl, err := c.Mount(context.Background(), opts)
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return ctrl, nav
}

// loggedIn returns a client whose shared jar holds a session for email.
func loggedIn(t *testing.T, be *backendtest.Backend, email string, mutate ...func(*Config)) *Client {
	t.Helper()
	c := newTestClient(t, be, mutate...)
	ctrl, _ := mount(t, c, MountOptions{})
	res, err := ctrl.Login(context.Background(), LoginRequest{Email: email, Password: "secret"})
	if err != nil || !res.OK() {
		t.Fatalf("login failed: %+v %v", res, err)
	}
	ctrl.Close()
	return c
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
