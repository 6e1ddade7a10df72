package flows

import (
	"context"

	"github.com/MrEthical07/authsession/internal/transport"
)

// LogoutMetrics holds the metric IDs the logout flow increments.
type LogoutMetrics struct {
	Logout        int
	LogoutSkipped int
	LogoutFailure int
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Event string
	Path  string
	// SkipPost is set when the session already carries an error.
	SkipPost   bool
	LoginRoute string

	FetchCSRF func(context.Context) error
	Post      func(context.Context, string, any) (*transport.Response, error)
	Clear     func(context.Context) error
	Navigate  func(context.Context, string) error

	Hooks
	Metrics LogoutMetrics
}

// RunLogout ends the backend session, clears the local one and navigates to the
// login route. Backend and cache failures are logged and audited, never
// returned; the only error surfaced is the navigator's.
func RunLogout(ctx context.Context, deps LogoutDeps) error {
	deps.Hooks.normalize()

	if deps.SkipPost {
		deps.MetricInc(deps.Metrics.LogoutSkipped)
		deps.EmitAudit(ctx, deps.Event, true, 0, nil, func() map[string]string {
			return map[string]string{"post": "skipped"}
		})
	} else if err := postLogout(ctx, deps); err != nil {
		deps.MetricInc(deps.Metrics.LogoutFailure)
		deps.LogError(ctx, "logout failed", err)
		deps.EmitAudit(ctx, deps.Event, false, HTTPStatus(err), err, nil)
	} else {
		deps.MetricInc(deps.Metrics.Logout)
		deps.EmitAudit(ctx, deps.Event, true, 0, nil, nil)
	}

	if err := deps.Clear(ctx); err != nil {
		deps.LogError(ctx, "session clear failed", err)
	}

	return deps.Navigate(ctx, deps.LoginRoute)
}

func postLogout(ctx context.Context, deps LogoutDeps) error {
	if deps.FetchCSRF != nil {
		if err := deps.FetchCSRF(ctx); err != nil {
			return err
		}
	}
	_, err := deps.Post(ctx, deps.Path, nil)
	return err
}
