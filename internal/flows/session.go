package flows

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/authsession/session"
)

// FetchSessionMetrics holds the metric IDs of the current-user fetch.
type FetchSessionMetrics struct {
	Fetch                int
	Success              int
	Failure              int
	VerificationRequired int
	Latency              int
}

// FetchSessionEvents names the audit events emitted by a fetch.
type FetchSessionEvents struct {
	Fetch                string
	VerificationRequired string
}

// FetchSessionErrors supplies the caller's sentinel errors.
type FetchSessionErrors struct {
	VerificationRequired error
}

// FetchSessionDeps captures current-user fetch dependencies.
type FetchSessionDeps struct {
	Key string

	GetUser func(context.Context) (session.User, error)
	Load    func(context.Context, string) (session.Entry, error)
	Store   func(context.Context, string, session.Entry) (session.Entry, error)

	Now     func() time.Time
	Observe func(int, time.Duration)

	Hooks
	Metrics FetchSessionMetrics
	Events  FetchSessionEvents
	Errors  FetchSessionErrors
}

// RunFetchSession marks the slot as revalidating, fetches the current user and
// stores the outcome. The returned entry is the stored one, or the computed one
// when the cache rejected the write.
//
// A 409 response leaves the slot unresolved without an error and is reported as
// Errors.VerificationRequired so that every caller sharing the fetch can
// redirect.
func RunFetchSession(ctx context.Context, deps FetchSessionDeps) (session.Entry, error) {
	normalizeFetchSessionDeps(&deps)
	deps.MetricInc(deps.Metrics.Fetch)

	prev, err := deps.Load(ctx, deps.Key)
	if err != nil {
		deps.LogError(ctx, "session load failed", err)
		prev = session.Entry{}
	}
	if _, err := deps.Store(ctx, deps.Key, session.Entry{Status: session.StatusRevalidating, User: prev.User}); err != nil {
		deps.LogError(ctx, "session store failed", err)
	}

	start := deps.Now()
	user, fetchErr := deps.GetUser(ctx)
	deps.Observe(deps.Metrics.Latency, deps.Now().Sub(start))

	var (
		entry    session.Entry
		verifyRq bool
	)
	switch {
	case fetchErr == nil:
		entry = session.Entry{Status: session.StatusResolved, User: user}
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Fetch, true, http.StatusOK, nil, nil)
	case HTTPStatus(fetchErr) == http.StatusConflict:
		entry = session.Entry{Status: session.StatusUnresolved}
		verifyRq = true
		deps.MetricInc(deps.Metrics.VerificationRequired)
		deps.EmitAudit(ctx, deps.Events.VerificationRequired, true, http.StatusConflict, nil, nil)
	default:
		entry = session.Entry{Status: session.StatusUnresolved, Err: fetchErr}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Fetch, false, HTTPStatus(fetchErr), fetchErr, nil)
	}

	stored, err := deps.Store(ctx, deps.Key, entry)
	if err != nil {
		deps.LogError(ctx, "session store failed", err)
		stored = entry
		stored.UpdatedAt = deps.Now()
	}

	if verifyRq {
		return stored, deps.Errors.VerificationRequired
	}
	return stored, nil
}

func normalizeFetchSessionDeps(deps *FetchSessionDeps) {
	deps.Hooks.normalize()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Observe == nil {
		deps.Observe = func(int, time.Duration) {}
	}
}
