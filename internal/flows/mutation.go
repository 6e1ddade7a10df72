package flows

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authsession/internal/transport"
)

// MutationMetrics holds the per-action metric IDs for success, a 422 and any
// other failure.
type MutationMetrics struct {
	CSRFFetch        int
	CSRFFailure      int
	Success          int
	ValidationFailed int
	Failure          int
}

// MutationDeps captures one anti-forgery-protected POST.
type MutationDeps struct {
	Event string
	Path  string
	Body  any

	FetchCSRF func(context.Context) error
	Post      func(context.Context, string, any) (*transport.Response, error)
	// AfterSuccess runs once after a 2xx response, before RunMutation returns.
	AfterSuccess func(context.Context)

	Hooks
	Metrics MutationMetrics
}

// MutationResult is the flow-local outcome of a mutation that did not fail.
// ValidationBody is set, and Response is nil, when the backend answered 422.
type MutationResult struct {
	Response       *transport.Response
	ValidationBody []byte
}

// RunMutation fetches the anti-forgery cookie and then sends the POST. Each
// request is attempted exactly once. A 422 is returned as a result; any other
// failure is returned unmodified.
func RunMutation(ctx context.Context, deps MutationDeps) (MutationResult, error) {
	normalizeMutationDeps(&deps)

	deps.MetricInc(deps.Metrics.CSRFFetch)
	if err := deps.FetchCSRF(ctx); err != nil {
		deps.MetricInc(deps.Metrics.CSRFFailure)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, HTTPStatus(err), err, func() map[string]string {
			return map[string]string{"stage": "csrf"}
		})
		return MutationResult{}, err
	}

	resp, err := deps.Post(ctx, deps.Path, deps.Body)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnprocessableEntity {
			deps.MetricInc(deps.Metrics.ValidationFailed)
			deps.EmitAudit(ctx, deps.Event, false, se.StatusCode, nil, func() map[string]string {
				return map[string]string{"stage": "validation"}
			})
			return MutationResult{ValidationBody: se.Body}, nil
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Event, false, HTTPStatus(err), err, nil)
		return MutationResult{}, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Event, true, resp.StatusCode, nil, nil)
	if deps.AfterSuccess != nil {
		deps.AfterSuccess(ctx)
	}
	return MutationResult{Response: resp}, nil
}

func normalizeMutationDeps(deps *MutationDeps) {
	deps.Hooks.normalize()
}
