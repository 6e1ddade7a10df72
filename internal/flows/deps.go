package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/internal/transport"
)

// Hooks carries the observability callbacks shared by every flow. Nil hooks
// are replaced with no-ops.
type Hooks struct {
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, status int, err error, meta func() map[string]string)
	LogError  func(ctx context.Context, msg string, err error)
}

func (h *Hooks) normalize() {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, int, error, func() map[string]string) {}
	}
	if h.LogError == nil {
		h.LogError = func(context.Context, string, error) {}
	}
}

// HTTPStatus returns the backend status carried by err, or 0 when err is not a
// backend status error.
func HTTPStatus(err error) int {
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
