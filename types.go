package authsession

import (
	"encoding/json"
	"io"

	internalaudit "github.com/MrEthical07/authsession/internal/audit"
	internalmetrics "github.com/MrEthical07/authsession/internal/metrics"
	"github.com/MrEthical07/authsession/session"
)

// User is the opaque current-user object returned by the backend.
type User = session.User

// SessionStatus is the lifecycle state of a controller's session.
type SessionStatus = session.Status

const (
	SessionUnknown      = session.StatusUnknown
	SessionRevalidating = session.StatusRevalidating
	SessionResolved     = session.StatusResolved
	SessionUnresolved   = session.StatusUnresolved
)

// LoginRequest is posted to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// RegisterRequest is posted to the register endpoint. Extra fields are merged
// into the JSON body; named fields win on conflict.
type RegisterRequest struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Extra                map[string]any
}

func (r RegisterRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		body[k] = v
	}
	body["name"] = r.Name
	body["email"] = r.Email
	body["password"] = r.Password
	body["password_confirmation"] = r.PasswordConfirmation
	return json.Marshal(body)
}

// ForgotPasswordRequest is posted to the forgot-password endpoint.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is posted to the reset endpoint. An empty Token is
// taken from the mount's "token" parameter.
type ResetPasswordRequest struct {
	Token                string `json:"token"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// AuditEvent is the audit record delivered to an AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink returns a ChannelSink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// Audit event types.
const (
	AuditSessionFetch         = internalaudit.EventSessionFetch
	AuditVerificationRequired = internalaudit.EventVerificationRequired
	AuditLogin                = internalaudit.EventLogin
	AuditRegister             = internalaudit.EventRegister
	AuditForgotPassword       = internalaudit.EventForgotPassword
	AuditResetPassword        = internalaudit.EventResetPassword
	AuditVerificationResend   = internalaudit.EventVerificationResend
	AuditLogout               = internalaudit.EventLogout
	AuditRedirect             = internalaudit.EventRedirect
)

// MetricID identifies a counter or histogram in MetricsSnapshot.
type MetricID = internalmetrics.MetricID

const (
	MetricSessionFetch                   = internalmetrics.MetricSessionFetch
	MetricSessionFetchSuccess            = internalmetrics.MetricSessionFetchSuccess
	MetricSessionFetchFailure            = internalmetrics.MetricSessionFetchFailure
	MetricVerificationRequired           = internalmetrics.MetricVerificationRequired
	MetricCSRFFetch                      = internalmetrics.MetricCSRFFetch
	MetricCSRFFailure                    = internalmetrics.MetricCSRFFailure
	MetricLoginSuccess                   = internalmetrics.MetricLoginSuccess
	MetricLoginValidationFailed          = internalmetrics.MetricLoginValidationFailed
	MetricLoginFailure                   = internalmetrics.MetricLoginFailure
	MetricRegisterSuccess                = internalmetrics.MetricRegisterSuccess
	MetricRegisterValidationFailed       = internalmetrics.MetricRegisterValidationFailed
	MetricRegisterFailure                = internalmetrics.MetricRegisterFailure
	MetricForgotPasswordSuccess          = internalmetrics.MetricForgotPasswordSuccess
	MetricForgotPasswordValidationFailed = internalmetrics.MetricForgotPasswordValidationFailed
	MetricForgotPasswordFailure          = internalmetrics.MetricForgotPasswordFailure
	MetricResetPasswordSuccess           = internalmetrics.MetricResetPasswordSuccess
	MetricResetPasswordValidationFailed  = internalmetrics.MetricResetPasswordValidationFailed
	MetricResetPasswordFailure           = internalmetrics.MetricResetPasswordFailure
	MetricVerificationResendSuccess      = internalmetrics.MetricVerificationResendSuccess
	MetricVerificationResendFailure      = internalmetrics.MetricVerificationResendFailure
	MetricLogout                         = internalmetrics.MetricLogout
	MetricLogoutSkipped                  = internalmetrics.MetricLogoutSkipped
	MetricLogoutFailure                  = internalmetrics.MetricLogoutFailure
	MetricRedirect                       = internalmetrics.MetricRedirect
	MetricActionRejectedInFlight         = internalmetrics.MetricActionRejectedInFlight
	MetricSessionFetchLatency            = internalmetrics.MetricSessionFetchLatency

	metricIDCount = internalmetrics.MetricIDCount
)

// MetricsSnapshot is a point-in-time copy of a Client's metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// Metrics is the lock-free metric store owned by a Client.
type Metrics = internalmetrics.Metrics

// NewMetrics returns a metric store for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
