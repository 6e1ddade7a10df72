package internaldefs

import (
	"github.com/MrEthical07/authsession"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authsession.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authsession.MetricSessionFetch, Name: "authsession_session_fetch_total", Help: "Current-user fetches started."},
	{ID: authsession.MetricSessionFetchSuccess, Name: "authsession_session_fetch_success_total", Help: "Current-user fetches that returned a user."},
	{ID: authsession.MetricSessionFetchFailure, Name: "authsession_session_fetch_failure_total", Help: "Current-user fetches that failed."},
	{ID: authsession.MetricVerificationRequired, Name: "authsession_verification_required_total", Help: "Current-user fetches answered with 409."},
	{ID: authsession.MetricCSRFFetch, Name: "authsession_csrf_fetch_total", Help: "Anti-forgery cookie fetches."},
	{ID: authsession.MetricCSRFFailure, Name: "authsession_csrf_failure_total", Help: "Failed anti-forgery cookie fetches."},
	{ID: authsession.MetricLoginSuccess, Name: "authsession_login_success_total", Help: "Accepted logins."},
	{ID: authsession.MetricLoginValidationFailed, Name: "authsession_login_validation_failed_total", Help: "Logins rejected with field errors."},
	{ID: authsession.MetricLoginFailure, Name: "authsession_login_failure_total", Help: "Logins that failed outright."},
	{ID: authsession.MetricRegisterSuccess, Name: "authsession_register_success_total", Help: "Accepted registrations."},
	{ID: authsession.MetricRegisterValidationFailed, Name: "authsession_register_validation_failed_total", Help: "Registrations rejected with field errors."},
	{ID: authsession.MetricRegisterFailure, Name: "authsession_register_failure_total", Help: "Registrations that failed outright."},
	{ID: authsession.MetricForgotPasswordSuccess, Name: "authsession_forgot_password_success_total", Help: "Accepted reset link requests."},
	{ID: authsession.MetricForgotPasswordValidationFailed, Name: "authsession_forgot_password_validation_failed_total", Help: "Reset link requests rejected with field errors."},
	{ID: authsession.MetricForgotPasswordFailure, Name: "authsession_forgot_password_failure_total", Help: "Reset link requests that failed outright."},
	{ID: authsession.MetricResetPasswordSuccess, Name: "authsession_reset_password_success_total", Help: "Accepted password resets."},
	{ID: authsession.MetricResetPasswordValidationFailed, Name: "authsession_reset_password_validation_failed_total", Help: "Password resets rejected with field errors."},
	{ID: authsession.MetricResetPasswordFailure, Name: "authsession_reset_password_failure_total", Help: "Password resets that failed outright."},
	{ID: authsession.MetricVerificationResendSuccess, Name: "authsession_verification_resend_success_total", Help: "Verification emails resent."},
	{ID: authsession.MetricVerificationResendFailure, Name: "authsession_verification_resend_failure_total", Help: "Failed verification resends."},
	{ID: authsession.MetricLogout, Name: "authsession_logout_total", Help: "Logouts posted to the backend."},
	{ID: authsession.MetricLogoutSkipped, Name: "authsession_logout_skipped_total", Help: "Logouts that skipped the backend because the session had failed."},
	{ID: authsession.MetricLogoutFailure, Name: "authsession_logout_failure_total", Help: "Logout posts that failed."},
	{ID: authsession.MetricRedirect, Name: "authsession_redirect_total", Help: "Navigations requested by controllers."},
	{ID: authsession.MetricActionRejectedInFlight, Name: "authsession_action_rejected_in_flight_total", Help: "Actions rejected while the same action was in flight."},
}

var HistogramDefs = []HistogramDef{
	{ID: authsession.MetricSessionFetchLatency, Name: "authsession_session_fetch_latency_seconds", Help: "Current-user fetch latency."},
}

// HistogramBounds are the upper bounds of the fixed buckets, in seconds.
var HistogramBounds = []string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramUpperBounds are HistogramBounds without +Inf, as numbers.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
