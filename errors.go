package authsession

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/authsession/internal/transport"
)

var (
	// ErrVerificationRequired reports that the backend answered the current-user
	// fetch with 409. It is shared by every caller of one session fetch;
	// controllers handle it by navigating to the verify-email route and never
	// return it.
	ErrVerificationRequired = errors.New("email verification required")
	// ErrEmptyUser is recorded as the session error when the current-user
	// endpoint answers 2xx with an empty or null body.
	ErrEmptyUser = errors.New("current user response carried no user")
	// ErrClientNotReady is returned when a Client is nil or closed.
	ErrClientNotReady = errors.New("authsession client not ready")
	// ErrControllerClosed is returned by actions on a closed Controller.
	ErrControllerClosed = errors.New("authsession controller closed")
	// ErrMissingResetToken is returned by ResetPassword when neither the request
	// nor the mount parameters carry a token. No request is sent.
	ErrMissingResetToken = errors.New("password reset token missing")
	// ErrActionInFlight is returned when the same action is already running on a
	// controller and ActionsConfig.DeduplicateMutations is enabled.
	ErrActionInFlight = errors.New("action already in flight")
	ErrInvalidPolicy  = errors.New("invalid middleware policy")
	ErrInvalidRoute   = errors.New("invalid route")
)

// StatusError is returned for any non-2xx backend response other than a 422 on
// a mutating action.
type StatusError = transport.StatusError

// ValidationError is the decoded form of a 422 response. Actions never return
// it; its errors are delivered in Result.Errors. It is exported for callers
// that inspect a raw StatusError themselves (see AsValidationError).
type ValidationError struct {
	Message string
	Errors  FieldErrors
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %d field(s)", e.Errors.Len())
}

// HTTPStatus always returns 422.
func (e *ValidationError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

// AsValidationError decodes err as a validation failure when it is a 422
// StatusError.
func AsValidationError(err error) (*ValidationError, bool) {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
		return nil, false
	}
	return decodeValidation(se.Body), true
}

// HTTPStatus returns the backend status code carried by err, or 0.
func HTTPStatus(err error) int {
	var hs interface{ HTTPStatus() int }
	if errors.As(err, &hs) {
		return hs.HTTPStatus()
	}
	return 0
}
