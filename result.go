package authsession

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome tells which Result fields an action populated.
type Outcome uint8

const (
	// OutcomeSuccess means the backend accepted the action.
	OutcomeSuccess Outcome = iota
	// OutcomeFieldErrors means the backend rejected the input with 422; see
	// Result.Errors.
	OutcomeFieldErrors
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFieldErrors:
		return "field_errors"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Result is returned by every mutating action that reached the backend.
// Each call returns a fresh Result, so stale errors or status from a previous
// submit never carry over.
type Result struct {
	Outcome Outcome
	// Payload is the raw response body on success.
	Payload json.RawMessage
	// Errors holds the field errors on OutcomeFieldErrors.
	Errors FieldErrors
	// Message is the backend's top-level message, when it sent one.
	Message string
	// Status is the backend status string (forgot-password, resend
	// verification).
	Status string
	// HTTPStatus is the backend response code.
	HTTPStatus int
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// ResetStatusMessage is the status carried to the login route after a
// successful password reset when the backend's response has no status of its
// own. A non-empty backend status (for example a localised message) is carried
// instead.
const ResetStatusMessage = "Password reset successful"

// EncodeResetStatus encodes a status message for the login route's reset
// query parameter.
func EncodeResetStatus(msg string) string {
	return base64.StdEncoding.EncodeToString([]byte(msg))
}

// DecodeResetStatus decodes the login route's reset query parameter. Spaces
// are read as '+', which form decoding of an unescaped parameter produces.
func DecodeResetStatus(param string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(param, " ", "+"))
	if err != nil {
		return "", fmt.Errorf("decode reset status: %w", err)
	}
	return string(b), nil
}
