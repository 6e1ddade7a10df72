package session

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a cached session slot.
type Status uint8

const (
	// StatusUnknown means no fetch has completed for the slot yet.
	StatusUnknown Status = iota
	// StatusRevalidating means a current-user fetch is in flight.
	StatusRevalidating
	// StatusResolved means the backend returned a user.
	StatusResolved
	// StatusUnresolved means the last fetch failed, asked for verification, or the
	// session was cleared by logout.
	StatusUnresolved
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusRevalidating:
		return "revalidating"
	case StatusResolved:
		return "resolved"
	case StatusUnresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// User is the opaque JSON object returned by the current-user endpoint.
type User map[string]any

// EmailVerifiedAtField is the user attribute consulted by the verify-email redirect.
const EmailVerifiedAtField = "email_verified_at"

// EmailVerified reports whether the email-verified timestamp is set.
func (u User) EmailVerified() bool {
	if u == nil {
		return false
	}
	v, ok := u[EmailVerifiedAtField]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns field as a string, or "" when absent or not a string.
func (u User) String(field string) string {
	if u == nil {
		return ""
	}
	s, _ := u[field].(string)
	return s
}

// Entry is the value held in one session slot.
//
// Generation is assigned by the Cache on every Store and only grows, so observers
// can tell a fresh transition from a replayed notification.
type Entry struct {
	Status     Status
	User       User
	Err        error
	Generation uint64
	UpdatedAt  time.Time
}

// HasUser reports whether the entry carries a resolved user.
func (e Entry) HasUser() bool {
	return e.User != nil
}

// RemoteError is the serialisable form of a session fetch error. Caches that cross
// a process boundary store errors as RemoteError.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("session fetch failed with status %d: %s", e.StatusCode, e.Message)
	}
	return "session fetch failed: " + e.Message
}

// HTTPStatus returns the backend status code, or 0 for transport failures.
func (e *RemoteError) HTTPStatus() int {
	return e.StatusCode
}

type httpStatuser interface {
	HTTPStatus() int
}

func toRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RemoteError); ok {
		return re
	}
	out := &RemoteError{Message: err.Error()}
	if hs, ok := err.(httpStatuser); ok {
		out.StatusCode = hs.HTTPStatus()
	}
	return out
}
