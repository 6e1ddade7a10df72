package authsession

import (
	"fmt"
	"strings"
)

// Policy is the page-level middleware a controller is mounted with.
type Policy uint8

const (
	// PolicyNone applies no redirect rule beyond the verify-email one.
	PolicyNone Policy = iota
	// PolicyGuest pages are for visitors without a session.
	PolicyGuest
	// PolicyAuth pages require a session.
	PolicyAuth
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyGuest:
		return "guest"
	case PolicyAuth:
		return "auth"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func (p Policy) valid() bool {
	return p <= PolicyAuth
}

// ParsePolicy parses "guest", "auth" or "" / "none".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PolicyNone, nil
	case "guest":
		return PolicyGuest, nil
	case "auth":
		return PolicyAuth, nil
	default:
		return PolicyNone, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}
