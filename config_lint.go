package authsession

import (
	"net"
	"net/url"
)

// LintWarning is a configuration that is valid but likely unintended.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the ordered result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that Validate accepts but that commonly break a
// cookie-session backend in production.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && !isLoopback(u.Hostname()) {
		ws = append(ws, LintWarning{
			Code:    "insecure_base_url",
			Message: "session cookies are sent over plain http to a non-loopback host",
		})
	}
	if c.API.Origin == "" {
		ws = append(ws, LintWarning{
			Code:    "origin_unset",
			Message: "without an Origin the backend may not treat requests as stateful",
		})
	}
	if c.Cache.Backend == CacheRedis && c.Cache.TTL == 0 {
		ws = append(ws, LintWarning{
			Code:    "redis_ttl_unset",
			Message: "redis session slots never expire unless logged out",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "actions block when the audit buffer is full",
		})
	}
	if !c.Actions.DeduplicateMutations {
		ws = append(ws, LintWarning{
			Code:    "dedup_disabled",
			Message: "concurrent submits of the same action each reach the backend",
		})
	}

	return ws
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
