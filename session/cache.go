package session

import (
	"context"
	"errors"
	"strings"
)

// ErrCacheUnavailable is returned when the backing cache store cannot be reached.
var ErrCacheUnavailable = errors.New("session cache unavailable")

// FetchFunc produces a fresh entry for a slot. It is expected to Store the entry
// itself so that observers are notified.
type FetchFunc func(ctx context.Context) (Entry, error)

// Cache holds session slots keyed by endpoint identity.
//
// Controllers mounted on the same key share one logical slot: a Store by any of
// them is delivered to every subscriber of that key.
type Cache interface {
	// Load returns the slot for key. A missing slot is reported as an Entry with
	// StatusUnknown and a nil error.
	Load(ctx context.Context, key string) (Entry, error)
	// Store replaces the slot and returns it with its new generation.
	Store(ctx context.Context, key string, entry Entry) (Entry, error)
	// Delete drops the slot.
	Delete(ctx context.Context, key string) error
	// Do runs fn at most once concurrently per key; concurrent callers share the
	// first caller's result.
	Do(ctx context.Context, key string, fn FetchFunc) (Entry, error)
	// Subscribe registers fn for every Store on key until cancel is called.
	Subscribe(key string, fn func(Entry)) (cancel func())
}

// Key derives the slot key for an endpoint. scope separates independent cookie
// holders that talk to the same endpoint (for example one per browser session
// when a server proxies many users).
func Key(endpoint, scope string) string {
	endpoint = strings.TrimSpace(endpoint)
	if scope == "" {
		return endpoint
	}
	return endpoint + "#" + scope
}
