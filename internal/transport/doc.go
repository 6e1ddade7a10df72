// Package transport is the HTTP client for the cookie-session auth backend.
//
// Every request carries the session cookies held in the API's jar and the AJAX
// headers the backend expects. State-mutating requests additionally carry the
// anti-forgery token read back from the XSRF cookie, so callers must fetch that
// cookie first.
//
// # What this package must NOT do
//
//   - Retry requests. Each call is attempted exactly once.
//   - Interpret status codes beyond classifying non-2xx responses as [StatusError].
package transport
