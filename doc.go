// Package authsession is a client-side session controller for cookie-session
// ("Sanctum"-style) authentication backends.
//
// A [Client] owns the backend transport, the session cache, metrics and the
// audit dispatcher. [Client.Mount] creates a [Controller] for one page view,
// request or command: it fetches the current user once, exposes the auth
// actions (login, register, password reset, verification resend, logout) and
// applies the redirect rules of its [Policy] after every session transition.
//
// Every state-mutating POST is preceded by a fresh anti-forgery cookie fetch.
// Actions return a [Result]; a 422 is delivered as [Result.Errors] and never as
// an error, while any other failure is returned unmodified.
//
// # Architecture boundaries
//
// authsession is the public surface. Request sequencing lives in
// internal/flows, the HTTP client in internal/transport and the cache
// implementations in the session package.
//
// # What this package must NOT do
//
//   - Retry backend requests.
//   - Hold session state outside the injected session cache.
//   - Import any sub-package that re-imports authsession.
package authsession
