// Package middleware mounts an authsession controller per HTTP request for
// servers that front a cookie-session backend on behalf of browsers.
//
// # Guards
//
//   - [Guard] mounts a controller with the given policy.
//   - [RequireGuest] redirects visitors that already have a session.
//   - [RequireAuth] logs out and redirects visitors whose session cannot be
//     resolved.
//
// Each request gets its own cookie jar seeded from the browser's cookies and a
// session slot scoped to those cookies. The first navigation the controller
// asks for becomes a 303 response; cookies the backend changed are relayed to
// the browser before the response is written.
//
// # What this package must NOT do
//
//   - Decide redirects itself (the controller's rules do).
//   - Talk to the backend outside a controller.
package middleware
