// Package flows contains pure-function orchestrators for every controller
// operation.
//
// Each flow function (RunFetchSession, RunMutation, RunLogout) accepts a typed
// dependency struct and returns results without side-effects beyond those
// dependencies. Metric and audit hooks are injected as funcs so that flows can
// be tested without a Client.
//
// # Architecture boundaries
//
// Flow functions sequence calls to the backend transport, the session cache and
// the navigator. They do NOT own any of these resources; ownership stays with
// the Client and its controllers.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authsession (to avoid import cycles).
//   - Decide redirects.
package flows
