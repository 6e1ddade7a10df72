// Package audit delivers controller activity records to a caller-supplied sink.
//
// # Components
//
//   - [Sink] is the consumer interface (channel, JSON lines, no-op).
//   - [Dispatcher] is a buffered async relay that either drops or blocks when full.
//   - [Event] records one fetch, action, logout or navigation.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. Deciding which events to
// emit belongs to the controller and the flow functions.
//
// # What this package must NOT do
//
//   - Filter events based on their content.
//   - Import authsession or any sibling internal package.
package audit
