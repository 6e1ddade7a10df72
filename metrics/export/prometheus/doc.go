// Package prometheus exposes authsession metrics to Prometheus.
//
// [PrometheusExporter.Handler] renders every counter and the session fetch
// latency histogram in text exposition format; [PrometheusExporter.Collector]
// offers the same values to a caller-owned registry. Counter names are
// prefixed authsession_ and suffixed _total.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry.
//   - Mutate client state.
package prometheus
