// Package prometheus exposes goSession counters and latency histograms
// through a client_golang Collector.
//
// [NewCollector] reads [goSession.Manager.MetricsSnapshot] on each scrape.
// Register it with any prometheus.Registerer, or mount [Collector.Handler]
// for a self-contained /metrics endpoint. Counter names are prefixed
// gosession_*_total.
//
// # What this package must NOT do
//
//   - Register into the global default registry on its own.
//   - Mutate Manager state.
package prometheus
