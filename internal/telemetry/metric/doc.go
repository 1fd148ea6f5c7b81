// Package metric provides the Prometheus metrics of the admin sidecar.
//
//   - collector.go: ProcessCollector, reading the monitored service and the
//     sidecar itself from procfs at scrape time
//   - prometheus.go: Registry with the request counter and text rendering
//
// Metrics are rendered on demand for GET /metrics. There is no background
// sampling: every scrape reads procfs afresh.
package metric
