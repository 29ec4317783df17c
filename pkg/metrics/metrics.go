// Package metrics documents the Prometheus metrics exposed by the
// firehose client. Metrics are defined in their respective packages
// (auth, queue, client, dispatch, seen) to maintain modularity and
// avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the firehose
// client. All metrics are automatically registered via promauto in
// their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Auth Metrics (pkg/auth):
//   - firehose_tokens_minted_total (Counter): Access tokens minted
//   - firehose_auth_failures_total{reason} (Counter): Authentication failures
//     by reason (network, status, parse)
//
// Scheduler Metrics (pkg/queue):
//   - firehose_scheduler_tasks_total{scheduler, outcome} (Counter): Tasks
//     processed by scheduler instance and outcome (done, panic)
//   - firehose_scheduler_queue_depth{scheduler} (Gauge): Pending tasks
//   - firehose_scheduler_rate{scheduler} (Gauge): Learned allowance in
//     tasks per second
//
// Request Metrics (pkg/client):
//   - firehose_requests_total{endpoint, status} (Counter): Upstream requests
//     by endpoint and HTTP status
//   - firehose_request_duration_seconds{endpoint} (Histogram): Request
//     duration by endpoint
//   - firehose_errors_total{class} (Counter): Errors by class (client,
//     server, rate_limit, network)
//
// Dispatch Metrics (pkg/dispatch):
//   - firehose_dispatched_total{channel} (Counter): Models broadcast by
//     channel (comments, posts)
//   - firehose_dispatch_dropped_total{reason} (Counter): Models dropped
//     before broadcast (deleted_author, unknown_kind, duplicate)
//   - firehose_subscribers (Gauge): Registered subscribers
//
// Dedup Metrics (pkg/seen):
//   - firehose_seen_checks_total{result} (Counter): Dedup checks by result
//     (first, duplicate, error)
//
// Example Prometheus Queries:
//
//   # Throttling pressure
//   firehose_scheduler_rate{scheduler="requests"} <= 1
//
//   # Drop rate by reason
//   rate(firehose_dispatch_dropped_total[5m])
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(firehose_request_duration_seconds_bucket[5m]))
//
//   # Token churn
//   rate(firehose_tokens_minted_total[1h])
