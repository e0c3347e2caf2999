/*
Package metrics provides Prometheus metrics collection and exposition for Brigade.

The metrics package defines and registers every Brigade metric with the
Prometheus client library, giving operators visibility into fleet health,
command throughput, revision publishing, claim latency, and raft state.
Metrics are exposed on the ops listener for scraping, next to the health
and readiness probes served by the ops server.

# Architecture

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐            │
	│  │          Prometheus Registry               │            │
	│  │  - Global DefaultRegistry                  │            │
	│  │  - MustRegister at package init            │            │
	│  │  - Automatic Go runtime metrics            │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │           Metric Sources                   │            │
	│  │                                            │            │
	│  │  API handlers: counters on the hot path    │            │
	│  │  Collector: periodic gauge sweep from      │            │
	│  │    manager state (fleet, commands, raft)   │            │
	│  │  Claim client: consume latency histogram   │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │        Ops Listener Endpoints              │            │
	│  │  - /metrics  Prometheus text exposition    │            │
	│  │  - /healthz  liveness (pkg/api ops server) │            │
	│  │  - /readyz   raft/storage readiness        │            │
	│  └────────────────────────────────────────────┘            │
	└────────────────────────────────────────────────────────────┘

Counters are incremented inline where the event happens (API handlers,
claim client). Gauges describing fleet state are recomputed by the
Collector every 15 seconds from manager listings so they stay correct
across restarts and raft snapshot restores.

# Metrics Catalog

Fleet gauges (set by Collector):

	brigade_nodes_total{class}        Nodes by derived health class
	                                  (ONLINE, STALE, OFFLINE)
	brigade_stores_total              Total stores
	brigade_tenants_total             Total tenants
	brigade_resellers_total           Total resellers
	brigade_commands_total{status}    Commands by status
	                                  (PENDING, ACKED, FAILED)

Command counters (incremented by API handlers):

	brigade_command_acks_total{status}      Node acknowledgements by
	                                        reported status
	brigade_command_retries_total           Operator retries
	brigade_command_cancels_total           Operator cancellations
	brigade_revisions_published_total{domain}  Published revisions by
	                                           configuration domain
	brigade_nodes_registered_total          Successful node registrations

Claim metrics (recorded by the claim client):

	brigade_claim_requests_total{result}       Claim attempts by result
	                                           (ok, upstream_error, conflict)
	brigade_claim_consume_duration_seconds     Outbound consume-call latency

Raft gauges (set by Collector):

	brigade_raft_is_leader       1 when this process is the raft leader
	brigade_raft_log_index       Current raft log index
	brigade_raft_applied_index   Last applied raft log index

API metrics (recorded by middleware):

	brigade_api_requests_total{method, route, status}   Request count
	brigade_api_request_duration_seconds{method, route} Request latency

The route label is the registered mux pattern, not the raw URL, so
cardinality stays bounded regardless of how many stores or nodes exist.

# Usage

Incrementing counters:

	metrics.CommandAcksTotal.WithLabelValues("ACKED").Inc()
	metrics.RevisionsPublishedTotal.WithLabelValues("MENU").Inc()

Timing an operation:

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDuration(metrics.ClaimConsumeDuration)

Running the gauge sweep:

	collector := metrics.NewCollector(mgr)
	collector.Start()
	defer collector.Stop()

Exposing the endpoint:

	mux.Handle("/metrics", metrics.Handler())

# Monitoring

Useful PromQL:

	Fleet health:    brigade_nodes_total{class="OFFLINE"} > 0
	Command backlog: brigade_commands_total{status="PENDING"}
	Ack error rate:  rate(brigade_command_acks_total{status="FAILED"}[5m])
	No raft leader:  max(brigade_raft_is_leader) == 0
	Claim latency:   histogram_quantile(0.95,
	                   rate(brigade_claim_consume_duration_seconds_bucket[5m]))
	API error rate:  rate(brigade_api_requests_total{status=~"5.."}[1m])

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
