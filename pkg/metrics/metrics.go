package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brigade_nodes_total",
			Help: "Total number of edge nodes by derived health class",
		},
		[]string{"health"},
	)

	StoresTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_stores_total",
			Help: "Total number of stores",
		},
	)

	TenantsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_tenants_total",
			Help: "Total number of tenants",
		},
	)

	ResellersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_resellers_total",
			Help: "Total number of resellers",
		},
	)

	// Command queue metrics
	CommandsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brigade_commands_total",
			Help: "Total number of commands by status",
		},
		[]string{"status"},
	)

	CommandAcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brigade_command_acks_total",
			Help: "Total number of command acknowledgements by reported status",
		},
		[]string{"status"},
	)

	CommandRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_command_retries_total",
			Help: "Total number of operator command retries",
		},
	)

	CommandCancelsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_command_cancels_total",
			Help: "Total number of operator command cancellations",
		},
	)

	// Revision metrics
	RevisionsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brigade_revisions_published_total",
			Help: "Total number of published revisions by domain",
		},
		[]string{"domain"},
	)

	// Node lifecycle metrics
	NodesRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_nodes_registered_total",
			Help: "Total number of node registrations via bootstrap token",
		},
	)

	// Claim metrics
	NodeHeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_node_heartbeats_total",
			Help: "Total number of node heartbeats accepted",
		},
	)

	ClaimRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brigade_claim_requests_total",
			Help: "Total number of onsite claim attempts by result",
		},
		[]string{"result"},
	)

	ClaimConsumeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brigade_claim_consume_duration_seconds",
			Help:    "Duration of the outbound claim/consume call in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconcileSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brigade_reconcile_sweep_duration_seconds",
			Help:    "Duration of one reconciler sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconcileSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_reconcile_sweeps_total",
			Help: "Total number of reconciler sweeps",
		},
	)

	NodeOfflineTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brigade_node_offline_transitions_total",
			Help: "Total number of observed node transitions to OFFLINE",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_raft_is_leader",
			Help: "Whether this instance is the raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_raft_log_index",
			Help: "Current raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "brigade_raft_applied_index",
			Help: "Last applied raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brigade_api_requests_total",
			Help: "Total number of API requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brigade_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(StoresTotal)
	prometheus.MustRegister(TenantsTotal)
	prometheus.MustRegister(ResellersTotal)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandAcksTotal)
	prometheus.MustRegister(CommandRetriesTotal)
	prometheus.MustRegister(CommandCancelsTotal)
	prometheus.MustRegister(RevisionsPublishedTotal)
	prometheus.MustRegister(NodesRegisteredTotal)
	prometheus.MustRegister(NodeHeartbeatsTotal)
	prometheus.MustRegister(ClaimRequestsTotal)
	prometheus.MustRegister(ClaimConsumeDuration)
	prometheus.MustRegister(ReconcileSweepDuration)
	prometheus.MustRegister(ReconcileSweepsTotal)
	prometheus.MustRegister(NodeOfflineTransitionsTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
