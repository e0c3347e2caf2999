package reconciler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cravepos/brigade/pkg/events"
	"github.com/cravepos/brigade/pkg/health"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/metrics"
	"github.com/cravepos/brigade/pkg/types"
)

// DefaultInterval is the sweep period when the config does not set one.
const DefaultInterval = 30 * time.Second

// Reconciler periodically derives per-node health from heartbeat recency
// and keeps the fleet gauges and offline events flowing. Health is never
// written back: a node that silently dies degrades to STALE and then
// OFFLINE purely by the clock moving, so the sweep only observes.
type Reconciler struct {
	manager  *manager.Manager
	broker   *events.Broker
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	lastClass map[string]health.Class

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a reconciler sweeping at the given interval. A non-positive
// interval falls back to DefaultInterval. broker may be nil; offline
// transitions are then logged and counted but not published.
func New(mgr *manager.Manager, broker *events.Broker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		manager:   mgr,
		broker:    broker,
		interval:  interval,
		logger:    log.WithComponent("reconciler"),
		lastClass: make(map[string]health.Class),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the sweep loop and waits for an in-flight sweep to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Sweep once up front so gauges are populated before the first tick.
	r.Sweep()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stopCh:
			return
		}
	}
}

// Sweep runs one reconciliation pass. Exported so tests can drive passes
// without waiting on the ticker.
func (r *Reconciler) Sweep() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileSweepDuration)
		metrics.ReconcileSweepsTotal.Inc()
	}()

	r.sweepNodes()
	r.sweepCommands()
}

func (r *Reconciler) sweepNodes() {
	nodes, err := r.manager.ListNodes()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list nodes")
		return
	}

	now := r.manager.Now()
	counts := map[health.Class]int{
		health.ClassOnline:  0,
		health.ClassStale:   0,
		health.ClassOffline: 0,
	}

	var wentOffline []*types.Node

	r.mu.Lock()
	seen := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		class, _ := health.Classify(node.Status, node.LastSeenAt, now)
		counts[class]++
		seen[node.ID] = struct{}{}

		prev, known := r.lastClass[node.ID]
		r.lastClass[node.ID] = class
		if known && prev != class && class == health.ClassOffline {
			wentOffline = append(wentOffline, node)
		}
	}
	// Drop entries for deleted nodes so the map tracks the live fleet.
	for id := range r.lastClass {
		if _, ok := seen[id]; !ok {
			delete(r.lastClass, id)
		}
	}
	r.mu.Unlock()

	for class, count := range counts {
		metrics.NodesTotal.WithLabelValues(string(class)).Set(float64(count))
	}
	for _, node := range wentOffline {
		r.noteOffline(node)
	}
}

// noteOffline records one ONLINE/STALE -> OFFLINE transition. The stored
// node row is untouched; the transition exists only in metrics, logs, and
// the event stream.
func (r *Reconciler) noteOffline(node *types.Node) {
	metrics.NodeOfflineTransitionsTotal.Inc()
	r.logger.Warn().
		Str("node_id", node.ID).
		Str("store_id", node.StoreID).
		Time("last_seen", node.LastSeenAt).
		Msg("node went offline")

	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventNodeOffline,
		Timestamp: r.manager.Now(),
		Message:   "node " + node.ID + " went offline",
		Metadata: map[string]string{
			"nodeId":   node.ID,
			"storeId":  node.StoreID,
			"lastSeen": node.LastSeenAt.UTC().Format(time.RFC3339),
		},
	})
}

func (r *Reconciler) sweepCommands() {
	cmds, err := r.manager.ListAllCommands()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list commands")
		return
	}

	counts := map[types.CommandStatus]int{
		types.CommandStatusPending: 0,
		types.CommandStatusAcked:   0,
		types.CommandStatusFailed:  0,
	}
	for _, cmd := range cmds {
		counts[cmd.Status]++
	}
	for status, count := range counts {
		metrics.CommandsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
