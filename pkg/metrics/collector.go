package metrics

import (
	"strconv"
	"time"

	"github.com/cravepos/brigade/pkg/types"
)

// managerState is the slice of *manager.Manager the collector reads.
// Declared here so pkg/metrics does not import pkg/manager, which itself
// increments this package's counters.
type managerState interface {
	ListStores() ([]*types.Store, error)
	ListTenants() ([]*types.Tenant, error)
	ListResellers() ([]*types.Reseller, error)
	IsLeader() bool
	GetRaftStats() map[string]string
}

// Collector periodically derives gauge values from the manager's state.
// Counters are incremented at their call sites; gauges are recomputed here
// so restarts and retroactive changes stay accurate. Node health and
// command status gauges are owned by pkg/reconciler, which also emits the
// offline events; this collector covers the slower-moving hierarchy sizes
// and the raft indices.
type Collector struct {
	manager managerState
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(mgr managerState) *Collector {
	return &Collector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectHierarchyMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectHierarchyMetrics() {
	if stores, err := c.manager.ListStores(); err == nil {
		StoresTotal.Set(float64(len(stores)))
	}
	if tenants, err := c.manager.ListTenants(); err == nil {
		TenantsTotal.Set(float64(len(tenants)))
	}
	if resellers, err := c.manager.ListResellers(); err == nil {
		ResellersTotal.Set(float64(len(resellers)))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.manager.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats == nil {
		return
	}
	if v, err := strconv.ParseFloat(stats["last_log_index"], 64); err == nil {
		RaftLogIndex.Set(v)
	}
	if v, err := strconv.ParseFloat(stats["applied_index"], 64); err == nil {
		RaftAppliedIndex.Set(v)
	}
}
