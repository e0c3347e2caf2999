/*
Package reconciler provides the fleet health sweep for the Brigade control plane.

The reconciler continuously observes the edge fleet, deriving each node's
health class from heartbeat recency and keeping the Prometheus gauges and
the event stream in step with reality. It is deliberately read-only:
effective health is never written to storage, so a node that silently dies
degrades to STALE and then OFFLINE purely by the clock moving, with no
writes and no raft traffic.

# Architecture

The reconciler runs one sweep per interval (default 30 seconds):

	┌────────────────────────────────────────────────────────────┐
	│                      Sweep Loop                            │
	│                 (every 30 seconds)                         │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	    ┌────────────┴────────────┐
	    │                         │
	    ▼                         ▼
	┌─────────────────┐   ┌──────────────────┐
	│  Sweep Nodes    │   │ Sweep Commands   │
	└─────┬───────────┘   └──────┬───────────┘
	      │                      │
	      ▼                      ▼
	  Classify per          Count per status
	  pkg/health                 │
	      │                      ▼
	      ▼                 brigade_commands_total{status}
	  brigade_nodes_total{health}
	      │
	      ▼
	  node.offline events on
	  ONLINE/STALE → OFFLINE

# Health Derivation

Classification comes from pkg/health and is a pure function of the node's
last self-reported status, its last heartbeat time, and now:

	heartbeat ≤ 120s and raw ONLINE   → ONLINE
	heartbeat ≤ 900s                  → STALE
	older (or never seen)             → OFFLINE

The sweep never mutates node rows. The only state the reconciler keeps is
an in-memory map of each node's last observed class, used to detect the
moment a node crosses into OFFLINE so the transition is reported exactly
once per outage rather than on every sweep.

# Offline Transitions

When a node's class changes to OFFLINE from anything else, the sweep:

  - increments brigade_node_offline_transitions_total
  - logs a warning with the node, store, and last-seen time
  - publishes a node.offline event on the manager's broker

Restarting the process forgets the last-class map, so the first sweep after
a restart re-baselines silently: an already-offline node does not re-fire
its event.

# Gauge Ownership

This package owns the fast-moving fleet gauges; pkg/metrics.Collector owns
the slow-moving hierarchy sizes and raft indices. Both recompute absolute
values per sweep, so a missed tick self-corrects on the next one.

# Usage

	rec := reconciler.New(mgr, mgr.Events(), cfg.Reconciler.Interval)
	rec.Start()
	defer rec.Stop()

Tests drive passes directly with Sweep() instead of waiting on the ticker.

# Integration Points

This package integrates with:

  - pkg/manager: lists nodes and commands, supplies the clock
  - pkg/health: derivation windows and classification
  - pkg/events: node.offline publication
  - pkg/metrics: fleet gauges and sweep instrumentation
*/
package reconciler
