/*
Package manager implements the control-plane core: a raft-replicated state
machine over the BoltDB entity store, plus the typed operation surface the
HTTP layer calls.

# Architecture

Each control-plane instance runs one Manager. Instances form a raft quorum
(a single instance is the default; three for HA), and every mutation is a
log entry applied by BrigadeFSM on every replica:

	┌──────────────────── CONTROL-PLANE INSTANCE ───────────────────┐
	│                                                                │
	│  ┌───────────────────────────────────────────────┐            │
	│  │       HTTP API (operator + node routes)       │            │
	│  └───────────────────┬───────────────────────────┘            │
	│                      │ typed operations                       │
	│  ┌───────────────────▼───────────────────────────┐            │
	│  │                 Manager                       │            │
	│  │  - mints ids, token hashes, timestamps        │            │
	│  │  - proposes ops through raft.Apply            │            │
	│  │  - serves reads from the local store          │            │
	│  │  - publishes broker events after commits      │            │
	│  └───────────────────┬───────────────────────────┘            │
	│                      │ committed entries                      │
	│  ┌───────────────────▼───────────────────────────┐            │
	│  │               BrigadeFSM                      │            │
	│  │  one operation = one BoltDB transaction       │            │
	│  └───────────────────┬───────────────────────────┘            │
	│                      │                                        │
	│  ┌───────────────────▼───────────────────────────┐            │
	│  │  BoltDB stores (entities, raft log, stable)   │            │
	│  └───────────────────────────────────────────────┘            │
	└────────────────────────────────────────────────────────────────┘

# Determinism

Raft replays the log on every replica and after every restart, so an
applied operation must produce identical state everywhere. Anything random
or time-dependent is resolved by the leader before the proposal: entity
ids, node keys, token hashes, and timestamps all ride inside the log
entry. The one exception is the revision number, assigned inside the FSM
transaction; it is a pure function of the store contents at apply time and
therefore equally deterministic.

# Secrets

Plaintext node and bootstrap tokens exist only in the leader's memory
between minting and the HTTP response that hands them out, and they are
never logged. The raft log, the entity store, and snapshots carry hashes.

# Leadership

Mutations on a non-leader fail with ErrNotLeader, which the HTTP layer
maps to 503; the caller retries against the leader. Reads are served from
the local store and may trail the leader by replication lag, which the
operator surface tolerates.

Failover timing: leaders heartbeat roughly every 250ms, followers call an
election after 500ms of silence, and elections settle within about a
second. Commands queued before a failover stay PENDING and are delivered
once a new leader serves node pulls again.

# Cluster sizing

1 instance  - no fault tolerance; development and small fleets.
3 instances - tolerates one failure; the recommended HA layout.
5 instances - tolerates two failures; rarely needed at this write volume.

A new instance starts with Join (pointing at the ops listener of a running
instance) and is admitted by the leader through AddVoter. The entity store
fills by log replay and snapshot restore, so joins need no manual copy.

# Snapshots

The FSM serializes the full entity set (hierarchy, accounts, tokens,
nodes, revisions, commands, logs) into a BrigadeSnapshot; raft keeps the
two most recent snapshot files and truncates the log behind them. Restore
resets the store and reloads parents before children so uniqueness
indexes rebuild cleanly.

# See Also

  - pkg/storage: the BoltDB schema and the per-operation transactions
  - pkg/api: the HTTP surface that calls the operation methods
  - pkg/metrics: the collector polling IsLeader and GetRaftStats
*/
package manager
