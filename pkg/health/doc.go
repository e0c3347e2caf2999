/*
Package health derives node health from heartbeat recency.

Edge nodes report their own status on every heartbeat but that report only
tells the cloud what the node last believed about itself. A node that loses
power or connectivity never reports OFFLINE, so the cloud never trusts the
stored status on its own. Instead every read derives a class from the age of
the last heartbeat:

	Age of last heartbeat      Raw status      Derived class
	──────────────────────     ──────────      ─────────────
	<= 120s                    ONLINE          ONLINE
	<= 120s                    anything else   STALE
	<= 900s                    any             STALE
	>  900s                    any             OFFLINE
	never heartbeated          any             OFFLINE

Because the class is computed on read, a node that dies silently degrades
from ONLINE to STALE to OFFLINE without a single write on the cloud side.

# Usage

	class, age := health.Classify(node.Status, node.LastSeenAt, time.Now().UTC())
	if class == health.ClassOffline {
		log.WithNode(node.ID).Warn().Int64("age_seconds", age).Msg("node offline")
	}

The reconciler sweeps all nodes on an interval and publishes an event when a
node transitions to OFFLINE; the network view endpoints call Classify inline.

# See Also

  - pkg/reconciler - Periodic sweep that emits offline events
  - pkg/api - Network view handlers that expose derived classes
*/
package health
