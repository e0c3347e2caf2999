/*
Package agent implements a reference edge node for the Brigade control plane.

The agent exercises the full node half of the cloud API: it redeems a
one-shot bootstrap token for a node identity, heartbeats on a fixed
interval, polls for pending commands, and posts acknowledgements. It backs
the `brigade agent` CLI command for manual testing against a dev server and
serves as the realistic in-process node in the end-to-end suite.

# Lifecycle

	┌──────────────┐   register (once)   ┌──────────────┐
	│    Agent     │────────────────────▶│    Cloud     │
	│              │◀────────────────────│              │
	│  state file  │  node id + token    │              │
	└──────┬───────┘                     └──────────────┘
	       │
	       ├── heartbeat loop (60s) ──▶ POST /cloud/nodes/{id}/heartbeat
	       │
	       └── poll loop (15s) ───────▶ GET  /cloud/nodes/{id}/commands
	                 │                          │ pending, oldest-first
	                 ▼                          ▼
	            Handler(cmd)  ──────────▶ POST /cloud/commands/{id}/ack

Credentials persist in an optional state file (0600) so the bootstrap
token, which the cloud burns on first use, is only needed once. On restart
the agent reuses the saved identity and skips registration.

# Command Handling

Commands are dispatched to a pluggable Handler. The default handler:

  - HEARTBEAT_NOW actions heartbeat immediately and ack only if the
    heartbeat lands
  - other remote actions ack bare
  - revision commands ack with the carried revision number echoed as
    appliedRevision, which is how the cloud's ledger learns what the
    node has applied

Acks are at-least-once: if posting an ack fails, the command stays PENDING
on the cloud and is pulled again on the next poll, so handlers must
tolerate replays.

# Usage

	a, err := agent.New(agent.Config{
		CloudURL:       "https://cloud.example.com",
		StoreID:        storeID,
		BootstrapToken: token,
		StateFile:      "/var/lib/brigade-agent/state.json",
	})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()
*/
package agent
