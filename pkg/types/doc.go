/*
Package types defines the core data structures used throughout Brigade.

This package contains the domain model of the cloud control plane: the
tenancy hierarchy (reseller, tenant, store, cloud account), the edge fleet
(node, bootstrap token), the desired-state stream (revision) and the
delivery pipeline (command, command log), plus the JSON request/response
shapes of the HTTP surface shared by the server, the Go client and the
reference edge agent.

# Hierarchy

	Owner (platform)
	  └── Reseller            code, unique
	        └── Tenant        slug, unique
	              └── Store   code, unique
	                    └── Node  nodeKey, unique

Cloud accounts attach to exactly one level: OWNER accounts have neither a
reseller nor a tenant reference, RESELLER accounts have only a reseller,
TENANT_ADMIN accounts have only a tenant.

# Revisions and commands

A Revision is an immutable, numbered snapshot of desired state for one
(store, domain) pair; numbers per pair are dense and strictly increasing
starting at 1. Publishing a revision enqueues a companion Command in
PENDING. A Command addresses one node (NodeID set) or any node of its
store (NodeID empty, "broadcast"). Nodes pull PENDING commands and report
outcomes; every transition is recorded as an append-only CommandLog row.

	(create) ──► PENDING ──ack──► ACKED ─┐
	                │ │                  ├──retry──► PENDING
	                │ └────ack─► FAILED ─┘
	                └─cancel──► FAILED (errorCode=CANCELLED_BY_CLOUD)

# Enumeration pattern

All enums use typed string constants:

	type CommandStatus string
	const (
	    CommandStatusPending CommandStatus = "PENDING"
	    CommandStatusAcked   CommandStatus = "ACKED"
	)

Secrets never appear in these types: password and token fields hold only
hashes. The hashes do serialize, because the same JSON encoding feeds the
BoltDB documents, the replicated log and the snapshots; anything leaving
the process through the HTTP surface goes through the Redacted() copies,
which clear them.

All types are JSON-serializable; BoltDB stores them as JSON documents
(human-readable, debuggable).
*/
package types
