/*
Package storage provides BoltDB-backed state persistence for the control
plane's fleet data.

The storage package implements the Store interface using BoltDB as the
underlying database, providing ACID transactions for the hierarchy
(resellers, tenants, stores), operator accounts, bootstrap tokens, nodes,
revisions, commands, and command logs. All data is serialized as JSON and
stored in separate buckets.

# Architecture

	┌──────────────────── BOLTDB STORAGE ───────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐            │
	│  │            BoltStore                       │            │
	│  │  - File: <dataDir>/brigade.db              │            │
	│  │  - Transactions: ACID with fsync           │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │              Entity Buckets                │            │
	│  │  resellers        (Reseller ID)            │            │
	│  │  tenants          (Tenant ID)              │            │
	│  │  stores           (Store ID)               │            │
	│  │  accounts         (Account ID)             │            │
	│  │  bootstrap_tokens (Token ID)               │            │
	│  │  nodes            (Node ID)                │            │
	│  │  revisions        (Revision ID)            │            │
	│  │  commands         (Command ID)             │            │
	│  │  command_logs     (CommandID|seq)          │            │
	│  └──────────────────┬─────────────────────────┘            │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐            │
	│  │              Index Buckets                 │            │
	│  │  idx_reseller_code    code → ID            │            │
	│  │  idx_tenant_slug      slug → ID            │            │
	│  │  idx_store_code       code → ID            │            │
	│  │  idx_account_email    email → ID           │            │
	│  │  idx_node_key         nodeKey → ID         │            │
	│  │  idx_revision_number  store|domain|n → ID  │            │
	│  └────────────────────────────────────────────┘            │
	└────────────────────────────────────────────────────────────┘

# Uniqueness

BoltDB has no unique constraints, so every uniqueness rule (reseller code,
tenant slug, store code, account email, node key, revision number per
stream) is enforced by claiming the corresponding index key inside the same
Update transaction that writes the entity. Two writers racing for the same
key cannot both commit: Update transactions are serialized, and the second
sees the claimed key and fails with ErrConflict.

# Revision streams

idx_revision_number keys are storeID|0x00|domain|0x00|big-endian(number),
so one (store, domain) stream occupies a contiguous, numerically ordered
key range. Assigning the next number is a prefix scan to the last key;
PublishRevision performs the scan, the revision write, and the companion
command write in one transaction, which makes numbers dense and gap-free.

# Command queue

Commands are mutated only through the composite methods (AckCommand,
RetryCommand, CancelCommand), each of which appends a CommandLog row in the
same transaction. Log rows are keyed commandID|0x00|sequence so one
command's audit trail is a contiguous, insertion-ordered range.

Acks are last-writer-wins: the command's current status never blocks an
ack, attempts is incremented once per ack, and every ack leaves a log row.
Retry and cancel, in contrast, are state-gated (retry from ACKED/FAILED,
cancel from PENDING only) and fail with ErrInvalid otherwise.

# Listings

List methods follow scan-and-filter over the relevant bucket. Operator
command listings sort newest-first by issuedAt; node pulls sort
oldest-first so edge agents drain their queue in issue order.

# Snapshot support

The replicated-log layer periodically snapshots the full state via the
ListAll* methods and rebuilds it via Reset followed by the Put* methods.
PutRevision and PutCommandLog reconstruct index keys from the values
themselves, so a restored database is byte-for-byte equivalent for every
query the control plane performs.

# Error Conventions

	ErrNotFound       entity lookup missed
	ErrConflict       unique key already claimed; server linked elsewhere
	ErrInvalid        cross-entity reference broken; transition not allowed
	ErrBootstrapToken registration token unknown, used, or expired

All are wrapped with %w and carry the offending identifier in the message.

# See Also

  - pkg/manager - Replicated log that invokes all mutations
  - pkg/types - Entity definitions
*/
package storage
