/*
Package api implements the Brigade HTTP API: the operator control surface
and the edge node protocol.

The api package is the only ingress to the control plane. Every request is
decoded, authenticated, scope-checked and handed to the manager; nothing in
this package touches storage directly.

# Architecture

	┌──────────────── OPERATOR (back office) ───────────────┐
	│  Authorization: Bearer <session JWT>                   │
	└──────────────────────┬─────────────────────────────────┘
	                       │ HTTPS (JSON)
	┌──────────────── EDGE NODE (store) ─────────────────────┐
	│  x-node-id / x-node-token header pair                  │
	└──────────────────────┬─────────────────────────────────┘
	                       │
	┌──────────────────────▼──── CONTROL PLANE ──────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐         │
	│  │        HTTP API Server (pkg/api)          │         │
	│  │  - route table (method + path patterns)   │         │
	│  │  - session / node authentication          │         │
	│  │  - tenancy scope enforcement              │         │
	│  │  - request logging + metrics middleware   │         │
	│  └───────────────────┬───────────────────────┘         │
	│                      │                                  │
	│  ┌───────────────────▼───────────────────────┐         │
	│  │              Manager                       │         │
	│  │  - proposes mutations through raft         │         │
	│  │  - serves reads from local storage         │         │
	│  └────────────────────────────────────────────┘        │
	└─────────────────────────────────────────────────────────┘

# Route Groups

Operator authentication:
  - POST /cloud/auth/login: exchange credentials for a session token
  - GET  /cloud/auth/me: echo the authenticated account

Hierarchy (owner/reseller/tenant scoped):
  - GET/POST /cloud/platform/resellers
  - POST /cloud/platform/resellers/{id}/accounts
  - POST /cloud/platform/resellers/{id}/tenants
  - GET/POST /cloud/platform/tenants
  - POST /cloud/platform/tenants/{id}/accounts
  - GET/POST /cloud/platform/stores

Revisions and commands:
  - POST /cloud/stores/{id}/revisions: publish the next revision
  - GET  /cloud/stores/{id}/revisions/latest: per-domain heads
  - GET  /cloud/stores/{id}/commands: newest-first command list
  - POST /cloud/commands/{id}/retry: re-queue ACKED/FAILED
  - GET  /cloud/commands/{id}/logs: audit trail

Provisioning and hand-off:
  - GET/POST /cloud/platform/stores/{id}/bootstrap-tokens
  - POST /cloud/platform/stores/{id}/impersonation-link
  - POST /cloud/platform/onsite/claim: pair an on-premise server

Network view and remote actions:
  - GET  /cloud/platform/network: fleet health (ONLINE/STALE/OFFLINE)
  - POST /cloud/platform/network/nodes/{id}/rotate-token
  - GET/POST /cloud/platform/network/actions
  - POST /cloud/platform/network/actions/{id}/retry|cancel

Edge node protocol:
  - POST /cloud/nodes/register: bootstrap-token registration
  - GET  /cloud/nodes/{nodeId}/commands: oldest-first work pull
  - POST /cloud/nodes/{nodeId}/heartbeat
  - POST /cloud/commands/{id}/ack

# Authentication

Operator endpoints require "Authorization: Bearer <token>" carrying a
session JWT issued by POST /cloud/auth/login. The account row is re-read on
every request, so disabling an account takes effect immediately.

Node endpoints require the x-node-id and x-node-token headers. The token is
compared against the stored hash in constant time. When a route names a
node id, the authenticated node must be that node (403 otherwise).

POST /cloud/nodes/register is the single unauthenticated mutation: the
one-shot bootstrap token in the body is the credential.

# Scope Enforcement

Sessions carry an account type. OWNER sees everything; RESELLER sees its
own reseller, tenants and their stores; TENANT_ADMIN sees one tenant.
Handlers resolve the target entity first and answer 403 for anything the
scope predicates reject, 404 only for ids that do not exist at all.

# Error Handling

Handlers return domain errors; writeError maps them to statuses in one
place:

  - validation failures → 400
  - missing/expired credentials, spent bootstrap tokens → 401
  - out-of-scope targets, cross-node acks → 403
  - unknown ids → 404
  - duplicate codes/slugs/emails, conflicting onsite links → 409
  - edge server failures during claim → 502
  - mutations on a non-leader instance → 503

Every non-2xx body is {"message": "..."}. Internal errors are logged with
detail and answered with a generic message.

# Secret Handling

Plaintext node tokens and bootstrap tokens appear exactly once, in the
response of the call that minted them. They are never logged and never
readable again; every stored copy is a SHA-256 hash.

# Ops Listener

OpsServer exposes /healthz, /readyz and /metrics on a separate address,
plus POST /internal/raft/join for cluster membership. Readiness requires an
elected raft leader and a readable store. The address is meant for the
deployment network, not the public edge.

# See Also

  - pkg/manager for the operations behind every route
  - pkg/auth for sessions, scopes and node credentials
  - pkg/claim for the outbound half of the claim handshake
  - pkg/client for the typed Go client of this surface
*/
package api
