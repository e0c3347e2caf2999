/*
Package auth issues and verifies every credential Brigade accepts:
operator sessions, scope predicates, edge node token pairs, and
short-lived impersonation links.

# Sessions

Operator sessions are HS256-signed tokens whose subject is the account
id. Verification re-reads the account on every request, so disabling an
account kills its live sessions immediately instead of at expiry:

	account, err := svc.Authenticate(email, password)   // bcrypt verify
	token, expiresAt, err := svc.IssueSession(account)  // signed, TTL-bound

	session, err := svc.ParseSession(token)             // fresh account load
	scope := session.Scope()

The signing secret comes from configuration (BRIGADE_SESSION_SECRET).
When none is configured an ephemeral secret is generated at startup and
a warning is logged; sessions then die with the process.

# Scopes

A Scope is a data value derived from the session, not a set of methods
on it. OWNER sees everything; RESELLER sees tenants under its reseller;
TENANT_ADMIN sees exactly its tenant. Handlers pass the scope to the
CanAccessReseller / CanAccessTenant predicates for mutations and to the
Filter helpers for listings, so read visibility and write authority
cannot drift apart.

# Node credentials

Edge nodes authenticate with an (id, token) header pair. Only the token
hash is stored; AuthenticateNode verifies the presented token against
it and returns the node record. Missing node and bad token are
indistinguishable to the caller.

# Impersonation links

IssueImpersonation signs a second HS256 token with a hard-capped
lifetime (MaxImpersonationTTL) embedding the store, tenant, reseller and
requesting-account claims an edge backend needs to open a scoped support
session.

# Errors

	ErrInvalidCredentials   wrong email or password (login)
	ErrAccountDisabled      correct password, disabled account (login)
	ErrUnauthenticated      bad/expired/revoked session or node credential

The API layer maps these to 401/403 responses.
*/
package auth
