/*
Package client provides a Go client library for the Brigade cloud API.

The client package wraps the Brigade HTTP/JSON API with a convenient,
idiomatic Go interface. It handles session and node credentials, request
encoding, error decoding, and provides type-safe methods for every cloud
operation, covering both the operator surface and the node surface.

# Architecture

The client provides a high-level interface to Brigade's API:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                             │
	│  import "github.com/cravepos/brigade/pkg/client"            │
	│                                                             │
	│  c := client.New("https://cloud.example.com")               │
	│  sess, err := c.Login(ctx, email, password)                 │
	│  store, err := c.CreateStore(ctx, ...)                      │
	│                                                             │
	└──────────────────┬──────────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ──────────────────────────┐
	│                                                             │
	│  ┌──────────────────────────────────────────────┐           │
	│  │           Client Wrapper                     │           │
	│  │  - High-level methods per operation          │           │
	│  │  - Bearer / node-header injection            │           │
	│  │  - JSON encode/decode                        │           │
	│  │  - APIError extraction                       │           │
	│  └──────────────────┬───────────────────────────┘           │
	│                     │                                       │
	│  ┌──────────────────▼───────────────────────────┐           │
	│  │            net/http Client                   │           │
	│  │  - 10s default timeout                       │           │
	│  │  - Context cancellation                      │           │
	│  └──────────────────┬───────────────────────────┘           │
	└─────────────────────┼───────────────────────────────────────┘
	                      │ HTTP/JSON
	                      ▼
	               Cloud API Server

# Credentials

The client carries two independent credential slots:

Operator session (bearer token):

	c := client.New("https://cloud.example.com")
	resp, err := c.Login(ctx, "owner@example.com", "password")
	// Login pins resp.Token automatically; or pin one by hand:
	c.SetSession(savedToken)

Node identity (x-node-id / x-node-token headers):

	reg, err := c.RegisterNode(ctx, &types.RegisterNodeRequest{
		StoreID:        storeID,
		BootstrapToken: token,
		Label:          "kitchen-server",
	})
	c.SetNodeCredentials(reg.Node.ID, reg.NodeToken)

Both slots may be set at once; each request sends whatever is pinned.
The server decides which one an endpoint requires.

# Operator Operations

Hierarchy:

	reseller, err := c.CreateReseller(ctx, &types.CreateResellerRequest{Code: "acme", Name: "Acme POS"})
	tenant, err := c.CreateResellerTenant(ctx, reseller.ID, &types.CreateTenantRequest{Slug: "burger-bros", Name: "Burger Bros"})
	store, err := c.CreateStore(ctx, &types.CreateStoreRequest{TenantID: tenant.ID, Name: "Downtown", Code: "dt-001"})

Revisions and commands:

	pub, err := c.PublishRevision(ctx, store.ID, &types.PublishRevisionRequest{
		Domain:  "menu",
		Payload: menuJSON,
	})
	head, err := c.LatestRevision(ctx, store.ID, "menu")
	cmds, err := c.ListStoreCommands(ctx, store.ID, client.CommandListOptions{
		Statuses: []types.CommandStatus{types.CommandStatusFailed},
	})
	retried, err := c.RetryCommand(ctx, cmds[0].ID)

Provisioning and pairing:

	issued, err := c.IssueBootstrapToken(ctx, store.ID, &types.IssueBootstrapTokenRequest{TTLSeconds: 3600})
	// issued.BootstrapToken is the plaintext; it is never shown again.

	claim, err := c.Claim(ctx, &types.ClaimRequest{
		OnsiteBaseURL: "https://edge.local",
		ClaimID:       claimID,
		ClaimCode:     "ABCD-1234",
		StoreID:       store.ID,
	})

Fleet health and remote actions:

	view, err := c.NetworkView(ctx, client.NetworkViewOptions{TenantID: tenant.ID})
	dispatched, err := c.DispatchAction(ctx, &types.DispatchActionRequest{
		StoreID: store.ID,
		Action:  types.ActionHeartbeatNow,
	})

# Node Operations

A registered node polls for work, heartbeats, and acknowledges:

	cmds, err := c.NodeCommands(ctx, nodeID, client.CommandListOptions{})
	for _, cmd := range cmds {
		// apply the command...
		_, err := c.AckCommand(ctx, cmd.ID, &types.AckCommandRequest{
			Status:          types.CommandStatusAcked,
			AppliedRevision: &appliedRev,
		})
	}
	err = c.Heartbeat(ctx, nodeID, &types.HeartbeatRequest{SoftwareVersion: version})

# Error Handling

Non-2xx responses decode into *APIError carrying the HTTP status and the
server's message:

	_, err := c.CreateStore(ctx, req)
	if client.IsStatus(err, http.StatusConflict) {
		// duplicate store code within the tenant
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		log.Printf("cloud rejected request: %d %s", apiErr.Status, apiErr.Message)
	}

A 503 means the instance is not the raft leader; retry against the
leader or behind a load balancer that tracks it.

# Thread Safety

The client is safe for concurrent use once configured. Login,
SetSession, and SetNodeCredentials mutate the credential slots and
should happen before sharing the client across goroutines.

# Integration Points

This package integrates with:

  - pkg/api: consumes the HTTP surface it serves
  - pkg/types: request/response types on the wire
  - pkg/agent: the node agent is built on this client
  - cmd/brigade: `serve --join` uses JoinRaft against a running peer

# See Also

  - pkg/api for server-side implementation
  - pkg/types for wire types
  - pkg/agent for the polling node agent
*/
package client
