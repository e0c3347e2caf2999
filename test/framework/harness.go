package framework

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"time"

	"github.com/cravepos/brigade/pkg/agent"
	"github.com/cravepos/brigade/pkg/api"
	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/claim"
	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/types"
)

// Harness is one in-process control plane: a single-voter raft manager on
// the in-memory transport with the cloud API and the ops surface each
// behind a real HTTP listener. Agents and clients talk to it exactly as
// they would to a deployed instance.
type Harness struct {
	// Manager is the control plane core; tests reach for it directly when
	// they need the clock hook or raft introspection.
	Manager *manager.Manager

	// API serves the operator and node endpoints; Ops serves health,
	// metrics and raft join.
	API *httptest.Server
	Ops *httptest.Server

	// Owner is a logged-in owner session.
	Owner *client.Client

	OwnerEmail    string
	OwnerPassword string

	dataDir    string
	ownDataDir bool
}

// Start boots a control plane, waits for leadership and seeds the owner
// account. Callers must Stop the harness when done.
func Start(o *Options) (*Harness, error) {
	opts := o.withDefaults()

	h := &Harness{
		OwnerEmail:    opts.OwnerEmail,
		OwnerPassword: opts.OwnerPassword,
		dataDir:       opts.DataDir,
	}
	if h.dataDir == "" {
		dir, err := os.MkdirTemp("", "brigade-e2e-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		h.dataDir = dir
		h.ownDataDir = true
	}

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:            opts.NodeID,
		DataDir:           h.dataDir,
		Inmem:             true,
		BootstrapTokenTTL: opts.BootstrapTokenTTL,
	})
	if err != nil {
		h.removeDataDir()
		return nil, err
	}
	h.Manager = mgr

	if err := mgr.Bootstrap(); err != nil {
		_ = h.Stop()
		return nil, err
	}
	if err := mgr.WaitForLeader(10 * time.Second); err != nil {
		_ = h.Stop()
		return nil, err
	}
	if _, err := mgr.EnsureOwner(h.OwnerEmail, h.OwnerPassword, "Platform Owner"); err != nil {
		_ = h.Stop()
		return nil, err
	}

	authSvc, err := auth.NewService(mgr, auth.Options{Secret: opts.SessionSecret})
	if err != nil {
		_ = h.Stop()
		return nil, err
	}

	h.API = httptest.NewServer(api.NewServer(mgr, authSvc, claim.NewClient(claim.Options{})).Handler())
	h.Ops = httptest.NewServer(api.NewOpsServer(mgr, opts.Version).Handler())

	owner, err := h.Login(context.Background(), h.OwnerEmail, h.OwnerPassword)
	if err != nil {
		_ = h.Stop()
		return nil, err
	}
	h.Owner = owner
	return h, nil
}

// Stop shuts the listeners and the manager down and removes a
// harness-created data dir.
func (h *Harness) Stop() error {
	if h.API != nil {
		h.API.Close()
	}
	if h.Ops != nil {
		h.Ops.Close()
	}
	var err error
	if h.Manager != nil {
		err = h.Manager.Shutdown()
	}
	h.removeDataDir()
	return err
}

func (h *Harness) removeDataDir() {
	if h.ownDataDir && h.dataDir != "" {
		_ = os.RemoveAll(h.dataDir)
	}
}

// Login opens a fresh operator session against the harness API.
func (h *Harness) Login(ctx context.Context, email, password string) (*client.Client, error) {
	c := client.New(h.API.URL)
	if _, err := c.Login(ctx, email, password); err != nil {
		return nil, err
	}
	return c, nil
}

// Scope is one reseller → tenant → store chain seeded for a test.
type Scope struct {
	Reseller *types.Reseller
	Tenant   *types.Tenant
	Store    *types.Store
}

// SeedScope creates a reseller, a tenant under it and a store under that,
// all through the operator API. Codes derive from prefix; the store code
// normalizes to PREFIX-1.
func (h *Harness) SeedScope(ctx context.Context, prefix string) (*Scope, error) {
	reseller, err := h.Owner.CreateReseller(ctx, &types.CreateResellerRequest{
		Code: prefix + "-dist",
		Name: prefix + " distribution",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed reseller: %w", err)
	}

	tenant, err := h.Owner.CreateTenant(ctx, &types.CreateTenantRequest{
		Slug:       prefix,
		Name:       prefix + " restaurants",
		ResellerID: reseller.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed tenant: %w", err)
	}

	store, err := h.Owner.CreateStore(ctx, &types.CreateStoreRequest{
		TenantID: tenant.ID,
		Code:     prefix + "-1",
		Name:     prefix + " no. 1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	return &Scope{Reseller: reseller, Tenant: tenant, Store: store}, nil
}

// RegisterNode walks the real bootstrap path: an owner-issued token
// redeemed through the registration endpoint. The returned client is
// pinned with the new node's credentials.
func (h *Harness) RegisterNode(ctx context.Context, storeID, label string) (*types.RegisterNodeResponse, *client.Client, error) {
	issued, err := h.Owner.IssueBootstrapToken(ctx, storeID, &types.IssueBootstrapTokenRequest{Label: label})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to issue bootstrap token: %w", err)
	}

	c := client.New(h.API.URL)
	resp, err := c.RegisterNode(ctx, &types.RegisterNodeRequest{
		StoreID:        storeID,
		BootstrapToken: issued.BootstrapToken,
		Label:          label,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to register node: %w", err)
	}
	c.SetNodeCredentials(resp.NodeID, resp.NodeToken)
	return resp, c, nil
}

// StartAgent registers and starts an in-process agent against the store,
// ticking fast enough for eventually-style assertions. A nil handler keeps
// the agent's default behavior. The agent is registered when this returns.
func (h *Harness) StartAgent(ctx context.Context, storeID, label string, handler agent.Handler) (*agent.Agent, error) {
	issued, err := h.Owner.IssueBootstrapToken(ctx, storeID, &types.IssueBootstrapTokenRequest{Label: label})
	if err != nil {
		return nil, fmt.Errorf("failed to issue bootstrap token: %w", err)
	}

	a, err := agent.New(agent.Config{
		CloudURL:          h.API.URL,
		StoreID:           storeID,
		BootstrapToken:    issued.BootstrapToken,
		Label:             label,
		SoftwareVersion:   "e2e",
		HeartbeatInterval: 250 * time.Millisecond,
		PollInterval:      25 * time.Millisecond,
		Handler:           handler,
	})
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
