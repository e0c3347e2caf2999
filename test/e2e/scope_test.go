package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/types"
	"github.com/cravepos/brigade/test/framework"
)

// TestScopeIsolation seeds two disjoint hierarchies and checks that tenant
// and reseller operators only ever see and touch their own slice.
func TestScopeIsolation(t *testing.T) {
	h := startHarness(t)
	assert := framework.NewAssertions(t)
	ctx := context.Background()

	alpha, err := h.SeedScope(ctx, "alpha")
	if err != nil {
		t.Fatalf("Failed to seed alpha: %v", err)
	}
	beta, err := h.SeedScope(ctx, "beta")
	if err != nil {
		t.Fatalf("Failed to seed beta: %v", err)
	}

	if _, _, err := h.RegisterNode(ctx, alpha.Store.ID, "alpha-till"); err != nil {
		t.Fatalf("Failed to register alpha node: %v", err)
	}
	if _, _, err := h.RegisterNode(ctx, beta.Store.ID, "beta-till"); err != nil {
		t.Fatalf("Failed to register beta node: %v", err)
	}

	// A tenant operator under alpha.
	_, err = h.Owner.CreateTenantAccount(ctx, alpha.Tenant.ID, &types.CreateAccountRequest{
		Email:       "ta@alpha.test",
		Password:    "ta-password-1",
		DisplayName: "Alpha Tenant Op",
	})
	assert.NoError(err, "Create tenant account")

	ta, err := h.Login(ctx, "ta@alpha.test", "ta-password-1")
	assert.NoError(err, "Tenant operator login")

	me, err := ta.Me(ctx)
	assert.NoError(err, "Whoami")
	assert.Equal("ta@alpha.test", me.Email, "session identity")
	assert.Equal(alpha.Tenant.ID, me.TenantID, "session tenant")

	stores, err := ta.ListStores(ctx)
	assert.NoError(err, "Tenant store list")
	assert.Equal(1, len(stores), "tenant store count")
	assert.Equal(alpha.Store.ID, stores[0].ID, "tenant sees its own store")

	tenants, err := ta.ListTenants(ctx)
	assert.NoError(err, "Tenant tenant list")
	assert.Equal(1, len(tenants), "tenant list is just their own")
	assert.Equal(alpha.Tenant.ID, tenants[0].ID, "tenant identity")

	// In-scope publish works; the sibling tenant's store is a 403.
	_, err = ta.PublishRevision(ctx, alpha.Store.ID, &types.PublishRevisionRequest{
		Domain:  "MENU",
		Payload: json.RawMessage(`{"items":[]}`),
	})
	assert.NoError(err, "In-scope publish")

	_, err = ta.PublishRevision(ctx, beta.Store.ID, &types.PublishRevisionRequest{
		Domain:  "MENU",
		Payload: json.RawMessage(`{"items":[]}`),
	})
	assert.StatusCode(err, http.StatusForbidden, "Cross-tenant publish")

	// The network view narrows the same way.
	taView, err := ta.NetworkView(ctx, client.NetworkViewOptions{})
	assert.NoError(err, "Tenant network view")
	assert.Equal(1, taView.Summary.Stores, "tenant view store count")
	assert.Equal(1, taView.Summary.Nodes, "tenant view node count")

	ownerView, err := h.Owner.NetworkView(ctx, client.NetworkViewOptions{})
	assert.NoError(err, "Owner network view")
	assert.Equal(2, ownerView.Summary.Stores, "owner view store count")
	assert.Equal(2, ownerView.Summary.Nodes, "owner view node count")

	resellers, err := h.Owner.ListResellers(ctx)
	assert.NoError(err, "Owner reseller list")
	assert.Equal(2, len(resellers), "owner sees both resellers")

	// A reseller operator over alpha's reseller covers alpha but not beta.
	_, err = h.Owner.CreateResellerAccount(ctx, alpha.Reseller.ID, &types.CreateAccountRequest{
		Email:       "ra@alpha.test",
		Password:    "ra-password-1",
		DisplayName: "Alpha Reseller Op",
	})
	assert.NoError(err, "Create reseller account")

	ra, err := h.Login(ctx, "ra@alpha.test", "ra-password-1")
	assert.NoError(err, "Reseller operator login")

	stores, err = ra.ListStores(ctx)
	assert.NoError(err, "Reseller store list")
	assert.Equal(1, len(stores), "reseller store count")
	assert.Equal(alpha.Store.ID, stores[0].ID, "reseller sees its tenant's store")

	_, err = ra.PublishRevision(ctx, beta.Store.ID, &types.PublishRevisionRequest{
		Domain:  "MENU",
		Payload: json.RawMessage(`{"items":[]}`),
	})
	assert.StatusCode(err, http.StatusForbidden, "Cross-reseller publish")

	// Reseller operators mint tenants only under their own reseller.
	_, err = ra.CreateResellerTenant(ctx, alpha.Reseller.ID, &types.CreateTenantRequest{
		Slug: "alpha-extra",
		Name: "Alpha Extra",
	})
	assert.NoError(err, "Tenant under own reseller")

	_, err = ra.CreateResellerTenant(ctx, beta.Reseller.ID, &types.CreateTenantRequest{
		Slug: "beta-extra",
		Name: "Beta Extra",
	})
	assert.StatusCode(err, http.StatusForbidden, "Tenant under a foreign reseller")
}
