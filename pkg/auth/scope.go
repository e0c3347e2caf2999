package auth

import "github.com/cravepos/brigade/pkg/types"

// ScopeKind names the three visibility levels in the tenancy tree.
type ScopeKind string

const (
	ScopeOwner    ScopeKind = "OWNER"
	ScopeReseller ScopeKind = "RESELLER"
	ScopeTenant   ScopeKind = "TENANT"
)

// Scope is the access boundary derived from a session. It is a plain
// value so handlers and list filters can pass it around without touching
// the session again.
type Scope struct {
	Kind       ScopeKind
	ResellerID string
	TenantID   string
}

// CanAccessReseller reports whether the scope may read or mutate rows
// under the given reseller.
func (s Scope) CanAccessReseller(resellerID string) bool {
	switch s.Kind {
	case ScopeOwner:
		return true
	case ScopeReseller:
		return s.ResellerID != "" && s.ResellerID == resellerID
	default:
		return false
	}
}

// CanAccessTenant reports whether the scope may read or mutate rows under
// the given tenant.
func (s Scope) CanAccessTenant(tenant *types.Tenant) bool {
	if tenant == nil {
		return false
	}
	switch s.Kind {
	case ScopeOwner:
		return true
	case ScopeReseller:
		return tenant.ResellerID != "" && s.ResellerID == tenant.ResellerID
	case ScopeTenant:
		return s.TenantID != "" && s.TenantID == tenant.ID
	default:
		return false
	}
}

// FilterTenants returns the tenants visible to the scope, preserving
// order.
func (s Scope) FilterTenants(tenants []*types.Tenant) []*types.Tenant {
	if s.Kind == ScopeOwner {
		return tenants
	}
	out := make([]*types.Tenant, 0, len(tenants))
	for _, t := range tenants {
		if s.CanAccessTenant(t) {
			out = append(out, t)
		}
	}
	return out
}

// FilterStores returns the stores whose owning tenant is visible to the
// scope. The tenants slice is the full tenant listing used for ownership
// lookups.
func (s Scope) FilterStores(stores []*types.Store, tenants []*types.Tenant) []*types.Store {
	if s.Kind == ScopeOwner {
		return stores
	}
	byID := make(map[string]*types.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	out := make([]*types.Store, 0, len(stores))
	for _, st := range stores {
		if s.CanAccessTenant(byID[st.TenantID]) {
			out = append(out, st)
		}
	}
	return out
}
