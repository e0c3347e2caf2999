package api

import (
	"net/http"

	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/types"
)

// handleListResellers lists resellers visible to the session: owners see
// all, reseller operators see their own, tenant admins see none.
func (s *Server) handleListResellers(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resellers, err := s.manager.ListResellers()
	if err != nil {
		writeError(w, err)
		return
	}

	scope := sess.Scope()
	visible := make([]*types.Reseller, 0, len(resellers))
	for _, reseller := range resellers {
		if scope.CanAccessReseller(reseller.ID) {
			visible = append(visible, reseller)
		}
	}
	writeJSON(w, http.StatusOK, &types.ResellerListResponse{Resellers: visible})
}

func (s *Server) handleCreateReseller(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.Scope().Kind != auth.ScopeOwner {
		writeError(w, errForbidden("only owner accounts can create resellers"))
		return
	}

	var req types.CreateResellerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reseller, err := s.manager.CreateReseller(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reseller)
}

// handleCreateResellerAccount creates a RESELLER operator account bound to
// the reseller in the path.
func (s *Server) handleCreateResellerAccount(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	reseller, err := s.manager.GetReseller(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.Scope().CanAccessReseller(reseller.ID) {
		writeError(w, errForbidden("reseller %s is outside your scope", reseller.ID))
		return
	}

	var req types.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := s.manager.CreateAccount(manager.CreateAccountArgs{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Type:        types.AccountTypeReseller,
		ResellerID:  reseller.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account.Redacted())
}

// handleCreateResellerTenant creates a tenant under the reseller in the
// path, regardless of any resellerId in the body.
func (s *Server) handleCreateResellerTenant(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	reseller, err := s.manager.GetReseller(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.Scope().CanAccessReseller(reseller.ID) {
		writeError(w, errForbidden("reseller %s is outside your scope", reseller.ID))
		return
	}

	var req types.CreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.ResellerID = reseller.ID

	tenant, err := s.manager.CreateTenant(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tenants, err := s.manager.ListTenants()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.TenantListResponse{Tenants: sess.Scope().FilterTenants(tenants)})
}

// handleCreateTenant creates a tenant. Owners may place it under any
// reseller (or none); reseller operators always create under their own.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.CreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	switch sess.Scope().Kind {
	case auth.ScopeOwner:
	case auth.ScopeReseller:
		req.ResellerID = sess.ResellerID
	default:
		writeError(w, errForbidden("tenant admins cannot create tenants"))
		return
	}

	tenant, err := s.manager.CreateTenant(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

// handleCreateTenantAccount creates a TENANT_ADMIN account bound to the
// tenant in the path.
func (s *Server) handleCreateTenantAccount(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	tenant, err := s.manager.GetTenant(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.Scope().CanAccessTenant(tenant) {
		writeError(w, errForbidden("tenant %s is outside your scope", tenant.ID))
		return
	}

	var req types.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := s.manager.CreateAccount(manager.CreateAccountArgs{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Type:        types.AccountTypeTenantAdmin,
		TenantID:    tenant.ID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account.Redacted())
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	stores, err := s.manager.ListStores()
	if err != nil {
		writeError(w, err)
		return
	}
	tenants, err := s.manager.ListTenants()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.StoreListResponse{Stores: sess.Scope().FilterStores(stores, tenants)})
}

func (s *Server) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.CreateStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.TenantID == "" {
		writeError(w, errBadRequest("tenantId is required"))
		return
	}

	tenant, err := s.manager.GetTenant(req.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !sess.Scope().CanAccessTenant(tenant) {
		writeError(w, errForbidden("tenant %s is outside your scope", tenant.ID))
		return
	}

	store, err := s.manager.CreateStore(&req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, store)
}
