package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/health"
	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

// handleNetworkView assembles the fleet health view: stores in scope, each
// with its nodes classified ONLINE/STALE/OFFLINE from heartbeat age.
//
// Filters: resellerId=, tenantId= narrow within scope; storeStatus= matches
// the store lifecycle state; nodeStatus= keeps only stores with at least one
// node of that class; includeUnlinked=true adds stores without any node.
func (s *Server) handleNetworkView(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	scope := sess.Scope()
	q := r.URL.Query()

	resellerFilter := strings.TrimSpace(q.Get("resellerId"))
	if resellerFilter != "" && !scope.CanAccessReseller(resellerFilter) {
		writeError(w, errForbidden("reseller %s is outside your scope", resellerFilter))
		return
	}
	tenantFilter := strings.TrimSpace(q.Get("tenantId"))
	if tenantFilter != "" {
		tenant, err := s.manager.GetTenant(tenantFilter)
		if err != nil {
			writeError(w, err)
			return
		}
		if !scope.CanAccessTenant(tenant) {
			writeError(w, errForbidden("tenant %s is outside your scope", tenant.ID))
			return
		}
	}
	storeStatus := types.StoreStatus(strings.ToUpper(strings.TrimSpace(q.Get("storeStatus"))))
	nodeStatus := health.Class(strings.ToUpper(strings.TrimSpace(q.Get("nodeStatus"))))
	includeUnlinked := parseBool(q.Get("includeUnlinked"))

	tenants, err := s.manager.ListTenants()
	if err != nil {
		writeError(w, err)
		return
	}
	tenantByID := make(map[string]*types.Tenant, len(tenants))
	for _, tenant := range scope.FilterTenants(tenants) {
		tenantByID[tenant.ID] = tenant
	}

	stores, err := s.manager.ListStores()
	if err != nil {
		writeError(w, err)
		return
	}
	sort.Slice(stores, func(i, j int) bool { return stores[i].Code < stores[j].Code })

	now := s.manager.Now()
	resp := &types.NetworkViewResponse{Stores: []*types.NetworkStore{}}

	for _, store := range stores {
		tenant, visible := tenantByID[store.TenantID]
		if !visible {
			continue
		}
		if resellerFilter != "" && tenant.ResellerID != resellerFilter {
			continue
		}
		if tenantFilter != "" && tenant.ID != tenantFilter {
			continue
		}
		if storeStatus != "" && store.Status != storeStatus {
			continue
		}

		nodes, err := s.manager.ListNodesByStore(store.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		block := &types.NetworkStore{
			ID:          store.ID,
			Code:        store.Code,
			Name:        store.Name,
			Status:      store.Status,
			Timezone:    store.Timezone,
			TenantID:    tenant.ID,
			TenantName:  tenant.Name,
			ResellerID:  tenant.ResellerID,
			EdgeBaseURL: store.EdgeBaseURL,
			Nodes:       []*types.NetworkNode{},
		}
		var online, stale, offline int
		for _, node := range nodes {
			class, age := health.Classify(node.Status, node.LastSeenAt, now)
			if nodeStatus != "" && class != nodeStatus {
				continue
			}
			switch class {
			case health.ClassOnline:
				online++
			case health.ClassStale:
				stale++
			default:
				offline++
			}
			block.Nodes = append(block.Nodes, &types.NetworkNode{
				ID:                  node.ID,
				Label:               node.Label,
				NodeKey:             node.NodeKey,
				Status:              string(class),
				RawStatus:           node.Status,
				HeartbeatAgeSeconds: age,
				SoftwareVersion:     node.SoftwareVersion,
				LastSeenAt:          node.LastSeenAt,
				CreatedAt:           node.CreatedAt,
				TokenRotatedAt:      node.TokenRotatedAt,
			})
		}

		switch {
		case len(block.Nodes) > 0:
		case nodeStatus != "":
			// A class filter is in effect and nothing matched.
			continue
		case !includeUnlinked:
			continue
		}

		resp.Stores = append(resp.Stores, block)
		resp.Summary.Stores++
		resp.Summary.Nodes += len(block.Nodes)
		resp.Summary.Online += online
		resp.Summary.Stale += stale
		resp.Summary.Offline += offline
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleRotateNodeToken replaces a node's credential; the old token stops
// working the moment this returns. The new plaintext is in this response
// and nowhere else.
func (s *Server) handleRotateNodeToken(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	node, err := s.manager.GetNode(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if _, _, err := s.storeInScope(sess, node.StoreID); err != nil {
		writeError(w, err)
		return
	}

	rotated, plaintext, err := s.manager.RotateNodeToken(node.ID, sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.RotateNodeTokenResponse{
		Node:      rotated.Redacted(),
		NodeToken: plaintext,
	})
}

// handleDispatchAction queues a remote action against a store's node(s).
func (s *Server) handleDispatchAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.DispatchActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.StoreID == "" {
		writeError(w, errBadRequest("storeId is required"))
		return
	}
	if _, _, err := s.storeInScope(sess, req.StoreID); err != nil {
		writeError(w, err)
		return
	}

	cmd, err := s.manager.DispatchAction(&req, sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &types.DispatchActionResponse{
		Action:  req.Action,
		Command: cmd,
	})
}

// handleListActions lists remote-action commands, newest-first, across the
// caller's scope or one store (?storeId=).
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter, err := parseCommandFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter.Domain = types.DomainRemoteAction

	if storeID := strings.TrimSpace(r.URL.Query().Get("storeId")); storeID != "" {
		if _, _, err := s.storeInScope(sess, storeID); err != nil {
			writeError(w, err)
			return
		}
		commands, err := s.manager.ListStoreCommands(storeID, filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if commands == nil {
			commands = []*types.Command{}
		}
		writeJSON(w, http.StatusOK, &types.CommandListResponse{Commands: commands})
		return
	}

	commands, err := s.listScopedActions(sess, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.CommandListResponse{Commands: commands})
}

// listScopedActions collects remote-action commands from every store the
// session can see, newest-first with the usual limit.
func (s *Server) listScopedActions(sess *auth.Session, filter storage.CommandFilter) ([]*types.Command, error) {
	tenants, err := s.manager.ListTenants()
	if err != nil {
		return nil, err
	}
	stores, err := s.manager.ListStores()
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool)
	for _, store := range sess.Scope().FilterStores(stores, tenants) {
		visible[store.ID] = true
	}

	all, err := s.manager.ListAllCommands()
	if err != nil {
		return nil, err
	}

	commands := []*types.Command{}
	for _, cmd := range all {
		if cmd.Domain != types.DomainRemoteAction || !visible[cmd.StoreID] {
			continue
		}
		if !matchesFilter(cmd, filter) {
			continue
		}
		commands = append(commands, cmd)
	}
	sort.Slice(commands, func(i, j int) bool {
		if !commands[i].IssuedAt.Equal(commands[j].IssuedAt) {
			return commands[i].IssuedAt.After(commands[j].IssuedAt)
		}
		return commands[i].ID > commands[j].ID
	})
	if filter.Limit > 0 && len(commands) > filter.Limit {
		commands = commands[:filter.Limit]
	}
	return commands, nil
}

func matchesFilter(cmd *types.Command, filter storage.CommandFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if cmd.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.NodeID != "" && cmd.NodeID != filter.NodeID {
		return false
	}
	return true
}

// handleRetryAction re-queues a remote-action command. Commands from other
// domains are rejected; the generic retry endpoint covers those.
func (s *Server) handleRetryAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd, err := s.actionInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	retried, err := s.manager.RetryCommand(cmd.ID, sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retried)
}

// handleCancelAction cancels a pending remote-action command.
func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd, err := s.actionInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	cancelled, err := s.manager.CancelCommand(cmd.ID, sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

// actionInScope is commandInScope plus the remote-action domain gate.
func (s *Server) actionInScope(sess *auth.Session, commandID string) (*types.Command, error) {
	cmd, err := s.commandInScope(sess, commandID)
	if err != nil {
		return nil, err
	}
	if cmd.Domain != types.DomainRemoteAction {
		return nil, errBadRequest("command %s is not a remote action", cmd.ID)
	}
	return cmd, nil
}
