package api

import (
	"net/http"
	"strings"

	"github.com/cravepos/brigade/pkg/claim"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/types"
)

// handleClaim pairs an on-premise server with a cloud store. The handshake
// is consume → commit → finalize: the outbound consume call happens before
// anything is written, and a finalize failure after the commit is reported
// in the response rather than rolled back.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OnsiteBaseURL == "" || req.ClaimID == "" || req.ClaimCode == "" {
		writeError(w, errBadRequest("onsiteBaseUrl, claimId and claimCode are required"))
		return
	}
	if req.StoreID == "" && req.TenantID == "" {
		writeError(w, errBadRequest("storeId or tenantId is required"))
		return
	}

	// Resolve the claim target and enforce scope before calling out.
	tenantID := req.TenantID
	if req.StoreID != "" {
		store, _, err := s.storeInScope(sess, req.StoreID)
		if err != nil {
			writeError(w, err)
			return
		}
		tenantID = store.TenantID
	} else {
		tenant, err := s.manager.GetTenant(req.TenantID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !sess.Scope().CanAccessTenant(tenant) {
			writeError(w, errForbidden("tenant %s is outside your scope", tenant.ID))
			return
		}
	}

	consumed, err := s.claims.Consume(r.Context(), req.OnsiteBaseURL, req.ClaimID, req.ClaimCode)
	if err != nil {
		writeError(w, err)
		return
	}

	edgeBaseURL := req.EdgeBaseURL
	if edgeBaseURL == "" {
		edgeBaseURL = req.OnsiteBaseURL
	}
	storeName := req.StoreName
	if storeName == "" {
		storeName = consumed.StoreNameHint
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = consumed.TimezoneHint
	}

	result, nodeToken, err := s.manager.LinkOnsite(manager.LinkOnsiteParams{
		StoreID:     req.StoreID,
		TenantID:    tenantID,
		StoreName:   storeName,
		StoreCode:   req.StoreCode,
		Timezone:    timezone,
		EdgeBaseURL: edgeBaseURL,
		ServerUID:   consumed.ServerUID,
		ServerLabel: consumed.ServerLabel,
		NodeLabel:   req.NodeLabel,
		LinkedBy:    sess.Email,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The link is committed; from here every outcome is a 201 and the
	// finalize result is carried in the body.
	onsite := types.ClaimOnsite{ServerUID: consumed.ServerUID, Finalized: true}
	if consumed.FinalizeToken != "" {
		finalizeErr := s.claims.Finalize(r.Context(), req.OnsiteBaseURL, claim.FinalizeRequest{
			FinalizeToken:  consumed.FinalizeToken,
			CloudStoreID:   result.Store.ID,
			CloudStoreCode: result.Store.Code,
			CloudNodeID:    result.Node.ID,
			NodeKey:        result.Node.NodeKey,
			NodeToken:      nodeToken,
			CloudBaseURL:   s.cloudBaseURL(r, req.CloudBaseURL),
			LinkedBy:       sess.Email,
		})
		if finalizeErr != nil {
			onsite.Finalized = false
			onsite.FinalizeError = finalizeErr.Error()
			s.logger.Warn().Err(finalizeErr).
				Str("store", result.Store.ID).
				Str("node", result.Node.ID).
				Msg("claim finalize failed after commit")
		}
	}

	writeJSON(w, http.StatusCreated, &types.ClaimResponse{
		Store: result.Store,
		Node: &types.ClaimNode{
			Node:      *result.Node.Redacted(),
			NodeToken: nodeToken,
		},
		Onsite: onsite,
	})
}

// cloudBaseURL decides the URL the edge should call back on: the operator's
// explicit value, else whatever proxy headers or the Host header say about
// how this request arrived.
func (s *Server) cloudBaseURL(r *http.Request, explicit string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}

	host := r.Header.Get("x-forwarded-host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}

	proto := r.Header.Get("x-forwarded-proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return proto + "://" + host
}
