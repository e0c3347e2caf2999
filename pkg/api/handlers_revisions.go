package api

import (
	"net/http"
	"strings"

	"github.com/cravepos/brigade/pkg/types"
)

// handlePublishRevision appends the next revision for (store, domain) and
// returns it together with the companion command.
func (s *Server) handlePublishRevision(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, _, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.PublishRevisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.manager.PublishRevision(store.ID, sess.AccountID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &types.PublishRevisionResponse{
		Revision: result.Revision,
		Command:  result.Command,
	})
}

// handleLatestRevisions returns the latest revision for one domain
// (?domain=) or for every domain of the store.
func (s *Server) handleLatestRevisions(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, _, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("domain")); raw != "" {
		domain, err := types.NormalizeDomain(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		revision, err := s.manager.LatestRevision(store.ID, domain)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, &types.LatestRevisionResponse{Revision: revision})
		return
	}

	revisions, err := s.manager.LatestRevisions(store.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.LatestRevisionsResponse{Revisions: revisions})
}

// handleListStoreCommands lists a store's commands newest-first.
func (s *Server) handleListStoreCommands(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, _, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	filter, err := parseCommandFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	commands, err := s.manager.ListStoreCommands(store.ID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if commands == nil {
		commands = []*types.Command{}
	}
	writeJSON(w, http.StatusOK, &types.CommandListResponse{Commands: commands})
}

// handleRetryCommand re-queues an acknowledged or failed command. The body
// is ignored.
func (s *Server) handleRetryCommand(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd, err := s.commandInScope(sess, r.PathValue("id"))
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

// handleCommandLogs returns a command with its audit trail, newest rows
// first.
func (s *Server) handleCommandLogs(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	cmd, err := s.commandInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := s.manager.ListCommandLogs(cmd.ID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []*types.CommandLog{}
	}
	writeJSON(w, http.StatusOK, &types.CommandLogsResponse{Command: cmd, Logs: logs})
}

// handleIssueBootstrapToken mints a single-use node registration token for
// a store. The plaintext is in this response and nowhere else.
func (s *Server) handleIssueBootstrapToken(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, _, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.IssueBootstrapTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, plaintext, err := s.manager.IssueBootstrapToken(store.ID, req.Label, req.TTLSeconds, sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &types.IssueBootstrapTokenResponse{
		TokenID:        token.ID,
		StoreID:        store.ID,
		BootstrapToken: plaintext,
		ExpiresAt:      token.ExpiresAt,
	})
}

// handleListBootstrapTokens lists a store's issued tokens with hashes
// elided.
func (s *Server) handleListBootstrapTokens(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, _, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	tokens, err := s.manager.ListBootstrapTokens(store.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	redacted := make([]*types.BootstrapToken, 0, len(tokens))
	for _, token := range tokens {
		redacted = append(redacted, token.Redacted())
	}
	writeJSON(w, http.StatusOK, &types.BootstrapTokenListResponse{Tokens: redacted})
}

// handleImpersonationLink mints a short-lived signed hand-off link into a
// store's edge UI. The token rides in the URL fragment so it never reaches
// the edge server's access log.
func (s *Server) handleImpersonationLink(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store, tenant, err := s.storeInScope(sess, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.ImpersonationLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	target := strings.TrimSpace(req.TargetBaseURL)
	if target == "" {
		target = store.EdgeBaseURL
	}
	if target == "" {
		writeError(w, errBadRequest("store has no edge base URL; provide targetBaseUrl"))
		return
	}

	account, err := s.manager.GetAccount(sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, ttl, err := s.auth.IssueImpersonation(store, tenant, account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &types.ImpersonationLinkResponse{
		Store:            store,
		TargetBaseURL:    target,
		ExpiresInSeconds: int64(ttl.Seconds()),
		URL:              strings.TrimRight(target, "/") + "/onsite/impersonate#token=" + token,
	})
}
