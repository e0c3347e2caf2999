package api

import (
	"net/http"

	"github.com/cravepos/brigade/pkg/types"
)

// handleLogin exchanges operator credentials for a signed session token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	account, err := s.auth.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, _, err := s.auth.IssueSession(account)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info().Str("account", account.ID).Str("type", string(account.Type)).Msg("operator login")
	writeJSON(w, http.StatusOK, &types.LoginResponse{Token: token, Account: account.Redacted()})
}

// handleMe echoes the account behind the presented session.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, err := s.requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := s.manager.GetAccount(sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.MeResponse{Account: account.Redacted()})
}
