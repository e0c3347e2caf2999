package api

import (
	"net/http"

	"github.com/cravepos/brigade/pkg/types"
)

// handleRegisterNode self-registers an edge node. The bootstrap token is
// the credential; there is no session. The node token in the response is
// plaintext, returned exactly once.
func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, nodeToken, err := s.manager.RegisterNode(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, &types.RegisterNodeResponse{
		NodeID:    node.ID,
		StoreID:   node.StoreID,
		NodeKey:   node.NodeKey,
		NodeToken: nodeToken,
	})
}

// handleNodeCommands is the node work pull: PENDING commands by default,
// oldest-first, broadcast commands included.
func (s *Server) handleNodeCommands(w http.ResponseWriter, r *http.Request) {
	node, err := s.requireNode(r, r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	filter, err := parseCommandFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// Targeting is inherent to the pull; a nodeId query param is ignored.
	filter.NodeID = ""
	if len(filter.Statuses) == 0 {
		filter.Statuses = []types.CommandStatus{types.CommandStatusPending}
	}

	commands, err := s.manager.ListNodeCommands(node, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if commands == nil {
		commands = []*types.Command{}
	}
	writeJSON(w, http.StatusOK, &types.CommandListResponse{Commands: commands})
}

// handleNodeHeartbeat refreshes the node's liveness window.
func (s *Server) handleNodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	node, err := s.requireNode(r, r.PathValue("nodeId"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req types.HeartbeatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.manager.Heartbeat(node.ID, &req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &types.HeartbeatResponse{OK: true})
}

// handleAckCommand records a node's outcome for a command. The node must
// belong to the command's store, and a node-targeted command only accepts
// its own node's ack.
func (s *Server) handleAckCommand(w http.ResponseWriter, r *http.Request) {
	node, err := s.requireNode(r, "")
	if err != nil {
		writeError(w, err)
		return
	}

	cmd, err := s.manager.GetCommand(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if cmd.StoreID != node.StoreID {
		writeError(w, errForbidden("command %s belongs to another store", cmd.ID))
		return
	}
	if cmd.NodeID != "" && cmd.NodeID != node.ID {
		writeError(w, errForbidden("command %s is targeted at another node", cmd.ID))
		return
	}

	var req types.AckCommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	acked, err := s.manager.AckCommand(cmd.ID, node.ID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acked)
}
