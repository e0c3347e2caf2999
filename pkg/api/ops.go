package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/metrics"
	"github.com/cravepos/brigade/pkg/types"
)

// OpsServer serves the operational endpoints on a separate listener:
// liveness, readiness, Prometheus metrics and the raft join hook. Nothing
// here is tenant-scoped; the address is expected to stay inside the
// deployment network.
type OpsServer struct {
	manager *manager.Manager
	version string
	mux     *http.ServeMux
	httpSrv *http.Server
}

// NewOpsServer creates the ops endpoint set for a manager.
func NewOpsServer(mgr *manager.Manager, version string) *OpsServer {
	o := &OpsServer{
		manager: mgr,
		version: version,
		mux:     http.NewServeMux(),
	}

	o.mux.HandleFunc("GET /healthz", o.handleHealthz)
	o.mux.HandleFunc("GET /readyz", o.handleReadyz)
	o.mux.Handle("GET /metrics", metrics.Handler())
	o.mux.HandleFunc("POST /internal/raft/join", o.handleRaftJoin)

	return o
}

// Handler returns the ops mux for in-process tests.
func (o *OpsServer) Handler() http.Handler {
	return o.mux
}

// Start serves the ops endpoints on addr until Shutdown.
func (o *OpsServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	o.httpSrv = &http.Server{
		Handler:      o.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger := log.WithComponent("ops")
	logger.Info().Str("addr", lis.Addr().String()).Msg("ops listening")
	if err := o.httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the ops listener.
func (o *OpsServer) Shutdown(ctx context.Context) error {
	if o.httpSrv == nil {
		return nil
	}
	return o.httpSrv.Shutdown(ctx)
}

// HealthzResponse is the liveness body.
type HealthzResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyzResponse is the readiness body with per-dependency checks.
type ReadyzResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// handleHealthz answers 200 whenever the process is alive.
func (o *OpsServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &HealthzResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   o.version,
	})
}

// handleReadyz reports whether this instance can serve traffic: the raft
// cluster must have a leader and storage must answer a read.
func (o *OpsServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true
	var message string

	if o.manager.IsLeader() {
		checks["raft"] = "leader"
	} else if leaderAddr := o.manager.LeaderAddr(); leaderAddr != "" {
		checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
	} else {
		checks["raft"] = "no leader elected"
		ready = false
		message = "waiting for leader election"
	}

	if _, err := o.manager.ListResellers(); err != nil {
		checks["storage"] = fmt.Sprintf("error: %v", err)
		ready = false
		if message == "" {
			message = "storage not accessible"
		}
	} else {
		checks["storage"] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, &ReadyzResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Message:   message,
	})
}

// handleRaftJoin admits a new voter into the raft cluster. Only the leader
// can serve this; followers answer 503 so the joiner can retry against the
// advertised leader.
func (o *OpsServer) handleRaftJoin(w http.ResponseWriter, r *http.Request) {
	var req types.RaftJoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.NodeID == "" || req.RaftAddr == "" {
		writeError(w, errBadRequest("nodeId and raftAddr are required"))
		return
	}

	if err := o.manager.AddVoter(req.NodeID, req.RaftAddr); err != nil {
		writeError(w, err)
		return
	}

	logger := log.WithComponent("ops")
	logger.Info().
		Str("peer", req.NodeID).
		Str("addr", req.RaftAddr).
		Msg("raft voter admitted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}
