package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravepos/brigade/pkg/types"
)

type ackCall struct {
	CommandID string
	Body      types.AckCommandRequest
}

// stubCloud is a canned control plane covering the node endpoints the
// agent talks to. Queued commands are served once and then drained.
type stubCloud struct {
	srv *httptest.Server

	mu            sync.Mutex
	queued        []*types.Command
	registerCalls int

	heartbeats chan types.HeartbeatRequest
	acks       chan ackCall
}

func newStubCloud(t *testing.T) *stubCloud {
	t.Helper()

	s := &stubCloud{
		heartbeats: make(chan types.HeartbeatRequest, 16),
		acks:       make(chan ackCall, 16),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /cloud/nodes/register", func(w http.ResponseWriter, r *http.Request) {
		var req types.RegisterNodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		s.mu.Lock()
		s.registerCalls++
		s.mu.Unlock()

		if req.BootstrapToken != "bs_good" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(types.ErrorResponse{Message: "bootstrap token is invalid"})
			return
		}
		_ = json.NewEncoder(w).Encode(types.RegisterNodeResponse{
			NodeID:    "node-1",
			StoreID:   req.StoreID,
			NodeKey:   "EDGE-TEST1",
			NodeToken: "node_secret",
		})
	})
	mux.HandleFunc("GET /cloud/nodes/{nodeId}/commands", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "node-1", r.Header.Get("x-node-id"))
		assert.Equal(t, "node_secret", r.Header.Get("x-node-token"))

		s.mu.Lock()
		cmds := s.queued
		s.queued = nil
		s.mu.Unlock()

		if cmds == nil {
			cmds = []*types.Command{}
		}
		_ = json.NewEncoder(w).Encode(types.CommandListResponse{Commands: cmds})
	})
	mux.HandleFunc("POST /cloud/nodes/{nodeId}/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		var req types.HeartbeatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.heartbeats <- req
		_ = json.NewEncoder(w).Encode(types.HeartbeatResponse{OK: true})
	})
	mux.HandleFunc("POST /cloud/commands/{id}/ack", func(w http.ResponseWriter, r *http.Request) {
		var req types.AckCommandRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.acks <- ackCall{CommandID: r.PathValue("id"), Body: req}
		_ = json.NewEncoder(w).Encode(types.Command{ID: r.PathValue("id"), Status: req.Status})
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubCloud) queue(cmds ...*types.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, cmds...)
}

func (s *stubCloud) registers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerCalls
}

func waitAck(t *testing.T, s *stubCloud) ackCall {
	t.Helper()
	select {
	case ack := <-s.acks:
		return ack
	case <-time.After(2 * time.Second):
		t.Fatal("expected an ack")
		return ackCall{}
	}
}

func waitHeartbeat(t *testing.T, s *stubCloud) types.HeartbeatRequest {
	t.Helper()
	select {
	case hb := <-s.heartbeats:
		return hb
	case <-time.After(2 * time.Second):
		t.Fatal("expected a heartbeat")
		return types.HeartbeatRequest{}
	}
}

// quietConfig keeps the tickers out of the way so tests only see the
// initial poll.
func quietConfig(cloudURL string) Config {
	return Config{
		CloudURL:          cloudURL,
		StoreID:           "store-1",
		BootstrapToken:    "bs_good",
		Label:             "kitchen",
		HeartbeatInterval: time.Hour,
		PollInterval:      time.Hour,
	}
}

func startAgent(t *testing.T, cfg Config) *Agent {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)
	return a
}

func revisionCommand(t *testing.T, id string, revision int64) *types.Command {
	t.Helper()
	payload, err := json.Marshal(types.RevisionCommandPayload{
		Domain:   "SETTINGS",
		Revision: revision,
		Payload:  json.RawMessage(`{"tax":0.19}`),
	})
	require.NoError(t, err)
	return &types.Command{
		ID:          id,
		StoreID:     "store-1",
		Domain:      "SETTINGS",
		CommandType: "SETTINGS_PATCH",
		Payload:     payload,
		Status:      types.CommandStatusPending,
	}
}

func actionCommand(t *testing.T, id string, action types.RemoteAction) *types.Command {
	t.Helper()
	payload, err := json.Marshal(types.ActionPayload{Action: action})
	require.NoError(t, err)
	return &types.Command{
		ID:          id,
		StoreID:     "store-1",
		Domain:      types.DomainRemoteAction,
		CommandType: "REMOTE_ACTION_" + string(action),
		Payload:     payload,
		Status:      types.CommandStatusPending,
	}
}

func TestRegisterAndPersist(t *testing.T) {
	cloud := newStubCloud(t)
	stateFile := filepath.Join(t.TempDir(), "state", "agent.json")

	cfg := quietConfig(cloud.srv.URL)
	cfg.StateFile = stateFile

	a := startAgent(t, cfg)
	assert.Equal(t, "node-1", a.NodeID())
	assert.Equal(t, 1, cloud.registers())

	info, err := os.Stat(stateFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(stateFile)
	require.NoError(t, err)
	var saved credentials
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "node-1", saved.NodeID)
	assert.Equal(t, "node_secret", saved.NodeToken)
	assert.Equal(t, "EDGE-TEST1", saved.NodeKey)

	// A restart reuses the saved identity without burning another token.
	again := quietConfig(cloud.srv.URL)
	again.StateFile = stateFile
	again.BootstrapToken = "bs_burnt_already"

	b := startAgent(t, again)
	assert.Equal(t, "node-1", b.NodeID())
	assert.Equal(t, 1, cloud.registers(), "no second registration")
}

func TestRegisterRejected(t *testing.T) {
	cloud := newStubCloud(t)

	cfg := quietConfig(cloud.srv.URL)
	cfg.BootstrapToken = "bs_wrong"

	a, err := New(cfg)
	require.NoError(t, err)
	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register node")
}

func TestStartWithoutCredentials(t *testing.T) {
	cloud := newStubCloud(t)

	a, err := New(Config{CloudURL: cloud.srv.URL})
	require.NoError(t, err)
	err = a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap token")
}

func TestNewRequiresCloudURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestPollDispatchesToHandler(t *testing.T) {
	cloud := newStubCloud(t)
	cloud.queue(revisionCommand(t, "cmd-1", 7))

	var handled []*types.Command
	var mu sync.Mutex

	cfg := quietConfig(cloud.srv.URL)
	cfg.Handler = func(cmd *types.Command) (Ack, error) {
		mu.Lock()
		handled = append(handled, cmd)
		mu.Unlock()
		applied := int64(7)
		return Ack{AppliedRevision: &applied}, nil
	}
	startAgent(t, cfg)

	ack := waitAck(t, cloud)
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, types.CommandStatusAcked, ack.Body.Status, "zero status defaults to ACKED")
	require.NotNil(t, ack.Body.AppliedRevision)
	assert.Equal(t, int64(7), *ack.Body.AppliedRevision)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, handled, 1)
	assert.Equal(t, "SETTINGS_PATCH", handled[0].CommandType)
}

func TestHandlerErrorFailsCommand(t *testing.T) {
	cloud := newStubCloud(t)
	cloud.queue(revisionCommand(t, "cmd-1", 1))

	cfg := quietConfig(cloud.srv.URL)
	cfg.Handler = func(cmd *types.Command) (Ack, error) {
		return Ack{}, errors.New("printer on fire")
	}
	startAgent(t, cfg)

	ack := waitAck(t, cloud)
	assert.Equal(t, types.CommandStatusFailed, ack.Body.Status)
	assert.Equal(t, "AGENT_ERROR", ack.Body.ErrorCode)
	assert.Contains(t, ack.Body.ErrorDetail, "printer on fire")
}

func TestDefaultHandlerEchoesRevision(t *testing.T) {
	cloud := newStubCloud(t)
	cloud.queue(revisionCommand(t, "cmd-1", 42))

	startAgent(t, quietConfig(cloud.srv.URL))

	ack := waitAck(t, cloud)
	assert.Equal(t, types.CommandStatusAcked, ack.Body.Status)
	require.NotNil(t, ack.Body.AppliedRevision)
	assert.Equal(t, int64(42), *ack.Body.AppliedRevision)
}

func TestDefaultHandlerHeartbeatNow(t *testing.T) {
	cloud := newStubCloud(t)
	cloud.queue(actionCommand(t, "cmd-1", types.ActionHeartbeatNow))

	cfg := quietConfig(cloud.srv.URL)
	cfg.SoftwareVersion = "2.4.0"
	startAgent(t, cfg)

	hb := waitHeartbeat(t, cloud)
	assert.Equal(t, "2.4.0", hb.SoftwareVersion)

	ack := waitAck(t, cloud)
	assert.Equal(t, "cmd-1", ack.CommandID)
	assert.Equal(t, types.CommandStatusAcked, ack.Body.Status)
	assert.Nil(t, ack.Body.AppliedRevision, "actions carry no revision")
}

func TestDefaultHandlerOtherActionsAckBare(t *testing.T) {
	cloud := newStubCloud(t)
	cloud.queue(actionCommand(t, "cmd-1", types.ActionSyncPull))

	startAgent(t, quietConfig(cloud.srv.URL))

	ack := waitAck(t, cloud)
	assert.Equal(t, types.CommandStatusAcked, ack.Body.Status)
	assert.Nil(t, ack.Body.AppliedRevision)

	select {
	case <-cloud.heartbeats:
		t.Fatal("sync pull must not heartbeat")
	case <-time.After(100 * time.Millisecond):
	}
}
