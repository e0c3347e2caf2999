package manager

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

// memorySink captures a snapshot in memory instead of a file store.
type memorySink struct {
	bytes.Buffer
	cancelled bool
}

func (s *memorySink) ID() string    { return "in-memory" }
func (s *memorySink) Close() error  { return nil }
func (s *memorySink) Cancel() error { s.cancelled = true; return nil }

func newTestFSM(t *testing.T) *BrigadeFSM {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewBrigadeFSM(store)
}

func applyOp(t *testing.T, fsm *BrigadeFSM, op string, payload any) interface{} {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	entry, err := json.Marshal(&Command{Op: op, Data: data})
	require.NoError(t, err)
	return fsm.Apply(&raft.Log{Data: entry})
}

func TestFSMApplyRejectsUnknownOp(t *testing.T) {
	fsm := newTestFSM(t)

	entry, err := json.Marshal(&Command{Op: "drop_everything"})
	require.NoError(t, err)

	res := fsm.Apply(&raft.Log{Data: entry})
	applyErr, ok := res.(error)
	require.True(t, ok, "unknown ops must surface as errors, got %T", res)
	assert.Contains(t, applyErr.Error(), "unknown command")
}

func TestFSMApplyRejectsGarbage(t *testing.T) {
	fsm := newTestFSM(t)

	res := fsm.Apply(&raft.Log{Data: []byte("not json")})
	_, ok := res.(error)
	assert.True(t, ok)
}

func TestFSMApplyReturnsStorageErrors(t *testing.T) {
	fsm := newTestFSM(t)

	res := applyOp(t, fsm, opCreateTenant, &types.Tenant{
		ID:         "t-1",
		Slug:       "orphan",
		Name:       "Orphan",
		ResellerID: "missing",
	})
	applyErr, ok := res.(error)
	require.True(t, ok)
	assert.ErrorIs(t, applyErr, storage.ErrNotFound)
}

func TestFSMSnapshotRestore(t *testing.T) {
	fsm := newTestFSM(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	res := applyOp(t, fsm, opCreateReseller, &types.Reseller{
		ID: "r-1", Code: "ACME", Name: "Acme", Active: true, CreatedAt: now,
	})
	_, ok := res.(*types.Reseller)
	require.True(t, ok, "apply returned %v", res)

	applyOp(t, fsm, opCreateTenant, &types.Tenant{
		ID: "t-1", Slug: "burger-hub", Name: "Burger Hub", Active: true, ResellerID: "r-1", CreatedAt: now,
	})
	applyOp(t, fsm, opCreateStore, &types.Store{
		ID: "s-1", TenantID: "t-1", Code: "BH-001", Name: "Downtown",
		Status: types.StoreStatusActive, CreatedAt: now,
	})
	applyOp(t, fsm, opCreateAccount, &types.CloudAccount{
		ID: "a-1", Email: "ops@example.com", PasswordHash: "x",
		Type: types.AccountTypeOwner, Status: types.AccountStatusActive, CreatedAt: now,
	})
	applyOp(t, fsm, opCreateBootstrapToken, &types.BootstrapToken{
		ID: "bt-1", StoreID: "s-1", TokenHash: "h", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	applyOp(t, fsm, opRegisterNode, &storage.RegisterNodeArgs{
		Node: &types.Node{
			ID: "n-1", StoreID: "s-1", NodeKey: "EDGE-TEST0001", TokenHash: "nh",
			Status: types.NodeStatusOnline, LastSeenAt: now, CreatedAt: now,
		},
		TokenHash: "h",
		At:        now,
	})
	pubRes := applyOp(t, fsm, opPublishRevision, &storage.PublishRevisionArgs{
		Revision: &types.Revision{
			ID: "rev-1", StoreID: "s-1", Domain: "SETTINGS",
			Payload: json.RawMessage(`{"tax":0.19}`), CreatedBy: "a-1", CreatedAt: now,
		},
		Command: &types.Command{
			ID: "c-1", StoreID: "s-1", Domain: "SETTINGS", CommandType: "SETTINGS_PATCH",
			Status: types.CommandStatusPending, RevisionID: "rev-1", CreatedBy: "a-1", CreatedAt: now,
		},
	})
	_, ok = pubRes.(*storage.PublishResult)
	require.True(t, ok, "apply returned %v", pubRes)
	ackRes := applyOp(t, fsm, opAckCommand, &storage.AckCommandArgs{
		CommandID: "c-1", NodeID: "n-1", LogID: "log-1",
		Status: types.CommandStatusAcked, At: now,
	})
	_, ok = ackRes.(*types.Command)
	require.True(t, ok, "apply returned %v", ackRes)

	snapshot, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &memorySink{}
	require.NoError(t, snapshot.Persist(sink))
	assert.False(t, sink.cancelled)
	snapshot.Release()

	restored := newTestFSM(t)
	require.NoError(t, restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))

	store, err := restored.store.GetStore("s-1")
	require.NoError(t, err)
	assert.Equal(t, "BH-001", store.Code)

	node, err := restored.store.GetNode("n-1")
	require.NoError(t, err)
	assert.Equal(t, "EDGE-TEST0001", node.NodeKey)
	assert.Equal(t, "nh", node.TokenHash, "credentials survive the round trip")

	rev, err := restored.store.LatestRevision("s-1", "SETTINGS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev.Number)

	cmd, err := restored.store.GetCommand("c-1")
	require.NoError(t, err)
	assert.Equal(t, types.CommandStatusAcked, cmd.Status)
	assert.Equal(t, 1, cmd.Attempts)

	logs, err := restored.store.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	tokens, err := restored.store.ListBootstrapTokens("s-1")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].UsedAt, "consumption state survives the round trip")

	// The revision counter must keep going from where it left off.
	again, err := restored.store.PublishRevision(&storage.PublishRevisionArgs{
		Revision: &types.Revision{
			ID: "rev-2", StoreID: "s-1", Domain: "SETTINGS",
			Payload: json.RawMessage(`{}`), CreatedBy: "a-1", CreatedAt: now,
		},
		Command: &types.Command{
			ID: "c-2", StoreID: "s-1", Domain: "SETTINGS", CommandType: "SETTINGS_PATCH",
			Status: types.CommandStatusPending, RevisionID: "rev-2", CreatedBy: "a-1", CreatedAt: now,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Revision.Number)
}
