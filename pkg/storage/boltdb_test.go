package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravepos/brigade/pkg/types"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedHierarchy(t *testing.T, s *BoltStore) (*types.Reseller, *types.Tenant, *types.Store) {
	t.Helper()

	reseller := &types.Reseller{ID: "rsl-1", Code: "ACME", Name: "Acme Resellers", Active: true, CreatedAt: testTime}
	require.NoError(t, s.CreateReseller(reseller))

	tenant := &types.Tenant{ID: "tnt-1", Slug: "burger-bros", Name: "Burger Bros", Active: true, ResellerID: reseller.ID, CreatedAt: testTime}
	require.NoError(t, s.CreateTenant(tenant))

	store := &types.Store{ID: "store-1", TenantID: tenant.ID, Code: "SMOKE-1", Name: "Smoke Test Store", Status: types.StoreStatusActive, CreatedAt: testTime}
	require.NoError(t, s.CreateStore(store))

	return reseller, tenant, store
}

func seedNode(t *testing.T, s *BoltStore, storeID, nodeID string) *types.Node {
	t.Helper()

	bt := &types.BootstrapToken{
		ID:        "bst-" + nodeID,
		StoreID:   storeID,
		TokenHash: "hash-" + nodeID,
		ExpiresAt: testTime.Add(time.Hour),
		CreatedAt: testTime,
	}
	require.NoError(t, s.CreateBootstrapToken(bt))

	node, err := s.RegisterNode(&RegisterNodeArgs{
		Node: &types.Node{
			ID:         nodeID,
			StoreID:    storeID,
			NodeKey:    "EDGE-" + nodeID,
			TokenHash:  "nodehash-" + nodeID,
			Status:     types.NodeStatusOnline,
			LastSeenAt: testTime,
			CreatedAt:  testTime,
		},
		TokenHash: bt.TokenHash,
		At:        testTime,
	})
	require.NoError(t, err)
	return node
}

func publish(t *testing.T, s *BoltStore, storeID, domain, revID, cmdID, nodeID string, at time.Time) *PublishResult {
	t.Helper()

	res, err := s.PublishRevision(&PublishRevisionArgs{
		Revision: &types.Revision{
			ID:        revID,
			StoreID:   storeID,
			Domain:    domain,
			Payload:   json.RawMessage(`{"key":"services"}`),
			CreatedAt: at,
		},
		Command: &types.Command{
			ID:          cmdID,
			StoreID:     storeID,
			NodeID:      nodeID,
			RevisionID:  revID,
			Domain:      domain,
			CommandType: domain + "_PATCH",
			Status:      types.CommandStatusPending,
			IssuedAt:    at,
		},
	})
	require.NoError(t, err)
	return res
}

func TestHierarchyUniqueness(t *testing.T) {
	s := newTestStore(t)
	_, tenant, _ := seedHierarchy(t, s)

	tests := []struct {
		name string
		do   func() error
	}{
		{
			name: "duplicate reseller code",
			do: func() error {
				return s.CreateReseller(&types.Reseller{ID: "rsl-2", Code: "ACME", Name: "Other"})
			},
		},
		{
			name: "duplicate tenant slug",
			do: func() error {
				return s.CreateTenant(&types.Tenant{ID: "tnt-2", Slug: "burger-bros", Name: "Other"})
			},
		},
		{
			name: "duplicate store code",
			do: func() error {
				return s.CreateStore(&types.Store{ID: "store-2", TenantID: tenant.ID, Code: "SMOKE-1", Name: "Other"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.do()
			assert.ErrorIs(t, err, ErrConflict)
		})
	}
}

func TestCreateTenantMissingReseller(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateTenant(&types.Tenant{ID: "tnt-1", Slug: "x", Name: "X", ResellerID: "rsl-missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAccountEmailUniqueness(t *testing.T) {
	s := newTestStore(t)

	a := &types.CloudAccount{ID: "acc-1", Email: "owner@example.com", Type: types.AccountTypeOwner, Status: types.AccountStatusActive}
	require.NoError(t, s.CreateAccount(a))

	err := s.CreateAccount(&types.CloudAccount{ID: "acc-2", Email: "owner@example.com", Type: types.AccountTypeOwner})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetAccountByEmail("owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)

	has, err := s.HasAccounts()
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRegisterNode(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)

	node := seedNode(t, s, store.ID, "n-1")
	assert.Equal(t, store.ID, node.StoreID)

	got, err := s.GetNodeByKey("EDGE-n-1")
	require.NoError(t, err)
	assert.Equal(t, "n-1", got.ID)

	// The consumed token is marked used.
	tokens, err := s.ListBootstrapTokens(store.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].UsedAt)
	assert.Equal(t, "n-1", tokens[0].UsedByNodeID)
}

func TestRegisterNodeTokenGuards(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)

	require.NoError(t, s.CreateBootstrapToken(&types.BootstrapToken{
		ID: "bst-live", StoreID: store.ID, TokenHash: "live",
		ExpiresAt: testTime.Add(time.Hour), CreatedAt: testTime,
	}))
	require.NoError(t, s.CreateBootstrapToken(&types.BootstrapToken{
		ID: "bst-old", StoreID: store.ID, TokenHash: "expired",
		ExpiresAt: testTime.Add(-time.Minute), CreatedAt: testTime.Add(-time.Hour),
	}))

	register := func(id, hash string) error {
		_, err := s.RegisterNode(&RegisterNodeArgs{
			Node: &types.Node{
				ID: id, StoreID: store.ID, NodeKey: "EDGE-" + id,
				TokenHash: "nh-" + id, Status: types.NodeStatusOnline,
				LastSeenAt: testTime, CreatedAt: testTime,
			},
			TokenHash: hash,
			At:        testTime,
		})
		return err
	}

	assert.ErrorIs(t, register("n-a", "unknown"), ErrBootstrapToken)
	assert.ErrorIs(t, register("n-b", "expired"), ErrBootstrapToken)

	require.NoError(t, register("n-c", "live"))

	// Single use: the same token cannot register a second node.
	assert.ErrorIs(t, register("n-d", "live"), ErrBootstrapToken)
}

func TestHeartbeatNode(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")

	later := testTime.Add(5 * time.Minute)
	updated, err := s.HeartbeatNode(&HeartbeatArgs{
		NodeID:          node.ID,
		SoftwareVersion: "1.4.2",
		Metadata:        map[string]any{"ip": "10.1.1.5"},
		At:              later,
	})
	require.NoError(t, err)

	assert.Equal(t, later, updated.LastSeenAt)
	assert.Equal(t, types.NodeStatusOnline, updated.Status)
	assert.Equal(t, "1.4.2", updated.SoftwareVersion)
	assert.Equal(t, "10.1.1.5", updated.Metadata["ip"])

	_, err = s.HeartbeatNode(&HeartbeatArgs{NodeID: "n-missing", At: later})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotateNodeToken(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")

	rotated, err := s.RotateNodeToken(&RotateNodeTokenArgs{
		NodeID:    node.ID,
		TokenHash: "fresh-hash",
		RotatedBy: "acc-1",
		At:        testTime.Add(time.Minute),
	})
	require.NoError(t, err)

	assert.Equal(t, "fresh-hash", rotated.TokenHash)
	assert.Equal(t, "acc-1", rotated.TokenRotatedBy)
	require.NotNil(t, rotated.TokenRotatedAt)
}

func TestPublishRevisionNumbering(t *testing.T) {
	s := newTestStore(t)
	_, tenant, store := seedHierarchy(t, s)

	res := publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)
	assert.Equal(t, int64(1), res.Revision.Number)

	res = publish(t, s, store.ID, "SETTINGS", "rev-2", "c-2", "", testTime.Add(time.Second))
	assert.Equal(t, int64(2), res.Revision.Number)

	// Streams are independent per domain.
	res = publish(t, s, store.ID, "MENU", "rev-3", "c-3", "", testTime.Add(2*time.Second))
	assert.Equal(t, int64(1), res.Revision.Number)

	// And per store.
	other := &types.Store{ID: "store-2", TenantID: tenant.ID, Code: "SMOKE-2", Name: "Second", Status: types.StoreStatusActive, CreatedAt: testTime}
	require.NoError(t, s.CreateStore(other))
	res = publish(t, s, other.ID, "SETTINGS", "rev-4", "c-4", "", testTime.Add(3*time.Second))
	assert.Equal(t, int64(1), res.Revision.Number)
}

func TestPublishRevisionCommandPayload(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)

	res := publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)

	var payload types.RevisionCommandPayload
	require.NoError(t, json.Unmarshal(res.Command.Payload, &payload))
	assert.Equal(t, "SETTINGS", payload.Domain)
	assert.Equal(t, int64(1), payload.Revision)
	assert.JSONEq(t, `{"key":"services"}`, string(payload.Payload))
}

func TestPublishRevisionTargetGuards(t *testing.T) {
	s := newTestStore(t)
	_, tenant, store := seedHierarchy(t, s)

	other := &types.Store{ID: "store-2", TenantID: tenant.ID, Code: "SMOKE-2", Name: "Second", Status: types.StoreStatusActive, CreatedAt: testTime}
	require.NoError(t, s.CreateStore(other))
	foreign := seedNode(t, s, other.ID, "n-other")

	_, err := s.PublishRevision(&PublishRevisionArgs{
		Revision: &types.Revision{ID: "rev-x", StoreID: store.ID, Domain: "SETTINGS", CreatedAt: testTime},
		Command: &types.Command{
			ID: "c-x", StoreID: store.ID, NodeID: foreign.ID,
			Domain: "SETTINGS", CommandType: "SETTINGS_PATCH",
			Status: types.CommandStatusPending, IssuedAt: testTime,
		},
	})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.PublishRevision(&PublishRevisionArgs{
		Revision: &types.Revision{ID: "rev-y", StoreID: "store-missing", Domain: "SETTINGS", CreatedAt: testTime},
		Command:  &types.Command{ID: "c-y", StoreID: "store-missing", Domain: "SETTINGS", Status: types.CommandStatusPending, IssuedAt: testTime},
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAckCommand(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")
	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", node.ID, testTime)

	applied := int64(1)
	cmd, err := s.AckCommand(&AckCommandArgs{
		CommandID:       "c-1",
		NodeID:          node.ID,
		LogID:           "clg-1",
		Status:          types.CommandStatusAcked,
		AppliedRevision: &applied,
		At:              testTime.Add(time.Second),
	})
	require.NoError(t, err)

	assert.Equal(t, types.CommandStatusAcked, cmd.Status)
	assert.Equal(t, 1, cmd.Attempts)
	require.NotNil(t, cmd.AppliedRevision)
	assert.Equal(t, int64(1), *cmd.AppliedRevision)
	require.NotNil(t, cmd.AcknowledgedAt)

	logs, err := s.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.LogStatusAcked, logs[0].Status)
	assert.Equal(t, node.ID, logs[0].NodeID)
}

func TestAckCommandLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")
	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)

	_, err := s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-1",
		Status: types.CommandStatusFailed, ErrorCode: "SMOKE_FAIL",
		At: testTime.Add(time.Second),
	})
	require.NoError(t, err)

	applied := int64(1)
	cmd, err := s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-2",
		Status: types.CommandStatusAcked, AppliedRevision: &applied,
		At: testTime.Add(2 * time.Second),
	})
	require.NoError(t, err)

	// The later ack wins wholesale; the earlier error fields are gone.
	assert.Equal(t, types.CommandStatusAcked, cmd.Status)
	assert.Empty(t, cmd.ErrorCode)
	assert.Equal(t, 2, cmd.Attempts)

	logs, err := s.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, types.LogStatusAcked, logs[0].Status)
	assert.Equal(t, types.LogStatusFailed, logs[1].Status)
}

func TestRetryCommand(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")
	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", node.ID, testTime)

	// A pending command cannot be retried.
	_, err := s.RetryCommand(&RetryCommandArgs{CommandID: "c-1", LogID: "clg-r0", RequestedBy: "acc-1", At: testTime})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-1",
		Status: types.CommandStatusFailed, ErrorCode: "SMOKE_FAIL", ErrorDetail: "boom",
		At: testTime.Add(time.Second),
	})
	require.NoError(t, err)

	cmd, err := s.RetryCommand(&RetryCommandArgs{CommandID: "c-1", LogID: "clg-2", RequestedBy: "acc-1", At: testTime.Add(2 * time.Second)})
	require.NoError(t, err)

	assert.Equal(t, types.CommandStatusPending, cmd.Status)
	assert.Empty(t, cmd.ErrorCode)
	assert.Empty(t, cmd.ErrorDetail)
	assert.Nil(t, cmd.AppliedRevision)
	assert.Nil(t, cmd.AcknowledgedAt)
	assert.Equal(t, 1, cmd.Attempts)

	logs, err := s.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, types.LogStatusRetried, logs[0].Status)
	assert.Equal(t, "acc-1", logs[0].CreatedBy)

	// A later successful ack counts the second attempt.
	applied := int64(1)
	cmd, err = s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-3",
		Status: types.CommandStatusAcked, AppliedRevision: &applied,
		At: testTime.Add(3 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, cmd.Attempts)
}

func TestCancelCommand(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)

	cmd, err := s.CancelCommand(&CancelCommandArgs{CommandID: "c-1", LogID: "clg-1", RequestedBy: "acc-1", At: testTime.Add(time.Second)})
	require.NoError(t, err)

	assert.Equal(t, types.CommandStatusFailed, cmd.Status)
	assert.Equal(t, types.ErrorCodeCancelled, cmd.ErrorCode)
	require.NotNil(t, cmd.AcknowledgedAt)

	// Cancelling again fails: the command is no longer pending.
	_, err = s.CancelCommand(&CancelCommandArgs{CommandID: "c-1", LogID: "clg-2", RequestedBy: "acc-1", At: testTime.Add(2 * time.Second)})
	assert.ErrorIs(t, err, ErrInvalid)

	logs, err := s.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.LogStatusCancelled, logs[0].Status)
}

func TestListStoreCommands(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")

	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)
	publish(t, s, store.ID, "MENU", "rev-2", "c-2", node.ID, testTime.Add(time.Second))
	publish(t, s, store.ID, "SETTINGS", "rev-3", "c-3", "", testTime.Add(2*time.Second))

	_, err := s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-1",
		Status: types.CommandStatusAcked, At: testTime.Add(3 * time.Second),
	})
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		cmds, err := s.ListStoreCommands(store.ID, CommandFilter{})
		require.NoError(t, err)
		require.Len(t, cmds, 3)
		assert.Equal(t, "c-3", cmds[0].ID)
		assert.Equal(t, "c-2", cmds[1].ID)
		assert.Equal(t, "c-1", cmds[2].ID)
	})

	t.Run("status filter", func(t *testing.T) {
		cmds, err := s.ListStoreCommands(store.ID, CommandFilter{Statuses: []types.CommandStatus{types.CommandStatusAcked}})
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		assert.Equal(t, "c-1", cmds[0].ID)
	})

	t.Run("domain filter", func(t *testing.T) {
		cmds, err := s.ListStoreCommands(store.ID, CommandFilter{Domain: "MENU"})
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		assert.Equal(t, "c-2", cmds[0].ID)
	})

	t.Run("node filter", func(t *testing.T) {
		cmds, err := s.ListStoreCommands(store.ID, CommandFilter{NodeID: node.ID})
		require.NoError(t, err)
		require.Len(t, cmds, 1)
		assert.Equal(t, "c-2", cmds[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		cmds, err := s.ListStoreCommands(store.ID, CommandFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, cmds, 2)
		assert.Equal(t, "c-3", cmds[0].ID)
	})
}

func TestListNodeCommandsBroadcast(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	n1 := seedNode(t, s, store.ID, "n-1")
	n2 := seedNode(t, s, store.ID, "n-2")

	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-broadcast", "", testTime)
	publish(t, s, store.ID, "SETTINGS", "rev-2", "c-n1", n1.ID, testTime.Add(time.Second))

	pending := CommandFilter{Statuses: []types.CommandStatus{types.CommandStatusPending}}

	cmds, err := s.ListNodeCommands(n1, pending)
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	// Oldest first.
	assert.Equal(t, "c-broadcast", cmds[0].ID)
	assert.Equal(t, "c-n1", cmds[1].ID)

	cmds, err = s.ListNodeCommands(n2, pending)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "c-broadcast", cmds[0].ID)

	// Once any node acks the broadcast it leaves every pending pull.
	_, err = s.AckCommand(&AckCommandArgs{
		CommandID: "c-broadcast", NodeID: n2.ID, LogID: "clg-1",
		Status: types.CommandStatusAcked, At: testTime.Add(2 * time.Second),
	})
	require.NoError(t, err)

	cmds, err = s.ListNodeCommands(n1, pending)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "c-n1", cmds[0].ID)
}

func TestLatestRevision(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)

	_, err := s.LatestRevision(store.ID, "SETTINGS")
	assert.ErrorIs(t, err, ErrNotFound)

	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", "", testTime)
	publish(t, s, store.ID, "SETTINGS", "rev-2", "c-2", "", testTime.Add(time.Second))
	publish(t, s, store.ID, "MENU", "rev-3", "c-3", "", testTime.Add(2*time.Second))

	rev, err := s.LatestRevision(store.ID, "SETTINGS")
	require.NoError(t, err)
	assert.Equal(t, "rev-2", rev.ID)
	assert.Equal(t, int64(2), rev.Number)

	latest, err := s.LatestRevisions(store.ID)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest["SETTINGS"].Number)
	assert.Equal(t, int64(1), latest["MENU"].Number)

	empty, err := s.LatestRevisions("store-without-revisions")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLinkOnsite(t *testing.T) {
	s := newTestStore(t)
	_, tenant, existingStore := seedHierarchy(t, s)

	candidateStore := &types.Store{
		ID: "store-new", TenantID: tenant.ID, Code: "ONSITE-SERVER-123",
		Name: "Server 123", Status: types.StoreStatusActive, CreatedAt: testTime,
	}
	candidateNode := func(id string) *types.Node {
		return &types.Node{
			ID: id, NodeKey: "ONSITE-SERVER-123", TokenHash: "th-" + id,
			Status: types.NodeStatusOnline, LastSeenAt: testTime, CreatedAt: testTime,
			Metadata: map[string]any{"serverUid": "server-123"},
		}
	}

	t.Run("creates store and node", func(t *testing.T) {
		res, err := s.LinkOnsite(&LinkOnsiteArgs{
			TenantID: tenant.ID,
			Store:    candidateStore,
			Node:     candidateNode("n-1"),
			At:       testTime,
		})
		require.NoError(t, err)
		assert.Equal(t, "store-new", res.Store.ID)
		assert.Equal(t, "n-1", res.Node.ID)
		assert.Equal(t, "store-new", res.Node.StoreID)
	})

	t.Run("re-claim reuses store and node", func(t *testing.T) {
		res, err := s.LinkOnsite(&LinkOnsiteArgs{
			TenantID: tenant.ID,
			Store:    &types.Store{ID: "store-dup", TenantID: tenant.ID, Code: "ONSITE-SERVER-123", Name: "Dup"},
			Node:     candidateNode("n-2"),
			At:       testTime.Add(time.Minute),
		})
		require.NoError(t, err)

		// The candidates are discarded in favor of the linked pair.
		assert.Equal(t, "store-new", res.Store.ID)
		assert.Equal(t, "n-1", res.Node.ID)
		assert.Equal(t, "th-n-2", res.Node.TokenHash)
	})

	t.Run("conflict when linked to a different store", func(t *testing.T) {
		_, err := s.LinkOnsite(&LinkOnsiteArgs{
			StoreID: existingStore.ID,
			Node:    candidateNode("n-3"),
			At:      testTime.Add(2 * time.Minute),
		})
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("explicit store link", func(t *testing.T) {
		res, err := s.LinkOnsite(&LinkOnsiteArgs{
			StoreID: existingStore.ID,
			Node: &types.Node{
				ID: "n-4", NodeKey: "ONSITE-SERVER-999", TokenHash: "th-n-4",
				Status: types.NodeStatusOnline, LastSeenAt: testTime, CreatedAt: testTime,
			},
			At: testTime.Add(3 * time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, existingStore.ID, res.Store.ID)
		assert.Equal(t, existingStore.ID, res.Node.StoreID)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")
	publish(t, s, store.ID, "SETTINGS", "rev-1", "c-1", node.ID, testTime)
	_, err := s.AckCommand(&AckCommandArgs{
		CommandID: "c-1", NodeID: node.ID, LogID: "clg-1",
		Status: types.CommandStatusAcked, At: testTime.Add(time.Second),
	})
	require.NoError(t, err)

	resellers, err := s.ListResellers()
	require.NoError(t, err)
	tenants, err := s.ListTenants()
	require.NoError(t, err)
	stores, err := s.ListStores()
	require.NoError(t, err)
	tokens, err := s.ListAllBootstrapTokens()
	require.NoError(t, err)
	nodes, err := s.ListNodes()
	require.NoError(t, err)
	revs, err := s.ListAllRevisions()
	require.NoError(t, err)
	cmds, err := s.ListAllCommands()
	require.NoError(t, err)
	logs, err := s.ListAllCommandLogs()
	require.NoError(t, err)

	require.NoError(t, s.Reset())

	has, err := s.HasAccounts()
	require.NoError(t, err)
	assert.False(t, has)

	for _, r := range resellers {
		require.NoError(t, s.CreateReseller(r))
	}
	for _, tn := range tenants {
		require.NoError(t, s.CreateTenant(tn))
	}
	for _, st := range stores {
		require.NoError(t, s.CreateStore(st))
	}
	for _, bt := range tokens {
		require.NoError(t, s.CreateBootstrapToken(bt))
	}
	for _, n := range nodes {
		require.NoError(t, s.PutNode(n))
	}
	for _, rev := range revs {
		require.NoError(t, s.PutRevision(rev))
	}
	for _, cmd := range cmds {
		require.NoError(t, s.PutCommand(cmd))
	}
	for _, lg := range logs {
		require.NoError(t, s.PutCommandLog(lg))
	}

	// Every query path still works against the restored state.
	gotNode, err := s.GetNodeByKey("EDGE-n-1")
	require.NoError(t, err)
	assert.Equal(t, "n-1", gotNode.ID)

	rev, err := s.LatestRevision(store.ID, "SETTINGS")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev.Number)

	// Next publish continues the stream after the restored maximum.
	res := publish(t, s, store.ID, "SETTINGS", "rev-2", "c-2", "", testTime.Add(time.Minute))
	assert.Equal(t, int64(2), res.Revision.Number)

	gotLogs, err := s.ListCommandLogs("c-1", 0)
	require.NoError(t, err)
	require.Len(t, gotLogs, 1)
	assert.Equal(t, types.LogStatusAcked, gotLogs[0].Status)
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBoltStore(dir)
	require.NoError(t, err)
	_, _, store := seedHierarchy(t, s)
	node := seedNode(t, s, store.ID, "n-1")
	publish(t, s, store.ID, "MENU", "rev-1", "c-1", node.ID, testTime)
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	gotNode, err := s.GetNodeByKey("EDGE-n-1")
	require.NoError(t, err)
	assert.Equal(t, node.ID, gotNode.ID)

	rev, err := s.LatestRevision(store.ID, "MENU")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev.Number)

	// Numbering resumes from the persisted maximum, and the indexes came
	// back with the data.
	res := publish(t, s, store.ID, "MENU", "rev-2", "c-2", node.ID, testTime.Add(time.Minute))
	assert.Equal(t, int64(2), res.Revision.Number)

	err = s.CreateStore(&types.Store{ID: "store-9", TenantID: "tnt-1", Code: "SMOKE-1", Name: "Dup", Status: types.StoreStatusActive, CreatedAt: testTime})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}
