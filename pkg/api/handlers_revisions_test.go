package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cravepos/brigade/pkg/types"
)

func (a *testAPI) publish(token, storeID, domain string) *types.PublishRevisionResponse {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/cloud/stores/"+storeID+"/revisions", token,
		&types.PublishRevisionRequest{Domain: domain, Payload: []byte(`{"v":1}`)})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp types.PublishRevisionResponse
	a.decode(rec, &resp)
	return &resp
}

func TestPublishRevision(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()

	t.Run("numbers increment per store and domain", func(t *testing.T) {
		first := a.publish(w.ownerToken, w.storeA.ID, "menu")
		assert.Equal(t, int64(1), first.Revision.Number)
		assert.Equal(t, "MENU", first.Revision.Domain)
		require.NotNil(t, first.Command)
		assert.Equal(t, types.CommandStatusPending, first.Command.Status)
		assert.Equal(t, "MENU_PATCH", first.Command.CommandType)
		assert.Empty(t, first.Command.NodeID)

		second := a.publish(w.ownerToken, w.storeA.ID, "menu")
		assert.Equal(t, int64(2), second.Revision.Number)

		settings := a.publish(w.ownerToken, w.storeA.ID, "settings")
		assert.Equal(t, int64(1), settings.Revision.Number)

		elsewhere := a.publish(w.ownerToken, w.storeB.ID, "menu")
		assert.Equal(t, int64(1), elsewhere.Revision.Number)
	})

	t.Run("custom command type", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/stores/"+w.storeA.ID+"/revisions", w.ownerToken,
			&types.PublishRevisionRequest{Domain: "pricing", Payload: []byte(`{}`), CommandType: "PRICE_SYNC"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp types.PublishRevisionResponse
		a.decode(rec, &resp)
		assert.Equal(t, "PRICE_SYNC", resp.Command.CommandType)
	})

	t.Run("remote action domain is reserved", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/stores/"+w.storeA.ID+"/revisions", w.ownerToken,
			&types.PublishRevisionRequest{Domain: "remote_action", Payload: []byte(`{}`)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed domain", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/stores/"+w.storeA.ID+"/revisions", w.ownerToken,
			&types.PublishRevisionRequest{Domain: "menu items!", Payload: []byte(`{}`)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("tenant admin cannot publish to another tenant", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/stores/"+w.storeB.ID+"/revisions", w.tenantToken,
			&types.PublishRevisionRequest{Domain: "menu", Payload: []byte(`{}`)})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown store", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/stores/missing/revisions", w.ownerToken,
			&types.PublishRevisionRequest{Domain: "menu", Payload: []byte(`{}`)})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestLatestRevisions(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()

	a.publish(w.ownerToken, w.storeA.ID, "menu")
	a.publish(w.ownerToken, w.storeA.ID, "menu")
	a.publish(w.ownerToken, w.storeA.ID, "settings")

	t.Run("single domain", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeA.ID+"/revisions/latest?domain=menu", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.LatestRevisionResponse
		a.decode(rec, &resp)
		require.NotNil(t, resp.Revision)
		assert.Equal(t, int64(2), resp.Revision.Number)
		assert.Equal(t, "MENU", resp.Revision.Domain)
	})

	t.Run("all domains", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeA.ID+"/revisions/latest", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.LatestRevisionsResponse
		a.decode(rec, &resp)
		require.Len(t, resp.Revisions, 2)
		assert.Equal(t, int64(2), resp.Revisions["MENU"].Number)
		assert.Equal(t, int64(1), resp.Revisions["SETTINGS"].Number)
	})

	t.Run("domain with no revisions", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeA.ID+"/revisions/latest?domain=pricing", w.ownerToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListStoreCommands(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()

	// Distinct issue times keep newest-first deterministic.
	base := time.Now().UTC()
	a.mgr.SetClock(func() time.Time { return base })
	a.publish(w.ownerToken, w.storeA.ID, "menu")
	a.mgr.SetClock(func() time.Time { return base.Add(time.Second) })
	a.publish(w.ownerToken, w.storeA.ID, "settings")
	a.mgr.SetClock(func() time.Time { return base.Add(2 * time.Second) })
	newest := a.publish(w.ownerToken, w.storeA.ID, "menu")

	list := func(query string) []*types.Command {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeA.ID+"/commands"+query, w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp types.CommandListResponse
		a.decode(rec, &resp)
		return resp.Commands
	}

	t.Run("newest first", func(t *testing.T) {
		commands := list("")
		require.Len(t, commands, 3)
		assert.Equal(t, newest.Command.ID, commands[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		commands := list("?limit=1")
		require.Len(t, commands, 1)
		assert.Equal(t, newest.Command.ID, commands[0].ID)
	})

	t.Run("domain filter", func(t *testing.T) {
		assert.Len(t, list("?domain=menu"), 2)
	})

	t.Run("status filter", func(t *testing.T) {
		node, nodeToken := a.registerNode(w.storeA.ID, "kitchen")
		rec := a.doNode(http.MethodPost, "/cloud/commands/"+newest.Command.ID+"/ack", node.ID, nodeToken,
			&types.AckCommandRequest{Status: types.CommandStatusAcked})
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Len(t, list("?status=PENDING"), 2)
		assert.Len(t, list("?status=ACKED"), 1)
		assert.Len(t, list("?status=PENDING,ACKED"), 3)
	})

	t.Run("zero limit", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeA.ID+"/commands?limit=0", w.ownerToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty store lists empty", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/stores/"+w.storeB.ID+"/commands", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"commands":[]`)
	})
}

func TestRetryCommand(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()
	node, nodeToken := a.registerNode(w.storeA.ID, "kitchen")

	published := a.publish(w.ownerToken, w.storeA.ID, "menu")
	cmdID := published.Command.ID

	t.Run("pending commands are not retryable", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/commands/"+cmdID+"/retry", w.ownerToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	applied := int64(7)
	rec := a.doNode(http.MethodPost, "/cloud/commands/"+cmdID+"/ack", node.ID, nodeToken,
		&types.AckCommandRequest{
			Status:          types.CommandStatusFailed,
			AppliedRevision: &applied,
			ErrorCode:       "APPLY_ERROR",
			ErrorDetail:     "disk full",
		})
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("retry clears the failure and re-queues", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/commands/"+cmdID+"/retry", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var retried types.Command
		a.decode(rec, &retried)
		assert.Equal(t, types.CommandStatusPending, retried.Status)
		assert.Nil(t, retried.AppliedRevision)
		assert.Empty(t, retried.ErrorCode)
		assert.Empty(t, retried.ErrorDetail)
		assert.Nil(t, retried.AcknowledgedAt)
		assert.Equal(t, 1, retried.Attempts)
	})

	t.Run("retried command reappears in the node pull", func(t *testing.T) {
		rec := a.doNode(http.MethodGet, "/cloud/nodes/"+node.ID+"/commands", node.ID, nodeToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp types.CommandListResponse
		a.decode(rec, &resp)
		require.Len(t, resp.Commands, 1)
		assert.Equal(t, cmdID, resp.Commands[0].ID)
	})

	t.Run("tenant admins can retry within their tenant", func(t *testing.T) {
		rec := a.doNode(http.MethodPost, "/cloud/commands/"+cmdID+"/ack", node.ID, nodeToken,
			&types.AckCommandRequest{Status: types.CommandStatusFailed, ErrorCode: "APPLY_ERROR"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = a.do(http.MethodPost, "/cloud/commands/"+cmdID+"/retry", w.tenantToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("out of scope", func(t *testing.T) {
		other := a.publish(w.ownerToken, w.storeB.ID, "menu")
		rec := a.do(http.MethodPost, "/cloud/commands/"+other.Command.ID+"/retry", w.tenantToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCommandLogs(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()
	node, nodeToken := a.registerNode(w.storeA.ID, "kitchen")

	published := a.publish(w.ownerToken, w.storeA.ID, "menu")
	cmdID := published.Command.ID

	rec := a.doNode(http.MethodPost, "/cloud/commands/"+cmdID+"/ack", node.ID, nodeToken,
		&types.AckCommandRequest{Status: types.CommandStatusFailed, ErrorCode: "APPLY_ERROR"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodPost, "/cloud/commands/"+cmdID+"/retry", w.ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("newest first with the command echoed", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/commands/"+cmdID+"/logs", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.CommandLogsResponse
		a.decode(rec, &resp)
		require.NotNil(t, resp.Command)
		assert.Equal(t, cmdID, resp.Command.ID)
		require.Len(t, resp.Logs, 2)
		assert.Equal(t, types.LogStatusRetried, resp.Logs[0].Status)
		assert.Equal(t, types.LogStatusFailed, resp.Logs[1].Status)
		assert.Equal(t, node.ID, resp.Logs[1].NodeID)
	})

	t.Run("limit", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/commands/"+cmdID+"/logs?limit=1", w.ownerToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.CommandLogsResponse
		a.decode(rec, &resp)
		require.Len(t, resp.Logs, 1)
		assert.Equal(t, types.LogStatusRetried, resp.Logs[0].Status)
	})
}

func TestBootstrapTokens(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()

	rec := a.do(http.MethodPost, "/cloud/platform/stores/"+w.storeA.ID+"/bootstrap-tokens", w.tenantToken,
		&types.IssueBootstrapTokenRequest{Label: "drive-thru kit"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var issued types.IssueBootstrapTokenResponse
	a.decode(rec, &issued)
	assert.NotEmpty(t, issued.TokenID)
	assert.NotEmpty(t, issued.BootstrapToken)
	assert.False(t, issued.ExpiresAt.IsZero())

	t.Run("listing elides the hash", func(t *testing.T) {
		rec := a.do(http.MethodGet, "/cloud/platform/stores/"+w.storeA.ID+"/bootstrap-tokens", w.tenantToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.BootstrapTokenListResponse
		a.decode(rec, &resp)
		require.Len(t, resp.Tokens, 1)
		assert.Equal(t, "drive-thru kit", resp.Tokens[0].Label)
		assert.Empty(t, resp.Tokens[0].TokenHash)
		assert.NotContains(t, rec.Body.String(), "tokenHash")
		assert.NotContains(t, rec.Body.String(), issued.BootstrapToken)
	})

	t.Run("out of scope store", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/platform/stores/"+w.storeB.ID+"/bootstrap-tokens", w.tenantToken,
			&types.IssueBootstrapTokenRequest{})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestImpersonationLink(t *testing.T) {
	a := newTestAPI(t)
	w := a.seedWorld()

	linked, err := a.mgr.CreateStore(&types.CreateStoreRequest{
		TenantID:    w.tenantA.ID,
		Code:        "bh-002",
		Name:        "Burger Hub Airport",
		EdgeBaseURL: "https://edge.bh-002.example.com/",
	})
	require.NoError(t, err)

	t.Run("uses the store edge base url", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/platform/stores/"+linked.ID+"/impersonation-link", w.tenantToken,
			&types.ImpersonationLinkRequest{})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp types.ImpersonationLinkResponse
		a.decode(rec, &resp)
		assert.True(t, strings.HasPrefix(resp.URL, "https://edge.bh-002.example.com/onsite/impersonate#token="), resp.URL)
		token := strings.TrimPrefix(resp.URL, "https://edge.bh-002.example.com/onsite/impersonate#token=")
		assert.NotEmpty(t, token)
		assert.Equal(t, int64(120), resp.ExpiresInSeconds)
	})

	t.Run("explicit target wins", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/platform/stores/"+linked.ID+"/impersonation-link", w.ownerToken,
			&types.ImpersonationLinkRequest{TargetBaseURL: "http://10.0.0.5:8443"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ImpersonationLinkResponse
		a.decode(rec, &resp)
		assert.True(t, strings.HasPrefix(resp.URL, "http://10.0.0.5:8443/onsite/impersonate#token="), resp.URL)
	})

	t.Run("no edge url and no target", func(t *testing.T) {
		rec := a.do(http.MethodPost, "/cloud/platform/stores/"+w.storeA.ID+"/impersonation-link", w.ownerToken,
			&types.ImpersonationLinkRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
