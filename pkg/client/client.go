package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cravepos/brigade/pkg/types"
)

const defaultTimeout = 10 * time.Second

// maxErrorBytes bounds how much of an error body is read when the server
// answers with something that is not the expected JSON.
const maxErrorBytes = 64 << 10

// APIError is a non-2xx response from the cloud API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == status
}

// Client is a typed HTTP client for the Brigade cloud API. It covers both
// halves of the surface: the operator endpoints (bearer session) and the
// node endpoints (x-node-id/x-node-token header pair).
type Client struct {
	baseURL string
	http    *http.Client

	session   string
	nodeID    string
	nodeToken string
}

// New creates a client for the control plane at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// WithHTTPClient swaps the underlying http.Client; useful for tests and
// custom transports.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// SetSession pins the operator session token sent on subsequent calls.
// Login sets it automatically.
func (c *Client) SetSession(token string) { c.session = token }

// SetNodeCredentials pins the node identity sent on subsequent calls.
func (c *Client) SetNodeCredentials(nodeID, nodeToken string) {
	c.nodeID = nodeID
	c.nodeToken = nodeToken
}

// do performs one JSON round trip. A nil out discards the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}
	if c.nodeID != "" {
		req.Header.Set("x-node-id", c.nodeID)
		req.Header.Set("x-node-token", c.nodeToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))

	var body types.ErrorResponse
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Login authenticates an operator and pins the returned session token on
// the client.
func (c *Client) Login(ctx context.Context, email, password string) (*types.LoginResponse, error) {
	var resp types.LoginResponse
	err := c.do(ctx, http.MethodPost, "/cloud/auth/login", &types.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.session = resp.Token
	return &resp, nil
}

// Me returns the account behind the pinned session.
func (c *Client) Me(ctx context.Context) (*types.CloudAccount, error) {
	var resp types.MeResponse
	if err := c.do(ctx, http.MethodGet, "/cloud/auth/me", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Account, nil
}

func (c *Client) CreateReseller(ctx context.Context, req *types.CreateResellerRequest) (*types.Reseller, error) {
	var reseller types.Reseller
	if err := c.do(ctx, http.MethodPost, "/cloud/platform/resellers", req, &reseller); err != nil {
		return nil, err
	}
	return &reseller, nil
}

func (c *Client) ListResellers(ctx context.Context) ([]*types.Reseller, error) {
	var resp types.ResellerListResponse
	if err := c.do(ctx, http.MethodGet, "/cloud/platform/resellers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Resellers, nil
}

// CreateResellerAccount creates a RESELLER operator under the reseller.
func (c *Client) CreateResellerAccount(ctx context.Context, resellerID string, req *types.CreateAccountRequest) (*types.CloudAccount, error) {
	var account types.CloudAccount
	path := "/cloud/platform/resellers/" + url.PathEscape(resellerID) + "/accounts"
	if err := c.do(ctx, http.MethodPost, path, req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateResellerTenant creates a tenant under the reseller.
func (c *Client) CreateResellerTenant(ctx context.Context, resellerID string, req *types.CreateTenantRequest) (*types.Tenant, error) {
	var tenant types.Tenant
	path := "/cloud/platform/resellers/" + url.PathEscape(resellerID) + "/tenants"
	if err := c.do(ctx, http.MethodPost, path, req, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (c *Client) CreateTenant(ctx context.Context, req *types.CreateTenantRequest) (*types.Tenant, error) {
	var tenant types.Tenant
	if err := c.do(ctx, http.MethodPost, "/cloud/platform/tenants", req, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (c *Client) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	var resp types.TenantListResponse
	if err := c.do(ctx, http.MethodGet, "/cloud/platform/tenants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

// CreateTenantAccount creates a TENANT_ADMIN operator under the tenant.
func (c *Client) CreateTenantAccount(ctx context.Context, tenantID string, req *types.CreateAccountRequest) (*types.CloudAccount, error) {
	var account types.CloudAccount
	path := "/cloud/platform/tenants/" + url.PathEscape(tenantID) + "/accounts"
	if err := c.do(ctx, http.MethodPost, path, req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) CreateStore(ctx context.Context, req *types.CreateStoreRequest) (*types.Store, error) {
	var store types.Store
	if err := c.do(ctx, http.MethodPost, "/cloud/platform/stores", req, &store); err != nil {
		return nil, err
	}
	return &store, nil
}

func (c *Client) ListStores(ctx context.Context) ([]*types.Store, error) {
	var resp types.StoreListResponse
	if err := c.do(ctx, http.MethodGet, "/cloud/platform/stores", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stores, nil
}

// PublishRevision appends the next revision for (store, domain) and returns
// it with the companion command.
func (c *Client) PublishRevision(ctx context.Context, storeID string, req *types.PublishRevisionRequest) (*types.PublishRevisionResponse, error) {
	var resp types.PublishRevisionResponse
	path := "/cloud/stores/" + url.PathEscape(storeID) + "/revisions"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LatestRevision returns the head revision of one domain.
func (c *Client) LatestRevision(ctx context.Context, storeID, domain string) (*types.Revision, error) {
	var resp types.LatestRevisionResponse
	path := "/cloud/stores/" + url.PathEscape(storeID) + "/revisions/latest?domain=" + url.QueryEscape(domain)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Revision, nil
}

// LatestRevisions returns the head revision of every domain of a store.
func (c *Client) LatestRevisions(ctx context.Context, storeID string) (map[string]*types.Revision, error) {
	var resp types.LatestRevisionsResponse
	path := "/cloud/stores/" + url.PathEscape(storeID) + "/revisions/latest"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Revisions, nil
}

// CommandListOptions narrow the command listing endpoints. Zero values
// mean "no filter".
type CommandListOptions struct {
	Statuses []types.CommandStatus
	Domain   string
	NodeID   string
	Limit    int
}

func (o CommandListOptions) query() string {
	q := url.Values{}
	if len(o.Statuses) > 0 {
		parts := make([]string, 0, len(o.Statuses))
		for _, status := range o.Statuses {
			parts = append(parts, string(status))
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if o.Domain != "" {
		q.Set("domain", o.Domain)
	}
	if o.NodeID != "" {
		q.Set("nodeId", o.NodeID)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListStoreCommands lists a store's commands newest-first.
func (c *Client) ListStoreCommands(ctx context.Context, storeID string, opts CommandListOptions) ([]*types.Command, error) {
	var resp types.CommandListResponse
	path := "/cloud/stores/" + url.PathEscape(storeID) + "/commands" + opts.query()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// RetryCommand re-queues an ACKED or FAILED command.
func (c *Client) RetryCommand(ctx context.Context, commandID string) (*types.Command, error) {
	var cmd types.Command
	path := "/cloud/commands/" + url.PathEscape(commandID) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// CommandLogs returns a command with its audit trail.
func (c *Client) CommandLogs(ctx context.Context, commandID string, limit int) (*types.CommandLogsResponse, error) {
	var resp types.CommandLogsResponse
	path := "/cloud/commands/" + url.PathEscape(commandID) + "/logs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IssueBootstrapToken mints a single-use registration token for a store.
func (c *Client) IssueBootstrapToken(ctx context.Context, storeID string, req *types.IssueBootstrapTokenRequest) (*types.IssueBootstrapTokenResponse, error) {
	var resp types.IssueBootstrapTokenResponse
	path := "/cloud/platform/stores/" + url.PathEscape(storeID) + "/bootstrap-tokens"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBootstrapTokens lists a store's issued tokens, hashes elided.
func (c *Client) ListBootstrapTokens(ctx context.Context, storeID string) ([]*types.BootstrapToken, error) {
	var resp types.BootstrapTokenListResponse
	path := "/cloud/platform/stores/" + url.PathEscape(storeID) + "/bootstrap-tokens"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// ImpersonationLink mints a hand-off link into a store's edge UI.
func (c *Client) ImpersonationLink(ctx context.Context, storeID string, req *types.ImpersonationLinkRequest) (*types.ImpersonationLinkResponse, error) {
	var resp types.ImpersonationLinkResponse
	path := "/cloud/platform/stores/" + url.PathEscape(storeID) + "/impersonation-link"
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NetworkViewOptions narrow the fleet health view.
type NetworkViewOptions struct {
	ResellerID      string
	TenantID        string
	StoreStatus     string
	NodeStatus      string
	IncludeUnlinked bool
}

// NetworkView returns the fleet health view.
func (c *Client) NetworkView(ctx context.Context, opts NetworkViewOptions) (*types.NetworkViewResponse, error) {
	q := url.Values{}
	if opts.ResellerID != "" {
		q.Set("resellerId", opts.ResellerID)
	}
	if opts.TenantID != "" {
		q.Set("tenantId", opts.TenantID)
	}
	if opts.StoreStatus != "" {
		q.Set("storeStatus", opts.StoreStatus)
	}
	if opts.NodeStatus != "" {
		q.Set("nodeStatus", opts.NodeStatus)
	}
	if opts.IncludeUnlinked {
		q.Set("includeUnlinked", "true")
	}
	path := "/cloud/platform/network"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp types.NetworkViewResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RotateNodeToken replaces a node's credential and returns the new
// plaintext, exactly once.
func (c *Client) RotateNodeToken(ctx context.Context, nodeID string) (*types.RotateNodeTokenResponse, error) {
	var resp types.RotateNodeTokenResponse
	path := "/cloud/platform/network/nodes/" + url.PathEscape(nodeID) + "/rotate-token"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DispatchAction queues a remote action against a store's node(s).
func (c *Client) DispatchAction(ctx context.Context, req *types.DispatchActionRequest) (*types.DispatchActionResponse, error) {
	var resp types.DispatchActionResponse
	if err := c.do(ctx, http.MethodPost, "/cloud/platform/network/actions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListActions lists remote-action commands; storeID narrows to one store.
func (c *Client) ListActions(ctx context.Context, storeID string, opts CommandListOptions) ([]*types.Command, error) {
	q := opts.query()
	if storeID != "" {
		if q == "" {
			q = "?storeId=" + url.QueryEscape(storeID)
		} else {
			q += "&storeId=" + url.QueryEscape(storeID)
		}
	}

	var resp types.CommandListResponse
	if err := c.do(ctx, http.MethodGet, "/cloud/platform/network/actions"+q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// RetryAction re-queues a remote-action command.
func (c *Client) RetryAction(ctx context.Context, commandID string) (*types.Command, error) {
	var cmd types.Command
	path := "/cloud/platform/network/actions/" + url.PathEscape(commandID) + "/retry"
	if err := c.do(ctx, http.MethodPost, path, nil, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// CancelAction cancels a pending remote-action command.
func (c *Client) CancelAction(ctx context.Context, commandID string) (*types.Command, error) {
	var cmd types.Command
	path := "/cloud/platform/network/actions/" + url.PathEscape(commandID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, nil, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Claim pairs an on-premise server with a cloud store.
func (c *Client) Claim(ctx context.Context, req *types.ClaimRequest) (*types.ClaimResponse, error) {
	var resp types.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/cloud/platform/onsite/claim", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterNode redeems a bootstrap token for a node identity. The caller
// should pin the returned credentials with SetNodeCredentials.
func (c *Client) RegisterNode(ctx context.Context, req *types.RegisterNodeRequest) (*types.RegisterNodeResponse, error) {
	var resp types.RegisterNodeResponse
	if err := c.do(ctx, http.MethodPost, "/cloud/nodes/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NodeCommands pulls the authenticated node's work, oldest-first.
func (c *Client) NodeCommands(ctx context.Context, nodeID string, opts CommandListOptions) ([]*types.Command, error) {
	var resp types.CommandListResponse
	path := "/cloud/nodes/" + url.PathEscape(nodeID) + "/commands" + opts.query()
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commands, nil
}

// Heartbeat refreshes the authenticated node's liveness.
func (c *Client) Heartbeat(ctx context.Context, nodeID string, req *types.HeartbeatRequest) error {
	path := "/cloud/nodes/" + url.PathEscape(nodeID) + "/heartbeat"
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// AckCommand reports a command outcome for the authenticated node.
func (c *Client) AckCommand(ctx context.Context, commandID string, req *types.AckCommandRequest) (*types.Command, error) {
	var cmd types.Command
	path := "/cloud/commands/" + url.PathEscape(commandID) + "/ack"
	if err := c.do(ctx, http.MethodPost, path, req, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// JoinRaft asks the control plane's ops listener to admit this instance as
// a raft voter. Used during `serve --join`; carries its own timeout since
// there is no inbound request to inherit one from.
func (c *Client) JoinRaft(nodeID, raftAddr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	return c.do(ctx, http.MethodPost, "/internal/raft/join", &types.RaftJoinRequest{
		NodeID:   nodeID,
		RaftAddr: raftAddr,
	}, nil)
}
