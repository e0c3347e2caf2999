package types

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// LoginRequest is the operator login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the signed session token and the account it
// belongs to.
type LoginResponse struct {
	Token   string        `json:"token"`
	Account *CloudAccount `json:"account"`
}

// MeResponse is the authenticated-account echo.
type MeResponse struct {
	Account *CloudAccount `json:"account"`
}

// CreateResellerRequest creates a reseller (OWNER only).
type CreateResellerRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// CreateTenantRequest creates a tenant, optionally under a reseller.
type CreateTenantRequest struct {
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	ResellerID string `json:"resellerId,omitempty"`
}

// CreateStoreRequest creates a store under a tenant.
type CreateStoreRequest struct {
	TenantID    string `json:"tenantId"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Timezone    string `json:"timezone,omitempty"`
	EdgeBaseURL string `json:"edgeBaseUrl,omitempty"`
}

// CreateAccountRequest creates a reseller or tenant-admin account under
// the reseller/tenant named by the URL.
type CreateAccountRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// IssueBootstrapTokenRequest mints a single-use node registration token.
type IssueBootstrapTokenRequest struct {
	Label      string `json:"label,omitempty"`
	TTLSeconds int64  `json:"ttlSeconds,omitempty"`
}

// IssueBootstrapTokenResponse returns the plaintext token exactly once.
type IssueBootstrapTokenResponse struct {
	TokenID        string    `json:"tokenId"`
	StoreID        string    `json:"storeId"`
	BootstrapToken string    `json:"bootstrapToken"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// BootstrapTokenListResponse lists issued tokens (hashes elided).
type BootstrapTokenListResponse struct {
	Tokens []*BootstrapToken `json:"tokens"`
}

// PublishRevisionRequest publishes the next revision for (store, domain)
// and enqueues its companion command.
type PublishRevisionRequest struct {
	Domain      string          `json:"domain"`
	Payload     json.RawMessage `json:"payload"`
	CommandType string          `json:"commandType,omitempty"`
	NodeID      string          `json:"nodeId,omitempty"`
}

// PublishRevisionResponse returns the created revision and command.
type PublishRevisionResponse struct {
	Revision *Revision `json:"revision"`
	Command  *Command  `json:"command"`
}

// LatestRevisionResponse is the single-domain form of the latest query.
type LatestRevisionResponse struct {
	Revision *Revision `json:"revision"`
}

// LatestRevisionsResponse maps every domain of a store to its latest
// revision.
type LatestRevisionsResponse struct {
	Revisions map[string]*Revision `json:"revisions"`
}

// CommandListResponse is a page of commands.
type CommandListResponse struct {
	Commands []*Command `json:"commands"`
}

// CommandLogsResponse returns a command together with its audit trail.
type CommandLogsResponse struct {
	Command *Command      `json:"command"`
	Logs    []*CommandLog `json:"logs"`
}

// AckCommandRequest is the edge's self-reported outcome for a command.
type AckCommandRequest struct {
	Status          CommandStatus   `json:"status"`
	AppliedRevision *int64          `json:"appliedRevision,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorDetail     string          `json:"errorDetail,omitempty"`
	Output          json.RawMessage `json:"output,omitempty"`
}

// RegisterNodeRequest self-registers an edge node using a bootstrap token.
type RegisterNodeRequest struct {
	StoreID         string         `json:"storeId"`
	BootstrapToken  string         `json:"bootstrapToken"`
	Label           string         `json:"label,omitempty"`
	SoftwareVersion string         `json:"softwareVersion,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RegisterNodeResponse returns the node identity; NodeToken is plaintext
// and returned exactly once.
type RegisterNodeResponse struct {
	NodeID    string `json:"nodeId"`
	StoreID   string `json:"storeId"`
	NodeKey   string `json:"nodeKey"`
	NodeToken string `json:"nodeToken"`
}

// HeartbeatRequest refreshes a node's liveness and self-reported build.
type HeartbeatRequest struct {
	SoftwareVersion string         `json:"softwareVersion,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HeartbeatResponse acknowledges a heartbeat.
type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

// RotateNodeTokenResponse returns the refreshed node and the new plaintext
// token, exactly once.
type RotateNodeTokenResponse struct {
	Node      *Node  `json:"node"`
	NodeToken string `json:"nodeToken"`
}

// DispatchActionRequest dispatches a remote action to one or all nodes of
// a store.
type DispatchActionRequest struct {
	StoreID        string         `json:"storeId"`
	NodeID         string         `json:"nodeId,omitempty"`
	TargetAllNodes bool           `json:"targetAllNodes,omitempty"`
	Action         RemoteAction   `json:"action"`
	Note           string         `json:"note,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

// DispatchActionResponse echoes the action and the command that carries it.
type DispatchActionResponse struct {
	Action  RemoteAction `json:"action"`
	Command *Command     `json:"command"`
}

// ActionPayload is the payload embedded in every remote-action command.
type ActionPayload struct {
	Action      RemoteAction   `json:"action"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Note        string         `json:"note,omitempty"`
	IssuedAt    time.Time      `json:"issuedAt"`
	RequestedBy string         `json:"requestedBy,omitempty"`
}

// RevisionCommandPayload is the payload embedded in every revision-backed
// command so a node can apply the referenced revision from the pull alone.
type RevisionCommandPayload struct {
	Domain   string          `json:"domain"`
	Revision int64           `json:"revision"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NetworkNode is the operator-facing node view: Status carries the derived
// health class; RawStatus is the node's own last self-report.
type NetworkNode struct {
	ID                  string     `json:"id"`
	Label               string     `json:"label,omitempty"`
	NodeKey             string     `json:"nodeKey"`
	Status              string     `json:"status"`
	RawStatus           string     `json:"rawStatus"`
	HeartbeatAgeSeconds int64      `json:"heartbeatAgeSeconds"`
	SoftwareVersion     string     `json:"softwareVersion,omitempty"`
	LastSeenAt          time.Time  `json:"lastSeenAt"`
	CreatedAt           time.Time  `json:"createdAt"`
	TokenRotatedAt      *time.Time `json:"tokenRotatedAt,omitempty"`
}

// NetworkStore groups the nodes of one store in the network view.
type NetworkStore struct {
	ID          string         `json:"id"`
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Status      StoreStatus    `json:"status"`
	Timezone    string         `json:"timezone,omitempty"`
	TenantID    string         `json:"tenantId"`
	TenantName  string         `json:"tenantName,omitempty"`
	ResellerID  string         `json:"resellerId,omitempty"`
	EdgeBaseURL string         `json:"edgeBaseUrl,omitempty"`
	Nodes       []*NetworkNode `json:"nodes"`
}

// NetworkSummary aggregates the filtered network view.
type NetworkSummary struct {
	Stores  int `json:"stores"`
	Nodes   int `json:"nodes"`
	Online  int `json:"online"`
	Stale   int `json:"stale"`
	Offline int `json:"offline"`
}

// NetworkViewResponse is the fleet health view.
type NetworkViewResponse struct {
	Summary NetworkSummary  `json:"summary"`
	Stores  []*NetworkStore `json:"stores"`
}

// ClaimRequest pairs an on-premise server with a cloud store.
type ClaimRequest struct {
	OnsiteBaseURL string `json:"onsiteBaseUrl"`
	ClaimID       string `json:"claimId"`
	ClaimCode     string `json:"claimCode"`
	TenantID      string `json:"tenantId,omitempty"`
	StoreID       string `json:"storeId,omitempty"`
	StoreName     string `json:"storeName,omitempty"`
	StoreCode     string `json:"storeCode,omitempty"`
	Timezone      string `json:"timezone,omitempty"`
	EdgeBaseURL   string `json:"edgeBaseUrl,omitempty"`
	CloudBaseURL  string `json:"cloudBaseUrl,omitempty"`
	NodeLabel     string `json:"nodeLabel,omitempty"`
}

// ClaimNode is the node block of a claim response; NodeToken is plaintext
// and returned exactly once.
type ClaimNode struct {
	Node
	NodeToken string `json:"nodeToken"`
}

// ClaimOnsite reports the edge-side outcome of the handshake. Finalized is
// false when the finalize call failed after the cloud link was committed.
type ClaimOnsite struct {
	ServerUID     string `json:"serverUid"`
	Finalized     bool   `json:"finalized"`
	FinalizeError string `json:"finalizeError,omitempty"`
}

// ClaimResponse is the operator-facing claim result.
type ClaimResponse struct {
	Store  *Store      `json:"store"`
	Node   *ClaimNode  `json:"node"`
	Onsite ClaimOnsite `json:"onsite"`
}

// ImpersonationLinkRequest mints a short-lived operator hand-off link to a
// store's edge UI.
type ImpersonationLinkRequest struct {
	TargetBaseURL string `json:"targetBaseUrl,omitempty"`
}

// ImpersonationLinkResponse carries the signed link.
type ImpersonationLinkResponse struct {
	Store            *Store `json:"store"`
	TargetBaseURL    string `json:"targetBaseUrl"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
	URL              string `json:"url"`
}

// RaftJoinRequest asks a control plane to admit a new raft voter. Served
// on the ops listener, not the public API.
type RaftJoinRequest struct {
	NodeID   string `json:"nodeId"`
	RaftAddr string `json:"raftAddr"`
}

// ResellerListResponse, TenantListResponse, StoreListResponse are scoped
// collection reads.
type ResellerListResponse struct {
	Resellers []*Reseller `json:"resellers"`
}

type TenantListResponse struct {
	Tenants []*Tenant `json:"tenants"`
}

type StoreListResponse struct {
	Stores []*Store `json:"stores"`
}
