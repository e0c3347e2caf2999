package types

import (
	"encoding/json"
	"time"
)

// AccountType classifies a cloud account within the tenancy hierarchy.
type AccountType string

const (
	AccountTypeOwner       AccountType = "OWNER"
	AccountTypeReseller    AccountType = "RESELLER"
	AccountTypeTenantAdmin AccountType = "TENANT_ADMIN"
)

// AccountStatus represents the lifecycle state of a cloud account
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusDisabled AccountStatus = "DISABLED"
)

// StoreStatus represents the lifecycle state of a store
type StoreStatus string

const (
	StoreStatusActive   StoreStatus = "ACTIVE"
	StoreStatusInactive StoreStatus = "INACTIVE"
)

// CommandStatus represents the lifecycle state of a command
type CommandStatus string

const (
	CommandStatusPending CommandStatus = "PENDING"
	CommandStatusAcked   CommandStatus = "ACKED"
	CommandStatusFailed  CommandStatus = "FAILED"
)

// NodeStatusOnline is the raw status a node self-reports on registration
// and on every heartbeat. Effective health is never stored; it is derived
// from lastSeenAt (see pkg/health).
const NodeStatusOnline = "ONLINE"

// ErrorCodeCancelled marks a command failed by operator cancellation
// rather than by an edge-reported error.
const ErrorCodeCancelled = "CANCELLED_BY_CLOUD"

// Command log lifecycle labels. CommandLog.Status is free-form; these are
// the labels the control plane itself writes.
const (
	LogStatusAcked     = "ACKED"
	LogStatusFailed    = "FAILED"
	LogStatusRetried   = "RETRY_QUEUED"
	LogStatusCancelled = "CANCELLED"
)

// DomainRemoteAction is the reserved revision domain used for operational
// commands dispatched through the remote-action pipeline.
const DomainRemoteAction = "REMOTE_ACTION"

// RemoteAction is one of the fixed operational commands an operator can
// dispatch to edge nodes.
type RemoteAction string

const (
	ActionHeartbeatNow   RemoteAction = "HEARTBEAT_NOW"
	ActionSyncPull       RemoteAction = "SYNC_PULL"
	ActionRunDiagnostics RemoteAction = "RUN_DIAGNOSTICS"
	ActionRestartBackend RemoteAction = "RESTART_BACKEND"
	ActionRestartAgent   RemoteAction = "RESTART_AGENT"
	ActionReloadSettings RemoteAction = "RELOAD_SETTINGS"
)

// RemoteActions lists the full dispatchable vocabulary.
var RemoteActions = []RemoteAction{
	ActionHeartbeatNow,
	ActionSyncPull,
	ActionRunDiagnostics,
	ActionRestartBackend,
	ActionRestartAgent,
	ActionReloadSettings,
}

// ValidRemoteAction reports whether a is part of the dispatchable vocabulary.
func ValidRemoteAction(a RemoteAction) bool {
	for _, known := range RemoteActions {
		if a == known {
			return true
		}
	}
	return false
}

// Reseller is the top commercial level under the platform owner.
type Reseller struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tenant is a restaurant brand or franchise owning one or more stores.
type Tenant struct {
	ID         string    `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	ResellerID string    `json:"resellerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is a physical restaurant location. It owns nodes, bootstrap
// tokens, revisions and commands.
type Store struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Timezone    string      `json:"timezone,omitempty"`
	Status      StoreStatus `json:"status"`
	EdgeBaseURL string      `json:"edgeBaseUrl,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// CloudAccount is an operator identity. Exactly one of ResellerID/TenantID
// is set for RESELLER/TENANT_ADMIN accounts; OWNER accounts have neither.
type CloudAccount struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"passwordHash,omitempty"`
	DisplayName  string        `json:"displayName"`
	Type         AccountType   `json:"accountType"`
	Status       AccountStatus `json:"status"`
	ResellerID   string        `json:"resellerId,omitempty"`
	TenantID     string        `json:"tenantId,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Redacted returns a copy safe to serialize past the process boundary:
// the password verifier is cleared and drops out of the JSON.
func (a *CloudAccount) Redacted() *CloudAccount {
	c := *a
	c.PasswordHash = ""
	return &c
}

// BootstrapToken is a single-use credential allowing a node to
// self-register under one store. Only the hash is persisted; used tokens
// are retained with UsedAt set.
type BootstrapToken struct {
	ID           string     `json:"id"`
	StoreID      string     `json:"storeId"`
	Label        string     `json:"label,omitempty"`
	TokenHash    string     `json:"tokenHash,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	UsedAt       *time.Time `json:"usedAt,omitempty"`
	UsedByNodeID string     `json:"usedByNodeId,omitempty"`
	CreatedBy    string     `json:"createdBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Redacted returns a copy with the token hash cleared for API listings.
func (bt *BootstrapToken) Redacted() *BootstrapToken {
	c := *bt
	c.TokenHash = ""
	return &c
}

// Node is a registered edge process inside a store, identified by
// (NodeKey, node token). Status is the raw label from the node's last
// self-report; the health classes shown to operators are derived from
// LastSeenAt at read time.
type Node struct {
	ID              string         `json:"id"`
	StoreID         string         `json:"storeId"`
	Label           string         `json:"label,omitempty"`
	NodeKey         string         `json:"nodeKey"`
	TokenHash       string         `json:"tokenHash,omitempty"`
	Status          string         `json:"status"`
	SoftwareVersion string         `json:"softwareVersion,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	LastSeenAt      time.Time      `json:"lastSeenAt"`
	CreatedAt       time.Time      `json:"createdAt"`
	TokenRotatedAt  *time.Time     `json:"tokenRotatedAt,omitempty"`
	TokenRotatedBy  string         `json:"tokenRotatedBy,omitempty"`
}

// Redacted returns a copy with the token hash cleared for API responses.
func (n *Node) Redacted() *Node {
	c := *n
	c.TokenHash = ""
	return &c
}

// Revision is a numbered, immutable snapshot of desired state for one
// (store, domain). Numbers are dense and strictly increasing per stream.
type Revision struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"storeId"`
	Domain      string          `json:"domain"`
	Number      int64           `json:"number"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedBy string          `json:"publishedBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Command is a durable work item addressed to one node of a store, or to
// any node when NodeID is empty (broadcast).
type Command struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"storeId"`
	NodeID          string          `json:"nodeId,omitempty"`
	RevisionID      string          `json:"revisionId,omitempty"`
	Domain          string          `json:"domain"`
	CommandType     string          `json:"commandType"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Status          CommandStatus   `json:"status"`
	Attempts        int             `json:"attempts"`
	AppliedRevision *int64          `json:"appliedRevision,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorDetail     string          `json:"errorDetail,omitempty"`
	IssuedAt        time.Time       `json:"issuedAt"`
	AcknowledgedAt  *time.Time      `json:"acknowledgedAt,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
}

// CommandLog is one append-only audit record for a command transition.
// NodeID is set when a node acked; CreatedBy when an operator retried or
// cancelled.
type CommandLog struct {
	ID          string          `json:"id"`
	CommandID   string          `json:"commandId"`
	StoreID     string          `json:"storeId"`
	NodeID      string          `json:"nodeId,omitempty"`
	Status      string          `json:"status"`
	ErrorCode   string          `json:"errorCode,omitempty"`
	ErrorDetail string          `json:"errorDetail,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	CreatedBy   string          `json:"createdBy,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
