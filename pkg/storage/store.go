package storage

import (
	"encoding/json"
	"time"

	"github.com/cravepos/brigade/pkg/types"
)

// CommandFilter narrows command listings. A zero filter matches every
// status with the default limit.
type CommandFilter struct {
	Statuses []types.CommandStatus
	Domain   string
	NodeID   string
	Limit    int
}

// RegisterNodeArgs consumes a bootstrap token and inserts a node in one
// transaction. TokenHash is the hash of the presented bootstrap token;
// the node carries its own (node) token hash. At is the logical time of
// the mutation, fixed by the caller.
type RegisterNodeArgs struct {
	Node      *types.Node `json:"node"`
	TokenHash string      `json:"tokenHash"`
	At        time.Time   `json:"at"`
}

// HeartbeatArgs records a node self-report.
type HeartbeatArgs struct {
	NodeID          string         `json:"nodeId"`
	SoftwareVersion string         `json:"softwareVersion,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	At              time.Time      `json:"at"`
}

// RotateNodeTokenArgs replaces a node's token hash.
type RotateNodeTokenArgs struct {
	NodeID    string    `json:"nodeId"`
	TokenHash string    `json:"tokenHash"`
	RotatedBy string    `json:"rotatedBy"`
	At        time.Time `json:"at"`
}

// PublishRevisionArgs creates a revision and its companion command in one
// transaction. Revision.Number and Command.Payload are assigned inside the
// transaction once the next number for the (store, domain) stream is known.
type PublishRevisionArgs struct {
	Revision *types.Revision `json:"revision"`
	Command  *types.Command  `json:"command"`
}

// PublishResult is the committed revision/command pair.
type PublishResult struct {
	Revision *types.Revision
	Command  *types.Command
}

// AckCommandArgs applies a node acknowledgement: terminal fields are
// overwritten, attempts is incremented, and a log row is appended. Acks are
// last-writer-wins; the command's current status is never a guard.
type AckCommandArgs struct {
	CommandID       string              `json:"commandId"`
	NodeID          string              `json:"nodeId"`
	LogID           string              `json:"logId"`
	Status          types.CommandStatus `json:"status"`
	AppliedRevision *int64              `json:"appliedRevision,omitempty"`
	ErrorCode       string              `json:"errorCode,omitempty"`
	ErrorDetail     string              `json:"errorDetail,omitempty"`
	Output          json.RawMessage     `json:"output,omitempty"`
	At              time.Time           `json:"at"`
}

// RetryCommandArgs re-queues a terminal command and appends a log row.
type RetryCommandArgs struct {
	CommandID   string    `json:"commandId"`
	LogID       string    `json:"logId"`
	RequestedBy string    `json:"requestedBy"`
	At          time.Time `json:"at"`
}

// CancelCommandArgs fails a PENDING command from the cloud side and
// appends a log row.
type CancelCommandArgs struct {
	CommandID   string    `json:"commandId"`
	LogID       string    `json:"logId"`
	RequestedBy string    `json:"requestedBy"`
	At          time.Time `json:"at"`
}

// LinkOnsiteArgs pairs an on-premise server with a store. Exactly one of
// StoreID (link into an existing store) or Store (candidate store to create
// under TenantID unless one is reused) is set. Node is the candidate node;
// when a node with the same key already exists it is updated in place and
// the candidate's identifiers are discarded.
type LinkOnsiteArgs struct {
	StoreID  string       `json:"storeId,omitempty"`
	TenantID string       `json:"tenantId,omitempty"`
	Store    *types.Store `json:"store,omitempty"`
	Node     *types.Node  `json:"node"`
	At       time.Time    `json:"at"`
}

// LinkOnsiteResult is the committed store/node pair, which may be
// pre-existing entities rather than the candidates passed in.
type LinkOnsiteResult struct {
	Store *types.Store
	Node  *types.Node
}

// Store is the durable state behind the replicated log. Mutations are only
// ever invoked by the state machine applying committed entries; reads are
// served directly.
type Store interface {
	// Hierarchy
	CreateReseller(r *types.Reseller) error
	GetReseller(id string) (*types.Reseller, error)
	ListResellers() ([]*types.Reseller, error)
	CreateTenant(t *types.Tenant) error
	GetTenant(id string) (*types.Tenant, error)
	ListTenants() ([]*types.Tenant, error)
	ListTenantsByReseller(resellerID string) ([]*types.Tenant, error)
	CreateStore(st *types.Store) error
	GetStore(id string) (*types.Store, error)
	ListStores() ([]*types.Store, error)
	ListStoresByTenant(tenantID string) ([]*types.Store, error)

	// Accounts
	CreateAccount(a *types.CloudAccount) error
	GetAccount(id string) (*types.CloudAccount, error)
	GetAccountByEmail(email string) (*types.CloudAccount, error)
	ListAccounts() ([]*types.CloudAccount, error)
	HasAccounts() (bool, error)

	// Bootstrap tokens
	CreateBootstrapToken(bt *types.BootstrapToken) error
	ListBootstrapTokens(storeID string) ([]*types.BootstrapToken, error)
	ListAllBootstrapTokens() ([]*types.BootstrapToken, error)

	// Nodes
	RegisterNode(args *RegisterNodeArgs) (*types.Node, error)
	HeartbeatNode(args *HeartbeatArgs) (*types.Node, error)
	RotateNodeToken(args *RotateNodeTokenArgs) (*types.Node, error)
	LinkOnsite(args *LinkOnsiteArgs) (*LinkOnsiteResult, error)
	GetNode(id string) (*types.Node, error)
	GetNodeByKey(nodeKey string) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	ListNodesByStore(storeID string) ([]*types.Node, error)

	// Revisions
	PublishRevision(args *PublishRevisionArgs) (*PublishResult, error)
	LatestRevision(storeID, domain string) (*types.Revision, error)
	LatestRevisions(storeID string) (map[string]*types.Revision, error)
	ListAllRevisions() ([]*types.Revision, error)

	// Commands
	CreateCommand(cmd *types.Command) error
	AckCommand(args *AckCommandArgs) (*types.Command, error)
	RetryCommand(args *RetryCommandArgs) (*types.Command, error)
	CancelCommand(args *CancelCommandArgs) (*types.Command, error)
	GetCommand(id string) (*types.Command, error)
	ListStoreCommands(storeID string, filter CommandFilter) ([]*types.Command, error)
	ListNodeCommands(node *types.Node, filter CommandFilter) ([]*types.Command, error)
	ListAllCommands() ([]*types.Command, error)
	ListCommandLogs(commandID string, limit int) ([]*types.CommandLog, error)
	ListAllCommandLogs() ([]*types.CommandLog, error)

	// Snapshot support
	PutNode(node *types.Node) error
	PutRevision(rev *types.Revision) error
	PutCommand(cmd *types.Command) error
	PutCommandLog(lg *types.CommandLog) error
	Reset() error

	// Utility
	Close() error
}
