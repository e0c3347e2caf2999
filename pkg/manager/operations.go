package manager

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/events"
	"github.com/cravepos/brigade/pkg/metrics"
	"github.com/cravepos/brigade/pkg/secrets"
	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

// CreateReseller registers a new reseller. The code is normalized
// upper-case and must be unique.
func (m *Manager) CreateReseller(req *types.CreateResellerRequest) (*types.Reseller, error) {
	code := types.NormalizeCode(req.Code)
	if code == "" || req.Name == "" {
		return nil, fmt.Errorf("code and name are required: %w", storage.ErrInvalid)
	}

	reseller := &types.Reseller{
		ID:        uuid.New().String(),
		Code:      code,
		Name:      req.Name,
		Active:    true,
		CreatedAt: m.Now(),
	}
	res, err := m.apply(opCreateReseller, reseller)
	if err != nil {
		return nil, err
	}
	return res.(*types.Reseller), nil
}

// CreateTenant registers a tenant, optionally under a reseller.
func (m *Manager) CreateTenant(req *types.CreateTenantRequest) (*types.Tenant, error) {
	slug := types.NormalizeSlug(req.Slug)
	if slug == "" || req.Name == "" {
		return nil, fmt.Errorf("slug and name are required: %w", storage.ErrInvalid)
	}

	tenant := &types.Tenant{
		ID:         uuid.New().String(),
		Slug:       slug,
		Name:       req.Name,
		Active:     true,
		ResellerID: req.ResellerID,
		CreatedAt:  m.Now(),
	}
	res, err := m.apply(opCreateTenant, tenant)
	if err != nil {
		return nil, err
	}
	return res.(*types.Tenant), nil
}

// CreateStore registers a store under a tenant.
func (m *Manager) CreateStore(req *types.CreateStoreRequest) (*types.Store, error) {
	code := types.NormalizeCode(req.Code)
	if req.TenantID == "" || code == "" || req.Name == "" {
		return nil, fmt.Errorf("tenantId, code and name are required: %w", storage.ErrInvalid)
	}

	store := &types.Store{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		Code:        code,
		Name:        req.Name,
		Timezone:    req.Timezone,
		Status:      types.StoreStatusActive,
		EdgeBaseURL: req.EdgeBaseURL,
		CreatedAt:   m.Now(),
	}
	res, err := m.apply(opCreateStore, store)
	if err != nil {
		return nil, err
	}
	return res.(*types.Store), nil
}

// CreateAccountArgs is the full account shape. Type and the owning
// reseller/tenant come from the route, never from the request body.
type CreateAccountArgs struct {
	Email       string
	Password    string
	DisplayName string
	Type        types.AccountType
	ResellerID  string
	TenantID    string
}

// CreateAccount creates an operator account. The password is hashed here
// and never enters the raft log in plaintext.
func (m *Manager) CreateAccount(args CreateAccountArgs) (*types.CloudAccount, error) {
	email := types.NormalizeEmail(args.Email)
	if email == "" || args.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", storage.ErrInvalid)
	}

	switch args.Type {
	case types.AccountTypeOwner:
		if args.ResellerID != "" || args.TenantID != "" {
			return nil, fmt.Errorf("owner accounts carry no reseller or tenant: %w", storage.ErrInvalid)
		}
	case types.AccountTypeReseller:
		if args.ResellerID == "" || args.TenantID != "" {
			return nil, fmt.Errorf("reseller accounts require exactly a reseller: %w", storage.ErrInvalid)
		}
	case types.AccountTypeTenantAdmin:
		if args.TenantID == "" || args.ResellerID != "" {
			return nil, fmt.Errorf("tenant admin accounts require exactly a tenant: %w", storage.ErrInvalid)
		}
	default:
		return nil, fmt.Errorf("unknown account type %q: %w", args.Type, storage.ErrInvalid)
	}

	hash, err := auth.HashPassword(args.Password)
	if err != nil {
		return nil, err
	}

	account := &types.CloudAccount{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  args.DisplayName,
		Type:         args.Type,
		Status:       types.AccountStatusActive,
		ResellerID:   args.ResellerID,
		TenantID:     args.TenantID,
		CreatedAt:    m.Now(),
	}
	res, err := m.apply(opCreateAccount, account)
	if err != nil {
		return nil, err
	}
	return res.(*types.CloudAccount), nil
}

// EnsureOwner seeds the first OWNER account on an empty account store.
// A no-op when email or password is empty or any account already exists,
// so it is safe to call on every leader startup.
func (m *Manager) EnsureOwner(email, password, name string) (*types.CloudAccount, error) {
	if email == "" || password == "" {
		return nil, nil
	}
	has, err := m.store.HasAccounts()
	if err != nil {
		return nil, err
	}
	if has {
		return nil, nil
	}

	if name == "" {
		name = "Owner"
	}
	account, err := m.CreateAccount(CreateAccountArgs{
		Email:       email,
		Password:    password,
		DisplayName: name,
		Type:        types.AccountTypeOwner,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info().Str("email", account.Email).Msg("seeded owner account")
	return account, nil
}

// IssueBootstrapToken mints a single-use node registration token for a
// store. The plaintext is returned exactly once; only its hash persists.
func (m *Manager) IssueBootstrapToken(storeID, label string, ttlSeconds int64, createdBy string) (*types.BootstrapToken, string, error) {
	ttl := m.bootstrapTokenTTL
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	if ttl < minBootstrapTokenTTL {
		ttl = minBootstrapTokenTTL
	}
	if ttl > maxBootstrapTokenTTL {
		ttl = maxBootstrapTokenTTL
	}

	plaintext, err := secrets.MintBootstrapToken()
	if err != nil {
		return nil, "", err
	}

	now := m.Now()
	token := &types.BootstrapToken{
		ID:        uuid.New().String(),
		StoreID:   storeID,
		Label:     label,
		TokenHash: secrets.Hash(plaintext),
		ExpiresAt: now.Add(ttl),
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	res, err := m.apply(opCreateBootstrapToken, token)
	if err != nil {
		return nil, "", err
	}
	return res.(*types.BootstrapToken), plaintext, nil
}

// RegisterNode consumes a bootstrap token and creates the node. The node
// key and token are minted before the proposal so the replicated apply is
// deterministic. The plaintext token is returned exactly once.
func (m *Manager) RegisterNode(req *types.RegisterNodeRequest) (*types.Node, string, error) {
	if req.StoreID == "" || req.BootstrapToken == "" {
		return nil, "", fmt.Errorf("storeId and bootstrapToken are required: %w", storage.ErrInvalid)
	}

	nodeToken, err := secrets.MintNodeToken()
	if err != nil {
		return nil, "", err
	}
	nodeKey, err := secrets.MintNodeKey()
	if err != nil {
		return nil, "", err
	}

	now := m.Now()
	node := &types.Node{
		ID:              uuid.New().String(),
		StoreID:         req.StoreID,
		Label:           req.Label,
		NodeKey:         nodeKey,
		TokenHash:       secrets.Hash(nodeToken),
		Status:          types.NodeStatusOnline,
		SoftwareVersion: req.SoftwareVersion,
		Metadata:        req.Metadata,
		LastSeenAt:      now,
		CreatedAt:       now,
	}

	res, err := m.apply(opRegisterNode, &storage.RegisterNodeArgs{
		Node:      node,
		TokenHash: secrets.Hash(req.BootstrapToken),
		At:        now,
	})
	if err != nil {
		return nil, "", err
	}
	registered := res.(*types.Node)

	metrics.NodesRegisteredTotal.Inc()
	m.publish(events.EventNodeRegistered, "node registered", map[string]string{
		"nodeId":  registered.ID,
		"storeId": registered.StoreID,
		"nodeKey": registered.NodeKey,
	})
	return registered, nodeToken, nil
}

// Heartbeat refreshes a node's liveness and self-reported build info.
func (m *Manager) Heartbeat(nodeID string, req *types.HeartbeatRequest) (*types.Node, error) {
	res, err := m.apply(opHeartbeatNode, &storage.HeartbeatArgs{
		NodeID:          nodeID,
		SoftwareVersion: req.SoftwareVersion,
		Metadata:        req.Metadata,
		At:              m.Now(),
	})
	if err != nil {
		return nil, err
	}
	metrics.NodeHeartbeatsTotal.Inc()
	return res.(*types.Node), nil
}

// RotateNodeToken replaces a node's credential. The previous token stops
// working the moment the apply commits. The plaintext is returned exactly
// once.
func (m *Manager) RotateNodeToken(nodeID, rotatedBy string) (*types.Node, string, error) {
	nodeToken, err := secrets.MintNodeToken()
	if err != nil {
		return nil, "", err
	}

	res, err := m.apply(opRotateNodeToken, &storage.RotateNodeTokenArgs{
		NodeID:    nodeID,
		TokenHash: secrets.Hash(nodeToken),
		RotatedBy: rotatedBy,
		At:        m.Now(),
	})
	if err != nil {
		return nil, "", err
	}
	node := res.(*types.Node)

	m.publish(events.EventNodeTokenRotated, "node token rotated", map[string]string{
		"nodeId":  node.ID,
		"storeId": node.StoreID,
	})
	return node, nodeToken, nil
}

// LinkOnsiteParams commits the cloud half of a claim handshake after the
// edge consume call succeeded. Exactly one of StoreID/TenantID is set;
// StoreName, StoreCode and Timezone only matter when a store is created.
type LinkOnsiteParams struct {
	StoreID     string
	TenantID    string
	StoreName   string
	StoreCode   string
	Timezone    string
	EdgeBaseURL string
	ServerUID   string
	ServerLabel string
	NodeLabel   string
	LinkedBy    string
}

// LinkOnsite creates or reuses a store and upserts the onsite node under
// its derived "ONSITE-" key with a fresh token. Returns the committed pair
// and the plaintext node token, minted exactly once per link.
func (m *Manager) LinkOnsite(p LinkOnsiteParams) (*storage.LinkOnsiteResult, string, error) {
	if p.ServerUID == "" {
		return nil, "", fmt.Errorf("serverUid is required: %w", storage.ErrInvalid)
	}
	if p.StoreID == "" && p.TenantID == "" {
		return nil, "", fmt.Errorf("storeId or tenantId is required: %w", storage.ErrInvalid)
	}

	nodeToken, err := secrets.MintNodeToken()
	if err != nil {
		return nil, "", err
	}

	now := m.Now()
	label := p.NodeLabel
	if label == "" {
		label = p.ServerLabel
	}
	node := &types.Node{
		ID:        uuid.New().String(),
		Label:     label,
		NodeKey:   secrets.OnsiteNodeKey(p.ServerUID),
		TokenHash: secrets.Hash(nodeToken),
		Status:    types.NodeStatusOnline,
		Metadata: map[string]any{
			"serverUid":     p.ServerUID,
			"onsiteBaseUrl": p.EdgeBaseURL,
			"linkedBy":      p.LinkedBy,
		},
		LastSeenAt: now,
		CreatedAt:  now,
	}

	args := &storage.LinkOnsiteArgs{
		StoreID:  p.StoreID,
		TenantID: p.TenantID,
		Node:     node,
		At:       now,
	}
	if p.StoreID == "" {
		name := p.StoreName
		if name == "" {
			name = p.ServerLabel
		}
		if name == "" {
			name = p.ServerUID
		}
		code := types.NormalizeCode(p.StoreCode)
		if code == "" {
			// The derived node key doubles as a stable store code, so
			// re-claiming the same server lands in the same store.
			code = node.NodeKey
		}
		args.Store = &types.Store{
			ID:          uuid.New().String(),
			TenantID:    p.TenantID,
			Code:        code,
			Name:        name,
			Timezone:    p.Timezone,
			Status:      types.StoreStatusActive,
			EdgeBaseURL: p.EdgeBaseURL,
			CreatedAt:   now,
		}
	}

	res, err := m.apply(opLinkOnsite, args)
	if err != nil {
		return nil, "", err
	}
	result := res.(*storage.LinkOnsiteResult)

	m.publish(events.EventNodeLinked, "onsite server linked", map[string]string{
		"nodeId":  result.Node.ID,
		"storeId": result.Store.ID,
		"nodeKey": result.Node.NodeKey,
	})
	return result, nodeToken, nil
}

// PublishRevision appends the next revision for (store, domain) and
// enqueues its companion command in the same transaction. The revision
// number is assigned inside the replicated apply, so concurrent publishers
// serialize without a retry loop.
func (m *Manager) PublishRevision(storeID, publishedBy string, req *types.PublishRevisionRequest) (*storage.PublishResult, error) {
	domain, err := types.NormalizeDomain(req.Domain)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, storage.ErrInvalid)
	}
	if domain == types.DomainRemoteAction {
		return nil, fmt.Errorf("domain %s is reserved for remote actions: %w", domain, storage.ErrInvalid)
	}

	commandType := req.CommandType
	if commandType == "" {
		commandType = domain + "_PATCH"
	}

	now := m.Now()
	rev := &types.Revision{
		ID:          uuid.New().String(),
		StoreID:     storeID,
		Domain:      domain,
		Payload:     req.Payload,
		PublishedBy: publishedBy,
		CreatedAt:   now,
	}
	cmd := &types.Command{
		ID:          uuid.New().String(),
		StoreID:     storeID,
		NodeID:      req.NodeID,
		RevisionID:  rev.ID,
		Domain:      domain,
		CommandType: commandType,
		Status:      types.CommandStatusPending,
		IssuedAt:    now,
		CreatedBy:   publishedBy,
	}

	res, err := m.apply(opPublishRevision, &storage.PublishRevisionArgs{Revision: rev, Command: cmd})
	if err != nil {
		return nil, err
	}
	result := res.(*storage.PublishResult)

	metrics.RevisionsPublishedTotal.WithLabelValues(domain).Inc()
	m.publish(events.EventRevisionPublished, fmt.Sprintf("revision %d published", result.Revision.Number), map[string]string{
		"storeId":  storeID,
		"domain":   domain,
		"revision": strconv.FormatInt(result.Revision.Number, 10),
	})
	return result, nil
}

// DispatchAction enqueues a remote action for one node or every node of a
// store. An empty NodeID on the command means any node of the store may
// take it.
func (m *Manager) DispatchAction(req *types.DispatchActionRequest, requestedBy string) (*types.Command, error) {
	if req.StoreID == "" {
		return nil, fmt.Errorf("storeId is required: %w", storage.ErrInvalid)
	}
	if !types.ValidRemoteAction(req.Action) {
		return nil, fmt.Errorf("unknown action %q: %w", req.Action, storage.ErrInvalid)
	}

	nodes, err := m.store.ListNodesByStore(req.StoreID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("store %s has no nodes: %w", req.StoreID, storage.ErrInvalid)
	}

	nodeID := req.NodeID
	switch {
	case nodeID != "":
		found := false
		for _, n := range nodes {
			if n.ID == nodeID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("target node %s does not belong to store %s: %w", nodeID, req.StoreID, storage.ErrInvalid)
		}
	case req.TargetAllNodes:
		// Broadcast: NodeID stays empty.
	case len(nodes) == 1:
		nodeID = nodes[0].ID
	default:
		return nil, fmt.Errorf("store has multiple nodes, specify nodeId or targetAllNodes=true: %w", storage.ErrInvalid)
	}

	now := m.Now()
	payload, err := json.Marshal(types.ActionPayload{
		Action:      req.Action,
		Parameters:  req.Parameters,
		Note:        req.Note,
		IssuedAt:    now,
		RequestedBy: requestedBy,
	})
	if err != nil {
		return nil, err
	}

	cmd := &types.Command{
		ID:          uuid.New().String(),
		StoreID:     req.StoreID,
		NodeID:      nodeID,
		Domain:      types.DomainRemoteAction,
		CommandType: "REMOTE_ACTION_" + string(req.Action),
		Payload:     payload,
		Status:      types.CommandStatusPending,
		IssuedAt:    now,
		CreatedBy:   requestedBy,
	}
	res, err := m.apply(opCreateCommand, cmd)
	if err != nil {
		return nil, err
	}
	committed := res.(*types.Command)

	m.publish(events.EventCommandDispatched, "remote action dispatched", map[string]string{
		"commandId": committed.ID,
		"storeId":   committed.StoreID,
		"action":    string(req.Action),
	})
	return committed, nil
}

// AckCommand records a node's self-reported outcome. Acks are last writer
// wins: the current status never gates one, attempts always increments,
// and a log row is appended.
func (m *Manager) AckCommand(commandID, nodeID string, req *types.AckCommandRequest) (*types.Command, error) {
	if req.Status != types.CommandStatusAcked && req.Status != types.CommandStatusFailed {
		return nil, fmt.Errorf("ack status must be ACKED or FAILED: %w", storage.ErrInvalid)
	}

	res, err := m.apply(opAckCommand, &storage.AckCommandArgs{
		CommandID:       commandID,
		NodeID:          nodeID,
		LogID:           uuid.New().String(),
		Status:          req.Status,
		AppliedRevision: req.AppliedRevision,
		ErrorCode:       req.ErrorCode,
		ErrorDetail:     req.ErrorDetail,
		Output:          req.Output,
		At:              m.Now(),
	})
	if err != nil {
		return nil, err
	}
	cmd := res.(*types.Command)

	metrics.CommandAcksTotal.WithLabelValues(string(req.Status)).Inc()
	event := events.EventCommandAcked
	message := "command acknowledged"
	if req.Status == types.CommandStatusFailed {
		event = events.EventCommandFailed
		message = "command failed"
	}
	m.publish(event, message, map[string]string{
		"commandId": cmd.ID,
		"storeId":   cmd.StoreID,
		"nodeId":    nodeID,
	})
	return cmd, nil
}

// RetryCommand re-queues a terminal command as PENDING.
func (m *Manager) RetryCommand(commandID, requestedBy string) (*types.Command, error) {
	res, err := m.apply(opRetryCommand, &storage.RetryCommandArgs{
		CommandID:   commandID,
		LogID:       uuid.New().String(),
		RequestedBy: requestedBy,
		At:          m.Now(),
	})
	if err != nil {
		return nil, err
	}
	cmd := res.(*types.Command)

	metrics.CommandRetriesTotal.Inc()
	m.publish(events.EventCommandRetried, "command re-queued", map[string]string{
		"commandId": cmd.ID,
		"storeId":   cmd.StoreID,
	})
	return cmd, nil
}

// CancelCommand fails a PENDING command from the cloud side.
func (m *Manager) CancelCommand(commandID, requestedBy string) (*types.Command, error) {
	res, err := m.apply(opCancelCommand, &storage.CancelCommandArgs{
		CommandID:   commandID,
		LogID:       uuid.New().String(),
		RequestedBy: requestedBy,
		At:          m.Now(),
	})
	if err != nil {
		return nil, err
	}
	cmd := res.(*types.Command)

	metrics.CommandCancelsTotal.Inc()
	m.publish(events.EventCommandCancelled, "command cancelled", map[string]string{
		"commandId": cmd.ID,
		"storeId":   cmd.StoreID,
	})
	return cmd, nil
}

// Reads are served from the local store without touching the raft log.
// On a follower they may trail the leader by the replication lag.

func (m *Manager) GetReseller(id string) (*types.Reseller, error) { return m.store.GetReseller(id) }

func (m *Manager) ListResellers() ([]*types.Reseller, error) { return m.store.ListResellers() }

func (m *Manager) GetTenant(id string) (*types.Tenant, error) { return m.store.GetTenant(id) }

func (m *Manager) ListTenants() ([]*types.Tenant, error) { return m.store.ListTenants() }

func (m *Manager) ListTenantsByReseller(resellerID string) ([]*types.Tenant, error) {
	return m.store.ListTenantsByReseller(resellerID)
}

func (m *Manager) GetStore(id string) (*types.Store, error) { return m.store.GetStore(id) }

func (m *Manager) ListStores() ([]*types.Store, error) { return m.store.ListStores() }

func (m *Manager) ListStoresByTenant(tenantID string) ([]*types.Store, error) {
	return m.store.ListStoresByTenant(tenantID)
}

func (m *Manager) GetAccount(id string) (*types.CloudAccount, error) { return m.store.GetAccount(id) }

func (m *Manager) GetAccountByEmail(email string) (*types.CloudAccount, error) {
	return m.store.GetAccountByEmail(email)
}

func (m *Manager) ListAccounts() ([]*types.CloudAccount, error) { return m.store.ListAccounts() }

func (m *Manager) ListBootstrapTokens(storeID string) ([]*types.BootstrapToken, error) {
	return m.store.ListBootstrapTokens(storeID)
}

func (m *Manager) GetNode(id string) (*types.Node, error) { return m.store.GetNode(id) }

func (m *Manager) GetNodeByKey(nodeKey string) (*types.Node, error) {
	return m.store.GetNodeByKey(nodeKey)
}

func (m *Manager) ListNodes() ([]*types.Node, error) { return m.store.ListNodes() }

func (m *Manager) ListNodesByStore(storeID string) ([]*types.Node, error) {
	return m.store.ListNodesByStore(storeID)
}

func (m *Manager) LatestRevision(storeID, domain string) (*types.Revision, error) {
	return m.store.LatestRevision(storeID, domain)
}

func (m *Manager) LatestRevisions(storeID string) (map[string]*types.Revision, error) {
	return m.store.LatestRevisions(storeID)
}

func (m *Manager) GetCommand(id string) (*types.Command, error) { return m.store.GetCommand(id) }

func (m *Manager) ListStoreCommands(storeID string, filter storage.CommandFilter) ([]*types.Command, error) {
	return m.store.ListStoreCommands(storeID, filter)
}

func (m *Manager) ListNodeCommands(node *types.Node, filter storage.CommandFilter) ([]*types.Command, error) {
	return m.store.ListNodeCommands(node, filter)
}

func (m *Manager) ListAllCommands() ([]*types.Command, error) { return m.store.ListAllCommands() }

func (m *Manager) ListCommandLogs(commandID string, limit int) ([]*types.CommandLog, error) {
	return m.store.ListCommandLogs(commandID, limit)
}
