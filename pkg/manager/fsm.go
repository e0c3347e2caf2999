package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

// Raft log operation names. Every cluster mutation is one of these; reads
// never enter the log.
const (
	opCreateReseller       = "create_reseller"
	opCreateTenant         = "create_tenant"
	opCreateStore          = "create_store"
	opCreateAccount        = "create_account"
	opCreateBootstrapToken = "create_bootstrap_token"
	opRegisterNode         = "register_node"
	opHeartbeatNode        = "heartbeat_node"
	opRotateNodeToken      = "rotate_node_token"
	opLinkOnsite           = "link_onsite"
	opPublishRevision      = "publish_revision"
	opCreateCommand        = "create_command"
	opAckCommand           = "ack_command"
	opRetryCommand         = "retry_command"
	opCancelCommand        = "cancel_command"
)

// Command represents a state change operation in the replicated log. Data
// holds the already-resolved arguments: ids, token hashes and timestamps
// are minted by the leader before the entry is proposed, so replicas apply
// byte-identical mutations.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// BrigadeFSM applies committed log entries to the BoltDB store and
// produces snapshots for log compaction.
type BrigadeFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewBrigadeFSM creates a new FSM over the given store.
func NewBrigadeFSM(store storage.Store) *BrigadeFSM {
	return &BrigadeFSM{store: store}
}

// Apply applies a committed Raft log entry. The return value travels back
// to the proposing node through the apply future: an error for failed
// mutations, or the operation's result value.
func (f *BrigadeFSM) Apply(entry *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateReseller:
		var r types.Reseller
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		if err := f.store.CreateReseller(&r); err != nil {
			return err
		}
		return &r

	case opCreateTenant:
		var t types.Tenant
		if err := json.Unmarshal(cmd.Data, &t); err != nil {
			return err
		}
		if err := f.store.CreateTenant(&t); err != nil {
			return err
		}
		return &t

	case opCreateStore:
		var st types.Store
		if err := json.Unmarshal(cmd.Data, &st); err != nil {
			return err
		}
		if err := f.store.CreateStore(&st); err != nil {
			return err
		}
		return &st

	case opCreateAccount:
		var a types.CloudAccount
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		if err := f.store.CreateAccount(&a); err != nil {
			return err
		}
		return &a

	case opCreateBootstrapToken:
		var bt types.BootstrapToken
		if err := json.Unmarshal(cmd.Data, &bt); err != nil {
			return err
		}
		if err := f.store.CreateBootstrapToken(&bt); err != nil {
			return err
		}
		return &bt

	case opRegisterNode:
		var args storage.RegisterNodeArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		node, err := f.store.RegisterNode(&args)
		if err != nil {
			return err
		}
		return node

	case opHeartbeatNode:
		var args storage.HeartbeatArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		node, err := f.store.HeartbeatNode(&args)
		if err != nil {
			return err
		}
		return node

	case opRotateNodeToken:
		var args storage.RotateNodeTokenArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		node, err := f.store.RotateNodeToken(&args)
		if err != nil {
			return err
		}
		return node

	case opLinkOnsite:
		var args storage.LinkOnsiteArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		res, err := f.store.LinkOnsite(&args)
		if err != nil {
			return err
		}
		return res

	case opPublishRevision:
		var args storage.PublishRevisionArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		res, err := f.store.PublishRevision(&args)
		if err != nil {
			return err
		}
		return res

	case opCreateCommand:
		var c types.Command
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		if err := f.store.CreateCommand(&c); err != nil {
			return err
		}
		return &c

	case opAckCommand:
		var args storage.AckCommandArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		c, err := f.store.AckCommand(&args)
		if err != nil {
			return err
		}
		return c

	case opRetryCommand:
		var args storage.RetryCommandArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		c, err := f.store.RetryCommand(&args)
		if err != nil {
			return err
		}
		return c

	case opCancelCommand:
		var args storage.CancelCommandArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		c, err := f.store.CancelCommand(&args)
		if err != nil {
			return err
		}
		return c

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the control-plane state.
// Called periodically by Raft to compact the log.
func (f *BrigadeFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	resellers, err := f.store.ListResellers()
	if err != nil {
		return nil, fmt.Errorf("failed to list resellers: %w", err)
	}

	tenants, err := f.store.ListTenants()
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	stores, err := f.store.ListStores()
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}

	accounts, err := f.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	tokens, err := f.store.ListAllBootstrapTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to list bootstrap tokens: %w", err)
	}

	nodes, err := f.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	revisions, err := f.store.ListAllRevisions()
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}

	commands, err := f.store.ListAllCommands()
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}

	logs, err := f.store.ListAllCommandLogs()
	if err != nil {
		return nil, fmt.Errorf("failed to list command logs: %w", err)
	}

	return &BrigadeSnapshot{
		Resellers:       resellers,
		Tenants:         tenants,
		Stores:          stores,
		Accounts:        accounts,
		BootstrapTokens: tokens,
		Nodes:           nodes,
		Revisions:       revisions,
		Commands:        commands,
		CommandLogs:     logs,
	}, nil
}

// Restore replaces the FSM state from a snapshot. Entities are reinserted
// parents-first so referential checks hold during the rebuild.
func (f *BrigadeFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot BrigadeSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.store.Reset(); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}

	for _, r := range snapshot.Resellers {
		if err := f.store.CreateReseller(r); err != nil {
			return fmt.Errorf("failed to restore reseller: %w", err)
		}
	}

	for _, t := range snapshot.Tenants {
		if err := f.store.CreateTenant(t); err != nil {
			return fmt.Errorf("failed to restore tenant: %w", err)
		}
	}

	for _, st := range snapshot.Stores {
		if err := f.store.CreateStore(st); err != nil {
			return fmt.Errorf("failed to restore store: %w", err)
		}
	}

	for _, a := range snapshot.Accounts {
		if err := f.store.CreateAccount(a); err != nil {
			return fmt.Errorf("failed to restore account: %w", err)
		}
	}

	for _, bt := range snapshot.BootstrapTokens {
		if err := f.store.CreateBootstrapToken(bt); err != nil {
			return fmt.Errorf("failed to restore bootstrap token: %w", err)
		}
	}

	for _, node := range snapshot.Nodes {
		if err := f.store.PutNode(node); err != nil {
			return fmt.Errorf("failed to restore node: %w", err)
		}
	}

	for _, rev := range snapshot.Revisions {
		if err := f.store.PutRevision(rev); err != nil {
			return fmt.Errorf("failed to restore revision: %w", err)
		}
	}

	for _, c := range snapshot.Commands {
		if err := f.store.PutCommand(c); err != nil {
			return fmt.Errorf("failed to restore command: %w", err)
		}
	}

	for _, lg := range snapshot.CommandLogs {
		if err := f.store.PutCommandLog(lg); err != nil {
			return fmt.Errorf("failed to restore command log: %w", err)
		}
	}

	return nil
}

// BrigadeSnapshot is a whole-state snapshot of the control plane.
type BrigadeSnapshot struct {
	Resellers       []*types.Reseller       `json:"resellers"`
	Tenants         []*types.Tenant         `json:"tenants"`
	Stores          []*types.Store          `json:"stores"`
	Accounts        []*types.CloudAccount   `json:"accounts"`
	BootstrapTokens []*types.BootstrapToken `json:"bootstrapTokens"`
	Nodes           []*types.Node           `json:"nodes"`
	Revisions       []*types.Revision       `json:"revisions"`
	Commands        []*types.Command        `json:"commands"`
	CommandLogs     []*types.CommandLog     `json:"commandLogs"`
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *BrigadeSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources.
func (s *BrigadeSnapshot) Release() {}
