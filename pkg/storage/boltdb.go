package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/cravepos/brigade/pkg/types"
)

var (
	// Entity buckets, keyed by entity ID.
	bucketResellers       = []byte("resellers")
	bucketTenants         = []byte("tenants")
	bucketStores          = []byte("stores")
	bucketAccounts        = []byte("accounts")
	bucketBootstrapTokens = []byte("bootstrap_tokens")
	bucketNodes           = []byte("nodes")
	bucketRevisions       = []byte("revisions")
	bucketCommands        = []byte("commands")
	bucketCommandLogs     = []byte("command_logs")

	// Index buckets. Uniqueness is enforced by claiming the index key in
	// the same transaction as the entity write.
	idxResellerCode   = []byte("idx_reseller_code")
	idxTenantSlug     = []byte("idx_tenant_slug")
	idxStoreCode      = []byte("idx_store_code")
	idxAccountEmail   = []byte("idx_account_email")
	idxNodeKey        = []byte("idx_node_key")
	idxRevisionNumber = []byte("idx_revision_number")
)

var allBuckets = [][]byte{
	bucketResellers,
	bucketTenants,
	bucketStores,
	bucketAccounts,
	bucketBootstrapTokens,
	bucketNodes,
	bucketRevisions,
	bucketCommands,
	bucketCommandLogs,
	idxResellerCode,
	idxTenantSlug,
	idxStoreCode,
	idxAccountEmail,
	idxNodeKey,
	idxRevisionNumber,
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the state database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "brigade.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Reset drops and recreates every bucket. Used when restoring a snapshot.
func (s *BoltStore) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if tx.Bucket(bucket) != nil {
				if err := tx.DeleteBucket(bucket); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

func put(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// claimIndex reserves key in idx for id, failing with ErrConflict when the
// key is already held.
func claimIndex(tx *bolt.Tx, idx, key, id []byte, what string) error {
	b := tx.Bucket(idx)
	if existing := b.Get(key); existing != nil {
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	}
	return b.Put(key, id)
}

func requireExists(tx *bolt.Tx, bucket []byte, id, what string) error {
	if tx.Bucket(bucket).Get([]byte(id)) == nil {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

// revisionKey orders revisions of one (store, domain) stream contiguously
// and numerically. Neither IDs nor normalized domains contain NUL.
func revisionKey(storeID, domain string, number uint64) []byte {
	key := make([]byte, 0, len(storeID)+len(domain)+10)
	key = append(key, storeID...)
	key = append(key, 0)
	key = append(key, domain...)
	key = append(key, 0)
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], number)
	return append(key, num[:]...)
}

func revisionPrefix(storeID, domain string) []byte {
	key := make([]byte, 0, len(storeID)+len(domain)+2)
	key = append(key, storeID...)
	key = append(key, 0)
	key = append(key, domain...)
	return append(key, 0)
}

// Reseller operations

func (s *BoltStore) CreateReseller(r *types.Reseller) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := claimIndex(tx, idxResellerCode, []byte(r.Code), []byte(r.ID), "reseller code "+r.Code); err != nil {
			return err
		}
		return put(tx.Bucket(bucketResellers), []byte(r.ID), r)
	})
}

func (s *BoltStore) GetReseller(id string) (*types.Reseller, error) {
	var r types.Reseller
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketResellers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("reseller %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *BoltStore) ListResellers() ([]*types.Reseller, error) {
	var resellers []*types.Reseller
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResellers).ForEach(func(k, v []byte) error {
			var r types.Reseller
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			resellers = append(resellers, &r)
			return nil
		})
	})
	return resellers, err
}

// Tenant operations

func (s *BoltStore) CreateTenant(t *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if t.ResellerID != "" {
			if err := requireExists(tx, bucketResellers, t.ResellerID, "reseller"); err != nil {
				return err
			}
		}
		if err := claimIndex(tx, idxTenantSlug, []byte(t.Slug), []byte(t.ID), "tenant slug "+t.Slug); err != nil {
			return err
		}
		return put(tx.Bucket(bucketTenants), []byte(t.ID), t)
	})
}

func (s *BoltStore) GetTenant(id string) (*types.Tenant, error) {
	var t types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTenants).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("tenant %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) ListTenants() ([]*types.Tenant, error) {
	var tenants []*types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTenants).ForEach(func(k, v []byte) error {
			var t types.Tenant
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			tenants = append(tenants, &t)
			return nil
		})
	})
	return tenants, err
}

func (s *BoltStore) ListTenantsByReseller(resellerID string) ([]*types.Tenant, error) {
	tenants, err := s.ListTenants()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Tenant
	for _, t := range tenants {
		if t.ResellerID == resellerID {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// Store operations

func (s *BoltStore) CreateStore(st *types.Store) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := requireExists(tx, bucketTenants, st.TenantID, "tenant"); err != nil {
			return err
		}
		if err := claimIndex(tx, idxStoreCode, []byte(st.Code), []byte(st.ID), "store code "+st.Code); err != nil {
			return err
		}
		return put(tx.Bucket(bucketStores), []byte(st.ID), st)
	})
}

func (s *BoltStore) GetStore(id string) (*types.Store, error) {
	var st types.Store
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStores).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("store %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BoltStore) ListStores() ([]*types.Store, error) {
	var stores []*types.Store
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStores).ForEach(func(k, v []byte) error {
			var st types.Store
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
			stores = append(stores, &st)
			return nil
		})
	})
	return stores, err
}

func (s *BoltStore) ListStoresByTenant(tenantID string) ([]*types.Store, error) {
	stores, err := s.ListStores()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Store
	for _, st := range stores {
		if st.TenantID == tenantID {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// Account operations

func (s *BoltStore) CreateAccount(a *types.CloudAccount) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if a.ResellerID != "" {
			if err := requireExists(tx, bucketResellers, a.ResellerID, "reseller"); err != nil {
				return err
			}
		}
		if a.TenantID != "" {
			if err := requireExists(tx, bucketTenants, a.TenantID, "tenant"); err != nil {
				return err
			}
		}
		if err := claimIndex(tx, idxAccountEmail, []byte(a.Email), []byte(a.ID), "account email "+a.Email); err != nil {
			return err
		}
		return put(tx.Bucket(bucketAccounts), []byte(a.ID), a)
	})
}

func (s *BoltStore) GetAccount(id string) (*types.CloudAccount, error) {
	var a types.CloudAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccountByEmail looks an account up by its normalized email.
func (s *BoltStore) GetAccountByEmail(email string) (*types.CloudAccount, error) {
	var a types.CloudAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(idxAccountEmail).Get([]byte(email))
		if id == nil {
			return fmt.Errorf("account %s: %w", email, ErrNotFound)
		}
		data := tx.Bucket(bucketAccounts).Get(id)
		if data == nil {
			return fmt.Errorf("account %s: %w", email, ErrNotFound)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ListAccounts() ([]*types.CloudAccount, error) {
	var accounts []*types.CloudAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			var a types.CloudAccount
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			accounts = append(accounts, &a)
			return nil
		})
	})
	return accounts, err
}

// HasAccounts reports whether any operator account exists. Used to decide
// whether the seed owner must be created.
func (s *BoltStore) HasAccounts() (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketAccounts).Cursor().First()
		found = k != nil
		return nil
	})
	return found, err
}

// Bootstrap token operations

func (s *BoltStore) CreateBootstrapToken(bt *types.BootstrapToken) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := requireExists(tx, bucketStores, bt.StoreID, "store"); err != nil {
			return err
		}
		return put(tx.Bucket(bucketBootstrapTokens), []byte(bt.ID), bt)
	})
}

func (s *BoltStore) ListBootstrapTokens(storeID string) ([]*types.BootstrapToken, error) {
	tokens, err := s.ListAllBootstrapTokens()
	if err != nil {
		return nil, err
	}

	var filtered []*types.BootstrapToken
	for _, bt := range tokens {
		if bt.StoreID == storeID {
			filtered = append(filtered, bt)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	return filtered, nil
}

func (s *BoltStore) ListAllBootstrapTokens() ([]*types.BootstrapToken, error) {
	var tokens []*types.BootstrapToken
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBootstrapTokens).ForEach(func(k, v []byte) error {
			var bt types.BootstrapToken
			if err := json.Unmarshal(v, &bt); err != nil {
				return err
			}
			tokens = append(tokens, &bt)
			return nil
		})
	})
	return tokens, err
}

// Node operations

// RegisterNode consumes the most recently issued usable bootstrap token
// matching (store, hash) and inserts the node, all in one transaction. A
// token that is unknown, used, or expired fails with ErrBootstrapToken.
func (s *BoltStore) RegisterNode(args *RegisterNodeArgs) (*types.Node, error) {
	node := args.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := requireExists(tx, bucketStores, node.StoreID, "store"); err != nil {
			return err
		}

		tokens := tx.Bucket(bucketBootstrapTokens)
		var match *types.BootstrapToken
		err := tokens.ForEach(func(k, v []byte) error {
			var bt types.BootstrapToken
			if err := json.Unmarshal(v, &bt); err != nil {
				return err
			}
			if bt.StoreID != node.StoreID || bt.TokenHash != args.TokenHash {
				return nil
			}
			if bt.UsedAt != nil || !bt.ExpiresAt.After(args.At) {
				return nil
			}
			if match == nil || bt.CreatedAt.After(match.CreatedAt) {
				match = &bt
			}
			return nil
		})
		if err != nil {
			return err
		}
		if match == nil {
			return ErrBootstrapToken
		}

		usedAt := args.At
		match.UsedAt = &usedAt
		match.UsedByNodeID = node.ID
		if err := put(tokens, []byte(match.ID), match); err != nil {
			return err
		}

		if err := claimIndex(tx, idxNodeKey, []byte(node.NodeKey), []byte(node.ID), "node key "+node.NodeKey); err != nil {
			return err
		}
		return put(tx.Bucket(bucketNodes), []byte(node.ID), node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (s *BoltStore) HeartbeatNode(args *HeartbeatArgs) (*types.Node, error) {
	var node types.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(args.NodeID))
		if data == nil {
			return fmt.Errorf("node %s: %w", args.NodeID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}

		node.LastSeenAt = args.At
		node.Status = types.NodeStatusOnline
		if args.SoftwareVersion != "" {
			node.SoftwareVersion = args.SoftwareVersion
		}
		if args.Metadata != nil {
			node.Metadata = args.Metadata
		}
		return put(b, []byte(node.ID), &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) RotateNodeToken(args *RotateNodeTokenArgs) (*types.Node, error) {
	var node types.Node
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(args.NodeID))
		if data == nil {
			return fmt.Errorf("node %s: %w", args.NodeID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &node); err != nil {
			return err
		}

		rotatedAt := args.At
		node.TokenHash = args.TokenHash
		node.TokenRotatedAt = &rotatedAt
		node.TokenRotatedBy = args.RotatedBy
		return put(b, []byte(node.ID), &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// LinkOnsite pairs an on-premise server with a store: the target store is
// resolved (existing, reused by node linkage, reused by code, or created)
// and the node is upserted by its key. A node key already linked to a
// different store fails with ErrConflict.
func (s *BoltStore) LinkOnsite(args *LinkOnsiteArgs) (*LinkOnsiteResult, error) {
	res := &LinkOnsiteResult{}
	err := s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		stores := tx.Bucket(bucketStores)

		var existing *types.Node
		if id := tx.Bucket(idxNodeKey).Get([]byte(args.Node.NodeKey)); id != nil {
			data := nodes.Get(id)
			if data == nil {
				return fmt.Errorf("node %s: %w", id, ErrNotFound)
			}
			existing = &types.Node{}
			if err := json.Unmarshal(data, existing); err != nil {
				return err
			}
		}

		var target *types.Store
		switch {
		case args.StoreID != "":
			data := stores.Get([]byte(args.StoreID))
			if data == nil {
				return fmt.Errorf("store %s: %w", args.StoreID, ErrNotFound)
			}
			target = &types.Store{}
			if err := json.Unmarshal(data, target); err != nil {
				return err
			}
			if existing != nil && existing.StoreID != target.ID {
				return fmt.Errorf("onsite server %s is already linked to store %s: %w", existing.NodeKey, existing.StoreID, ErrConflict)
			}

		case existing != nil:
			// Tenant mode with a known server: reuse its store, provided
			// that store sits under the requested tenant.
			data := stores.Get([]byte(existing.StoreID))
			if data == nil {
				return fmt.Errorf("store %s: %w", existing.StoreID, ErrNotFound)
			}
			target = &types.Store{}
			if err := json.Unmarshal(data, target); err != nil {
				return err
			}
			if target.TenantID != args.TenantID {
				return fmt.Errorf("onsite server %s is already linked to store %s: %w", existing.NodeKey, target.ID, ErrConflict)
			}

		default:
			// Tenant mode with a fresh server: reuse a same-code store
			// under the tenant, or create the candidate.
			if id := tx.Bucket(idxStoreCode).Get([]byte(args.Store.Code)); id != nil {
				data := stores.Get(id)
				if data == nil {
					return fmt.Errorf("store %s: %w", id, ErrNotFound)
				}
				target = &types.Store{}
				if err := json.Unmarshal(data, target); err != nil {
					return err
				}
				if target.TenantID != args.TenantID {
					return fmt.Errorf("store code %s already exists: %w", args.Store.Code, ErrConflict)
				}
			} else {
				if err := requireExists(tx, bucketTenants, args.TenantID, "tenant"); err != nil {
					return err
				}
				if err := claimIndex(tx, idxStoreCode, []byte(args.Store.Code), []byte(args.Store.ID), "store code "+args.Store.Code); err != nil {
					return err
				}
				if err := put(stores, []byte(args.Store.ID), args.Store); err != nil {
					return err
				}
				target = args.Store
			}
		}

		if existing != nil {
			existing.TokenHash = args.Node.TokenHash
			existing.Status = types.NodeStatusOnline
			existing.LastSeenAt = args.At
			if args.Node.Label != "" {
				existing.Label = args.Node.Label
			}
			if args.Node.SoftwareVersion != "" {
				existing.SoftwareVersion = args.Node.SoftwareVersion
			}
			if existing.Metadata == nil {
				existing.Metadata = map[string]any{}
			}
			for k, v := range args.Node.Metadata {
				existing.Metadata[k] = v
			}
			if err := put(nodes, []byte(existing.ID), existing); err != nil {
				return err
			}
			res.Node = existing
		} else {
			node := args.Node
			node.StoreID = target.ID
			if err := claimIndex(tx, idxNodeKey, []byte(node.NodeKey), []byte(node.ID), "node key "+node.NodeKey); err != nil {
				return err
			}
			if err := put(nodes, []byte(node.ID), node); err != nil {
				return err
			}
			res.Node = node
		}

		res.Store = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) GetNodeByKey(nodeKey string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(idxNodeKey).Get([]byte(nodeKey))
		if id == nil {
			return fmt.Errorf("node key %s: %w", nodeKey, ErrNotFound)
		}
		data := tx.Bucket(bucketNodes).Get(id)
		if data == nil {
			return fmt.Errorf("node key %s: %w", nodeKey, ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// PutNode writes a node and its key index as-is. Snapshot restore only.
func (s *BoltStore) PutNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(idxNodeKey).Put([]byte(node.NodeKey), []byte(node.ID)); err != nil {
			return err
		}
		return put(tx.Bucket(bucketNodes), []byte(node.ID), node)
	})
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) ListNodesByStore(storeID string) ([]*types.Node, error) {
	nodes, err := s.ListNodes()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Node
	for _, node := range nodes {
		if node.StoreID == storeID {
			filtered = append(filtered, node)
		}
	}
	return filtered, nil
}

// Revision operations

func nextRevisionNumber(tx *bolt.Tx, storeID, domain string) int64 {
	prefix := revisionPrefix(storeID, domain)
	cur := tx.Bucket(idxRevisionNumber).Cursor()

	var last []byte
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		last = k
	}
	if last == nil {
		return 1
	}
	return int64(binary.BigEndian.Uint64(last[len(last)-8:])) + 1
}

// PublishRevision assigns the next number in the (store, domain) stream,
// writes the revision, and writes its companion PENDING command, all in one
// transaction. The command payload embeds the assigned number so nodes can
// report appliedRevision without a second read.
func (s *BoltStore) PublishRevision(args *PublishRevisionArgs) (*PublishResult, error) {
	rev, cmd := args.Revision, args.Command
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := requireExists(tx, bucketStores, rev.StoreID, "store"); err != nil {
			return err
		}
		if cmd.NodeID != "" {
			data := tx.Bucket(bucketNodes).Get([]byte(cmd.NodeID))
			if data == nil {
				return fmt.Errorf("target node %s does not belong to store %s: %w", cmd.NodeID, rev.StoreID, ErrInvalid)
			}
			var node types.Node
			if err := json.Unmarshal(data, &node); err != nil {
				return err
			}
			if node.StoreID != rev.StoreID {
				return fmt.Errorf("target node %s does not belong to store %s: %w", cmd.NodeID, rev.StoreID, ErrInvalid)
			}
		}

		rev.Number = nextRevisionNumber(tx, rev.StoreID, rev.Domain)
		key := revisionKey(rev.StoreID, rev.Domain, uint64(rev.Number))
		idx := tx.Bucket(idxRevisionNumber)
		if idx.Get(key) != nil {
			return fmt.Errorf("revision %d already exists for store %s domain %s: %w", rev.Number, rev.StoreID, rev.Domain, ErrConflict)
		}
		if err := idx.Put(key, []byte(rev.ID)); err != nil {
			return err
		}
		if err := put(tx.Bucket(bucketRevisions), []byte(rev.ID), rev); err != nil {
			return err
		}

		payload, err := json.Marshal(types.RevisionCommandPayload{
			Domain:   rev.Domain,
			Revision: rev.Number,
			Payload:  rev.Payload,
		})
		if err != nil {
			return err
		}
		cmd.Payload = payload
		return put(tx.Bucket(bucketCommands), []byte(cmd.ID), cmd)
	})
	if err != nil {
		return nil, err
	}
	return &PublishResult{Revision: rev, Command: cmd}, nil
}

func (s *BoltStore) LatestRevision(storeID, domain string) (*types.Revision, error) {
	var rev types.Revision
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := revisionPrefix(storeID, domain)
		cur := tx.Bucket(idxRevisionNumber).Cursor()

		var lastID []byte
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			lastID = v
		}
		if lastID == nil {
			return fmt.Errorf("no revisions for store %s domain %s: %w", storeID, domain, ErrNotFound)
		}

		data := tx.Bucket(bucketRevisions).Get(lastID)
		if data == nil {
			return fmt.Errorf("revision %s: %w", lastID, ErrNotFound)
		}
		return json.Unmarshal(data, &rev)
	})
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// LatestRevisions returns the newest revision of every domain that has at
// least one revision in the store. Stores without revisions return an
// empty map.
func (s *BoltStore) LatestRevisions(storeID string) (map[string]*types.Revision, error) {
	latest := make(map[string]*types.Revision)
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := append([]byte(storeID), 0)
		cur := tx.Bucket(idxRevisionNumber).Cursor()

		// Keys sort by (domain, number), so the last entry seen per domain
		// is its maximum.
		ids := make(map[string][]byte)
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			domain := string(k[len(prefix) : len(k)-9])
			ids[domain] = v
		}

		revs := tx.Bucket(bucketRevisions)
		for domain, id := range ids {
			data := revs.Get(id)
			if data == nil {
				return fmt.Errorf("revision %s: %w", id, ErrNotFound)
			}
			var rev types.Revision
			if err := json.Unmarshal(data, &rev); err != nil {
				return err
			}
			latest[domain] = &rev
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

func (s *BoltStore) ListAllRevisions() ([]*types.Revision, error) {
	var revs []*types.Revision
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRevisions).ForEach(func(k, v []byte) error {
			var rev types.Revision
			if err := json.Unmarshal(v, &rev); err != nil {
				return err
			}
			revs = append(revs, &rev)
			return nil
		})
	})
	return revs, err
}

// PutRevision writes a revision and its number index without assigning a
// number. Snapshot restore only.
func (s *BoltStore) PutRevision(rev *types.Revision) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := revisionKey(rev.StoreID, rev.Domain, uint64(rev.Number))
		if err := tx.Bucket(idxRevisionNumber).Put(key, []byte(rev.ID)); err != nil {
			return err
		}
		return put(tx.Bucket(bucketRevisions), []byte(rev.ID), rev)
	})
}

// Command operations

// CreateCommand writes a dispatch command. Companion commands of revisions
// are written by PublishRevision instead.
func (s *BoltStore) CreateCommand(cmd *types.Command) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := requireExists(tx, bucketStores, cmd.StoreID, "store"); err != nil {
			return err
		}
		if cmd.NodeID != "" {
			data := tx.Bucket(bucketNodes).Get([]byte(cmd.NodeID))
			if data == nil {
				return fmt.Errorf("target node %s does not belong to store %s: %w", cmd.NodeID, cmd.StoreID, ErrInvalid)
			}
			var node types.Node
			if err := json.Unmarshal(data, &node); err != nil {
				return err
			}
			if node.StoreID != cmd.StoreID {
				return fmt.Errorf("target node %s does not belong to store %s: %w", cmd.NodeID, cmd.StoreID, ErrInvalid)
			}
		}
		return put(tx.Bucket(bucketCommands), []byte(cmd.ID), cmd)
	})
}

// appendCommandLog writes a log row keyed so rows of one command are
// contiguous and ordered by insertion.
func appendCommandLog(tx *bolt.Tx, lg *types.CommandLog) error {
	b := tx.Bucket(bucketCommandLogs)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}

	key := make([]byte, 0, len(lg.CommandID)+9)
	key = append(key, lg.CommandID...)
	key = append(key, 0)
	var num [8]byte
	binary.BigEndian.PutUint64(num[:], seq)
	key = append(key, num[:]...)

	return put(b, key, lg)
}

// AckCommand overwrites the command's terminal fields with the ack's,
// increments attempts, and appends a log row. The current status is not a
// guard: a late ack on a cancelled command is recorded and wins.
func (s *BoltStore) AckCommand(args *AckCommandArgs) (*types.Command, error) {
	var cmd types.Command
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data := b.Get([]byte(args.CommandID))
		if data == nil {
			return fmt.Errorf("command %s: %w", args.CommandID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			return err
		}

		if args.Status != types.CommandStatusAcked && args.Status != types.CommandStatusFailed {
			return fmt.Errorf("ack status must be ACKED or FAILED: %w", ErrInvalid)
		}

		ackedAt := args.At
		cmd.Status = args.Status
		cmd.AppliedRevision = args.AppliedRevision
		cmd.ErrorCode = args.ErrorCode
		cmd.ErrorDetail = args.ErrorDetail
		cmd.Attempts++
		cmd.AcknowledgedAt = &ackedAt
		if err := put(b, []byte(cmd.ID), &cmd); err != nil {
			return err
		}

		return appendCommandLog(tx, &types.CommandLog{
			ID:          args.LogID,
			CommandID:   cmd.ID,
			StoreID:     cmd.StoreID,
			NodeID:      args.NodeID,
			Status:      string(args.Status),
			ErrorCode:   args.ErrorCode,
			ErrorDetail: args.ErrorDetail,
			Output:      args.Output,
			CreatedAt:   args.At,
		})
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// RetryCommand re-queues an ACKED or FAILED command and appends a log row.
// The attempt counter is preserved so audits can see the full history.
func (s *BoltStore) RetryCommand(args *RetryCommandArgs) (*types.Command, error) {
	var cmd types.Command
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data := b.Get([]byte(args.CommandID))
		if data == nil {
			return fmt.Errorf("command %s: %w", args.CommandID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			return err
		}

		if cmd.Status != types.CommandStatusAcked && cmd.Status != types.CommandStatusFailed {
			return fmt.Errorf("command %s is not in a retryable state: %w", cmd.ID, ErrInvalid)
		}

		cmd.Status = types.CommandStatusPending
		cmd.AppliedRevision = nil
		cmd.ErrorCode = ""
		cmd.ErrorDetail = ""
		cmd.AcknowledgedAt = nil
		if err := put(b, []byte(cmd.ID), &cmd); err != nil {
			return err
		}

		return appendCommandLog(tx, &types.CommandLog{
			ID:        args.LogID,
			CommandID: cmd.ID,
			StoreID:   cmd.StoreID,
			Status:    types.LogStatusRetried,
			CreatedBy: args.RequestedBy,
			CreatedAt: args.At,
		})
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// CancelCommand fails a PENDING command from the cloud side and appends a
// log row. Commands in any other state cannot be cancelled.
func (s *BoltStore) CancelCommand(args *CancelCommandArgs) (*types.Command, error) {
	var cmd types.Command
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCommands)
		data := b.Get([]byte(args.CommandID))
		if data == nil {
			return fmt.Errorf("command %s: %w", args.CommandID, ErrNotFound)
		}
		if err := json.Unmarshal(data, &cmd); err != nil {
			return err
		}

		if cmd.Status != types.CommandStatusPending {
			return fmt.Errorf("command %s is not pending: %w", cmd.ID, ErrInvalid)
		}

		cancelledAt := args.At
		cmd.Status = types.CommandStatusFailed
		cmd.ErrorCode = types.ErrorCodeCancelled
		cmd.AcknowledgedAt = &cancelledAt
		if err := put(b, []byte(cmd.ID), &cmd); err != nil {
			return err
		}

		return appendCommandLog(tx, &types.CommandLog{
			ID:        args.LogID,
			CommandID: cmd.ID,
			StoreID:   cmd.StoreID,
			Status:    types.LogStatusCancelled,
			ErrorCode: types.ErrorCodeCancelled,
			CreatedBy: args.RequestedBy,
			CreatedAt: args.At,
		})
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func (s *BoltStore) GetCommand(id string) (*types.Command, error) {
	var cmd types.Command
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommands).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("command %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &cmd)
	})
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

func matchStatus(cmd *types.Command, statuses []types.CommandStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if cmd.Status == st {
			return true
		}
	}
	return false
}

// ListStoreCommands returns a store's commands newest-first by issuedAt.
func (s *BoltStore) ListStoreCommands(storeID string, filter CommandFilter) ([]*types.Command, error) {
	all, err := s.ListAllCommands()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Command
	for _, cmd := range all {
		if cmd.StoreID != storeID {
			continue
		}
		if !matchStatus(cmd, filter.Statuses) {
			continue
		}
		if filter.Domain != "" && cmd.Domain != filter.Domain {
			continue
		}
		if filter.NodeID != "" && cmd.NodeID != filter.NodeID {
			continue
		}
		filtered = append(filtered, cmd)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].IssuedAt.Equal(filtered[j].IssuedAt) {
			return filtered[i].IssuedAt.After(filtered[j].IssuedAt)
		}
		return filtered[i].ID > filtered[j].ID
	})
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

// ListNodeCommands returns the commands a node should work on, oldest-first
// by issuedAt. Broadcast commands (empty nodeId) of the node's store are
// included alongside commands targeted at it.
func (s *BoltStore) ListNodeCommands(node *types.Node, filter CommandFilter) ([]*types.Command, error) {
	all, err := s.ListAllCommands()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Command
	for _, cmd := range all {
		if cmd.StoreID != node.StoreID {
			continue
		}
		if cmd.NodeID != "" && cmd.NodeID != node.ID {
			continue
		}
		if !matchStatus(cmd, filter.Statuses) {
			continue
		}
		if filter.Domain != "" && cmd.Domain != filter.Domain {
			continue
		}
		filtered = append(filtered, cmd)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].IssuedAt.Equal(filtered[j].IssuedAt) {
			return filtered[i].IssuedAt.Before(filtered[j].IssuedAt)
		}
		return filtered[i].ID < filtered[j].ID
	})
	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

func (s *BoltStore) ListAllCommands() ([]*types.Command, error) {
	var cmds []*types.Command
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommands).ForEach(func(k, v []byte) error {
			var cmd types.Command
			if err := json.Unmarshal(v, &cmd); err != nil {
				return err
			}
			cmds = append(cmds, &cmd)
			return nil
		})
	})
	return cmds, err
}

// PutCommand writes a command as-is. Snapshot restore only.
func (s *BoltStore) PutCommand(cmd *types.Command) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketCommands), []byte(cmd.ID), cmd)
	})
}

// ListCommandLogs returns a command's log rows newest-first.
func (s *BoltStore) ListCommandLogs(commandID string, limit int) ([]*types.CommandLog, error) {
	var logs []*types.CommandLog
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := append([]byte(commandID), 0)
		cur := tx.Bucket(bucketCommandLogs).Cursor()
		for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
			var lg types.CommandLog
			if err := json.Unmarshal(v, &lg); err != nil {
				return err
			}
			logs = append(logs, &lg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Keys are insertion-ordered; flip to newest-first.
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// ListAllCommandLogs returns every log row grouped by command, each group
// in insertion order. Snapshot support only.
func (s *BoltStore) ListAllCommandLogs() ([]*types.CommandLog, error) {
	var logs []*types.CommandLog
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommandLogs).ForEach(func(k, v []byte) error {
			var lg types.CommandLog
			if err := json.Unmarshal(v, &lg); err != nil {
				return err
			}
			logs = append(logs, &lg)
			return nil
		})
	})
	return logs, err
}

// PutCommandLog appends a log row. Snapshot restore only; rows must be
// replayed in their original order.
func (s *BoltStore) PutCommandLog(lg *types.CommandLog) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return appendCommandLog(tx, lg)
	})
}
