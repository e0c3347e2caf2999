package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/events"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/storage"
)

const (
	// applyTimeout bounds a single raft proposal, queueing included.
	applyTimeout = 5 * time.Second

	defaultBootstrapTokenTTL = 7 * 24 * time.Hour
	minBootstrapTokenTTL     = time.Minute
	maxBootstrapTokenTTL     = 30 * 24 * time.Hour
)

// ErrNotLeader is returned when a mutation reaches an instance that is not
// the raft leader. The HTTP layer maps it to 503 so callers retry against
// the leader.
var ErrNotLeader = errors.New("not the raft leader")

// Manager is the control-plane core. It owns the raft node, the replicated
// state machine, and the entity store, and exposes the typed operation
// surface the HTTP layer calls. Mutations flow through the raft log; reads
// are served from the local store.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string
	inmem    bool

	bootstrapTokenTTL time.Duration

	raft   *raft.Raft
	fsm    *BrigadeFSM
	store  *storage.BoltStore
	broker *events.Broker
	logger zerolog.Logger

	// now stamps every mutation the manager mints. Tests pin it.
	now func() time.Time
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// Inmem switches raft to in-memory transport and stores; the entity
	// database still lives under DataDir. Test use only.
	Inmem bool

	// BootstrapTokenTTL is the lifetime of issued bootstrap tokens when
	// the request does not name one. Zero means the 7-day default.
	BootstrapTokenTTL time.Duration
}

// NewManager creates a Manager and opens its entity store. Raft is not
// started until Bootstrap or Join.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	ttl := cfg.BootstrapTokenTTL
	if ttl <= 0 {
		ttl = defaultBootstrapTokenTTL
	}

	broker := events.NewBroker()
	broker.Start()

	return &Manager{
		nodeID:            cfg.NodeID,
		bindAddr:          cfg.BindAddr,
		dataDir:           cfg.DataDir,
		inmem:             cfg.Inmem,
		bootstrapTokenTTL: ttl,
		fsm:               NewBrigadeFSM(store),
		store:             store,
		broker:            broker,
		logger:            log.WithComponent("manager"),
		now:               time.Now,
	}, nil
}

// newRaft builds the raft node around the FSM and returns its transport;
// the transport's local address is what peers dial.
func (m *Manager) newRaft() (raft.Transport, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tuned for LAN/single-region replicas; the library defaults target
	// WAN links. Failover lands in the low seconds.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	var (
		transport raft.Transport
		logStore  raft.LogStore
		stable    raft.StableStore
		snapshots raft.SnapshotStore
	)

	if m.inmem {
		_, loopback := raft.NewInmemTransport("")
		transport = loopback
		logStore = raft.NewInmemStore()
		stable = raft.NewInmemStore()
		snapshots = raft.NewInmemSnapshotStore()
	} else {
		addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve bind address: %w", err)
		}
		tcp, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		transport = tcp

		snapshots, err = raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to create snapshot store: %w", err)
		}
		logStore, err = raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to create log store: %w", err)
		}
		stable, err = raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
		if err != nil {
			return nil, fmt.Errorf("failed to create stable store: %w", err)
		}
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stable, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r
	return transport, nil
}

// Bootstrap starts raft and, on first boot, makes this instance the sole
// voter of a fresh cluster. Restarting over existing raft state is fine:
// the already-bootstrapped error is swallowed and the node rejoins its
// cluster from disk.
func (m *Manager) Bootstrap() error {
	transport, err := m.newRaft()
	if err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.nodeID),
				Address: transport.LocalAddr(),
			},
		},
	}

	if err := m.raft.BootstrapCluster(configuration).Error(); err != nil && !errors.Is(err, raft.ErrCantBootstrap) {
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	m.logger.Info().Str("node", m.nodeID).Str("bind", m.bindAddr).Msg("raft started")
	return nil
}

// Join starts raft without bootstrapping and asks the control plane at
// cloudURL (its ops listener) to add this instance as a voter. State
// arrives by log replay once the leader admits us.
func (m *Manager) Join(cloudURL string) error {
	transport, err := m.newRaft()
	if err != nil {
		return err
	}

	raftAddr := string(transport.LocalAddr())
	if err := client.New(cloudURL).JoinRaft(m.nodeID, raftAddr); err != nil {
		return fmt.Errorf("failed to join cluster via %s: %w", cloudURL, err)
	}

	m.logger.Info().Str("node", m.nodeID).Str("cloud", cloudURL).Msg("joined raft cluster")
	return nil
}

// AddVoter admits a peer into the cluster. Leader only.
func (m *Manager) AddVoter(nodeID, address string) error {
	if !m.IsLeader() {
		return ErrNotLeader
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter %s: %w", nodeID, err)
	}

	m.logger.Info().Str("peer", nodeID).Str("address", address).Msg("raft voter added")
	return nil
}

// IsLeader reports whether this instance currently holds raft leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the raft address of the current leader, or "" when no
// leader is known.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// WaitForLeader blocks until the cluster elects a leader or the timeout
// elapses. Called at startup before seeding, and by tests.
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.LeaderAddr() != "" {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no raft leader after %s", timeout)
}

// GetRaftStats exposes the raw raft counters for the metrics collector.
func (m *Manager) GetRaftStats() map[string]string {
	if m.raft == nil {
		return nil
	}
	return m.raft.Stats()
}

// Now is the manager's clock. Every timestamp a mutation carries comes
// from here.
func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// SetClock replaces the manager's clock. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Events returns the broker carrying control-plane events.
func (m *Manager) Events() *events.Broker {
	return m.broker
}

// Shutdown stops the broker, the raft node, and the store, in that order.
func (m *Manager) Shutdown() error {
	m.broker.Stop()

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
	}
	return m.store.Close()
}

// apply proposes one state-machine command and hands back its result. The
// FSM returns either an error from the store or the committed value; both
// travel through the apply future.
func (m *Manager) apply(op string, payload any) (any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", op, err)
	}
	buf, err := json.Marshal(Command{Op: op, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(buf, applyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
			return nil, ErrNotLeader
		}
		return nil, fmt.Errorf("failed to apply %s: %w", op, err)
	}

	switch resp := future.Response().(type) {
	case error:
		return nil, resp
	default:
		return resp, nil
	}
}

// publish emits a broker event after a successful apply.
func (m *Manager) publish(t events.EventType, msg string, metadata map[string]string) {
	m.broker.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: m.Now(),
		Message:   msg,
		Metadata:  metadata,
	})
}
