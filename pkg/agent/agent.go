package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/types"
)

const (
	defaultHeartbeatInterval = 60 * time.Second
	defaultPollInterval      = 15 * time.Second

	// requestTimeout bounds each call the loops make; the loops themselves
	// run until Stop.
	requestTimeout = 10 * time.Second
)

// Ack is what a Handler reports for one command.
type Ack struct {
	Status          types.CommandStatus
	AppliedRevision *int64
	ErrorCode       string
	ErrorDetail     string
	Output          json.RawMessage
}

// Handler applies one command on the edge and reports the outcome. A nil
// error with a zero Status acks the command; a non-nil error fails it with
// the error text as detail. Handlers should be idempotent: a command whose
// ack fails to reach the cloud is pulled and handled again on a later poll.
type Handler func(cmd *types.Command) (Ack, error)

// Config holds agent configuration.
type Config struct {
	// CloudURL is the base URL of the control plane.
	CloudURL string

	// StoreID and BootstrapToken register a fresh node. Ignored when
	// StateFile already holds credentials.
	StoreID        string
	BootstrapToken string

	// Label and SoftwareVersion describe this node to the cloud.
	Label           string
	SoftwareVersion string

	// StateFile persists node credentials across restarts so the one-shot
	// bootstrap token is only needed once. Empty keeps credentials in
	// memory only.
	StateFile string

	// HeartbeatInterval defaults to 60s, PollInterval to 15s.
	HeartbeatInterval time.Duration
	PollInterval      time.Duration

	// Handler processes pulled commands. Nil installs the default handler,
	// which heartbeats on HEARTBEAT_NOW and acks revision commands with
	// their revision number echoed back.
	Handler Handler
}

// credentials is the state file payload. The node token is secret; the
// file is written 0600.
type credentials struct {
	NodeID    string `json:"nodeId"`
	NodeKey   string `json:"nodeKey,omitempty"`
	NodeToken string `json:"nodeToken"`
	StoreID   string `json:"storeId,omitempty"`
}

// Agent is a reference edge node: it registers against a store with a
// bootstrap token, heartbeats, polls for commands, and acknowledges them.
// It exercises the full node half of the cloud API and doubles as the
// in-process node for end-to-end tests.
type Agent struct {
	cfg     Config
	client  *client.Client
	handler Handler
	logger  zerolog.Logger

	creds credentials

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an agent. Start registers and begins the loops.
func New(cfg Config) (*Agent, error) {
	if cfg.CloudURL == "" {
		return nil, fmt.Errorf("cloud URL is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	a := &Agent{
		cfg:    cfg,
		client: client.New(cfg.CloudURL),
		logger: log.WithComponent("agent"),
		stopCh: make(chan struct{}),
	}
	a.handler = cfg.Handler
	if a.handler == nil {
		a.handler = a.defaultHandle
	}
	return a, nil
}

// Client returns the agent's API client, pinned with the node credentials
// once Start has registered.
func (a *Agent) Client() *client.Client {
	return a.client
}

// NodeID returns the registered node id; empty before Start.
func (a *Agent) NodeID() string {
	return a.creds.NodeID
}

// Start ensures the agent has node credentials, then begins the heartbeat
// and poll loops. It returns once registration has succeeded.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.ensureRegistered(ctx); err != nil {
		return err
	}

	a.wg.Add(2)
	go a.heartbeatLoop()
	go a.pollLoop()
	return nil
}

// Stop stops the loops and waits for them to finish.
func (a *Agent) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

// ensureRegistered loads saved credentials or redeems the bootstrap token.
func (a *Agent) ensureRegistered(ctx context.Context) error {
	if a.cfg.StateFile != "" {
		if loaded, err := loadCredentials(a.cfg.StateFile); err != nil {
			return err
		} else if loaded != nil {
			a.creds = *loaded
			a.client.SetNodeCredentials(a.creds.NodeID, a.creds.NodeToken)
			a.logger.Info().Str("node_id", a.creds.NodeID).Msg("using saved node credentials")
			return nil
		}
	}

	if a.cfg.StoreID == "" || a.cfg.BootstrapToken == "" {
		return fmt.Errorf("no saved credentials: store id and bootstrap token are required")
	}

	resp, err := a.client.RegisterNode(ctx, &types.RegisterNodeRequest{
		StoreID:         a.cfg.StoreID,
		BootstrapToken:  a.cfg.BootstrapToken,
		Label:           a.cfg.Label,
		SoftwareVersion: a.cfg.SoftwareVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	a.creds = credentials{
		NodeID:    resp.NodeID,
		NodeKey:   resp.NodeKey,
		NodeToken: resp.NodeToken,
		StoreID:   resp.StoreID,
	}
	a.client.SetNodeCredentials(a.creds.NodeID, a.creds.NodeToken)
	a.logger.Info().Str("node_id", a.creds.NodeID).Str("node_key", a.creds.NodeKey).Msg("node registered")

	if a.cfg.StateFile != "" {
		if err := saveCredentials(a.cfg.StateFile, a.creds); err != nil {
			return fmt.Errorf("failed to save node credentials: %w", err)
		}
	}
	return nil
}

func loadCredentials(path string) (*credentials, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var creds credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if creds.NodeID == "" || creds.NodeToken == "" {
		return nil, fmt.Errorf("state file %s is missing node credentials", path)
	}
	return &creds, nil
}

func saveCredentials(path string, creds credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (a *Agent) heartbeatLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.sendHeartbeat(); err != nil {
				a.logger.Warn().Err(err).Msg("heartbeat failed")
			}
		case <-a.stopCh:
			return
		}
	}
}

func (a *Agent) sendHeartbeat() error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return a.client.Heartbeat(ctx, a.creds.NodeID, &types.HeartbeatRequest{
		SoftwareVersion: a.cfg.SoftwareVersion,
	})
}

func (a *Agent) pollLoop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	// Drain once up front so freshly queued work is not stuck behind the
	// first tick.
	a.poll()

	for {
		select {
		case <-ticker.C:
			a.poll()
		case <-a.stopCh:
			return
		}
	}
}

// poll pulls pending commands oldest-first and handles each in order.
func (a *Agent) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	cmds, err := a.client.NodeCommands(ctx, a.creds.NodeID, client.CommandListOptions{})
	cancel()
	if err != nil {
		a.logger.Warn().Err(err).Msg("command poll failed")
		return
	}

	for _, cmd := range cmds {
		a.handleCommand(cmd)
	}
}

func (a *Agent) handleCommand(cmd *types.Command) {
	ack, err := a.handler(cmd)
	if err != nil {
		ack = Ack{
			Status:      types.CommandStatusFailed,
			ErrorCode:   "AGENT_ERROR",
			ErrorDetail: err.Error(),
		}
	}
	if ack.Status == "" {
		ack.Status = types.CommandStatusAcked
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err = a.client.AckCommand(ctx, cmd.ID, &types.AckCommandRequest{
		Status:          ack.Status,
		AppliedRevision: ack.AppliedRevision,
		ErrorCode:       ack.ErrorCode,
		ErrorDetail:     ack.ErrorDetail,
		Output:          ack.Output,
	})
	if err != nil {
		// The command stays pending on the cloud and is pulled again next
		// poll; handlers are expected to tolerate the replay.
		a.logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("ack failed")
		return
	}

	a.logger.Info().
		Str("command_id", cmd.ID).
		Str("command_type", cmd.CommandType).
		Str("status", string(ack.Status)).
		Msg("command handled")
}

// defaultHandle is the built-in command handler. HEARTBEAT_NOW heartbeats
// immediately and acks only if that heartbeat lands; revision commands are
// acked with their revision number echoed as appliedRevision; everything
// else is acked bare.
func (a *Agent) defaultHandle(cmd *types.Command) (Ack, error) {
	if cmd.Domain == types.DomainRemoteAction {
		var payload types.ActionPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return Ack{}, fmt.Errorf("malformed action payload: %w", err)
		}
		if payload.Action == types.ActionHeartbeatNow {
			if err := a.sendHeartbeat(); err != nil {
				return Ack{}, fmt.Errorf("heartbeat failed: %w", err)
			}
		}
		return Ack{Status: types.CommandStatusAcked}, nil
	}

	var payload types.RevisionCommandPayload
	if err := json.Unmarshal(cmd.Payload, &payload); err != nil || payload.Revision == 0 {
		return Ack{Status: types.CommandStatusAcked}, nil
	}
	applied := payload.Revision
	return Ack{Status: types.CommandStatusAcked, AppliedRevision: &applied}, nil
}
