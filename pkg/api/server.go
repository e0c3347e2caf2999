package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/claim"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/types"
)

// Server is the operator- and node-facing HTTP API.
type Server struct {
	manager *manager.Manager
	auth    *auth.Service
	claims  *claim.Client
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  zerolog.Logger
}

// NewServer wires the API over a manager, an auth service and an outbound
// claim client.
func NewServer(mgr *manager.Manager, authSvc *auth.Service, claims *claim.Client) *Server {
	s := &Server{
		manager: mgr,
		auth:    authSvc,
		claims:  claims,
		mux:     http.NewServeMux(),
		logger:  log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Operator authentication.
	s.mux.HandleFunc("POST /cloud/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /cloud/auth/me", s.handleMe)

	// Operator hierarchy.
	s.mux.HandleFunc("GET /cloud/platform/resellers", s.handleListResellers)
	s.mux.HandleFunc("POST /cloud/platform/resellers", s.handleCreateReseller)
	s.mux.HandleFunc("POST /cloud/platform/resellers/{id}/accounts", s.handleCreateResellerAccount)
	s.mux.HandleFunc("POST /cloud/platform/resellers/{id}/tenants", s.handleCreateResellerTenant)
	s.mux.HandleFunc("GET /cloud/platform/tenants", s.handleListTenants)
	s.mux.HandleFunc("POST /cloud/platform/tenants", s.handleCreateTenant)
	s.mux.HandleFunc("POST /cloud/platform/tenants/{id}/accounts", s.handleCreateTenantAccount)
	s.mux.HandleFunc("GET /cloud/platform/stores", s.handleListStores)
	s.mux.HandleFunc("POST /cloud/platform/stores", s.handleCreateStore)

	// Operator revisions and commands.
	s.mux.HandleFunc("POST /cloud/stores/{id}/revisions", s.handlePublishRevision)
	s.mux.HandleFunc("GET /cloud/stores/{id}/revisions/latest", s.handleLatestRevisions)
	s.mux.HandleFunc("GET /cloud/stores/{id}/commands", s.handleListStoreCommands)
	s.mux.HandleFunc("POST /cloud/commands/{id}/retry", s.handleRetryCommand)
	s.mux.HandleFunc("GET /cloud/commands/{id}/logs", s.handleCommandLogs)

	// Operator node provisioning and hand-off.
	s.mux.HandleFunc("POST /cloud/platform/stores/{id}/bootstrap-tokens", s.handleIssueBootstrapToken)
	s.mux.HandleFunc("GET /cloud/platform/stores/{id}/bootstrap-tokens", s.handleListBootstrapTokens)
	s.mux.HandleFunc("POST /cloud/platform/stores/{id}/impersonation-link", s.handleImpersonationLink)

	// Operator network view and remote actions.
	s.mux.HandleFunc("GET /cloud/platform/network", s.handleNetworkView)
	s.mux.HandleFunc("POST /cloud/platform/network/nodes/{id}/rotate-token", s.handleRotateNodeToken)
	s.mux.HandleFunc("POST /cloud/platform/network/actions", s.handleDispatchAction)
	s.mux.HandleFunc("GET /cloud/platform/network/actions", s.handleListActions)
	s.mux.HandleFunc("POST /cloud/platform/network/actions/{id}/retry", s.handleRetryAction)
	s.mux.HandleFunc("POST /cloud/platform/network/actions/{id}/cancel", s.handleCancelAction)

	// Operator onsite claim.
	s.mux.HandleFunc("POST /cloud/platform/onsite/claim", s.handleClaim)

	// Edge nodes.
	s.mux.HandleFunc("POST /cloud/nodes/register", s.handleRegisterNode)
	s.mux.HandleFunc("GET /cloud/nodes/{nodeId}/commands", s.handleNodeCommands)
	s.mux.HandleFunc("POST /cloud/nodes/{nodeId}/heartbeat", s.handleNodeHeartbeat)
	s.mux.HandleFunc("POST /cloud/commands/{id}/ack", s.handleAckCommand)
}

// Handler returns the middleware-wrapped handler. Exposed so tests can
// drive the API in-process without a listener.
func (s *Server) Handler() http.Handler {
	return withRecovery(withObservability(s.mux))
}

// Start serves the API on addr until Shutdown.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("api listening")
	if err := s.httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// requireSession authenticates an operator request from its bearer token.
func (s *Server) requireSession(r *http.Request) (*auth.Session, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, auth.ErrUnauthenticated
	}
	return s.auth.ParseSession(strings.TrimSpace(header[len(prefix):]))
}

// requireNode authenticates the x-node-id/x-node-token header pair. When
// expectedNodeID is set, the authenticated node must be that node.
func (s *Server) requireNode(r *http.Request, expectedNodeID string) (*types.Node, error) {
	node, err := s.auth.AuthenticateNode(r.Header.Get("x-node-id"), r.Header.Get("x-node-token"))
	if err != nil {
		return nil, err
	}
	if expectedNodeID != "" && node.ID != expectedNodeID {
		return nil, errForbidden("node is not authorized for this resource")
	}
	return node, nil
}

// storeInScope loads a store and its tenant and enforces the session scope.
func (s *Server) storeInScope(sess *auth.Session, storeID string) (*types.Store, *types.Tenant, error) {
	store, err := s.manager.GetStore(storeID)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := s.manager.GetTenant(store.TenantID)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Scope().CanAccessTenant(tenant) {
		return nil, nil, errForbidden("store %s is outside your scope", store.ID)
	}
	return store, tenant, nil
}

// commandInScope loads a command and enforces tenant access to its store.
func (s *Server) commandInScope(sess *auth.Session, commandID string) (*types.Command, error) {
	cmd, err := s.manager.GetCommand(commandID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.storeInScope(sess, cmd.StoreID); err != nil {
		return nil, err
	}
	return cmd, nil
}
