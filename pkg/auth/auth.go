package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/secrets"
	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does
	// not match a stored account.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountDisabled is returned when the credentials are correct but
	// the account has been disabled.
	ErrAccountDisabled = errors.New("account is disabled")

	// ErrUnauthenticated is returned for missing, malformed, expired or
	// revoked session and node credentials.
	ErrUnauthenticated = errors.New("missing or invalid credentials")
)

// MaxImpersonationTTL bounds the lifetime of impersonation links.
const MaxImpersonationTTL = 5 * time.Minute

const (
	defaultSessionTTL       = 12 * time.Hour
	defaultImpersonationTTL = 2 * time.Minute
)

// Directory is the read-only lookup surface the service authenticates
// against. *storage.BoltStore satisfies it.
type Directory interface {
	GetAccount(id string) (*types.CloudAccount, error)
	GetAccountByEmail(email string) (*types.CloudAccount, error)
	GetNode(id string) (*types.Node, error)
}

// Options configures a Service.
type Options struct {
	// Secret is the HMAC key for session and impersonation tokens. When
	// empty an ephemeral key is generated and sessions will not survive a
	// restart.
	Secret           string
	SessionTTL       time.Duration
	ImpersonationTTL time.Duration
}

// Service issues and verifies operator sessions, impersonation links and
// node credentials.
type Service struct {
	dir              Directory
	secret           []byte
	sessionTTL       time.Duration
	impersonationTTL time.Duration
	now              func() time.Time
}

// NewService creates an authentication service over the given directory.
func NewService(dir Directory, opts Options) (*Service, error) {
	secret := []byte(opts.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		log.Warn("no session secret configured, generated an ephemeral one; sessions will not survive restarts")
	}

	sessionTTL := opts.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	impersonationTTL := opts.ImpersonationTTL
	if impersonationTTL <= 0 || impersonationTTL > MaxImpersonationTTL {
		impersonationTTL = defaultImpersonationTTL
	}

	return &Service{
		dir:              dir,
		secret:           secret,
		sessionTTL:       sessionTTL,
		impersonationTTL: impersonationTTL,
		now:              time.Now,
	}, nil
}

// Session is the authenticated operator identity attached to a request.
// Fields reflect the account row at verification time, not at login time,
// so a disabled or re-scoped account takes effect immediately.
type Session struct {
	AccountID  string
	Email      string
	Type       types.AccountType
	ResellerID string
	TenantID   string
}

// Scope derives the access scope for this session.
func (s *Session) Scope() Scope {
	switch s.Type {
	case types.AccountTypeOwner:
		return Scope{Kind: ScopeOwner}
	case types.AccountTypeReseller:
		return Scope{Kind: ScopeReseller, ResellerID: s.ResellerID}
	default:
		return Scope{Kind: ScopeTenant, TenantID: s.TenantID}
	}
}

// HashPassword returns the bcrypt verifier persisted for an account
// password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate verifies an operator login. The password is checked before
// the disabled flag so a disabled account is only revealed to callers who
// hold its password.
func (s *Service) Authenticate(email, password string) (*types.CloudAccount, error) {
	account, err := s.dir.GetAccountByEmail(types.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if account.Status == types.AccountStatusDisabled {
		return nil, ErrAccountDisabled
	}

	return account, nil
}

// IssueSession signs a session token for the account. Returns the token
// and its expiry.
func (s *Service) IssueSession(account *types.CloudAccount) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)

	claims := jwt.RegisteredClaims{
		Subject:   account.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}

	return signed, expiresAt, nil
}

// ParseSession validates a session token and loads the account it names.
// Unknown subjects and disabled accounts fail the same way as bad
// signatures.
func (s *Service) ParseSession(token string) (*Session, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthenticated
	}

	account, err := s.dir.GetAccount(claims.Subject)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if account.Status == types.AccountStatusDisabled {
		return nil, ErrUnauthenticated
	}

	return &Session{
		AccountID:  account.ID,
		Email:      account.Email,
		Type:       account.Type,
		ResellerID: account.ResellerID,
		TenantID:   account.TenantID,
	}, nil
}

// AuthenticateNode verifies an edge node credential pair against the
// stored token hash.
func (s *Service) AuthenticateNode(nodeID, nodeToken string) (*types.Node, error) {
	if nodeID == "" || nodeToken == "" {
		return nil, ErrUnauthenticated
	}

	node, err := s.dir.GetNode(nodeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}

	if !secrets.Verify(nodeToken, node.TokenHash) {
		return nil, ErrUnauthenticated
	}

	return node, nil
}

// ImpersonationClaims is the claim set embedded in an impersonation link
// token. The edge backend verifying the link learns which store to open
// and which cloud operator asked for it.
type ImpersonationClaims struct {
	jwt.RegisteredClaims
	StoreID           string `json:"storeId"`
	StoreCode         string `json:"storeCode"`
	TenantID          string `json:"tenantId"`
	ResellerID        string `json:"resellerId,omitempty"`
	CloudAccountID    string `json:"cloudAccountId"`
	CloudAccountType  string `json:"cloudAccountType"`
	CloudAccountEmail string `json:"cloudAccountEmail"`
}

// IssueImpersonation signs a short-lived impersonation token for the
// store. The reseller reference comes from the owning tenant. Returns the
// token and its lifetime.
func (s *Service) IssueImpersonation(store *types.Store, tenant *types.Tenant, account *types.CloudAccount) (string, time.Duration, error) {
	now := s.now()

	claims := ImpersonationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.impersonationTTL)),
		},
		StoreID:           store.ID,
		StoreCode:         store.Code,
		TenantID:          store.TenantID,
		ResellerID:        tenant.ResellerID,
		CloudAccountID:    account.ID,
		CloudAccountType:  string(account.Type),
		CloudAccountEmail: account.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign impersonation token: %w", err)
	}

	return signed, s.impersonationTTL, nil
}

// ParseImpersonation validates an impersonation token and returns its
// claims.
func (s *Service) ParseImpersonation(token string) (*ImpersonationClaims, error) {
	claims := &ImpersonationClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func (s *Service) keyFunc(*jwt.Token) (any, error) {
	return s.secret, nil
}
