package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvSessionSecret overrides auth.sessionSecret when set. Keeping the secret
// out of the config file lets the file be committed without leaking it.
const EnvSessionSecret = "BRIGADE_SESSION_SECRET"

// Duration wraps time.Duration so YAML configs can write "90s" or "24h".
// Bare integers are read as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ServerConfig configures the operator/node HTTP listener.
type ServerConfig struct {
	// BindAddr is the address the API server listens on.
	BindAddr string `yaml:"bindAddr"`

	// OpsAddr is the address of the ops listener (healthz, readyz, metrics).
	// Empty disables the ops listener.
	OpsAddr string `yaml:"opsAddr"`
}

// RaftConfig configures the replicated log that backs all state mutations.
type RaftConfig struct {
	// NodeID identifies this cloud instance within the raft cluster.
	NodeID string `yaml:"nodeId"`

	// BindAddr is the address raft listens on for peer traffic.
	BindAddr string `yaml:"bindAddr"`

	// Bootstrap starts a fresh single-instance cluster. Set on the first
	// instance only; later instances join via JoinAddr.
	Bootstrap bool `yaml:"bootstrap"`

	// JoinAddr is the API address of an existing instance to join.
	JoinAddr string `yaml:"joinAddr"`
}

// StorageConfig configures durable state placement.
type StorageConfig struct {
	// DataDir holds the state database, raft log, and snapshots.
	DataDir string `yaml:"dataDir"`
}

// AuthConfig configures operator sessions and impersonation hand-off.
type AuthConfig struct {
	// SessionSecret signs operator session tokens. Overridden by the
	// BRIGADE_SESSION_SECRET environment variable.
	SessionSecret string `yaml:"sessionSecret"`

	// SessionTTL is how long an operator session stays valid.
	SessionTTL Duration `yaml:"sessionTTL"`

	// ImpersonationTTL is the lifetime of a single impersonation link.
	// Capped at 5 minutes regardless of configuration.
	ImpersonationTTL Duration `yaml:"impersonationTTL"`
}

// TokensConfig configures bootstrap token issuance.
type TokensConfig struct {
	// BootstrapTTL is the default lifetime of an issued bootstrap token,
	// used when a request does not specify one.
	BootstrapTTL Duration `yaml:"bootstrapTTL"`
}

// ClaimConfig configures the on-site claim handshake against edge servers.
type ClaimConfig struct {
	// ConsumeTimeout bounds the blocking claim-consume call to the edge.
	ConsumeTimeout Duration `yaml:"consumeTimeout"`

	// FinalizeTimeout bounds the best-effort finalize call to the edge.
	FinalizeTimeout Duration `yaml:"finalizeTimeout"`
}

// SeedConfig creates the initial owner account on an empty database.
type SeedConfig struct {
	OwnerEmail    string `yaml:"ownerEmail"`
	OwnerPassword string `yaml:"ownerPassword"`
	OwnerName     string `yaml:"ownerName"`
}

// LogConfig configures log output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// JSON emits structured JSON instead of console output.
	JSON bool `yaml:"json"`
}

// ReconcilerConfig configures the background health sweep.
type ReconcilerConfig struct {
	// Interval is how often node health is re-derived.
	Interval Duration `yaml:"interval"`
}

// Config is the full configuration for a cloud instance.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Raft       RaftConfig       `yaml:"raft"`
	Storage    StorageConfig    `yaml:"storage"`
	Auth       AuthConfig       `yaml:"auth"`
	Tokens     TokensConfig     `yaml:"tokens"`
	Claim      ClaimConfig      `yaml:"claim"`
	Seed       SeedConfig       `yaml:"seed"`
	Log        LogConfig        `yaml:"log"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// Default returns a Config with working defaults for a single-instance
// deployment. Only the session secret must be supplied by the operator.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr: ":8080",
			OpsAddr:  ":9090",
		},
		Raft: RaftConfig{
			NodeID:    "cloud-1",
			BindAddr:  "127.0.0.1:7000",
			Bootstrap: true,
		},
		Storage: StorageConfig{
			DataDir: "/var/lib/brigade",
		},
		Auth: AuthConfig{
			SessionTTL:       Duration(12 * time.Hour),
			ImpersonationTTL: Duration(2 * time.Minute),
		},
		Tokens: TokensConfig{
			BootstrapTTL: Duration(7 * 24 * time.Hour),
		},
		Claim: ClaimConfig{
			ConsumeTimeout:  Duration(10 * time.Second),
			FinalizeTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Reconciler: ReconcilerConfig{
			Interval: Duration(30 * time.Second),
		},
	}
}

// Load reads a YAML config file over the defaults and applies environment
// overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if secret := os.Getenv(EnvSessionSecret); secret != "" {
		cfg.Auth.SessionSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.BindAddr == "" {
		return fmt.Errorf("server.bindAddr is required")
	}
	if c.Raft.NodeID == "" {
		return fmt.Errorf("raft.nodeId is required")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.dataDir is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.sessionTTL must be positive")
	}
	if ttl := c.Auth.ImpersonationTTL.Std(); ttl <= 0 || ttl > 5*time.Minute {
		return fmt.Errorf("auth.impersonationTTL must be between 1s and 5m")
	}
	if c.Tokens.BootstrapTTL <= 0 {
		return fmt.Errorf("tokens.bootstrapTTL must be positive")
	}
	if c.Claim.ConsumeTimeout <= 0 {
		return fmt.Errorf("claim.consumeTimeout must be positive")
	}
	return nil
}
