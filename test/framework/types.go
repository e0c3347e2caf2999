package framework

import "time"

// TestingT is an interface matching the parts of testing.T the framework
// needs, so helpers stay usable from benchmarks and custom drivers.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}

// Options configures a Harness. The zero value starts a single-voter
// control plane in a fresh temp directory with a seeded owner account.
type Options struct {
	// NodeID is the raft server id for this instance
	NodeID string
	// DataDir hosts the entity store; empty creates a temp dir removed by Stop
	DataDir string
	// OwnerEmail and OwnerPassword seed the platform owner account
	OwnerEmail    string
	OwnerPassword string
	// SessionSecret signs operator session tokens
	SessionSecret string
	// BootstrapTokenTTL overrides the default bootstrap token lifetime
	BootstrapTokenTTL time.Duration
	// Version is what the ops health endpoints report
	Version string
}

const (
	defaultNodeID        = "e2e-1"
	defaultOwnerEmail    = "owner@e2e.test"
	defaultOwnerPassword = "e2e-owner-pw"
	defaultSecret        = "e2e-session-secret"
	defaultVersion       = "e2e"
)

func (o *Options) withDefaults() Options {
	opts := Options{}
	if o != nil {
		opts = *o
	}
	if opts.NodeID == "" {
		opts.NodeID = defaultNodeID
	}
	if opts.OwnerEmail == "" {
		opts.OwnerEmail = defaultOwnerEmail
	}
	if opts.OwnerPassword == "" {
		opts.OwnerPassword = defaultOwnerPassword
	}
	if opts.SessionSecret == "" {
		opts.SessionSecret = defaultSecret
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	return opts
}
