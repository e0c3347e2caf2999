package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cravepos/brigade/pkg/api"
	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/claim"
	"github.com/cravepos/brigade/pkg/config"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/metrics"
	"github.com/cravepos/brigade/pkg/reconciler"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "brigade",
	Short: "Brigade - cloud control plane for restaurant POS fleets",
	Long: `Brigade is the cloud control plane for a fleet of on-site restaurant
POS servers. It tracks the reseller/tenant/store hierarchy, publishes
configuration revisions, queues durable commands for edge nodes, and
derives fleet health from heartbeats.

A single binary runs the control plane (serve) or the reference edge
agent (agent).`,
	Version: Version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Brigade version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Brigade version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Brigade control plane",
	Long: `Run the Brigade control plane.

The first instance bootstraps a single-node raft cluster; later
instances join it via --join. All state mutations go through the
replicated log, so any instance can serve reads while writes are
forwarded to the leader.

Examples:
  # Single-node dev server with defaults
  brigade serve --data-dir ./brigade-data

  # First production instance
  brigade serve --config /etc/brigade/brigade.yaml --bootstrap

  # Additional instance joining the first
  brigade serve --config /etc/brigade/brigade.yaml \
    --node-id cloud-2 --join http://cloud-1.internal:8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("listen", "", "API listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory for state and raft log (overrides config)")
	serveCmd.Flags().String("node-id", "", "Raft node ID of this instance (overrides config)")
	serveCmd.Flags().String("raft-bind", "", "Raft peer listen address (overrides config)")
	serveCmd.Flags().Bool("bootstrap", false, "Bootstrap a fresh single-instance cluster")
	serveCmd.Flags().String("join", "", "API address of an existing instance to join")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// applyServeFlags layers command-line overrides onto the loaded config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Server.BindAddr = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("node-id"); v != "" {
		cfg.Raft.NodeID = v
	}
	if v, _ := cmd.Flags().GetString("raft-bind"); v != "" {
		cfg.Raft.BindAddr = v
	}
	if cmd.Flags().Changed("bootstrap") {
		cfg.Raft.Bootstrap, _ = cmd.Flags().GetBool("bootstrap")
	}
	if v, _ := cmd.Flags().GetString("join"); v != "" {
		cfg.Raft.JoinAddr = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	fmt.Println("Starting Brigade control plane...")
	fmt.Printf("  Node ID: %s\n", cfg.Raft.NodeID)
	fmt.Printf("  API Address: %s\n", cfg.Server.BindAddr)
	fmt.Printf("  Raft Address: %s\n", cfg.Raft.BindAddr)
	fmt.Printf("  Data Directory: %s\n", cfg.Storage.DataDir)
	fmt.Println()

	// Create manager
	mgr, err := manager.NewManager(&manager.Config{
		NodeID:            cfg.Raft.NodeID,
		BindAddr:          cfg.Raft.BindAddr,
		DataDir:           cfg.Storage.DataDir,
		BootstrapTokenTTL: cfg.Tokens.BootstrapTTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %v", err)
	}

	// Bootstrap a fresh cluster or join an existing one
	switch {
	case cfg.Raft.JoinAddr != "":
		if err := mgr.Join(cfg.Raft.JoinAddr); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}
		fmt.Printf("✓ Joined cluster via %s\n", cfg.Raft.JoinAddr)
	case cfg.Raft.Bootstrap:
		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
		fmt.Println("✓ Raft started")
	default:
		return fmt.Errorf("either raft.bootstrap or raft.joinAddr must be set")
	}

	if err := mgr.WaitForLeader(30 * time.Second); err != nil {
		return err
	}

	// Seed the first owner account on an empty database. Leader only;
	// followers see it through the log.
	if mgr.IsLeader() {
		if _, err := mgr.EnsureOwner(cfg.Seed.OwnerEmail, cfg.Seed.OwnerPassword, cfg.Seed.OwnerName); err != nil {
			return fmt.Errorf("failed to seed owner account: %v", err)
		}
	}

	// Log the event stream at debug level
	eventCh := mgr.Events().Subscribe()
	go func() {
		eventLog := log.WithComponent("events")
		for event := range eventCh {
			eventLog.Debug().
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Str("message", event.Message).
				Msg("event")
		}
	}()

	// Start reconciler
	recon := reconciler.New(mgr, mgr.Events(), cfg.Reconciler.Interval.Std())
	recon.Start()
	fmt.Println("✓ Reconciler started")

	// Start metrics collector
	collector := metrics.NewCollector(mgr)
	collector.Start()

	authSvc, err := auth.NewService(mgr, auth.Options{
		Secret:           cfg.Auth.SessionSecret,
		SessionTTL:       cfg.Auth.SessionTTL.Std(),
		ImpersonationTTL: cfg.Auth.ImpersonationTTL.Std(),
	})
	if err != nil {
		return fmt.Errorf("failed to create auth service: %v", err)
	}

	claims := claim.NewClient(claim.Options{
		ConsumeTimeout:  cfg.Claim.ConsumeTimeout.Std(),
		FinalizeTimeout: cfg.Claim.FinalizeTimeout.Std(),
	})

	// Start API and ops servers in background
	apiServer := api.NewServer(mgr, authSvc, claims)
	opsServer := api.NewOpsServer(mgr, Version)

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(cfg.Server.BindAddr); err != nil {
			errCh <- fmt.Errorf("api server error: %v", err)
		}
	}()
	if cfg.Server.OpsAddr != "" {
		go func() {
			if err := opsServer.Start(cfg.Server.OpsAddr); err != nil {
				errCh <- fmt.Errorf("ops server error: %v", err)
			}
		}()
	}

	fmt.Println()
	fmt.Println("Control plane is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	// Shutdown: drain listeners first, then background loops, then raft.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "api shutdown: %v\n", err)
	}
	if cfg.Server.OpsAddr != "" {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "ops shutdown: %v\n", err)
		}
	}
	recon.Stop()
	collector.Stop()
	mgr.Events().Unsubscribe(eventCh)
	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
