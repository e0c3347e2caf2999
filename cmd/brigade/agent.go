package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cravepos/brigade/pkg/agent"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the reference edge agent",
	Long: `Run the reference edge agent against a Brigade control plane.

On first start the agent redeems a one-shot bootstrap token, registers
as a node, and saves its credentials to the state file. Later starts
reuse the saved credentials; the token is not needed again. Once
registered the agent heartbeats and polls for commands until
interrupted.

Examples:
  # First start: register with a bootstrap token
  brigade agent --cloud-url https://cloud.example.com \
    --store-id 7f3a... --bootstrap-token bs_... --label kitchen-primary

  # Later starts reuse the saved credentials
  brigade agent --cloud-url https://cloud.example.com`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().String("cloud-url", "", "Base URL of the control plane (required)")
	agentCmd.Flags().String("store-id", "", "Store to register under (first start only)")
	agentCmd.Flags().String("bootstrap-token", "", "One-shot bootstrap token (first start only)")
	agentCmd.Flags().String("label", "", "Human-readable node label")
	agentCmd.Flags().String("state-file", "/var/lib/brigade-agent/state.json", "Path for persisted node credentials")
	agentCmd.Flags().Duration("heartbeat-interval", 60*time.Second, "Interval between heartbeats")
	agentCmd.Flags().Duration("poll-interval", 15*time.Second, "Interval between command polls")
	agentCmd.Flags().String("log-level", "info", "Log level: debug, info, warn, error")
	_ = agentCmd.MarkFlagRequired("cloud-url")

	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cloudURL, _ := cmd.Flags().GetString("cloud-url")
	storeID, _ := cmd.Flags().GetString("store-id")
	bootstrapToken, _ := cmd.Flags().GetString("bootstrap-token")
	label, _ := cmd.Flags().GetString("label")
	stateFile, _ := cmd.Flags().GetString("state-file")
	heartbeatInterval, _ := cmd.Flags().GetDuration("heartbeat-interval")
	pollInterval, _ := cmd.Flags().GetDuration("poll-interval")
	logLevel, _ := cmd.Flags().GetString("log-level")

	log.Init(log.Config{Level: log.Level(logLevel)})

	a, err := agent.New(agent.Config{
		CloudURL:          cloudURL,
		StoreID:           storeID,
		BootstrapToken:    bootstrapToken,
		Label:             label,
		SoftwareVersion:   Version,
		StateFile:         stateFile,
		HeartbeatInterval: heartbeatInterval,
		PollInterval:      pollInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to create agent: %v", err)
	}

	if err := a.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start agent: %v", err)
	}

	fmt.Printf("Agent running as node %s. Press Ctrl+C to stop.\n", a.NodeID())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	a.Stop()
	fmt.Println("✓ Shutdown complete")
	return nil
}
