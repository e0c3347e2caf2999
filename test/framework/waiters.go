package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/types"
)

// Waiter polls conditions with a timeout. The in-process control plane
// settles in milliseconds, so the defaults are tight.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter tuned for the in-process harness (10s
// timeout, 25ms interval).
func DefaultWaiter() *Waiter {
	return NewWaiter(10*time.Second, 25*time.Millisecond)
}

// WaitFor waits for a condition to become true.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForCommandStatus waits for a command to reach the given status in
// the store's command list.
func (w *Waiter) WaitForCommandStatus(ctx context.Context, c *client.Client, storeID, commandID string, status types.CommandStatus) error {
	return w.WaitFor(ctx, func() bool {
		cmds, err := c.ListStoreCommands(ctx, storeID, client.CommandListOptions{})
		if err != nil {
			return false
		}
		for _, cmd := range cmds {
			if cmd.ID == commandID {
				return cmd.Status == status
			}
		}
		return false
	}, fmt.Sprintf("command %s to reach status %s", commandID, status))
}

// WaitForNodeHealth waits for the network view to report the node with the
// given derived health class.
func (w *Waiter) WaitForNodeHealth(ctx context.Context, c *client.Client, nodeID, health string) error {
	return w.WaitFor(ctx, func() bool {
		view, err := c.NetworkView(ctx, client.NetworkViewOptions{})
		if err != nil {
			return false
		}
		for _, store := range view.Stores {
			for _, node := range store.Nodes {
				if node.ID == nodeID {
					return node.Status == health
				}
			}
		}
		return false
	}, fmt.Sprintf("node %s to report health %s", nodeID, health))
}
