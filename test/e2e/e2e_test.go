package e2e

import (
	"testing"

	"github.com/cravepos/brigade/pkg/types"
	"github.com/cravepos/brigade/test/framework"
)

// startHarness boots an in-process control plane for one test and tears it
// down afterwards. Each test gets a fresh store, so seeded codes never
// collide across tests.
func startHarness(t *testing.T) *framework.Harness {
	t.Helper()

	h, err := framework.Start(nil)
	if err != nil {
		t.Fatalf("Failed to start control plane: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func findCommand(cmds []*types.Command, id string) *types.Command {
	for _, cmd := range cmds {
		if cmd.ID == id {
			return cmd
		}
	}
	return nil
}
