package framework

import (
	"strings"

	"github.com/cravepos/brigade/pkg/client"
	"github.com/cravepos/brigade/pkg/types"
)

// Assertions provides test assertion helpers over the framework types.
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// NoError asserts that the error is nil.
func (a *Assertions) NoError(err error, msg string) {
	a.t.Helper()

	if err != nil {
		a.t.Fatalf("%s: %v", msg, err)
	}
}

// Error asserts that the error is not nil.
func (a *Assertions) Error(err error, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: expected error but got nil", msg)
	}
}

// StatusCode asserts that err is an API error with the given HTTP status.
func (a *Assertions) StatusCode(err error, status int, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: expected status %d, got success", msg, status)
	}
	if !client.IsStatus(err, status) {
		a.t.Fatalf("%s: expected status %d, got %v", msg, status, err)
	}
}

// Equal asserts that two values are equal.
func (a *Assertions) Equal(expected, actual interface{}, msg string) {
	a.t.Helper()

	if expected != actual {
		a.t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// True asserts that a condition is true.
func (a *Assertions) True(condition bool, msg string) {
	a.t.Helper()

	if !condition {
		a.t.Fatalf("%s: expected true, got false", msg)
	}
}

// Contains asserts that a string contains a substring.
func (a *Assertions) Contains(haystack, needle, msg string) {
	a.t.Helper()

	if !strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: expected %q to contain %q", msg, haystack, needle)
	}
}

// CommandStatus asserts a command's status.
func (a *Assertions) CommandStatus(cmd *types.Command, expected types.CommandStatus) {
	a.t.Helper()

	if cmd == nil {
		a.t.Fatalf("expected a command with status %s, got nil", expected)
	}
	if cmd.Status != expected {
		a.t.Fatalf("command %s has status %s, expected %s", cmd.ID, cmd.Status, expected)
	}
}
