package storage

import "errors"

var (
	// ErrNotFound is returned when a looked-up entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique-constraint violations and when an
	// on-site server is already linked to a different store.
	ErrConflict = errors.New("conflict")

	// ErrInvalid is returned when a mutation references entities
	// inconsistently or a command is not in a state that permits the
	// requested transition.
	ErrInvalid = errors.New("invalid")

	// ErrBootstrapToken is returned when node registration presents a
	// token that is unknown, expired, or already used. Callers surface
	// all three identically so the response does not reveal which.
	ErrBootstrapToken = errors.New("bootstrap token invalid")
)
