package storage

import "errors"

// Sentinel errors shared by all store implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an
	// existing primary key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable is returned while the backing database is down,
	// for example between a DSN change and the next successful reconnect.
	ErrUnavailable = errors.New("storage unavailable")
)
