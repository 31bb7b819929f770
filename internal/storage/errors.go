package storage

import "errors"

// Storage errors shared by the feed store and archival backends.
var (
	// ErrNotFound is returned when a requested token does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMissingMint is returned when a token without an identity reaches a
	// store operation that requires one.
	ErrMissingMint = errors.New("missing mint address")

	// ErrIncompleteSnapshot is returned when a bulk snapshot fails its
	// declared-count validation and must not replace current state.
	ErrIncompleteSnapshot = errors.New("incomplete snapshot")
)
