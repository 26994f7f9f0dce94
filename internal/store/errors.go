package store

import "errors"

var (
	// ErrNotFound is returned when a key or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write sees a newer revision.
	ErrConflict = errors.New("conflict: document was modified by another writer")

	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("store closed")

	// ErrInvalidInput is returned for empty paths or malformed payloads.
	ErrInvalidInput = errors.New("invalid input")
)
