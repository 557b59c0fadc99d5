package store

import "errors"

var (
	// ErrNotFound is returned when no record exists under the requested key.
	ErrNotFound = errors.New("store: record not found")
	// ErrNilParam is returned when a required argument is nil or empty.
	ErrNilParam = errors.New("store: nil parameter")
	// ErrInvalidEntry is returned when an entry carries neither an
	// inscription id nor a commit txid to key it by.
	ErrInvalidEntry = errors.New("store: entry has no key")
)
