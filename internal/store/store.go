// Package store persists sessions, scores and alerts. Consumers declare the
// interfaces they need (detection.Store is the write path); this package
// provides the Badger-backed implementation.
package store

import "errors"

// ErrNotFound is returned when a key has no stored value
var ErrNotFound = errors.New("store: not found")
