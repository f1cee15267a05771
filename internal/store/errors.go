package store

import "errors"

// ErrNotFound is returned by write paths that require an existing row.
// Reads report absence as a nil result instead.
var ErrNotFound = errors.New("not found")
