package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert would violate username or email
// uniqueness, or when a lookup finds more than one match where the write
// path guarantees at most one.
var ErrDuplicate = errors.New("duplicate record")
