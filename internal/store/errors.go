package store

import "errors"

// ErrNotFound is returned when a stream, swap, or pair lookup matches no row.
var ErrNotFound = errors.New("store: not found")
