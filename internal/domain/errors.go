package domain

import "errors"

// ErrNotFound reports that a keyed row does not exist in the store.
var ErrNotFound = errors.New("not found")
