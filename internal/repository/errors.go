package repository

import "errors"

// ErrDuplicate is returned when a unique index rejects a write.
var ErrDuplicate = errors.New("duplicate key")
