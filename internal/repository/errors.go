package repository

import "errors"

var (
	// ErrNotFound is returned when an update or delete target does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRejected is returned when the underlying store refuses a write.
	ErrRejected = errors.New("store rejected the write")
	// ErrDuplicate is returned when a category name is already taken.
	ErrDuplicate = errors.New("record already exists")
)
