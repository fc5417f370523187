package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("repository: not found")

	// ErrLockUnavailable is returned by NoWait lock reads when another
	// transaction already holds the row lock. Callers may retry the whole
	// operation.
	ErrLockUnavailable = errors.New("repository: lock unavailable")
)
