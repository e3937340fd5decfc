package domain

import "errors"

// Sentinel errors shared across stores, caches, and services. Callers match
// with errors.Is after unwrapping.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation on insert.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the caller supplied a value that fails
	// domain validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a mirror-order status update that is
	// not a legal edge of the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrLockHeld indicates another process owns the single-instance lock.
	ErrLockHeld = errors.New("lock already held")

	// ErrVaultSealed indicates the vault passphrase was missing or wrong.
	ErrVaultSealed = errors.New("vault sealed")

	// ErrUnauthorized indicates missing or rejected venue credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the venue throttled the request.
	ErrRateLimited = errors.New("rate limited")
)
