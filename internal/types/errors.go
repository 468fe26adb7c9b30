package types

import "errors"

// Sentinel errors for the ledger domain. Callers match with errors.Is;
// call sites wrap these with fmt.Errorf("%w: ...") to add context.
var (
	// ErrInvalidCategory is returned when a category is not one of the
	// fixed set. Raised before any store access.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrValidation is returned when an item, update payload, or URL fails
	// shape validation. No write occurs after a validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrItemNotFound is returned when an update targets an id absent from
	// the current ledger.
	ErrItemNotFound = errors.New("item not found")

	// ErrChannelNotFound is returned by the storage boundary when no
	// document exists for a (category, channel) pair. The ledger layer
	// translates reads of missing channels into empty item lists.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrConcurrentModification is returned when a conditional put loses a
	// race with another writer. The caller retries from a fresh read; the
	// store never retries on its own.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrLockTimeout is returned when a per-ledger write lock cannot be
	// acquired within the caller's deadline.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)
