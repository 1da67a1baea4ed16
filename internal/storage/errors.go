package storage

import "errors"

// ErrUnavailable is returned when the storage environment cannot be opened.
// Fatal to startup: callers may retry with backoff but must not ignore it.
var ErrUnavailable = errors.New("storage: unavailable")

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateID is returned when a create names an id that already exists.
// The operation aborts with no partial write. Not retryable.
var ErrDuplicateID = errors.New("storage: duplicate id")

// ErrOrphanMessage is returned when a message names a session that does not
// exist. The operation aborts with no partial write.
var ErrOrphanMessage = errors.New("storage: message references unknown session")

// ErrCorruptRecord is returned when stored bytes fail to decode. Never
// silently coerced to a zero-valued record.
var ErrCorruptRecord = errors.New("storage: corrupt record")
