package repository

import "errors"

// ErrVersionConflict signals an optimistic concurrency check failure:
// another writer advanced the aggregate first. Callers skip the
// operation instead of retrying blindly.
var ErrVersionConflict = errors.New("aggregate version conflict")

// ErrDuplicateEvent signals a write to an (aggregate_id, version) pair
// that already exists in the event log. This is a corruption signal, not
// a valid retry path.
var ErrDuplicateEvent = errors.New("duplicate event version")

// ErrNoHandler signals a scheduled command whose type has no registered
// handler. Terminal; never retried. The capitalized message is the
// stored errorMessage clients match on.
var ErrNoHandler = errors.New("No handler registered for command type")

// ErrQueueFull signals that the transaction batcher's queue depth limit
// was reached. Callers fail fast instead of growing memory unboundedly.
var ErrQueueFull = errors.New("transaction batch queue is full")

// ErrSnapshotNotFound signals a load for an aggregate that has no
// snapshot yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

var ErrIdempotencyKeyConflict = errors.New("idempotency key conflicts with request")
var ErrInvalidCursor = errors.New("invalid cursor")
