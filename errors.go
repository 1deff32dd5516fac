package theta

import "github.com/pkg/errors"

// ErrSeedMismatch is returned when a sketch was built with a different seed
// than the one configured on the receiver.  Mixing seeds silently destroys the
// accuracy guarantees, so it is never recovered from internally.
var ErrSeedMismatch = errors.New("seed hash mismatch")

// ErrInvalidFamily is returned when a serialized image carries a family id
// that cannot be used for the requested operation.
var ErrInvalidFamily = errors.New("invalid sketch family")

// ErrUnrecognizedFormat is returned when a serialized image carries an unknown
// serial version.
var ErrUnrecognizedFormat = errors.New("unrecognized serial version")

// ErrInsufficientBytes is returned when a serialized image is truncated.
var ErrInsufficientBytes = errors.New("insufficient bytes to deserialize sketch")

// ErrCorruptImage is returned when a serialized image is internally
// inconsistent, such as a retained count that disagrees with its table.
var ErrCorruptImage = errors.New("corrupt sketch image")

// ErrCapacityExceeded is returned when a direct buffer must grow beyond the
// memory it was given and no MemoryRequestServer can supply more.
var ErrCapacityExceeded = errors.New("memory capacity exceeded")

// ErrReadOnly is returned when a mutating operation targets read-only memory.
var ErrReadOnly = errors.New("memory is read-only")
