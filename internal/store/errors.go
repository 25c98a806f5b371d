package store

import "github.com/pkg/errors"

var (
	// ErrSerialization means the value could not be encoded; nothing was written.
	ErrSerialization = errors.New("store: value is not serializable")
	// ErrEmptyKey rejects writes and lookups with an empty key.
	ErrEmptyKey = errors.New("store: empty key")
	// ErrInvalidTTL rejects negative TTLs.
	ErrInvalidTTL = errors.New("store: ttl must not be negative")
	// ErrStorage wraps any failure returned by the Repository.
	ErrStorage = errors.New("store: storage failure")
	// ErrExpiredCleanup marks a failed delete of an entry that Get found expired.
	// The read result is still "not found".
	ErrExpiredCleanup = errors.New("store: expired entry cleanup failed")
)

// storageError keeps the repository error as the cause while matching ErrStorage
// (and optionally a more specific kind) through errors.Is.
type storageError struct {
	kind  error
	op    string
	cause error
}

func (e *storageError) Error() string {
	return e.op + ": " + e.cause.Error()
}

func (e *storageError) Unwrap() []error {
	if e.kind != nil {
		return []error{e.kind, ErrStorage, e.cause}
	}
	return []error{ErrStorage, e.cause}
}

func wrapStorage(op string, err error) error {
	return &storageError{op: op, cause: err}
}

func wrapCleanup(op string, err error) error {
	return &storageError{kind: ErrExpiredCleanup, op: op, cause: err}
}
