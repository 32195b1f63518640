package errors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyKey            = errors.New("empty key")
	ErrInvalidData         = errors.New("invalid data type")
	ErrStoreUnavailable    = errors.New("metrics store unavailable")
	ErrMalformedRecord     = errors.New("malformed peer record")
	ErrDegenerateAggregate = errors.New("zero accumulated mini-steps in aggregate")
	ErrStatePull           = errors.New("failed to pull state from peers")
	ErrStateMismatch       = errors.New("pulled state does not match model skeleton")
	ErrUploadFailed        = errors.New("failed to upload checkpoint")
)
