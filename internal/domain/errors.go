package domain

import "errors"

var (
	// ErrNotFound signals a missing document.
	ErrNotFound = errors.New("not found")
	// ErrIndexNotFound signals a read against an index that was never created.
	ErrIndexNotFound = errors.New("index not found")
	// ErrInvalidRequest signals malformed paging, filter or sort parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidDocument signals a document that cannot be stored as given.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrBatchTooLarge signals a batch above the configured limit.
	ErrBatchTooLarge = errors.New("batch too large")
)
