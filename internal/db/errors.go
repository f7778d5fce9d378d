package db

import "errors"

// Sentinel errors for backend operations.
var (
	ErrIndexExists      = errors.New("db: index already exists")
	ErrIndexNotFound    = errors.New("db: index not found")
	ErrDocumentNotFound = errors.New("db: document not found")
	ErrInvalidNamespace = errors.New("db: invalid namespace")
	ErrInvalidSchema    = errors.New("db: invalid index schema")
	ErrUnsupportedQuery = errors.New("db: query not supported by backend")
)

// Op names identify backend operations in errors and metrics.
const (
	OpPing           = "ping"
	OpCreateIndex    = "create_index"
	OpIndexDocument  = "index_document"
	OpGetDocument    = "get_document"
	OpDeleteDocument = "delete_document"
	OpUpdateDocument = "update_document"
	OpCount          = "count"
	OpSearch         = "search"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
