package chi

import (
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/page"
)

// ErrorCode is the machine-readable code carried by error responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeBatchTooLarge    ErrorCode = "batch_too_large"
	CodeDocumentNotFound ErrorCode = "document_not_found"
	CodeIndexNotFound    ErrorCode = "index_not_found"
	CodeIDAllocation     ErrorCode = "id_allocation_failed"
	CodeBackendError     ErrorCode = "backend_error"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// QueryRequest is the body of _count, _search and _search_all. Page and
// size are only read by _search.
type QueryRequest struct {
	Page   *int              `json:"page,omitempty"`
	Size   *int              `json:"size,omitempty"`
	Filter *FilterExpression `json:"filter,omitempty"`
	Sort   []SortKey         `json:"sort,omitempty"`
}

// FilterExpression groups conditions: all of must, at least one of should
// (when present) and none of must_not.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// FilterCondition is exactly one of match, range or wildcard on key.
type FilterCondition struct {
	Key      string       `json:"key"`
	Match    *string      `json:"match,omitempty"`
	Range    *RangeFilter `json:"range,omitempty"`
	Wildcard *string      `json:"wildcard,omitempty"`
}

// RangeFilter bounds a numeric field.
type RangeFilter struct {
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

// SortKey orders results by field. Order is ASC (default) or DESC.
type SortKey struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"`
}

// QueryResponse is one page of results.
type QueryResponse struct {
	PageInfo page.Info         `json:"pageInfo"`
	Result   []domdoc.Document `json:"result"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
}

// ListResponse carries every match of _search_all.
type ListResponse struct {
	Result []domdoc.Document `json:"result"`
	Total  int               `json:"total"`
}

// DocumentResponse wraps a single document.
type DocumentResponse struct {
	Result domdoc.Document `json:"result"`
}

// AddResponse reports the id a document was stored under.
type AddResponse struct {
	ID string `json:"id"`
}

// CountResponse carries a match count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// DeleteResponse reports whether the document existed.
type DeleteResponse struct {
	Found bool `json:"found"`
}

// BatchResultItem is the outcome of one batch item.
type BatchResultItem struct {
	Position int        `json:"position"`
	ID       string     `json:"id"`
	Status   string     `json:"status"`
	Error    *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed batch item.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// BatchResponse summarises a batch add.
type BatchResponse struct {
	Items     []BatchResultItem `json:"items"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
	Commit  string            `json:"commit"`
}
