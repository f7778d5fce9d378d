// Package page turns a (total, page size, requested page) triple into a query
// window and the page metadata reported back to callers.
package page

import (
	"fmt"

	"github.com/kailas-cloud/docgate/internal/domain"
)

// Defaults applied at the request edge when a parameter is absent.
const (
	DefaultPage     = 1
	DefaultPageSize = 25
)

// Request is a validated page request.
type Request struct {
	currentPage int
	pageSize    int
}

// NewRequest validates and creates a Request. Both values must be >= 1.
func NewRequest(currentPage, pageSize int) (Request, error) {
	if currentPage < 1 {
		return Request{}, fmt.Errorf("page must be >= 1, got %d: %w", currentPage, domain.ErrInvalidRequest)
	}
	if pageSize < 1 {
		return Request{}, fmt.Errorf("size must be >= 1, got %d: %w", pageSize, domain.ErrInvalidRequest)
	}
	return Request{currentPage: currentPage, pageSize: pageSize}, nil
}

// CurrentPage returns the requested page number.
func (r Request) CurrentPage() int { return r.currentPage }

// PageSize returns the requested page size.
func (r Request) PageSize() int { return r.pageSize }

// Info is the page metadata returned with every paged query.
type Info struct {
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
	PageSize    int   `json:"pageSize"`
}

// TotalPages returns ceil(total/pageSize), 0 for an empty result.
func TotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize < 1 {
		return 0
	}
	size := int64(pageSize)
	return int((total + size - 1) / size)
}

// Offset returns the first row of the window for currentPage.
// Requests past the last page are clamped to the last page's window.
func Offset(currentPage, pageSize, totalPages int) int {
	if totalPages > currentPage {
		return (currentPage - 1) * pageSize
	}
	if totalPages < 1 {
		return 0
	}
	return (totalPages - 1) * pageSize
}

// NewInfo builds page metadata. The reported page is min(currentPage, totalPages),
// so it agrees with the window produced by Offset.
func NewInfo(total int64, totalPages, currentPage, pageSize int) Info {
	return Info{
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: min(currentPage, totalPages),
		PageSize:    pageSize,
	}
}

// Window computes the metadata and offset for a request against total matches.
func Window(total int64, req Request) (Info, int) {
	pages := TotalPages(total, req.pageSize)
	return NewInfo(total, pages, req.currentPage, req.pageSize), Offset(req.currentPage, req.pageSize, pages)
}
