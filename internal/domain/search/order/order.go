// Package order describes result ordering: a list of sort keys applied in
// priority order.
package order

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/docgate/internal/domain"
)

// MaxKeys is the maximum number of sort keys per query.
const MaxKeys = 8

// Direction is a sort direction.
type Direction string

// Sort directions. ASC is the default, as in the request parameter readers.
const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is a single sort key.
type Order struct {
	field string
	dir   Direction
}

// New creates an Order.
func New(field string, dir Direction) (Order, error) {
	if field == "" {
		return Order{}, fmt.Errorf("sort field is required: %w", domain.ErrInvalidRequest)
	}
	if strings.ContainsAny(field, " @{}[]()|:$\"'") {
		return Order{}, fmt.Errorf("sort field %q contains invalid characters: %w", field, domain.ErrInvalidRequest)
	}
	switch dir {
	case Asc, Desc:
	default:
		return Order{}, fmt.Errorf("sort order must be ASC or DESC, got %q: %w", dir, domain.ErrInvalidRequest)
	}
	return Order{field: field, dir: dir}, nil
}

// Parse creates an Order from request strings. The direction is case-insensitive
// and defaults to ASC.
func Parse(field, dir string) (Order, error) {
	d := Direction(strings.ToUpper(strings.TrimSpace(dir)))
	if d == "" {
		d = Asc
	}
	return New(field, d)
}

// Validate checks a list of sort keys.
func Validate(orders []Order) error {
	if len(orders) > MaxKeys {
		return fmt.Errorf("too many sort keys (max %d): %w", MaxKeys, domain.ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		if seen[o.field] {
			return fmt.Errorf("duplicate sort field %q: %w", o.field, domain.ErrInvalidRequest)
		}
		seen[o.field] = true
	}
	return nil
}

// Field returns the sort field name.
func (o Order) Field() string { return o.field }

// Direction returns the sort direction.
func (o Order) Direction() Direction { return o.dir }

// Descending reports whether the key sorts high to low.
func (o Order) Descending() bool { return o.dir == Desc }
