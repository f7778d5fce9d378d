package filter

import (
	"fmt"

	"github.com/kailas-cloud/docgate/internal/domain"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a structured filter with must/should/must_not boolean semantics.
// The zero value matches every document.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d): %w",
			MaxConditionsPerGroup, domain.ErrInvalidRequest)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d): %w",
			MaxConditionsPerGroup, domain.ErrInvalidRequest)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d): %w",
			MaxConditionsPerGroup, domain.ErrInvalidRequest)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions. At least one must hold when non-empty.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// WithMust returns a copy of e with c appended to the must group.
func (e Expression) WithMust(c Condition) Expression {
	must := make([]Condition, 0, len(e.must)+1)
	must = append(must, e.must...)
	return Expression{must: append(must, c), should: e.should, mustNot: e.mustNot}
}

// Condition is a single filter clause: an exact match, a numeric range or a
// wildcard pattern.
type Condition struct {
	key       string
	match     string
	wildcard  string
	rangeExpr *Range
}

// NewMatch creates an exact match condition.
func NewMatch(key, match string) (Condition, error) {
	if err := validateKey(key); err != nil {
		return Condition{}, err
	}
	if match == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q: %w", key, domain.ErrInvalidRequest)
	}
	return Condition{key: key, match: match}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if err := validateKey(key); err != nil {
		return Condition{}, err
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// NewWildcard creates a pattern condition: '*' matches any run of characters,
// '?' matches exactly one.
func NewWildcard(key, pattern string) (Condition, error) {
	if err := validateKey(key); err != nil {
		return Condition{}, err
	}
	if pattern == "" {
		return Condition{}, fmt.Errorf("wildcard pattern is required for key %q: %w", key, domain.ErrInvalidRequest)
	}
	return Condition{key: key, wildcard: pattern}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Match returns the exact match value.
func (c Condition) Match() string { return c.match }

// Wildcard returns the wildcard pattern.
func (c Condition) Wildcard() string { return c.wildcard }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return c.match != "" }

// IsWildcard reports whether this is a wildcard condition.
func (c Condition) IsWildcard() bool { return c.wildcard != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// validateKey accepts field names made of letters, digits, '_', '-' and '.'
// so keys can be embedded in backend query strings without escaping.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("filter key is required: %w", domain.ErrInvalidRequest)
	}
	for _, r := range key {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != '-' && r != '.' {
			return fmt.Errorf("filter key %q contains invalid characters: %w", key, domain.ErrInvalidRequest)
		}
	}
	return nil
}

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required: %w", domain.ErrInvalidRequest)
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte: %w", domain.ErrInvalidRequest)
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte: %w", domain.ErrInvalidRequest)
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && v <= *r.gt {
		return false
	}
	if r.gte != nil && v < *r.gte {
		return false
	}
	if r.lt != nil && v >= *r.lt {
		return false
	}
	if r.lte != nil && v > *r.lte {
		return false
	}
	return true
}
