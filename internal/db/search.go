package db

import (
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// CountQuery is the input for Count.
type CountQuery struct {
	Namespace Namespace
	Filter    filter.Expression
}

// SearchQuery is the input for Search: a filtered, ordered window of matches.
type SearchQuery struct {
	Namespace Namespace
	Filter    filter.Expression
	Sort      []order.Order
	Offset    int
	Limit     int
}

// Hit is a single matching document.
type Hit struct {
	ID     string
	Source []byte
}
