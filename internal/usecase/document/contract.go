package document

import (
	"context"

	"github.com/kailas-cloud/docgate/internal/db"
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/document/patch"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// Repository defines the storage contract for documents.
type Repository interface {
	Put(ctx context.Context, ns db.Namespace, id string, doc domdoc.Document, refresh bool) error
	Delete(ctx context.Context, ns db.Namespace, id string, refresh bool) (found bool, err error)
	Patch(ctx context.Context, ns db.Namespace, id string, p patch.Patch, refresh bool) error
	Count(ctx context.Context, ns db.Namespace, expr filter.Expression) (int64, error)
	Find(
		ctx context.Context, ns db.Namespace, expr filter.Expression, orders []order.Order, offset, limit int,
	) ([]domdoc.Document, error)
}

// IDAllocator mints unique document ids.
type IDAllocator interface {
	NextID() (string, error)
}
