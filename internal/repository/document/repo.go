// Package document translates domain documents to and from the JSON bytes
// that cross the db.Backend boundary.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain"
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/document/patch"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// backend is the consumer interface for documents (ISP).
type backend interface {
	IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error
	DeleteDocument(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error)
	UpdateDocument(ctx context.Context, ns db.Namespace, id string, fields []byte, refresh bool) error
	Count(ctx context.Context, q *db.CountQuery) (int64, error)
	Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error)
}

// Repo implements usecase/document.Repository.
type Repo struct {
	backend backend
}

// New creates a document repository.
func New(b backend) *Repo {
	return &Repo{backend: b}
}

// Put writes doc under id, replacing any stored version. The key is id
// regardless of the document's own id field.
func (r *Repo) Put(ctx context.Context, ns db.Namespace, id string, doc domdoc.Document, refresh bool) error {
	if id == "" {
		return fmt.Errorf("document key is required: %w", domain.ErrInvalidDocument)
	}
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	if err := r.backend.IndexDocument(ctx, ns, id, data, refresh); err != nil {
		return fmt.Errorf("index %s/%s: %w", ns, id, err)
	}
	return nil
}

// Delete removes a document. Returns false when it did not exist.
func (r *Repo) Delete(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error) {
	found, err := r.backend.DeleteDocument(ctx, ns, id, refresh)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s/%s: %w", ns, id, err)
	}
	return found, nil
}

// Patch merges p into a stored document.
func (r *Repo) Patch(ctx context.Context, ns db.Namespace, id string, p patch.Patch, refresh bool) error {
	data, err := p.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	if err := r.backend.UpdateDocument(ctx, ns, id, data, refresh); err != nil {
		if errors.Is(err, db.ErrDocumentNotFound) || errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("update %s/%s: %w", ns, id, domain.ErrNotFound)
		}
		return fmt.Errorf("update %s/%s: %w", ns, id, err)
	}
	return nil
}

// Count returns the number of documents matching expr.
func (r *Repo) Count(ctx context.Context, ns db.Namespace, expr filter.Expression) (int64, error) {
	n, err := r.backend.Count(ctx, &db.CountQuery{Namespace: ns, Filter: expr})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", ns, translate(err))
	}
	return n, nil
}

// Find returns up to limit documents matching expr, starting at offset.
func (r *Repo) Find(
	ctx context.Context, ns db.Namespace, expr filter.Expression, orders []order.Order, offset, limit int,
) ([]domdoc.Document, error) {
	hits, err := r.backend.Search(ctx, &db.SearchQuery{
		Namespace: ns,
		Filter:    expr,
		Sort:      orders,
		Offset:    offset,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", ns, translate(err))
	}

	docs := make([]domdoc.Document, 0, len(hits))
	for _, h := range hits {
		doc, err := domdoc.Decode(h.Source)
		if err != nil {
			return nil, fmt.Errorf("search %s: hit %s: %w", ns, h.ID, err)
		}
		if _, ok := doc[domdoc.IDField]; !ok && h.ID != "" {
			doc[domdoc.IDField] = h.ID
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// translate maps backend sentinels onto domain ones, keeping the chain.
func translate(err error) error {
	switch {
	case errors.Is(err, db.ErrIndexNotFound):
		return fmt.Errorf("%w: %w", domain.ErrIndexNotFound, err)
	case errors.Is(err, db.ErrUnsupportedQuery):
		return fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	default:
		return err
	}
}
