package document

import (
	"context"

	"github.com/kailas-cloud/docgate/internal/db"
)

// mockBackend implements the consumer interface for tests.
type mockBackend struct {
	indexFn  func(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error
	deleteFn func(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error)
	updateFn func(ctx context.Context, ns db.Namespace, id string, fields []byte, refresh bool) error
	countFn  func(ctx context.Context, q *db.CountQuery) (int64, error)
	searchFn func(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error)
}

func (m *mockBackend) IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error {
	if m.indexFn != nil {
		return m.indexFn(ctx, ns, id, doc, refresh)
	}
	return nil
}

func (m *mockBackend) DeleteDocument(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ns, id, refresh)
	}
	return true, nil
}

func (m *mockBackend) UpdateDocument(
	ctx context.Context, ns db.Namespace, id string, fields []byte, refresh bool,
) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ns, id, fields, refresh)
	}
	return nil
}

func (m *mockBackend) Count(ctx context.Context, q *db.CountQuery) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, q)
	}
	return 0, nil
}

func (m *mockBackend) Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return nil, nil
}
