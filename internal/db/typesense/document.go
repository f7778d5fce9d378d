package typesense

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
)

// IndexDocument upserts doc. Typesense requires a string id, so the
// document id field is rewritten to id. Writes are visible on return.
func (s *Store) IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, _ bool) error {
	d, err := document.Decode(doc)
	if err != nil {
		return &db.Error{Op: db.OpIndexDocument, Err: err}
	}
	d[document.IDField] = id

	if _, err := s.client.Collection(s.collection(ns)).Documents().Upsert(ctx, map[string]any(d)); err != nil {
		return &db.Error{Op: db.OpIndexDocument, Err: err}
	}
	return nil
}

// DeleteDocument removes id; a 404 reports found=false.
func (s *Store) DeleteDocument(ctx context.Context, ns db.Namespace, id string, _ bool) (bool, error) {
	if _, err := s.client.Collection(s.collection(ns)).Document(id).Delete(ctx); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpDeleteDocument, Err: err}
	}
	return true, nil
}

// UpdateDocument applies a partial update.
func (s *Store) UpdateDocument(ctx context.Context, ns db.Namespace, id string, fields []byte, _ bool) error {
	var patch map[string]any
	if err := json.Unmarshal(fields, &patch); err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: fmt.Errorf("decode fields: %w", err)}
	}

	if _, err := s.client.Collection(s.collection(ns)).Document(id).Update(ctx, patch); err != nil {
		if isNotFound(err) {
			return db.ErrDocumentNotFound
		}
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	return nil
}
