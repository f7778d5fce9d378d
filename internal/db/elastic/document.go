package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kailas-cloud/docgate/internal/db"
)

// IndexDocument stores doc under id, replacing any previous version.
func (s *Store) IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error {
	res, err := s.es.Index(
		s.indexName(ns),
		bytes.NewReader(doc),
		s.es.Index.WithDocumentID(id),
		s.es.Index.WithRefresh(refreshParam(refresh)),
		s.es.Index.WithContext(ctx),
	)
	if err != nil {
		return &db.Error{Op: db.OpIndexDocument, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return &db.Error{Op: db.OpIndexDocument, Err: decodeError(res)}
	}
	return nil
}

// DeleteDocument removes id. A 404, for the document or the whole index,
// reports found=false.
func (s *Store) DeleteDocument(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error) {
	res, err := s.es.Delete(
		s.indexName(ns),
		id,
		s.es.Delete.WithRefresh(refreshParam(refresh)),
		s.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return false, &db.Error{Op: db.OpDeleteDocument, Err: err}
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, &db.Error{Op: db.OpDeleteDocument, Err: decodeError(res)}
	}
	return true, nil
}

// UpdateDocument sends a partial "doc" update.
func (s *Store) UpdateDocument(ctx context.Context, ns db.Namespace, id string, fields []byte, refresh bool) error {
	body, err := json.Marshal(map[string]json.RawMessage{"doc": fields})
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}

	res, err := s.es.Update(
		s.indexName(ns),
		id,
		bytes.NewReader(body),
		s.es.Update.WithRefresh(refreshParam(refresh)),
		s.es.Update.WithContext(ctx),
	)
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return db.ErrDocumentNotFound
	}
	if res.IsError() {
		return &db.Error{Op: db.OpUpdateDocument, Err: decodeError(res)}
	}
	return nil
}
