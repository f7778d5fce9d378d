package redis

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
)

// IndexDocument stores doc as a JSON value, replacing any previous version.
// RediSearch indexes JSON keys synchronously, so refresh needs no extra work.
func (s *Store) IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, _ bool) error {
	cmd := s.b().Arbitrary("JSON.SET").Keys(s.docKey(ns, id)).Args("$", string(doc)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpIndexDocument, Err: err}
	}
	return nil
}

// DeleteDocument removes the key and reports whether it existed.
func (s *Store) DeleteDocument(ctx context.Context, ns db.Namespace, id string, _ bool) (bool, error) {
	cmd := s.b().Del().Key(s.docKey(ns, id)).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return false, &db.Error{Op: db.OpDeleteDocument, Err: err}
	}
	return n > 0, nil
}

// UpdateDocument merges the top-level fields into the stored document.
// The write uses XX so a concurrently deleted document is not recreated.
func (s *Store) UpdateDocument(ctx context.Context, ns db.Namespace, id string, fields []byte, _ bool) error {
	key := s.docKey(ns, id)

	raw, err := s.getJSON(ctx, key)
	if err != nil {
		return err
	}
	stored, err := document.Decode(raw)
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	patch, err := document.Decode(fields)
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	maps.Copy(stored, patch)

	merged, err := stored.Encode()
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}

	cmd := s.b().Arbitrary("JSON.SET").Keys(key).Args("$", string(merged), "XX").Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return db.ErrDocumentNotFound
		}
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	return nil
}

// Get returns the stored JSON for id.
func (s *Store) Get(ctx context.Context, ns db.Namespace, id string) ([]byte, error) {
	return s.getJSON(ctx, s.docKey(ns, id))
}

func (s *Store) getJSON(ctx context.Context, key string) ([]byte, error) {
	cmd := s.b().Arbitrary("JSON.GET").Keys(key).Build()
	raw, err := s.do(ctx, cmd).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, db.ErrDocumentNotFound
		}
		return nil, &db.Error{Op: db.OpGetDocument, Err: err}
	}
	if raw == "" {
		return nil, db.ErrDocumentNotFound
	}
	return []byte(raw), nil
}

// hitID recovers the document id from a key in ns.
func (s *Store) hitID(ns db.Namespace, key string) (string, error) {
	ks := s.keyspace(ns)
	id, ok := strings.CutPrefix(key, ks)
	if !ok || id == "" {
		return "", fmt.Errorf("key %q outside keyspace %q", key, ks)
	}
	return id, nil
}
