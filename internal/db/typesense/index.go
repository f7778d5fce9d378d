package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/typesense/typesense-go/v2/typesense/api"

	"github.com/kailas-cloud/docgate/internal/db"
)

// CreateIndex creates the namespace collection from a Typesense collection
// schema. The name is always the namespace collection; an empty schema or
// one without fields uses auto schema detection.
func (s *Store) CreateIndex(ctx context.Context, ns db.Namespace, schema []byte) error {
	cs, err := decodeSchema(schema)
	if err != nil {
		return err
	}
	cs.Name = s.collection(ns)

	if _, err := s.client.Collections().Create(ctx, cs); err != nil {
		if httpStatus(err) == http.StatusConflict {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

func decodeSchema(schema []byte) (*api.CollectionSchema, error) {
	cs := &api.CollectionSchema{}
	if len(bytes.TrimSpace(schema)) > 0 {
		if err := json.Unmarshal(schema, cs); err != nil {
			return nil, fmt.Errorf("parse schema: %w: %w", err, db.ErrInvalidSchema)
		}
	}
	if len(cs.Fields) == 0 {
		cs.Fields = []api.Field{{Name: ".*", Type: "auto"}}
	}
	return cs, nil
}
