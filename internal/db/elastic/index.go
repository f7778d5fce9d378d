package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/docgate/internal/db"
)

// CreateIndex creates the namespace index. The schema is an index creation
// body; legacy typed mappings ("mappings.<type>.properties") are unwrapped.
func (s *Store) CreateIndex(ctx context.Context, ns db.Namespace, schema []byte) error {
	body, err := normalizeSchema(schema, ns.Type)
	if err != nil {
		return err
	}

	req := s.es.Indices.Create
	opts := []func(*esapi.IndicesCreateRequest){req.WithContext(ctx)}
	if len(body) > 0 {
		opts = append(opts, req.WithBody(bytes.NewReader(body)))
	}

	res, err := req(s.indexName(ns), opts...)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		apiErr := decodeError(res)
		if apiErr.is("resource_already_exists_exception", "index_already_exists_exception") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: apiErr}
	}
	return nil
}

// normalizeSchema validates the schema and rewrites a single typed mapping
// into the typeless form current clusters accept.
func normalizeSchema(schema []byte, typ string) ([]byte, error) {
	if len(bytes.TrimSpace(schema)) == 0 {
		return nil, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(schema, &body); err != nil {
		return nil, fmt.Errorf("parse schema: %w: %w", err, db.ErrInvalidSchema)
	}

	raw, ok := body["mappings"]
	if !ok {
		return schema, nil
	}
	var mappings map[string]json.RawMessage
	if err := json.Unmarshal(raw, &mappings); err != nil {
		return nil, fmt.Errorf("parse mappings: %w: %w", err, db.ErrInvalidSchema)
	}
	if _, typeless := mappings["properties"]; typeless {
		return schema, nil
	}

	typed, ok := mappings[typ]
	if !ok {
		return schema, nil
	}
	body["mappings"] = typed

	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return out, nil
}
