package redis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
)

// schemaFile accepts either the native field list or Elasticsearch-style
// mappings, so the same description files can seed both engines.
type schemaFile struct {
	Fields     []schemaField              `json:"fields"`
	Mappings   map[string]json.RawMessage `json:"mappings"`
	Properties map[string]property        `json:"properties"`
}

type schemaField struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Sortable      bool   `json:"sortable"`
	CaseSensitive bool   `json:"case_sensitive"`
}

type property struct {
	Type       string              `json:"type"`
	Index      json.RawMessage     `json:"index"`
	Properties map[string]property `json:"properties"`
}

// buildDefinition translates a schema file into an FT.CREATE definition over
// the namespace keyspace. An id TAG field is always present.
func (s *Store) buildDefinition(ns db.Namespace, schema []byte) (*db.IndexDefinition, error) {
	var sf schemaFile
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &sf); err != nil {
			return nil, fmt.Errorf("parse schema: %w: %w", err, db.ErrInvalidSchema)
		}
	}

	fields := sf.Fields
	if len(fields) == 0 {
		props, err := mappingProperties(sf, ns.Type)
		if err != nil {
			return nil, err
		}
		fields = translateProperties(props)
	}

	b := db.NewIndex(s.indexName(ns)).OnJSON().Prefix(s.keyspace(ns))
	b.JSONField(document.IDField, db.IndexFieldTag).CaseSensitive().Sortable()
	for _, f := range fields {
		if f.Name == document.IDField {
			continue
		}
		typ, err := fieldType(f.Type)
		if err != nil {
			return nil, err
		}
		b.JSONField(f.Name, typ)
		if f.Sortable {
			b.Sortable()
		}
		if f.CaseSensitive {
			b.CaseSensitive()
		}
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, db.ErrInvalidSchema)
	}
	return def, nil
}

// mappingProperties finds the property map in "mappings.properties",
// "mappings.<type>.properties" or a bare top-level "properties".
func mappingProperties(sf schemaFile, typ string) (map[string]property, error) {
	if sf.Properties != nil {
		return sf.Properties, nil
	}
	if sf.Mappings == nil {
		return nil, nil
	}
	if raw, ok := sf.Mappings["properties"]; ok {
		var props map[string]property
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("parse mappings: %w: %w", err, db.ErrInvalidSchema)
		}
		return props, nil
	}
	raw, ok := sf.Mappings[typ]
	if !ok {
		// a single legacy type whose name differs from the namespace type
		if len(sf.Mappings) != 1 {
			return nil, nil
		}
		for _, v := range sf.Mappings {
			raw = v
		}
	}
	var typed struct {
		Properties map[string]property `json:"properties"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("parse mappings: %w: %w", err, db.ErrInvalidSchema)
	}
	return typed.Properties, nil
}

// translateProperties maps top-level Elasticsearch property types onto FT
// field types. Object properties are not indexed.
func translateProperties(props map[string]property) []schemaField {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]schemaField, 0, len(names))
	for _, name := range names {
		p := props[name]
		var typ string
		switch strings.ToLower(p.Type) {
		case "keyword", "boolean", "ip":
			typ = "tag"
		case "string":
			// pre-5.x strings: not_analyzed behaves like keyword
			if strings.Contains(string(p.Index), "not_analyzed") {
				typ = "tag"
			} else {
				typ = "text"
			}
		case "text":
			typ = "text"
		case "long", "integer", "short", "byte", "double", "float",
			"half_float", "scaled_float", "unsigned_long", "date":
			typ = "numeric"
		default:
			continue
		}
		out = append(out, schemaField{Name: name, Type: typ, Sortable: typ != "text"})
	}
	return out
}

func fieldType(s string) (db.IndexFieldType, error) {
	switch strings.ToLower(s) {
	case "tag":
		return db.IndexFieldTag, nil
	case "numeric":
		return db.IndexFieldNumeric, nil
	case "text":
		return db.IndexFieldText, nil
	default:
		return 0, fmt.Errorf("unknown field type %q: %w", s, db.ErrInvalidSchema)
	}
}
