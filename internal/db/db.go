package db

import (
	"context"
	"fmt"
)

// Backend is the narrow contract every search engine adapter implements.
// Documents cross this boundary as JSON bytes.
type Backend interface {
	IndexManager
	DocumentWriter
	Searcher
}

// Conn is a Backend handle owned by the cluster connection cache.
type Conn interface {
	Backend
	Pinger
	Close()
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexManager creates physical indexes from engine-specific schema JSON.
type IndexManager interface {
	// CreateIndex returns ErrIndexExists when the index is already present.
	CreateIndex(ctx context.Context, ns Namespace, schema []byte) error
}

// DocumentWriter writes single documents. refresh forces the write to be
// visible to the next read.
type DocumentWriter interface {
	IndexDocument(ctx context.Context, ns Namespace, id string, doc []byte, refresh bool) error
	DeleteDocument(ctx context.Context, ns Namespace, id string, refresh bool) (found bool, err error)
	// UpdateDocument merges fields into the stored document; ErrDocumentNotFound if absent.
	UpdateDocument(ctx context.Context, ns Namespace, id string, fields []byte, refresh bool) error
}

// Searcher counts and fetches documents matching a filter.
type Searcher interface {
	Count(ctx context.Context, q *CountQuery) (int64, error)
	Search(ctx context.Context, q *SearchQuery) ([]Hit, error)
}

// Namespace is one (index, type) pair. Engines without mapping types store
// each pair in its own physical index.
type Namespace struct {
	Index string
	Type  string
}

// NewNamespace validates and creates a Namespace. Type may be empty.
func NewNamespace(index, typ string) (Namespace, error) {
	ns := Namespace{Index: index, Type: typ}
	if err := ns.Validate(); err != nil {
		return Namespace{}, err
	}
	return ns, nil
}

// Validate checks both parts are usable in index names and key prefixes.
func (n Namespace) Validate() error {
	if n.Index == "" {
		return fmt.Errorf("index name is required: %w", ErrInvalidNamespace)
	}
	if !IsValidName(n.Index) {
		return fmt.Errorf("index name %q contains invalid characters: %w", n.Index, ErrInvalidNamespace)
	}
	if n.Type != "" && !IsValidName(n.Type) {
		return fmt.Errorf("type name %q contains invalid characters: %w", n.Type, ErrInvalidNamespace)
	}
	return nil
}

// String returns the physical collection name: "index.type", or "index"
// when the type is empty.
func (n Namespace) String() string {
	if n.Type == "" {
		return n.Index
	}
	return n.Index + "." + n.Type
}
