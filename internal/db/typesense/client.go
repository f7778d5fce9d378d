// Package typesense implements db.Conn on a Typesense cluster. Each
// namespace is one collection named "<prefix><index>.<type>".
package typesense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ts "github.com/typesense/typesense-go/v2/typesense"

	"github.com/kailas-cloud/docgate/internal/db"
)

// Compile-time check: Store implements db.Conn.
var _ db.Conn = (*Store)(nil)

const defaultTimeout = 5 * time.Second

// Config holds connection parameters for a Typesense cluster.
type Config struct {
	// Nodes are base URLs such as "http://ts-1:8108".
	Nodes            []string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

// Store implements db.Conn over a Typesense cluster.
type Store struct {
	client  *ts.Client
	prefix  string
	timeout time.Duration
}

// NewStore creates a Typesense store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("nodes is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := []ts.ClientOption{
		ts.WithServer(cfg.Nodes[0]),
		ts.WithAPIKey(cfg.APIKey),
		ts.WithConnectionTimeout(timeout),
	}
	if len(cfg.Nodes) > 1 {
		opts = append(opts, ts.WithNodes(cfg.Nodes))
	}

	return &Store{
		client:  ts.NewClient(opts...),
		prefix:  cfg.CollectionPrefix,
		timeout: timeout,
	}, nil
}

// Ping checks the cluster health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.Health(ctx, s.timeout)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	if !ok {
		return &db.Error{Op: db.OpPing, Err: errors.New("typesense is unhealthy")}
	}
	return nil
}

// Close is a no-op: the client holds no resources beyond pooled connections.
func (s *Store) Close() {}

func (s *Store) collection(ns db.Namespace) string {
	return s.prefix + ns.String()
}

func httpStatus(err error) int {
	var httpErr *ts.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

func isNotFound(err error) bool { return httpStatus(err) == http.StatusNotFound }
