// Package elastic implements db.Conn on Elasticsearch via the official
// go-elasticsearch client. Each namespace maps to one index named
// "<prefix><index>.<type>".
package elastic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/docgate/internal/db"
)

// Compile-time check: Store implements db.Conn.
var _ db.Conn = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	// Sniff discovers the remaining cluster nodes on start.
	Sniff       bool
	IndexPrefix string
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// ErrInvalidIndexPrefix is returned for prefixes Elasticsearch would reject
// in index names.
var ErrInvalidIndexPrefix = errors.New("invalid index prefix")

// ValidateIndexPrefix checks prefix against the Elasticsearch index naming
// rules: no \ / * ? " < > | , # : or spaces, and no leading - _ or +.
func ValidateIndexPrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if strings.ContainsAny(prefix, `\/*?"<>|,#: `) {
		return fmt.Errorf("%q contains a character not allowed in index names: %w", prefix, ErrInvalidIndexPrefix)
	}
	if strings.ContainsAny(prefix[:1], "-_+") {
		return fmt.Errorf("%q must not start with '-', '_' or '+': %w", prefix, ErrInvalidIndexPrefix)
	}
	return nil
}

// Store implements db.Conn over an Elasticsearch cluster.
type Store struct {
	es        *elasticsearch.Client
	transport *http.Transport
	prefix    string
}

// NewStore creates an Elasticsearch store.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("addresses is required")
	}
	if err := ValidateIndexPrefix(cfg.IndexPrefix); err != nil {
		return nil, err
	}

	s := &Store{prefix: strings.ToLower(cfg.IndexPrefix)}

	rt := cfg.Transport
	if rt == nil {
		s.transport = http.DefaultTransport.(*http.Transport).Clone()
		rt = s.transport
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:            cfg.Addresses,
		Username:             cfg.Username,
		Password:             cfg.Password,
		DiscoverNodesOnStart: cfg.Sniff,
		Transport:            rt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	s.es = es

	return s, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	defer closeBody(res)
	if res.IsError() {
		return &db.Error{Op: db.OpPing, Err: decodeError(res)}
	}
	return nil
}

// Close releases idle connections.
func (s *Store) Close() {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
}

// indexName is lowercased: Elasticsearch rejects upper-case index names.
func (s *Store) indexName(ns db.Namespace) string {
	return s.prefix + strings.ToLower(ns.String())
}

func refreshParam(refresh bool) string {
	if refresh {
		return "true"
	}
	return "false"
}

// apiError is the error envelope Elasticsearch returns on non-2xx responses.
type apiError struct {
	Status int
	Type   string
	Reason string
}

func (e *apiError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

func decodeError(res *esapi.Response) *apiError {
	out := &apiError{Status: res.StatusCode}

	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || len(body.Error) == 0 {
		return out
	}

	var cause struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body.Error, &cause); err != nil {
		// very old clusters return the error as a plain string
		var msg string
		if json.Unmarshal(body.Error, &msg) == nil {
			out.Reason = msg
		}
		return out
	}
	out.Type = cause.Type
	out.Reason = cause.Reason
	return out
}

func (e *apiError) is(types ...string) bool {
	for _, t := range types {
		if e.Type == t {
			return true
		}
	}
	return false
}

func closeBody(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
