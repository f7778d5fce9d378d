package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docgate/internal/db"
)

// Compile-time check: Store implements db.Conn.
var _ db.Conn = (*Store)(nil)

// DefaultKeyPrefix namespaces every key and index the store creates.
const DefaultKeyPrefix = "docgate:"

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements db.Conn via rueidis for Redis 8+ (RedisJSON + RediSearch).
// Each namespace is a key prefix with its own FT index over JSON documents.
type Store struct {
	client rueidis.Client
	prefix string
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, prefix: keyPrefix(cfg.KeyPrefix)}, nil
}

func keyPrefix(p string) string {
	if p == "" {
		return DefaultKeyPrefix
	}
	return p
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// keyspace is the key prefix shared by all documents of ns. An untyped
// namespace uses an empty segment so its prefix never covers a typed one.
func (s *Store) keyspace(ns db.Namespace) string {
	if ns.Type == "" {
		return s.prefix + ns.Index + "::"
	}
	return s.prefix + ns.Index + ":" + ns.Type + ":"
}

func (s *Store) docKey(ns db.Namespace, id string) string {
	return s.keyspace(ns) + id
}

func (s *Store) indexName(ns db.Namespace) string {
	return s.keyspace(ns) + "idx"
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return containsIgnoreCase(re.Error(), substr)
}

// isUnknownIndex matches the messages RediSearch versions use for a missing index.
func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "no such index")
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
