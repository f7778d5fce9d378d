// Package driver opens backend connections by driver name.
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/cluster"
	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/db/elastic"
	"github.com/kailas-cloud/docgate/internal/db/instrumented"
	"github.com/kailas-cloud/docgate/internal/db/memory"
	"github.com/kailas-cloud/docgate/internal/db/redis"
	"github.com/kailas-cloud/docgate/internal/db/typesense"
)

// Supported driver names.
const (
	Redis         = "redis"
	Elastic       = "elastic"
	Elasticsearch = "elasticsearch"
	Typesense     = "typesense"
	Memory        = "memory"
)

// ErrUnknownDriver is returned for driver names Open does not recognise.
var ErrUnknownDriver = errors.New("unknown driver")

// Supported reports whether name is a known driver.
func Supported(name string) bool {
	switch name {
	case Redis, Elastic, Elasticsearch, Typesense, Memory:
		return true
	}
	return false
}

// Open builds the raw backend connection for d. Clients connect lazily
// except Redis, which dials on construction.
func Open(d cluster.Descriptor) (db.Conn, error) {
	switch d.Driver {
	case Redis:
		prefix := d.KeyPrefix
		if prefix == "" {
			prefix = redis.DefaultKeyPrefix
		}
		return redis.NewStore(redis.Config{
			Addrs:     d.Addrs(),
			Username:  d.Username,
			Password:  d.Password,
			KeyPrefix: prefix,
		})
	case Elastic, Elasticsearch:
		return elastic.NewStore(elastic.Config{
			Addresses:   d.URLs(),
			Username:    d.Username,
			Password:    d.Password,
			Sniff:       true,
			IndexPrefix: d.KeyPrefix,
		})
	case Typesense:
		return typesense.NewStore(typesense.Config{
			Nodes:            d.URLs(),
			APIKey:           d.APIKey,
			CollectionPrefix: d.KeyPrefix,
		})
	case Memory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%q: %w", d.Driver, ErrUnknownDriver)
	}
}

// Connector opens connections for the cluster cache. Every connection is
// wrapped with metrics. With ReadyTimeout set, the new connection is pinged
// until it answers; a backend that stays silent is logged and still handed
// out, the client reconnects on use.
type Connector struct {
	ReadyTimeout time.Duration
	Logger       *zap.Logger
}

// Compile-time check: Connector implements cluster.Connector.
var _ cluster.Connector = (*Connector)(nil)

// Connect implements cluster.Connector.
func (c *Connector) Connect(ctx context.Context, d cluster.Descriptor) (db.Conn, error) {
	conn, err := Open(d)
	if err != nil {
		return nil, err
	}

	if c.ReadyTimeout > 0 {
		if err := WaitForReady(ctx, conn, c.ReadyTimeout); err != nil {
			c.logger().Warn("backend not ready, continuing",
				zap.String("cluster", d.Name),
				zap.String("driver", d.Driver),
				zap.Error(err),
			)
		}
	}
	return instrumented.Wrap(conn, d.Driver), nil
}

func (c *Connector) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// WaitForReady polls Ping until p responds or timeout expires.
func WaitForReady(ctx context.Context, p db.Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Ping(ctx); err == nil {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := p.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}
