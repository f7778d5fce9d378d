package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/metrics"
)

// Connector opens a backend connection for a resolved descriptor.
type Connector interface {
	Connect(ctx context.Context, d Descriptor) (db.Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, d Descriptor) (db.Conn, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context, d Descriptor) (db.Conn, error) {
	return f(ctx, d)
}

// Resolver looks up host addresses. net.DefaultResolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Cache hands out one shared connection per cluster name. The first
// successful connection wins for the life of the cache: later calls with
// the same name get it back regardless of the nodes they carry. Failed
// connects are not cached.
type Cache struct {
	mu    sync.RWMutex
	conns map[string]db.Conn
	group singleflight.Group

	connector Connector
	resolver  Resolver
	logger    *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithResolver overrides the host resolver.
func WithResolver(r Resolver) Option {
	return func(c *Cache) { c.resolver = r }
}

// NewCache creates an empty cache.
func NewCache(connector Connector, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		conns:     make(map[string]db.Conn),
		connector: connector,
		resolver:  net.DefaultResolver,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the connection for d.Name, connecting on first use.
func (c *Cache) Get(ctx context.Context, d Descriptor) (db.Conn, error) {
	if conn, ok := c.lookup(d.Name); ok {
		return conn, nil
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	v, err, _ := c.group.Do(d.Name, func() (any, error) {
		if conn, ok := c.lookup(d.Name); ok {
			return conn, nil
		}

		// Waiters share this flight, so one caller's cancellation must not
		// fail the others.
		flightCtx := context.WithoutCancel(ctx)
		resolved := c.resolve(flightCtx, d)
		conn, err := c.connector.Connect(flightCtx, resolved)
		if err != nil {
			metrics.ClusterConnectsTotal.WithLabelValues(d.Driver, "error").Inc()
			return nil, fmt.Errorf("connect cluster %q: %w", d.Name, err)
		}
		metrics.ClusterConnectsTotal.WithLabelValues(d.Driver, "ok").Inc()

		c.mu.Lock()
		c.conns[d.Name] = conn
		n := len(c.conns)
		c.mu.Unlock()
		metrics.ClusterConnections.Set(float64(n))

		c.logger.Info("cluster connected",
			zap.String("cluster", d.Name),
			zap.String("driver", d.Driver),
			zap.Strings("addrs", resolved.Addrs()),
		)
		return conn, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(db.Conn), nil
}

func (c *Cache) lookup(name string) (db.Conn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[name]
	return conn, ok
}

// resolve drops nodes whose host does not resolve. Surviving nodes keep their
// configured host name so TLS verification sees the name the certificate was
// issued for. When none resolve, d is returned unchanged so the client can
// keep retrying the configured hosts.
func (c *Cache) resolve(ctx context.Context, d Descriptor) Descriptor {
	if len(d.Nodes) == 0 {
		return d
	}

	nodes := make([]Node, 0, len(d.Nodes))
	ports := make([]int, 0, len(d.Nodes))
	for i, n := range d.Nodes {
		addrs, err := c.resolver.LookupHost(ctx, n.Host)
		if err != nil || len(addrs) == 0 {
			c.logger.Warn("cluster node unresolvable, skipping",
				zap.String("cluster", d.Name),
				zap.String("host", n.Host),
				zap.Int("transport_port", n.TransportPort),
				zap.Error(err),
			)
			continue
		}
		c.logger.Debug("cluster node resolved",
			zap.String("cluster", d.Name),
			zap.String("host", n.Host),
			zap.String("addr", addrs[0]),
		)
		nodes = append(nodes, n)
		ports = append(ports, d.port(i))
	}

	if len(nodes) == 0 {
		c.logger.Warn("no cluster node resolved, using configured hosts",
			zap.String("cluster", d.Name),
		)
		return d
	}
	return d.withNodes(nodes, ports)
}

// Len returns the number of cached connections.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conns)
}

// Close closes every cached connection and empties the cache.
func (c *Cache) Close() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]db.Conn)
	c.mu.Unlock()

	for name, conn := range conns {
		conn.Close()
		c.logger.Info("cluster connection closed", zap.String("cluster", name))
	}
	metrics.ClusterConnections.Set(0)
}
