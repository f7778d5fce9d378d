// Package instrumented decorates a db.Conn with Prometheus metrics.
package instrumented

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/metrics"
)

// Conn wraps a db.Conn and records request count and latency per operation.
type Conn struct {
	next   db.Conn
	driver string
}

// Compile-time check: Conn implements db.Conn.
var _ db.Conn = (*Conn)(nil)

// Wrap returns next decorated with metrics labelled by driver.
func Wrap(next db.Conn, driver string) *Conn {
	return &Conn{next: next, driver: driver}
}

// Unwrap returns the decorated connection.
func (c *Conn) Unwrap() db.Conn { return c.next }

func (c *Conn) observe(op string, start time.Time, err error) {
	metrics.BackendRequestDuration.WithLabelValues(c.driver, op).Observe(time.Since(start).Seconds())
	metrics.BackendRequestsTotal.WithLabelValues(c.driver, op, status(err)).Inc()
}

// status classifies an outcome. Expected sentinel outcomes are not errors.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, db.ErrIndexExists), errors.Is(err, db.ErrDocumentNotFound),
		errors.Is(err, db.ErrIndexNotFound):
		return "miss"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (c *Conn) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.next.Ping(ctx)
	c.observe(db.OpPing, start, err)
	return err
}

func (c *Conn) Close() { c.next.Close() }

func (c *Conn) CreateIndex(ctx context.Context, ns db.Namespace, schema []byte) error {
	start := time.Now()
	err := c.next.CreateIndex(ctx, ns, schema)
	c.observe(db.OpCreateIndex, start, err)
	return err
}

func (c *Conn) IndexDocument(ctx context.Context, ns db.Namespace, id string, doc []byte, refresh bool) error {
	start := time.Now()
	err := c.next.IndexDocument(ctx, ns, id, doc, refresh)
	c.observe(db.OpIndexDocument, start, err)
	return err
}

func (c *Conn) DeleteDocument(ctx context.Context, ns db.Namespace, id string, refresh bool) (bool, error) {
	start := time.Now()
	found, err := c.next.DeleteDocument(ctx, ns, id, refresh)
	c.observe(db.OpDeleteDocument, start, err)
	return found, err
}

func (c *Conn) UpdateDocument(ctx context.Context, ns db.Namespace, id string, fields []byte, refresh bool) error {
	start := time.Now()
	err := c.next.UpdateDocument(ctx, ns, id, fields, refresh)
	c.observe(db.OpUpdateDocument, start, err)
	return err
}

func (c *Conn) Count(ctx context.Context, q *db.CountQuery) (int64, error) {
	start := time.Now()
	n, err := c.next.Count(ctx, q)
	c.observe(db.OpCount, start, err)
	return n, err
}

func (c *Conn) Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	start := time.Now()
	hits, err := c.next.Search(ctx, q)
	c.observe(db.OpSearch, start, err)
	return hits, err
}
