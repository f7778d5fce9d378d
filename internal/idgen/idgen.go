// Package idgen generates snowflake ids: 64-bit integers made of a 41-bit
// millisecond timestamp, a 10-bit node id and a 12-bit per-millisecond
// sequence. Ids from one Generator are strictly increasing; Generators with
// distinct node ids never collide.
package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits      = 10
	sequenceBits  = 12
	timestampBits = 41

	// MaxNodeID is the largest node id that fits the layout.
	MaxNodeID = 1<<nodeBits - 1

	maxSequence    = 1<<sequenceBits - 1
	maxTimestamp   = 1<<timestampBits - 1
	nodeShift      = sequenceBits
	timestampShift = sequenceBits + nodeBits
)

// DefaultEpoch is the Twitter snowflake epoch (2010-11-04T01:42:54.657Z).
var DefaultEpoch = time.UnixMilli(1288834974657)

var (
	// ErrClockMovedBackwards is returned instead of an id that could repeat or
	// go out of order. Callers may retry once the clock has caught up.
	ErrClockMovedBackwards = errors.New("idgen: clock moved backwards")
	// ErrInvalidNodeID signals a node id outside 0..MaxNodeID.
	ErrInvalidNodeID = errors.New("idgen: node id out of range")
	// ErrTimestampOverflow signals a clock before the epoch or past the 41-bit range.
	ErrTimestampOverflow = errors.New("idgen: timestamp out of range")
)

// Option configures a Generator.
type Option func(*Generator)

// WithEpoch sets the epoch timestamps are counted from.
func WithEpoch(epoch time.Time) Option {
	return func(g *Generator) { g.epoch = epoch.UnixMilli() }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSleep replaces the function used to wait out an exhausted millisecond.
func WithSleep(sleep func(time.Duration)) Option {
	return func(g *Generator) { g.sleep = sleep }
}

// Generator is safe for concurrent use. Callers are serialized by one mutex.
type Generator struct {
	mu            sync.Mutex
	node          int64
	epoch         int64
	lastTimestamp int64
	sequence      int64

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a Generator for nodeID, which must be unique among all
// producers writing to the same document store.
func New(nodeID int, opts ...Option) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("%w: %d (want 0..%d)", ErrInvalidNodeID, nodeID, MaxNodeID)
	}
	g := &Generator{
		node:          int64(nodeID),
		epoch:         DefaultEpoch.UnixMilli(),
		lastTimestamp: -1,
		now:           time.Now,
		sleep:         time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NodeID returns the configured node id.
func (g *Generator) NodeID() int { return int(g.node) }

// NextID returns the next id as a decimal string.
func (g *Generator) NextID() (string, error) {
	id, err := g.Next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// Next returns the next id.
func (g *Generator) Next() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts, err := g.elapsed()
	if err != nil {
		return 0, err
	}

	switch {
	case ts < g.lastTimestamp:
		return 0, fmt.Errorf("%w: %dms behind last issued id", ErrClockMovedBackwards, g.lastTimestamp-ts)
	case ts == g.lastTimestamp:
		seq := (g.sequence + 1) & maxSequence
		if seq == 0 {
			if ts, err = g.waitNextMillis(); err != nil {
				return 0, err
			}
		}
		g.sequence = seq
	default:
		g.sequence = 0
	}

	g.lastTimestamp = ts
	return ts<<timestampShift | g.node<<nodeShift | g.sequence, nil
}

// waitNextMillis blocks until the clock passes lastTimestamp. The wait is at
// most one millisecond on a monotonic clock; a clock stepping backwards
// during the wait aborts it.
func (g *Generator) waitNextMillis() (int64, error) {
	for {
		next := time.UnixMilli(g.epoch + g.lastTimestamp + 1)
		if d := next.Sub(g.now()); d > 0 {
			g.sleep(d)
		}
		ts, err := g.elapsed()
		if err != nil {
			return 0, err
		}
		if ts > g.lastTimestamp {
			return ts, nil
		}
		if ts < g.lastTimestamp {
			return 0, fmt.Errorf("%w: %dms behind last issued id", ErrClockMovedBackwards, g.lastTimestamp-ts)
		}
	}
}

func (g *Generator) elapsed() (int64, error) {
	ms := g.now().UnixMilli() - g.epoch
	if ms < 0 || ms > maxTimestamp {
		return 0, fmt.Errorf("%w: %dms since epoch", ErrTimestampOverflow, ms)
	}
	return ms, nil
}

// Parts is a decoded id.
type Parts struct {
	Time     time.Time
	NodeID   int
	Sequence int
}

// Decode splits an id produced by g into its components.
func (g *Generator) Decode(id int64) Parts {
	return Parts{
		Time:     time.UnixMilli(g.epoch + id>>timestampShift),
		NodeID:   int(id >> nodeShift & MaxNodeID),
		Sequence: int(id & maxSequence),
	}
}
