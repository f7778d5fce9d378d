// Package memory is an in-process db.Backend. It evaluates filters and sort
// orders the same way the search engine adapters translate them, which makes
// it the backend of choice for tests and single-node local runs.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// Compile-time check: Store implements db.Conn.
var _ db.Conn = (*Store)(nil)

type collection struct {
	schema []byte
	ids    []string // insertion order
	docs   map[string][]byte
}

// Store keeps documents per namespace in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op; the data stays readable.
func (s *Store) Close() {}

// CreateIndex records the schema. Writes to an unknown namespace create it
// implicitly, as search engines auto-create indexes on first write. Reads
// from a namespace that was never created or written fail with
// db.ErrIndexNotFound.
func (s *Store) CreateIndex(_ context.Context, ns db.Namespace, schema []byte) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if !json.Valid(schema) {
		return fmt.Errorf("schema for %s is not valid JSON: %w", ns, db.ErrInvalidSchema)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[ns.String()]
	if ok && c.schema != nil {
		return db.ErrIndexExists
	}
	if !ok {
		c = newCollection()
		s.collections[ns.String()] = c
	}
	c.schema = slices.Clone(schema)
	return nil
}

// IndexDocument stores or replaces the document under id.
func (s *Store) IndexDocument(_ context.Context, ns db.Namespace, id string, doc []byte, _ bool) error {
	if !json.Valid(doc) {
		return &db.Error{Op: db.OpIndexDocument, Err: fmt.Errorf("document %q is not valid JSON", id)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collectionLocked(ns).put(id, slices.Clone(doc))
	return nil
}

// DeleteDocument removes the document and reports whether it existed.
func (s *Store) DeleteDocument(_ context.Context, ns db.Namespace, id string, _ bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[ns.String()]
	if !ok {
		return false, nil
	}
	return c.remove(id), nil
}

// UpdateDocument merges top-level fields into the stored document.
func (s *Store) UpdateDocument(_ context.Context, ns db.Namespace, id string, fields []byte, _ bool) error {
	patch, err := document.Decode(fields)
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[ns.String()]
	if !ok {
		return db.ErrDocumentNotFound
	}
	raw, ok := c.docs[id]
	if !ok {
		return db.ErrDocumentNotFound
	}
	current, err := document.Decode(raw)
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	maps.Copy(current, patch)
	merged, err := current.Encode()
	if err != nil {
		return &db.Error{Op: db.OpUpdateDocument, Err: err}
	}
	c.put(id, merged)
	return nil
}

// Get returns the raw stored document.
func (s *Store) Get(ns db.Namespace, id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[ns.String()]
	if !ok {
		return nil, false
	}
	doc, ok := c.docs[id]
	return slices.Clone(doc), ok
}

// Len returns the number of documents in ns.
func (s *Store) Len(ns db.Namespace) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[ns.String()]; ok {
		return len(c.docs)
	}
	return 0
}

// Count returns the number of documents matching the filter.
func (s *Store) Count(_ context.Context, q *db.CountQuery) (int64, error) {
	hits, err := s.match(q.Namespace, q.Filter)
	if errors.Is(err, db.ErrIndexNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	return int64(len(hits)), nil
}

// Search returns the requested window of matches in sort order.
func (s *Store) Search(_ context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	if q.Limit <= 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("limit must be positive, got %d", q.Limit)}
	}
	if q.Offset < 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("offset must be >= 0, got %d", q.Offset)}
	}

	hits, err := s.match(q.Namespace, q.Filter)
	if errors.Is(err, db.ErrIndexNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	if len(q.Sort) > 0 {
		slices.SortStableFunc(hits, func(a, b matched) int { return compareDocs(a.doc, b.doc, q.Sort) })
	}

	if q.Offset >= len(hits) {
		return []db.Hit{}, nil
	}
	end := min(q.Offset+q.Limit, len(hits))

	out := make([]db.Hit, 0, end-q.Offset)
	for _, h := range hits[q.Offset:end] {
		out = append(out, db.Hit{ID: h.id, Source: h.raw})
	}
	return out, nil
}

type matched struct {
	id  string
	raw []byte
	doc document.Document
}

func (s *Store) match(ns db.Namespace, expr filter.Expression) ([]matched, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[ns.String()]
	if !ok {
		return nil, db.ErrIndexNotFound
	}

	var out []matched
	for _, id := range c.ids {
		raw := c.docs[id]
		doc, err := document.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("stored document %q: %w", id, err)
		}
		ok, err := matches(doc, expr)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, matched{id: id, raw: slices.Clone(raw), doc: doc})
		}
	}
	return out, nil
}

func (s *Store) collectionLocked(ns db.Namespace) *collection {
	c, ok := s.collections[ns.String()]
	if !ok {
		c = newCollection()
		s.collections[ns.String()] = c
	}
	return c
}

func newCollection() *collection {
	return &collection{docs: make(map[string][]byte)}
}

func (c *collection) put(id string, doc []byte) {
	if _, ok := c.docs[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.docs[id] = doc
}

func (c *collection) remove(id string) bool {
	if _, ok := c.docs[id]; !ok {
		return false
	}
	delete(c.docs, id)
	if i := slices.Index(c.ids, id); i >= 0 {
		c.ids = slices.Delete(c.ids, i, i+1)
	}
	return true
}

// --- Filter evaluation ---

func matches(doc document.Document, expr filter.Expression) (bool, error) {
	for _, c := range expr.Must() {
		ok, err := matchCondition(doc, c)
		if err != nil || !ok {
			return false, err
		}
	}
	if should := expr.Should(); len(should) > 0 {
		hit := false
		for _, c := range should {
			ok, err := matchCondition(doc, c)
			if err != nil {
				return false, err
			}
			if ok {
				hit = true
				break
			}
		}
		if !hit {
			return false, nil
		}
	}
	for _, c := range expr.MustNot() {
		ok, err := matchCondition(doc, c)
		if err != nil || ok {
			return false, err
		}
	}
	return true, nil
}

func matchCondition(doc document.Document, c filter.Condition) (bool, error) {
	values := lookup(doc, c.Key())
	switch {
	case c.IsMatch():
		for _, v := range values {
			if s, ok := scalarString(v); ok && s == c.Match() {
				return true, nil
			}
		}
	case c.IsRange():
		for _, v := range values {
			if f, ok := number(v); ok && c.Range().Contains(f) {
				return true, nil
			}
		}
	case c.IsWildcard():
		re, err := wildcardRegexp(c.Wildcard())
		if err != nil {
			return false, err
		}
		for _, v := range values {
			if s, ok := scalarString(v); ok && re.MatchString(s) {
				return true, nil
			}
		}
	}
	return false, nil
}

// lookup resolves a dotted path; arrays contribute each element.
func lookup(doc document.Document, key string) []any {
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	if arr, ok := cur.([]any); ok {
		return arr
	}
	return []any{cur}
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var wildcardCache sync.Map

func wildcardRegexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := wildcardCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("wildcard %q: %w", pattern, err)
	}
	wildcardCache.Store(pattern, re)
	return re, nil
}

// --- Sorting ---

// compareDocs orders by each key in priority order. Missing values sort
// last regardless of direction; numbers sort before strings.
func compareDocs(a, b document.Document, orders []order.Order) int {
	for _, o := range orders {
		av, aok := sortValue(a, o.Field())
		bv, bok := sortValue(b, o.Field())
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return 1
		case !bok:
			return -1
		}
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if o.Descending() {
			return -c
		}
		return c
	}
	return 0
}

func sortValue(doc document.Document, key string) (any, bool) {
	values := lookup(doc, key)
	if len(values) == 0 || values[0] == nil {
		return nil, false
	}
	return values[0], true
}

func compareValues(a, b any) int {
	af, aNum := number(a)
	bf, bNum := number(b)
	_, aStr := a.(string)
	_, bStr := b.(string)
	if aStr {
		aNum = false
	}
	if bStr {
		bNum = false
	}
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := scalarString(a)
	bs, _ := scalarString(b)
	return cmp.Compare(as, bs)
}
