package typesense

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

const (
	// maxPerPage is the largest page Typesense serves.
	maxPerPage = 250
	// maxSortKeys is the sort_by limit.
	maxSortKeys = 3
)

// Count runs a wildcard search with per_page=0 and returns "found".
func (s *Store) Count(ctx context.Context, q *db.CountQuery) (int64, error) {
	params, err := searchParams(q.Filter, nil)
	if err != nil {
		return 0, err
	}
	params.PerPage = pointer.Int(0)

	res, err := s.client.Collection(s.collection(q.Namespace)).Documents().Search(ctx, params)
	if err != nil {
		if isNotFound(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	if res.Found == nil {
		return 0, nil
	}
	return int64(*res.Found), nil
}

// Search maps the offset window onto page/per_page. Windows that do not
// align with a page are served from consecutive maxPerPage pages.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("invalid window offset=%d limit=%d", q.Offset, q.Limit)}
	}
	params, err := searchParams(q.Filter, q.Sort)
	if err != nil {
		return nil, err
	}

	w := pageWindow(q.Offset, q.Limit)
	params.PerPage = pointer.Int(w.perPage)

	docs := s.client.Collection(s.collection(q.Namespace)).Documents()
	hits := make([]db.Hit, 0, q.Limit)
	for page := w.first; page <= w.last; page++ {
		params.Page = pointer.Int(page)
		res, err := docs.Search(ctx, params)
		if err != nil {
			if isNotFound(err) {
				return nil, db.ErrIndexNotFound
			}
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		batch, err := parseHits(res)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		hits = append(hits, batch...)
		if len(batch) < w.perPage {
			break
		}
	}

	if w.skip >= len(hits) {
		return []db.Hit{}, nil
	}
	hits = hits[w.skip:]
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

type window struct {
	perPage     int
	first, last int
	skip        int
}

func pageWindow(offset, limit int) window {
	if limit <= maxPerPage && offset%limit == 0 {
		p := offset/limit + 1
		return window{perPage: limit, first: p, last: p}
	}
	return window{
		perPage: maxPerPage,
		first:   offset/maxPerPage + 1,
		last:    (offset+limit-1)/maxPerPage + 1,
		skip:    offset % maxPerPage,
	}
}

func searchParams(expr filter.Expression, orders []order.Order) (*api.SearchCollectionParams, error) {
	params := &api.SearchCollectionParams{Q: pointer.String("*")}

	filterBy, err := buildFilter(expr)
	if err != nil {
		return nil, err
	}
	if filterBy != "" {
		params.FilterBy = pointer.String(filterBy)
	}

	sortBy, err := buildSort(orders)
	if err != nil {
		return nil, err
	}
	if sortBy != "" {
		params.SortBy = pointer.String(sortBy)
	}
	return params, nil
}

func parseHits(res *api.SearchResult) ([]db.Hit, error) {
	if res.Hits == nil {
		return nil, nil
	}
	hits := make([]db.Hit, 0, len(*res.Hits))
	for _, h := range *res.Hits {
		if h.Document == nil {
			continue
		}
		doc := *h.Document
		id, ok := document.IDString(doc[document.IDField])
		if !ok {
			continue
		}
		source, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode hit %s: %w", id, err)
		}
		hits = append(hits, db.Hit{ID: id, Source: source})
	}
	return hits, nil
}

// --- Query building ---

func buildSort(orders []order.Order) (string, error) {
	if len(orders) > maxSortKeys {
		return "", fmt.Errorf("typesense sorts on at most %d fields: %w", maxSortKeys, db.ErrUnsupportedQuery)
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		dir := "asc"
		if o.Descending() {
			dir = "desc"
		}
		parts = append(parts, o.Field()+":"+dir)
	}
	return strings.Join(parts, ","), nil
}

// buildFilter translates an expression into filter_by syntax. Wildcards are
// limited to a single trailing '*' (prefix match) and cannot be negated.
func buildFilter(expr filter.Expression) (string, error) {
	if expr.IsEmpty() {
		return "", nil
	}

	var parts []string
	for _, c := range expr.Must() {
		p, err := buildCondition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}

	if should := expr.Should(); len(should) > 0 {
		group := make([]string, 0, len(should))
		for _, c := range should {
			p, err := buildCondition(c)
			if err != nil {
				return "", err
			}
			group = append(group, p)
		}
		parts = append(parts, "("+strings.Join(group, " || ")+")")
	}

	for _, c := range expr.MustNot() {
		p, err := buildNegation(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}

	return strings.Join(parts, " && "), nil
}

func buildCondition(c filter.Condition) (string, error) {
	switch {
	case c.IsMatch():
		return c.Key() + ":=" + quote(c.Match()), nil
	case c.IsWildcard():
		prefix, ok := prefixPattern(c.Wildcard())
		if !ok {
			return "", fmt.Errorf("wildcard %q: only trailing '*' is supported: %w", c.Wildcard(), db.ErrUnsupportedQuery)
		}
		return c.Key() + ":" + prefix + "*", nil
	case c.IsRange():
		return buildRange(c.Key(), *c.Range()), nil
	}
	return "", fmt.Errorf("empty condition: %w", db.ErrUnsupportedQuery)
}

func buildNegation(c filter.Condition) (string, error) {
	switch {
	case c.IsMatch():
		return c.Key() + ":!=" + quote(c.Match()), nil
	case c.IsRange():
		// not(a && b) == (not a || not b)
		r := *c.Range()
		var alts []string
		if r.GT() != nil {
			alts = append(alts, c.Key()+":<="+num(*r.GT()))
		}
		if r.GTE() != nil {
			alts = append(alts, c.Key()+":<"+num(*r.GTE()))
		}
		if r.LT() != nil {
			alts = append(alts, c.Key()+":>="+num(*r.LT()))
		}
		if r.LTE() != nil {
			alts = append(alts, c.Key()+":>"+num(*r.LTE()))
		}
		if len(alts) == 1 {
			return alts[0], nil
		}
		return "(" + strings.Join(alts, " || ") + ")", nil
	}
	return "", fmt.Errorf("negated wildcard: %w", db.ErrUnsupportedQuery)
}

func buildRange(key string, r filter.Range) string {
	var parts []string
	if r.GT() != nil {
		parts = append(parts, key+":>"+num(*r.GT()))
	}
	if r.GTE() != nil {
		parts = append(parts, key+":>="+num(*r.GTE()))
	}
	if r.LT() != nil {
		parts = append(parts, key+":<"+num(*r.LT()))
	}
	if r.LTE() != nil {
		parts = append(parts, key+":<="+num(*r.LTE()))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " && ") + ")"
}

// prefixPattern accepts "abc*" where the prefix needs no quoting.
func prefixPattern(p string) (string, bool) {
	prefix, ok := strings.CutSuffix(p, "*")
	if !ok || prefix == "" {
		return "", false
	}
	for _, r := range prefix {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != '-' && r != '.' {
			return "", false
		}
	}
	return prefix, true
}

// quote wraps values in backticks so commas and operators are literal.
func quote(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "") + "`"
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
