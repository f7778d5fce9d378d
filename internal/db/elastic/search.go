package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// Count runs _count with the translated query.
func (s *Store) Count(ctx context.Context, q *db.CountQuery) (int64, error) {
	body, err := json.Marshal(map[string]any{"query": buildQuery(q.Filter)})
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}

	res, err := s.es.Count(
		s.es.Count.WithIndex(s.indexName(q.Namespace)),
		s.es.Count.WithBody(bytes.NewReader(body)),
		s.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	defer closeBody(res)

	if err := checkSearchResponse(res); err != nil {
		return 0, wrap(db.OpCount, err)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: fmt.Errorf("decode count: %w", err)}
	}
	return out.Count, nil
}

// Search runs _search for one from/size window.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("invalid window offset=%d limit=%d", q.Offset, q.Limit)}
	}

	body, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	res, err := s.es.Search(
		s.es.Search.WithIndex(s.indexName(q.Namespace)),
		s.es.Search.WithBody(bytes.NewReader(body)),
		s.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	defer closeBody(res)

	if err := checkSearchResponse(res); err != nil {
		return nil, wrap(db.OpSearch, err)
	}
	return parseHits(res.Body)
}

func checkSearchResponse(res *esapi.Response) error {
	if !res.IsError() {
		return nil
	}
	apiErr := decodeError(res)
	if apiErr.is("index_not_found_exception") {
		return db.ErrIndexNotFound
	}
	return apiErr
}

func wrap(op string, err error) error {
	if errors.Is(err, db.ErrIndexNotFound) {
		return err
	}
	return &db.Error{Op: op, Err: err}
}

func parseHits(r io.Reader) ([]db.Hit, error) {
	var out struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("decode hits: %w", err)}
	}

	hits := make([]db.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, db.Hit{ID: h.ID, Source: []byte(h.Source)})
	}
	return hits, nil
}

// --- Query building ---

func buildSearchBody(q *db.SearchQuery) map[string]any {
	body := map[string]any{
		"query":            buildQuery(q.Filter),
		"from":             q.Offset,
		"size":             q.Limit,
		"track_total_hits": false,
	}
	if len(q.Sort) > 0 {
		body["sort"] = buildSort(q.Sort)
	}
	return body
}

func buildSort(orders []order.Order) []map[string]any {
	out := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		dir := "asc"
		if o.Descending() {
			dir = "desc"
		}
		out = append(out, map[string]any{
			o.Field(): map[string]any{"order": dir, "missing": "_last"},
		})
	}
	return out
}

// buildQuery translates a filter.Expression into a bool query. Must
// conditions go to the non-scoring filter context.
func buildQuery(expr filter.Expression) map[string]any {
	if expr.IsEmpty() {
		return map[string]any{"match_all": map[string]any{}}
	}

	b := map[string]any{}
	if must := expr.Must(); len(must) > 0 {
		b["filter"] = buildClauses(must)
	}
	if should := expr.Should(); len(should) > 0 {
		b["should"] = buildClauses(should)
		b["minimum_should_match"] = 1
	}
	if mustNot := expr.MustNot(); len(mustNot) > 0 {
		b["must_not"] = buildClauses(mustNot)
	}
	return map[string]any{"bool": b}
}

func buildClauses(conds []filter.Condition) []map[string]any {
	out := make([]map[string]any, 0, len(conds))
	for _, c := range conds {
		out = append(out, buildCondition(c))
	}
	return out
}

func buildCondition(c filter.Condition) map[string]any {
	switch {
	case c.IsMatch():
		return map[string]any{"term": map[string]any{c.Key(): c.Match()}}
	case c.IsWildcard():
		return map[string]any{"wildcard": map[string]any{c.Key(): map[string]any{"value": c.Wildcard()}}}
	case c.IsRange():
		return map[string]any{"range": map[string]any{c.Key(): buildRange(*c.Range())}}
	}
	return map[string]any{"match_all": map[string]any{}}
}

func buildRange(r filter.Range) map[string]float64 {
	out := make(map[string]float64, 2)
	if r.GT() != nil {
		out["gt"] = *r.GT()
	}
	if r.GTE() != nil {
		out["gte"] = *r.GTE()
	}
	if r.LT() != nil {
		out["lt"] = *r.LT()
	}
	if r.LTE() != nil {
		out["lte"] = *r.LTE()
	}
	return out
}
