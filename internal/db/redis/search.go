package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
)

// aggregateDocField is the alias FT.AGGREGATE loads the whole JSON under.
const aggregateDocField = "__doc"

// Count returns the number of matches via FT.SEARCH with LIMIT 0 0.
func (s *Store) Count(ctx context.Context, q *db.CountQuery) (int64, error) {
	args := []string{s.indexName(q.Namespace), buildQuery(q.Filter), "LIMIT", "0", "0", "DIALECT", "2"}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: fmt.Errorf("parse count: %w", err)}
	}
	return total, nil
}

// Search returns one window of matches. A single sort key runs FT.SEARCH
// SORTBY; several keys need FT.AGGREGATE, which sorts on multiple fields.
func (s *Store) Search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	if q.Limit <= 0 || q.Offset < 0 {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("invalid window offset=%d limit=%d", q.Offset, q.Limit)}
	}

	var (
		hits []db.Hit
		err  error
	)
	if len(q.Sort) > 1 {
		hits, err = s.aggregate(ctx, q)
	} else {
		hits, err = s.search(ctx, q)
	}
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}
	return hits, nil
}

func (s *Store) search(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	args := []string{s.indexName(q.Namespace), buildQuery(q.Filter)}
	if len(q.Sort) == 1 {
		args = append(args, "SORTBY", q.Sort[0].Field(), string(q.Sort[0].Direction()))
	}
	args = append(args,
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, err
	}
	return s.parseSearchResult(q.Namespace, raw)
}

func (s *Store) aggregate(ctx context.Context, q *db.SearchQuery) ([]db.Hit, error) {
	args := []string{s.indexName(q.Namespace), buildQuery(q.Filter)}
	args = append(args, buildAggregateArgs(q.Sort, q.Offset, q.Limit)...)

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, err
	}
	return parseAggregateResult(raw)
}

func buildAggregateArgs(orders []order.Order, offset, limit int) []string {
	load := []string{"$", "AS", aggregateDocField}
	by := make([]string, 0, 2*len(orders))
	for _, o := range orders {
		load = append(load, "@"+o.Field())
		by = append(by, "@"+o.Field(), string(o.Direction()))
	}

	args := make([]string, 0, len(load)+len(by)+9)
	args = append(args, "LOAD", strconv.Itoa(len(load)))
	args = append(args, load...)
	args = append(args, "SORTBY", strconv.Itoa(len(by)))
	args = append(args, by...)
	args = append(args,
		"LIMIT", strconv.Itoa(offset), strconv.Itoa(limit),
		"DIALECT", "2",
	)
	return args
}

// --- Result parsing ---

// parseSearchResult reads the 2-stride FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...] where fields carry "$".
func (s *Store) parseSearchResult(ns db.Namespace, raw []rueidis.RedisMessage) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := raw[0].AsInt64(); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		id, err := s.hitID(ns, key)
		if err != nil {
			continue
		}

		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		source, ok := parseFieldPairs(fields)["$"]
		if !ok {
			continue
		}

		hits = append(hits, db.Hit{ID: id, Source: []byte(source)})
	}
	return hits, nil
}

// parseAggregateResult reads [total, row1, row2, ...]. Aggregate rows carry
// no key, so the id comes from the stored document.
func parseAggregateResult(raw []rueidis.RedisMessage) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if _, err := raw[0].AsInt64(); err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	hits := make([]db.Hit, 0, len(raw)-1)
	for _, row := range raw[1:] {
		fields, err := row.ToArray()
		if err != nil {
			continue
		}
		source, ok := parseFieldPairs(fields)[aggregateDocField]
		if !ok {
			continue
		}
		doc, err := document.Decode([]byte(source))
		if err != nil {
			continue
		}
		id, ok := doc.ID()
		if !ok {
			continue
		}
		hits = append(hits, db.Hit{ID: id, Source: []byte(source)})
	}
	return hits, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Filter building ---

// buildQuery translates a filter.Expression into an FT query string.
// Match and wildcard conditions target TAG attributes.
func buildQuery(expr filter.Expression) string {
	if expr.IsEmpty() {
		return "*"
	}

	var parts []string

	for _, cond := range expr.Must() {
		parts = append(parts, buildCondition(cond))
	}

	if shouldParts := buildShouldGroup(expr.Should()); shouldParts != "" {
		parts = append(parts, shouldParts)
	}

	for _, cond := range expr.MustNot() {
		parts = append(parts, "-"+buildCondition(cond))
	}

	return strings.Join(parts, " ")
}

func buildCondition(cond filter.Condition) string {
	switch {
	case cond.IsMatch():
		return buildTagFilter(cond.Key(), cond.Match())
	case cond.IsWildcard():
		return buildWildcardFilter(cond.Key(), cond.Wildcard())
	case cond.IsRange():
		return buildNumericFilter(cond.Key(), *cond.Range())
	}
	return ""
}

func buildShouldGroup(conditions []filter.Condition) string {
	if len(conditions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		parts = append(parts, buildCondition(cond))
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

func buildWildcardFilter(key, pattern string) string {
	return fmt.Sprintf("@%s:{w'%s'}", key, wildcardEscaper.Replace(pattern))
}

func buildNumericFilter(key string, r filter.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%g", *r.GT())
	} else if r.GTE() != nil {
		minBound = fmt.Sprintf("%g", *r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%g", *r.LT())
	} else if r.LTE() != nil {
		maxBound = fmt.Sprintf("%g", *r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	" ", "\\ ",
)

// Inside w'...' only the quote and the escape character itself are special.
var wildcardEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
)
