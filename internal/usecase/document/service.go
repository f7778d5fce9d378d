package document

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain"
	"github.com/kailas-cloud/docgate/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/document/patch"
	"github.com/kailas-cloud/docgate/internal/domain/page"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
	"github.com/kailas-cloud/docgate/internal/idgen"
	"github.com/kailas-cloud/docgate/internal/metrics"
)

// UpdatePolicy decides what Update does with a failed write.
type UpdatePolicy string

// Update policies.
const (
	// UpdateBestEffort logs a failed update and reports success.
	UpdateBestEffort UpdatePolicy = "best_effort"
	// UpdateStrict returns update failures to the caller.
	UpdateStrict UpdatePolicy = "strict"
)

// IDMatch selects how QueryByID matches the id field.
type IDMatch string

// Id match modes.
const (
	// IDMatchWildcard treats the id as a wildcard pattern.
	IDMatchWildcard IDMatch = "wildcard"
	// IDMatchExact requires the id field to equal the given id.
	IDMatchExact IDMatch = "exact"
)

// StatusOK is the status code carried by successful query results.
const StatusOK = "200"

// Status is the outcome block of a query result.
type Status struct {
	Code    string
	Message string
}

// QueryResult is a page of documents plus its metadata.
type QueryResult struct {
	PageInfo page.Info
	Results  []domdoc.Document
	Status   Status
}

// Service provides CRUD and paged queries on one namespace.
// Writes are always made visible to the next read.
type Service struct {
	repo         Repository
	ids          IDAllocator
	ns           db.Namespace
	logger       *zap.Logger
	updatePolicy UpdatePolicy
	idMatch      IDMatch
	maxBatchSize int
}

// New creates a document service bound to ns.
func New(repo Repository, ids IDAllocator, ns db.Namespace, logger *zap.Logger) *Service {
	return &Service{
		repo:         repo,
		ids:          ids,
		ns:           ns,
		logger:       logger,
		updatePolicy: UpdateBestEffort,
		idMatch:      IDMatchWildcard,
	}
}

// WithUpdatePolicy sets the update failure policy. Unknown values are ignored.
func (s *Service) WithUpdatePolicy(p UpdatePolicy) *Service {
	if p == UpdateBestEffort || p == UpdateStrict {
		s.updatePolicy = p
	}
	return s
}

// WithIDMatch sets the QueryByID matching mode. Unknown values are ignored.
func (s *Service) WithIDMatch(m IDMatch) *Service {
	if m == IDMatchWildcard || m == IDMatchExact {
		s.idMatch = m
	}
	return s
}

// WithMaxBatchSize bounds AddBatch. Zero means unbounded.
func (s *Service) WithMaxBatchSize(n int) *Service {
	if n >= 0 {
		s.maxBatchSize = n
	}
	return s
}

// For returns a service bound to ns sharing this one's collaborators and settings.
func (s *Service) For(ns db.Namespace) *Service {
	out := *s
	out.ns = ns
	return &out
}

// Namespace returns the bound namespace.
func (s *Service) Namespace() db.Namespace { return s.ns }

// Add stores doc under id. The id field is injected when doc lacks one; an
// existing id field is kept but never changes the key.
func (s *Service) Add(ctx context.Context, id string, doc domdoc.Document) error {
	if err := domdoc.ValidateID(id); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}
	return s.add(ctx, id, doc)
}

func (s *Service) add(ctx context.Context, id string, doc domdoc.Document) error {
	stored := doc.WithID(id)
	if err := s.repo.Put(ctx, s.ns, id, stored, true); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// AddBatch stores each document under a freshly minted id. Items are
// independent: a failed write is recorded and the rest continue. A failed
// id allocation stops the batch and is returned with the results so far.
func (s *Service) AddBatch(ctx context.Context, docs []domdoc.Document) ([]batch.Result, error) {
	if s.maxBatchSize > 0 && len(docs) > s.maxBatchSize {
		return nil, fmt.Errorf("%d documents (max %d): %w", len(docs), s.maxBatchSize, domain.ErrBatchTooLarge)
	}

	results := make([]batch.Result, 0, len(docs))
	for i, doc := range docs {
		id, err := s.ids.NextID()
		if err != nil {
			if errors.Is(err, idgen.ErrClockMovedBackwards) {
				metrics.IDClockRollbacksTotal.Inc()
			}
			s.logger.Error("id allocation failed, aborting batch",
				zap.Stringer("namespace", s.ns),
				zap.Int("position", i),
				zap.Error(err),
			)
			return results, fmt.Errorf("allocate id: %w", err)
		}
		metrics.IDsAllocatedTotal.Inc()

		if err := s.add(ctx, id, doc); err != nil {
			results = append(results, batch.NewError(i, id, err))
			continue
		}
		results = append(results, batch.NewOK(i, id))
	}
	return results, nil
}

// Delete removes a document. A missing document is reported as false, nil.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	found, err := s.repo.Delete(ctx, s.ns, id, true)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	return found, nil
}

// Update merges fields into a stored document. Under UpdateBestEffort a
// failed write is logged and nil is returned.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) error {
	p, err := patch.New(fields)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDocument, err)
	}

	err = s.repo.Patch(ctx, s.ns, id, p, true)
	if err == nil {
		return nil
	}
	if s.updatePolicy == UpdateStrict {
		return fmt.Errorf("update document: %w", err)
	}
	s.logger.Error("update failed",
		zap.Stringer("namespace", s.ns),
		zap.String("id", id),
		zap.Error(err),
	)
	return nil
}

// Count returns the number of documents matching expr.
func (s *Service) Count(ctx context.Context, expr filter.Expression) (int64, error) {
	n, err := s.repo.Count(ctx, s.ns, expr)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Query returns one page of documents matching expr, sorted by orders in
// priority order. Pages past the end are clamped to the last page.
func (s *Service) Query(
	ctx context.Context, req page.Request, expr filter.Expression, orders ...order.Order,
) (QueryResult, error) {
	if err := order.Validate(orders); err != nil {
		return QueryResult{}, err
	}

	total, err := s.Count(ctx, expr)
	if err != nil {
		return QueryResult{}, err
	}
	info, offset := page.Window(total, req)

	docs := []domdoc.Document{}
	if total > 0 {
		docs, err = s.repo.Find(ctx, s.ns, expr, orders, offset, req.PageSize())
		if err != nil {
			return QueryResult{}, fmt.Errorf("query documents: %w", err)
		}
	}

	return QueryResult{
		PageInfo: info,
		Results:  docs,
		Status:   Status{Code: StatusOK, Message: "query success"},
	}, nil
}

// QueryAll returns every document matching expr in sort order.
func (s *Service) QueryAll(ctx context.Context, expr filter.Expression, orders ...order.Order) ([]domdoc.Document, error) {
	if err := order.Validate(orders); err != nil {
		return nil, err
	}

	total, err := s.Count(ctx, expr)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []domdoc.Document{}, nil
	}

	docs, err := s.repo.Find(ctx, s.ns, expr, orders, 0, int(total))
	if err != nil {
		return nil, fmt.Errorf("query all documents: %w", err)
	}
	return docs, nil
}

// QueryByID returns the first document whose id matches. In wildcard mode
// "*" and "?" in id act as wildcards.
func (s *Service) QueryByID(ctx context.Context, id string) (domdoc.Document, bool, error) {
	if err := domdoc.ValidateID(id); err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	var cond filter.Condition
	var err error
	if s.idMatch == IDMatchExact {
		cond, err = filter.NewMatch(domdoc.IDField, id)
	} else {
		cond, err = filter.NewWildcard(domdoc.IDField, id)
	}
	if err != nil {
		return nil, false, err
	}

	docs, err := s.repo.Find(ctx, s.ns, filter.Expression{}.WithMust(cond), nil, 0, 1)
	if err != nil {
		return nil, false, fmt.Errorf("query by id: %w", err)
	}
	if len(docs) == 0 {
		return nil, false, nil
	}
	return docs[0], true, nil
}
