package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/domain"
	dombatch "github.com/kailas-cloud/docgate/internal/domain/batch"
	domdoc "github.com/kailas-cloud/docgate/internal/domain/document"
	"github.com/kailas-cloud/docgate/internal/domain/page"
	"github.com/kailas-cloud/docgate/internal/domain/search/filter"
	"github.com/kailas-cloud/docgate/internal/domain/search/order"
	"github.com/kailas-cloud/docgate/internal/idgen"
	documentuc "github.com/kailas-cloud/docgate/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docgate/internal/usecase/health"
	"github.com/kailas-cloud/docgate/internal/version"
)

const maxBodyBytes = 10 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves DocumentAccess over HTTP. Every document route is scoped to
// the index and type named in its path.
type Server struct {
	documents       *documentuc.Service
	health          *healthuc.Service
	logger          *zap.Logger
	defaultPageSize int
	maxPageSize     int
	errorHandlers   []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(documents *documentuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		documents:       documents,
		health:          health,
		logger:          logger,
		defaultPageSize: page.DefaultPageSize,
		maxPageSize:     1000,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(db.ErrInvalidNamespace, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrBatchTooLarge, http.StatusBadRequest, CodeBatchTooLarge),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrIndexNotFound, http.StatusNotFound, CodeIndexNotFound),
		sentinelHandler(idgen.ErrClockMovedBackwards, http.StatusServiceUnavailable, CodeIDAllocation),
		backendErrorHandler,
	}
	return s
}

// WithPagination configures page size limits.
func (s *Server) WithPagination(defaultPageSize, maxPageSize int) *Server {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// Routes registers every endpoint on r. Untyped namespaces are reachable
// without the /types/{type} segment.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/indexes/{index}", func(r chi.Router) {
		s.documentRoutes(r)
		r.Route("/types/{type}", s.documentRoutes)
	})
}

func (s *Server) documentRoutes(r chi.Router) {
	r.Post("/documents", s.AddBatch)
	r.Put("/documents/{id}", s.AddDocument)
	r.Get("/documents/{id}", s.GetDocument)
	r.Patch("/documents/{id}", s.UpdateDocument)
	r.Delete("/documents/{id}", s.DeleteDocument)
	r.Post("/_count", s.Count)
	r.Post("/_search", s.Search)
	r.Post("/_search_all", s.SearchAll)
}

// scoped returns the document service bound to the path's namespace.
func (s *Server) scoped(w http.ResponseWriter, r *http.Request) (*documentuc.Service, bool) {
	ns, err := db.NewNamespace(chi.URLParam(r, "index"), chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return nil, false
	}
	return s.documents.For(ns), true
}

// AddDocument handles PUT .../documents/{id}.
func (s *Server) AddDocument(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	doc, err := domdoc.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if err := docs.Add(r.Context(), id, doc); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AddResponse{ID: id})
}

// AddBatch handles POST .../documents with a JSON array body. Ids are minted
// per document.
func (s *Server) AddBatch(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	items, err := domdoc.DecodeArray(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "at least one document is required")
		return
	}

	results, err := docs.AddBatch(r.Context(), items)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := BatchResponse{Items: make([]BatchResultItem, len(results))}
	for i, res := range results {
		resp.Items[i] = batchResultItem(res)
		if res.Status() == dombatch.StatusOK {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDocument handles GET .../documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	doc, found, err := docs.QueryByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, CodeDocumentNotFound, domain.ErrNotFound.Error())
		return
	}

	writeJSON(w, http.StatusOK, DocumentResponse{Result: doc})
}

// UpdateDocument handles PATCH .../documents/{id} with a partial document body.
func (s *Server) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	fields, err := domdoc.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := docs.Update(r.Context(), chi.URLParam(r, "id"), fields); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteDocument handles DELETE .../documents/{id}. A missing document is
// not an error.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	found, err := docs.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Found: found})
}

// Count handles POST .../_count.
func (s *Server) Count(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	expr, err := filterFromRequest(req.Filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	n, err := docs.Count(r.Context(), expr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Search handles POST .../_search. Page and size default to 1 and the
// configured default page size.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	pageReq, err := s.pageFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}
	expr, orders, err := queryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	res, err := docs.Query(r.Context(), pageReq, expr, orders...)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		PageInfo: res.PageInfo,
		Result:   res.Results,
		Code:     res.Status.Code,
		Message:  res.Status.Message,
	})
}

// SearchAll handles POST .../_search_all.
func (s *Server) SearchAll(w http.ResponseWriter, r *http.Request) {
	docs, ok := s.scoped(w, r)
	if !ok {
		return
	}

	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	expr, orders, err := queryFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	results, err := docs.QueryAll(r.Context(), expr, orders...)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Result: results, Total: len(results)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.Version,
		Commit:  version.Commit,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// decodeQuery reads an optional QueryRequest body. An empty body is an
// empty query.
func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return QueryRequest{}, false
	}
	return req, true
}

func (s *Server) pageFromRequest(req QueryRequest) (page.Request, error) {
	current, size := page.DefaultPage, s.defaultPageSize
	if req.Page != nil {
		current = *req.Page
	}
	if req.Size != nil {
		size = *req.Size
	}
	if size > s.maxPageSize {
		return page.Request{}, fmt.Errorf("size must be <= %d: %w", s.maxPageSize, domain.ErrInvalidRequest)
	}
	return page.NewRequest(current, size)
}

func queryFromRequest(req QueryRequest) (filter.Expression, []order.Order, error) {
	expr, err := filterFromRequest(req.Filter)
	if err != nil {
		return filter.Expression{}, nil, err
	}
	orders := make([]order.Order, 0, len(req.Sort))
	for _, k := range req.Sort {
		o, err := order.Parse(k.Field, k.Order)
		if err != nil {
			return filter.Expression{}, nil, err
		}
		orders = append(orders, o)
	}
	if err := order.Validate(orders); err != nil {
		return filter.Expression{}, nil, err
	}
	return expr, orders, nil
}

func filterFromRequest(f *FilterExpression) (filter.Expression, error) {
	if f == nil {
		return filter.Expression{}, nil
	}

	must, err := conditionsFromRequest(f.Must)
	if err != nil {
		return filter.Expression{}, err
	}
	should, err := conditionsFromRequest(f.Should)
	if err != nil {
		return filter.Expression{}, err
	}
	mustNot, err := conditionsFromRequest(f.MustNot)
	if err != nil {
		return filter.Expression{}, err
	}

	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("new expression: %w", err)
	}
	return expr, nil
}

func conditionsFromRequest(cs []FilterCondition) ([]filter.Condition, error) {
	out := make([]filter.Condition, 0, len(cs))
	for _, c := range cs {
		cond, err := conditionFromRequest(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

func conditionFromRequest(c FilterCondition) (filter.Condition, error) {
	set := 0
	for _, present := range []bool{c.Match != nil, c.Range != nil, c.Wildcard != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return filter.Condition{}, fmt.Errorf(
			"filter condition for %q must have exactly one of match, range or wildcard: %w",
			c.Key, domain.ErrInvalidRequest)
	}

	switch {
	case c.Match != nil:
		return filter.NewMatch(c.Key, *c.Match)
	case c.Wildcard != nil:
		return filter.NewWildcard(c.Key, *c.Wildcard)
	default:
		rf, err := filter.NewRangeFilter(c.Range.Gt, c.Range.Gte, c.Range.Lt, c.Range.Lte)
		if err != nil {
			return filter.Condition{}, fmt.Errorf("range filter: %w", err)
		}
		return filter.NewRange(c.Key, rf)
	}
}

func batchResultItem(r dombatch.Result) BatchResultItem {
	item := BatchResultItem{
		Position: r.Position(),
		ID:       r.ID(),
		Status:   string(r.Status()),
	}
	if r.Err() != nil {
		item.Error = &ErrorBody{
			Code:    batchErrorCode(r.Err()),
			Message: safeDomainMessage(r.Err()),
		}
	}
	return item
}

func batchErrorCode(err error) ErrorCode {
	var dbErr *db.Error
	switch {
	case errors.Is(err, domain.ErrInvalidDocument), errors.Is(err, db.ErrInvalidNamespace):
		return CodeValidationFailed
	case errors.As(err, &dbErr):
		return CodeBackendError
	default:
		return CodeInternalError
	}
}
