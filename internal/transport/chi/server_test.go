package chi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docgate/internal/db"
	"github.com/kailas-cloud/docgate/internal/db/memory"
	"github.com/kailas-cloud/docgate/internal/domain"
	"github.com/kailas-cloud/docgate/internal/idgen"
	documentrepo "github.com/kailas-cloud/docgate/internal/repository/document"
	documentuc "github.com/kailas-cloud/docgate/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docgate/internal/usecase/health"
)

const planPath = "/indexes/plan/types/plan"

type testEnv struct {
	router http.Handler
	store  *memory.Store
}

func newTestEnv(t *testing.T, policy documentuc.UpdatePolicy) *testEnv {
	t.Helper()
	store := memory.New()
	ids, err := idgen.New(1)
	if err != nil {
		t.Fatal(err)
	}
	docs := documentuc.New(documentrepo.New(store), ids, db.Namespace{Index: "plan", Type: "plan"}, zap.NewNop()).
		WithUpdatePolicy(policy)
	srv := NewServer(docs, healthuc.New(store), zap.NewNop()).WithPagination(25, 100)

	r := chi.NewRouter()
	srv.Routes(r)
	return &testEnv{router: r, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

func TestAddAndGet(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodPut, planPath+"/documents/42", `{"name":"gold","price":10}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add: got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[AddResponse](t, rr); got.ID != "42" {
		t.Errorf("add id = %q", got.ID)
	}

	rr = e.do(t, http.MethodGet, planPath+"/documents/42", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[map[string]map[string]any](t, rr)
	if got["result"]["id"] != "42" || got["result"]["name"] != "gold" {
		t.Errorf("unexpected document %v", got["result"])
	}
}

func TestGet_Missing(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	e.do(t, http.MethodPut, planPath+"/documents/1", `{}`)

	rr := e.do(t, http.MethodGet, planPath+"/documents/2", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr); got.Code != CodeDocumentNotFound {
		t.Errorf("code = %q", got.Code)
	}
}

func TestGet_IndexMissing(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodGet, "/indexes/ghost/types/ghost/documents/1", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
	if got := decode[ErrorResponse](t, rr); got.Code != CodeIndexNotFound {
		t.Errorf("code = %q", got.Code)
	}
}

func TestAdd_InvalidBody(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	for _, body := range []string{`not json`, `[1,2]`} {
		rr := e.do(t, http.MethodPut, planPath+"/documents/1", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: got %d, want 400", body, rr.Code)
		}
	}
}

func TestInvalidNamespace(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodPut, "/indexes/bad$name/types/plan/documents/1", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
}

func TestUntypedNamespace(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodPut, "/indexes/logs/documents/1", `{"msg":"hi"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	if e.store.Len(db.Namespace{Index: "logs"}) != 1 {
		t.Error("document should land in the untyped namespace")
	}
}

func TestDelete(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	e.do(t, http.MethodPut, planPath+"/documents/1", `{}`)

	rr := e.do(t, http.MethodDelete, planPath+"/documents/1", "")
	if rr.Code != http.StatusOK || !decode[DeleteResponse](t, rr).Found {
		t.Fatalf("delete existing: got %d", rr.Code)
	}

	rr = e.do(t, http.MethodDelete, planPath+"/documents/1", "")
	if rr.Code != http.StatusOK || decode[DeleteResponse](t, rr).Found {
		t.Fatalf("delete missing: got %d, want found=false", rr.Code)
	}
}

func TestAddBatch(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodPost, planPath+"/documents", `[{"name":"a"},{"name":"b"}]`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[BatchResponse](t, rr)
	if resp.Succeeded != 2 || resp.Failed != 0 || len(resp.Items) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Items[0].ID == "" || resp.Items[0].ID == resp.Items[1].ID {
		t.Errorf("expected distinct minted ids, got %q and %q", resp.Items[0].ID, resp.Items[1].ID)
	}
	if e.store.Len(db.Namespace{Index: "plan", Type: "plan"}) != 2 {
		t.Error("both documents should be stored")
	}
}

func TestAddBatch_Empty(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodPost, planPath+"/documents", `[]`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", rr.Code)
	}
}

func TestUpdate(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	e.do(t, http.MethodPut, planPath+"/documents/1", `{"name":"gold","price":10}`)

	rr := e.do(t, http.MethodPatch, planPath+"/documents/1", `{"price":12}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}

	got := decode[map[string]map[string]any](t, e.do(t, http.MethodGet, planPath+"/documents/1", ""))
	if got["result"]["price"] != float64(12) || got["result"]["name"] != "gold" {
		t.Errorf("unexpected merged document %v", got["result"])
	}
}

func TestUpdate_MissingByPolicy(t *testing.T) {
	lenient := newTestEnv(t, documentuc.UpdateBestEffort)
	if rr := lenient.do(t, http.MethodPatch, planPath+"/documents/9", `{"x":1}`); rr.Code != http.StatusNoContent {
		t.Errorf("best effort: got %d, want 204", rr.Code)
	}

	strict := newTestEnv(t, documentuc.UpdateStrict)
	rr := strict.do(t, http.MethodPatch, planPath+"/documents/9", `{"x":1}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("strict: got %d, want 404", rr.Code)
	}
}

func seedNumbered(t *testing.T, e *testEnv, n int) {
	t.Helper()
	for i := range n {
		body := fmt.Sprintf(`{"n":%d,"group":"g%d"}`, i, i%2)
		if rr := e.do(t, http.MethodPut, planPath+fmt.Sprintf("/documents/%d", i), body); rr.Code != http.StatusCreated {
			t.Fatalf("seed %d: got %d", i, rr.Code)
		}
	}
}

func TestSearch_PastLastPage(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	seedNumbered(t, e, 57)

	rr := e.do(t, http.MethodPost, planPath+"/_search",
		`{"page":10,"size":10,"sort":[{"field":"n"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[QueryResponse](t, rr)
	if resp.PageInfo.CurrentPage != 6 || resp.PageInfo.TotalPages != 6 || resp.PageInfo.Total != 57 {
		t.Errorf("unexpected page info %+v", resp.PageInfo)
	}
	if len(resp.Result) != 7 {
		t.Fatalf("expected 7 results on the last page, got %d", len(resp.Result))
	}
	if resp.Result[0]["n"] != float64(50) {
		t.Errorf("first result n = %v, want 50", resp.Result[0]["n"])
	}
	if resp.Code != "200" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestSearch_DefaultsAndFilter(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	seedNumbered(t, e, 60)

	rr := e.do(t, http.MethodPost, planPath+"/_search",
		`{"filter":{"must":[{"key":"group","match":"g1"}]},"sort":[{"field":"n","order":"desc"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[QueryResponse](t, rr)
	if resp.PageInfo.Total != 30 || resp.PageInfo.PageSize != 25 || resp.PageInfo.CurrentPage != 1 {
		t.Errorf("unexpected page info %+v", resp.PageInfo)
	}
	if len(resp.Result) != 25 || resp.Result[0]["n"] != float64(59) {
		t.Errorf("unexpected first page: %d results, first n=%v", len(resp.Result), resp.Result[0]["n"])
	}
}

func TestSearch_Validation(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	seedNumbered(t, e, 1)

	tests := []struct {
		name string
		body string
	}{
		{"zero page", `{"page":0}`},
		{"size above max", `{"size":1000}`},
		{"bad order", `{"sort":[{"field":"n","order":"sideways"}]}`},
		{"two operators", `{"filter":{"must":[{"key":"n","match":"1","wildcard":"1*"}]}}`},
		{"no operator", `{"filter":{"must":[{"key":"n"}]}}`},
		{"malformed", `{"page":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.do(t, http.MethodPost, planPath+"/_search", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestSearchAllAndCount(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)
	seedNumbered(t, e, 40)

	rr := e.do(t, http.MethodPost, planPath+"/_search_all",
		`{"filter":{"must":[{"key":"n","range":{"gte":10,"lt":35}}]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("search all: got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[ListResponse](t, rr); got.Total != 25 || len(got.Result) != 25 {
		t.Errorf("search all total = %d", got.Total)
	}

	rr = e.do(t, http.MethodPost, planPath+"/_count", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("count: got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[CountResponse](t, rr); got.Count != 40 {
		t.Errorf("count = %d", got.Count)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	resp := decode[HealthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks[healthuc.BackendCheck] != "ok" || resp.Version == "" {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, documentuc.UpdateBestEffort)

	rr := e.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestHandleDomainError_Mapping(t *testing.T) {
	s := NewServer(nil, nil, zap.NewNop())
	tests := []struct {
		err    error
		status int
		code   ErrorCode
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidRequest), http.StatusBadRequest, CodeValidationFailed},
		{fmt.Errorf("wrap: %w", domain.ErrBatchTooLarge), http.StatusBadRequest, CodeBatchTooLarge},
		{fmt.Errorf("wrap: %w", domain.ErrIndexNotFound), http.StatusNotFound, CodeIndexNotFound},
		{fmt.Errorf("wrap: %w", idgen.ErrClockMovedBackwards), http.StatusServiceUnavailable, CodeIDAllocation},
		{&db.Error{Op: db.OpSearch, Err: errors.New("timeout")}, http.StatusBadGateway, CodeBackendError},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			s.handleDomainError(rr, req, tt.err)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if got := decode[ErrorResponse](t, rr); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}
