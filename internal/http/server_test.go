package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"operadoras/internal/core"
	"operadoras/internal/query"
	"operadoras/internal/service"
	"operadoras/internal/storage/memory"
	"operadoras/internal/storage/seed"
)

func newTestServer(t *testing.T, svc DataService, opts Options) *Server {
	t.Helper()
	srv := NewServer(svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func dataset() seed.Dataset {
	var ds seed.Dataset
	for i := 1; i <= 15; i++ {
		ds.Companies = append(ds.Companies, core.Company{
			ID:    fmt.Sprint(i),
			TaxID: fmt.Sprintf("%014d", i),
			Name:  fmt.Sprintf("Company %02d", i),
			State: "SP",
		})
	}
	ds.Expenses = []core.Expense{
		{ID: 1, CompanyID: "1", Year: 2023, Quarter: 1, Amount: core.Money{Cents: 10000}, ReferenceDate: core.QuarterEnd(2023, 1)},
		{ID: 2, CompanyID: "1", Year: 2023, Quarter: 2, Amount: core.Money{Cents: 20000}, ReferenceDate: core.QuarterEnd(2023, 2)},
		{ID: 3, CompanyID: "1", Year: 2023, Quarter: 3, Amount: core.Money{Cents: 30000}, ReferenceDate: core.QuarterEnd(2023, 3)},
	}
	return ds
}

func realService() *service.Service {
	return service.New(memory.New(dataset(), query.Matcher{}), service.Options{})
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := get(t, srv, path)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyFailsWhenStoreDown(t *testing.T) {
	srv := newTestServer(t, &fakeService{err: core.E(core.KindUnavailable, "ping", "down")}, Options{})
	rr := get(t, srv, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not_ready") {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestListCompanies(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})

	rr := get(t, srv, "/api/operadoras?page=2&size=10")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var page core.CompanyPage
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Data) != 5 || page.Data[0].ID != "11" {
		t.Fatalf("unexpected data: %+v", page.Data)
	}
	if page.Meta != (core.PageMetadata{Page: 2, Size: 10, TotalRecords: 15, TotalPages: 2}) {
		t.Fatalf("unexpected meta: %+v", page.Meta)
	}

	rr = get(t, srv, "/api/operadoras?page=9")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"data":[]`) {
		t.Fatalf("page past the end should be empty: %d %s", rr.Code, rr.Body.String())
	}
}

func TestListCompaniesValidation(t *testing.T) {
	srv := newTestServer(t, realService(), Options{MaxPageSize: 50})

	for _, path := range []string{
		"/api/operadoras?page=0",
		"/api/operadoras?size=-1",
		"/api/operadoras?size=51",
		"/api/operadoras?page=abc",
	} {
		rr := get(t, srv, path)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", path, rr.Code)
		}
		if body := decodeError(t, rr); body.Kind != string(core.KindValidation) || body.Detail == "" {
			t.Fatalf("%s: body=%+v", path, body)
		}
	}
}

func TestCompanyLookups(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})

	rr := get(t, srv, "/api/operadoras/3")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"company_name":"Company 03"`) {
		t.Fatalf("by id: %d %s", rr.Code, rr.Body.String())
	}

	rr = get(t, srv, "/api/operadoras/cnpj/00000000000003")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"ans_id":"3"`) {
		t.Fatalf("by cnpj: %d %s", rr.Code, rr.Body.String())
	}

	rr = get(t, srv, "/api/operadoras/999")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Kind != string(core.KindNotFound) {
		t.Fatalf("unknown id: %d %s", rr.Code, rr.Body.String())
	}

	rr = get(t, srv, "/api/operadoras/cnpj/123")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short cnpj: %d", rr.Code)
	}

	rr = get(t, srv, "/api/operadoras/3/unknown")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown subresource: %d", rr.Code)
	}
}

func TestListExpenses(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})

	rr := get(t, srv, "/api/operadoras/1/despesas")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var expenses []core.Expense
	if err := json.Unmarshal(rr.Body.Bytes(), &expenses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(expenses) != 3 || expenses[0].Quarter != 1 || expenses[2].Amount.Cents != 30000 {
		t.Fatalf("unexpected expenses: %+v", expenses)
	}
	if !strings.Contains(rr.Body.String(), `"amount":"100.00"`) {
		t.Fatalf("amount should be a decimal string: %s", rr.Body.String())
	}

	rr = get(t, srv, "/api/operadoras/2/despesas")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("company without expenses: %d %q", rr.Code, rr.Body.String())
	}

	rr = get(t, srv, "/api/operadoras/404/despesas")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown company: %d", rr.Code)
	}
}

func TestListAggregates(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})

	rr := get(t, srv, "/api/estatisticas")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var records []core.AggregatedRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].TotalAmount.Cents != 60000 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].StddevAmount == nil || records[0].StddevAmount.String() != "100" {
		t.Fatalf("unexpected stddev: %v", records[0].StddevAmount)
	}
	if !strings.Contains(rr.Body.String(), `"avg_amount":"200.00","stddev_amount":"100.00"`) {
		t.Fatalf("avg and stddev should carry two places: %s", rr.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		kind   core.Kind
		status int
	}{
		{core.KindValidation, http.StatusBadRequest},
		{core.KindNotFound, http.StatusNotFound},
		{core.KindMalformedEntity, http.StatusInternalServerError},
		{core.KindUnavailable, http.StatusServiceUnavailable},
		{core.KindTimeout, http.StatusGatewayTimeout},
		{core.KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := newTestServer(t, &fakeService{err: core.E(tc.kind, "op", "boom")}, Options{})
		for _, path := range []string{"/api/operadoras", "/api/operadoras/1", "/api/operadoras/1/despesas", "/api/estatisticas"} {
			rr := get(t, srv, path)
			if rr.Code != tc.status {
				t.Fatalf("%s %s: want %d, got %d", tc.kind, path, tc.status, rr.Code)
			}
			if body := decodeError(t, rr); body.Kind != string(tc.kind) {
				t.Fatalf("%s %s: body kind %q", tc.kind, path, body.Kind)
			}
		}
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	srv := newTestServer(t, &fakeService{err: fmt.Errorf("password=hunter2")}, Options{})
	rr := get(t, srv, "/api/estatisticas")
	if rr.Code != http.StatusInternalServerError || strings.Contains(rr.Body.String(), "hunter2") {
		t.Fatalf("internal detail leaked: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequestTimeout(t *testing.T) {
	srv := newTestServer(t, &fakeService{block: true}, Options{RequestTimeout: 20 * time.Millisecond})
	rr := get(t, srv, "/api/estatisticas")
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, realService(), Options{RateLimitPerMin: 2})

	first := get(t, srv, "/api/operadoras/1")
	if first.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing request id")
	}
	if first.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}

	get(t, srv, "/api/operadoras/1")
	limited := get(t, srv, "/api/operadoras/1")
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status=%d", limited.Code)
	}
	if limited.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, realService(), Options{})
	get(t, srv, "/api/operadoras")

	rr := get(t, srv, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "operadoras_http_requests_total") || !strings.Contains(body, `route="GET /api/operadoras"`) {
		t.Fatalf("request counter missing from /metrics")
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  al\x00pha\x07 "); got != "alpha" {
		t.Fatalf("got %q", got)
	}
}

// fakeService fails every call with err, or blocks until the context ends.
type fakeService struct {
	err   error
	block bool
}

func (f *fakeService) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *fakeService) ListCompanies(ctx context.Context, _ query.Params) (core.CompanyPage, error) {
	return core.CompanyPage{}, f.wait(ctx)
}

func (f *fakeService) GetCompany(ctx context.Context, _ string) (core.Company, error) {
	return core.Company{}, f.wait(ctx)
}

func (f *fakeService) GetCompanyByTaxID(ctx context.Context, _ string) (core.Company, error) {
	return core.Company{}, f.wait(ctx)
}

func (f *fakeService) ListExpenses(ctx context.Context, _ string) ([]core.Expense, error) {
	return nil, f.wait(ctx)
}

func (f *fakeService) ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error) {
	return nil, f.wait(ctx)
}

func (f *fakeService) Ping(ctx context.Context) error { return f.wait(ctx) }
