package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"operadoras/internal/core"
	"operadoras/internal/query"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// HTTPSource reads the data service's JSON API.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource targets the API mounted at baseURL, e.g. http://localhost:8000/api.
func NewHTTPSource(baseURL string, timeout time.Duration, logger *slog.Logger) (*HTTPSource, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, core.E(core.KindValidation, "new http source", fmt.Sprintf("invalid base url %q", baseURL))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (s *HTTPSource) ListCompanies(ctx context.Context, p query.Params) (core.CompanyPage, error) {
	const op = "list companies"
	var page core.CompanyPage
	if err := s.get(ctx, op, "/operadoras", p.Values(), &page); err != nil {
		return core.CompanyPage{}, err
	}
	if page.Data == nil {
		page.Data = []core.Company{}
	}
	for _, c := range page.Data {
		if err := c.Validate(); err != nil {
			return core.CompanyPage{}, err
		}
	}
	if err := page.Meta.Validate(); err != nil {
		return core.CompanyPage{}, err
	}
	return page, nil
}

func (s *HTTPSource) GetCompany(ctx context.Context, id string) (core.Company, error) {
	return s.company(ctx, "get company", "/operadoras/"+url.PathEscape(id))
}

func (s *HTTPSource) GetCompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error) {
	return s.company(ctx, "get company by cnpj", "/operadoras/cnpj/"+url.PathEscape(cnpj))
}

func (s *HTTPSource) company(ctx context.Context, op, path string) (core.Company, error) {
	var c core.Company
	if err := s.get(ctx, op, path, nil, &c); err != nil {
		return core.Company{}, err
	}
	return c, c.Validate()
}

func (s *HTTPSource) ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error) {
	const op = "list expenses"
	var expenses []core.Expense
	if err := s.get(ctx, op, "/operadoras/"+url.PathEscape(companyID)+"/despesas", nil, &expenses); err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func (s *HTTPSource) ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error) {
	const op = "list aggregates"
	var records []core.AggregatedRecord
	if err := s.get(ctx, op, "/estatisticas", nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []core.AggregatedRecord{}
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// get issues a GET and decodes a 200 response into out. Failures come back as
// *core.Error classified by status code or transport condition.
func (s *HTTPSource) get(ctx context.Context, op, path string, params url.Values, out any) error {
	target := s.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return core.Wrap(core.KindInternal, op, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	s.logger.DebugContext(ctx, "Data service call",
		"operation", op,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return core.Wrap(core.KindTimeout, op, ctx.Err())
		}
		return core.Wrap(core.KindMalformedEntity, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return core.Wrap(core.KindTimeout, op, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.Wrap(core.KindTimeout, op, err)
	}
	return core.Wrap(core.KindUnavailable, op, err)
}

// KindForStatus classifies a non-200 response.
func KindForStatus(code int) core.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.KindValidation
	case http.StatusNotFound:
		return core.KindNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return core.KindTimeout
	default:
		return core.KindUnavailable
	}
}

// reportedKind returns the kind named in an error body when the client can
// act on it. Internal and unknown kinds fall back to the status code.
func reportedKind(kind string) (core.Kind, bool) {
	switch k := core.Kind(kind); k {
	case core.KindValidation, core.KindNotFound, core.KindUnavailable, core.KindTimeout, core.KindMalformedEntity:
		return k, true
	default:
		return "", false
	}
}

func statusError(op string, resp *http.Response) error {
	detail := resp.Status
	kind := KindForStatus(resp.StatusCode)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Detail any    `json:"detail"`
		Kind   string `json:"kind"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Detail != nil {
			detail = fmt.Sprintf("%s: %v", resp.Status, body.Detail)
		}
		if k, ok := reportedKind(body.Kind); ok {
			kind = k
		}
	}
	return core.E(kind, op, detail)
}
