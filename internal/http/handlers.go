package http

import (
	"context"
	"net/http"
	"time"

	"operadoras/internal/core"
	applog "operadoras/internal/log"
)

// ExpensesSegment is the sub-resource listing a company's expenses.
const ExpensesSegment = "despesas"

// TaxIDSegment prefixes lookups by CNPJ.
const TaxIDSegment = "cnpj"

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	p, err := ParseListingParams(r, s.maxPageSize)
	if err != nil {
		s.writeError(w, r, err, applog.OpListCompanies)
		return
	}
	page, err := s.svc.ListCompanies(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err, applog.OpListCompanies)
		return
	}
	NewJSONResponse().Body(page).Write(w)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := s.svc.GetCompany(r.Context(), PathValue(r, "id"))
	if err != nil {
		s.writeError(w, r, err, applog.OpGetCompany)
		return
	}
	NewJSONResponse().Body(company).Write(w)
}

// handleCompanySubresource serves /operadoras/cnpj/{cnpj} and /operadoras/{id}/despesas.
func (s *Server) handleCompanySubresource(w http.ResponseWriter, r *http.Request) {
	first, second := PathValue(r, "first"), PathValue(r, "second")
	switch {
	case first == TaxIDSegment:
		company, err := s.svc.GetCompanyByTaxID(r.Context(), second)
		if err != nil {
			s.writeError(w, r, err, applog.OpGetCompany)
			return
		}
		NewJSONResponse().Body(company).Write(w)
	case second == ExpensesSegment:
		expenses, err := s.svc.ListExpenses(r.Context(), first)
		if err != nil {
			s.writeError(w, r, err, applog.OpListExpenses)
			return
		}
		if expenses == nil {
			expenses = []core.Expense{}
		}
		NewJSONResponse().Body(expenses).Write(w)
	default:
		s.writeError(w, r, core.E(core.KindNotFound, "route", "no such resource"), "route")
	}
}

func (s *Server) handleListAggregates(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.ListAggregates(r.Context())
	if err != nil {
		s.writeError(w, r, err, applog.OpListAggregates)
		return
	}
	if records == nil {
		records = []core.AggregatedRecord{}
	}
	NewJSONResponse().Body(records).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}).Write(w)
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
	}
	if err := s.svc.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	kind := core.KindOf(err)
	logger := applog.FromContext(r.Context())
	switch StatusFor(kind) / 100 {
	case 5:
		logger.LogError(r.Context(), "Request failed", err, string(kind), op)
	default:
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldErrorKind, string(kind),
			applog.FieldError, err.Error())
	}
	ErrorResponse(err).Write(w)
}
