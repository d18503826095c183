// Package client is the consuming side of the data service: a Facade that
// checks requests locally and delegates to a Source, which is either the
// remote HTTP API or an in-process service.
package client

import (
	"context"
	"fmt"

	"operadoras/internal/core"
	"operadoras/internal/query"
)

// Source fetches registry data. *service.Service and *HTTPSource implement it.
type Source interface {
	ListCompanies(ctx context.Context, p query.Params) (core.CompanyPage, error)
	GetCompany(ctx context.Context, id string) (core.Company, error)
	GetCompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error)
	ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error)
	ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error)
}

// Facade rejects invalid requests before they reach the source and passes
// source errors through unchanged.
type Facade struct {
	source      Source
	maxPageSize int
}

// NewFacade wraps source. maxPageSize <= 0 uses query.DefaultMaxPageSize.
func NewFacade(source Source, maxPageSize int) *Facade {
	if maxPageSize <= 0 {
		maxPageSize = query.DefaultMaxPageSize
	}
	return &Facade{source: source, maxPageSize: maxPageSize}
}

func (f *Facade) ListCompanies(ctx context.Context, p query.Params) (core.CompanyPage, error) {
	p = p.Normalize()
	if err := p.Validate(f.maxPageSize); err != nil {
		return core.CompanyPage{}, err
	}
	return f.source.ListCompanies(ctx, p)
}

func (f *Facade) GetCompany(ctx context.Context, id string) (core.Company, error) {
	if err := core.ValidateID(id); err != nil {
		return core.Company{}, err
	}
	return f.source.GetCompany(ctx, id)
}

func (f *Facade) GetCompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error) {
	normalized := core.NormalizeCNPJ(cnpj)
	if len(normalized) != core.CNPJLength {
		return core.Company{}, core.E(core.KindValidation, "get company by cnpj", fmt.Sprintf("invalid cnpj %q", cnpj))
	}
	return f.source.GetCompanyByTaxID(ctx, normalized)
}

func (f *Facade) ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error) {
	if err := core.ValidateID(companyID); err != nil {
		return nil, err
	}
	return f.source.ListExpenses(ctx, companyID)
}

func (f *Facade) ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error) {
	return f.source.ListAggregates(ctx)
}
