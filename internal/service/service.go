// Package service implements the data-service use cases: listing and
// searching companies, fetching their expenses and computing aggregates.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"operadoras/internal/cache"
	"operadoras/internal/core"
	"operadoras/internal/query"
	"operadoras/internal/stats"
)

// AggregatesKey is the cache key holding the computed aggregate records.
const AggregatesKey = "aggregates"

// Store is the persistence port. Search terms are matched by the store using
// its own query.Matcher so counting and paging agree.
type Store interface {
	CountCompanies(ctx context.Context, search string) (int, error)
	FindCompanies(ctx context.Context, search string, offset, limit int) ([]core.Company, error)
	CompanyByID(ctx context.Context, id string) (core.Company, error)
	CompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error)
	ExpensesByCompany(ctx context.Context, companyID string) ([]core.Expense, error)
	AllCompanies(ctx context.Context) ([]core.Company, error)
	AllExpenses(ctx context.Context) ([]core.Expense, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options tune a Service. Zero values select defaults.
type Options struct {
	MaxPageSize int
	Cache       cache.Cache[[]core.AggregatedRecord]
	Logger      *slog.Logger
}

// Service answers queries over a Store
type Service struct {
	store       Store
	cache       cache.Cache[[]core.AggregatedRecord]
	maxPageSize int
	logger      *slog.Logger
}

func New(store Store, opts Options) *Service {
	s := &Service{
		store:       store,
		cache:       opts.Cache,
		maxPageSize: opts.MaxPageSize,
		logger:      opts.Logger,
	}
	if s.cache == nil {
		s.cache = cache.Nop[[]core.AggregatedRecord]{}
	}
	if s.maxPageSize == 0 {
		s.maxPageSize = query.DefaultMaxPageSize
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ListCompanies returns one page of the companies matching p.Search. A page
// past the last one is empty but carries valid metadata.
func (s *Service) ListCompanies(ctx context.Context, p query.Params) (core.CompanyPage, error) {
	const op = "list companies"
	p = p.Normalize()
	if err := p.Validate(s.maxPageSize); err != nil {
		return core.CompanyPage{}, err
	}

	var (
		total int
		data  []core.Company
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.CountCompanies(gctx, p.Search)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.FindCompanies(gctx, p.Search, p.Offset(), p.Size)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		data = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.CompanyPage{}, core.Wrap(core.KindOf(err), op, err)
	}

	if data == nil {
		data = []core.Company{}
	}
	for _, c := range data {
		if err := c.Validate(); err != nil {
			return core.CompanyPage{}, err
		}
	}
	page := core.CompanyPage{Data: data, Meta: query.NewPageMetadata(p.Page, p.Size, total)}
	if err := page.Meta.Validate(); err != nil {
		return core.CompanyPage{}, err
	}
	return page, nil
}

// GetCompany returns the company registered under id.
func (s *Service) GetCompany(ctx context.Context, id string) (core.Company, error) {
	if err := core.ValidateID(id); err != nil {
		return core.Company{}, err
	}
	c, err := s.store.CompanyByID(ctx, id)
	if err != nil {
		return core.Company{}, err
	}
	return c, c.Validate()
}

// GetCompanyByTaxID looks a company up by CNPJ. Punctuation in cnpj is ignored.
func (s *Service) GetCompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error) {
	const op = "get company by cnpj"
	normalized := core.NormalizeCNPJ(cnpj)
	if len(normalized) != core.CNPJLength {
		return core.Company{}, core.E(core.KindValidation, op, fmt.Sprintf("invalid cnpj %q", cnpj))
	}
	c, err := s.store.CompanyByTaxID(ctx, normalized)
	if err != nil {
		return core.Company{}, err
	}
	return c, c.Validate()
}

// ListExpenses returns a company's expenses ordered by year and quarter. An
// existing company without expenses yields an empty list.
func (s *Service) ListExpenses(ctx context.Context, companyID string) ([]core.Expense, error) {
	if err := core.ValidateID(companyID); err != nil {
		return nil, err
	}
	if _, err := s.store.CompanyByID(ctx, companyID); err != nil {
		return nil, err
	}

	expenses, err := s.store.ExpensesByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Quarter != b.Quarter {
			return a.Quarter < b.Quarter
		}
		return a.ID < b.ID
	})
	for _, e := range expenses {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

// ListAggregates returns per (name, state) statistics sorted by total
// descending. Results are cached until Invalidate is called or the cache
// entry expires.
func (s *Service) ListAggregates(ctx context.Context) ([]core.AggregatedRecord, error) {
	const op = "list aggregates"
	if cached, ok := s.cache.Get(ctx, AggregatesKey); ok {
		return slices.Clone(cached), nil
	}

	var (
		companies []core.Company
		expenses  []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		companies, err = s.store.AllCompanies(gctx)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.store.AllExpenses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, core.Wrap(core.KindOf(err), op, err)
	}

	records, err := stats.Aggregate(companies, expenses)
	if err != nil {
		return nil, err
	}
	stats.SortByTotalDesc(records)
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}

	s.cache.Set(ctx, AggregatesKey, records)
	s.logger.DebugContext(ctx, "Aggregates computed", "groups", len(records), "expenses", len(expenses))
	return slices.Clone(records), nil
}

// Invalidate drops cached aggregates so the next request recomputes them.
func (s *Service) Invalidate(ctx context.Context) {
	s.cache.Delete(ctx, AggregatesKey)
	s.logger.InfoContext(ctx, "Aggregates cache invalidated")
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
