// Package memory is an in-process Store for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"operadoras/internal/core"
	"operadoras/internal/query"
	"operadoras/internal/storage/seed"
)

type Store struct {
	mu        sync.RWMutex
	matcher   query.Matcher
	companies []core.Company
	byID      map[string]int
	byTaxID   map[string]int
	expenses  []core.Expense
}

// New builds a store holding ds. Companies keep their input order, which is
// also the listing order.
func New(ds seed.Dataset, matcher query.Matcher) *Store {
	s := &Store{matcher: matcher}
	s.Load(ds)
	return s
}

// NewFromDir seeds a store from the CSV fixtures in dir.
func NewFromDir(dir string, matcher query.Matcher) (*Store, error) {
	ds, err := seed.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	return New(ds, matcher), nil
}

// Load replaces the store content.
func (s *Store) Load(ds seed.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.companies = append([]core.Company(nil), ds.Companies...)
	s.expenses = append([]core.Expense(nil), ds.Expenses...)
	s.byID = make(map[string]int, len(s.companies))
	s.byTaxID = make(map[string]int, len(s.companies))
	for i, c := range s.companies {
		s.byID[c.ID] = i
		s.byTaxID[c.TaxID] = i
	}
}

func (s *Store) filtered(search string) []core.Company {
	return s.matcher.Filter(s.companies, search)
}

func (s *Store) CountCompanies(ctx context.Context, search string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, core.Wrap(core.KindTimeout, "count companies", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filtered(search)), nil
}

func (s *Store) FindCompanies(ctx context.Context, search string, offset, limit int) ([]core.Company, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Wrap(core.KindTimeout, "find companies", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.filtered(search)
	if offset >= len(all) {
		return []core.Company{}, nil
	}
	end := min(offset+limit, len(all))
	return append([]core.Company(nil), all[offset:end]...), nil
}

func (s *Store) CompanyByID(_ context.Context, id string) (core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return core.Company{}, core.E(core.KindNotFound, "company by id", fmt.Sprintf("company %q not found", id))
	}
	return s.companies[i], nil
}

func (s *Store) CompanyByTaxID(_ context.Context, cnpj string) (core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byTaxID[cnpj]
	if !ok {
		return core.Company{}, core.E(core.KindNotFound, "company by cnpj", fmt.Sprintf("no company with cnpj %q", cnpj))
	}
	return s.companies[i], nil
}

func (s *Store) ExpensesByCompany(_ context.Context, companyID string) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) AllCompanies(_ context.Context) ([]core.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Company(nil), s.companies...), nil
}

func (s *Store) AllExpenses(_ context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Expense(nil), s.expenses...), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
