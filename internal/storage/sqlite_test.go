package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operadoras/internal/core"
	"operadoras/internal/query"
	"operadoras/internal/storage/memory"
	"operadoras/internal/storage/seed"
)

func fixture() seed.Dataset {
	ds := seed.Dataset{
		Companies: []core.Company{
			{ID: "1", TaxID: "11222333000181", Name: "Alpha Saúde", Modality: "Medicina de Grupo", State: "SP"},
			{ID: "2", TaxID: "11444777000161", Name: "Beta 100%_Care", Modality: "Cooperativa Médica", State: "RJ"},
		},
	}
	for i := 3; i <= 15; i++ {
		ds.Companies = append(ds.Companies, core.Company{
			ID: fmt.Sprint(i), TaxID: fmt.Sprintf("%014d", i), Name: fmt.Sprintf("Saude Plena %02d", i), State: "MG",
		})
	}
	for i, cents := range []int64{10000, 20000, 30000} {
		q := i + 1
		ds.Expenses = append(ds.Expenses, core.Expense{
			ID: int64(q), CompanyID: "1", Year: 2023, Quarter: q,
			Amount: core.Money{Cents: cents}, ReferenceDate: core.QuarterEnd(2023, q),
		})
	}
	return ds
}

func openSQLite(t *testing.T, matcher query.Matcher) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Dialect: SQLite,
		DSN:     filepath.Join(t.TempDir(), "data", "registry.db"),
		Matcher: matcher,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Lookups(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, query.Matcher{})
	require.NoError(t, s.Seed(ctx, fixture()))
	require.NoError(t, s.Ping(ctx))

	c, err := s.CompanyByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Saúde", c.Name)
	assert.Equal(t, "11222333000181", c.TaxID)

	c, err = s.CompanyByTaxID(ctx, "11444777000161")
	require.NoError(t, err)
	assert.Equal(t, "2", c.ID)

	_, err = s.CompanyByID(ctx, "nonexistent-id")
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)

	expenses, err := s.ExpensesByCompany(ctx, "1")
	require.NoError(t, err)
	require.Len(t, expenses, 3)
	assert.Equal(t, "2023-06-30", expenses[1].ReferenceDate.String())
	assert.Equal(t, int64(20000), expenses[1].Amount.Cents)

	expenses, err = s.ExpensesByCompany(ctx, "2")
	require.NoError(t, err)
	assert.NotNil(t, expenses)
	assert.Empty(t, expenses)
}

func TestSQLiteStore_SeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, query.Matcher{})
	ds := fixture()
	require.NoError(t, s.Seed(ctx, ds))

	ds.Companies[0].Name = "Alpha Renamed"
	require.NoError(t, s.Seed(ctx, ds))

	n, err := s.CountCompanies(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	all, err := s.AllCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alpha Renamed", all[0].Name, "upsert keeps listing position")
}

func TestSQLiteStore_MatchesMemoryStore(t *testing.T) {
	ctx := context.Background()
	for _, fold := range []bool{false, true} {
		t.Run(fmt.Sprintf("fold=%v", fold), func(t *testing.T) {
			matcher := query.Matcher{FoldDiacritics: fold}
			sqlStore := openSQLite(t, matcher)
			require.NoError(t, sqlStore.Seed(ctx, fixture()))
			memStore := memory.New(fixture(), matcher)

			for _, search := range []string{"", "saude", "SAÚDE", "100%", "%", "_", "plena 1", "zzz"} {
				for _, page := range []query.Params{{Page: 1, Size: 10}, {Page: 2, Size: 10}, {Page: 3, Size: 4}} {
					wantN, err := memStore.CountCompanies(ctx, search)
					require.NoError(t, err)
					gotN, err := sqlStore.CountCompanies(ctx, search)
					require.NoError(t, err)
					assert.Equal(t, wantN, gotN, "count search=%q", search)

					want, err := memStore.FindCompanies(ctx, search, page.Offset(), page.Size)
					require.NoError(t, err)
					got, err := sqlStore.FindCompanies(ctx, search, page.Offset(), page.Size)
					require.NoError(t, err)
					assert.Equal(t, want, got, "find search=%q page=%+v", search, page)
				}
			}

			wantE, _ := memStore.AllExpenses(ctx)
			gotE, err := sqlStore.AllExpenses(ctx)
			require.NoError(t, err)
			assert.Equal(t, wantE, gotE)
		})
	}
}

func TestSQLiteStore_ReindexOnReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "registry.db")

	s, err := Open(ctx, Config{Dialect: SQLite, DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, s.Seed(ctx, fixture()))
	n, err := s.CountCompanies(ctx, "saude")
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Dialect: SQLite, DSN: dsn, Matcher: query.Matcher{FoldDiacritics: true}})
	require.NoError(t, err)
	defer s.Close()
	n, err = s.CountCompanies(ctx, "saude")
	require.NoError(t, err)
	assert.Equal(t, 14, n, "folded search also finds Saúde")
}

func TestSQLiteStore_SeedRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, query.Matcher{})
	ds := fixture()
	ds.Expenses[0].Quarter = 9
	err := s.Seed(ctx, ds)
	assert.True(t, core.IsKind(err, core.KindMalformedEntity), "got %v", err)

	n, err := s.CountCompanies(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, n, "failed seed is rolled back")
}
