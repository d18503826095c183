package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operadoras/internal/core"
	"operadoras/internal/query"
	"operadoras/internal/storage/seed"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewSQLStore(db, Postgres, query.Matcher{}, nil), mock
}

var companyCols = []string{"ans_id", "cnpj", "company_name", "modality", "state"}

func TestPostgresStore_FindCompanies(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT ans_id, cnpj, company_name, modality, state FROM dim_companies WHERE search_name LIKE $1 ESCAPE '\' ORDER BY seq LIMIT $2 OFFSET $3`)).
		WithArgs("%alpha\\_x%", 10, 20).
		WillReturnRows(sqlmock.NewRows(companyCols).
			AddRow("1", "11222333000181", "Alpha_X", "Medicina de Grupo", "SP"))

	got, err := s.FindCompanies(context.Background(), " ALPHA_X ", 20, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha_X", got[0].Name)
}

func TestPostgresStore_CountCompanies(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM dim_companies`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))

	n, err := s.CountCompanies(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestPostgresStore_CompanyByID(t *testing.T) {
	s, mock := newMockStore(t)
	q := regexp.QuoteMeta(`SELECT ans_id, cnpj, company_name, modality, state FROM dim_companies WHERE ans_id = $1 ORDER BY seq LIMIT 1`)

	mock.ExpectQuery(q).WithArgs("1").
		WillReturnRows(sqlmock.NewRows(companyCols).AddRow("1", "11222333000181", "Alpha", "", "SP"))
	mock.ExpectQuery(q).WithArgs("404").
		WillReturnRows(sqlmock.NewRows(companyCols))
	mock.ExpectQuery(q).WithArgs("2").
		WillReturnError(errors.New("connection reset by peer"))

	c, err := s.CompanyByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Alpha", c.Name)

	_, err = s.CompanyByID(context.Background(), "404")
	assert.True(t, core.IsKind(err, core.KindNotFound), "got %v", err)

	_, err = s.CompanyByID(context.Background(), "2")
	assert.True(t, core.IsKind(err, core.KindUnavailable), "got %v", err)
}

func TestPostgresStore_ExpensesByCompany(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT id, ans_id, year, quarter, amount_cents, reference_date FROM fact_expenses WHERE ans_id = $1 ORDER BY year, quarter, id`)).
		WithArgs("1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ans_id", "year", "quarter", "amount_cents", "reference_date"}).
			AddRow(1, "1", 2023, 1, 10000, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC)).
			AddRow(2, "1", 2023, 2, 20000, "2023-06-30T00:00:00Z"))

	got, err := s.ExpensesByCompany(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2023-03-31", got[0].ReferenceDate.String())
	assert.Equal(t, "2023-06-30", got[1].ReferenceDate.String())
	assert.Equal(t, int64(20000), got[1].Amount.Cents)
}

func TestPostgresStore_Timeout(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT COUNT").WillReturnError(context.DeadlineExceeded)

	_, err := s.CountCompanies(context.Background(), "")
	assert.True(t, core.IsKind(err, core.KindTimeout), "got %v", err)
}

func TestPostgresStore_Seed(t *testing.T) {
	s, mock := newMockStore(t)
	ds := seed.Dataset{
		Companies: []core.Company{{ID: "1", TaxID: "11222333000181", Name: "Alpha Saúde", State: "SP"}},
		Expenses: []core.Expense{{
			ID: 7, CompanyID: "1", Year: 2023, Quarter: 1,
			Amount: core.Money{Cents: 500}, ReferenceDate: core.QuarterEnd(2023, 1),
		}},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO dim_companies").
		ExpectExec().
		WithArgs("1", "11222333000181", "Alpha Saúde", "alpha saúde", "", "SP").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare("INSERT INTO fact_expenses").
		ExpectExec().
		WithArgs(int64(7), "1", 2023, 1, int64(500), "2023-03-31").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Seed(context.Background(), ds))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", Postgres.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", SQLite.rebind("a = ?"))
	assert.Equal(t, `%50\%\_off\\%`, likePattern(`50%_off\`))
}
