package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"operadoras/internal/core"
	"operadoras/internal/query"
)

// Config selects and tunes the SQL backend.
type Config struct {
	Dialect Dialect
	DSN     string
	Matcher query.Matcher
	Logger  *slog.Logger
}

// SQLStore serves the registry from dim_companies and fact_expenses.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	matcher query.Matcher
	logger  *slog.Logger
}

// Open connects, applies migrations and refreshes the search column so it
// matches cfg.Matcher.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	if cfg.Dialect == SQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Dialect.driverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Dialect, err)
	}
	if cfg.Dialect == Postgres {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.Wrap(core.KindUnavailable, "ping database", err)
	}
	if err := RunMigrations(cfg.Dialect, cfg.DSN); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := NewSQLStore(db, cfg.Dialect, cfg.Matcher, cfg.Logger)
	if err := s.Reindex(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open, migrated database.
func NewSQLStore(db *sql.DB, dialect Dialect, matcher query.Matcher, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, dialect: dialect, matcher: matcher, logger: logger}
}

// fail classifies a database error.
func (s *SQLStore) fail(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.Wrap(core.KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return core.Wrap(core.KindTimeout, op, err)
	default:
		return core.Wrap(core.KindUnavailable, op, err)
	}
}

const companyColumns = "ans_id, cnpj, company_name, modality, state"

func (s *SQLStore) searchClause(search string) (string, []any) {
	needle := s.matcher.Normalize(search)
	if needle == "" {
		return "", nil
	}
	return ` WHERE search_name LIKE ? ESCAPE '\'`, []any{likePattern(needle)}
}

func (s *SQLStore) CountCompanies(ctx context.Context, search string) (int, error) {
	where, args := s.searchClause(search)
	var n int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT COUNT(*) FROM dim_companies"+where), args...).Scan(&n)
	if err != nil {
		return 0, s.fail("count companies", err)
	}
	return n, nil
}

func (s *SQLStore) FindCompanies(ctx context.Context, search string, offset, limit int) ([]core.Company, error) {
	where, args := s.searchClause(search)
	q := "SELECT " + companyColumns + " FROM dim_companies" + where + " ORDER BY seq LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, s.fail("find companies", err)
	}
	defer rows.Close()

	out := []core.Company{}
	for rows.Next() {
		var c core.Company
		if err := rows.Scan(&c.ID, &c.TaxID, &c.Name, &c.Modality, &c.State); err != nil {
			return nil, s.fail("scan company", err)
		}
		c.TaxID = strings.TrimSpace(c.TaxID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("find companies", err)
	}
	return out, nil
}

func (s *SQLStore) companyBy(ctx context.Context, op, column, value string) (core.Company, error) {
	q := "SELECT " + companyColumns + " FROM dim_companies WHERE " + column + " = ? ORDER BY seq LIMIT 1"
	var c core.Company
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), value).Scan(&c.ID, &c.TaxID, &c.Name, &c.Modality, &c.State)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Company{}, core.E(core.KindNotFound, op, fmt.Sprintf("no company with %s %q", column, value))
	}
	if err != nil {
		return core.Company{}, s.fail(op, err)
	}
	c.TaxID = strings.TrimSpace(c.TaxID)
	return c, nil
}

func (s *SQLStore) CompanyByID(ctx context.Context, id string) (core.Company, error) {
	return s.companyBy(ctx, "company by id", "ans_id", id)
}

func (s *SQLStore) CompanyByTaxID(ctx context.Context, cnpj string) (core.Company, error) {
	return s.companyBy(ctx, "company by cnpj", "cnpj", cnpj)
}

const expenseColumns = "id, ans_id, year, quarter, amount_cents, reference_date"

func (s *SQLStore) ExpensesByCompany(ctx context.Context, companyID string) ([]core.Expense, error) {
	q := "SELECT " + expenseColumns + " FROM fact_expenses WHERE ans_id = ? ORDER BY year, quarter, id"
	return s.expenses(ctx, "expenses by company", s.dialect.rebind(q), companyID)
}

func (s *SQLStore) AllExpenses(ctx context.Context) ([]core.Expense, error) {
	return s.expenses(ctx, "all expenses", "SELECT "+expenseColumns+" FROM fact_expenses ORDER BY id")
}

func (s *SQLStore) expenses(ctx context.Context, op, q string, args ...any) ([]core.Expense, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		var (
			e   core.Expense
			ref any
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Year, &e.Quarter, &e.Amount.Cents, &ref); err != nil {
			return nil, s.fail(op, err)
		}
		if e.ReferenceDate, err = scanDate(ref); err != nil {
			return nil, core.Wrap(core.KindMalformedEntity, op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return out, nil
}

// scanDate accepts the forms drivers return for a date column.
func scanDate(v any) (core.Date, error) {
	switch t := v.(type) {
	case time.Time:
		return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
	case string:
		return parseDatePrefix(t)
	case []byte:
		return parseDatePrefix(string(t))
	case nil:
		return core.Date{}, nil
	default:
		return core.Date{}, fmt.Errorf("unexpected date type %T", v)
	}
}

func parseDatePrefix(s string) (core.Date, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	return core.ParseDate(s)
}

func (s *SQLStore) AllCompanies(ctx context.Context) ([]core.Company, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+companyColumns+" FROM dim_companies ORDER BY seq")
	if err != nil {
		return nil, s.fail("all companies", err)
	}
	defer rows.Close()

	out := []core.Company{}
	for rows.Next() {
		var c core.Company
		if err := rows.Scan(&c.ID, &c.TaxID, &c.Name, &c.Modality, &c.State); err != nil {
			return nil, s.fail("all companies", err)
		}
		c.TaxID = strings.TrimSpace(c.TaxID)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("all companies", err)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
