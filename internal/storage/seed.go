package storage

import (
	"context"
	"database/sql"
	"fmt"

	"operadoras/internal/storage/seed"
)

// Seed upserts ds in a single transaction. Companies come first so expenses
// always reference a stored company.
func (s *SQLStore) Seed(ctx context.Context, ds seed.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("begin seed", err)
	}
	defer tx.Rollback()

	if err := s.upsertCompanies(ctx, tx, ds); err != nil {
		return err
	}
	if err := s.upsertExpenses(ctx, tx, ds); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.fail("commit seed", err)
	}

	s.logger.InfoContext(ctx, "Registry seeded",
		"dialect", s.dialect,
		"companies", len(ds.Companies),
		"expenses", len(ds.Expenses))
	return nil
}

func (s *SQLStore) upsertCompanies(ctx context.Context, tx *sql.Tx, ds seed.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO dim_companies (ans_id, cnpj, company_name, search_name, modality, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (ans_id) DO UPDATE SET
			cnpj = excluded.cnpj,
			company_name = excluded.company_name,
			search_name = excluded.search_name,
			modality = excluded.modality,
			state = excluded.state`))
	if err != nil {
		return s.fail("prepare company upsert", err)
	}
	defer stmt.Close()

	for _, c := range ds.Companies {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.TaxID, c.Name, s.matcher.Normalize(c.Name), c.Modality, c.State); err != nil {
			return s.fail(fmt.Sprintf("upsert company %s", c.ID), err)
		}
	}
	return nil
}

func (s *SQLStore) upsertExpenses(ctx context.Context, tx *sql.Tx, ds seed.Dataset) error {
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO fact_expenses (id, ans_id, year, quarter, amount_cents, reference_date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			ans_id = excluded.ans_id,
			year = excluded.year,
			quarter = excluded.quarter,
			amount_cents = excluded.amount_cents,
			reference_date = excluded.reference_date`))
	if err != nil {
		return s.fail("prepare expense upsert", err)
	}
	defer stmt.Close()

	for _, e := range ds.Expenses {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.CompanyID, e.Year, e.Quarter, e.Amount.Cents, e.ReferenceDate.String()); err != nil {
			return s.fail(fmt.Sprintf("upsert expense %d", e.ID), err)
		}
	}
	return nil
}

// Reindex recomputes search_name for every company. It runs on Open so a
// change of search folding takes effect on existing data.
func (s *SQLStore) Reindex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT ans_id, company_name, search_name FROM dim_companies")
	if err != nil {
		return s.fail("reindex", err)
	}
	stale := map[string]string{}
	for rows.Next() {
		var id, name, current string
		if err := rows.Scan(&id, &name, &current); err != nil {
			rows.Close()
			return s.fail("reindex", err)
		}
		if want := s.matcher.Normalize(name); want != current {
			stale[id] = want
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return s.fail("reindex", err)
	}
	if len(stale) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("reindex", err)
	}
	defer tx.Rollback()
	for id, name := range stale {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind("UPDATE dim_companies SET search_name = ? WHERE ans_id = ?"), name, id); err != nil {
			return s.fail("reindex", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return s.fail("reindex", err)
	}
	s.logger.InfoContext(ctx, "Search index refreshed", "companies", len(stale))
	return nil
}
