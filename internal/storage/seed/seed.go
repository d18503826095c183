// Package seed reads company and expense fixtures from CSV files.
//
// companies.csv columns: ans_id, cnpj, company_name, modality, state
// expenses.csv columns:  id, ans_id, year, quarter, amount, reference_date
//
// Columns are located by header name, so their order is free. An empty
// reference_date defaults to the last day of the quarter.
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"operadoras/internal/core"
)

const (
	CompaniesFile = "companies.csv"
	ExpensesFile  = "expenses.csv"
)

// Dataset is the full content of a seed directory.
type Dataset struct {
	Companies []core.Company
	Expenses  []core.Expense
}

// LoadDir reads both fixture files from dir. A missing expenses file yields
// companies without expenses; a missing companies file is an error.
func LoadDir(dir string) (Dataset, error) {
	var ds Dataset

	f, err := os.Open(filepath.Join(dir, CompaniesFile))
	if err != nil {
		return ds, fmt.Errorf("open companies: %w", err)
	}
	defer f.Close()
	if ds.Companies, err = ReadCompanies(f); err != nil {
		return ds, err
	}

	ef, err := os.Open(filepath.Join(dir, ExpensesFile))
	if errors.Is(err, os.ErrNotExist) {
		return ds, nil
	}
	if err != nil {
		return ds, fmt.Errorf("open expenses: %w", err)
	}
	defer ef.Close()
	if ds.Expenses, err = ReadExpenses(ef); err != nil {
		return ds, err
	}
	return ds, nil
}

// ReadCompanies parses companies.csv. Duplicate ans_id rows keep the first
// occurrence.
func ReadCompanies(r io.Reader) ([]core.Company, error) {
	rows, err := readTable(r, "ans_id", "cnpj", "company_name", "modality", "state")
	if err != nil {
		return nil, fmt.Errorf("companies: %w", err)
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]core.Company, 0, len(rows))
	for i, row := range rows {
		c := core.Company{
			ID:       row["ans_id"],
			TaxID:    core.NormalizeCNPJ(row["cnpj"]),
			Name:     row["company_name"],
			Modality: row["modality"],
			State:    strings.ToUpper(row["state"]),
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("companies line %d: %w", i+2, err)
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// ReadExpenses parses expenses.csv.
func ReadExpenses(r io.Reader) ([]core.Expense, error) {
	rows, err := readTable(r, "id", "ans_id", "year", "quarter", "amount", "reference_date")
	if err != nil {
		return nil, fmt.Errorf("expenses: %w", err)
	}

	out := make([]core.Expense, 0, len(rows))
	for i, row := range rows {
		e, err := parseExpense(row)
		if err != nil {
			return nil, fmt.Errorf("expenses line %d: %w", i+2, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func parseExpense(row map[string]string) (core.Expense, error) {
	var e core.Expense
	var err error

	if e.ID, err = strconv.ParseInt(row["id"], 10, 64); err != nil {
		return e, fmt.Errorf("id: %w", err)
	}
	e.CompanyID = row["ans_id"]
	if e.Year, err = strconv.Atoi(row["year"]); err != nil {
		return e, fmt.Errorf("year: %w", err)
	}
	if e.Quarter, err = strconv.Atoi(row["quarter"]); err != nil {
		return e, fmt.Errorf("quarter: %w", err)
	}
	if e.Amount.Cents, err = core.ParseDecimalToCents(row["amount"]); err != nil {
		return e, fmt.Errorf("amount %q: %w", row["amount"], err)
	}
	if raw := row["reference_date"]; raw != "" {
		if e.ReferenceDate, err = core.ParseDate(raw); err != nil {
			return e, fmt.Errorf("reference_date: %w", err)
		}
	} else if e.Quarter >= 1 && e.Quarter <= 4 {
		e.ReferenceDate = core.QuarterEnd(e.Year, e.Quarter)
	}
	return e, e.Validate()
}

// readTable returns one map per data row keyed by the requested columns.
// Columns absent from the header read as "".
func readTable(r io.Reader, columns ...string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(columns))
		for _, col := range columns {
			if i, ok := index[col]; ok && i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
}
