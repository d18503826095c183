package core

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// EarliestExpenseYear is the first year the regulator published quarterly expense data.
const EarliestExpenseYear = 2000

const maxIDLength = 32

type (
	// Date is a calendar day serialised as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	// Company is a regulated health-insurance operator.
	Company struct {
		ID       string `json:"ans_id"`
		TaxID    string `json:"cnpj"`
		Name     string `json:"company_name"`
		Modality string `json:"modality"`
		State    string `json:"state"`
	}

	// Expense is one quarterly disbursement owned by a Company.
	Expense struct {
		ID            int64  `json:"id"`
		CompanyID     string `json:"ans_id"`
		Year          int    `json:"year"`
		Quarter       int    `json:"quarter"`
		Amount        Money  `json:"amount"`
		ReferenceDate Date   `json:"reference_date"`
	}

	// PageMetadata describes one page of a filtered listing.
	PageMetadata struct {
		Page         int `json:"page"`
		Size         int `json:"size"`
		TotalRecords int `json:"total_records"`
		TotalPages   int `json:"total_pages"`
	}

	// CompanyPage is a page of companies plus its metadata.
	CompanyPage struct {
		Data []Company    `json:"data"`
		Meta PageMetadata `json:"meta"`
	}
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// ValidateID checks the format of an opaque entity identifier.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return E(KindValidation, "validate id", "identifier is required")
	}
	if len(id) > maxIDLength {
		return E(KindValidation, "validate id", fmt.Sprintf("identifier longer than %d characters", maxIDLength))
	}
	for _, r := range id {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			return E(KindValidation, "validate id", fmt.Sprintf("identifier %q contains invalid characters", id))
		}
	}
	return nil
}

func malformed(entity, msg string) error {
	return E(KindMalformedEntity, "validate "+entity, msg)
}

func (c Company) Validate() error {
	if err := ValidateID(c.ID); err != nil {
		return malformed("company", fmt.Sprintf("invalid id %q", c.ID))
	}
	if !isDigits(c.TaxID) || len(c.TaxID) != CNPJLength {
		return malformed("company", fmt.Sprintf("tax id %q must have %d digits", c.TaxID, CNPJLength))
	}
	if strings.TrimSpace(c.Name) == "" {
		return malformed("company", "empty name")
	}
	return nil
}

func (e Expense) Validate() error {
	if e.Year < EarliestExpenseYear {
		return malformed("expense", fmt.Sprintf("year %d before %d", e.Year, EarliestExpenseYear))
	}
	if e.Quarter < 1 || e.Quarter > 4 {
		return malformed("expense", fmt.Sprintf("quarter %d outside 1-4", e.Quarter))
	}
	if err := e.Amount.Validate(); err != nil {
		return malformed("expense", err.Error())
	}
	if e.ReferenceDate.IsZero() {
		return malformed("expense", "missing reference date")
	}
	return nil
}

// QuarterEnd returns the last day of the given quarter.
func QuarterEnd(year, quarter int) Date {
	// day 0 of the following month is the last day of the quarter
	return Date{Time: time.Date(year, time.Month(quarter*3+1), 0, 0, 0, 0, 0, time.UTC)}
}

func (m PageMetadata) Validate() error {
	switch {
	case m.Page < 1:
		return malformed("page metadata", fmt.Sprintf("page %d below 1", m.Page))
	case m.Size < 1:
		return malformed("page metadata", fmt.Sprintf("size %d below 1", m.Size))
	case m.TotalRecords < 0:
		return malformed("page metadata", "negative total records")
	case (m.TotalPages == 0) != (m.TotalRecords == 0):
		return malformed("page metadata", "total pages inconsistent with total records")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
