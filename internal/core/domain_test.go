package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func validCompany() Company {
	return Company{ID: "419761", TaxID: "11222333000181", Name: "Alpha Saude", Modality: "Cooperativa Médica", State: "SP"}
}

func validExpense() Expense {
	return Expense{ID: 1, CompanyID: "419761", Year: 2024, Quarter: 3, Amount: Money{Cents: 0}, ReferenceDate: QuarterEnd(2024, 3)}
}

func TestValidateID(t *testing.T) {
	cases := []struct {
		id string
		ok bool
	}{
		{"419761", true},
		{"nonexistent-id", true},
		{"a_b", true},
		{"", false},
		{"   ", false},
		{"has space", false},
		{"semi;colon", false},
		{"çedilha", false},
		{"0123456789012345678901234567890123", false},
	}
	for _, tc := range cases {
		err := ValidateID(tc.id)
		if tc.ok && err != nil {
			t.Fatalf("%q expected ok, got %v", tc.id, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%q expected error", tc.id)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected validation kind, got %v", tc.id, KindOf(err))
			}
		}
	}
}

func TestCompanyValidate(t *testing.T) {
	if err := validCompany().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []func(*Company){
		func(c *Company) { c.ID = "" },
		func(c *Company) { c.TaxID = "123" },
		func(c *Company) { c.TaxID = "1122233300018A" },
		func(c *Company) { c.Name = " " },
	}
	for i, mutate := range bads {
		c := validCompany()
		mutate(&c)
		err := c.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if KindOf(err) != KindMalformedEntity {
			t.Fatalf("case %d expected malformed entity, got %s", i, KindOf(err))
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := validExpense().Validate(); err != nil {
		t.Fatalf("zero amount should be valid, got %v", err)
	}

	bads := []func(*Expense){
		func(e *Expense) { e.Quarter = 0 },
		func(e *Expense) { e.Quarter = 5 },
		func(e *Expense) { e.Amount = Money{Cents: -1} },
		func(e *Expense) { e.Year = 1999 },
		func(e *Expense) { e.ReferenceDate = Date{} },
	}
	for i, mutate := range bads {
		e := validExpense()
		mutate(&e)
		if err := e.Validate(); !errors.Is(err, ErrMalformedEntity) {
			t.Fatalf("case %d expected malformed entity, got %v", i, err)
		}
	}
}

func TestPageMetadataValidate(t *testing.T) {
	cases := []struct {
		m  PageMetadata
		ok bool
	}{
		{PageMetadata{Page: 1, Size: 10, TotalRecords: 0, TotalPages: 0}, true},
		{PageMetadata{Page: 5, Size: 10, TotalRecords: 15, TotalPages: 2}, true},
		{PageMetadata{Page: 0, Size: 10}, false},
		{PageMetadata{Page: 1, Size: 0}, false},
		{PageMetadata{Page: 1, Size: 10, TotalRecords: 3, TotalPages: 0}, false},
		{PageMetadata{Page: 1, Size: 10, TotalRecords: 0, TotalPages: 1}, false},
	}
	for i, tc := range cases {
		err := tc.m.Validate()
		if tc.ok != (err == nil) {
			t.Fatalf("case %d: ok=%v err=%v", i, tc.ok, err)
		}
	}
}

func TestQuarterEnd(t *testing.T) {
	cases := map[int]string{1: "2023-03-31", 2: "2023-06-30", 3: "2023-09-30", 4: "2023-12-31"}
	for q, want := range cases {
		if got := QuarterEnd(2023, q).String(); got != want {
			t.Fatalf("Q%d: want %s, got %s", q, want, got)
		}
	}
}

func TestExpenseJSON(t *testing.T) {
	raw := `{"id":7,"ans_id":"419761","year":2023,"quarter":2,"amount":"1234.50","reference_date":"2023-06-30"}`
	var e Expense
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Amount.Cents != 123450 || e.ReferenceDate.String() != "2023-06-30" {
		t.Fatalf("unexpected expense: %+v", e)
	}
	out, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("unexpected json: %s", out)
	}
}

func TestErrorKinds(t *testing.T) {
	base := fmt.Errorf("boom")
	err := fmt.Errorf("list: %w", Wrap(KindUnavailable, "store", base))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", KindOf(err))
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("unavailable must not match not found")
	}
	if !errors.Is(err, base) {
		t.Fatalf("cause should be reachable")
	}
	if Wrap(KindTimeout, "x", nil) != nil {
		t.Fatalf("wrapping nil should yield nil")
	}
	if KindOf(base) != KindInternal {
		t.Fatalf("untyped errors are internal")
	}
}
