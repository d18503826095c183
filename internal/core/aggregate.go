package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places amounts carry on the wire.
const AmountPlaces = 2

// AggregatedRecord holds expense statistics for one (company name, state) group.
// StddevAmount is nil when the group has fewer than two expenses.
type AggregatedRecord struct {
	CompanyName  string           `json:"company_name"`
	State        string           `json:"state"`
	TotalAmount  Money            `json:"total_amount"`
	AvgAmount    decimal.Decimal  `json:"avg_amount"`
	StddevAmount *decimal.Decimal `json:"stddev_amount"`
}

func (r AggregatedRecord) Validate() error {
	if strings.TrimSpace(r.CompanyName) == "" {
		return malformed("aggregate", "empty company name")
	}
	if err := r.TotalAmount.Validate(); err != nil {
		return malformed("aggregate", fmt.Sprintf("total: %v", err))
	}
	if r.AvgAmount.IsNegative() {
		return malformed("aggregate", "negative average")
	}
	if r.StddevAmount != nil && r.StddevAmount.IsNegative() {
		return malformed("aggregate", "negative standard deviation")
	}
	return nil
}

// MarshalJSON writes avg and stddev with two fixed places, like TotalAmount.
func (r AggregatedRecord) MarshalJSON() ([]byte, error) {
	var stddev *string
	if r.StddevAmount != nil {
		sd := r.StddevAmount.StringFixed(AmountPlaces)
		stddev = &sd
	}
	return json.Marshal(struct {
		CompanyName  string  `json:"company_name"`
		State        string  `json:"state"`
		TotalAmount  Money   `json:"total_amount"`
		AvgAmount    string  `json:"avg_amount"`
		StddevAmount *string `json:"stddev_amount"`
	}{
		CompanyName:  r.CompanyName,
		State:        r.State,
		TotalAmount:  r.TotalAmount,
		AvgAmount:    r.AvgAmount.StringFixed(AmountPlaces),
		StddevAmount: stddev,
	})
}
