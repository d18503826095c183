// Package stats reduces expense records into per-company statistics.
//
// All accumulation is exact: totals are int64 cents and the variance numerator
// is a big.Int, so results do not depend on input order. Conversion to
// two-place decimals happens only when a record is built.
package stats

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"operadoras/internal/core"
)

// DisplayPlaces is the precision of avg and stddev in AggregatedRecord.
const DisplayPlaces = core.AmountPlaces

// stddevPrecision is the big.Float mantissa size used for the square root.
const stddevPrecision = 256

type groupKey struct {
	name  string
	state string
}

// Aggregate groups expenses by their owning company's (name, state) pair and
// computes total, mean and sample standard deviation for each group.
// Companies sharing a name and state fall into the same group. An expense
// whose company is not in companies is reported as MalformedEntity.
func Aggregate(companies []core.Company, expenses []core.Expense) ([]core.AggregatedRecord, error) {
	const op = "aggregate expenses"

	owners := make(map[string]groupKey, len(companies))
	for _, c := range companies {
		owners[c.ID] = groupKey{name: c.Name, state: c.State}
	}

	groups := make(map[groupKey][]int64)
	var order []groupKey
	for _, e := range expenses {
		key, ok := owners[e.CompanyID]
		if !ok {
			return nil, core.E(core.KindMalformedEntity, op, fmt.Sprintf("expense %d references unknown company %q", e.ID, e.CompanyID))
		}
		if e.Amount.Cents < 0 {
			return nil, core.E(core.KindMalformedEntity, op, fmt.Sprintf("expense %d has negative amount", e.ID))
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e.Amount.Cents)
	}

	out := make([]core.AggregatedRecord, 0, len(order))
	for _, key := range order {
		rec, err := Summarize(key.name, key.state, groups[key])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Summarize builds the record for a single group of amounts in cents.
// amounts must be non-empty.
func Summarize(name, state string, amounts []int64) (core.AggregatedRecord, error) {
	const op = "summarize group"
	n := int64(len(amounts))
	if n == 0 {
		return core.AggregatedRecord{}, core.E(core.KindValidation, op, "empty group")
	}

	var total int64
	for _, a := range amounts {
		if a > math.MaxInt64-total {
			return core.AggregatedRecord{}, core.E(core.KindMalformedEntity, op, fmt.Sprintf("total for %s/%s overflows", name, state))
		}
		total += a
	}

	rec := core.AggregatedRecord{
		CompanyName: name,
		State:       state,
		TotalAmount: core.Money{Cents: total},
		AvgAmount:   decimal.New(total, -2).Div(decimal.NewFromInt(n)).Round(DisplayPlaces),
	}
	if n >= 2 {
		sd := sampleStddev(amounts, total)
		rec.StddevAmount = &sd
	}
	return rec, nil
}

// sampleStddev returns sqrt(Σ(aᵢ − T/n)² / (n − 1)) in currency units. Scaling
// every deviation by n keeps the numerator integral:
// Σ(n·aᵢ − T)² / (n²·(n − 1)).
func sampleStddev(amounts []int64, total int64) decimal.Decimal {
	n := big.NewInt(int64(len(amounts)))
	t := big.NewInt(total)

	num := new(big.Int)
	dev := new(big.Int)
	for _, a := range amounts {
		dev.Mul(n, big.NewInt(a))
		dev.Sub(dev, t)
		num.Add(num, dev.Mul(dev, dev))
	}
	den := new(big.Int).Mul(n, n)
	den.Mul(den, new(big.Int).Sub(n, big.NewInt(1)))

	v := new(big.Float).SetPrec(stddevPrecision).SetInt(num)
	v.Quo(v, new(big.Float).SetPrec(stddevPrecision).SetInt(den))
	v.Sqrt(v)

	return decimal.RequireFromString(v.Text('f', 8)).Shift(-2).Round(DisplayPlaces)
}

// SortByTotalDesc orders records by total descending, then by company name and state.
func SortByTotalDesc(records []core.AggregatedRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.TotalAmount.Cents != b.TotalAmount.Cents {
			return a.TotalAmount.Cents > b.TotalAmount.Cents
		}
		if a.CompanyName != b.CompanyName {
			return a.CompanyName < b.CompanyName
		}
		return a.State < b.State
	})
}
