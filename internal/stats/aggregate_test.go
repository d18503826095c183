package stats

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operadoras/internal/core"
)

func expense(id int64, company string, cents int64) core.Expense {
	return core.Expense{ID: id, CompanyID: company, Year: 2023, Quarter: 1, Amount: core.Money{Cents: cents}, ReferenceDate: core.QuarterEnd(2023, 1)}
}

func TestAggregateSingleCompany(t *testing.T) {
	companies := []core.Company{{ID: "1", Name: "Alpha", State: "SP"}}
	expenses := []core.Expense{
		expense(1, "1", 10000),
		expense(2, "1", 20000),
		expense(3, "1", 30000),
	}

	records, err := Aggregate(companies, expenses)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Alpha", rec.CompanyName)
	assert.Equal(t, "SP", rec.State)
	assert.Equal(t, int64(60000), rec.TotalAmount.Cents)
	assert.True(t, rec.AvgAmount.Equal(decimal.NewFromInt(200)), "avg=%s", rec.AvgAmount)
	require.NotNil(t, rec.StddevAmount)
	assert.True(t, rec.StddevAmount.Equal(decimal.NewFromInt(100)), "stddev=%s", rec.StddevAmount)
}

func TestAggregateSingleExpenseHasNoStddev(t *testing.T) {
	companies := []core.Company{{ID: "1", Name: "Alpha", State: "SP"}}
	records, err := Aggregate(companies, []core.Expense{expense(1, "1", 12345)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].StddevAmount)
	assert.True(t, records[0].AvgAmount.Equal(decimal.RequireFromString("123.45")))
}

func TestAggregateGroupsByNameAndState(t *testing.T) {
	companies := []core.Company{
		{ID: "1", Name: "Alpha", State: "SP"},
		{ID: "2", Name: "Alpha", State: "RJ"},
		{ID: "3", Name: "Alpha", State: "SP"}, // same group as 1
		{ID: "4", Name: "Beta", State: "MG"},
	}
	expenses := []core.Expense{
		expense(1, "1", 100),
		expense(2, "2", 200),
		expense(3, "3", 300),
		expense(4, "4", 400),
	}

	records, err := Aggregate(companies, expenses)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byKey := map[string]core.AggregatedRecord{}
	for _, r := range records {
		byKey[r.CompanyName+"/"+r.State] = r
	}
	assert.Equal(t, int64(400), byKey["Alpha/SP"].TotalAmount.Cents)
	assert.NotNil(t, byKey["Alpha/SP"].StddevAmount)
	assert.Equal(t, int64(200), byKey["Alpha/RJ"].TotalAmount.Cents)
	assert.Nil(t, byKey["Alpha/RJ"].StddevAmount)
}

func TestAggregateUnknownCompany(t *testing.T) {
	_, err := Aggregate(nil, []core.Expense{expense(1, "404", 100)})
	assert.True(t, core.IsKind(err, core.KindMalformedEntity), "got %v", err)
}

func TestAggregateEmpty(t *testing.T) {
	records, err := Aggregate(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSummarizeOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	amounts := make([]int64, 50)
	for i := range amounts {
		amounts[i] = rng.Int63n(10_000_000_00)
	}

	want, err := Summarize("Alpha", "SP", amounts)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		shuffled := append([]int64(nil), amounts...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Summarize("Alpha", "SP", shuffled)
		require.NoError(t, err)
		assert.Equal(t, want.TotalAmount, got.TotalAmount)
		assert.True(t, want.AvgAmount.Equal(got.AvgAmount))
		assert.True(t, want.StddevAmount.Equal(*got.StddevAmount))
	}
}

func TestSummarizeKnownValues(t *testing.T) {
	// sample stddev of 1, 2, 3, 4 (currency units) is sqrt(5/3)
	rec, err := Summarize("x", "y", []int64{100, 200, 300, 400})
	require.NoError(t, err)
	assert.Equal(t, "2.5", rec.AvgAmount.String())
	assert.Equal(t, "1.29", rec.StddevAmount.String())

	// identical amounts have zero spread, not absent spread
	rec, err = Summarize("x", "y", []int64{500, 500})
	require.NoError(t, err)
	require.NotNil(t, rec.StddevAmount)
	assert.True(t, rec.StddevAmount.IsZero())

	_, err = Summarize("x", "y", nil)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestPartitionCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	companies := []core.Company{
		{ID: "1", Name: "A", State: "SP"},
		{ID: "2", Name: "B", State: "SP"},
		{ID: "3", Name: "C", State: "RJ"},
	}
	var expenses []core.Expense
	var sum int64
	for i := 0; i < 200; i++ {
		cents := rng.Int63n(1_000_000)
		sum += cents
		expenses = append(expenses, expense(int64(i), companies[rng.Intn(3)].ID, cents))
	}

	records, err := Aggregate(companies, expenses)
	require.NoError(t, err)

	var got int64
	for _, r := range records {
		got += r.TotalAmount.Cents
	}
	assert.Equal(t, sum, got)
}

func TestSortByTotalDesc(t *testing.T) {
	records := []core.AggregatedRecord{
		{CompanyName: "B", TotalAmount: core.Money{Cents: 10}},
		{CompanyName: "A", TotalAmount: core.Money{Cents: 30}},
		{CompanyName: "A", State: "RJ", TotalAmount: core.Money{Cents: 10}},
	}
	SortByTotalDesc(records)
	assert.Equal(t, "A", records[0].CompanyName)
	assert.Equal(t, "A", records[1].CompanyName)
	assert.Equal(t, "B", records[2].CompanyName)
}
