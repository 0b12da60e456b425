package ledger

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatType(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"INCOME":  "Income",
		"income":  "Income",
		"eXpEnSe": "Expense",
		"x":       "X",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatType(in), "FormatType(%q)", in)
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Jan 5, 2025", FormatDate(NewDate(2025, time.January, 5)))
	assert.Equal(t, "Dec 31, 2024", FormatDate(NewDate(2024, time.December, 31)))
	assert.Equal(t, "Invalid Date", FormatDate(Date{}))
}

func TestIsIncomeFailsSafeToExpense(t *testing.T) {
	assert.True(t, IsIncome("income"))
	assert.True(t, IsIncome("INCOME"))
	assert.False(t, IsIncome("expense"))
	assert.False(t, IsIncome(""))
	assert.False(t, IsIncome("refund"))
	assert.Equal(t, "expense", StyleClass("refund"))
	assert.Equal(t, "income", StyleClass("Income"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "₹500", FormatAmount(DefaultCurrency, decimal.NewFromInt(500)))
	assert.Equal(t, "₹1,234.5", FormatAmount(DefaultCurrency, decimal.RequireFromString("1234.50")))
	assert.Equal(t, "₹1,000,000", FormatAmount(DefaultCurrency, decimal.NewFromInt(1000000)))
	assert.Equal(t, "₹12.346", FormatAmount(DefaultCurrency, decimal.RequireFromString("12.3456")))
	assert.Equal(t, "₹120", FormatAmount(DefaultCurrency, decimal.NewFromInt(-120)))
	assert.Equal(t, "₹12,345,678,901,234.567", FormatAmount(DefaultCurrency, decimal.RequireFromString("12345678901234.567")))
	assert.Equal(t, "₹9,007,199,254,740,993", FormatAmount(DefaultCurrency, decimal.RequireFromString("9007199254740993")))
}

func TestFormatSignedAmount(t *testing.T) {
	assert.Equal(t, "+₹500", FormatSignedAmount(DefaultCurrency, "income", decimal.NewFromInt(500)))
	assert.Equal(t, "-₹120", FormatSignedAmount(DefaultCurrency, "expense", decimal.NewFromInt(120)))
	assert.Equal(t, "-₹7", FormatSignedAmount(DefaultCurrency, "", decimal.NewFromInt(7)))
}

func TestDescriptionOrPlaceholder(t *testing.T) {
	desc := "groceries"
	empty := ""
	assert.Equal(t, "-", DescriptionOrPlaceholder(nil))
	assert.Equal(t, "-", DescriptionOrPlaceholder(&empty))
	assert.Equal(t, "groceries", DescriptionOrPlaceholder(&desc))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("EXPENSE")
	require.NoError(t, err)
	assert.Equal(t, FilterExpense, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseFilter("transfers")
	require.Error(t, err)
}

func TestFilterCycleAndQuery(t *testing.T) {
	assert.Equal(t, FilterIncome, FilterAll.Next())
	assert.Equal(t, FilterExpense, FilterIncome.Next())
	assert.Equal(t, FilterAll, FilterExpense.Next())
	assert.Equal(t, "", FilterAll.Query())
	assert.Equal(t, "income", FilterIncome.Query())
}

func TestFilterMatches(t *testing.T) {
	tx := Transaction{Type: "Income"}
	assert.True(t, FilterAll.Matches(tx))
	assert.True(t, FilterIncome.Matches(tx))
	assert.False(t, FilterExpense.Matches(tx))
}

func TestTransactionDecode(t *testing.T) {
	body := `[
		{"id": 1, "date": "2025-03-04", "type": "INCOME", "category": "Salary", "description": null, "amount": 500},
		{"id": "b7", "date": "2025-03-05T23:30:00+05:30", "type": "expense", "category": "Food", "description": "lunch", "amount": "120.75"}
	]`
	var txs []Transaction
	require.NoError(t, json.Unmarshal([]byte(body), &txs))
	require.Len(t, txs, 2)

	assert.Equal(t, ID("1"), txs[0].ID)
	assert.Equal(t, NewDate(2025, time.March, 4), txs[0].Date)
	assert.Nil(t, txs[0].Description)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(500)))

	assert.Equal(t, ID("b7"), txs[1].ID)
	assert.Equal(t, NewDate(2025, time.March, 5), txs[1].Date)
	require.NotNil(t, txs[1].Description)
	assert.Equal(t, "lunch", *txs[1].Description)
	assert.True(t, txs[1].Amount.Equal(decimal.RequireFromString("120.75")))
}

func TestTransactionDecodeKeepsRowWithBadDate(t *testing.T) {
	body := `[
		{"id": 1, "date": "2025-01-02", "type": "income", "category": "Salary", "description": null, "amount": 500},
		{"id": 2, "date": "02/01/2025", "type": "expense", "category": "Food", "description": null, "amount": 20}
	]`
	var txs []Transaction
	require.NoError(t, json.Unmarshal([]byte(body), &txs))
	require.Len(t, txs, 2)

	assert.Equal(t, NewDate(2025, time.January, 2), txs[0].Date)
	assert.Equal(t, ID("2"), txs[1].ID)
	assert.True(t, txs[1].Date.IsZero())
	assert.Equal(t, "Invalid Date", FormatDate(txs[1].Date))
	assert.True(t, txs[1].Amount.Equal(decimal.NewFromInt(20)))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	_, err := ParseDate("yesterday")
	require.Error(t, err)
}
