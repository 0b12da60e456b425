package ledger

import (
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is the glyph rendered in front of amounts.
const DefaultCurrency = "₹"

// DescriptionPlaceholder stands in for an absent description.
const DescriptionPlaceholder = "-"

// FormatType capitalizes the first letter and lowercases the rest.
// "INCOME" becomes "Income"; an empty type stays empty.
func FormatType(t string) string {
	if t == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(t)
	return strings.ToUpper(string(r)) + strings.ToLower(t[size:])
}

// FormatDate renders d as "Jan 2, 2006".
func FormatDate(d Date) string {
	if d.IsZero() {
		return "Invalid Date"
	}
	return d.Format("Jan 2, 2006")
}

// IsIncome reports whether t is styled as income. Anything else, including an
// empty or unexpected type, is styled as an expense.
func IsIncome(t string) bool {
	return strings.ToLower(t) == string(FilterIncome)
}

// StyleClass is the row/card class name for a transaction type.
func StyleClass(t string) string {
	if IsIncome(t) {
		return "income"
	}
	return "expense"
}

// FormatAmount renders the absolute value of amount with thousands grouping
// and at most three fraction digits, prefixed by symbol.
func FormatAmount(symbol string, amount decimal.Decimal) string {
	return symbol + humanize.BigCommaf(amount.Abs().Round(3).BigFloat())
}

// FormatSignedAmount is the card rendering: "+" for income, "-" otherwise.
func FormatSignedAmount(symbol, txType string, amount decimal.Decimal) string {
	sign := "-"
	if IsIncome(txType) {
		sign = "+"
	}
	return sign + FormatAmount(symbol, amount)
}

// DescriptionOrPlaceholder returns the description, or "-" when absent.
func DescriptionOrPlaceholder(description *string) string {
	if description == nil || *description == "" {
		return DescriptionPlaceholder
	}
	return *description
}
