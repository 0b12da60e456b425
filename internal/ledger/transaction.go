package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Filter selects which slice of the remote transaction collection is shown.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterIncome  Filter = "income"
	FilterExpense Filter = "expense"
)

// Filters lists every filter in display order.
func Filters() []Filter {
	return []Filter{FilterAll, FilterIncome, FilterExpense}
}

// ParseFilter accepts a filter name in any case. An empty string means all.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FilterAll):
		return FilterAll, nil
	case string(FilterIncome):
		return FilterIncome, nil
	case string(FilterExpense):
		return FilterExpense, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// Next cycles all -> income -> expense -> all.
func (f Filter) Next() Filter {
	switch f {
	case FilterAll:
		return FilterIncome
	case FilterIncome:
		return FilterExpense
	default:
		return FilterAll
	}
}

// Label is the human name of the filter.
func (f Filter) Label() string {
	switch f {
	case FilterIncome:
		return "Income Only"
	case FilterExpense:
		return "Expense Only"
	default:
		return "All Transactions"
	}
}

// Query returns the value sent as the type query parameter, or "" for all.
func (f Filter) Query() string {
	if f == FilterAll || f == "" {
		return ""
	}
	return string(f)
}

// Matches reports whether t belongs in a result set for f.
func (f Filter) Matches(t Transaction) bool {
	if f == FilterAll || f == "" {
		return true
	}
	return strings.ToLower(t.Type) == string(f)
}

// ID is the server's opaque transaction identifier. The API may send it as a
// JSON number or a string; both are kept as text.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Date is a calendar date. Time of day and zone are dropped.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return NewDate(t.Year(), t.Month(), t.Day()), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t.Year(), t.Month(), t.Day()), nil
		}
	}
	return Date{}, fmt.Errorf("parse date %q", s)
}

// UnmarshalJSON decodes a date string. A string that is not a date leaves d
// zero so the record is kept and renders as "Invalid Date".
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("transaction date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		*d = Date{}
		return nil
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

// Transaction is the client's copy of a server transaction record.
type Transaction struct {
	ID          ID              `json:"id"`
	Date        Date            `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Description *string         `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}
