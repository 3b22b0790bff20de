// Package core holds the church-ledger domain: denomination ledgers,
// attendance tallies, service records and their validation rules.
//
// This file contains the integer money type and its formatting helpers.
// Amounts are always held in the smallest currency unit; nothing in the
// ledger path uses floating point.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in the smallest currency unit.
type Money struct {
	Minor int64
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Minor: m.Minor + o.Minor}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Minor == 0
}

// Validate rejects negative amounts.
func (m Money) Validate() error {
	if m.Minor < 0 {
		return NewValidationError("amount", "must not be negative")
	}
	return nil
}

// Format renders the amount with thousands separators and a currency symbol.
//
// Examples:
//
//	Money{Minor: 5000}.Format("₦")    -> "₦5,000"
//	Money{Minor: 1234567}.Format("")  -> "1,234,567"
//	Money{Minor: -250}.Format("₦")    -> "-₦250"
func (m Money) Format(symbol string) string {
	return FormatAmount(m.Minor, symbol)
}

// FormatAmount formats an integer amount with comma grouping.
func FormatAmount(v int64, symbol string) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(symbol)
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ParseWholeAmount parses a non-negative integer amount, tolerating
// thousands separators (comma, space or underscore).
//
// Examples:
//
//	ParseWholeAmount("10 000") -> 10000, nil
//	ParseWholeAmount("1,500")  -> 1500, nil
//	ParseWholeAmount("-1")     -> 0, error
func ParseWholeAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewValidationError("amount", "empty")
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '_':
			return -1
		}
		return r
	}, s)
	for _, r := range cleaned {
		if !unicode.IsDigit(r) {
			return 0, NewValidationError("amount", "must be a whole non-negative number")
		}
	}
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, NewValidationError("amount", "out of range")
	}
	return v, nil
}
