package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Bounds on ledger figures. MaxValue×MaxCount and MaxTotal both sit far
// below the int64 limit, so every product and sum stays exact, including
// rollups across many records.
const (
	MaxValue int64 = 1_000_000
	MaxCount int64 = 1_000_000_000
	MaxTotal int64 = 10_000_000_000_000
)

// DenominationLine is one face value and how many pieces of it were
// counted for each fund. Totals are never stored; they are derived from
// Value and Counts on every read.
type DenominationLine struct {
	Value  int64              `json:"value"`
	Counts map[FundName]int64 `json:"counts,omitempty"`
}

// Count returns the pieces counted for fund, zero when absent.
func (d DenominationLine) Count(fund FundName) int64 {
	return d.Counts[fund]
}

// FundTotal is Count(fund) × Value.
func (d DenominationLine) FundTotal(fund FundName) int64 {
	return d.Counts[fund] * d.Value
}

// Total is the line's contribution across all funds.
func (d DenominationLine) Total() int64 {
	var sum int64
	for _, c := range d.Counts {
		sum += c * d.Value
	}
	return sum
}

// Pieces is the number of notes or coins on the line across all funds.
func (d DenominationLine) Pieces() int64 {
	var sum int64
	for _, c := range d.Counts {
		sum += c
	}
	return sum
}

// IsNote reports whether the value prints in the notes section.
func (d DenominationLine) IsNote() bool {
	return d.Value > NotesThreshold
}

// Ledger is an ordered set of denomination lines with unique values.
// The zero value is an empty, usable ledger.
type Ledger struct {
	lines []DenominationLine
}

// NewLedger builds a ledger from lines, validating every value and count.
func NewLedger(lines ...DenominationLine) (*Ledger, error) {
	l := &Ledger{}
	for _, line := range lines {
		if err := l.AddDenomination(line.Value); err != nil {
			return nil, err
		}
		for fund, count := range line.Counts {
			if err := l.SetCount(line.Value, fund, count); err != nil {
				return nil, err
			}
		}
	}
	return l, nil
}

// AddDenomination appends a new face value with no counts.
func (l *Ledger) AddDenomination(value int64) error {
	if err := checkValue(value); err != nil {
		return err
	}
	if l.index(value) >= 0 {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%d already present", value), Err: ErrDuplicateValue}
	}
	l.lines = append(l.lines, DenominationLine{Value: value})
	return nil
}

// SetCount replaces the count for (value, fund). A zero count removes the
// entry so the ledger has a single canonical form.
func (l *Ledger) SetCount(value int64, fund FundName, count int64) error {
	fund = FundName(strings.TrimSpace(string(fund)))
	if fund == "" {
		return &ValidationError{Field: "fund", Reason: "empty fund name", Err: ErrEmptyFund}
	}
	if count < 0 {
		return &ValidationError{Field: string(fund), Reason: fmt.Sprintf("count %d is negative", count), Err: ErrNegativeCount}
	}
	if count > MaxCount {
		return NewValidationError(string(fund), fmt.Sprintf("count %d exceeds %d", count, MaxCount))
	}
	i := l.index(value)
	if i < 0 {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%d not in ledger", value), Err: ErrUnknownDenomination}
	}
	line := &l.lines[i]
	if total := l.GrandTotal() - line.Counts[fund]*value + count*value; total > MaxTotal {
		return NewValidationError(string(fund), fmt.Sprintf("ledger total %d would exceed %d", total, MaxTotal))
	}
	if count == 0 {
		delete(line.Counts, fund)
		return nil
	}
	if line.Counts == nil {
		line.Counts = make(map[FundName]int64)
	}
	line.Counts[fund] = count
	return nil
}

// Count returns the count for (value, fund), zero when absent.
func (l *Ledger) Count(value int64, fund FundName) int64 {
	if i := l.index(value); i >= 0 {
		return l.lines[i].Counts[fund]
	}
	return 0
}

// Has reports whether value is part of the ledger.
func (l *Ledger) Has(value int64) bool {
	return l.index(value) >= 0
}

// Len is the number of denomination lines.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.lines)
}

// Lines returns a deep copy of the lines in insertion order.
func (l *Ledger) Lines() []DenominationLine {
	if l == nil {
		return nil
	}
	out := make([]DenominationLine, len(l.lines))
	for i, line := range l.lines {
		out[i] = DenominationLine{Value: line.Value}
		if len(line.Counts) > 0 {
			out[i].Counts = make(map[FundName]int64, len(line.Counts))
			for k, v := range line.Counts {
				out[i].Counts[k] = v
			}
		}
	}
	return out
}

// SortedLines returns the lines ordered by descending face value.
func (l *Ledger) SortedLines() []DenominationLine {
	lines := l.Lines()
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Value > lines[j].Value })
	return lines
}

// Clone returns an independent copy.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{lines: l.Lines()}
}

// TotalsByFund sums count×value per fund over every line. Funds that are
// not in any catalog are summed the same way.
func (l *Ledger) TotalsByFund() map[FundName]int64 {
	out := make(map[FundName]int64)
	if l == nil {
		return out
	}
	for _, line := range l.lines {
		for fund, count := range line.Counts {
			out[fund] += count * line.Value
		}
	}
	return out
}

// GrandTotal is the sum of every fund total.
func (l *Ledger) GrandTotal() int64 {
	var sum int64
	for _, v := range l.TotalsByFund() {
		sum += v
	}
	return sum
}

// checkValue accepts face values in (0, MaxValue].
func checkValue(value int64) error {
	if value <= 0 {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%d is not a positive face value", value), Err: ErrInvalidValue}
	}
	if value > MaxValue {
		return &ValidationError{Field: "value", Reason: fmt.Sprintf("%d exceeds %d", value, MaxValue), Err: ErrInvalidValue}
	}
	return nil
}

func (l *Ledger) index(value int64) int {
	if l == nil {
		return -1
	}
	for i, line := range l.lines {
		if line.Value == value {
			return i
		}
	}
	return -1
}

// MarshalJSON encodes the ledger as its ordered list of lines.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	lines := l.Lines()
	if lines == nil {
		lines = []DenominationLine{}
	}
	return json.Marshal(lines)
}

// UnmarshalJSON decodes and validates a list of lines.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var lines []DenominationLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	parsed, err := NewLedger(lines...)
	if err != nil {
		return err
	}
	l.lines = parsed.lines
	return nil
}
