// Package aggregate is the single place where ledger and attendance totals
// are derived. Handlers, the report compiler, the sync worker and the
// rollup endpoints all call into it instead of summing on their own.
package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"churchledger/internal/core"
)

// AttendanceMode selects which categories count toward "total attendance".
type AttendanceMode string

const (
	// AttendanceCore sums male, female, teenager and children.
	AttendanceCore AttendanceMode = "core"
	// AttendanceAll also adds first timers and NC.
	AttendanceAll AttendanceMode = "all"
)

// ParseAttendanceMode accepts "core" or "all"; empty means core.
func ParseAttendanceMode(s string) (AttendanceMode, error) {
	switch AttendanceMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", AttendanceCore:
		return AttendanceCore, nil
	case AttendanceAll:
		return AttendanceAll, nil
	}
	return "", fmt.Errorf("unknown attendance mode %q: must be core or all", s)
}

// Totals is the full derived view of one record.
type Totals struct {
	ByFund     map[core.FundName]int64 `json:"byFund"`
	Notes      int64                   `json:"notes"`
	Coins      int64                   `json:"coins"`
	Grand      int64                   `json:"grandTotal"`
	Attendance int64                   `json:"attendanceTotal"`
}

// FundTotals returns count×value summed per fund.
func FundTotals(l *core.Ledger) map[core.FundName]int64 {
	return l.TotalsByFund()
}

// GrandTotal returns the sum of every fund total.
func GrandTotal(l *core.Ledger) int64 {
	return l.GrandTotal()
}

// AttendanceTotal applies the configured mode to a tally.
func AttendanceTotal(a core.Attendance, mode AttendanceMode) int64 {
	if mode == AttendanceAll {
		return a.AllTotal()
	}
	return a.CoreTotal()
}

// RecordTotals derives every total for a record. A nil record yields zeros.
func RecordTotals(r *core.ServiceRecord, mode AttendanceMode) Totals {
	t := Totals{ByFund: map[core.FundName]int64{}}
	if r == nil {
		return t
	}
	t.ByFund = FundTotals(r.Ledger)
	for _, line := range r.Ledger.Lines() {
		if line.IsNote() {
			t.Notes += line.Total()
		} else {
			t.Coins += line.Total()
		}
	}
	t.Grand = t.Notes + t.Coins
	t.Attendance = AttendanceTotal(r.Attendance, mode)
	return t
}

// PeriodRollup groups records by branch. Nil entries are skipped.
func PeriodRollup(records []*core.ServiceRecord, mode AttendanceMode) map[string]core.BranchRollup {
	out := make(map[string]core.BranchRollup)
	for _, r := range records {
		if r == nil {
			continue
		}
		b := out[r.BranchID]
		b.BranchID = r.BranchID
		b.TotalIncome += GrandTotal(r.Ledger)
		b.ServiceCount++
		b.AttendanceTotal += AttendanceTotal(r.Attendance, mode)
		out[r.BranchID] = b
	}
	return out
}

// ServiceLine is one service's contribution to a dashboard series.
type ServiceLine struct {
	ServiceID  string    `json:"serviceId"`
	Title      string    `json:"title"`
	Date       core.Date `json:"date"`
	Income     int64     `json:"income"`
	Attendance int64     `json:"attendance"`
	HasRecord  bool      `json:"hasRecord"`
}

// ServiceSeries pairs services with their records (keyed by service ID).
// A service with no record contributes zero rather than failing.
func ServiceSeries(services []core.Service, records map[string]*core.ServiceRecord, mode AttendanceMode) []ServiceLine {
	out := make([]ServiceLine, 0, len(services))
	for _, s := range services {
		line := ServiceLine{ServiceID: s.ID, Title: s.Title, Date: s.Date}
		if r, ok := records[s.ID]; ok && r != nil {
			line.HasRecord = true
			line.Income = GrandTotal(r.Ledger)
			line.Attendance = AttendanceTotal(r.Attendance, mode)
		}
		out = append(out, line)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// Summarize builds the consolidated cross-branch summary for a period.
func Summarize(from, to core.Date, records []*core.ServiceRecord, mode AttendanceMode, cat core.Catalog) core.PeriodSummary {
	branches := PeriodRollup(records, mode)
	s := core.PeriodSummary{
		From:          from,
		To:            to,
		TotalBranches: len(branches),
		Branches:      branches,
	}
	byFund := make(map[core.FundName]int64)
	for _, r := range records {
		if r == nil {
			continue
		}
		for f, v := range FundTotals(r.Ledger) {
			byFund[f] += v
		}
	}
	for _, b := range branches {
		s.TotalServices += b.ServiceCount
		s.TotalAmount += b.TotalIncome
		s.TotalPresent += b.AttendanceTotal
	}
	for _, f := range cat.FundOrder(byFund) {
		if v, ok := byFund[f]; ok {
			s.ByFund = append(s.ByFund, core.FundAmount{Fund: f, Amount: v})
		}
	}
	return s
}
