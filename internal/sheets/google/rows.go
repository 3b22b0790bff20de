package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"churchledger/internal/core"
	ports "churchledger/internal/sheets"
)

// headerRow is the first row of a treasury sheet.
func headerRow(funds []core.FundSpec) []any {
	out := []any{"Record ID", "Service Date", "Branch", "Service"}
	for _, f := range funds {
		out = append(out, f.Label)
	}
	return append(out, "Other Funds", "Grand Total", "Attendance", "Approved By", "Approved At")
}

// recordRow lays a ledger row out in header order. Funds missing from the
// catalog are summed into the "Other Funds" column.
func recordRow(row ports.LedgerRow, funds []core.FundSpec) []any {
	amounts := make(map[core.FundName]int64, len(row.ByFund))
	for _, fa := range row.ByFund {
		amounts[fa.Fund] += fa.Amount
	}
	out := []any{row.RecordID, row.ServiceDate.String(), row.BranchName, row.ServiceTitle}
	for _, f := range funds {
		out = append(out, amounts[f.Name])
		delete(amounts, f.Name)
	}
	var other int64
	for _, v := range amounts {
		other += v
	}
	approvedAt := ""
	if !row.ApprovedAt.IsZero() {
		approvedAt = row.ApprovedAt.UTC().Format(time.RFC3339)
	}
	return append(out, other, row.GrandTotal, row.Attendance, row.ApprovedBy, approvedAt)
}

// findRow returns the 1-based sheet row whose first cell is recordID, or 0.
func findRow(values [][]any, recordID string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == recordID {
			return i + 1
		}
	}
	return 0
}

// columnName converts a 1-based column index to A1 notation (1 → A, 27 → AA).
func columnName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
