package sheets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"churchledger/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerRow is one approved record as it appears in the treasury sheet.
	LedgerRow struct {
		RecordID     string
		ServiceDate  core.Date
		BranchName   string
		ServiceTitle string
		ByFund       []core.FundAmount
		GrandTotal   int64
		Attendance   int64
		ApprovedBy   string
		ApprovedAt   time.Time
	}

	// LedgerWriter appends approved records. Writing the same record twice
	// must not produce a second row.
	LedgerWriter interface {
		AppendRecord(ctx context.Context, row LedgerRow) (rowRef string, err error)
	}
)

// MemoryWriter keeps rows in memory; used when no spreadsheet is configured.
type MemoryWriter struct {
	mu   sync.Mutex
	rows []LedgerRow
	idx  map[string]int
}

var _ LedgerWriter = (*MemoryWriter)(nil)

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{idx: map[string]int{}}
}

func (m *MemoryWriter) AppendRecord(_ context.Context, row LedgerRow) (string, error) {
	if row.RecordID == "" {
		return "", core.NewValidationError("recordId", "row has no record id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idx == nil {
		m.idx = map[string]int{}
	}
	if i, ok := m.idx[row.RecordID]; ok {
		m.rows[i] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	m.rows = append(m.rows, row)
	m.idx[row.RecordID] = len(m.rows) - 1
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

// Rows returns a copy of the written rows.
func (m *MemoryWriter) Rows() []LedgerRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LedgerRow(nil), m.rows...)
}
