package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/core"
)

func recordWithTotal(t *testing.T, branch string, amount int64, att core.Attendance) *core.ServiceRecord {
	t.Helper()
	l := &core.Ledger{}
	require.NoError(t, l.AddDenomination(1))
	require.NoError(t, l.SetCount(1, core.FundOffering, amount))
	return &core.ServiceRecord{BranchID: branch, Ledger: l, Attendance: att}
}

func TestPeriodRollup(t *testing.T) {
	records := []*core.ServiceRecord{
		recordWithTotal(t, "A", 5000, core.Attendance{Male: 10, Female: 5, FirstTimers: 3}),
		recordWithTotal(t, "A", 3000, core.Attendance{Children: 4}),
		nil,
		recordWithTotal(t, "B", 2000, core.Attendance{Teenager: 7, NC: 2}),
	}

	got := PeriodRollup(records, AttendanceCore)
	assert.Equal(t, map[string]core.BranchRollup{
		"A": {BranchID: "A", TotalIncome: 8000, ServiceCount: 2, AttendanceTotal: 19},
		"B": {BranchID: "B", TotalIncome: 2000, ServiceCount: 1, AttendanceTotal: 7},
	}, got)

	all := PeriodRollup(records, AttendanceAll)
	assert.Equal(t, int64(22), all["A"].AttendanceTotal)
	assert.Equal(t, int64(9), all["B"].AttendanceTotal)
}

func TestRecordTotalsSplitsNotesAndCoins(t *testing.T) {
	l := &core.Ledger{}
	require.NoError(t, l.AddDenomination(1000))
	require.NoError(t, l.AddDenomination(500))
	require.NoError(t, l.SetCount(1000, core.FundOffering, 3))
	require.NoError(t, l.SetCount(1000, core.FundTithe, 1))
	require.NoError(t, l.SetCount(500, core.FundOffering, 2))

	totals := RecordTotals(&core.ServiceRecord{Ledger: l, Attendance: core.Attendance{Male: 10, Female: 12, Teenager: 3, Children: 5, FirstTimers: 2, NC: 1}}, AttendanceCore)
	assert.Equal(t, map[core.FundName]int64{core.FundOffering: 4000, core.FundTithe: 1000}, totals.ByFund)
	assert.Equal(t, int64(4000), totals.Notes)
	assert.Equal(t, int64(1000), totals.Coins)
	assert.Equal(t, int64(5000), totals.Grand)
	assert.Equal(t, int64(30), totals.Attendance)

	empty := RecordTotals(nil, AttendanceCore)
	assert.Zero(t, empty.Grand)
	assert.Empty(t, empty.ByFund)
}

func TestServiceSeriesToleratesMissingRecords(t *testing.T) {
	services := []core.Service{
		{ID: "s2", Title: "Evening", Date: core.NewDate(2024, 3, 10)},
		{ID: "s1", Title: "Morning", Date: core.NewDate(2024, 3, 3)},
	}
	records := map[string]*core.ServiceRecord{
		"s2": recordWithTotal(t, "A", 750, core.Attendance{Male: 2}),
	}

	series := ServiceSeries(services, records, AttendanceCore)
	require.Len(t, series, 2)
	assert.Equal(t, "s1", series[0].ServiceID)
	assert.False(t, series[0].HasRecord)
	assert.Zero(t, series[0].Income)
	assert.Equal(t, int64(750), series[1].Income)
	assert.Equal(t, int64(2), series[1].Attendance)
}

func TestSummarize(t *testing.T) {
	records := []*core.ServiceRecord{
		recordWithTotal(t, "A", 5000, core.Attendance{Male: 1}),
		recordWithTotal(t, "B", 2000, core.Attendance{Female: 2}),
	}
	s := Summarize(core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 31), records, AttendanceCore, core.DefaultCatalog())
	assert.Equal(t, 2, s.TotalBranches)
	assert.Equal(t, 2, s.TotalServices)
	assert.Equal(t, int64(7000), s.TotalAmount)
	assert.Equal(t, int64(3), s.TotalPresent)
	assert.Equal(t, []core.FundAmount{{Fund: core.FundOffering, Amount: 7000}}, s.ByFund)
}

func TestParseAttendanceMode(t *testing.T) {
	m, err := ParseAttendanceMode("")
	require.NoError(t, err)
	assert.Equal(t, AttendanceCore, m)
	m, err = ParseAttendanceMode("ALL")
	require.NoError(t, err)
	assert.Equal(t, AttendanceAll, m)
	_, err = ParseAttendanceMode("gender")
	assert.Error(t, err)
}
