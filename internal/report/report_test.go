package report

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"churchledger/internal/aggregate"
	"churchledger/internal/core"
)

func sampleRecord(t *testing.T) (core.Service, *core.ServiceRecord) {
	t.Helper()
	l := &core.Ledger{}
	require.NoError(t, l.AddDenomination(1000))
	require.NoError(t, l.AddDenomination(500))
	require.NoError(t, l.SetCount(1000, core.FundOffering, 3))
	require.NoError(t, l.SetCount(1000, core.FundTithe, 1))
	require.NoError(t, l.SetCount(500, core.FundOffering, 2))

	approvedAt := time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC)
	svc := core.Service{ID: "svc-1", BranchID: "br-1", Title: "Sunday Service", Date: core.NewDate(2024, 3, 3)}
	rec := &core.ServiceRecord{
		ID:           "rec-1",
		ServiceID:    "svc-1",
		BranchID:     "br-1",
		Ledger:       l,
		Attendance:   core.Attendance{Male: 10, Female: 12, Teenager: 3, Children: 5, FirstTimers: 2, NC: 1},
		MessageTitle: "Grace",
		Preacher:     "Pastor A",
		Counters:     []string{"ada", "bola"},
		Status:       core.StatusApproved,
		Signatures:   []core.Signature{{Role: core.RoleApprover, ActorID: "u-2", SignedAt: approvedAt}},
		ApprovedBy:   "u-2",
		ApprovedAt:   &approvedAt,
	}
	return svc, rec
}

func TestCompile(t *testing.T) {
	svc, rec := sampleRecord(t)
	doc, err := Compile(svc, rec, " Main Branch ", core.DefaultCatalog(), aggregate.AttendanceCore)
	require.NoError(t, err)

	assert.Equal(t, "Main Branch", doc.BranchName)
	assert.Equal(t, "2024-03-03", doc.ServiceDate)
	assert.Equal(t, "Sunday", doc.ServiceDay)
	assert.Equal(t, "₦", doc.Currency)
	require.Len(t, doc.Columns, 7)
	assert.Equal(t, "Offering", doc.Columns[0].Label)
	assert.Equal(t, "Tithe", doc.Columns[1].Label)

	require.Len(t, doc.Notes.Rows, 1)
	assert.Equal(t, int64(1000), doc.Notes.Rows[0].Value)
	assert.Equal(t, "1 000", doc.Notes.Rows[0].Label)
	assert.Equal(t, int64(3), doc.Notes.Rows[0].Counts[0])
	assert.Equal(t, int64(3000), doc.Notes.Rows[0].Amounts[0])
	assert.Equal(t, int64(4000), doc.Notes.Total)
	assert.Equal(t, []int64{3000, 1000, 0, 0, 0, 0, 0}, doc.Notes.Subtotals)

	require.Len(t, doc.Coins.Rows, 1, "500 is printed with the coins")
	assert.Equal(t, int64(1000), doc.Coins.Total)

	assert.Equal(t, []int64{4000, 1000, 0, 0, 0, 0, 0}, doc.FundTotals)
	assert.Equal(t, int64(5000), doc.GrandTotal)
	assert.Equal(t, "Five Thousand", doc.GrandTotalWords)
	assert.Equal(t, int64(30), doc.AttendanceTotal)
	require.Len(t, doc.Attendance, 6)

	require.Len(t, doc.Signatures, 1)
	assert.Equal(t, "Approver", doc.Signatures[0].Role)
	assert.Equal(t, "2024-03-03T14:00:00Z", doc.ApprovedAt)
}

func TestCompileAllAttendanceAndExtraFunds(t *testing.T) {
	svc, rec := sampleRecord(t)
	require.NoError(t, rec.Ledger.SetCount(500, core.FundName("building"), 4))

	doc, err := Compile(svc, rec, "Main", core.DefaultCatalog(), aggregate.AttendanceAll)
	require.NoError(t, err)
	assert.Equal(t, int64(33), doc.AttendanceTotal)
	require.Len(t, doc.Columns, 8)
	assert.Equal(t, core.FundName("building"), doc.Columns[7].Fund)
	assert.Equal(t, "Building", doc.Columns[7].Label)
	assert.Equal(t, int64(2000), doc.FundTotals[7])
	assert.Equal(t, int64(7000), doc.GrandTotal)
}

func TestCompileRejectsBadInput(t *testing.T) {
	svc, rec := sampleRecord(t)
	cat := core.DefaultCatalog()

	_, err := Compile(svc, nil, "Main", cat, aggregate.AttendanceCore)
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = Compile(core.Service{ID: "other"}, rec, "Main", cat, aggregate.AttendanceCore)
	assert.True(t, errors.Is(err, core.ErrValidation))

	rec.Ledger = nil
	_, err = Compile(svc, rec, "Main", cat, aggregate.AttendanceCore)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestCompileFallsBackToRecordDate(t *testing.T) {
	_, rec := sampleRecord(t)
	rec.ServiceDate = core.NewDate(2024, 3, 6)
	doc, err := Compile(core.Service{}, rec, "Main", core.DefaultCatalog(), aggregate.AttendanceCore)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-06", doc.ServiceDate)
	assert.Equal(t, "Wednesday", doc.ServiceDay)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Service Details 2024-03-03.pdf", FileName(Document{ServiceDate: "2024-03-03"}, "pdf"))
	assert.Equal(t, "Service Details 2024-03-03.xlsx", FileName(Document{ServiceDate: "2024-03-03"}, ".xlsx"))
	assert.Equal(t, "Service Details.html", FileName(Document{}, "html"))
}

func TestRendererFor(t *testing.T) {
	for _, format := range append([]string{"", "PDF"}, Formats...) {
		r, err := RendererFor(format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, r.ContentType())
	}
	_, err := RendererFor("docx")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestRenderers(t *testing.T) {
	svc, rec := sampleRecord(t)
	doc, err := Compile(svc, rec, "Main <Branch>", core.DefaultCatalog(), aggregate.AttendanceCore)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("pdf", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PDFRenderer{}.Render(ctx, doc, &buf))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	})

	t.Run("xlsx", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, XLSXRenderer{}.Render(ctx, doc, &buf))

		f, err := excelize.OpenReader(&buf)
		require.NoError(t, err)
		defer f.Close()
		v, err := f.GetCellValue(xlsxSheet, "A1")
		require.NoError(t, err)
		assert.Equal(t, "Main <Branch>", v)
	})

	t.Run("html", func(t *testing.T) {
		r, err := NewHTMLRenderer()
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, r.Render(ctx, doc, &buf))
		out := buf.String()
		assert.Contains(t, out, "Main &lt;Branch&gt;")
		assert.Contains(t, out, "Five Thousand")
		assert.Contains(t, out, "5,000")
		assert.Contains(t, out, "ada, bola")
		assert.False(t, strings.Contains(out, "Not signed"))
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, PDFRenderer{}.Render(cctx, doc, &bytes.Buffer{}), context.Canceled)
	})
}
