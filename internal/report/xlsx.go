package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Service Details"

// XLSXRenderer writes the document to a single worksheet with numeric cells.
type XLSXRenderer struct{}

func (XLSXRenderer) Render(ctx context.Context, doc Document, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	xw := &xlsxWriter{f: f, row: 1}
	xw.set(1, doc.BranchName)
	xw.style(1, bold)
	xw.next()
	xw.set(1, doc.Title+": "+doc.ServiceTitle)
	xw.set(2, doc.ServiceDay+" "+doc.ServiceDate)
	xw.next()
	xw.next()

	for _, s := range []Section{doc.Notes, doc.Coins} {
		xw.set(1, s.Title)
		xw.style(1, bold)
		xw.next()
		xw.header(doc, bold)
		for _, r := range s.Rows {
			xw.amounts(r.Label, r.Amounts, r.Total)
		}
		xw.amounts(s.Title+" subtotal", s.Subtotals, s.Total)
		xw.style(len(doc.Columns)+2, bold)
		xw.next()
	}
	xw.amounts("Fund totals", doc.FundTotals, doc.GrandTotal)
	xw.style(len(doc.Columns)+2, bold)
	xw.set(1, "Grand total in words")
	xw.set(2, doc.GrandTotalWords)
	xw.next()
	xw.next()

	xw.set(1, "Attendance")
	xw.style(1, bold)
	xw.next()
	for _, a := range doc.Attendance {
		xw.set(1, a.Label)
		xw.set(2, a.Count)
		xw.next()
	}
	xw.set(1, "Total")
	xw.set(2, doc.AttendanceTotal)
	xw.style(2, bold)
	xw.next()
	xw.next()

	for _, kv := range [][2]string{
		{"Message", doc.MessageTitle},
		{"Preacher", doc.Preacher},
		{"Zonal Pastor", doc.ZonalPastor},
		{"Counters", strings.Join(doc.Counters, ", ")},
		{"Status", doc.Status},
		{"Approved By", doc.ApprovedBy},
		{"Approved At", doc.ApprovedAt},
	} {
		xw.set(1, kv[0])
		xw.set(2, kv[1])
		xw.next()
	}
	for _, s := range doc.Signatures {
		xw.set(1, s.Role)
		xw.set(2, s.ActorID)
		xw.set(3, s.SignedAt)
		xw.next()
	}

	if xw.err != nil {
		return fmt.Errorf("fill worksheet: %w", xw.err)
	}
	if err := f.SetColWidth(xlsxSheet, "A", "A", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("render xlsx report: %w", err)
	}
	return nil
}

func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}
func (XLSXRenderer) Extension() string { return "xlsx" }

// xlsxWriter fills one row at a time and keeps the first error.
type xlsxWriter struct {
	f   *excelize.File
	row int
	err error
}

func (x *xlsxWriter) cell(col int) string {
	name, err := excelize.CoordinatesToCellName(col, x.row)
	if err != nil && x.err == nil {
		x.err = err
	}
	return name
}

func (x *xlsxWriter) set(col int, v any) {
	if x.err != nil {
		return
	}
	if err := x.f.SetCellValue(xlsxSheet, x.cell(col), v); err != nil {
		x.err = err
	}
}

func (x *xlsxWriter) style(col, id int) {
	if x.err != nil {
		return
	}
	c := x.cell(col)
	if err := x.f.SetCellStyle(xlsxSheet, c, c, id); err != nil {
		x.err = err
	}
}

func (x *xlsxWriter) header(doc Document, bold int) {
	x.set(1, "Denomination")
	for i, c := range doc.Columns {
		x.set(i+2, c.Label)
	}
	x.set(len(doc.Columns)+2, "Total")
	if x.err == nil {
		if err := x.f.SetCellStyle(xlsxSheet, x.cell(1), x.cell(len(doc.Columns)+2), bold); err != nil {
			x.err = err
		}
	}
	x.next()
}

func (x *xlsxWriter) amounts(label string, amounts []int64, total int64) {
	x.set(1, label)
	for i, a := range amounts {
		x.set(i+2, a)
	}
	x.set(len(amounts)+2, total)
	x.next()
}

func (x *xlsxWriter) next() { x.row++ }
