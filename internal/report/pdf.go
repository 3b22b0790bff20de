package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer lays the document out on A4 portrait pages.
type PDFRenderer struct{}

const (
	pdfMargin     = 10.0
	pdfPageWidth  = 210.0
	pdfLineHeight = 6.0
)

func (PDFRenderer) Render(ctx context.Context, doc Document, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(doc.Title+" "+doc.ServiceDate, true)
	// Core fonts are cp1252; translate labels and drop glyphs it lacks (the naira sign).
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr(doc.BranchName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, tr(fmt.Sprintf("%s: %s, %s %s", doc.Title, doc.ServiceTitle, doc.ServiceDay, doc.ServiceDate)), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	colW := (pdfPageWidth - 2*pdfMargin) / float64(len(doc.Columns)+2)
	header := func() {
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(242, 242, 242)
		pdf.CellFormat(colW, pdfLineHeight, "Denomination", "1", 0, "L", true, 0, "")
		for _, c := range doc.Columns {
			pdf.CellFormat(colW, pdfLineHeight, tr(c.Label), "1", 0, "R", true, 0, "")
		}
		pdf.CellFormat(colW, pdfLineHeight, "Total", "1", 1, "R", true, 0, "")
	}
	amountRow := func(label string, amounts []int64, total int64, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 8)
		pdf.CellFormat(colW, pdfLineHeight, tr(label), "1", 0, "L", false, 0, "")
		for _, a := range amounts {
			pdf.CellFormat(colW, pdfLineHeight, money(a), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(colW, pdfLineHeight, money(total), "1", 1, "R", false, 0, "")
	}

	for _, s := range []Section{doc.Notes, doc.Coins} {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, s.Title, "", 1, "L", false, 0, "")
		header()
		for _, r := range s.Rows {
			amountRow(r.Label, r.Amounts, r.Total, false)
		}
		amountRow(s.Title+" subtotal", s.Subtotals, s.Total, true)
		pdf.Ln(2)
	}
	amountRow("Fund totals", doc.FundTotals, doc.GrandTotal, true)

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr("Grand total: "+money(doc.GrandTotal)+" ("+doc.GrandTotalWords+")"), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, "Attendance", "", 1, "L", false, 0, "")
	attW := (pdfPageWidth - 2*pdfMargin) / float64(len(doc.Attendance)+1)
	pdf.SetFont("Helvetica", "B", 8)
	for _, a := range doc.Attendance {
		pdf.CellFormat(attW, pdfLineHeight, tr(a.Label), "1", 0, "C", true, 0, "")
	}
	pdf.CellFormat(attW, pdfLineHeight, "Total", "1", 1, "C", true, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	for _, a := range doc.Attendance {
		pdf.CellFormat(attW, pdfLineHeight, strconv.FormatInt(a.Count, 10), "1", 0, "C", false, 0, "")
	}
	pdf.CellFormat(attW, pdfLineHeight, strconv.FormatInt(doc.AttendanceTotal, 10), "1", 1, "C", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "", 9)
	for _, kv := range [][2]string{
		{"Message", doc.MessageTitle},
		{"Preacher", doc.Preacher},
		{"Zonal Pastor", doc.ZonalPastor},
		{"Counters", strings.Join(doc.Counters, ", ")},
		{"Status", doc.Status},
	} {
		pdf.CellFormat(35, pdfLineHeight, kv[0]+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(0, pdfLineHeight, tr(kv[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 8, "Signatures", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if len(doc.Signatures) == 0 {
		pdf.CellFormat(0, pdfLineHeight, "Not signed", "", 1, "L", false, 0, "")
	}
	for _, s := range doc.Signatures {
		pdf.CellFormat(40, 10, tr(s.Role), "B", 0, "L", false, 0, "")
		pdf.CellFormat(70, 10, tr(s.ActorID), "B", 0, "L", false, 0, "")
		pdf.CellFormat(0, 10, s.SignedAt, "B", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf report: %w", err)
	}
	return nil
}

func (PDFRenderer) ContentType() string { return "application/pdf" }
func (PDFRenderer) Extension() string   { return "pdf" }
