// Package report turns a service record into a fixed-layout document and
// renders it as HTML, PDF or XLSX. Compile is pure; renderers only write
// bytes to the writer they are given.
package report

import (
	"fmt"
	"strings"
	"time"

	"churchledger/internal/aggregate"
	"churchledger/internal/core"
)

// Title heads every report and prefixes its file name.
const Title = "Service Details"

type (
	// Column is one fund column of the denomination tables.
	Column struct {
		Fund  core.FundName
		Label string
	}

	// Row is one denomination line. Counts and Amounts follow Document.Columns.
	Row struct {
		Value   int64
		Label   string
		Counts  []int64
		Amounts []int64
		Total   int64
	}

	// Section is the notes or coins table with its subtotals.
	Section struct {
		Title     string
		Rows      []Row
		Subtotals []int64
		Total     int64
	}

	AttendanceLine struct {
		Label string
		Count int64
	}

	SignatureLine struct {
		Role     string
		ActorID  string
		SignedAt string
	}

	// Document is the compiled report. Every figure is precomputed so
	// renderers never do arithmetic.
	Document struct {
		Title        string
		BranchName   string
		ServiceTitle string
		ServiceDate  string
		ServiceDay   string
		Currency     string
		Status       string

		Columns    []Column
		Notes      Section
		Coins      Section
		FundTotals []int64
		GrandTotal int64
		// GrandTotalWords spells GrandTotal in English.
		GrandTotalWords string

		Attendance      []AttendanceLine
		AttendanceTotal int64
		AttendanceMode  string

		MessageTitle string
		Preacher     string
		ZonalPastor  string
		Counters     []string
		Signatures   []SignatureLine
		ApprovedBy   string
		ApprovedAt   string
	}
)

// Compile builds the report document for a record. The service supplies the
// title and date; branchName is printed in the header.
func Compile(service core.Service, rec *core.ServiceRecord, branchName string, cat core.Catalog, mode aggregate.AttendanceMode) (Document, error) {
	if rec == nil {
		return Document{}, core.NewValidationError("record", "record is required")
	}
	if rec.Ledger == nil {
		return Document{}, core.NewValidationError("denominations", "ledger is required")
	}
	if service.ID != "" && rec.ServiceID != "" && service.ID != rec.ServiceID {
		return Document{}, core.NewValidationError("serviceId", fmt.Sprintf("record belongs to service %s", rec.ServiceID))
	}

	totals := aggregate.RecordTotals(rec, mode)

	date := service.Date
	if date.IsZero() {
		date = rec.ServiceDate
	}
	doc := Document{
		Title:        Title,
		BranchName:   strings.TrimSpace(branchName),
		ServiceTitle: service.Title,
		ServiceDate:  date.String(),
		ServiceDay:   service.Day,
		Currency:     cat.Currency,
		Status:       string(rec.Status),
		MessageTitle: rec.MessageTitle,
		Preacher:     rec.Preacher,
		ZonalPastor:  rec.ZonalPastor,
		Counters:     append([]string(nil), rec.Counters...),
		ApprovedBy:   rec.ApprovedBy,

		GrandTotal:      totals.Grand,
		GrandTotalWords: core.AmountInWords(totals.Grand),
		AttendanceTotal: totals.Attendance,
		AttendanceMode:  string(mode),
	}
	if doc.ServiceDay == "" && !date.IsZero() {
		doc.ServiceDay = date.Weekday().String()
	}
	if rec.ApprovedAt != nil {
		doc.ApprovedAt = rec.ApprovedAt.UTC().Format(time.RFC3339)
	}

	for _, f := range cat.FundOrder(totals.ByFund) {
		doc.Columns = append(doc.Columns, Column{Fund: f, Label: cat.FundLabel(f)})
		doc.FundTotals = append(doc.FundTotals, totals.ByFund[f])
	}

	doc.Notes = Section{Title: "Notes"}
	doc.Coins = Section{Title: "Coins"}
	for _, line := range rec.Ledger.SortedLines() {
		row := Row{Value: line.Value, Label: cat.DenominationLabel(line.Value), Total: line.Total()}
		for _, c := range doc.Columns {
			row.Counts = append(row.Counts, line.Count(c.Fund))
			row.Amounts = append(row.Amounts, line.FundTotal(c.Fund))
		}
		section := &doc.Coins
		if line.IsNote() {
			section = &doc.Notes
		}
		section.Rows = append(section.Rows, row)
	}
	doc.Notes.finish(len(doc.Columns))
	doc.Coins.finish(len(doc.Columns))

	for _, c := range core.AttendanceCategories {
		doc.Attendance = append(doc.Attendance, AttendanceLine{Label: c.Label(), Count: rec.Attendance.Get(c)})
	}

	for _, s := range rec.Signatures {
		doc.Signatures = append(doc.Signatures, SignatureLine{
			Role:     roleLabel(s.Role),
			ActorID:  s.ActorID,
			SignedAt: s.SignedAt.UTC().Format(time.RFC3339),
		})
	}
	return doc, nil
}

func (s *Section) finish(columns int) {
	s.Subtotals = make([]int64, columns)
	for _, r := range s.Rows {
		for i, a := range r.Amounts {
			s.Subtotals[i] += a
		}
		s.Total += r.Total
	}
}

// FileName is "Service Details YYYY-MM-DD.<ext>".
func FileName(doc Document, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if doc.ServiceDate == "" {
		return Title + "." + ext
	}
	return Title + " " + doc.ServiceDate + "." + ext
}

func roleLabel(r core.Role) string {
	switch r {
	case core.RoleCountingUnit:
		return "Counting Unit"
	case core.RoleApprover:
		return "Approver"
	case core.RoleReceiver:
		return "Receiver"
	case core.RoleAdmin:
		return "Admin"
	}
	return string(r)
}
