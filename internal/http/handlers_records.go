package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"churchledger/internal/aggregate"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/report"
	"churchledger/internal/storage"
)

type (
	rejectRequest struct {
		Reason string `json:"reason" validate:"max=500"`
	}

	// totalsResponse is a record's derived figures plus the roles still
	// expected to sign it.
	totalsResponse struct {
		RecordID    string                   `json:"recordId"`
		Status      core.Status              `json:"status"`
		Totals      aggregate.Totals         `json:"totals"`
		InWords     string                   `json:"grandTotalInWords"`
		Outstanding []core.Role              `json:"outstandingSignatures"`
		Signatures  []core.Signature         `json:"signatures"`
		Mode        aggregate.AttendanceMode `json:"attendanceMode"`
	}

	rollupResponse struct {
		core.PeriodSummary
		Services []aggregate.ServiceLine `json:"services,omitempty"`
	}
)

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var draft core.RecordDraft
	if err := DecodeJSON(w, r, &draft); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	sanitizeDraft(&draft)
	rec, err := s.deps.Workflow.Create(r.Context(), r.PathValue("id"), draft, actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/records/"+rec.ID).Data(rec).Write(w)
}

func (s *Server) handleGetServiceRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Workflow.GetByService(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

// handleListRecords accepts ?branchId=, ?status= and a from/to date range.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to, err := ParseDateRange(query)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	status, err := parseStatus(query.Get("status"))
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	list, err := s.deps.Workflow.List(r.Context(), actorFrom(r), storage.RecordFilter{
		BranchID: strings.TrimSpace(query.Get("branchId")),
		From:     from,
		To:       to,
		Status:   status,
	})
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(list)).Write(w)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Workflow.Get(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	var draft core.RecordDraft
	if err := DecodeJSON(w, r, &draft); err != nil {
		s.fail(w, r, applog.OpSave, err)
		return
	}
	sanitizeDraft(&draft)
	rec, err := s.deps.Workflow.Save(r.Context(), r.PathValue("id"), draft, actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpSave, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

func (s *Server) handleApproveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Workflow.Approve(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpApprove, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

// handleRejectRecord takes an optional JSON body with a reason.
func (s *Server) handleRejectRecord(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := DecodeJSON(w, r, &req); err != nil {
			s.fail(w, r, applog.OpReject, err)
			return
		}
	}
	rec, err := s.deps.Workflow.Reject(r.Context(), r.PathValue("id"), actorFrom(r), sanitizeInput(req.Reason))
	if err != nil {
		s.fail(w, r, applog.OpReject, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

func (s *Server) handleResubmitRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Workflow.Resubmit(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpResubmit, err)
		return
	}
	NewJSONResponse().Data(rec).Write(w)
}

func (s *Server) handleRecordTotals(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Workflow.Get(r.Context(), r.PathValue("id"), actorFrom(r))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	mode, err := s.attendanceMode(r)
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	totals := aggregate.RecordTotals(rec, mode)
	outstanding := s.deps.Workflow.Policy().Outstanding(rec)
	NewJSONResponse().Data(totalsResponse{
		RecordID:    rec.ID,
		Status:      rec.Status,
		Totals:      totals,
		InWords:     core.AmountInWords(totals.Grand),
		Outstanding: nonNil(outstanding),
		Signatures:  nonNil(rec.Signatures),
		Mode:        mode,
	}).Write(w)
}

// handleRecordReport renders the record as ?format=pdf|xlsx|html. With
// ?archive=true the rendered file is also stored and its location returned
// in the X-Report-Location header.
func (s *Server) handleRecordReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFrom(r)

	rec, err := s.deps.Workflow.Get(ctx, r.PathValue("id"), actor)
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}
	renderer, err := report.RendererFor(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}
	mode, err := s.attendanceMode(r)
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}
	archive, _ := strconv.ParseBool(r.URL.Query().Get("archive"))
	if archive && s.deps.Archive == nil {
		s.fail(w, r, applog.OpRender, core.NewValidationError("archive", "report archiving is not configured"))
		return
	}

	svc, err := s.deps.Directory.GetService(ctx, rec.ServiceID)
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}
	branchName, err := s.deps.Directory.BranchName(ctx, rec.BranchID)
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}
	doc, err := report.Compile(svc, rec, branchName, s.deps.Catalog, mode)
	if err != nil {
		s.fail(w, r, applog.OpRender, err)
		return
	}

	var buf bytes.Buffer
	if err := renderer.Render(ctx, doc, &buf); err != nil {
		s.fail(w, r, applog.OpRender, fmt.Errorf("render %s report: %w", renderer.Extension(), err))
		return
	}
	name := report.FileName(doc, renderer.Extension())

	if archive {
		location, err := s.deps.Archive.Save(ctx, rec.BranchID+"/"+name, renderer.ContentType(), buf.Bytes())
		if err != nil {
			s.fail(w, r, applog.OpRender, fmt.Errorf("archive report: %w", err))
			return
		}
		w.Header().Set("X-Report-Location", location)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveReport(renderer.Extension())
	}
	applog.FromContext(ctx).InfoContext(ctx, "Report rendered",
		applog.FieldOperation, applog.OpRender,
		applog.FieldRecordID, rec.ID,
		"format", renderer.Extension(),
		"bytes", buf.Len())

	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleRollup summarises records over ?from=&to=. With ?branchId= the
// response also carries that branch's per-service series, including
// services that have no record yet.
func (s *Server) handleRollup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	from, to, err := ParseDateRange(query)
	if err != nil {
		s.fail(w, r, applog.OpRollup, err)
		return
	}
	mode, err := s.attendanceMode(r)
	if err != nil {
		s.fail(w, r, applog.OpRollup, err)
		return
	}
	branchID := strings.TrimSpace(query.Get("branchId"))

	records, err := s.deps.Workflow.ListInRange(ctx, actorFrom(r), branchID, from, to)
	if err != nil {
		s.fail(w, r, applog.OpRollup, err)
		return
	}
	resp := rollupResponse{PeriodSummary: aggregate.Summarize(from, to, records, mode, s.deps.Catalog)}

	if branchID != "" {
		services, err := s.deps.Directory.ListServicesInRange(ctx, branchID, from, to)
		if err != nil {
			s.fail(w, r, applog.OpRollup, err)
			return
		}
		byService := make(map[string]*core.ServiceRecord, len(records))
		for _, rec := range records {
			byService[rec.ServiceID] = rec
		}
		resp.Services = aggregate.ServiceSeries(services, byService, mode)
	}
	NewJSONResponse().Data(resp).Write(w)
}

// attendanceMode honours ?attendance=core|all over the configured default.
func (s *Server) attendanceMode(r *http.Request) (aggregate.AttendanceMode, error) {
	v := r.URL.Query().Get("attendance")
	if v == "" {
		return s.deps.AttendanceMode, nil
	}
	mode, err := aggregate.ParseAttendanceMode(v)
	if err != nil {
		return "", core.NewValidationError("attendance", err.Error())
	}
	return mode, nil
}

func parseStatus(s string) (core.Status, error) {
	switch st := core.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return "", nil
	case core.StatusPending, core.StatusApproved, core.StatusRejected:
		return st, nil
	}
	return "", core.NewValidationError("status", fmt.Sprintf("unknown status %q", s))
}
