package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/approval"
	"churchledger/internal/archive"
	"churchledger/internal/auth"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/metrics"
	"churchledger/internal/services"
	"churchledger/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	server   *Server
	verifier *auth.Verifier
	store    *memory.Store
}

func quietLogger() *applog.Logger {
	return applog.New(applog.ConfigFor("test", "error", "text", io.Discard))
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateBranch(ctx, core.Branch{ID: "b1", Name: "Lekki"}))
	require.NoError(t, store.CreateBranch(ctx, core.Branch{ID: "b2", Name: "Abuja"}))
	require.NoError(t, store.CreateService(ctx, core.Service{ID: "svc1", BranchID: "b1", Title: "Sunday Service", Date: core.NewDate(2024, 3, 3)}))
	require.NoError(t, store.CreateService(ctx, core.Service{ID: "svc2", BranchID: "b1", Title: "Midweek", Date: core.NewDate(2024, 3, 6)}))
	for _, u := range []core.User{
		{ID: "u-admin", Email: "admin@example.org", Role: core.RoleAdmin},
		{ID: "u-counter", Email: "counter@example.org", DisplayName: "Ada Counter", Role: core.RoleCountingUnit, BranchID: "b1"},
		{ID: "u-approver", Email: "approver@example.org", Role: core.RoleApprover, BranchID: "b1"},
		{ID: "u-far", Email: "far@example.org", Role: core.RoleApprover, BranchID: "b2"},
	} {
		require.NoError(t, store.UpsertUser(ctx, u))
	}

	logger := quietLogger()
	wf, err := approval.New(store, approval.DefaultPolicy(), core.DefaultCatalog(), approval.WithLogger(logger))
	require.NoError(t, err)
	dir := services.NewDirectory(store, services.WithDirectoryLogger(logger))
	verifier, err := auth.NewVerifier(testSecret, "churchledger-test", dir, auth.WithLogger(logger))
	require.NoError(t, err)

	deps := Deps{
		Workflow:  wf,
		Directory: dir,
		Auth:      verifier,
		Catalog:   core.DefaultCatalog(),
		Metrics:   metrics.New(),
		Logger:    logger,
		Ready:     func(context.Context) error { return nil },
	}
	for _, o := range opts {
		o(&deps)
	}
	s := NewServer(":0", deps)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return &testEnv{server: s, verifier: verifier, store: store}
}

func (e *testEnv) do(t *testing.T, userID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		tok, err := e.verifier.Issue(userID, "", "", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

const recordBody = `{
	"denominations": [
		{"value": 1000, "counts": {"offering": 3, "tithe": 1}},
		{"value": 500, "counts": {"offering": 2}}
	],
	"attendance": {"male": 10, "female": 12, "teenager": 3, "children": 5, "firstTimers": 2},
	"messageTitle": "Grace",
	"preacher": "Pastor Bola"
}`

func createRecord(t *testing.T, e *testEnv) core.ServiceRecord {
	t.Helper()
	w := e.do(t, "u-counter", http.MethodPost, "/api/services/svc1/record", recordBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[core.ServiceRecord](t, w)
}

func TestHealthAndReady(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "", http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = e.do(t, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)

	w = e.do(t, "", http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestReadyReportsStoreFailure(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return core.ErrStoreUnavailable }
	})
	w := e.do(t, "", http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "", http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	w = e.do(t, "u-counter", http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, "counting_unit", me["role"])
	assert.Equal(t, "b1", me["branchId"])
}

func TestUnknownUserIsUnauthenticated(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "u-ghost", http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBranchesAndServices(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "u-counter", http.MethodPost, "/api/branches", `{"name":"Ikeja"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-admin", http.MethodPost, "/api/branches", `{"name":"Ikeja","location":"Lagos"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[core.Branch](t, w)
	assert.Equal(t, "/api/branches/"+b.ID, w.Header().Get("Location"))

	w = e.do(t, "u-admin", http.MethodPost, "/api/branches", `{"location":"Lagos"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[ErrorBody](t, w)
	assert.Equal(t, "required", body.Fields["name"])

	w = e.do(t, "u-counter", http.MethodGet, "/api/branches/search?q=Ik", "")
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]core.Branch](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, "Ikeja", found[0].Name)

	w = e.do(t, "u-counter", http.MethodGet, "/api/branches/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, "u-counter", http.MethodPost, "/api/branches/b1/services", `{"title":"Vigil","date":"2024-03-08"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	svc := decode[core.Service](t, w)
	assert.Equal(t, "Friday", svc.Day)

	w = e.do(t, "u-counter", http.MethodPost, "/api/branches/b2/services", `{"title":"Vigil","date":"2024-03-08"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-counter", http.MethodGet, "/api/branches/b1/services?from=2024-03-05&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]core.Service](t, w), 2)

	w = e.do(t, "u-counter", http.MethodGet, "/api/branches/b1/services?from=2024-03-31&to=2024-03-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUserManagement(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "u-admin", http.MethodPost, "/api/users", `{"email":"new@example.org","role":"receiver","branchId":"b1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	u := decode[core.User](t, w)
	assert.Equal(t, core.RoleReceiver, u.Role)

	w = e.do(t, "u-admin", http.MethodPost, "/api/users", `{"email":"new@example.org","role":"bishop"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, "u-counter", http.MethodPut, "/api/users/"+u.ID+"/branch", `{"branchId":"b2"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-admin", http.MethodPut, "/api/users/"+u.ID+"/branch", `{"branchId":"b2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "b2", decode[core.User](t, w).BranchID)
}

func TestRecordLifecycle(t *testing.T) {
	e := newTestEnv(t)
	rec := createRecord(t, e)
	assert.Equal(t, core.StatusPending, rec.Status)
	assert.Equal(t, "b1", rec.BranchID)

	// A second record for the same service conflicts.
	w := e.do(t, "u-counter", http.MethodPost, "/api/services/svc1/record", recordBody)
	assert.Equal(t, http.StatusConflict, w.Code)
	dup := decode[ErrorBody](t, w)
	assert.Equal(t, "already_exists", dup.Error)
	assert.Contains(t, dup.Message, "record for service svc1")

	w = e.do(t, "u-counter", http.MethodGet, "/api/services/svc1/record", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rec.ID, decode[core.ServiceRecord](t, w).ID)

	w = e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/totals", "")
	require.Equal(t, http.StatusOK, w.Code)
	totals := decode[totalsResponse](t, w)
	assert.Equal(t, int64(5000), totals.Totals.Grand)
	assert.Equal(t, int64(4000), totals.Totals.Notes)
	assert.Equal(t, int64(30), totals.Totals.Attendance)
	assert.Equal(t, "Five Thousand", totals.InWords)
	assert.Equal(t, []core.Role{core.RoleApprover}, totals.Outstanding)

	w = e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/totals?attendance=all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(32), decode[totalsResponse](t, w).Totals.Attendance)

	w = e.do(t, "u-counter", http.MethodPost, "/api/records/"+rec.ID+"/approve", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-far", http.MethodGet, "/api/records/"+rec.ID, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/approve", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[core.ServiceRecord](t, w)
	assert.Equal(t, core.StatusApproved, approved.Status)
	assert.Equal(t, "u-approver", approved.ApprovedBy)

	w = e.do(t, "u-counter", http.MethodPut, "/api/records/"+rec.ID, recordBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/reject", `{"reason":"late"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, "u-counter", http.MethodGet, "/api/records/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectThenResubmit(t *testing.T) {
	e := newTestEnv(t)
	rec := createRecord(t, e)

	w := e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/reject", `{"reason":"recount coins"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[core.ServiceRecord](t, w)
	assert.Equal(t, core.StatusRejected, rejected.Status)
	assert.Equal(t, "recount coins", rejected.RejectionReason)

	w = e.do(t, "u-counter", http.MethodPut, "/api/records/"+rec.ID, recordBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, core.StatusPending, decode[core.ServiceRecord](t, w).Status)

	// The reason body is optional.
	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/reject", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSubmitRejectedRecord(t *testing.T) {
	e := newTestEnv(t)
	rec := createRecord(t, e)

	w := e.do(t, "u-counter", http.MethodPost, "/api/records/"+rec.ID+"/submit", "")
	assert.Equal(t, http.StatusConflict, w.Code, "only rejected records can be resubmitted")

	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/reject", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/submit", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-counter", http.MethodPost, "/api/records/"+rec.ID+"/submit", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, core.StatusPending, decode[core.ServiceRecord](t, w).Status)

	w = e.do(t, "u-approver", http.MethodPost, "/api/records/"+rec.ID+"/approve", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, core.StatusApproved, decode[core.ServiceRecord](t, w).Status)
}

func TestRecordValidation(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"denominations":`},
		{"unknown field", `{"denominations":[],"cash":1}`},
		{"negative count", `{"denominations":[{"value":100,"counts":{"offering":-1}}]}`},
		{"duplicate value", `{"denominations":[{"value":100,"counts":{}},{"value":100,"counts":{}}]}`},
		{"negative attendance", `{"denominations":[],"attendance":{"male":-2}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, "u-counter", http.MethodPost, "/api/services/svc1/record", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
			assert.Equal(t, "validation", decode[ErrorBody](t, w).Error)
		})
	}
}

func TestListRecords(t *testing.T) {
	e := newTestEnv(t)
	createRecord(t, e)

	w := e.do(t, "u-counter", http.MethodGet, "/api/records?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]core.ServiceRecord](t, w), 1)

	w = e.do(t, "u-counter", http.MethodGet, "/api/records?status=approved", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	w = e.do(t, "u-counter", http.MethodGet, "/api/records?status=lost", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, "u-counter", http.MethodGet, "/api/records?branchId=b2", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, "u-far", http.MethodGet, "/api/records", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestRecordReport(t *testing.T) {
	dir := t.TempDir()
	a, err := archive.NewDir(dir)
	require.NoError(t, err)
	e := newTestEnv(t, func(d *Deps) { d.Archive = a })
	rec := createRecord(t, e)

	w := e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/report", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".pdf")

	w = e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/report?format=html&archive=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Lekki")
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Report-Location"), "file://"))

	w = e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/report?format=doc", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = e.do(t, "u-far", http.MethodGet, "/api/records/"+rec.ID+"/report", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportArchiveNotConfigured(t *testing.T) {
	e := newTestEnv(t)
	rec := createRecord(t, e)
	w := e.do(t, "u-counter", http.MethodGet, "/api/records/"+rec.ID+"/report?archive=true", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRollup(t *testing.T) {
	e := newTestEnv(t)
	createRecord(t, e)

	w := e.do(t, "u-admin", http.MethodGet, "/api/rollup?from=2024-03-01&to=2024-03-31", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	all := decode[rollupResponse](t, w)
	assert.Equal(t, int64(5000), all.TotalAmount)
	assert.Equal(t, 1, all.TotalBranches)
	assert.Empty(t, all.Services)

	w = e.do(t, "u-counter", http.MethodGet, "/api/rollup?from=2024-03-01&to=2024-03-31&branchId=b1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	branch := decode[rollupResponse](t, w)
	require.Len(t, branch.Services, 2)
	assert.True(t, branch.Services[0].HasRecord)
	assert.Equal(t, int64(5000), branch.Services[0].Income)
	assert.False(t, branch.Services[1].HasRecord)

	w = e.do(t, "u-counter", http.MethodGet, "/api/rollup?from=2024-03-31&to=2024-03-01", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSuspiciousMethodBlocked(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, "", http.MethodTrace, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
