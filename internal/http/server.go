package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"churchledger/internal/aggregate"
	"churchledger/internal/approval"
	"churchledger/internal/archive"
	"churchledger/internal/auth"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/metrics"
	"churchledger/internal/middleware/ratelimit"
	"churchledger/internal/middleware/security"
	"churchledger/internal/middleware/trace"
	"churchledger/internal/services"
)

// Authenticator turns a bearer token into a directory actor.
type Authenticator interface {
	Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler
}

// Deps are the collaborators the API serves. Archive, Metrics and Ready are
// optional.
type Deps struct {
	Workflow       *approval.Workflow
	Directory      *services.Directory
	Auth           Authenticator
	Catalog        core.Catalog
	AttendanceMode aggregate.AttendanceMode
	Archive        archive.Archive
	Metrics        *metrics.Metrics
	// Ready reports whether the store can serve requests.
	Ready             func(ctx context.Context) error
	Logger            *applog.Logger
	RequestsPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if deps.AttendanceMode == "" {
		deps.AttendanceMode = aggregate.AttendanceCore
	}
	logger := deps.Logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RequestsPerMinute}),
		detector: security.NewDetector(deps.Logger),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, deps.Logger)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/me", s.handleMe)

	api.HandleFunc("GET /api/branches", s.handleListBranches)
	api.HandleFunc("POST /api/branches", s.handleCreateBranch)
	api.HandleFunc("GET /api/branches/search", s.handleSearchBranches)
	api.HandleFunc("GET /api/branches/{id}", s.handleGetBranch)
	api.HandleFunc("GET /api/branches/{id}/services", s.handleListServices)
	api.HandleFunc("POST /api/branches/{id}/services", s.handleCreateService)
	api.HandleFunc("GET /api/services/{id}", s.handleGetService)

	api.HandleFunc("POST /api/users", s.handleUpsertUser)
	api.HandleFunc("PUT /api/users/{id}/branch", s.handleAssignBranch)

	api.HandleFunc("POST /api/services/{id}/record", s.handleCreateRecord)
	api.HandleFunc("GET /api/services/{id}/record", s.handleGetServiceRecord)
	api.HandleFunc("GET /api/records", s.handleListRecords)
	api.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
	api.HandleFunc("PUT /api/records/{id}", s.handleSaveRecord)
	api.HandleFunc("POST /api/records/{id}/approve", s.handleApproveRecord)
	api.HandleFunc("POST /api/records/{id}/reject", s.handleRejectRecord)
	api.HandleFunc("POST /api/records/{id}/submit", s.handleResubmitRecord)
	api.HandleFunc("GET /api/records/{id}/totals", s.handleRecordTotals)
	api.HandleFunc("GET /api/records/{id}/report", s.handleRecordReport)

	api.HandleFunc("GET /api/rollup", s.handleRollup)

	var apiHandler http.Handler = api
	if deps.Auth != nil {
		apiHandler = deps.Auth.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
			ErrorFor(err).Write(w)
		})(api)
	}
	apiHandler = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate_limited", "rate limit exceeded; try again later").Write(w)
	})(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	var root http.Handler = mux
	root = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(root)
	root = applog.Middleware(logger)(root)
	root = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(root)
	root = s.detector.Middleware(root)
	if deps.Metrics != nil {
		root = deps.Metrics.Middleware(root)
	}
	root = s.tracer.Middleware(root)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.deps.Ready != nil {
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", applog.FieldError, err.Error())
			checks["store"] = "failed"
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}
	tm := s.tracer.GetMetrics()
	checks["requests"] = map[string]int64{"total": tm.TotalRequests, "in_flight": tm.InFlight, "server_errors": tm.ServerErrors}
	checks["rate_limiter"] = s.limiter.GetMetrics()
	checks["security"] = s.detector.GetMetrics()

	NewJSONResponse().Status(code).Data(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// fail logs server-side errors and writes the mapped response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	logger := applog.FromContext(r.Context())
	if resp.statusCode >= 500 {
		logger.ErrorContext(r.Context(), "Request failed",
			applog.FieldOperation, op,
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err.Error())
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			applog.FieldOperation, op,
			applog.FieldStatusCode, resp.statusCode,
			applog.FieldError, err.Error())
	}
	resp.Write(w)
}

var _ Authenticator = (*auth.Verifier)(nil)
