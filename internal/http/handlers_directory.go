package http

import (
	"net/http"
	"strings"

	"churchledger/internal/core"
	applog "churchledger/internal/log"
)

type (
	createBranchRequest struct {
		Name     string `json:"name" validate:"required,max=200"`
		Location string `json:"location" validate:"max=200"`
	}

	createServiceRequest struct {
		Title       string    `json:"title" validate:"required,max=200"`
		Date        core.Date `json:"date"`
		Time        string    `json:"time" validate:"omitempty,max=20"`
		Description string    `json:"description" validate:"max=1000"`
	}

	upsertUserRequest struct {
		ID          string `json:"id" validate:"omitempty,max=128"`
		Email       string `json:"email" validate:"required,email,max=254"`
		DisplayName string `json:"displayName" validate:"max=200"`
		Role        string `json:"role" validate:"required"`
		BranchID    string `json:"branchId" validate:"max=128"`
	}

	assignBranchRequest struct {
		BranchID string `json:"branchId" validate:"required,max=128"`
	}
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a := actorFrom(r)
	NewJSONResponse().Data(map[string]string{
		"id":       a.ID,
		"email":    a.Email,
		"name":     a.Name,
		"role":     string(a.Role),
		"branchId": a.BranchID,
	}).Write(w)
}

func (s *Server) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := s.deps.Directory.ListBranches(r.Context())
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(branches)).Write(w)
}

func (s *Server) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	b, err := s.deps.Directory.CreateBranch(r.Context(), actorFrom(r), sanitizeInput(req.Name), sanitizeInput(req.Location))
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/branches/"+b.ID).Data(b).Write(w)
}

func (s *Server) handleGetBranch(w http.ResponseWriter, r *http.Request) {
	b, err := s.deps.Directory.GetBranch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Data(b).Write(w)
}

func (s *Server) handleSearchBranches(w http.ResponseWriter, r *http.Request) {
	q := sanitizeInput(r.URL.Query().Get("q"))
	if q == "" {
		s.fail(w, r, applog.OpList, core.NewValidationError("q", "search text is required"))
		return
	}
	branches, err := s.deps.Directory.SearchBranches(r.Context(), q)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(branches)).Write(w)
}

// handleListServices lists a branch's services: by title prefix with ?q=,
// by date with ?from=&to=, otherwise all of them.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	branchID := r.PathValue("id")
	query := r.URL.Query()

	var (
		list []core.Service
		err  error
	)
	switch q := sanitizeInput(query.Get("q")); {
	case q != "":
		list, err = s.deps.Directory.SearchServices(r.Context(), branchID, q)
	case query.Has("from") || query.Has("to"):
		var from, to core.Date
		if from, to, err = ParseDateRange(query); err == nil {
			list, err = s.deps.Directory.ListServicesInRange(r.Context(), branchID, from, to)
		}
	default:
		list, err = s.deps.Directory.ListServicesByBranch(r.Context(), branchID)
	}
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}
	NewJSONResponse().Data(nonNil(list)).Write(w)
}

func (s *Server) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req createServiceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	svc, err := s.deps.Directory.CreateService(r.Context(), actorFrom(r), core.Service{
		BranchID:    r.PathValue("id"),
		Title:       sanitizeInput(req.Title),
		Date:        req.Date,
		Time:        sanitizeInput(req.Time),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Header("Location", "/api/services/"+svc.ID).Data(svc).Write(w)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.deps.Directory.GetService(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Data(svc).Write(w)
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	role, err := core.ParseRole(req.Role)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	u, err := s.deps.Directory.UpsertUser(r.Context(), actorFrom(r), core.User{
		ID:          strings.TrimSpace(req.ID),
		Email:       req.Email,
		DisplayName: sanitizeInput(req.DisplayName),
		Role:        role,
		BranchID:    strings.TrimSpace(req.BranchID),
	})
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(u).Write(w)
}

func (s *Server) handleAssignBranch(w http.ResponseWriter, r *http.Request) {
	var req assignBranchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	u, err := s.deps.Directory.AssignUserToBranch(r.Context(), actorFrom(r), r.PathValue("id"), strings.TrimSpace(req.BranchID))
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Data(u).Write(w)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
