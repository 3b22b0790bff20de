package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"churchledger/internal/cache"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/storage"
)

// DirectoryStore is the slice of the backend the directory needs.
type DirectoryStore interface {
	storage.BranchStore
	storage.ServiceStore
	storage.UserStore
}

// Directory manages branches, their services and user assignments. It has
// no workflow semantics; it validates input, assigns IDs and enforces who
// may change the directory.
type Directory struct {
	store  DirectoryStore
	names  cache.Cache[string]
	newID  func() string
	now    func() time.Time
	logger *applog.Logger
}

type DirectoryOption func(*Directory)

func WithNameCache(c cache.Cache[string]) DirectoryOption {
	return func(d *Directory) { d.names = c }
}

func WithDirectoryLogger(l *applog.Logger) DirectoryOption {
	return func(d *Directory) { d.logger = l }
}

func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(d *Directory) { d.now = now }
}

func NewDirectory(store DirectoryStore, opts ...DirectoryOption) *Directory {
	d := &Directory{
		store: store,
		newID: uuid.NewString,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.names == nil {
		d.names = cache.NewLRUCache[string](256, 10*time.Minute)
	}
	if d.logger == nil {
		d.logger = applog.New(applog.DefaultConfig())
	}
	d.logger = d.logger.WithComponent(applog.ComponentBackend)
	return d
}

// CreateBranch adds a branch. Admin only.
func (d *Directory) CreateBranch(ctx context.Context, actor core.Actor, name, location string) (core.Branch, error) {
	if actor.Role != core.RoleAdmin {
		return core.Branch{}, &core.AuthorizationError{Op: "create a branch", Role: actor.Role}
	}
	b := core.Branch{
		ID:        d.newID(),
		Name:      strings.TrimSpace(name),
		Location:  strings.TrimSpace(location),
		CreatedAt: d.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return core.Branch{}, err
	}
	if err := d.store.CreateBranch(ctx, b); err != nil {
		return core.Branch{}, fmt.Errorf("create branch: %w", err)
	}
	d.names.Set("branch:"+b.ID, b.Name)
	d.logger.InfoContext(ctx, "Branch created", applog.FieldBranchID, b.ID, applog.FieldActorID, actor.ID)
	return b, nil
}

func (d *Directory) GetBranch(ctx context.Context, id string) (core.Branch, error) {
	return d.store.GetBranch(ctx, id)
}

func (d *Directory) ListBranches(ctx context.Context) ([]core.Branch, error) {
	return d.store.ListBranches(ctx)
}

// SearchBranches matches branch names by prefix.
func (d *Directory) SearchBranches(ctx context.Context, prefix string) ([]core.Branch, error) {
	return d.store.SearchBranches(ctx, strings.TrimSpace(prefix))
}

// BranchName resolves a branch's display name through the name cache.
func (d *Directory) BranchName(ctx context.Context, id string) (string, error) {
	return cache.GetOrLoad(d.names, "branch:"+id, func() (string, error) {
		b, err := d.store.GetBranch(ctx, id)
		return b.Name, err
	})
}

// CreateService schedules a service for a branch. Admins may create for any
// branch; other users only for the branch they belong to.
func (d *Directory) CreateService(ctx context.Context, actor core.Actor, s core.Service) (core.Service, error) {
	if actor.Role != core.RoleAdmin && (actor.BranchID == "" || actor.BranchID != s.BranchID) {
		return core.Service{}, &core.AuthorizationError{Op: "create a service for this branch", Role: actor.Role}
	}
	s.ID = d.newID()
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	if s.Day == "" && !s.Date.IsZero() {
		s.Day = s.Date.Weekday().String()
	}
	if s.Status == "" {
		s.Status = "scheduled"
	}
	s.CreatedAt = d.now().UTC()
	if err := s.Validate(); err != nil {
		return core.Service{}, err
	}
	if err := d.store.CreateService(ctx, s); err != nil {
		return core.Service{}, fmt.Errorf("create service: %w", err)
	}
	d.logger.InfoContext(ctx, "Service created",
		applog.FieldServiceID, s.ID,
		applog.FieldBranchID, s.BranchID,
		applog.FieldActorID, actor.ID)
	return s, nil
}

func (d *Directory) GetService(ctx context.Context, id string) (core.Service, error) {
	return d.store.GetService(ctx, id)
}

func (d *Directory) ListServicesByBranch(ctx context.Context, branchID string) ([]core.Service, error) {
	return d.store.ListServices(ctx, branchID, core.Date{}, core.Date{})
}

// ListServicesInRange lists a branch's services dated within [from, to].
func (d *Directory) ListServicesInRange(ctx context.Context, branchID string, from, to core.Date) ([]core.Service, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		return nil, core.NewValidationError("to", "end date is before start date")
	}
	return d.store.ListServices(ctx, branchID, from, to)
}

func (d *Directory) SearchServices(ctx context.Context, branchID, prefix string) ([]core.Service, error) {
	return d.store.SearchServices(ctx, branchID, strings.TrimSpace(prefix))
}

// UpsertUser registers or updates a user. Admin only; a missing ID is assigned.
func (d *Directory) UpsertUser(ctx context.Context, actor core.Actor, u core.User) (core.User, error) {
	if actor.Role != core.RoleAdmin {
		return core.User{}, &core.AuthorizationError{Op: "manage users", Role: actor.Role}
	}
	role, err := core.ParseRole(string(u.Role))
	if err != nil {
		return core.User{}, err
	}
	u.Role = role
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.ID == "" {
		if existing, err := d.store.GetUserByEmail(ctx, u.Email); err == nil {
			u.ID = existing.ID
		} else {
			u.ID = d.newID()
		}
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if u.BranchID != "" {
		if _, err := d.store.GetBranch(ctx, u.BranchID); err != nil {
			return core.User{}, fmt.Errorf("user branch: %w", err)
		}
	}
	if err := d.store.UpsertUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (d *Directory) GetUser(ctx context.Context, id string) (core.User, error) {
	return d.store.GetUser(ctx, id)
}

func (d *Directory) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return d.store.GetUserByEmail(ctx, strings.TrimSpace(email))
}

// AssignUserToBranch moves a user to a branch. Admin only.
func (d *Directory) AssignUserToBranch(ctx context.Context, actor core.Actor, userID, branchID string) (core.User, error) {
	if actor.Role != core.RoleAdmin {
		return core.User{}, &core.AuthorizationError{Op: "assign users to branches", Role: actor.Role}
	}
	if strings.TrimSpace(branchID) == "" {
		return core.User{}, core.NewValidationError("branchId", "branch is required")
	}
	if err := d.store.AssignUserToBranch(ctx, userID, branchID); err != nil {
		return core.User{}, fmt.Errorf("assign user: %w", err)
	}
	d.logger.InfoContext(ctx, "User assigned to branch",
		"user_id", userID,
		applog.FieldBranchID, branchID,
		applog.FieldActorID, actor.ID)
	return d.store.GetUser(ctx, userID)
}
