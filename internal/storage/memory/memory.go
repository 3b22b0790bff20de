// Package memory is an in-process Store used for local development and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"churchledger/internal/core"
	"churchledger/internal/storage"
)

type Store struct {
	mu       sync.Mutex
	branches map[string]core.Branch
	services map[string]core.Service
	users    map[string]core.User
	records  map[string]*core.ServiceRecord
	// byService enforces one record per service.
	byService map[string]string
	// syncAttempts counts failed exports per record.
	syncAttempts map[string]int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		branches:  map[string]core.Branch{},
		services:  map[string]core.Service{},
		users:     map[string]core.User{},
		records:   map[string]*core.ServiceRecord{},
		byService: map[string]string{},

		syncAttempts: map[string]int{},
	}
}

// NewFromFiles seeds branches from base/seed_branches.txt, one name per line.
func NewFromFiles(base string) *Store {
	s := New()
	names := readLines(filepath.Join(base, "seed_branches.txt"))
	if len(names) == 0 {
		names = []string{"Headquarters"}
	}
	now := time.Now().UTC()
	for _, n := range names {
		id := uuid.NewString()
		s.branches[id] = core.Branch{ID: id, Name: n, CreatedAt: now}
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateRecord(_ context.Context, r *core.ServiceRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("record %s: %w", r.ID, core.ErrAlreadyExists)
	}
	if _, ok := s.byService[r.ServiceID]; ok {
		return fmt.Errorf("record for service %s: %w", r.ServiceID, core.ErrAlreadyExists)
	}
	s.records[r.ID] = r.Clone()
	s.byService[r.ServiceID] = r.ID
	return nil
}

func (s *Store) GetRecord(_ context.Context, id string) (*core.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	return r.Clone(), nil
}

func (s *Store) GetRecordByService(_ context.Context, serviceID string) (*core.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byService[serviceID]
	if !ok {
		return nil, fmt.Errorf("record for service %s: %w", serviceID, core.ErrNotFound)
	}
	return s.records[id].Clone(), nil
}

// UpdateRecord holds the store mutex across read, fn and write.
func (s *Store) UpdateRecord(_ context.Context, id string, fn storage.RecordMutator) (*core.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	s.records[id] = next
	return next.Clone(), nil
}

func (s *Store) ListRecords(_ context.Context, f storage.RecordFilter) ([]*core.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ServiceRecord
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ServiceDate.Equal(out[j].ServiceDate.Time) {
			return out[i].ServiceDate.Before(out[j].ServiceDate.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CreateBranch(_ context.Context, b core.Branch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[b.ID]; ok {
		return fmt.Errorf("branch %s: %w", b.ID, core.ErrAlreadyExists)
	}
	s.branches[b.ID] = b
	return nil
}

func (s *Store) GetBranch(_ context.Context, id string) (core.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[id]
	if !ok {
		return core.Branch{}, fmt.Errorf("branch %s: %w", id, core.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBranches(_ context.Context) ([]core.Branch, error) {
	return s.SearchBranches(context.Background(), "")
}

func (s *Store) SearchBranches(_ context.Context, prefix string) ([]core.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		if inPrefixRange(b.Name, prefix) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateService(_ context.Context, svc core.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[svc.BranchID]; !ok {
		return fmt.Errorf("branch %s: %w", svc.BranchID, core.ErrNotFound)
	}
	if _, ok := s.services[svc.ID]; ok {
		return fmt.Errorf("service %s: %w", svc.ID, core.ErrAlreadyExists)
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *Store) GetService(_ context.Context, id string) (core.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return core.Service{}, fmt.Errorf("service %s: %w", id, core.ErrNotFound)
	}
	return svc, nil
}

func (s *Store) ListServices(_ context.Context, branchID string, from, to core.Date) ([]core.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Service
	for _, svc := range s.services {
		if branchID != "" && svc.BranchID != branchID {
			continue
		}
		if !from.IsZero() && svc.Date.Before(from.Time) {
			continue
		}
		if !to.IsZero() && svc.Date.After(to.Time) {
			continue
		}
		out = append(out, svc)
	}
	sortServices(out)
	return out, nil
}

func (s *Store) SearchServices(_ context.Context, branchID, prefix string) ([]core.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Service
	for _, svc := range s.services {
		if svc.BranchID == branchID && inPrefixRange(svc.Title, prefix) {
			out = append(out, svc)
		}
	}
	sortServices(out)
	return out, nil
}

func (s *Store) UpsertUser(_ context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user %s: %w", email, core.ErrNotFound)
}

func (s *Store) AssignUserToBranch(_ context.Context, userID, branchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	if _, ok := s.branches[branchID]; !ok {
		return fmt.Errorf("branch %s: %w", branchID, core.ErrNotFound)
	}
	u.BranchID = branchID
	s.users[userID] = u
	return nil
}

func (s *Store) PendingSync(_ context.Context, limit int) ([]*core.ServiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.ServiceRecord
	for _, r := range s.records {
		if r.Status == core.StatusApproved && r.SyncStatus != core.SyncSynced {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := s.syncAttempts[out[i].ID], s.syncAttempts[out[j].ID]
		if ai != aj {
			return ai < aj
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	return s.setSync(id, core.SyncSynced)
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	return s.setSync(id, core.SyncError)
}

func (s *Store) setSync(id string, st core.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	r.SyncStatus = st
	if st == core.SyncError {
		s.syncAttempts[id]++
	}
	return nil
}

// inPrefixRange mirrors the SQL range predicate used by the sqlite store.
func inPrefixRange(v, prefix string) bool {
	if prefix == "" {
		return true
	}
	return v >= prefix && v <= prefix+storage.PrefixUpperBound
}

func sortServices(out []core.Service) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	seen := map[string]struct{}{}
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
