package storage

import (
	"context"

	"churchledger/internal/core"
)

// Ports implemented by the SQLite repository and the in-memory store.
type (
	// RecordFilter narrows record listings. Zero fields do not filter.
	RecordFilter struct {
		BranchID string
		From     core.Date
		To       core.Date
		Status   core.Status
	}

	// RecordMutator edits a record in place inside an update transaction.
	// Returning an error aborts the update and nothing is written.
	RecordMutator func(r *core.ServiceRecord) error

	RecordStore interface {
		CreateRecord(ctx context.Context, r *core.ServiceRecord) error
		GetRecord(ctx context.Context, id string) (*core.ServiceRecord, error)
		GetRecordByService(ctx context.Context, serviceID string) (*core.ServiceRecord, error)
		// UpdateRecord reads the record, applies fn and writes the result as
		// one atomic step. The guard evaluated by fn and the write it
		// produces can never interleave with another update of the record.
		UpdateRecord(ctx context.Context, id string, fn RecordMutator) (*core.ServiceRecord, error)
		ListRecords(ctx context.Context, f RecordFilter) ([]*core.ServiceRecord, error)
	}

	BranchStore interface {
		CreateBranch(ctx context.Context, b core.Branch) error
		GetBranch(ctx context.Context, id string) (core.Branch, error)
		ListBranches(ctx context.Context) ([]core.Branch, error)
		// SearchBranches returns branches whose name starts with prefix.
		SearchBranches(ctx context.Context, prefix string) ([]core.Branch, error)
	}

	ServiceStore interface {
		CreateService(ctx context.Context, s core.Service) error
		GetService(ctx context.Context, id string) (core.Service, error)
		ListServices(ctx context.Context, branchID string, from, to core.Date) ([]core.Service, error)
		// SearchServices returns a branch's services whose title starts with prefix.
		SearchServices(ctx context.Context, branchID, prefix string) ([]core.Service, error)
	}

	UserStore interface {
		UpsertUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		AssignUserToBranch(ctx context.Context, userID, branchID string) error
	}

	// SyncStore tracks delivery of approved records to the spreadsheet.
	SyncStore interface {
		// PendingSync lists approved, unsynced records, fewest failed
		// attempts first.
		PendingSync(ctx context.Context, limit int) ([]*core.ServiceRecord, error)
		MarkSynced(ctx context.Context, id string) error
		MarkSyncError(ctx context.Context, id string) error
	}

	// Store is everything a backend provides.
	Store interface {
		RecordStore
		BranchStore
		ServiceStore
		UserStore
		SyncStore
		Close() error
	}
)

// PrefixUpperBound is appended to a search prefix to build the inclusive
// upper bound of a prefix range query: field >= p AND field <= p+bound.
const PrefixUpperBound = "\uf8ff"

// Matches reports whether r passes the filter.
func (f RecordFilter) Matches(r *core.ServiceRecord) bool {
	if f.BranchID != "" && r.BranchID != f.BranchID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.ServiceDate.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && r.ServiceDate.After(f.To.Time) {
		return false
	}
	return true
}
