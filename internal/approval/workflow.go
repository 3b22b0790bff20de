package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/storage"
)

const maxReasonLen = 500

type (
	// Store is the slice of the backend the workflow needs.
	Store interface {
		storage.RecordStore
		GetService(ctx context.Context, id string) (core.Service, error)
	}

	// Locker serializes transitions on one record across processes.
	Locker interface {
		Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
	}

	// Publisher announces approved records. Failures never undo an approval.
	Publisher interface {
		PublishRecordApproved(ctx context.Context, rec *core.ServiceRecord) error
	}

	// Observer receives the outcome of every workflow operation.
	Observer interface {
		ObserveTransition(op, outcome string, d time.Duration)
	}
)

type Workflow struct {
	store     Store
	policy    Policy
	catalog   core.Catalog
	locker    Locker
	publisher Publisher
	observer  Observer
	logger    *applog.Logger
	structLog *applog.StructuredLogger
	now       func() time.Time
	newID     func() string
}

type Option func(*Workflow)

func WithLocker(l Locker) Option       { return func(w *Workflow) { w.locker = l } }
func WithPublisher(p Publisher) Option { return func(w *Workflow) { w.publisher = p } }
func WithObserver(o Observer) Option   { return func(w *Workflow) { w.observer = o } }
func WithLogger(l *applog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}
func WithClock(now func() time.Time) Option { return func(w *Workflow) { w.now = now } }
func WithIDs(newID func() string) Option    { return func(w *Workflow) { w.newID = newID } }

func New(store Store, policy Policy, catalog core.Catalog, opts ...Option) (*Workflow, error) {
	if store == nil {
		return nil, errors.New("workflow requires a store")
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("approval policy: %w", err)
	}
	w := &Workflow{
		store:   store,
		policy:  policy,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = applog.New(applog.DefaultConfig())
	}
	w.logger = w.logger.WithComponent(applog.ComponentWorkflow)
	w.structLog = applog.NewStructuredLogger(w.logger)
	return w, nil
}

func (w *Workflow) Policy() Policy { return w.policy }

// Create opens the record for a service. A service carries at most one record.
func (w *Workflow) Create(ctx context.Context, serviceID string, draft core.RecordDraft, actor core.Actor) (rec *core.ServiceRecord, err error) {
	defer w.observe(applog.OpCreate, time.Now(), &err)

	if !w.policy.canEdit(actor.Role) {
		return nil, &core.AuthorizationError{Op: "create", Role: actor.Role}
	}
	svc, err := w.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	if err := checkBranch(actor, svc.BranchID, "create"); err != nil {
		return nil, err
	}
	if draft.Ledger == nil {
		draft.Ledger = w.catalog.NewLedger()
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft = draft.Normalized()

	now := w.now()
	rec = &core.ServiceRecord{
		ID:            w.newID(),
		SchemaVersion: core.RecordSchemaVersion,
		ServiceID:     svc.ID,
		BranchID:      svc.BranchID,
		ServiceDate:   svc.Date,
		Status:        core.StatusPending,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
		SyncStatus:    core.SyncPending,
	}
	rec.Apply(draft)
	rec.AddCounter(actor.CounterName())

	if err := w.store.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	w.structLog.LogTransition(ctx, applog.OpCreate, rec.ID, rec.BranchID, string(rec.Status), rec.Version, actor.ID, string(actor.Role))
	return rec, nil
}

// Save replaces the editable fields of a pending or rejected record. Every
// save clears existing sign-offs since they covered the previous figures.
func (w *Workflow) Save(ctx context.Context, id string, draft core.RecordDraft, actor core.Actor) (rec *core.ServiceRecord, err error) {
	defer w.observe(applog.OpSave, time.Now(), &err)

	if !w.policy.canEdit(actor.Role) {
		return nil, &core.AuthorizationError{Op: "save", Role: actor.Role}
	}
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	draft = draft.Normalized()

	return w.transition(ctx, applog.OpSave, id, actor, func(r *core.ServiceRecord) error {
		if !r.Editable() {
			return &core.TransitionError{Op: "save", From: r.Status}
		}
		r.Apply(draft)
		r.AddCounter(actor.CounterName())
		r.Signatures = nil
		if r.Status == core.StatusRejected && w.policy.ResubmitOnSave {
			r.Reopen()
		}
		r.UpdatedAt = w.now()
		return nil
	})
}

// Resubmit returns a rejected record to pending without changing its
// figures. With ResubmitOnSave off this is the only way out of rejected.
func (w *Workflow) Resubmit(ctx context.Context, id string, actor core.Actor) (rec *core.ServiceRecord, err error) {
	defer w.observe(applog.OpResubmit, time.Now(), &err)

	if !w.policy.canEdit(actor.Role) {
		return nil, &core.AuthorizationError{Op: "resubmit", Role: actor.Role}
	}
	return w.transition(ctx, applog.OpResubmit, id, actor, func(r *core.ServiceRecord) error {
		if r.Status != core.StatusRejected {
			return &core.TransitionError{Op: "resubmit", From: r.Status}
		}
		r.Reopen()
		r.Signatures = nil
		r.UpdatedAt = w.now()
		return nil
	})
}

// Approve records the actor's sign-off. The record flips to approved in
// the same write that adds the last missing required signature.
func (w *Workflow) Approve(ctx context.Context, id string, actor core.Actor) (rec *core.ServiceRecord, err error) {
	defer w.observe(applog.OpApprove, time.Now(), &err)

	if !w.policy.canSign(actor.Role) {
		return nil, &core.AuthorizationError{Op: "approve", Role: actor.Role}
	}

	rec, err = w.transition(ctx, applog.OpApprove, id, actor, func(r *core.ServiceRecord) error {
		if r.Status != core.StatusPending {
			return &core.TransitionError{Op: "approve", From: r.Status}
		}
		role, ok := w.policy.signingRole(actor.Role, r)
		if !ok {
			return &core.AuthorizationError{Op: "approve", Role: actor.Role}
		}
		if r.Signed(role) {
			return fmt.Errorf("%s has already signed: %w", role, core.ErrInvalidState)
		}
		now := w.now()
		r.Signatures = append(r.Signatures, core.Signature{Role: role, ActorID: actor.ID, SignedAt: now})
		if w.policy.complete(r) {
			r.Status = core.StatusApproved
			r.ApprovedBy = actor.ID
			r.ApprovedAt = &now
			r.SyncStatus = core.SyncPending
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.Status == core.StatusApproved {
		w.publishApproved(ctx, rec)
	}
	return rec, nil
}

// Reject sends a pending record back to the counting unit.
func (w *Workflow) Reject(ctx context.Context, id string, actor core.Actor, reason string) (rec *core.ServiceRecord, err error) {
	defer w.observe(applog.OpReject, time.Now(), &err)

	if !w.policy.canReject(actor.Role) {
		return nil, &core.AuthorizationError{Op: "reject", Role: actor.Role}
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLen {
		return nil, core.NewValidationError("reason", "too long (max 500 characters)")
	}

	return w.transition(ctx, applog.OpReject, id, actor, func(r *core.ServiceRecord) error {
		if r.Status != core.StatusPending {
			return &core.TransitionError{Op: "reject", From: r.Status}
		}
		now := w.now()
		r.Status = core.StatusRejected
		r.RejectedBy = actor.ID
		r.RejectedAt = &now
		r.RejectionReason = reason
		r.Signatures = nil
		r.UpdatedAt = now
		return nil
	})
}

// Get returns a record the actor is allowed to see.
func (w *Workflow) Get(ctx context.Context, id string, actor core.Actor) (*core.ServiceRecord, error) {
	rec, err := w.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkBranch(actor, rec.BranchID, "read"); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByService returns the record attached to a service.
func (w *Workflow) GetByService(ctx context.Context, serviceID string, actor core.Actor) (*core.ServiceRecord, error) {
	rec, err := w.store.GetRecordByService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if err := checkBranch(actor, rec.BranchID, "read"); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records matching f. Non-admin actors only see their branch.
func (w *Workflow) List(ctx context.Context, actor core.Actor, f storage.RecordFilter) ([]*core.ServiceRecord, error) {
	if actor.Role != core.RoleAdmin {
		if actor.BranchID == "" {
			return nil, &core.AuthorizationError{Op: "list", Role: actor.Role}
		}
		if f.BranchID != "" && f.BranchID != actor.BranchID {
			return nil, &core.AuthorizationError{Op: "list", Role: actor.Role}
		}
		f.BranchID = actor.BranchID
	}
	return w.store.ListRecords(ctx, f)
}

func (w *Workflow) ListByBranch(ctx context.Context, actor core.Actor, branchID string) ([]*core.ServiceRecord, error) {
	return w.List(ctx, actor, storage.RecordFilter{BranchID: branchID})
}

// ListInRange returns records whose service date falls within [from, to].
// An empty branchID means every branch the actor can see.
func (w *Workflow) ListInRange(ctx context.Context, actor core.Actor, branchID string, from, to core.Date) ([]*core.ServiceRecord, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		return nil, core.NewValidationError("to", "end date is before start date")
	}
	return w.List(ctx, actor, storage.RecordFilter{BranchID: branchID, From: from, To: to})
}

// transition runs fn as one atomic read-evaluate-write on the record.
func (w *Workflow) transition(ctx context.Context, op, id string, actor core.Actor, fn storage.RecordMutator) (*core.ServiceRecord, error) {
	if w.locker != nil {
		release, err := w.locker.Acquire(ctx, "record:"+id)
		if err != nil {
			return nil, fmt.Errorf("lock record %s: %w", id, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				w.logger.WarnContext(ctx, "Failed to release record lock", applog.FieldRecordID, id, applog.FieldError, err)
			}
		}()
	}

	rec, err := w.store.UpdateRecord(ctx, id, func(r *core.ServiceRecord) error {
		if err := checkBranch(actor, r.BranchID, op); err != nil {
			return err
		}
		return fn(r)
	})
	if err != nil {
		return nil, fmt.Errorf("%s record %s: %w", op, id, err)
	}
	w.structLog.LogTransition(ctx, op, rec.ID, rec.BranchID, string(rec.Status), rec.Version, actor.ID, string(actor.Role))
	return rec, nil
}

func (w *Workflow) publishApproved(ctx context.Context, rec *core.ServiceRecord) {
	if w.publisher == nil {
		w.logger.DebugContext(ctx, "No publisher configured, skipping approval event", applog.FieldRecordID, rec.ID)
		return
	}
	if err := w.publisher.PublishRecordApproved(ctx, rec); err != nil {
		// The record stays approved; the worker sweep picks it up later.
		w.logger.ErrorContext(ctx, "Failed to publish approval event",
			applog.FieldRecordID, rec.ID, applog.FieldError, err)
	}
}

func (w *Workflow) observe(op string, start time.Time, errp *error) {
	if w.observer == nil {
		return
	}
	w.observer.ObserveTransition(op, Outcome(*errp), time.Since(start))
}

// Outcome classifies an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrValidation):
		return "invalid"
	case errors.Is(err, core.ErrNotAuthorized):
		return "forbidden"
	case errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrConflict):
		return "conflict"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}

func checkBranch(actor core.Actor, branchID, op string) error {
	if actor.Role == core.RoleAdmin || actor.BranchID == branchID {
		return nil
	}
	return &core.AuthorizationError{Op: op, Role: actor.Role}
}
