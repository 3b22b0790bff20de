package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"churchledger/internal/aggregate"
	"churchledger/internal/amqp"
	"churchledger/internal/cache"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/sheets"
)

// Store is what the worker needs from the record store.
type Store interface {
	GetRecord(ctx context.Context, id string) (*core.ServiceRecord, error)
	GetBranch(ctx context.Context, id string) (core.Branch, error)
	GetService(ctx context.Context, id string) (core.Service, error)
	PendingSync(ctx context.Context, limit int) ([]*core.ServiceRecord, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// Consumer delivers record approved events.
type Consumer interface {
	ConsumeRecordApproved(ctx context.Context, handler func(context.Context, *amqp.RecordApprovedMessage) error) error
}

// SyncObserver is told the outcome of every sync attempt.
type SyncObserver interface {
	ObserveSync(outcome string)
}

type Options struct {
	BatchSize int
	Mode      aggregate.AttendanceMode
	Catalog   core.Catalog
	Logger    *applog.Logger
	// Names caches branch names and service titles; nil uses a small LRU.
	Names    cache.Cache[string]
	Observer SyncObserver
}

// SyncWorker appends approved records to the treasury ledger sheet.
type SyncWorker struct {
	store     Store
	ledger    sheets.LedgerWriter
	batchSize int
	mode      aggregate.AttendanceMode
	catalog   core.Catalog
	names     cache.Cache[string]
	observer  SyncObserver
	logger    *applog.Logger
}

func NewSyncWorker(store Store, ledger sheets.LedgerWriter, opts Options) *SyncWorker {
	if opts.BatchSize < 1 {
		opts.BatchSize = 10
	}
	if opts.Mode == "" {
		opts.Mode = aggregate.AttendanceCore
	}
	if len(opts.Catalog.Funds) == 0 {
		opts.Catalog = core.DefaultCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Names == nil {
		opts.Names = cache.NewLRUCache[string](256, 10*time.Minute)
	}
	return &SyncWorker{
		store:     store,
		ledger:    ledger,
		batchSize: opts.BatchSize,
		mode:      opts.Mode,
		catalog:   opts.Catalog,
		names:     opts.Names,
		observer:  opts.Observer,
		logger:    opts.Logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleApproved processes one record approved event.
func (w *SyncWorker) HandleApproved(ctx context.Context, msg *amqp.RecordApprovedMessage) error {
	w.logger.InfoContext(ctx, "Processing record approved message",
		applog.FieldRecordID, msg.RecordID,
		applog.FieldVersion, msg.Version)

	rec, err := w.store.GetRecord(ctx, msg.RecordID)
	if errors.Is(err, core.ErrNotFound) {
		// Nothing to sync; requeueing would loop forever.
		w.logger.WarnContext(ctx, "Approved record no longer exists", applog.FieldRecordID, msg.RecordID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get record from storage: %w", err)
	}
	if rec.Status != core.StatusApproved {
		w.logger.WarnContext(ctx, "Skipping record that is not approved",
			applog.FieldRecordID, rec.ID,
			applog.FieldStatus, string(rec.Status))
		return nil
	}
	if rec.SyncStatus == core.SyncSynced {
		w.logger.DebugContext(ctx, "Record already synced", applog.FieldRecordID, rec.ID)
		return nil
	}

	if err := w.syncRecord(ctx, rec); err != nil {
		return fmt.Errorf("sync record to sheets: %w", err)
	}
	return nil
}

// ProcessPending syncs approved records whose sync status is not synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced int, err error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep when the worker starts, to recover
// from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processBatch(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.PendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending records: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending records", "count", len(pending))

	// Sequential: the sheet adapter looks a row up before writing it, so
	// concurrent writers could both append the same record.
	synced := 0
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncRecord(ctx, rec); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync record", applog.FieldRecordID, rec.ID, applog.FieldError, err)
			continue
		}
		synced++
	}
	return synced, nil
}

// Run consumes approval events and sweeps pending records every interval
// until ctx is cancelled or either loop fails.
func (w *SyncWorker) Run(ctx context.Context, events Consumer, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	if events != nil {
		g.Go(func() error {
			return events.ConsumeRecordApproved(ctx, w.HandleApproved)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
					w.logger.ErrorContext(ctx, "Periodic sync failed", applog.FieldError, err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *SyncWorker) syncRecord(ctx context.Context, rec *core.ServiceRecord) error {
	row, err := w.ledgerRow(ctx, rec)
	if err != nil {
		w.markError(ctx, rec.ID)
		return err
	}

	ref, err := w.ledger.AppendRecord(ctx, row)
	if err != nil {
		w.markError(ctx, rec.ID)
		return fmt.Errorf("append to sheets: %w", err)
	}

	if err := w.store.MarkSynced(ctx, rec.ID); err != nil {
		// The row is written; the next sweep rewrites it in place.
		w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldRecordID, rec.ID, applog.FieldError, err)
	}
	w.observe("synced")

	w.logger.InfoContext(ctx, "Successfully synced record",
		applog.FieldRecordID, rec.ID,
		applog.FieldBranchID, rec.BranchID,
		applog.FieldSheetsRef, ref,
		applog.FieldGrandTotal, row.GrandTotal)
	return nil
}

func (w *SyncWorker) markError(ctx context.Context, id string) {
	w.observe("error")
	if err := w.store.MarkSyncError(ctx, id); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark sync error", applog.FieldRecordID, id, applog.FieldError, err)
	}
}

func (w *SyncWorker) observe(outcome string) {
	if w.observer != nil {
		w.observer.ObserveSync(outcome)
	}
}

// ledgerRow builds the sheet row; every total comes from the aggregate package.
func (w *SyncWorker) ledgerRow(ctx context.Context, rec *core.ServiceRecord) (sheets.LedgerRow, error) {
	branchName, err := w.lookup(ctx, "branch:"+rec.BranchID, rec.BranchID, func() (string, error) {
		b, err := w.store.GetBranch(ctx, rec.BranchID)
		return b.Name, err
	})
	if err != nil {
		return sheets.LedgerRow{}, fmt.Errorf("get branch: %w", err)
	}
	title, err := w.lookup(ctx, "service:"+rec.ServiceID, "", func() (string, error) {
		s, err := w.store.GetService(ctx, rec.ServiceID)
		return s.Title, err
	})
	if err != nil {
		return sheets.LedgerRow{}, fmt.Errorf("get service: %w", err)
	}

	totals := aggregate.RecordTotals(rec, w.mode)
	row := sheets.LedgerRow{
		RecordID:     rec.ID,
		ServiceDate:  rec.ServiceDate,
		BranchName:   branchName,
		ServiceTitle: title,
		GrandTotal:   totals.Grand,
		Attendance:   totals.Attendance,
		ApprovedBy:   rec.ApprovedBy,
	}
	if rec.ApprovedAt != nil {
		row.ApprovedAt = *rec.ApprovedAt
	}
	for _, f := range w.catalog.FundOrder(totals.ByFund) {
		if v, ok := totals.ByFund[f]; ok {
			row.ByFund = append(row.ByFund, core.FundAmount{Fund: f, Amount: v})
		}
	}
	return row, nil
}

// lookup resolves a display name through the cache. A missing entity
// falls back to the given default instead of failing the sync.
func (w *SyncWorker) lookup(ctx context.Context, key, fallback string, load func() (string, error)) (string, error) {
	name, err := cache.GetOrLoad(w.names, key, load)
	if errors.Is(err, core.ErrNotFound) {
		w.logger.WarnContext(ctx, "Name lookup found nothing, using fallback", "key", key)
		return fallback, nil
	}
	return name, err
}
