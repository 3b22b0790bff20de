package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/amqp"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/sheets"
	"churchledger/internal/storage/memory"
)

type failingWriter struct{}

func (failingWriter) AppendRecord(context.Context, sheets.LedgerRow) (string, error) {
	return "", errors.New("quota exceeded")
}

// refusingWriter rejects one record and delegates the rest.
type refusingWriter struct {
	*sheets.MemoryWriter
	refuse string
}

func (w refusingWriter) AppendRecord(ctx context.Context, row sheets.LedgerRow) (string, error) {
	if row.RecordID == w.refuse {
		return "", errors.New("row rejected by sheet")
	}
	return w.MemoryWriter.AppendRecord(ctx, row)
}

type outcomes struct {
	mu sync.Mutex
	n  map[string]int
}

func (o *outcomes) ObserveSync(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.n == nil {
		o.n = map[string]int{}
	}
	o.n[outcome]++
}

func quietLogger() *applog.Logger {
	return applog.New(applog.ConfigFor("test", "error", "text", io.Discard))
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.CreateBranch(ctx, core.Branch{ID: "b1", Name: "Lekki"}))
	for _, id := range []string{"svc1", "svc2", "svc3"} {
		require.NoError(t, store.CreateService(ctx, core.Service{ID: id, BranchID: "b1", Title: "Sunday Service", Date: core.NewDate(2024, 3, 3)}))
	}
	return store
}

func addRecord(t *testing.T, store *memory.Store, id, serviceID string, status core.Status) {
	t.Helper()
	ledger, err := core.NewLedger(
		core.DenominationLine{Value: 1000, Counts: map[core.FundName]int64{core.FundOffering: 3, core.FundTithe: 1}},
		core.DenominationLine{Value: 500, Counts: map[core.FundName]int64{core.FundOffering: 2}},
	)
	require.NoError(t, err)
	approvedAt := time.Date(2024, 3, 3, 14, 0, 0, 0, time.UTC)
	rec := &core.ServiceRecord{
		ID:          id,
		ServiceID:   serviceID,
		BranchID:    "b1",
		ServiceDate: core.NewDate(2024, 3, 3),
		Ledger:      ledger,
		Attendance:  core.Attendance{Male: 10, Female: 12, Teenager: 3, Children: 5, FirstTimers: 2, NC: 1},
		Status:      status,
		SyncStatus:  core.SyncPending,
	}
	if status == core.StatusApproved {
		rec.ApprovedBy = "u-approver"
		rec.ApprovedAt = &approvedAt
	}
	require.NoError(t, store.CreateRecord(context.Background(), rec))
}

func TestHandleApproved_WritesRowAndMarksSynced(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusApproved)
	writer := sheets.NewMemoryWriter()
	obs := &outcomes{}
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger(), Observer: obs})

	require.NoError(t, w.HandleApproved(ctx, &amqp.RecordApprovedMessage{RecordID: "r1", Version: 1}))

	rows := writer.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "Lekki", row.BranchName)
	assert.Equal(t, "Sunday Service", row.ServiceTitle)
	assert.Equal(t, int64(5000), row.GrandTotal)
	assert.Equal(t, int64(30), row.Attendance)
	assert.Equal(t, []core.FundAmount{
		{Fund: core.FundOffering, Amount: 4000},
		{Fund: core.FundTithe, Amount: 1000},
	}, row.ByFund)
	assert.Equal(t, "u-approver", row.ApprovedBy)

	rec, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.SyncSynced, rec.SyncStatus)
	assert.Equal(t, 1, obs.n["synced"])

	// A redelivered message is a no-op.
	require.NoError(t, w.HandleApproved(ctx, &amqp.RecordApprovedMessage{RecordID: "r1", Version: 1}))
	assert.Len(t, writer.Rows(), 1)
}

func TestHandleApproved_AttendanceModeAll(t *testing.T) {
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusApproved)
	writer := sheets.NewMemoryWriter()
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger(), Mode: "all"})

	require.NoError(t, w.HandleApproved(context.Background(), &amqp.RecordApprovedMessage{RecordID: "r1"}))
	assert.Equal(t, int64(33), writer.Rows()[0].Attendance)
}

func TestHandleApproved_SkipsMissingAndUnapproved(t *testing.T) {
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusPending)
	writer := sheets.NewMemoryWriter()
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger()})

	require.NoError(t, w.HandleApproved(context.Background(), &amqp.RecordApprovedMessage{RecordID: "missing"}))
	require.NoError(t, w.HandleApproved(context.Background(), &amqp.RecordApprovedMessage{RecordID: "r1"}))
	assert.Empty(t, writer.Rows())
}

func TestHandleApproved_WriterFailureMarksError(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusApproved)
	obs := &outcomes{}
	w := NewSyncWorker(store, failingWriter{}, Options{Logger: quietLogger(), Observer: obs})

	err := w.HandleApproved(ctx, &amqp.RecordApprovedMessage{RecordID: "r1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	rec, err := store.GetRecord(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.SyncError, rec.SyncStatus)
	assert.Equal(t, 1, obs.n["error"])
}

func TestProcessPending_SweepsApprovedUnsynced(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusApproved)
	addRecord(t, store, "r2", "svc2", core.StatusApproved)
	addRecord(t, store, "r3", "svc3", core.StatusPending)
	writer := sheets.NewMemoryWriter()
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger(), BatchSize: 1})

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Len(t, writer.Rows(), 2)

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessPending_FailingRecordDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	store := seed(t)
	addRecord(t, store, "a-broken", "svc1", core.StatusApproved)
	addRecord(t, store, "b-good", "svc2", core.StatusApproved)
	writer := refusingWriter{MemoryWriter: sheets.NewMemoryWriter(), refuse: "a-broken"}
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger(), BatchSize: 1})

	for i := 0; i < 3; i++ {
		_, err := w.ProcessPending(ctx)
		require.NoError(t, err)
	}

	rows := writer.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "b-good", rows[0].RecordID)

	good, err := store.GetRecord(ctx, "b-good")
	require.NoError(t, err)
	assert.Equal(t, core.SyncSynced, good.SyncStatus)
	broken, err := store.GetRecord(ctx, "a-broken")
	require.NoError(t, err)
	assert.Equal(t, core.SyncError, broken.SyncStatus)

	// The failing record is still retried once nothing fresher is waiting.
	pending, err := store.PendingSync(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a-broken", pending[0].ID)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := seed(t)
	addRecord(t, store, "r1", "svc1", core.StatusApproved)
	writer := sheets.NewMemoryWriter()
	w := NewSyncWorker(store, writer, Options{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, nil, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(writer.Rows()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
