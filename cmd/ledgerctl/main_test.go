package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/approval"
	"churchledger/internal/auth"
	"churchledger/internal/config"
	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(dbPath string) *config.Config {
	return &config.Config{
		SQLiteDBPath:        dbPath,
		LogLevel:            "error",
		AttendanceTotalMode: "core",
		JWTSecret:           testSecret,
		JWTIssuer:           "churchledger-test",
	}
}

// seed creates a database with one branch, one service and one approved
// record worth 5,000, returning the record ID.
func seed(t *testing.T, dbPath string) string {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.CreateBranch(ctx, core.Branch{ID: "b1", Name: "Lekki", CreatedAt: time.Now().UTC()}))
	require.NoError(t, repo.CreateService(ctx, core.Service{ID: "svc1", BranchID: "b1", Title: "Sunday Service", Date: core.NewDate(2024, 3, 3), CreatedAt: time.Now().UTC()}))
	require.NoError(t, repo.UpsertUser(ctx, core.User{ID: "u1", Email: "counter@example.org", Role: core.RoleCountingUnit, BranchID: "b1"}))

	w, err := approval.New(repo, approval.DefaultPolicy(), core.DefaultCatalog(),
		approval.WithLogger(applog.New(applog.ConfigFor("test", "error", "text", io.Discard))))
	require.NoError(t, err)

	ledger := core.DefaultCatalog().NewLedger()
	require.NoError(t, ledger.SetCount(1000, core.FundOffering, 4))
	require.NoError(t, ledger.SetCount(500, core.FundTithe, 2))
	counter := core.Actor{ID: "u1", Role: core.RoleCountingUnit, BranchID: "b1"}
	rec, err := w.Create(ctx, "svc1", core.RecordDraft{
		Ledger:     ledger,
		Attendance: core.Attendance{Male: 10, Female: 15},
	}, counter)
	require.NoError(t, err)
	_, err = w.Approve(ctx, rec.ID, core.Actor{ID: "u2", Role: core.RoleApprover, BranchID: "b1"})
	require.NoError(t, err)
	return rec.ID
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd(cfg, io.Discard)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestWords(t *testing.T) {
	out, err := run(t, testConfig(""), "words", "5000")
	require.NoError(t, err)
	assert.Equal(t, "5,000\tFive Thousand\n", out)

	_, err = run(t, testConfig(""), "words", "12.5")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "ledger.db"))

	out, err := run(t, cfg, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = run(t, cfg, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	out, err = run(t, cfg, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")

	out, err = run(t, cfg, "migrate", "status")
	require.NoError(t, err)
	assert.Equal(t, "schema version 0\n", out)
}

func TestRollup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	seed(t, dbPath)
	cfg := testConfig(dbPath)

	out, err := run(t, cfg, "rollup", "--from", "2024-03-01", "--to", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Lekki")
	assert.Contains(t, out, "5,000")
	assert.Contains(t, out, "Offering: ₦4,000")

	out, err = run(t, cfg, "rollup", "--from", "2024-03-01", "--to", "2024-03-31", "--json")
	require.NoError(t, err)
	var summary core.PeriodSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, int64(5000), summary.TotalAmount)
	assert.Equal(t, int64(25), summary.TotalPresent)

	out, err = run(t, cfg, "rollup", "--from", "2024-04-01", "--to", "2024-04-30", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Zero(t, summary.TotalAmount)

	_, err = run(t, cfg, "rollup", "--from", "2024-03-31", "--to", "2024-03-01")
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	id := seed(t, dbPath)
	cfg := testConfig(dbPath)
	cfg.ReportArchive = "dir://" + filepath.Join(dir, "archive")

	out, err := run(t, cfg, "report", "--record", id, "--format", "html", "--out", dir, "--archive")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, filepath.Join(dir, "Service Details 2024-03-03.html"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "file://"))

	data, err := os.ReadFile(lines[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Lekki")
	assert.Contains(t, string(data), "Five Thousand")

	_, err = run(t, cfg, "report", "--record", "missing", "--out", dir)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = run(t, cfg, "report", "--record", id, "--format", "docx", "--out", dir)
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	seed(t, dbPath)
	cfg := testConfig(dbPath)

	out, err := run(t, cfg, "token", "--user", "u1", "--ttl", "1h")
	require.NoError(t, err)
	tok := strings.TrimSpace(out)
	require.NotEmpty(t, tok)

	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()
	v, err := auth.NewVerifier(testSecret, "churchledger-test", repo)
	require.NoError(t, err)
	actor, err := v.Authenticate(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, core.RoleCountingUnit, actor.Role)
	assert.Equal(t, "b1", actor.BranchID)

	_, err = run(t, cfg, "token", "--user", "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
