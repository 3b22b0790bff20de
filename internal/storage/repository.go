package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"churchledger/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.Unavailable("ping", err)
	}
	return nil
}

const recordColumns = `body, version, sync_status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.ServiceRecord, error) {
	var (
		body    string
		version int64
		sync    string
	)
	if err := row.Scan(&body, &version, &sync); err != nil {
		return nil, err
	}
	var rec core.ServiceRecord
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		return nil, fmt.Errorf("decode record body: %w", err)
	}
	rec.Version = version
	rec.SyncStatus = core.SyncStatus(sync)
	if rec.Ledger == nil {
		rec.Ledger = &core.Ledger{}
	}
	return &rec, nil
}

func encodeRecord(rec *core.ServiceRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record body: %w", err)
	}
	return string(b), nil
}

func (r *SQLiteRepository) CreateRecord(ctx context.Context, rec *core.ServiceRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	body, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO service_records (id, service_id, branch_id, service_date, status, body, version, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ServiceID, rec.BranchID, rec.ServiceDate.String(), string(rec.Status), body,
		rec.Version, syncOrPending(rec.SyncStatus), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record for service %s: %w", rec.ServiceID, core.ErrAlreadyExists)
		}
		return core.Unavailable("create record", err)
	}
	slog.DebugContext(ctx, "Record saved to SQLite", "record_id", rec.ID, "service_id", rec.ServiceID)
	return nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (*core.ServiceRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id = ?`, id))
	return rec, notFoundOr(err, "record "+id, "get record")
}

func (r *SQLiteRepository) GetRecordByService(ctx context.Context, serviceID string) (*core.ServiceRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM service_records WHERE service_id = ?`, serviceID))
	return rec, notFoundOr(err, "record for service "+serviceID, "get record by service")
}

// UpdateRecord runs fn inside a transaction and writes only if the version
// read at the start is still current. A lost race surfaces as ErrConcurrentUpdate.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, id string, fn RecordMutator) (*core.ServiceRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Unavailable("begin update", err)
	}
	defer tx.Rollback()

	cur, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM service_records WHERE id = ?`, id))
	if err = notFoundOr(err, "record "+id, "read record"); err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	next.Version = cur.Version + 1
	body, err := encodeRecord(next)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE service_records
		SET status = ?, body = ?, version = ?, sync_status = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(next.Status), body, next.Version, syncOrPending(next.SyncStatus), next.UpdatedAt.UTC(),
		id, cur.Version)
	if err != nil {
		return nil, core.Unavailable("update record", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, core.Unavailable("update record", err)
	} else if n == 0 {
		return nil, fmt.Errorf("record %s: %w", id, core.ErrConcurrentUpdate)
	}
	if err := tx.Commit(); err != nil {
		return nil, core.Unavailable("commit update", err)
	}
	return next, nil
}

func (r *SQLiteRepository) ListRecords(ctx context.Context, f RecordFilter) ([]*core.ServiceRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.BranchID != "" {
		where = append(where, "branch_id = ?")
		args = append(args, f.BranchID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "service_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "service_date <= ?")
		args = append(args, f.To.String())
	}
	q := `SELECT ` + recordColumns + ` FROM service_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY service_date, id"
	return r.queryRecords(ctx, "list records", q, args...)
}

func (r *SQLiteRepository) queryRecords(ctx context.Context, op, q string, args ...any) ([]*core.ServiceRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.Unavailable(op, err)
	}
	defer rows.Close()
	var out []*core.ServiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable(op, err)
	}
	return out, nil
}

func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]*core.ServiceRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryRecords(ctx, "pending sync", `
		SELECT `+recordColumns+` FROM service_records
		WHERE status = 'approved' AND sync_status != 'synced'
		ORDER BY sync_attempts, id LIMIT ?`, limit)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.setSync(ctx, id, core.SyncSynced); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Record marked as synced", "record_id", id)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.setSync(ctx, id, core.SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Record marked with sync error", "record_id", id)
	return nil
}

// setSync records the outcome of an export. Failures also count an attempt.
func (r *SQLiteRepository) setSync(ctx context.Context, id string, st core.SyncStatus) error {
	failed := 0
	if st == core.SyncError {
		failed = 1
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE service_records
		SET sync_status = ?, sync_attempts = sync_attempts + ?
		WHERE id = ?`, string(st), failed, id)
	if err != nil {
		return core.Unavailable("mark sync", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) CreateBranch(ctx context.Context, b core.Branch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO branches (id, name, location, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.Location, b.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("branch %s: %w", b.ID, core.ErrAlreadyExists)
		}
		return core.Unavailable("create branch", err)
	}
	return nil
}

func scanBranch(row rowScanner) (core.Branch, error) {
	var b core.Branch
	err := row.Scan(&b.ID, &b.Name, &b.Location, &b.CreatedAt)
	return b, err
}

func (r *SQLiteRepository) GetBranch(ctx context.Context, id string) (core.Branch, error) {
	b, err := scanBranch(r.db.QueryRowContext(ctx, `SELECT id, name, location, created_at FROM branches WHERE id = ?`, id))
	return b, notFoundOr(err, "branch "+id, "get branch")
}

func (r *SQLiteRepository) ListBranches(ctx context.Context) ([]core.Branch, error) {
	return r.SearchBranches(ctx, "")
}

func (r *SQLiteRepository) SearchBranches(ctx context.Context, prefix string) ([]core.Branch, error) {
	q := `SELECT id, name, location, created_at FROM branches`
	var args []any
	if prefix != "" {
		q += ` WHERE name >= ? AND name <= ?`
		args = append(args, prefix, prefix+PrefixUpperBound)
	}
	q += ` ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.Unavailable("search branches", err)
	}
	defer rows.Close()
	var out []core.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, core.Unavailable("search branches", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateService(ctx context.Context, s core.Service) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := r.GetBranch(ctx, s.BranchID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO services (id, branch_id, title, service_date, day, time, description, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.BranchID, s.Title, s.Date.String(), s.Day, s.Time, s.Description, s.Status, s.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("service %s: %w", s.ID, core.ErrAlreadyExists)
		}
		return core.Unavailable("create service", err)
	}
	return nil
}

const serviceColumns = `id, branch_id, title, service_date, day, time, description, status, created_at`

func scanService(row rowScanner) (core.Service, error) {
	var (
		s    core.Service
		date string
	)
	if err := row.Scan(&s.ID, &s.BranchID, &s.Title, &date, &s.Day, &s.Time, &s.Description, &s.Status, &s.CreatedAt); err != nil {
		return s, err
	}
	if date != "" {
		d, err := core.ParseDate(date)
		if err != nil {
			return s, fmt.Errorf("service %s has bad date %q: %w", s.ID, date, err)
		}
		s.Date = d
	}
	return s, nil
}

func (r *SQLiteRepository) GetService(ctx context.Context, id string) (core.Service, error) {
	s, err := scanService(r.db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	return s, notFoundOr(err, "service "+id, "get service")
}

func (r *SQLiteRepository) ListServices(ctx context.Context, branchID string, from, to core.Date) ([]core.Service, error) {
	var (
		where []string
		args  []any
	)
	if branchID != "" {
		where = append(where, "branch_id = ?")
		args = append(args, branchID)
	}
	if !from.IsZero() {
		where = append(where, "service_date >= ?")
		args = append(args, from.String())
	}
	if !to.IsZero() {
		where = append(where, "service_date <= ?")
		args = append(args, to.String())
	}
	q := `SELECT ` + serviceColumns + ` FROM services`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return r.queryServices(ctx, q+" ORDER BY service_date, id", args...)
}

func (r *SQLiteRepository) SearchServices(ctx context.Context, branchID, prefix string) ([]core.Service, error) {
	return r.queryServices(ctx, `SELECT `+serviceColumns+` FROM services
		WHERE branch_id = ? AND title >= ? AND title <= ?
		ORDER BY service_date, id`, branchID, prefix, prefix+PrefixUpperBound)
}

func (r *SQLiteRepository) queryServices(ctx context.Context, q string, args ...any) ([]core.Service, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.Unavailable("list services", err)
	}
	defer rows.Close()
	var out []core.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, role, branch_id) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name,
			role = excluded.role, branch_id = excluded.branch_id`,
		u.ID, u.Email, u.DisplayName, string(u.Role), u.BranchID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s: %w", u.Email, core.ErrAlreadyExists)
		}
		return core.Unavailable("upsert user", err)
	}
	return nil
}

func scanUser(row rowScanner) (core.User, error) {
	var (
		u    core.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.BranchID); err != nil {
		return u, err
	}
	parsed, err := core.ParseRole(role)
	if err != nil {
		return u, err
	}
	u.Role = parsed
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT id, email, display_name, role, branch_id FROM users WHERE id = ?`, id))
	return u, notFoundOr(err, "user "+id, "get user")
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT id, email, display_name, role, branch_id FROM users WHERE email = ?`, email))
	return u, notFoundOr(err, "user "+email, "get user by email")
}

func (r *SQLiteRepository) AssignUserToBranch(ctx context.Context, userID, branchID string) error {
	if _, err := r.GetBranch(ctx, branchID); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET branch_id = ? WHERE id = ?`, branchID, userID)
	if err != nil {
		return core.Unavailable("assign user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	return nil
}

func notFoundOr(err error, what, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, core.ErrNotFound)
	case errors.Is(err, core.ErrValidation):
		return err
	}
	return core.Unavailable(op, err)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func syncOrPending(s core.SyncStatus) string {
	if s == "" {
		return string(core.SyncPending)
	}
	return string(s)
}
