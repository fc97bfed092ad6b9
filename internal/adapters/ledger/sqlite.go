package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/runward/runward/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteLedger implements core.Ledger with SQLite storage.
type SQLiteLedger struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteLedger creates a new SQLite-backed run ledger.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	l := &SQLiteLedger{dbPath: dbPath}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	l.db = db

	if err := l.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return l, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (l *SQLiteLedger) migrate() error {
	var version int
	err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}

	if version < 1 {
		if _, err := l.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}

	return nil
}

// Get retrieves a run record by id.
func (l *SQLiteLedger) Get(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.getLocked(ctx, id)
}

func (l *SQLiteLedger) getLocked(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, host, control_dir, task_db, status, failure_reason,
		       exit_code, attempt, finished_nodes, started_at, updated_at
		FROM runs WHERE id = ?
	`, id)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrRunNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}
	return rec, nil
}

// List returns records passing the filter, most recently updated first.
func (l *SQLiteLedger) List(ctx context.Context, filter core.Filter) ([]*core.RunRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	query := `
		SELECT id, host, control_dir, task_db, status, failure_reason,
		       exit_code, attempt, finished_nodes, started_at, updated_at
		FROM runs
	`
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Host != "" {
		conds = append(conds, "host = ?")
		args = append(args, filter.Host)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY updated_at DESC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var records []*core.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return records, nil
}

// Upsert inserts or updates a record. The target is write-once: an upsert
// that would rebind an existing id to a different target is rejected and
// the stored row is left unchanged.
func (l *SQLiteLedger) Upsert(ctx context.Context, record *core.RunRecord) error {
	if record.ID == "" {
		return core.ErrValidation(core.CodeInvalidTarget, "run id is required")
	}
	if err := record.Target.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var host, controlDir, taskDB string
	err = tx.QueryRowContext(ctx,
		"SELECT host, control_dir, task_db FROM runs WHERE id = ?", record.ID,
	).Scan(&host, &controlDir, &taskDB)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New run
	case err != nil:
		return fmt.Errorf("checking existing run: %w", err)
	default:
		existing := core.Target{Host: host, ControlDir: controlDir, TaskDB: taskDB}
		if existing != record.Target {
			return core.ErrTargetImmutable(record.ID)
		}
	}

	record.UpdatedAt = time.Now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = record.UpdatedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, host, control_dir, task_db, status, failure_reason,
			exit_code, attempt, finished_nodes, started_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			failure_reason = excluded.failure_reason,
			exit_code = excluded.exit_code,
			attempt = excluded.attempt,
			finished_nodes = excluded.finished_nodes,
			updated_at = excluded.updated_at
	`,
		record.ID, record.Target.Host, record.Target.ControlDir, record.Target.TaskDB,
		string(record.Status), nullableString(string(record.FailureReason)),
		nullableInt(record.ExitCode), record.Attempt, record.FinishedNodes,
		record.StartedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// AppendAttempt increments the attempt counter by exactly one.
func (l *SQLiteLedger) AppendAttempt(ctx context.Context, id core.RunID) (*core.RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		"UPDATE runs SET attempt = attempt + 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("incrementing attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return nil, core.ErrRunNotFound(id)
	}

	return l.getLocked(ctx, id)
}

// Delete removes a run record. Remote artifacts are untouched.
func (l *SQLiteLedger) Delete(ctx context.Context, id core.RunID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return core.ErrRunNotFound(id)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*core.RunRecord, error) {
	var rec core.RunRecord
	var id, host, controlDir, taskDB, status string
	var failureReason sql.NullString
	var exitCode sql.NullInt64

	err := s.Scan(
		&id, &host, &controlDir, &taskDB, &status, &failureReason,
		&exitCode, &rec.Attempt, &rec.FinishedNodes, &rec.StartedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID = core.RunID(id)
	rec.Target = core.Target{Host: host, ControlDir: controlDir, TaskDB: taskDB}
	rec.Status = core.RunStatus(status)
	if failureReason.Valid {
		rec.FailureReason = core.FailureReason(failureReason.String)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}

	return &rec, nil
}

// Helper functions for nullable values

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

// Verify that SQLiteLedger implements core.Ledger.
var _ core.Ledger = (*SQLiteLedger)(nil)
