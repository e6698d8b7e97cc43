package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidRun is returned when a run cannot be recorded
	ErrInvalidRun = errors.New("invalid run")
)

// DefaultListLimit is used when a non-positive limit is requested
const DefaultListLimit = 20

// SQLiteStorage implements the RunStore interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// One connection: a single writer, and one shared database for :memory:
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// Run operations

// insertRunWithQuerier writes the run and its failures using q
func (s *SQLiteStorage) insertRunWithQuerier(ctx context.Context, q querier, run *Run, failures []RetrievalFailure) error {
	if run == nil {
		return fmt.Errorf("%w: nil run", ErrInvalidRun)
	}
	if run.Status == "" {
		return fmt.Errorf("%w: missing status", ErrInvalidRun)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO runs (run_id, cache_key, issue_title, repo, status, files_requested,
		                  files_fetched, match_count, cache_hit, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.CacheKey, run.IssueTitle, run.Repo, string(run.Status), run.FilesRequested,
		run.FilesFetched, run.MatchCount, run.CacheHit, run.Duration.Milliseconds(), run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for i := range failures {
		f := &failures[i]
		f.RunID = run.ID
		if f.CreatedAt.IsZero() {
			f.CreatedAt = run.CreatedAt
		}
		result, err := q.ExecContext(ctx, `
			INSERT INTO retrieval_failures (run_id, path, content_location, reason, status_code, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, f.RunID, f.Path, f.ContentLocation, f.Reason, f.StatusCode, f.Error, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record failure for %s: %w", f.Path, err)
		}
		if id, err := result.LastInsertId(); err == nil {
			f.ID = id
		}
	}

	return nil
}

// RecordRun stores a run and its retrieval failures atomically
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *Run, failures []RetrievalFailure) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := s.insertRunWithQuerier(ctx, tx, run, failures); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const runColumns = `run_id, cache_key, issue_title, repo, status, files_requested,
	files_fetched, match_count, cache_hit, duration_ms, error, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status string
	var durationMS int64
	err := row.Scan(
		&run.ID, &run.CacheKey, &run.IssueTitle, &run.Repo, &status, &run.FilesRequested,
		&run.FilesFetched, &run.MatchCount, &run.CacheHit, &durationMS, &run.Error, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, runID string) (*Run, error) {
	row := q.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	return s.getRunWithQuerier(ctx, s.db, runID)
}

// listRecentRunsWithQuerier returns runs newest first
func (s *SQLiteStorage) listRecentRunsWithQuerier(ctx context.Context, q querier, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := q.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := make([]*Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStorage) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	return s.listRecentRunsWithQuerier(ctx, s.db, limit)
}

// trimRunsWithQuerier deletes all but the newest keep runs; failures cascade
func (s *SQLiteStorage) trimRunsWithQuerier(ctx context.Context, q querier, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	result, err := q.ExecContext(ctx, `
		DELETE FROM runs
		WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim runs: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) TrimRuns(ctx context.Context, keep int) (int64, error) {
	return s.trimRunsWithQuerier(ctx, s.db, keep)
}

// Failure operations

func (s *SQLiteStorage) listFailuresWithQuerier(ctx context.Context, q querier, runID string) ([]*RetrievalFailure, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, run_id, path, content_location, reason, status_code, error, created_at
		FROM retrieval_failures
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failures []*RetrievalFailure
	for rows.Next() {
		var f RetrievalFailure
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.ContentLocation, &f.Reason,
			&f.StatusCode, &f.Error, &f.CreatedAt); err != nil {
			return nil, err
		}
		failures = append(failures, &f)
	}
	return failures, rows.Err()
}

func (s *SQLiteStorage) ListFailures(ctx context.Context, runID string) ([]*RetrievalFailure, error) {
	return s.listFailuresWithQuerier(ctx, s.db, runID)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*JournalStatus, error) {
	status := &JournalStatus{
		RunsByStatus: make(map[string]int),
		BuildMode:    BuildMode,
	}

	rows, err := q.QueryContext(ctx, "SELECT status, COUNT(*) FROM runs GROUP BY status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.RunsByStatus[name] = count
		status.TotalRuns += count
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM retrieval_failures").Scan(&status.TotalFailures); err != nil {
		return nil, err
	}

	if status.TotalRuns > 0 {
		var last time.Time
		if err := q.QueryRowContext(ctx, "SELECT created_at FROM runs ORDER BY id DESC LIMIT 1").Scan(&last); err == nil {
			status.LastRunAt = last
		}
	}

	_ = q.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY rowid DESC LIMIT 1").Scan(&status.SchemaVersion)

	// Calculate database size
	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.SizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*JournalStatus, error) {
	return s.getStatusWithQuerier(ctx, s.db)
}

// Transaction implementations

func (t *sqliteTx) RecordRun(ctx context.Context, run *Run, failures []RetrievalFailure) error {
	return t.storage.insertRunWithQuerier(ctx, t.tx, run, failures)
}

func (t *sqliteTx) GetRun(ctx context.Context, runID string) (*Run, error) {
	return t.storage.getRunWithQuerier(ctx, t.tx, runID)
}

func (t *sqliteTx) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	return t.storage.listRecentRunsWithQuerier(ctx, t.tx, limit)
}

func (t *sqliteTx) TrimRuns(ctx context.Context, keep int) (int64, error) {
	return t.storage.trimRunsWithQuerier(ctx, t.tx, keep)
}

func (t *sqliteTx) ListFailures(ctx context.Context, runID string) ([]*RetrievalFailure, error) {
	return t.storage.listFailuresWithQuerier(ctx, t.tx, runID)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*JournalStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.tx)
}

func (t *sqliteTx) Close() error {
	return fmt.Errorf("cannot close transaction, use Commit or Rollback")
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}
