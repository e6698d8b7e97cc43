package storage

import (
	"context"
	"time"
)

// RunStore records pipeline runs and the retrievals that failed during them.
// It is a journal only: nothing in it is consulted when answering a match.
type RunStore interface {
	// Run operations
	RecordRun(ctx context.Context, run *Run, failures []RetrievalFailure) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]*Run, error)
	TrimRuns(ctx context.Context, keep int) (deleted int64, err error)

	// Failure operations
	ListFailures(ctx context.Context, runID string) ([]*RetrievalFailure, error)

	// Status operations
	GetStatus(ctx context.Context) (*JournalStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	RunStore // Embed RunStore interface for transaction operations
}

// RunStatus is the outcome of a pipeline run
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusCacheHit  RunStatus = "cache_hit"
	StatusNoContent RunStatus = "no_content"
	StatusError     RunStatus = "error"
	StatusCanceled  RunStatus = "canceled"
)

// Run is one Match call
type Run struct {
	ID             string // UUID, assigned by RecordRun when empty
	CacheKey       string
	IssueTitle     string
	Repo           string
	Status         RunStatus
	FilesRequested int
	FilesFetched   int
	MatchCount     int
	CacheHit       bool
	Duration       time.Duration
	Error          string
	CreatedAt      time.Time
}

// RetrievalFailure is one file that could not be fetched during a run
type RetrievalFailure struct {
	ID              int64
	RunID           string
	Path            string
	ContentLocation string
	Reason          string
	StatusCode      int
	Error           string
	CreatedAt       time.Time
}

// JournalStatus summarizes the journal contents
type JournalStatus struct {
	TotalRuns     int            `json:"total_runs"`
	RunsByStatus  map[string]int `json:"runs_by_status"`
	TotalFailures int            `json:"total_failures"`
	LastRunAt     time.Time      `json:"last_run_at,omitempty"`
	SizeMB        float64        `json:"size_mb"`
	SchemaVersion string         `json:"schema_version"`
	BuildMode     string         `json:"build_mode"`
}
