package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aloonj/reefnotify/internal/domain"
)

// MergeFunc combines an incoming payload into the payload of an existing
// pending job. Injected by the service so the store stays policy-free.
type MergeFunc func(existing, incoming json.RawMessage) (json.RawMessage, error)

// JobStore defines all persistence operations for notification jobs.
// It is the only shared mutable resource in the system: every worker and
// every admin operation coordinates exclusively through it, so ClaimDue and
// MergeOrEnqueue must be atomic even across separate processes.
//
// The pgx implementation is in pg_store.go; tests use the in-memory
// implementation in memory_store.go.
type JobStore interface {
	// Enqueue inserts a new pending job unconditionally. Used for jobs
	// without a correlation key and for operator test sends.
	Enqueue(ctx context.Context, job *domain.Job) error

	// MergeOrEnqueue atomically merges the job's payload into an existing
	// pending job that shares its correlation key and is still inside its
	// batch window, or inserts the job as a new row when no such sibling
	// exists. Returns the stored job and whether a merge happened.
	MergeOrEnqueue(ctx context.Context, job *domain.Job, merge MergeFunc) (*domain.Job, bool, error)

	// ClaimDue atomically selects up to limit jobs that are due for dispatch
	// (pending with next_attempt unset or elapsed, or processing but not
	// touched for longer than staleAfter) and transitions them to processing
	// in the same step. No two concurrent callers can claim the same job.
	ClaimDue(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.Job, error)

	// Resolve transitions a claimed job per the outcome. Returns false when
	// the job is no longer processing (already resolved by another path);
	// that case is a no-op, not an error.
	Resolve(ctx context.Context, id string, outcome domain.Outcome) (bool, error)

	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, int, error)

	// Status returns aggregate counts plus the most recent failures.
	Status(ctx context.Context) (*domain.QueueStatus, error)

	// ResetFailed re-arms the given jobs for dispatch: each id currently in
	// failed status goes back to pending with attempts, next_attempt and
	// error cleared. Other ids are ignored. Returns the number reset.
	ResetFailed(ctx context.Context, ids []string) (int, error)

	// Cleanup deletes terminal jobs processed before the cutoff. Pending and
	// processing jobs are never touched regardless of age.
	Cleanup(ctx context.Context, processedBefore time.Time) (int, error)

	// DeleteAll removes every job regardless of state. Operator-only.
	DeleteAll(ctx context.Context) (int, error)
}
