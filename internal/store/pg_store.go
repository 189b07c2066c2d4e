package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aloonj/reefnotify/internal/domain"
)

const jobColumns = `id, type, status, correlation_key, payload, attempts, max_attempts,
	last_attempt, next_attempt, error, batch_window_secs, processed_at,
	created_at, updated_at`

type pgJobStore struct {
	pool *pgxpool.Pool
}

// NewPgJobStore returns a JobStore backed by PostgreSQL.
func NewPgJobStore(pool *pgxpool.Pool) JobStore {
	return &pgJobStore{pool: pool}
}

func (s *pgJobStore) Enqueue(ctx context.Context, j *domain.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_jobs
			(id, type, status, correlation_key, payload, attempts, max_attempts,
			 next_attempt, batch_window_secs, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		j.ID, j.Type, j.Status, j.CorrelationKey, j.Payload, j.Attempts, j.MaxAttempts,
		j.NextAttempt, int(j.BatchWindow.Seconds()), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// MergeOrEnqueue serialises per correlation key with a transaction-scoped
// advisory lock, so two concurrent enqueues for the same key cannot both
// insert. The merge itself runs in Go inside the transaction.
func (s *pgJobStore) MergeOrEnqueue(ctx context.Context, j *domain.Job, merge MergeFunc) (*domain.Job, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, j.CorrelationKey); err != nil {
		return nil, false, fmt.Errorf("acquire key lock: %w: %w", domain.ErrStoreUnavailable, err)
	}

	row := tx.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM notification_jobs
		WHERE correlation_key = $1
		  AND status = 'pending'
		  AND created_at + make_interval(secs => batch_window_secs) > NOW()
		ORDER BY created_at
		LIMIT 1
		FOR UPDATE`, j.CorrelationKey)

	existing, err := scanJob(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO notification_jobs
				(id, type, status, correlation_key, payload, attempts, max_attempts,
				 next_attempt, batch_window_secs, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			j.ID, j.Type, j.Status, j.CorrelationKey, j.Payload, j.Attempts, j.MaxAttempts,
			j.NextAttempt, int(j.BatchWindow.Seconds()), j.CreatedAt, j.UpdatedAt,
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert job: %w: %w", domain.ErrStoreUnavailable, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("commit enqueue: %w: %w", domain.ErrStoreUnavailable, err)
		}
		return j, false, nil

	case err != nil:
		return nil, false, fmt.Errorf("find open batch: %w: %w", domain.ErrStoreUnavailable, err)
	}

	merged, err := merge(existing.Payload, j.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("merge payload: %w", err)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE notification_jobs SET payload = $1, updated_at = $2 WHERE id = $3`,
		merged, now, existing.ID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update batch payload: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit merge: %w: %w", domain.ErrStoreUnavailable, err)
	}

	existing.Payload = merged
	existing.UpdatedAt = now
	return existing, true, nil
}

// ClaimDue claims in a single statement: FOR UPDATE SKIP LOCKED makes
// concurrent claimers skip rows another transaction is transitioning, so no
// job can be returned to two callers.
func (s *pgJobStore) ClaimDue(ctx context.Context, limit int, staleAfter time.Duration) ([]*domain.Job, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM notification_jobs
			WHERE (status = 'pending' AND (next_attempt IS NULL OR next_attempt <= NOW()))
			   OR (status = 'processing' AND updated_at < NOW() - make_interval(secs => $1))
			ORDER BY next_attempt ASC NULLS FIRST
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_jobs j
		SET status = 'processing', updated_at = NOW()
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.type, j.status, j.correlation_key, j.payload, j.attempts,
		          j.max_attempts, j.last_attempt, j.next_attempt, j.error,
		          j.batch_window_secs, j.processed_at, j.created_at, j.updated_at`,
		int(staleAfter.Seconds()), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *pgJobStore) Resolve(ctx context.Context, id string, o domain.Outcome) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = $2,
		    attempts = $3,
		    last_attempt = $4,
		    next_attempt = $5,
		    error = $6,
		    processed_at = CASE WHEN $2 IN ('completed','failed') THEN $4 ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, o.Status, o.Attempts, o.LastAttempt, o.NextAttempt, o.Error,
	)
	if err != nil {
		return false, fmt.Errorf("resolve job: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return j, err
}

func (s *pgJobStore) List(ctx context.Context, f domain.ListFilter) ([]*domain.Job, int, error) {
	where, args := buildListWhere(f)
	offset := (f.Page - 1) * f.Limit

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM notification_jobs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	args = append(args, f.Limit, offset)
	query := fmt.Sprintf(`
		SELECT `+jobColumns+`
		FROM notification_jobs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	return jobs, total, err
}

func (s *pgJobStore) Status(ctx context.Context) (*domain.QueueStatus, error) {
	var st domain.QueueStatus
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed' AND processed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_jobs`).
		Scan(&st.Pending, &st.Processing, &st.Completed24h, &st.Failed)
	if err != nil {
		return nil, fmt.Errorf("count queue status: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM notification_jobs
		WHERE status = 'failed'
		ORDER BY processed_at DESC
		LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	defer rows.Close()

	st.RecentFailures, err = scanJobs(rows)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *pgJobStore) ResetFailed(ctx context.Context, ids []string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = 'pending', attempts = 0, next_attempt = NULL,
		    error = NULL, processed_at = NULL, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'failed'`, ids)
	if err != nil {
		return 0, fmt.Errorf("reset failed jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgJobStore) Cleanup(ctx context.Context, processedBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notification_jobs
		WHERE status IN ('completed', 'failed') AND processed_at < $1`, processedBefore)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *pgJobStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notification_jobs`)
	if err != nil {
		return 0, fmt.Errorf("delete all jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- helpers ----

// scanJob reads a single job row from any pgx row type.
func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var windowSecs int64
	err := row.Scan(
		&j.ID, &j.Type, &j.Status, &j.CorrelationKey, &j.Payload,
		&j.Attempts, &j.MaxAttempts, &j.LastAttempt, &j.NextAttempt,
		&j.Error, &windowSecs, &j.ProcessedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.BatchWindow = time.Duration(windowSecs) * time.Second
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var result []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

// buildListWhere builds a parameterised WHERE clause from a ListFilter.
func buildListWhere(f domain.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if f.Type != nil {
		add("type = $%d", *f.Type)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
