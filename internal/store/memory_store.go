package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aloonj/reefnotify/internal/domain"
)

// MemoryStore is a hand-written, in-memory JobStore used in unit tests.
// All operations hold one mutex, which trivially gives the same claim
// atomicity the pgx implementation gets from FOR UPDATE SKIP LOCKED.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job

	// Optional error overrides, set in tests to simulate failure paths.
	EnqueueErr error
	ClaimErr   error
	ResolveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*domain.Job)}
}

// Seed inserts a job exactly as given, bypassing all invariant bookkeeping.
// Tests use it to construct stale or aged rows directly.
func (s *MemoryStore) Seed(j *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *j
	s.jobs[j.ID] = &clone
}

func (s *MemoryStore) Enqueue(_ context.Context, j *domain.Job) error {
	if s.EnqueueErr != nil {
		return s.EnqueueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *j
	s.jobs[j.ID] = &clone
	return nil
}

func (s *MemoryStore) MergeOrEnqueue(_ context.Context, j *domain.Job, merge MergeFunc) (*domain.Job, bool, error) {
	if s.EnqueueErr != nil {
		return nil, false, s.EnqueueErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var open *domain.Job
	for _, existing := range s.jobs {
		if existing.CorrelationKey != j.CorrelationKey || existing.Status != domain.StatusPending {
			continue
		}
		if !existing.CreatedAt.Add(existing.BatchWindow).After(now) {
			continue // window elapsed; a fresh job is created instead
		}
		if open == nil || existing.CreatedAt.Before(open.CreatedAt) {
			open = existing
		}
	}

	if open == nil {
		clone := *j
		s.jobs[j.ID] = &clone
		return j, false, nil
	}

	merged, err := merge(open.Payload, j.Payload)
	if err != nil {
		return nil, false, err
	}
	open.Payload = merged
	open.UpdatedAt = now

	clone := *open
	return &clone, true, nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, limit int, staleAfter time.Duration) ([]*domain.Job, error) {
	if s.ClaimErr != nil {
		return nil, s.ClaimErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var due []*domain.Job
	for _, j := range s.jobs {
		switch {
		case j.Status == domain.StatusPending && (j.NextAttempt == nil || !j.NextAttempt.After(now)):
			due = append(due, j)
		case j.Status == domain.StatusProcessing && j.UpdatedAt.Before(now.Add(-staleAfter)):
			due = append(due, j)
		}
	}

	sort.Slice(due, func(a, b int) bool {
		ta, tb := due[a].NextAttempt, due[b].NextAttempt
		switch {
		case ta == nil && tb == nil:
			return false
		case ta == nil:
			return true
		case tb == nil:
			return false
		}
		return ta.Before(*tb)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*domain.Job, len(due))
	for i, j := range due {
		j.Status = domain.StatusProcessing
		j.UpdatedAt = now
		clone := *j
		claimed[i] = &clone
	}
	return claimed, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, o domain.Outcome) (bool, error) {
	if s.ResolveErr != nil {
		return false, s.ResolveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok || j.Status != domain.StatusProcessing {
		return false, nil
	}

	last := o.LastAttempt
	j.Status = o.Status
	j.Attempts = o.Attempts
	j.LastAttempt = &last
	j.NextAttempt = o.NextAttempt
	j.Error = o.Error
	j.ProcessedAt = nil
	if j.Terminal() {
		j.ProcessedAt = &last
	}
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (s *MemoryStore) List(_ context.Context, f domain.ListFilter) ([]*domain.Job, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.Job
	for _, j := range s.jobs {
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		if f.Type != nil && j.Type != *f.Type {
			continue
		}
		clone := *j
		matched = append(matched, &clone)
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	total := len(matched)
	if f.Limit > 0 {
		start := (f.Page - 1) * f.Limit
		if start > total {
			start = total
		}
		end := start + f.Limit
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

func (s *MemoryStore) Status(_ context.Context) (*domain.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &domain.QueueStatus{}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	var failures []*domain.Job

	for _, j := range s.jobs {
		switch j.Status {
		case domain.StatusPending:
			st.Pending++
		case domain.StatusProcessing:
			st.Processing++
		case domain.StatusCompleted:
			if j.ProcessedAt != nil && j.ProcessedAt.After(cutoff) {
				st.Completed24h++
			}
		case domain.StatusFailed:
			st.Failed++
			clone := *j
			failures = append(failures, &clone)
		}
	}

	sort.Slice(failures, func(a, b int) bool {
		ta, tb := failures[a].ProcessedAt, failures[b].ProcessedAt
		if ta == nil || tb == nil {
			return tb == nil
		}
		return ta.After(*tb)
	})
	if len(failures) > 10 {
		failures = failures[:10]
	}
	st.RecentFailures = failures
	return st, nil
}

func (s *MemoryStore) ResetFailed(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := 0
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.Status != domain.StatusFailed {
			continue
		}
		j.Status = domain.StatusPending
		j.Attempts = 0
		j.NextAttempt = nil
		j.Error = nil
		j.ProcessedAt = nil
		j.UpdatedAt = time.Now().UTC()
		reset++
	}
	return reset, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, processedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, j := range s.jobs {
		if !j.Terminal() || j.ProcessedAt == nil || !j.ProcessedAt.Before(processedBefore) {
			continue
		}
		delete(s.jobs, id)
		deleted++
	}
	return deleted, nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := len(s.jobs)
	s.jobs = make(map[string]*domain.Job)
	return deleted, nil
}

// compile-time check that MemoryStore implements JobStore
var _ JobStore = (*MemoryStore)(nil)
