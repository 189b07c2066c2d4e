package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aloonj/reefnotify/internal/domain"
	"github.com/aloonj/reefnotify/internal/store"
)

func pendingJob(opts ...func(*domain.Job)) *domain.Job {
	now := time.Now().UTC()
	j := &domain.Job{
		ID:          uuid.New().String(),
		Type:        domain.TypeStatusUpdate,
		Status:      domain.StatusPending,
		Payload:     json.RawMessage(`{"order_id":"ord-1"}`),
		MaxAttempts: 3,
		BatchWindow: domain.DefaultBatchWindow,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// TestClaimDue_NoDoubleClaim is the single most important property of the
// whole subsystem: concurrent claimers never receive the same job.
func TestClaimDue_NoDoubleClaim(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	const jobs = 200
	for i := 0; i < jobs; i++ {
		if err := s.Enqueue(ctx, pendingJob()); err != nil {
			t.Fatal(err)
		}
	}

	const claimers = 8
	results := make(chan []*domain.Job, jobs)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimDue(ctx, 10, time.Minute)
				if err != nil {
					t.Error(err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				results <- claimed
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	total := 0
	for claimed := range results {
		for _, j := range claimed {
			if seen[j.ID] {
				t.Fatalf("job %s claimed twice", j.ID)
			}
			seen[j.ID] = true
			total++
		}
	}
	if total != jobs {
		t.Fatalf("expected %d jobs claimed exactly once, got %d", jobs, total)
	}
}

func TestClaimDue_RespectsNextAttempt(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	notDue := pendingJob(func(j *domain.Job) { j.NextAttempt = &future })
	due := pendingJob()

	s.Seed(notDue)
	s.Seed(due)

	claimed, err := s.ClaimDue(ctx, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due job to be claimed, got %d jobs", len(claimed))
	}
}

// TestClaimDue_ReclaimsStale verifies the crash-recovery sweep: a job stuck
// in processing past staleAfter is claimable again.
func TestClaimDue_ReclaimsStale(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	stale := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusProcessing
		j.UpdatedAt = time.Now().UTC().Add(-10 * time.Minute)
	})
	fresh := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusProcessing
	})
	s.Seed(stale)
	s.Seed(fresh)

	claimed, err := s.ClaimDue(ctx, 10, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 || claimed[0].ID != stale.ID {
		t.Fatalf("expected exactly the stale job reclaimed, got %d jobs", len(claimed))
	}
}

// TestResolve_Idempotent simulates the race between a normal completion and
// a recovery sweep: only the first resolve takes effect.
func TestResolve_Idempotent(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	j := pendingJob()
	s.Seed(j)
	claimed, err := s.ClaimDue(ctx, 1, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim failed: %v (%d jobs)", err, len(claimed))
	}

	now := time.Now().UTC()
	applied, err := s.Resolve(ctx, j.ID, domain.Completed(1, now))
	if err != nil || !applied {
		t.Fatalf("first resolve: applied=%v err=%v", applied, err)
	}

	applied, err = s.Resolve(ctx, j.ID, domain.Exhausted(1, now, "late failure"))
	if err != nil {
		t.Fatal(err)
	}
	if applied {
		t.Fatal("second resolve must be a no-op")
	}

	got, err := s.GetByID(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected first outcome to stand, got status %s", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Fatal("terminal job must have processed_at set")
	}
}

func TestResolve_Rescheduled(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	j := pendingJob()
	s.Seed(j)
	if _, err := s.ClaimDue(ctx, 1, time.Minute); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	next := now.Add(30 * time.Second)
	applied, err := s.Resolve(ctx, j.ID, domain.Rescheduled(1, now, next, "timeout"))
	if err != nil || !applied {
		t.Fatalf("resolve: applied=%v err=%v", applied, err)
	}

	got, _ := s.GetByID(ctx, j.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.NextAttempt == nil || !got.NextAttempt.Equal(next) {
		t.Fatalf("expected next_attempt %v, got %v", next, got.NextAttempt)
	}
	if got.NextAttempt.Before(*got.LastAttempt) {
		t.Fatal("next_attempt must never precede last_attempt")
	}
	if got.ProcessedAt != nil {
		t.Fatal("rescheduled job must not have processed_at")
	}
	if got.Error == nil || *got.Error != "timeout" {
		t.Fatalf("expected error retained, got %v", got.Error)
	}
}

func TestMergeOrEnqueue(t *testing.T) {
	appendMerge := func(existing, incoming json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(fmt.Sprintf(`{"merged":[%s,%s]}`, existing, incoming)), nil
	}

	t.Run("merges into open batch", func(t *testing.T) {
		s := store.NewMemoryStore()
		ctx := context.Background()

		first := pendingJob(func(j *domain.Job) { j.CorrelationKey = "low_stock:acro-7" })
		second := pendingJob(func(j *domain.Job) { j.CorrelationKey = "low_stock:acro-7" })

		if _, merged, err := s.MergeOrEnqueue(ctx, first, appendMerge); err != nil || merged {
			t.Fatalf("first enqueue: merged=%v err=%v", merged, err)
		}
		stored, merged, err := s.MergeOrEnqueue(ctx, second, appendMerge)
		if err != nil {
			t.Fatal(err)
		}
		if !merged {
			t.Fatal("expected second enqueue to merge")
		}
		if stored.ID != first.ID {
			t.Fatal("merge must land on the existing row")
		}

		if _, err := s.GetByID(ctx, second.ID); err != domain.ErrNotFound {
			t.Fatal("merged request must not create a second row")
		}
	})

	t.Run("elapsed window creates fresh job", func(t *testing.T) {
		s := store.NewMemoryStore()
		ctx := context.Background()

		old := pendingJob(func(j *domain.Job) {
			j.CorrelationKey = "low_stock:acro-7"
			j.BatchWindow = time.Minute
			j.CreatedAt = time.Now().UTC().Add(-2 * time.Minute)
		})
		s.Seed(old)

		fresh := pendingJob(func(j *domain.Job) { j.CorrelationKey = "low_stock:acro-7" })
		_, merged, err := s.MergeOrEnqueue(ctx, fresh, appendMerge)
		if err != nil {
			t.Fatal(err)
		}
		if merged {
			t.Fatal("expected no merge once the window has elapsed")
		}
	})

	t.Run("processing sibling never merged into", func(t *testing.T) {
		s := store.NewMemoryStore()
		ctx := context.Background()

		inflight := pendingJob(func(j *domain.Job) {
			j.CorrelationKey = "low_stock:acro-7"
			j.Status = domain.StatusProcessing
		})
		s.Seed(inflight)

		fresh := pendingJob(func(j *domain.Job) { j.CorrelationKey = "low_stock:acro-7" })
		_, merged, err := s.MergeOrEnqueue(ctx, fresh, appendMerge)
		if err != nil {
			t.Fatal(err)
		}
		if merged {
			t.Fatal("expected no merge into an in-flight job")
		}
	})
}

func TestResetFailed_OnlyFailedJobs(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	errMsg := "smtp unreachable"
	processed := time.Now().UTC()
	failed := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusFailed
		j.Attempts = 3
		j.Error = &errMsg
		j.ProcessedAt = &processed
	})
	pending := pendingJob()
	processing := pendingJob(func(j *domain.Job) { j.Status = domain.StatusProcessing })
	s.Seed(failed)
	s.Seed(pending)
	s.Seed(processing)

	reset, err := s.ResetFailed(ctx, []string{failed.ID, pending.ID, processing.ID, "no-such-id"})
	if err != nil {
		t.Fatal(err)
	}
	if reset != 1 {
		t.Fatalf("expected exactly 1 job reset, got %d", reset)
	}

	got, _ := s.GetByID(ctx, failed.ID)
	if got.Status != domain.StatusPending || got.Attempts != 0 || got.Error != nil || got.NextAttempt != nil {
		t.Fatalf("failed job not fully re-armed: %+v", got)
	}

	if got, _ := s.GetByID(ctx, processing.ID); got.Status != domain.StatusProcessing {
		t.Fatal("retry must never mutate a processing job")
	}
}

func TestCleanup_NeverTouchesLiveJobs(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	ancient := time.Now().UTC().Add(-90 * 24 * time.Hour)
	oldCompleted := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusCompleted
		j.ProcessedAt = &ancient
	})
	oldFailed := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusFailed
		j.ProcessedAt = &ancient
	})
	oldPending := pendingJob(func(j *domain.Job) { j.CreatedAt = ancient })
	oldProcessing := pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusProcessing
		j.CreatedAt = ancient
		j.UpdatedAt = ancient
	})
	for _, j := range []*domain.Job{oldCompleted, oldFailed, oldPending, oldProcessing} {
		s.Seed(j)
	}

	deleted, err := s.Cleanup(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 terminal jobs deleted, got %d", deleted)
	}

	for _, id := range []string{oldPending.ID, oldProcessing.ID} {
		if _, err := s.GetByID(ctx, id); err != nil {
			t.Fatalf("cleanup removed a live job: %v", err)
		}
	}
}

func TestDeleteAll(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Seed(pendingJob())
	}
	deleted, err := s.DeleteAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 5 {
		t.Fatalf("expected 5 deleted, got %d", deleted)
	}
	if _, total, _ := s.List(ctx, domain.ListFilter{Page: 1, Limit: 10}); total != 0 {
		t.Fatalf("expected empty store, got %d jobs", total)
	}
}

func TestStatus(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	recent := time.Now().UTC().Add(-time.Hour)
	stale := time.Now().UTC().Add(-48 * time.Hour)
	errMsg := "boom"

	s.Seed(pendingJob())
	s.Seed(pendingJob(func(j *domain.Job) { j.Status = domain.StatusProcessing }))
	s.Seed(pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusCompleted
		j.ProcessedAt = &recent
	}))
	s.Seed(pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusCompleted
		j.ProcessedAt = &stale
	}))
	s.Seed(pendingJob(func(j *domain.Job) {
		j.Status = domain.StatusFailed
		j.Error = &errMsg
		j.ProcessedAt = &recent
	}))

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Pending != 1 || st.Processing != 1 || st.Completed24h != 1 || st.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if len(st.RecentFailures) != 1 || st.RecentFailures[0].Error == nil {
		t.Fatal("expected the failed job with its error in recent failures")
	}
}
