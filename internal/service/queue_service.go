package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aloonj/reefnotify/internal/batch"
	"github.com/aloonj/reefnotify/internal/domain"
	"github.com/aloonj/reefnotify/internal/store"
)

// QueueService is the surface collaborators and operators talk to.
// The enqueue path applies the batching policy; the admin operations are
// thin wrappers over the store. HTTP handlers and workers depend on this
// service, not on each other.
type QueueService struct {
	store  store.JobStore
	logger *zap.Logger
}

func NewQueueService(st store.JobStore, logger *zap.Logger) *QueueService {
	return &QueueService{store: st, logger: logger}
}

// Enqueue validates and persists a notification request.
//
// If a pending job with the same correlation key is still inside its batch
// window, the request merges into it instead of creating a second row and
// the returned bool is true. A newly created batchable job only becomes
// eligible for dispatch after its window elapses, giving later merges a
// chance to land.
//
// Store unavailability propagates to the caller: the enqueuing collaborator
// decides whether its own operation fails or degrades, but the queue never
// pretends success.
func (s *QueueService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.Job, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	j := s.buildJob(req)

	if j.CorrelationKey == "" {
		if err := s.store.Enqueue(ctx, j); err != nil {
			return nil, false, fmt.Errorf("persist job: %w", err)
		}
		return j, false, nil
	}

	merge := func(existing, incoming json.RawMessage) (json.RawMessage, error) {
		return batch.Merge(req.Type, existing, incoming)
	}
	stored, merged, err := s.store.MergeOrEnqueue(ctx, j, merge)
	if err != nil {
		return nil, false, fmt.Errorf("persist job: %w", err)
	}
	if merged {
		s.logger.Debug("request merged into open batch",
			zap.String("job_id", stored.ID),
			zap.String("correlation_key", stored.CorrelationKey))
	}
	return stored, merged, nil
}

// SendTest enqueues a synthetic job that bypasses the batcher entirely, so
// operators can verify the claim/send/resolve pipeline end-to-end.
func (s *QueueService) SendTest(ctx context.Context) (*domain.Job, error) {
	now := time.Now().UTC()
	payload, _ := json.Marshal(map[string]any{
		"test":         true,
		"subject":      "reefnotify pipeline test",
		"requested_at": now.Format(time.RFC3339),
	})

	j := &domain.Job{
		ID:          uuid.New().String(),
		Type:        domain.TypeBulletin,
		Status:      domain.StatusPending,
		Payload:     payload,
		MaxAttempts: domain.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Enqueue(ctx, j); err != nil {
		return nil, fmt.Errorf("persist test job: %w", err)
	}
	return j, nil
}

// Status returns aggregate counts and the most recent failures.
func (s *QueueService) Status(ctx context.Context) (*domain.QueueStatus, error) {
	return s.store.Status(ctx)
}

// Retry re-arms failed jobs. Ids in any other state are ignored, never
// mutated. Returns how many jobs were actually reset.
func (s *QueueService) Retry(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, domain.ErrNoJobIDs
	}
	reset, err := s.store.ResetFailed(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("retry jobs: %w", err)
	}
	if reset > 0 {
		s.logger.Info("failed jobs re-armed", zap.Int("count", reset))
	}
	return reset, nil
}

// Cleanup deletes terminal jobs processed more than olderThanDays ago.
// Pending and processing jobs survive regardless of age.
func (s *QueueService) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	if olderThanDays < 0 {
		return 0, domain.ErrInvalidAge
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	deleted, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup jobs: %w", err)
	}
	s.logger.Info("queue cleanup finished",
		zap.Int("deleted", deleted), zap.Int("older_than_days", olderThanDays))
	return deleted, nil
}

// DeleteAll removes every job regardless of state. An explicit, destructive
// operator action used for a total queue reset.
func (s *QueueService) DeleteAll(ctx context.Context) (int, error) {
	deleted, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all jobs: %w", err)
	}
	s.logger.Warn("queue purged", zap.Int("deleted", deleted))
	return deleted, nil
}

func (s *QueueService) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return s.store.GetByID(ctx, id)
}

func (s *QueueService) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Job, int, error) {
	return s.store.List(ctx, filter)
}

// buildJob constructs a pending job from a validated request. Batchable jobs
// get next_attempt pushed out to the end of their window; everything else is
// eligible immediately.
func (s *QueueService) buildJob(req domain.EnqueueRequest) *domain.Job {
	now := time.Now().UTC()
	j := &domain.Job{
		ID:             uuid.New().String(),
		Type:           req.Type,
		Status:         domain.StatusPending,
		CorrelationKey: batch.Key(req.Type, req.Payload),
		Payload:        req.Payload,
		MaxAttempts:    req.EffectiveMaxAttempts(),
		BatchWindow:    req.EffectiveBatchWindow(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if j.CorrelationKey != "" {
		next := now.Add(j.BatchWindow)
		j.NextAttempt = &next
	}
	return j
}
