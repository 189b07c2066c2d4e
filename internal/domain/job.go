package domain

import (
	"encoding/json"
	"time"
)

// JobType determines how a notification is rendered and which payload field
// identifies its batching target.
type JobType string

const (
	TypeOrderConfirmation JobType = "order_confirmation"
	TypeStatusUpdate      JobType = "status_update"
	TypeBulletin          JobType = "bulletin"
	TypeLowStock          JobType = "low_stock"
)

func (t JobType) IsValid() bool {
	switch t {
	case TypeOrderConfirmation, TypeStatusUpdate, TypeBulletin, TypeLowStock:
		return true
	}
	return false
}

// JobStatus tracks the lifecycle of a notification job.
// Completed and failed are terminal; only an explicit admin retry re-arms
// a failed job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Defaults applied at enqueue time when the caller does not override them.
const (
	DefaultMaxAttempts = 3
	DefaultBatchWindow = 300 * time.Second
)

// Limits on caller-supplied overrides.
const (
	MaxAttemptsCeiling = 10
	BatchWindowCeiling = 24 * time.Hour
	MaxPayloadBytes    = 64 << 10
)

// Job is the single persisted entity of the dispatch queue. The payload is
// owned by the enqueuing collaborator and never interpreted here beyond
// target-id extraction for batching.
type Job struct {
	ID             string          `json:"id"`
	Type           JobType         `json:"type"`
	Status         JobStatus       `json:"status"`
	CorrelationKey string          `json:"correlation_key,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	LastAttempt    *time.Time      `json:"last_attempt,omitempty"`
	NextAttempt    *time.Time      `json:"next_attempt,omitempty"`
	Error          *string         `json:"error,omitempty"`
	BatchWindow    time.Duration   `json:"-"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Terminal reports whether the job has reached a state that no automatic
// transition will ever leave.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// EnqueueRequest is the inbound payload for a single notification job.
// Zero values for MaxAttempts and BatchWindowSeconds select the defaults.
type EnqueueRequest struct {
	Type               JobType         `json:"type"`
	Payload            json.RawMessage `json:"payload"`
	MaxAttempts        int             `json:"max_attempts,omitempty"`
	BatchWindowSeconds int             `json:"batch_window_seconds,omitempty"`
}

func (r *EnqueueRequest) Validate() error {
	if !r.Type.IsValid() {
		return ErrInvalidType
	}
	if len(r.Payload) == 0 || len(r.Payload) > MaxPayloadBytes || !json.Valid(r.Payload) {
		return ErrInvalidPayload
	}
	if r.MaxAttempts < 0 || r.MaxAttempts > MaxAttemptsCeiling {
		return ErrInvalidMaxAttempts
	}
	if r.BatchWindowSeconds < 0 || time.Duration(r.BatchWindowSeconds)*time.Second > BatchWindowCeiling {
		return ErrInvalidBatchWindow
	}
	return nil
}

// EffectiveMaxAttempts resolves the caller override against the default.
func (r *EnqueueRequest) EffectiveMaxAttempts() int {
	if r.MaxAttempts == 0 {
		return DefaultMaxAttempts
	}
	return r.MaxAttempts
}

// EffectiveBatchWindow resolves the caller override against the default.
func (r *EnqueueRequest) EffectiveBatchWindow() time.Duration {
	if r.BatchWindowSeconds == 0 {
		return DefaultBatchWindow
	}
	return time.Duration(r.BatchWindowSeconds) * time.Second
}

// Outcome describes how a claimed job resolves.
// Use one of the three constructors below.
type Outcome struct {
	Status      JobStatus
	Attempts    int
	LastAttempt time.Time
	NextAttempt *time.Time
	Error       *string
}

// Completed resolves a job as successfully delivered.
func Completed(attempts int, at time.Time) Outcome {
	return Outcome{Status: StatusCompleted, Attempts: attempts, LastAttempt: at}
}

// Rescheduled resolves a job back to pending with a future attempt time.
func Rescheduled(attempts int, at, next time.Time, errMsg string) Outcome {
	return Outcome{
		Status:      StatusPending,
		Attempts:    attempts,
		LastAttempt: at,
		NextAttempt: &next,
		Error:       &errMsg,
	}
}

// Exhausted resolves a job as permanently failed, retaining the last error
// for operator diagnosis.
func Exhausted(attempts int, at time.Time, errMsg string) Outcome {
	return Outcome{Status: StatusFailed, Attempts: attempts, LastAttempt: at, Error: &errMsg}
}

// QueueStatus is the aggregate view returned by the admin status operation.
type QueueStatus struct {
	Pending        int    `json:"pending"`
	Processing     int    `json:"processing"`
	Completed24h   int    `json:"completed_24h"`
	Failed         int    `json:"failed"`
	RecentFailures []*Job `json:"recent_failures"`
}

// ListFilter holds query parameters for paginated job listing.
type ListFilter struct {
	Status *JobStatus
	Type   *JobType
	Page   int
	Limit  int
}
