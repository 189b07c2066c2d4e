package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound           = errors.New("job not found")
	ErrStoreUnavailable   = errors.New("job store unavailable")
	ErrInvalidType        = errors.New("invalid type: must be order_confirmation, status_update, bulletin, or low_stock")
	ErrInvalidPayload     = errors.New("payload must be a JSON document of at most 64KiB")
	ErrInvalidMaxAttempts = errors.New("max_attempts must be between 1 and 10")
	ErrInvalidBatchWindow = errors.New("batch_window_seconds must be between 0 and 86400")
	ErrNoJobIDs           = errors.New("at least one job id is required")
	ErrInvalidAge         = errors.New("older_than_days must be zero or positive")
)
