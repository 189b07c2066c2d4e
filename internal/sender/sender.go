package sender

import (
	"context"
	"encoding/json"

	"github.com/aloonj/reefnotify/internal/domain"
)

// Result carries the delivery acknowledgement from the external channel.
type Result struct {
	MessageID string
}

// Sender abstracts the external delivery channel (email, SMS, ...).
// The queue never renders content itself; it hands the job's type and raw
// payload to whichever collaborator is wired in. Mocking this interface in
// tests gives full control over delivery behaviour.
type Sender interface {
	Send(ctx context.Context, t domain.JobType, payload json.RawMessage) (*Result, error)
}

// PermanentError marks a delivery failure that no retry can fix, such as a
// rejected recipient. The backoff policy short-circuits these to failed.
type PermanentError struct {
	Reason string
}

func (e *PermanentError) Error() string {
	return "permanent delivery failure: " + e.Reason
}

func (e *PermanentError) Permanent() bool { return true }
