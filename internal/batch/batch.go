// Package batch implements the anti-spam batching policy: near-simultaneous
// notifications about the same target collapse into a single job while that
// job is still pending inside its batch window.
package batch

import (
	"encoding/json"
	"fmt"

	"github.com/aloonj/reefnotify/internal/domain"
)

// targetField names the payload field that identifies the batching target
// for each job type. Jobs whose payload lacks the field are never batched.
var targetField = map[domain.JobType]string{
	domain.TypeOrderConfirmation: "order_id",
	domain.TypeStatusUpdate:      "order_id",
	domain.TypeBulletin:          "bulletin_id",
	domain.TypeLowStock:          "coral_id",
}

// Key derives the correlation key for a job from its type and payload.
// Returns "" when the payload carries no recognizable target identifier,
// which means the job gets its own row and is never merged into.
func Key(t domain.JobType, payload json.RawMessage) string {
	field, ok := targetField[t]
	if !ok {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}

	raw, ok := fields[field]
	if !ok {
		return ""
	}

	var target string
	if err := json.Unmarshal(raw, &target); err != nil {
		// Numeric ids are valid targets too.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return ""
		}
		target = n.String()
	}
	if target == "" {
		return ""
	}

	return fmt.Sprintf("%s:%s", t, target)
}

// Merge combines an incoming payload into the payload of an existing pending
// job with the same correlation key.
//
// Policy per type:
//   - order_confirmation, status_update: replace-with-latest, the last
//     state change before dispatch wins.
//   - bulletin, low_stock: accumulate, every request is preserved under an
//     "items" array so one message can report all of them.
func Merge(t domain.JobType, existing, incoming json.RawMessage) (json.RawMessage, error) {
	switch t {
	case domain.TypeBulletin, domain.TypeLowStock:
		return accumulate(t, existing, incoming)
	default:
		return incoming, nil
	}
}

// accumulate folds the incoming payload into an "items" array. The first
// merge wraps the original payload as the first entry; the target id field
// stays at the top level so later enqueues still resolve to the same key.
func accumulate(t domain.JobType, existing, incoming json.RawMessage) (json.RawMessage, error) {
	var cur map[string]any
	if err := json.Unmarshal(existing, &cur); err != nil {
		return nil, fmt.Errorf("decode existing payload: %w", err)
	}
	var inc map[string]any
	if err := json.Unmarshal(incoming, &inc); err != nil {
		return nil, fmt.Errorf("decode incoming payload: %w", err)
	}

	items, ok := cur["items"].([]any)
	if !ok {
		first := make(map[string]any, len(cur))
		for k, v := range cur {
			first[k] = v
		}
		merged := map[string]any{"items": []any{first, inc}}
		if field := targetField[t]; field != "" {
			if v, ok := cur[field]; ok {
				merged[field] = v
			}
		}
		return json.Marshal(merged)
	}

	cur["items"] = append(items, inc)
	return json.Marshal(cur)
}
