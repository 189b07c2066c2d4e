package batch_test

import (
	"encoding/json"
	"testing"

	"github.com/aloonj/reefnotify/internal/batch"
	"github.com/aloonj/reefnotify/internal/domain"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name    string
		jobType domain.JobType
		payload string
		want    string
	}{
		{"status update keys on order id", domain.TypeStatusUpdate,
			`{"order_id":"ord-42","status":"shipped"}`, "status_update:ord-42"},
		{"order confirmation keys on order id", domain.TypeOrderConfirmation,
			`{"order_id":"ord-42"}`, "order_confirmation:ord-42"},
		{"low stock keys on coral id", domain.TypeLowStock,
			`{"coral_id":"acro-7","quantity":1}`, "low_stock:acro-7"},
		{"bulletin keys on bulletin id", domain.TypeBulletin,
			`{"bulletin_id":"b-1","subject":"news"}`, "bulletin:b-1"},
		{"numeric target id", domain.TypeLowStock,
			`{"coral_id":17}`, "low_stock:17"},
		{"missing target field", domain.TypeStatusUpdate,
			`{"status":"shipped"}`, ""},
		{"empty target", domain.TypeStatusUpdate,
			`{"order_id":""}`, ""},
		{"non-object payload", domain.TypeLowStock,
			`[1,2,3]`, ""},
		{"unknown type", domain.JobType("carrier_pigeon"),
			`{"order_id":"ord-42"}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := batch.Key(tc.jobType, json.RawMessage(tc.payload))
			if got != tc.want {
				t.Fatalf("expected key %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMerge_ReplaceWithLatest(t *testing.T) {
	existing := json.RawMessage(`{"order_id":"ord-1","status":"paid"}`)
	incoming := json.RawMessage(`{"order_id":"ord-1","status":"shipped"}`)

	merged, err := batch.Merge(domain.TypeStatusUpdate, existing, incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(merged) != string(incoming) {
		t.Fatalf("expected latest payload to win, got %s", merged)
	}
}

func TestMerge_AccumulateWrapsFirstPair(t *testing.T) {
	existing := json.RawMessage(`{"coral_id":"acro-7","quantity":2}`)
	incoming := json.RawMessage(`{"coral_id":"acro-7","quantity":1}`)

	merged, err := batch.Merge(domain.TypeLowStock, existing, incoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		CoralID string           `json:"coral_id"`
		Items   []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(merged, &got); err != nil {
		t.Fatalf("merged payload is not valid JSON: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	// Target id must stay at the top level so later enqueues still batch.
	if got.CoralID != "acro-7" {
		t.Fatalf("expected coral_id to survive the wrap, got %q", got.CoralID)
	}
}

func TestMerge_AccumulateAppendsToExistingItems(t *testing.T) {
	existing := json.RawMessage(`{"coral_id":"acro-7","quantity":3}`)

	merged, err := batch.Merge(domain.TypeLowStock, existing, json.RawMessage(`{"quantity":2}`))
	if err != nil {
		t.Fatal(err)
	}
	merged, err = batch.Merge(domain.TypeLowStock, merged, json.RawMessage(`{"quantity":1}`))
	if err != nil {
		t.Fatal(err)
	}

	var got struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(merged, &got); err != nil {
		t.Fatalf("merged payload is not valid JSON: %v", err)
	}
	if len(got.Items) != 3 {
		t.Fatalf("expected all 3 requests preserved, got %d items", len(got.Items))
	}
}

func TestMerge_AccumulatedKeyStable(t *testing.T) {
	existing := json.RawMessage(`{"bulletin_id":"b-9","subject":"one"}`)

	merged, err := batch.Merge(domain.TypeBulletin, existing, json.RawMessage(`{"subject":"two"}`))
	if err != nil {
		t.Fatal(err)
	}

	if got := batch.Key(domain.TypeBulletin, merged); got != "bulletin:b-9" {
		t.Fatalf("expected merged payload to keep key bulletin:b-9, got %q", got)
	}
}
