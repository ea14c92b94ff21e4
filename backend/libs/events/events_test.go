package events

import (
	"testing"
	"time"
)

func TestSessionEventRoundTrip(t *testing.T) {
	end := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	original := SessionEvent{
		Type:       TypeSessionClosed,
		SessionID:  "42-1700000000000",
		DriverID:   42,
		StationID:  "st-001",
		PrevStatus: "authorized",
		Status:     "authorized",
		EndTime:    end,
		TotalCost:  12.5,
	}

	values := original.Values()
	stringified := make(map[string]interface{}, len(values))
	for k, v := range values {
		stringified[k] = v.(string)
	}

	decoded, err := FromValues(stringified)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != original {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestSessionEventOpenedOmitsClosure(t *testing.T) {
	ev := SessionEvent{
		Type:      TypeSessionOpened,
		SessionID: "7-1700000000000",
		DriverID:  7,
		StationID: "st-002",
		Status:    "pending",
	}
	values := ev.Values()
	if _, ok := values["end_time"]; ok {
		t.Fatal("open event must not carry end_time")
	}
	if _, ok := values["total_cost"]; ok {
		t.Fatal("open event must not carry total_cost")
	}
}

func TestFromValuesRejectsMissingFields(t *testing.T) {
	if _, err := FromValues(map[string]interface{}{"session_id": "x"}); err == nil {
		t.Fatal("expected error for missing type")
	}
	if _, err := FromValues(map[string]interface{}{"type": TypeSessionOpened}); err == nil {
		t.Fatal("expected error for missing session_id")
	}
}
