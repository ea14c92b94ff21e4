// Package events defines the charge-session lifecycle events exchanged between
// the marketplace service (producer) and the settlement service (consumer)
// over a Redis stream. Field names double as stream entry keys.
package events

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Stream and channel names shared by both services.
const (
	SessionStream  = "charges:events"
	StationChannel = "stations:updates"
)

// Event types carried on the session stream.
const (
	TypeSessionOpened = "session_opened"
	TypeSessionClosed = "session_closed"
)

// SessionEvent describes one transition of a charge session. PrevStatus and
// Status form the (before, after) pair the settlement engine guards on.
type SessionEvent struct {
	Type       string
	SessionID  string
	DriverID   int64
	StationID  string
	PrevStatus string
	Status     string
	EndTime    time.Time
	TotalCost  float64
}

// Values encodes the event as stream entry fields.
func (e SessionEvent) Values() map[string]interface{} {
	values := map[string]interface{}{
		"type":        e.Type,
		"session_id":  e.SessionID,
		"driver_id":   strconv.FormatInt(e.DriverID, 10),
		"station_id":  e.StationID,
		"prev_status": e.PrevStatus,
		"status":      e.Status,
	}
	if !e.EndTime.IsZero() {
		values["end_time"] = e.EndTime.UTC().Format(time.RFC3339Nano)
		values["total_cost"] = strconv.FormatFloat(e.TotalCost, 'f', -1, 64)
	}
	return values
}

// FromValues decodes stream entry fields back into a SessionEvent.
func FromValues(values map[string]interface{}) (SessionEvent, error) {
	var ev SessionEvent

	get := func(key string) string {
		if v, ok := values[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	ev.Type = get("type")
	if ev.Type == "" {
		return ev, errors.New("events: missing type")
	}
	ev.SessionID = get("session_id")
	if ev.SessionID == "" {
		return ev, errors.New("events: missing session_id")
	}
	ev.StationID = get("station_id")
	ev.PrevStatus = get("prev_status")
	ev.Status = get("status")

	if raw := get("driver_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ev, fmt.Errorf("events: driver_id: %w", err)
		}
		ev.DriverID = id
	}
	if raw := get("end_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return ev, fmt.Errorf("events: end_time: %w", err)
		}
		ev.EndTime = ts
	}
	if raw := get("total_cost"); raw != "" {
		cost, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return ev, fmt.Errorf("events: total_cost: %w", err)
		}
		ev.TotalCost = cost
	}

	return ev, nil
}
