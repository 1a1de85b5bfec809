package extraction

import (
	"time"
)

// Timeline event statuses.
const (
	TimelineSuccess = "success"
	TimelineInfo    = "info"
	TimelineWarning = "warning"
	TimelineError   = "error"
)

// TimelineEvent is one structured record in a job's debug trace.
type TimelineEvent struct {
	Step        string         `json:"step"`
	Status      string         `json:"status"`
	TimestampMs int64          `json:"timestampMs"`
	DurationMs  *int64         `json:"durationMs,omitempty"`
	Message     string         `json:"message,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Timeline accumulates the coordinator's per-job debug trace. Events are
// appended in order; open steps record their duration when ended.
type Timeline struct {
	events []TimelineEvent
	now    func() time.Time
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{now: time.Now}
}

// Append records an instantaneous event.
func (t *Timeline) Append(step, status, message string, metadata map[string]any) {
	t.events = append(t.events, TimelineEvent{
		Step:        step,
		Status:      status,
		TimestampMs: t.now().UnixMilli(),
		Message:     message,
		Metadata:    metadata,
	})
}

// Begin opens a step and returns a function that closes it, recording the
// elapsed duration. The returned closer must be called exactly once.
func (t *Timeline) Begin(step string) func(status, message string, metadata map[string]any) {
	start := t.now()
	return func(status, message string, metadata map[string]any) {
		duration := t.now().Sub(start).Milliseconds()
		t.events = append(t.events, TimelineEvent{
			Step:        step,
			Status:      status,
			TimestampMs: start.UnixMilli(),
			DurationMs:  &duration,
			Message:     message,
			Metadata:    metadata,
		})
	}
}

// Events returns the accumulated events in order.
func (t *Timeline) Events() []TimelineEvent {
	return t.events
}

// AsJSON converts the timeline into the shape stored in debug_info.
func (t *Timeline) AsJSON() []any {
	out := make([]any, 0, len(t.events))
	for _, e := range t.events {
		entry := map[string]any{
			"step":        e.Step,
			"status":      e.Status,
			"timestampMs": e.TimestampMs,
		}
		if e.DurationMs != nil {
			entry["durationMs"] = *e.DurationMs
		}
		if e.Message != "" {
			entry["message"] = e.Message
		}
		if len(e.Metadata) > 0 {
			entry["metadata"] = e.Metadata
		}
		out = append(out, entry)
	}
	return out
}
