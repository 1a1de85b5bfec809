package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineAppend(t *testing.T) {
	tl := NewTimeline()
	tl.Append("job_started", TimelineInfo, "", nil)
	tl.Append("llm_extraction", TimelineSuccess, "2 entities", map[string]any{"entities": 2})

	events := tl.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "job_started", events[0].Step)
	assert.Equal(t, TimelineInfo, events[0].Status)
	assert.Nil(t, events[0].DurationMs)
	assert.Equal(t, "2 entities", events[1].Message)
	assert.Equal(t, 2, events[1].Metadata["entities"])
}

func TestTimelineBeginRecordsDuration(t *testing.T) {
	current := time.UnixMilli(1000000)
	tl := NewTimeline()
	tl.now = func() time.Time { return current }

	end := tl.Begin("document_preparation")
	current = current.Add(250 * time.Millisecond)
	end(TimelineSuccess, "prepared", nil)

	events := tl.Events()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].DurationMs)
	assert.Equal(t, int64(250), *events[0].DurationMs)
	assert.Equal(t, int64(1000000), events[0].TimestampMs)
}

func TestTimelineAsJSONOmitsEmptyFields(t *testing.T) {
	tl := NewTimeline()
	tl.Append("job_started", TimelineInfo, "", nil)

	entries := tl.AsJSON()
	require.Len(t, entries, 1)
	entry, ok := entries[0].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, entry, "message")
	assert.NotContains(t, entry, "metadata")
	assert.NotContains(t, entry, "durationMs")
	assert.Equal(t, "job_started", entry["step"])
}
