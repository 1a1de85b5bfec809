package notifications

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionFailedNotification(t *testing.T) {
	n := extractionFailedNotification("proj-1", "user-1", "job-1",
		"no token capacity for 5000 estimated tokens within 30s", 1, true)

	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "Extraction failed", n.Title)
	assert.Equal(t, SeverityError, n.Severity)
	require.NotNil(t, n.Type)
	assert.Equal(t, TypeExtractionFailed, *n.Type)
	assert.Contains(t, n.Message, "no token capacity")
	assert.Contains(t, n.Message, "will be retried")

	var details map[string]any
	require.NoError(t, json.Unmarshal(n.Details, &details))
	assert.Equal(t, float64(1), details["retry_count"])
	assert.Equal(t, true, details["will_retry"])
	assert.Contains(t, details["error"], "no token capacity")
}

func TestExtractionFailedNotificationTerminal(t *testing.T) {
	n := extractionFailedNotification("proj-1", "user-1", "job-1", "project has no object type schemas", 3, false)

	assert.NotContains(t, n.Message, "retried")

	var details map[string]any
	require.NoError(t, json.Unmarshal(n.Details, &details))
	assert.Equal(t, float64(3), details["retry_count"])
	assert.Equal(t, false, details["will_retry"])
}
