package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestSummarizeLogs(t *testing.T) {
	logs := []*ObjectExtractionLog{
		{
			OperationType: LogOpDocumentPreparation,
			Status:        LogStatusCompleted,
			DurationMs:    intPtr(120),
		},
		{
			OperationType:     LogOpLLMCall,
			Status:            LogStatusCompleted,
			DurationMs:        intPtr(4800),
			TokensUsed:        intPtr(2100),
			EntityCount:       intPtr(7),
			RelationshipCount: intPtr(3),
		},
		{
			OperationType: LogOpLLMCall,
			Status:        LogStatusFailed,
			DurationMs:    intPtr(900),
		},
		{
			OperationType: LogOpObjectCreation,
			Status:        LogStatusCompleted,
			EntityCount:   intPtr(5),
		},
	}

	summary := summarizeLogs(logs)

	assert.Equal(t, 4, summary.TotalSteps)
	assert.Equal(t, 1, summary.FailedSteps)
	assert.Equal(t, 5820, summary.TotalDurationMs)
	assert.Equal(t, 2100, summary.TotalTokens)
	assert.Equal(t, 12, summary.TotalEntities)
	assert.Equal(t, 3, summary.TotalRelationships)
	assert.Equal(t, map[string]int{
		LogOpDocumentPreparation: 1,
		LogOpLLMCall:             2,
		LogOpObjectCreation:      1,
	}, summary.OperationCounts)
}

func TestSummarizeLogsEmpty(t *testing.T) {
	summary := summarizeLogs(nil)
	assert.Equal(t, 0, summary.TotalSteps)
	assert.Empty(t, summary.OperationCounts)
}
