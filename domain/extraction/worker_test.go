package extraction

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

func TestShouldLogProgressBoundaries(t *testing.T) {
	// Small batches log every item.
	for processed := 1; processed <= 3; processed++ {
		assert.True(t, shouldLogProgress(processed, 3), "processed=%d of 3", processed)
	}

	// Large batches log the first item, the last, and each 10% crossing.
	var logged []int
	for processed := 1; processed <= 100; processed++ {
		if shouldLogProgress(processed, 100) {
			logged = append(logged, processed)
		}
	}
	assert.Equal(t, []int{1, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, logged)

	assert.False(t, shouldLogProgress(0, 10))
	assert.False(t, shouldLogProgress(1, 0))
}

func TestShouldLogProgressAlwaysLogsEndpoints(t *testing.T) {
	assert.True(t, shouldLogProgress(1, 1000))
	assert.True(t, shouldLogProgress(1000, 1000))
}

func TestResolveLinkingStrategyPrecedence(t *testing.T) {
	cfg := &config.Config{Extraction: config.ExtractionConfig{EntityLinkingStrategy: StrategyKeyMatch}}

	assert.Equal(t, StrategyKeyMatch, resolveLinkingStrategy(nil, nil, cfg))

	projectStrategy := StrategyVectorSimilarity
	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{LinkingStrategy: &projectStrategy},
	}
	assert.Equal(t, StrategyVectorSimilarity, resolveLinkingStrategy(nil, project, cfg))

	jobStrategy := StrategyAlwaysNew
	overrides := &JobOverrides{LinkingStrategy: &jobStrategy}
	assert.Equal(t, StrategyAlwaysNew, resolveLinkingStrategy(overrides, project, cfg))
}

func TestResolveSimilarityThresholdPrecedence(t *testing.T) {
	cfg := &config.Config{Extraction: config.ExtractionConfig{EntitySimilarityThreshold: 0.5}}

	assert.Equal(t, 0.5, resolveSimilarityThreshold(nil, nil, cfg))

	projectThreshold := 0.3
	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{SimilarityThreshold: &projectThreshold},
	}
	assert.Equal(t, 0.3, resolveSimilarityThreshold(nil, project, cfg))

	jobThreshold := 0.2
	overrides := &JobOverrides{SimilarityThreshold: &jobThreshold}
	assert.Equal(t, 0.2, resolveSimilarityThreshold(overrides, project, cfg))

	// Zero and negative values fall through.
	zero := 0.0
	assert.Equal(t, 0.3, resolveSimilarityThreshold(&JobOverrides{SimilarityThreshold: &zero}, project, cfg))
}

func TestReserveTokenBudgetRecordsWarning(t *testing.T) {
	cfg := &config.Config{Extraction: config.ExtractionConfig{
		TokensPerMinute: 100,
		RateLimitWaitMs: 10,
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &JobCoordinator{limiter: NewRateLimiter(cfg, log), cfg: cfg, log: log}
	timeline := NewTimeline()

	// First reservation drains the whole budget.
	require.NoError(t, c.reserveTokenBudget(context.Background(), timeline, 100))

	err := c.reserveTokenBudget(context.Background(), timeline, 100)
	require.Error(t, err)
	assert.Equal(t, apperror.KindRateLimited, apperror.KindOf(err))
	assert.True(t, apperror.IsRetryable(err))

	events := timeline.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "rate_limit", events[0].Step)
	assert.Equal(t, TimelineWarning, events[0].Status)
}

func TestFinalizeRunStatusSelection(t *testing.T) {
	outcomes := &EntityOutcomes{Created: 3, Merged: 1, Rejected: 2}
	status, results := finalizeRun(6, outcomes, RelationshipStats{Created: 4}, JSONArray{"Vessel"})

	assert.Equal(t, JobStatusCompleted, status)
	assert.Equal(t, 6, results.TotalItems)
	assert.Equal(t, 4, results.SuccessfulItems)
	assert.Equal(t, 2, results.RejectedItems)
	assert.Equal(t, 3, results.ObjectsCreated)
	assert.Equal(t, 4, results.RelationshipsCreated)
	assert.Equal(t, JSONArray{"Vessel"}, results.DiscoveredTypes)

	// A single review-band object escalates the whole job.
	outcomes.ReviewRequired = 1
	status, results = finalizeRun(6, outcomes, RelationshipStats{}, nil)
	assert.Equal(t, JobStatusRequiresReview, status)
	assert.Equal(t, 1, results.ReviewRequiredCount)
}

func TestProgressMessage(t *testing.T) {
	assert.Equal(t, "[PROGRESS] 3/10 entities", progressMessage(3, 10))
}

func TestEntityTypesDistinctFirstSeen(t *testing.T) {
	types := entityTypes([]llm.CandidateEntity{
		{TypeName: "Person", Name: "Ada"},
		{TypeName: "Place", Name: "London"},
		{TypeName: "Person", Name: "Charles"},
		{TypeName: "", Name: "unnamed"},
	})
	assert.Equal(t, []string{"Person", "Place"}, types)
}
