package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

func TestApplyQualityThresholds(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       Band
	}{
		{"below min rejects", 0.30, BandReject},
		{"just under min rejects", 0.399, BandReject},
		{"at min is review, not reject", 0.40, BandReview},
		{"mid band is review", 0.65, BandReview},
		{"just under auto is review", 0.799, BandReview},
		{"at auto is auto", 0.80, BandAuto},
		{"above auto is auto", 0.92, BandAuto},
		{"perfect confidence is auto", 1.0, BandAuto},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyQualityThresholds(tt.confidence, 0.4, 0.5, 0.8))
		})
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestEffectiveThresholdsServerDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.Extraction.ConfidenceThresholdMin = 0.4
	cfg.Extraction.ConfidenceThresholdReview = 0.5
	cfg.Extraction.ConfidenceThresholdAuto = 0.8

	th := EffectiveThresholds(JobOverrides{}, nil, cfg)
	assert.Equal(t, 0.4, th.Min)
	assert.Equal(t, 0.8, th.Auto)
	assert.Equal(t, "server", th.Sources["min"])
	assert.Equal(t, "server", th.Sources["auto"])
}

func TestEffectiveThresholdsPrecedence(t *testing.T) {
	cfg := &config.Config{}
	cfg.Extraction.ConfidenceThresholdMin = 0.4
	cfg.Extraction.ConfidenceThresholdReview = 0.5
	cfg.Extraction.ConfidenceThresholdAuto = 0.8

	project := &projects.Project{
		ExtractionConfig: &projects.ExtractionConfig{
			ConfidenceThresholds: &projects.ConfidenceThresholds{
				Min:  floatPtr(0.3),
				Auto: floatPtr(0.9),
			},
		},
	}
	overrides := JobOverrides{ThresholdAuto: floatPtr(0.7)}

	th := EffectiveThresholds(overrides, project, cfg)
	assert.Equal(t, 0.3, th.Min)
	assert.Equal(t, "project", th.Sources["min"])
	// Review untouched by project or job falls back to server.
	assert.Equal(t, 0.5, th.Review)
	assert.Equal(t, "server", th.Sources["review"])
	// Job override beats the project value.
	assert.Equal(t, 0.7, th.Auto)
	assert.Equal(t, "job", th.Sources["auto"])
}

func TestScoreEntityPreverifiedUsesConfidenceVerbatim(t *testing.T) {
	entity := llm.CandidateEntity{Name: "Ada Lovelace", Confidence: floatPtr(0.92)}
	assert.Equal(t, 0.92, ScoreEntity(entity, nil, PipelineModePreverified))
}

func TestScoreEntityHeuristicWithoutLLMConfidence(t *testing.T) {
	entity := llm.CandidateEntity{
		Name:        "Ada Lovelace",
		Description: "English mathematician known for work on the analytical engine.",
		Properties:  map[string]any{"role": "mathematician", "era": "19th century", "country": "England"},
	}
	// Full name, full description, three properties without a schema.
	assert.InDelta(t, 1.0, ScoreEntity(entity, nil, PipelineModeSinglePass), 0.001)

	empty := llm.CandidateEntity{Name: "Ada"}
	assert.InDelta(t, 0.4, ScoreEntity(empty, nil, PipelineModeSinglePass), 0.001)
}

func TestScoreEntityBlendsLLMAndHeuristic(t *testing.T) {
	entity := llm.CandidateEntity{
		Name:       "Ada",
		Confidence: floatPtr(1.0),
	}
	// 0.6*1.0 + 0.4*0.4 = 0.76
	assert.InDelta(t, 0.76, ScoreEntity(entity, nil, PipelineModeSinglePass), 0.001)
}

func TestScoreEntitySchemaPropertyCoverage(t *testing.T) {
	schema := &llm.ObjectSchema{
		Name: "Person",
		Properties: map[string]llm.PropertyDef{
			"role":    {Type: "string"},
			"country": {Type: "string"},
		},
	}
	entity := llm.CandidateEntity{
		Name:        "Ada Lovelace",
		Description: "English mathematician known for work on the analytical engine.",
		Properties:  map[string]any{"role": "mathematician"},
	}
	// name 0.4 + description 0.3 + half property coverage 0.15 = 0.85
	assert.InDelta(t, 0.85, ScoreEntity(entity, schema, PipelineModeSinglePass), 0.001)
}

func TestApplyVerificationAdjustment(t *testing.T) {
	verified := &VerificationResult{EntityVerified: true, OverallConfidence: 0.9}
	// +min(0.10, 0.9*0.10) = +0.09
	assert.InDelta(t, 0.79, ApplyVerificationAdjustment(0.70, verified), 0.001)

	strongVerified := &VerificationResult{EntityVerified: true, OverallConfidence: 1.0}
	assert.InDelta(t, 0.80, ApplyVerificationAdjustment(0.70, strongVerified), 0.001)

	// -min(0.30, (0.30-0.10)*0.50) = -0.10
	weak := &VerificationResult{EntityVerified: false, OverallConfidence: 0.10}
	assert.InDelta(t, 0.60, ApplyVerificationAdjustment(0.70, weak), 0.001)

	// Uncertain but not weak leaves the confidence unchanged.
	uncertain := &VerificationResult{EntityVerified: false, OverallConfidence: 0.5}
	assert.InDelta(t, 0.70, ApplyVerificationAdjustment(0.70, uncertain), 0.001)

	// Nil result is a no-op.
	assert.InDelta(t, 0.70, ApplyVerificationAdjustment(0.70, nil), 0.001)

	// Result is clamped.
	assert.Equal(t, 1.0, ApplyVerificationAdjustment(0.95, strongVerified))
}
