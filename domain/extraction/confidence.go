package extraction

import (
	"strings"

	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

// Quality bands. The band decides the persistence outcome: reject drops the
// candidate, review writes a draft object flagged for human review, auto
// writes an accepted object.
type Band string

const (
	BandReject Band = "reject"
	BandReview Band = "review"
	BandAuto   Band = "auto"
)

// ApplyQualityThresholds maps a confidence to its band. Pure function:
// confidence == min lands in review, confidence == auto lands in auto.
func ApplyQualityThresholds(confidence, min, review, auto float64) Band {
	switch {
	case confidence < min:
		return BandReject
	case confidence >= auto:
		return BandAuto
	default:
		return BandReview
	}
}

// Thresholds are the effective confidence bands for a job, with the origin of
// each value recorded for the debug audit.
type Thresholds struct {
	Min    float64
	Review float64
	Auto   float64

	// Sources name where each value came from: job, project or server.
	Sources map[string]string
}

// EffectiveThresholds resolves each band value from the job overrides, then
// the project config, then the server defaults.
func EffectiveThresholds(overrides JobOverrides, project *projects.Project, cfg *config.Config) Thresholds {
	t := Thresholds{
		Min:     cfg.Extraction.ConfidenceThresholdMin,
		Review:  cfg.Extraction.ConfidenceThresholdReview,
		Auto:    cfg.Extraction.ConfidenceThresholdAuto,
		Sources: map[string]string{"min": "server", "review": "server", "auto": "server"},
	}

	var projectThresholds *projects.ConfidenceThresholds
	if project != nil && project.ExtractionConfig != nil {
		projectThresholds = project.ExtractionConfig.ConfidenceThresholds
	}
	if projectThresholds != nil {
		if projectThresholds.Min != nil {
			t.Min = *projectThresholds.Min
			t.Sources["min"] = "project"
		}
		if projectThresholds.Review != nil {
			t.Review = *projectThresholds.Review
			t.Sources["review"] = "project"
		}
		if projectThresholds.Auto != nil {
			t.Auto = *projectThresholds.Auto
			t.Sources["auto"] = "project"
		}
	}

	if overrides.ThresholdMin != nil {
		t.Min = *overrides.ThresholdMin
		t.Sources["min"] = "job"
	}
	if overrides.ThresholdReview != nil {
		t.Review = *overrides.ThresholdReview
		t.Sources["review"] = "job"
	}
	if overrides.ThresholdAuto != nil {
		t.Auto = *overrides.ThresholdAuto
		t.Sources["auto"] = "job"
	}

	return t
}

// ScoreEntity combines the model's reported confidence with a heuristic
// completeness score. Preverified-pipeline candidates arrive with a
// confidence that already reflects verification and is used verbatim.
func ScoreEntity(entity llm.CandidateEntity, schema *llm.ObjectSchema, pipelineMode string) float64 {
	if pipelineMode == PipelineModePreverified && entity.Confidence != nil {
		return clamp01(*entity.Confidence)
	}

	heuristic := heuristicScore(entity, schema)
	if entity.Confidence != nil {
		// Weight the model's own signal above the shape heuristic.
		return clamp01(0.6*clamp01(*entity.Confidence) + 0.4*heuristic)
	}
	return heuristic
}

// heuristicScore rates candidate completeness: 40% name, 30% description,
// 30% property coverage.
func heuristicScore(entity llm.CandidateEntity, schema *llm.ObjectSchema) float64 {
	var nameScore float64
	if strings.TrimSpace(entity.Name) != "" {
		nameScore = 1.0
	}

	var descScore float64
	switch descLen := len(strings.TrimSpace(entity.Description)); {
	case descLen == 0:
		descScore = 0
	case descLen < 40:
		descScore = 0.5
	default:
		descScore = 1.0
	}

	propScore := propertyCoverage(entity.Properties, schema)

	return 0.4*nameScore + 0.3*descScore + 0.3*propScore
}

// propertyCoverage is the fraction of schema-declared properties the
// candidate filled in. Without a schema, three populated properties count as
// full coverage.
func propertyCoverage(props map[string]any, schema *llm.ObjectSchema) float64 {
	populated := 0
	for key, val := range props {
		if strings.HasPrefix(key, "_") || val == nil {
			continue
		}
		if s, ok := val.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		populated++
	}

	if schema == nil || len(schema.Properties) == 0 {
		if populated >= 3 {
			return 1.0
		}
		return float64(populated) / 3.0
	}

	declared := 0
	for key := range schema.Properties {
		if _, ok := props[key]; ok {
			declared++
		}
	}
	return float64(declared) / float64(len(schema.Properties))
}

// ApplyVerificationAdjustment shifts a confidence by the verifier's verdict:
// verified entities gain up to 0.10, low verifier confidence (< 0.30) costs
// up to 0.30. The result is clamped to [0, 1].
func ApplyVerificationAdjustment(confidence float64, v *VerificationResult) float64 {
	if v == nil {
		return clamp01(confidence)
	}

	switch {
	case v.EntityVerified:
		bonus := v.OverallConfidence * 0.10
		if bonus > 0.10 {
			bonus = 0.10
		}
		confidence += bonus
	case v.OverallConfidence < 0.30:
		penalty := (0.30 - v.OverallConfidence) * 0.50
		if penalty > 0.30 {
			penalty = 0.30
		}
		confidence -= penalty
	}
	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
