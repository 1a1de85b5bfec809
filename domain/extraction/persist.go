package extraction

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// entityStore is the slice of the graph repository entity persistence needs.
type entityStore interface {
	CreateObject(ctx context.Context, obj *graph.GraphObject) error
	MergeObjectProperties(ctx context.Context, projectID, objectID uuid.UUID, incoming map[string]any) (*graph.GraphObject, error)
	SetObjectEmbedding(ctx context.Context, objectID uuid.UUID, embedding []float32) error
}

// EntityOutcomes aggregates the persistence stage results for one job.
type EntityOutcomes struct {
	Created        int
	Merged         int
	Skipped        int
	Rejected       int
	ReviewRequired int
	Failed         int

	// CreatedIDs are the ids of newly created objects, for chunk provenance.
	CreatedIDs []uuid.UUID
	// CreatedObjects is the summary recorded on the job row.
	CreatedObjects JSONArray
	// PerEntity records one audit entry per candidate in input order.
	PerEntity []map[string]any
}

// Successful is the number of candidates that produced or enriched an object.
func (o *EntityOutcomes) Successful() int {
	return o.Created + o.Merged
}

// Processed is the number of candidates handled, whatever the outcome.
func (o *EntityOutcomes) Processed() int {
	return o.Created + o.Merged + o.Skipped + o.Rejected + o.Failed
}

// EntityPersister walks the scored candidates of one job and writes them to
// the graph: reject drops, review creates a draft flagged for review, auto
// creates an accepted object or merges into an existing one.
type EntityPersister struct {
	store      entityStore
	linker     *EntityLinker
	names      *NameMap
	embed      embedder
	thresholds Thresholds
	mode       string

	projectID      uuid.UUID
	organizationID uuid.UUID
	jobID          string
	sourceID       *string

	log *slog.Logger
}

// EntityPersisterParams configure a persister for one job run.
type EntityPersisterParams struct {
	Store          entityStore
	Linker         *EntityLinker
	Names          *NameMap
	Embed          embedder
	Thresholds     Thresholds
	PipelineMode   string
	ProjectID      uuid.UUID
	OrganizationID uuid.UUID
	JobID          string
	SourceID       *string
}

// NewEntityPersister creates a persister for one job run.
func NewEntityPersister(p EntityPersisterParams, log *slog.Logger) *EntityPersister {
	return &EntityPersister{
		store:          p.Store,
		linker:         p.Linker,
		names:          p.Names,
		embed:          p.Embed,
		thresholds:     p.Thresholds,
		mode:           p.PipelineMode,
		projectID:      p.ProjectID,
		organizationID: p.OrganizationID,
		jobID:          p.JobID,
		sourceID:       p.SourceID,
		log:            log.With(logger.Scope("extraction.persist")),
	}
}

// Persist scores, gates, links and writes the candidates in order. Progress
// is reported after every candidate; per-entity failures are counted, never
// fatal. Verification results may be nil.
func (p *EntityPersister) Persist(
	ctx context.Context,
	candidates []llm.CandidateEntity,
	schemas map[string]llm.ObjectSchema,
	verifications VerificationMap,
	progress func(processed, total int),
) *EntityOutcomes {
	out := &EntityOutcomes{}
	total := len(candidates)

	for i, candidate := range candidates {
		p.persistOne(ctx, candidate, schemas, verifications, out)
		if progress != nil {
			progress(i+1, total)
		}
	}
	return out
}

func (p *EntityPersister) persistOne(
	ctx context.Context,
	candidate llm.CandidateEntity,
	schemas map[string]llm.ObjectSchema,
	verifications VerificationMap,
	out *EntityOutcomes,
) {
	// Types outside the effective schemas are never written; they surface via
	// discovered_types only.
	var schema *llm.ObjectSchema
	if s, ok := schemas[candidate.TypeName]; ok {
		schema = &s
	} else if len(schemas) > 0 {
		out.Rejected++
		out.PerEntity = append(out.PerEntity, map[string]any{
			"name":   candidate.Name,
			"type":   candidate.TypeName,
			"action": "rejected",
			"reason": "unknown_type",
		})
		return
	}

	confidence := ScoreEntity(candidate, schema, p.mode)
	if p.mode != PipelineModePreverified {
		confidence = ApplyVerificationAdjustment(confidence, verifications.Lookup(candidate.Name))
	}

	record := map[string]any{
		"name":       candidate.Name,
		"type":       candidate.TypeName,
		"confidence": confidence,
	}

	band := ApplyQualityThresholds(confidence, p.thresholds.Min, p.thresholds.Review, p.thresholds.Auto)
	record["band"] = string(band)

	if band == BandReject {
		out.Rejected++
		record["action"] = "rejected"
		out.PerEntity = append(out.PerEntity, record)
		return
	}

	decision := p.linker.Decide(ctx, p.projectID, candidate)
	switch decision.Action {
	case ActionSkip:
		out.Skipped++
		record["action"] = "skipped"
		record["reason"] = decision.Reason
		record["existing_id"] = decision.ExistingID.String()
		p.names.Register(candidate.Name, decision.ExistingID)

	case ActionMerge:
		if err := p.merge(ctx, candidate, confidence, decision.ExistingID); err != nil {
			out.Failed++
			record["action"] = "failed"
			record["error"] = err.Error()
			p.log.Warn("failed to merge entity",
				slog.String("name", candidate.Name),
				logger.Error(err),
			)
			break
		}
		out.Merged++
		record["action"] = "merged"
		record["reason"] = decision.Reason
		record["existing_id"] = decision.ExistingID.String()
		p.names.Register(candidate.Name, decision.ExistingID)

	default:
		obj, err := p.create(ctx, candidate, confidence, band)
		if err != nil {
			out.Failed++
			record["action"] = "failed"
			record["error"] = err.Error()
			p.log.Warn("failed to create entity",
				slog.String("name", candidate.Name),
				logger.Error(err),
			)
			break
		}
		out.Created++
		if band == BandReview {
			out.ReviewRequired++
		}
		record["action"] = "created"
		record["object_id"] = obj.ID.String()
		out.CreatedIDs = append(out.CreatedIDs, obj.ID)
		out.CreatedObjects = append(out.CreatedObjects, map[string]any{
			"id":         obj.ID.String(),
			"name":       candidate.Name,
			"type":       candidate.TypeName,
			"status":     obj.Status,
			"confidence": confidence,
		})
		p.names.Register(candidate.Name, obj.ID)
	}

	out.PerEntity = append(out.PerEntity, record)
}

// merge folds the candidate's properties into an existing object. The merge
// policy keeps established values; the incoming job id lands in the merged
// job-id audit list.
func (p *EntityPersister) merge(ctx context.Context, candidate llm.CandidateEntity, confidence float64, existingID uuid.UUID) error {
	incoming := p.entityProperties(candidate, confidence)
	_, err := p.store.MergeObjectProperties(ctx, p.projectID, existingID, incoming)
	return err
}

// create writes a new graph object for the candidate. Review-band objects are
// drafts labelled for review; auto-band objects are accepted.
func (p *EntityPersister) create(ctx context.Context, candidate llm.CandidateEntity, confidence float64, band Band) (*graph.GraphObject, error) {
	status := graph.StatusAccepted
	labels := []string{}
	if band == BandReview {
		status = graph.StatusDraft
		labels = []string{graph.LabelRequiresReview}
	}

	key := normalizeName(candidate.Name)
	obj := &graph.GraphObject{
		OrganizationID: p.organizationID,
		ProjectID:      p.projectID,
		Type:           candidate.TypeName,
		Key:            &key,
		Status:         status,
		Properties:     p.entityProperties(candidate, confidence),
		Labels:         labels,
	}
	if err := p.store.CreateObject(ctx, obj); err != nil {
		return nil, err
	}

	p.embedObject(ctx, obj, candidate)
	return obj, nil
}

// embedObject stores an embedding for a fresh object so vector linking and
// context loading can find it. Non-fatal.
func (p *EntityPersister) embedObject(ctx context.Context, obj *graph.GraphObject, candidate llm.CandidateEntity) {
	if p.embed == nil || !p.embed.Enabled() {
		return
	}

	text := candidate.Name
	if candidate.Description != "" {
		text += ": " + candidate.Description
	}
	vec, err := p.embed.EmbedQuery(ctx, text)
	if err != nil || len(vec) == 0 {
		if err != nil {
			p.log.Warn("failed to embed object", slog.String("name", candidate.Name), logger.Error(err))
		}
		return
	}
	if err := p.store.SetObjectEmbedding(ctx, obj.ID, vec); err != nil {
		p.log.Warn("failed to store object embedding", slog.String("name", candidate.Name), logger.Error(err))
	}
}

// entityProperties assembles the stored property map: candidate properties
// plus name, description and the extraction provenance keys.
func (p *EntityPersister) entityProperties(candidate llm.CandidateEntity, confidence float64) map[string]any {
	props := make(map[string]any, len(candidate.Properties)+6)
	for k, v := range candidate.Properties {
		if strings.HasPrefix(k, "_") {
			continue
		}
		props[k] = v
	}

	props["name"] = candidate.Name
	if candidate.Description != "" {
		props["description"] = candidate.Description
	}

	props[graph.PropExtractionConfidence] = confidence
	if candidate.Confidence != nil {
		props[graph.PropExtractionLLMConfidence] = *candidate.Confidence
	}
	props[graph.PropExtractionSource] = "llm"
	props[graph.PropExtractionJobID] = p.jobID
	if p.sourceID != nil && *p.sourceID != "" {
		props[graph.PropExtractionSourceID] = *p.sourceID
	}
	return props
}
