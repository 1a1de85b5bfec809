package extraction

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Relationship skip reasons recorded in the timeline metadata.
const (
	SkipRejectedVerification = "rejected_verification"
	SkipSourceNotResolved    = "source_not_resolved"
	SkipTargetNotResolved    = "target_not_resolved"
	SkipTypeMismatch         = "type_mismatch"
	SkipDuplicate            = "duplicate"
)

// relationshipStore is the slice of the graph repository the resolver needs.
type relationshipStore interface {
	GetObject(ctx context.Context, projectID, objectID uuid.UUID) (*graph.GraphObject, error)
	FindByName(ctx context.Context, projectID uuid.UUID, name string) (*graph.GraphObject, error)
	CreateRelationship(ctx context.Context, rel *graph.GraphRelationship) error
}

// RelationshipResolver maps candidate relationship endpoints to canonical
// object ids using, in order: a supplied id, the batch-local name map, and a
// case-insensitive database name lookup.
type RelationshipResolver struct {
	store     relationshipStore
	names     *NameMap
	projectID uuid.UUID
}

// NewRelationshipResolver creates a resolver for one job run.
func NewRelationshipResolver(store relationshipStore, names *NameMap, projectID uuid.UUID) *RelationshipResolver {
	return &RelationshipResolver{store: store, names: names, projectID: projectID}
}

// ResolveEndpoint returns the canonical object id for an endpoint, or false
// when it cannot be resolved. Database hits are cached into the batch map.
func (r *RelationshipResolver) ResolveEndpoint(ctx context.Context, ep llm.RelationshipEndpoint) (uuid.UUID, bool) {
	if ep.ID != "" {
		id, err := uuid.Parse(ep.ID)
		if err != nil {
			return uuid.Nil, false
		}
		obj, err := r.store.GetObject(ctx, r.projectID, id)
		if err != nil || obj == nil {
			return uuid.Nil, false
		}
		return obj.ID, true
	}

	if ep.Name == "" {
		return uuid.Nil, false
	}
	if id, ok := r.names.Lookup(ep.Name); ok {
		return id, true
	}

	obj, err := r.store.FindByName(ctx, r.projectID, ep.Name)
	if err != nil || obj == nil {
		return uuid.Nil, false
	}
	r.names.Register(ep.Name, obj.ID)
	return obj.ID, true
}

// RelationshipStats aggregates the relationship stage outcome.
type RelationshipStats struct {
	Created int
	Skipped int
	Failed  int
	// Details records one entry per non-created relationship with its reason.
	Details []map[string]any
}

// RelationshipWriter resolves and persists candidate relationships.
type RelationshipWriter struct {
	resolver *RelationshipResolver
	store    relationshipStore
	schemas  map[string]llm.RelationshipSchema
	log      *slog.Logger
}

// NewRelationshipWriter creates a writer for one job run. Schemas may be
// empty, in which case any relationship type is admitted.
func NewRelationshipWriter(store relationshipStore, names *NameMap, projectID uuid.UUID, schemas map[string]llm.RelationshipSchema, log *slog.Logger) *RelationshipWriter {
	return &RelationshipWriter{
		resolver: NewRelationshipResolver(store, names, projectID),
		store:    store,
		schemas:  schemas,
		log:      log.With(logger.Scope("extraction.relationships")),
	}
}

// Persist walks the candidates in order, resolving endpoints against the
// batch map and the database. Verification-rejected candidates, unresolved
// endpoints, unknown types and duplicates are skipped; write errors are
// counted as failed. Per-candidate failures never abort the stage.
//
// Relationship type validation checks the type exists in the schemas when any
// are defined; endpoint-type validation is intentionally not enforced, since
// packs routinely under-declare valid endpoint combinations.
func (w *RelationshipWriter) Persist(ctx context.Context, projectID uuid.UUID, jobID string, candidates []llm.CandidateRelationship) RelationshipStats {
	var stats RelationshipStats

	skip := func(c llm.CandidateRelationship, reason string) {
		stats.Skipped++
		stats.Details = append(stats.Details, map[string]any{
			"type":   c.RelationshipType,
			"source": c.Source.Name,
			"target": c.Target.Name,
			"reason": reason,
		})
	}

	for _, c := range candidates {
		if c.VerificationStatus == "rejected" {
			skip(c, SkipRejectedVerification)
			continue
		}
		if len(w.schemas) > 0 {
			if _, ok := w.schemas[c.RelationshipType]; !ok {
				skip(c, SkipTypeMismatch)
				continue
			}
		}

		srcID, ok := w.resolver.ResolveEndpoint(ctx, c.Source)
		if !ok {
			skip(c, SkipSourceNotResolved)
			continue
		}
		dstID, ok := w.resolver.ResolveEndpoint(ctx, c.Target)
		if !ok {
			skip(c, SkipTargetNotResolved)
			continue
		}

		properties := map[string]any{
			graph.PropExtractionJobID:  jobID,
			graph.PropExtractionSource: "llm",
		}
		if c.Description != "" {
			properties["description"] = c.Description
		}
		if c.Confidence != nil {
			properties[graph.PropExtractionConfidence] = *c.Confidence
		}

		err := w.store.CreateRelationship(ctx, &graph.GraphRelationship{
			ProjectID:  projectID,
			Type:       c.RelationshipType,
			SrcID:      srcID,
			DstID:      dstID,
			Properties: properties,
		})
		switch {
		case err == nil:
			stats.Created++
		case errors.Is(err, graph.ErrDuplicateRelationship):
			skip(c, SkipDuplicate)
		default:
			stats.Failed++
			stats.Details = append(stats.Details, map[string]any{
				"type":   c.RelationshipType,
				"source": c.Source.Name,
				"target": c.Target.Name,
				"error":  err.Error(),
			})
			w.log.Warn("failed to create relationship",
				slog.String("type", c.RelationshipType),
				logger.Error(err),
			)
		}
	}

	return stats
}
