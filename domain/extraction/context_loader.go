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

// Context loading bounds.
const (
	defaultContextLimit      = 30
	defaultContextSimilarity = 0.5
	contextQueryChunks       = 3
	contextNeighborLimit     = 10
)

// contextStore is the slice of the graph repository the loader needs.
type contextStore interface {
	VectorSearch(ctx context.Context, params graph.VectorSearchParams) ([]*graph.GraphObject, error)
	GetNeighborSummaries(ctx context.Context, projectID, objectID uuid.UUID, maxNeighbors int) ([]graph.NeighborSummary, error)
}

// ContextLoader finds existing entities semantically related to the document
// so the model can suppress duplicates. Every failure here is non-fatal:
// extraction proceeds without context.
type ContextLoader struct {
	store contextStore
	embed embedder
	log   *slog.Logger
}

// NewContextLoader creates a loader bound to a tenant-scoped store.
func NewContextLoader(store contextStore, embed embedder, log *slog.Logger) *ContextLoader {
	return &ContextLoader{
		store: store,
		embed: embed,
		log:   log.With(logger.Scope("extraction.context")),
	}
}

// Load runs a vector search seeded by the document's first chunks and returns
// up to limit existing entities with their immediate neighborhood. Internal
// (underscore-prefixed) properties are stripped.
func (l *ContextLoader) Load(ctx context.Context, projectID uuid.UUID, chunkTexts []string, types []string, limit int, similarityThreshold float64) []llm.ExistingEntity {
	if l.embed == nil || !l.embed.Enabled() || len(chunkTexts) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = defaultContextLimit
	}
	if similarityThreshold <= 0 {
		similarityThreshold = defaultContextSimilarity
	}

	seed := len(chunkTexts)
	if seed > contextQueryChunks {
		seed = contextQueryChunks
	}
	query := strings.Join(chunkTexts[:seed], "\n\n")
	vec, err := l.embed.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		if err != nil {
			l.log.Warn("failed to embed context query", logger.Error(err))
		}
		return nil
	}

	maxDistance := similarityThreshold
	matches, err := l.store.VectorSearch(ctx, graph.VectorSearchParams{
		ProjectID:   projectID,
		Vector:      vec,
		Types:       types,
		Limit:       limit,
		MaxDistance: &maxDistance,
	})
	if err != nil {
		l.log.Warn("context vector search failed", logger.Error(err))
		return nil
	}

	entities := make([]llm.ExistingEntity, 0, len(matches))
	for _, obj := range matches {
		entity := llm.ExistingEntity{
			ID:         obj.ID.String(),
			Name:       obj.Name(),
			TypeName:   obj.Type,
			Properties: publicProperties(obj.Properties),
			Similarity: 1 - obj.Distance,
		}
		if desc, ok := obj.Properties["description"].(string); ok {
			entity.Description = desc
		}

		entity.Related = l.loadNeighbors(ctx, projectID, obj)
		entities = append(entities, entity)
	}

	l.log.Debug("loaded existing-entity context",
		slog.String("project_id", projectID.String()),
		slog.Int("entities", len(entities)),
	)
	return entities
}

// loadNeighbors summarizes up to ten one-hop edges of an object.
func (l *ContextLoader) loadNeighbors(ctx context.Context, projectID uuid.UUID, obj *graph.GraphObject) []llm.RelatedEntity {
	neighbors, err := l.store.GetNeighborSummaries(ctx, projectID, obj.ID, contextNeighborLimit)
	if err != nil || len(neighbors) == 0 {
		return nil
	}

	out := make([]llm.RelatedEntity, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, llm.RelatedEntity{
			Type:        n.Type,
			Direction:   n.Direction,
			RelatedName: n.RelatedName,
			RelatedType: n.RelatedType,
		})
	}
	return out
}

// publicProperties copies properties, dropping internal underscore-prefixed
// keys and the name/description carried at the top level.
func publicProperties(props map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range props {
		if strings.HasPrefix(k, "_") || k == "name" || k == "description" {
			continue
		}
		out[k] = v
	}
	return out
}
