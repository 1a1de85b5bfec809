package extraction

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

// Entity linking strategies.
const (
	StrategyKeyMatch         = "key_match"
	StrategyVectorSimilarity = "vector_similarity"
	StrategyAlwaysNew        = "always_new"
)

// Link actions.
const (
	ActionCreate = "create"
	ActionMerge  = "merge"
	ActionSkip   = "skip"
)

// skipDistance is the vector distance below which an existing object is so
// close that re-creating or even merging adds nothing.
const skipDistance = 0.1

// normalizeName lowercases and trims an entity name for batch-local matching.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// stripArticle removes a leading English article from a normalized name.
// Returns the input unchanged when no article is present.
func stripArticle(normalized string) string {
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(normalized, article) {
			return strings.TrimSpace(strings.TrimPrefix(normalized, article))
		}
	}
	return normalized
}

// NameMap is the per-job mapping from normalized entity names to the object
// ids they produced (created, merged into, or skipped against) during this
// extraction. The relationship resolver consults it before hitting the
// database.
type NameMap struct {
	ids map[string]uuid.UUID
}

// NewNameMap creates an empty name map.
func NewNameMap() *NameMap {
	return &NameMap{ids: make(map[string]uuid.UUID)}
}

// Register records an entity name under its normalized form and, when it
// differs, under the article-stripped form as well.
func (m *NameMap) Register(name string, id uuid.UUID) {
	normalized := normalizeName(name)
	if normalized == "" {
		return
	}
	m.ids[normalized] = id
	if stripped := stripArticle(normalized); stripped != normalized && stripped != "" {
		if _, taken := m.ids[stripped]; !taken {
			m.ids[stripped] = id
		}
	}
}

// Lookup resolves a name to an object id, trying the normalized form first
// and the article-stripped form second.
func (m *NameMap) Lookup(name string) (uuid.UUID, bool) {
	normalized := normalizeName(name)
	if id, ok := m.ids[normalized]; ok {
		return id, true
	}
	if stripped := stripArticle(normalized); stripped != normalized {
		if id, ok := m.ids[stripped]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

// Len returns the number of registered names.
func (m *NameMap) Len() int {
	return len(m.ids)
}

// LinkDecision is the linker's verdict for one candidate.
type LinkDecision struct {
	Action     string
	ExistingID uuid.UUID
	// Reason is recorded in the timeline metadata.
	Reason string
}

// linkerStore is the slice of the graph repository the linker needs.
type linkerStore interface {
	FindByTypeAndKey(ctx context.Context, projectID uuid.UUID, objType, key string) (*graph.GraphObject, error)
	VectorSearch(ctx context.Context, params graph.VectorSearchParams) ([]*graph.GraphObject, error)
}

// embedder produces query embeddings for vector-similarity linking.
type embedder interface {
	Enabled() bool
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// EntityLinker decides, per candidate, whether to create a new object, merge
// into an existing one, or skip persistence entirely.
type EntityLinker struct {
	store               linkerStore
	embed               embedder
	strategy            string
	similarityThreshold float64
}

// NewEntityLinker creates a linker for one job run.
func NewEntityLinker(store linkerStore, embed embedder, strategy string, similarityThreshold float64) *EntityLinker {
	if strategy == "" {
		strategy = StrategyKeyMatch
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.5
	}
	return &EntityLinker{
		store:               store,
		embed:               embed,
		strategy:            strategy,
		similarityThreshold: similarityThreshold,
	}
}

// Decide returns the link decision for a candidate. Lookup failures degrade
// to create: a duplicate object is recoverable, a dropped entity is not.
func (l *EntityLinker) Decide(ctx context.Context, projectID uuid.UUID, candidate llm.CandidateEntity) LinkDecision {
	switch l.strategy {
	case StrategyAlwaysNew:
		return LinkDecision{Action: ActionCreate}
	case StrategyVectorSimilarity:
		return l.decideByVector(ctx, projectID, candidate)
	default:
		return l.decideByKey(ctx, projectID, candidate)
	}
}

// decideByKey matches on (type, normalized name) used as the object key.
func (l *EntityLinker) decideByKey(ctx context.Context, projectID uuid.UUID, candidate llm.CandidateEntity) LinkDecision {
	key := normalizeName(candidate.Name)
	if key == "" {
		return LinkDecision{Action: ActionCreate}
	}

	existing, err := l.store.FindByTypeAndKey(ctx, projectID, candidate.TypeName, key)
	if err != nil || existing == nil {
		return LinkDecision{Action: ActionCreate}
	}
	return LinkDecision{Action: ActionMerge, ExistingID: existing.ID, Reason: "key_match"}
}

// decideByVector embeds the candidate and searches same-type objects. Very
// close matches are skipped, matches within the similarity threshold are
// merged, everything else creates.
func (l *EntityLinker) decideByVector(ctx context.Context, projectID uuid.UUID, candidate llm.CandidateEntity) LinkDecision {
	if l.embed == nil || !l.embed.Enabled() {
		return LinkDecision{Action: ActionCreate}
	}

	query := candidate.Name
	if candidate.Description != "" {
		query += ": " + candidate.Description
	}
	vec, err := l.embed.EmbedQuery(ctx, query)
	if err != nil || len(vec) == 0 {
		return LinkDecision{Action: ActionCreate}
	}

	maxDistance := l.similarityThreshold
	matches, err := l.store.VectorSearch(ctx, graph.VectorSearchParams{
		ProjectID:   projectID,
		Vector:      vec,
		Types:       []string{candidate.TypeName},
		Limit:       1,
		MaxDistance: &maxDistance,
	})
	if err != nil || len(matches) == 0 {
		return LinkDecision{Action: ActionCreate}
	}

	match := matches[0]
	if match.Distance <= skipDistance {
		return LinkDecision{Action: ActionSkip, ExistingID: match.ID, Reason: "near_duplicate"}
	}
	return LinkDecision{Action: ActionMerge, ExistingID: match.ID, Reason: "vector_similarity"}
}
