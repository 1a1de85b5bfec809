package extraction

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

type fakeLinkerStore struct {
	byKey      map[string]*graph.GraphObject
	vectorHits []*graph.GraphObject
}

func (s *fakeLinkerStore) FindByTypeAndKey(_ context.Context, _ uuid.UUID, objType, key string) (*graph.GraphObject, error) {
	return s.byKey[objType+"/"+key], nil
}

func (s *fakeLinkerStore) VectorSearch(_ context.Context, _ graph.VectorSearchParams) ([]*graph.GraphObject, error) {
	return s.vectorHits, nil
}

type fakeEmbedder struct {
	enabled bool
	vec     []float32
}

func (e *fakeEmbedder) Enabled() bool { return e.enabled }
func (e *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vec, nil
}

func TestNameMapNormalization(t *testing.T) {
	m := NewNameMap()
	id := uuid.New()
	m.Register("  Ada Lovelace ", id)

	got, ok := m.Lookup("ada lovelace")
	require.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = m.Lookup("ADA LOVELACE")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = m.Lookup("charles babbage")
	assert.False(t, ok)
}

func TestNameMapArticleStripping(t *testing.T) {
	m := NewNameMap()
	id := uuid.New()
	m.Register("The Analytical Engine", id)

	// Registered under both forms.
	got, ok := m.Lookup("the analytical engine")
	require.True(t, ok)
	assert.Equal(t, id, got)

	got, ok = m.Lookup("Analytical Engine")
	require.True(t, ok)
	assert.Equal(t, id, got)

	// Lookup with an article resolves an article-free registration.
	m2 := NewNameMap()
	m2.Register("Analytical Engine", id)
	got, ok = m2.Lookup("the Analytical Engine")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestNameMapArticleCollisionKeepsFirst(t *testing.T) {
	m := NewNameMap()
	first := uuid.New()
	second := uuid.New()
	m.Register("Engine", first)
	m.Register("The Engine", second)

	// "the engine" resolves to its own registration.
	got, ok := m.Lookup("The Engine")
	require.True(t, ok)
	assert.Equal(t, second, got)

	// The stripped form was already taken and is not overwritten.
	got, ok = m.Lookup("Engine")
	require.True(t, ok)
	assert.Equal(t, first, got)
}

func TestLinkerAlwaysNew(t *testing.T) {
	store := &fakeLinkerStore{byKey: map[string]*graph.GraphObject{
		"Person/ada lovelace": {ID: uuid.New()},
	}}
	linker := NewEntityLinker(store, nil, StrategyAlwaysNew, 0.5)

	decision := linker.Decide(context.Background(), uuid.New(), llm.CandidateEntity{
		TypeName: "Person", Name: "Ada Lovelace",
	})
	assert.Equal(t, ActionCreate, decision.Action)
}

func TestLinkerKeyMatch(t *testing.T) {
	existingID := uuid.New()
	store := &fakeLinkerStore{byKey: map[string]*graph.GraphObject{
		"Person/ada lovelace": {ID: existingID},
	}}
	linker := NewEntityLinker(store, nil, StrategyKeyMatch, 0.5)

	decision := linker.Decide(context.Background(), uuid.New(), llm.CandidateEntity{
		TypeName: "Person", Name: "Ada Lovelace",
	})
	assert.Equal(t, ActionMerge, decision.Action)
	assert.Equal(t, existingID, decision.ExistingID)

	decision = linker.Decide(context.Background(), uuid.New(), llm.CandidateEntity{
		TypeName: "Person", Name: "Charles Babbage",
	})
	assert.Equal(t, ActionCreate, decision.Action)
}

func TestLinkerVectorSimilarity(t *testing.T) {
	existingID := uuid.New()
	store := &fakeLinkerStore{}
	emb := &fakeEmbedder{enabled: true, vec: []float32{0.1, 0.2}}
	linker := NewEntityLinker(store, emb, StrategyVectorSimilarity, 0.5)
	candidate := llm.CandidateEntity{TypeName: "Person", Name: "Ada Lovelace"}

	// No hits: create.
	decision := linker.Decide(context.Background(), uuid.New(), candidate)
	assert.Equal(t, ActionCreate, decision.Action)

	// Hit within threshold: merge.
	store.vectorHits = []*graph.GraphObject{{ID: existingID, Distance: 0.35}}
	decision = linker.Decide(context.Background(), uuid.New(), candidate)
	assert.Equal(t, ActionMerge, decision.Action)
	assert.Equal(t, existingID, decision.ExistingID)

	// Near-duplicate: skip.
	store.vectorHits = []*graph.GraphObject{{ID: existingID, Distance: 0.05}}
	decision = linker.Decide(context.Background(), uuid.New(), candidate)
	assert.Equal(t, ActionSkip, decision.Action)
	assert.Equal(t, existingID, decision.ExistingID)
}

func TestLinkerVectorSimilarityWithoutEmbeddings(t *testing.T) {
	linker := NewEntityLinker(&fakeLinkerStore{}, &fakeEmbedder{enabled: false}, StrategyVectorSimilarity, 0.5)
	decision := linker.Decide(context.Background(), uuid.New(), llm.CandidateEntity{
		TypeName: "Person", Name: "Ada Lovelace",
	})
	assert.Equal(t, ActionCreate, decision.Action)
}
