package extraction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
)

type fakeRelationshipStore struct {
	objects   map[uuid.UUID]*graph.GraphObject
	byName    map[string]*graph.GraphObject
	created   []*graph.GraphRelationship
	createErr error
}

func newFakeRelationshipStore() *fakeRelationshipStore {
	return &fakeRelationshipStore{
		objects: make(map[uuid.UUID]*graph.GraphObject),
		byName:  make(map[string]*graph.GraphObject),
	}
}

func (s *fakeRelationshipStore) GetObject(_ context.Context, _ uuid.UUID, objectID uuid.UUID) (*graph.GraphObject, error) {
	return s.objects[objectID], nil
}

func (s *fakeRelationshipStore) FindByName(_ context.Context, _ uuid.UUID, name string) (*graph.GraphObject, error) {
	return s.byName[normalizeName(name)], nil
}

func (s *fakeRelationshipStore) CreateRelationship(_ context.Context, rel *graph.GraphRelationship) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, rel)
	return nil
}

func testRelationshipWriter(store *fakeRelationshipStore, names *NameMap, schemas map[string]llm.RelationshipSchema) *RelationshipWriter {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRelationshipWriter(store, names, uuid.New(), schemas, log)
}

func TestResolveEndpointByBatchName(t *testing.T) {
	store := newFakeRelationshipStore()
	names := NewNameMap()
	adaID := uuid.New()
	names.Register("Ada Lovelace", adaID)

	resolver := NewRelationshipResolver(store, names, uuid.New())
	id, ok := resolver.ResolveEndpoint(context.Background(), llm.RelationshipEndpoint{Name: "ada lovelace"})
	require.True(t, ok)
	assert.Equal(t, adaID, id)
}

func TestResolveEndpointDatabaseFallbackCaches(t *testing.T) {
	store := newFakeRelationshipStore()
	existing := &graph.GraphObject{ID: uuid.New()}
	store.byName["charles babbage"] = existing

	names := NewNameMap()
	resolver := NewRelationshipResolver(store, names, uuid.New())

	id, ok := resolver.ResolveEndpoint(context.Background(), llm.RelationshipEndpoint{Name: "Charles Babbage"})
	require.True(t, ok)
	assert.Equal(t, existing.ID, id)

	// The database hit is cached into the batch map.
	cached, ok := names.Lookup("Charles Babbage")
	require.True(t, ok)
	assert.Equal(t, existing.ID, cached)
}

func TestResolveEndpointByID(t *testing.T) {
	store := newFakeRelationshipStore()
	existing := &graph.GraphObject{ID: uuid.New()}
	store.objects[existing.ID] = existing

	resolver := NewRelationshipResolver(store, NewNameMap(), uuid.New())

	id, ok := resolver.ResolveEndpoint(context.Background(), llm.RelationshipEndpoint{ID: existing.ID.String()})
	require.True(t, ok)
	assert.Equal(t, existing.ID, id)

	// Malformed UUID is unresolved, not an error.
	_, ok = resolver.ResolveEndpoint(context.Background(), llm.RelationshipEndpoint{ID: "not-a-uuid"})
	assert.False(t, ok)

	// Unknown id is unresolved.
	_, ok = resolver.ResolveEndpoint(context.Background(), llm.RelationshipEndpoint{ID: uuid.NewString()})
	assert.False(t, ok)
}

func TestPersistCreatesRelationship(t *testing.T) {
	store := newFakeRelationshipStore()
	names := NewNameMap()
	adaID, mathID := uuid.New(), uuid.New()
	names.Register("Ada", adaID)
	names.Register("Mathematics", mathID)

	confidence := 0.9
	writer := testRelationshipWriter(store, names, nil)
	stats := writer.Persist(context.Background(), uuid.New(), "job-1", []llm.CandidateRelationship{{
		RelationshipType: "WORKED_IN",
		Source:           llm.RelationshipEndpoint{Name: "Ada"},
		Target:           llm.RelationshipEndpoint{Name: "Mathematics"},
		Description:      "profession",
		Confidence:       &confidence,
	}})

	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 0, stats.Skipped)
	require.Len(t, store.created, 1)
	rel := store.created[0]
	assert.Equal(t, adaID, rel.SrcID)
	assert.Equal(t, mathID, rel.DstID)
	assert.Equal(t, "job-1", rel.Properties[graph.PropExtractionJobID])
	assert.Equal(t, "llm", rel.Properties[graph.PropExtractionSource])
	assert.Equal(t, 0.9, rel.Properties[graph.PropExtractionConfidence])
}

func TestPersistSkipReasons(t *testing.T) {
	store := newFakeRelationshipStore()
	names := NewNameMap()
	names.Register("Ada", uuid.New())

	schemas := map[string]llm.RelationshipSchema{"WORKED_IN": {Name: "WORKED_IN"}}
	writer := testRelationshipWriter(store, names, schemas)

	stats := writer.Persist(context.Background(), uuid.New(), "job-1", []llm.CandidateRelationship{
		{
			RelationshipType:   "WORKED_IN",
			Source:             llm.RelationshipEndpoint{Name: "Ada"},
			Target:             llm.RelationshipEndpoint{Name: "Mathematics"},
			VerificationStatus: "rejected",
		},
		{
			RelationshipType: "UNKNOWN_TYPE",
			Source:           llm.RelationshipEndpoint{Name: "Ada"},
			Target:           llm.RelationshipEndpoint{Name: "Mathematics"},
		},
		{
			RelationshipType: "WORKED_IN",
			Source:           llm.RelationshipEndpoint{Name: "Nobody"},
			Target:           llm.RelationshipEndpoint{Name: "Ada"},
		},
		{
			RelationshipType: "WORKED_IN",
			Source:           llm.RelationshipEndpoint{Name: "Ada"},
			Target:           llm.RelationshipEndpoint{Name: "Nobody"},
		},
	})

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 4, stats.Skipped)
	require.Len(t, stats.Details, 4)
	assert.Equal(t, SkipRejectedVerification, stats.Details[0]["reason"])
	assert.Equal(t, SkipTypeMismatch, stats.Details[1]["reason"])
	assert.Equal(t, SkipSourceNotResolved, stats.Details[2]["reason"])
	assert.Equal(t, SkipTargetNotResolved, stats.Details[3]["reason"])
	assert.Empty(t, store.created)
}

func TestPersistSwallowsDuplicates(t *testing.T) {
	store := newFakeRelationshipStore()
	store.createErr = graph.ErrDuplicateRelationship
	names := NewNameMap()
	names.Register("Ada", uuid.New())
	names.Register("Mathematics", uuid.New())

	writer := testRelationshipWriter(store, names, nil)
	stats := writer.Persist(context.Background(), uuid.New(), "job-1", []llm.CandidateRelationship{{
		RelationshipType: "WORKED_IN",
		Source:           llm.RelationshipEndpoint{Name: "Ada"},
		Target:           llm.RelationshipEndpoint{Name: "Mathematics"},
	}})

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, SkipDuplicate, stats.Details[0]["reason"])
}

func TestPersistCountsWriteFailures(t *testing.T) {
	store := newFakeRelationshipStore()
	store.createErr = errors.New("connection reset")
	names := NewNameMap()
	names.Register("Ada", uuid.New())
	names.Register("Mathematics", uuid.New())

	writer := testRelationshipWriter(store, names, nil)
	stats := writer.Persist(context.Background(), uuid.New(), "job-1", []llm.CandidateRelationship{{
		RelationshipType: "WORKED_IN",
		Source:           llm.RelationshipEndpoint{Name: "Ada"},
		Target:           llm.RelationshipEndpoint{Name: "Mathematics"},
	}})

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, stats.Details[0]["error"], "connection reset")
}
