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

type fakeEntityStore struct {
	created   []*graph.GraphObject
	merges    map[uuid.UUID]map[string]any
	embedded  map[uuid.UUID][]float32
	createErr error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		merges:   make(map[uuid.UUID]map[string]any),
		embedded: make(map[uuid.UUID][]float32),
	}
}

func (s *fakeEntityStore) CreateObject(_ context.Context, obj *graph.GraphObject) error {
	if s.createErr != nil {
		return s.createErr
	}
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	s.created = append(s.created, obj)
	return nil
}

func (s *fakeEntityStore) MergeObjectProperties(_ context.Context, _ uuid.UUID, objectID uuid.UUID, incoming map[string]any) (*graph.GraphObject, error) {
	s.merges[objectID] = incoming
	return &graph.GraphObject{ID: objectID}, nil
}

func (s *fakeEntityStore) SetObjectEmbedding(_ context.Context, objectID uuid.UUID, embedding []float32) error {
	s.embedded[objectID] = embedding
	return nil
}

func testThresholds() Thresholds {
	return Thresholds{Min: 0.4, Review: 0.5, Auto: 0.8}
}

func testPersister(store *fakeEntityStore, linker *EntityLinker, names *NameMap, mode string) *EntityPersister {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEntityPersister(EntityPersisterParams{
		Store:          store,
		Linker:         linker,
		Names:          names,
		Thresholds:     testThresholds(),
		PipelineMode:   mode,
		ProjectID:      uuid.New(),
		OrganizationID: uuid.New(),
		JobID:          "job-1",
	}, log)
}

func alwaysNewLinker() *EntityLinker {
	return NewEntityLinker(&fakeLinkerStore{}, nil, StrategyAlwaysNew, 0.5)
}

func fullCandidate(name string) llm.CandidateEntity {
	return llm.CandidateEntity{
		TypeName:    "Person",
		Name:        name,
		Description: "An English mathematician known for work on the analytical engine.",
		Properties:  map[string]any{"occupation": "mathematician", "era": "victorian", "country": "England"},
	}
}

func TestPersistCreatesAcceptedObject(t *testing.T) {
	store := newFakeEntityStore()
	names := NewNameMap()
	persister := testPersister(store, alwaysNewLinker(), names, PipelineModeSinglePass)

	out := persister.Persist(context.Background(), []llm.CandidateEntity{fullCandidate("Ada Lovelace")}, nil, nil, nil)

	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Successful())
	assert.Equal(t, 0, out.ReviewRequired)
	require.Len(t, store.created, 1)

	obj := store.created[0]
	assert.Equal(t, graph.StatusAccepted, obj.Status)
	assert.Empty(t, obj.Labels)
	assert.Equal(t, "Ada Lovelace", obj.Properties["name"])
	assert.Equal(t, "llm", obj.Properties[graph.PropExtractionSource])
	assert.Equal(t, "job-1", obj.Properties[graph.PropExtractionJobID])
	assert.InDelta(t, 1.0, obj.Properties[graph.PropExtractionConfidence], 0.001)

	// Created objects resolve by name for the relationship stage.
	id, ok := names.Lookup("ada lovelace")
	require.True(t, ok)
	assert.Equal(t, obj.ID, id)
}

func TestPersistReviewBandCreatesDraft(t *testing.T) {
	store := newFakeEntityStore()
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	// Name only: heuristic score 0.4, review band.
	out := persister.Persist(context.Background(), []llm.CandidateEntity{
		{TypeName: "Person", Name: "Charles Babbage"},
	}, nil, nil, nil)

	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.ReviewRequired)
	require.Len(t, store.created, 1)
	assert.Equal(t, graph.StatusDraft, store.created[0].Status)
	assert.Equal(t, []string{graph.LabelRequiresReview}, store.created[0].Labels)
}

func TestPersistRejectsLowConfidence(t *testing.T) {
	store := newFakeEntityStore()
	confidence := 0.1
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	// Blended: 0.6*0.1 + 0.4*0.4 = 0.22, below min.
	out := persister.Persist(context.Background(), []llm.CandidateEntity{
		{TypeName: "Person", Name: "Somebody", Confidence: &confidence},
	}, nil, nil, nil)

	assert.Equal(t, 1, out.Rejected)
	assert.Equal(t, 0, out.Created)
	assert.Empty(t, store.created)
	require.Len(t, out.PerEntity, 1)
	assert.Equal(t, "rejected", out.PerEntity[0]["action"])
}

func TestPersistRejectsUnknownType(t *testing.T) {
	store := newFakeEntityStore()
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	schemas := map[string]llm.ObjectSchema{"Person": {Name: "Person"}}

	// A full candidate would clear every threshold, but its type is not in
	// the effective schemas.
	candidate := fullCandidate("Nautilus")
	candidate.TypeName = "Vessel"
	out := persister.Persist(context.Background(), []llm.CandidateEntity{candidate}, schemas, nil, nil)

	assert.Equal(t, 1, out.Rejected)
	assert.Equal(t, 0, out.Created)
	assert.Empty(t, store.created)
	require.Len(t, out.PerEntity, 1)
	assert.Equal(t, "rejected", out.PerEntity[0]["action"])
	assert.Equal(t, "unknown_type", out.PerEntity[0]["reason"])
}

func TestPersistMergesOnKeyMatch(t *testing.T) {
	existingID := uuid.New()
	store := newFakeEntityStore()
	names := NewNameMap()
	linker := NewEntityLinker(&fakeLinkerStore{byKey: map[string]*graph.GraphObject{
		"Person/ada lovelace": {ID: existingID},
	}}, nil, StrategyKeyMatch, 0.5)
	persister := testPersister(store, linker, names, PipelineModeSinglePass)

	out := persister.Persist(context.Background(), []llm.CandidateEntity{fullCandidate("Ada Lovelace")}, nil, nil, nil)

	assert.Equal(t, 1, out.Merged)
	assert.Equal(t, 0, out.Created)
	require.Contains(t, store.merges, existingID)
	assert.Equal(t, "job-1", store.merges[existingID][graph.PropExtractionJobID])

	id, ok := names.Lookup("Ada Lovelace")
	require.True(t, ok)
	assert.Equal(t, existingID, id)
}

func TestPersistPreverifiedUsesConfidenceVerbatim(t *testing.T) {
	store := newFakeEntityStore()
	confidence := 0.95
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModePreverified)

	// Bare candidate, but the supplied confidence alone decides the band.
	out := persister.Persist(context.Background(), []llm.CandidateEntity{
		{TypeName: "Person", Name: "Ada", Confidence: &confidence},
	}, nil, nil, nil)

	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 0, out.ReviewRequired)
	assert.Equal(t, graph.StatusAccepted, store.created[0].Status)
}

func TestPersistVerificationPenaltyRejects(t *testing.T) {
	store := newFakeEntityStore()
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	vmap := VerificationMap{
		"charles babbage": {EntityName: "Charles Babbage", EntityVerified: false, OverallConfidence: 0.0},
	}
	// Heuristic 0.4 minus the full 0.15 penalty lands below min.
	out := persister.Persist(context.Background(), []llm.CandidateEntity{
		{TypeName: "Person", Name: "Charles Babbage"},
	}, nil, vmap, nil)

	assert.Equal(t, 1, out.Rejected)
	assert.Empty(t, store.created)
}

func TestPersistCountsCreateFailures(t *testing.T) {
	store := newFakeEntityStore()
	store.createErr = errors.New("connection reset")
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	out := persister.Persist(context.Background(), []llm.CandidateEntity{fullCandidate("Ada Lovelace")}, nil, nil, nil)

	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 0, out.Created)
	assert.Equal(t, 1, out.Processed())
	require.Len(t, out.PerEntity, 1)
	assert.Contains(t, out.PerEntity[0]["error"], "connection reset")
}

func TestPersistReportsProgressPerCandidate(t *testing.T) {
	store := newFakeEntityStore()
	persister := testPersister(store, alwaysNewLinker(), NewNameMap(), PipelineModeSinglePass)

	var calls [][2]int
	candidates := []llm.CandidateEntity{
		fullCandidate("Ada Lovelace"),
		fullCandidate("Charles Babbage"),
		fullCandidate("Mary Somerville"),
	}
	out := persister.Persist(context.Background(), candidates, nil, nil, func(processed, total int) {
		calls = append(calls, [2]int{processed, total})
	})

	assert.Equal(t, 3, out.Processed())
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
}
