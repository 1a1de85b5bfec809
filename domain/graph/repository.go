package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/domain/chunks"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the graph fx.Module.
var Module = fx.Module("graph",
	fx.Provide(NewRepository),
)

// ErrDuplicateRelationship is returned when an identical live edge already
// exists for (project, type, src, dst).
var ErrDuplicateRelationship = errors.New("relationship already exists")

// Repository handles database operations for graph objects and relationships.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new graph repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("graph.repo")),
	}
}

// WithDB returns a repository bound to the given connection, typically a
// tenant-scoped one.
func (r *Repository) WithDB(db bun.IDB) *Repository {
	return &Repository{db: db, log: r.log}
}

// CreateObject inserts a new graph object.
func (r *Repository) CreateObject(ctx context.Context, obj *GraphObject) error {
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	if obj.Properties == nil {
		obj.Properties = make(map[string]any)
	}
	if obj.Labels == nil {
		obj.Labels = []string{}
	}

	_, err := r.db.NewInsert().Model(obj).Exec(ctx)
	if err != nil {
		return fmt.Errorf("create graph object: %w", err)
	}
	return nil
}

// GetObject returns a live object by ID within a project, or nil when absent.
func (r *Repository) GetObject(ctx context.Context, projectID, objectID uuid.UUID) (*GraphObject, error) {
	obj := new(GraphObject)
	err := r.db.NewSelect().
		Model(obj).
		Where("go.id = ?", objectID).
		Where("go.project_id = ?", projectID).
		Where("go.deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get graph object %s: %w", objectID, err)
	}
	return obj, nil
}

// MergeObjectProperties merges incoming properties into an object under a row
// lock and returns the updated object. Established values win; see
// MergeProperties for the policy.
func (r *Repository) MergeObjectProperties(ctx context.Context, projectID, objectID uuid.UUID, incoming map[string]any) (*GraphObject, error) {
	var merged *GraphObject

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		obj := new(GraphObject)
		err := tx.NewSelect().
			Model(obj).
			Where("go.id = ?", objectID).
			Where("go.project_id = ?", projectID).
			Where("go.deleted_at IS NULL").
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("graph object not found: %s", objectID)
			}
			return err
		}

		props, changed := MergeProperties(obj.Properties, incoming)
		if !changed {
			merged = obj
			return nil
		}

		obj.Properties = props
		_, err = tx.NewUpdate().
			Model(obj).
			Column("properties").
			Set("updated_at = now()").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		merged = obj
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge properties into %s: %w", objectID, err)
	}
	return merged, nil
}

// FindByTypeAndKey returns the live object matching (type, key) in a project,
// or nil when absent.
func (r *Repository) FindByTypeAndKey(ctx context.Context, projectID uuid.UUID, objType, key string) (*GraphObject, error) {
	obj := new(GraphObject)
	err := r.db.NewSelect().
		Model(obj).
		Where("go.project_id = ?", projectID).
		Where("go.type = ?", objType).
		Where("go.key = ?", key).
		Where("go.deleted_at IS NULL").
		Order("go.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find object by key %s/%s: %w", objType, key, err)
	}
	return obj, nil
}

// FindByName returns the most recently created live object whose name
// property matches case-insensitively, or nil when absent.
func (r *Repository) FindByName(ctx context.Context, projectID uuid.UUID, name string) (*GraphObject, error) {
	obj := new(GraphObject)
	err := r.db.NewSelect().
		Model(obj).
		Where("go.project_id = ?", projectID).
		Where("LOWER(go.properties->>'name') = LOWER(?)", name).
		Where("go.deleted_at IS NULL").
		Order("go.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find object by name %q: %w", name, err)
	}
	return obj, nil
}

// ListByType returns the most recently created live objects of a type.
func (r *Repository) ListByType(ctx context.Context, projectID uuid.UUID, objType string, limit int) ([]*GraphObject, error) {
	if limit <= 0 {
		limit = 30
	}
	var objects []*GraphObject
	err := r.db.NewSelect().
		Model(&objects).
		Where("go.project_id = ?", projectID).
		Where("go.type = ?", objType).
		Where("go.deleted_at IS NULL").
		Order("go.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list objects of type %s: %w", objType, err)
	}
	return objects, nil
}

// VectorSearchParams configure a vector similarity search over objects.
type VectorSearchParams struct {
	ProjectID   uuid.UUID
	Vector      []float32
	Types       []string
	Limit       int
	MaxDistance *float64
}

// VectorSearch returns live objects ordered by cosine distance to the query
// vector. Distance is populated on each result.
func (r *Repository) VectorSearch(ctx context.Context, params VectorSearchParams) ([]*GraphObject, error) {
	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Limit > 200 {
		params.Limit = 200
	}

	vec := chunks.VectorLiteral(params.Vector)

	q := r.db.NewSelect().
		Model((*GraphObject)(nil)).
		ColumnExpr("go.*").
		ColumnExpr("(go.embedding <=> ?::vector) AS distance", vec).
		Where("go.project_id = ?", params.ProjectID).
		Where("go.embedding IS NOT NULL").
		Where("go.deleted_at IS NULL")

	if len(params.Types) > 0 {
		q = q.Where("go.type IN (?)", bun.In(params.Types))
	}
	if params.MaxDistance != nil {
		q = q.Where("(go.embedding <=> ?::vector) <= ?", vec, *params.MaxDistance)
	}

	var objects []*GraphObject
	err := q.OrderExpr("distance ASC").
		Limit(params.Limit).
		Scan(ctx, &objects)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return objects, nil
}

// SetObjectEmbedding stores the embedding vector for an object.
func (r *Repository) SetObjectEmbedding(ctx context.Context, objectID uuid.UUID, embedding []float32) error {
	_, err := r.db.NewRaw(
		"UPDATE kb.graph_objects SET embedding = ?::vector, updated_at = now() WHERE id = ?",
		chunks.VectorLiteral(embedding), objectID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("set embedding for object %s: %w", objectID, err)
	}
	return nil
}

// NeighborSummary describes one edge incident to an object, with the
// neighbor's display name and type.
type NeighborSummary struct {
	Type        string `bun:"type" json:"type"`
	Direction   string `bun:"direction" json:"direction"`
	RelatedName string `bun:"related_name" json:"related_name"`
	RelatedType string `bun:"related_type" json:"related_type"`
}

// GetNeighborSummaries returns up to maxNeighbors one-hop edges of an object
// with their direction (outgoing or incoming) and the neighbor's name/type.
func (r *Repository) GetNeighborSummaries(ctx context.Context, projectID, objectID uuid.UUID, maxNeighbors int) ([]NeighborSummary, error) {
	if maxNeighbors <= 0 {
		maxNeighbors = 10
	}

	var summaries []NeighborSummary
	err := r.db.NewRaw(`
		SELECT gr.type, n.direction, o.properties->>'name' AS related_name, o.type AS related_type
		FROM (
			SELECT id, dst_id AS neighbor_id, 'outgoing' AS direction FROM kb.graph_relationships
			WHERE src_id = ? AND project_id = ? AND deleted_at IS NULL
			UNION ALL
			SELECT id, src_id AS neighbor_id, 'incoming' AS direction FROM kb.graph_relationships
			WHERE dst_id = ? AND project_id = ? AND deleted_at IS NULL
		) n
		JOIN kb.graph_relationships gr ON gr.id = n.id
		JOIN kb.graph_objects o ON o.id = n.neighbor_id AND o.deleted_at IS NULL
		LIMIT ?`,
		objectID, projectID, objectID, projectID, maxNeighbors,
	).Scan(ctx, &summaries)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get neighbor summaries for %s: %w", objectID, err)
	}
	return summaries, nil
}

// GetNeighborObjects returns up to maxNeighbors live objects connected to the
// given object by a live relationship in either direction.
func (r *Repository) GetNeighborObjects(ctx context.Context, projectID, objectID uuid.UUID, maxNeighbors int) ([]*GraphObject, error) {
	if maxNeighbors <= 0 {
		maxNeighbors = 10
	}

	var neighborIDs []uuid.UUID
	err := r.db.NewRaw(`
		SELECT DISTINCT neighbor_id FROM (
			SELECT dst_id AS neighbor_id FROM kb.graph_relationships
			WHERE src_id = ? AND project_id = ? AND deleted_at IS NULL
			UNION
			SELECT src_id AS neighbor_id FROM kb.graph_relationships
			WHERE dst_id = ? AND project_id = ? AND deleted_at IS NULL
		) n
		LIMIT ?`,
		objectID, projectID, objectID, projectID, maxNeighbors,
	).Scan(ctx, &neighborIDs)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get neighbor ids for %s: %w", objectID, err)
	}
	if len(neighborIDs) == 0 {
		return []*GraphObject{}, nil
	}

	var objects []*GraphObject
	err = r.db.NewSelect().
		Model(&objects).
		Where("go.id IN (?)", bun.In(neighborIDs)).
		Where("go.project_id = ?", projectID).
		Where("go.deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get neighbor objects for %s: %w", objectID, err)
	}
	return objects, nil
}

// GetDistinctTags returns all distinct labels across live objects in a
// project, sorted alphabetically.
func (r *Repository) GetDistinctTags(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	var tags []string
	err := r.db.NewRaw(`
		SELECT DISTINCT unnest(labels) AS tag
		FROM kb.graph_objects
		WHERE project_id = ? AND deleted_at IS NULL
		ORDER BY tag`,
		projectID,
	).Scan(ctx, &tags)
	if err != nil {
		return nil, fmt.Errorf("get distinct tags: %w", err)
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}

// CreateRelationship inserts a new edge. Returns ErrDuplicateRelationship
// when an identical live edge already exists.
func (r *Repository) CreateRelationship(ctx context.Context, rel *GraphRelationship) error {
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	if rel.Properties == nil {
		rel.Properties = make(map[string]any)
	}

	_, err := r.db.NewInsert().Model(rel).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRelationship
		}
		return fmt.Errorf("create relationship %s: %w", rel.Type, err)
	}
	return nil
}

// LinkObjectToChunk records a provenance edge from an object to a chunk.
func (r *Repository) LinkObjectToChunk(ctx context.Context, link *ObjectChunkLink) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	_, err := r.db.NewInsert().
		Model(link).
		On("CONFLICT (object_id, chunk_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("link object %s to chunk %s: %w", link.ObjectID, link.ChunkID, err)
	}
	return nil
}
