package chunks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the chunks fx.Module.
var Module = fx.Module("chunks",
	fx.Provide(NewRepository),
)

// Repository handles database operations for chunks.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new chunks repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("chunks.repo")),
	}
}

// WithDB returns a repository bound to the given connection, typically a
// tenant-scoped one.
func (r *Repository) WithDB(db bun.IDB) *Repository {
	return &Repository{db: db, log: r.log}
}

// ListByDocument returns the chunks of a document ordered by index.
func (r *Repository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	var chunks []*Chunk
	err := r.db.NewSelect().
		Model(&chunks).
		Where("c.document_id = ?", documentID).
		Order("c.chunk_index").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks for document %s: %w", documentID, err)
	}
	return chunks, nil
}

// CreateBatch inserts chunks in one statement. Conflicts on
// (document_id, chunk_index) are ignored so re-chunking an already-chunked
// document is idempotent.
func (r *Repository) CreateBatch(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	_, err := r.db.NewInsert().
		Model(&chunks).
		On("CONFLICT (document_id, chunk_index) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create %d chunks: %w", len(chunks), err)
	}
	return nil
}

// UpdateEmbedding stores the embedding vector for a chunk.
func (r *Repository) UpdateEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error {
	_, err := r.db.NewRaw(
		"UPDATE kb.chunks SET embedding = ?::vector, updated_at = now() WHERE id = ?",
		VectorLiteral(embedding), chunkID,
	).Exec(ctx)
	if err != nil {
		return fmt.Errorf("update embedding for chunk %s: %w", chunkID, err)
	}
	return nil
}

// CountByDocument returns the number of chunks for a document.
func (r *Repository) CountByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*Chunk)(nil)).
		Where("document_id = ?", documentID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks for document %s: %w", documentID, err)
	}
	return count, nil
}

// VectorLiteral converts a float32 slice to the PostgreSQL vector literal
// format.
func VectorLiteral(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", v)
	}
	sb.WriteByte(']')
	return sb.String()
}
