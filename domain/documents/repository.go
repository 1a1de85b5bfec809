package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the documents fx.Module.
var Module = fx.Module("documents",
	fx.Provide(NewRepository),
)

// Repository reads documents from the database.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new documents repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("documents.repo")),
	}
}

// WithDB returns a repository bound to the given connection, typically a
// tenant-scoped one.
func (r *Repository) WithDB(db bun.IDB) *Repository {
	return &Repository{db: db, log: r.log}
}

// Get returns a document by ID within a project, including its content.
func (r *Repository) Get(ctx context.Context, projectID, documentID string) (*Document, error) {
	doc := new(Document)
	err := r.db.NewSelect().
		Model(doc).
		Where("d.id = ?", documentID).
		Where("d.project_id = ?", projectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.New(apperror.KindInput, fmt.Sprintf("document not found: %s", documentID))
		}
		return nil, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return doc, nil
}
