package projects

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

// Module provides the projects fx.Module.
var Module = fx.Module("projects",
	fx.Provide(NewRepository),
)

// Repository reads projects from the database.
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository creates a new projects repository.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("projects.repo")),
	}
}

// GetByID returns the project with its organization and extraction
// configuration. Returns a tenant error when the project does not exist.
func (r *Repository) GetByID(ctx context.Context, projectID string) (*Project, error) {
	project := new(Project)
	err := r.db.NewSelect().
		Model(project).
		Where("p.id = ?", projectID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.New(apperror.KindTenant, fmt.Sprintf("project not found: %s", projectID))
		}
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	return project, nil
}
