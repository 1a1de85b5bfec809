package templatepacks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the templatepacks fx.Module.
var Module = fx.Module("templatepacks",
	fx.Provide(NewService),
)

// Service loads and merges schema packs for projects.
type Service struct {
	db  bun.IDB
	cfg *config.Config
	log *slog.Logger
}

// NewService creates a new template pack service.
func NewService(db *bun.DB, cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		cfg: cfg,
		log: log.With(logger.Scope("templatepacks")),
	}
}

// WithDB returns a service bound to the given connection, typically a
// tenant-scoped one.
func (s *Service) WithDB(db bun.IDB) *Service {
	return &Service{db: db, cfg: s.cfg, log: s.log}
}

// GetProjectSchemas returns the merged effective schemas from the project's
// active packs. When the project has no packs, the configured default pack is
// auto-installed first.
func (s *Service) GetProjectSchemas(ctx context.Context, projectID string) (*ExtractionSchemas, error) {
	assignments, err := s.listActive(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if len(assignments) == 0 && s.cfg.Extraction.DefaultTemplatePackID != "" {
		if err := s.assignDefaultPack(ctx, projectID); err != nil {
			s.log.Warn("failed to assign default template pack",
				slog.String("project_id", projectID),
				logger.Error(err),
			)
		} else if assignments, err = s.listActive(ctx, projectID); err != nil {
			return nil, err
		}
	}

	return s.merge(projectID, assignments), nil
}

// GetBasePrompt returns the settings-store base prompt, falling back to the
// configured default. Empty means the provider default applies.
func (s *Service) GetBasePrompt(ctx context.Context) string {
	setting := new(Setting)
	err := s.db.NewSelect().
		Model(setting).
		Where("s.key = ?", SettingKeyBasePrompt).
		Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("failed to load base prompt setting", logger.Error(err))
		}
		return s.cfg.Extraction.BasePrompt
	}
	if setting.Value == "" {
		return s.cfg.Extraction.BasePrompt
	}
	return setting.Value
}

func (s *Service) listActive(ctx context.Context, projectID string) ([]ProjectTemplatePack, error) {
	var assignments []ProjectTemplatePack
	err := s.db.NewSelect().
		Model(&assignments).
		Relation("TemplatePack").
		Where("ptp.project_id = ?", projectID).
		Where("ptp.active = true").
		Order("ptp.installed_at ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query project template packs: %w", err)
	}
	return assignments, nil
}

// assignDefaultPack installs the configured default pack. An already-installed
// conflict is not an error; the caller re-fetches either way.
func (s *Service) assignDefaultPack(ctx context.Context, projectID string) error {
	assignment := &ProjectTemplatePack{
		ProjectID:      projectID,
		TemplatePackID: s.cfg.Extraction.DefaultTemplatePackID,
		Active:         true,
	}
	res, err := s.db.NewInsert().
		Model(assignment).
		On("CONFLICT (project_id, template_pack_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("install default pack: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		s.log.Info("default template pack already installed",
			slog.String("project_id", projectID),
			slog.String("pack_id", s.cfg.Extraction.DefaultTemplatePackID),
		)
		return nil
	}

	s.log.Info("installed default template pack",
		slog.String("project_id", projectID),
		slog.String("pack_id", s.cfg.Extraction.DefaultTemplatePackID),
	)
	return nil
}

// merge folds the assignments into one schema set. Later packs override
// earlier ones per type; each merged type accumulates its contributing pack
// names.
func (s *Service) merge(projectID string, assignments []ProjectTemplatePack) *ExtractionSchemas {
	merged := &ExtractionSchemas{
		ObjectSchemas:       make(map[string]llm.ObjectSchema),
		RelationshipSchemas: make(map[string]llm.RelationshipSchema),
		ExtractionPrompts:   make(map[string]string),
	}

	for _, assignment := range assignments {
		if assignment.TemplatePack == nil {
			continue
		}
		pack := assignment.TemplatePack

		enabled, disabled, overrides := customizationFilters(assignment.Customizations)

		include := func(typeName string) bool {
			if disabled[typeName] {
				return false
			}
			if len(enabled) > 0 && !enabled[typeName] {
				return false
			}
			return true
		}

		for typeName, schema := range parseObjectTypeSchemas(pack.ObjectTypeSchemas) {
			if !include(typeName) {
				continue
			}
			if override, ok := overrides[typeName]; ok {
				schema = applySchemaOverrides(schema, override)
			}
			schema.Sources = appendSource(merged.ObjectSchemas[typeName].Sources, pack.Name)
			merged.ObjectSchemas[typeName] = schema
		}

		for typeName, schema := range parseRelationshipTypeSchemas(pack.RelationshipTypeSchemas) {
			if !include(typeName) {
				continue
			}
			schema.Sources = appendSource(merged.RelationshipSchemas[typeName].Sources, pack.Name)
			merged.RelationshipSchemas[typeName] = schema
		}

		for name, prompt := range pack.ExtractionPrompts {
			if p, ok := prompt.(string); ok {
				merged.ExtractionPrompts[name] = p
			}
		}

		s.log.Debug("merged template pack schemas",
			slog.String("pack_name", pack.Name),
			slog.String("pack_version", pack.Version),
		)
	}

	s.log.Info("loaded project schemas",
		slog.String("project_id", projectID),
		slog.Int("template_packs", len(assignments)),
		slog.Int("object_types", len(merged.ObjectSchemas)),
		slog.Int("relationship_types", len(merged.RelationshipSchemas)),
	)

	return merged
}

func customizationFilters(c *TemplatePackCustomizations) (enabled, disabled map[string]bool, overrides map[string]any) {
	enabled = make(map[string]bool)
	disabled = make(map[string]bool)
	if c == nil {
		return enabled, disabled, nil
	}
	for _, t := range c.EnabledTypes {
		enabled[t] = true
	}
	for _, t := range c.DisabledTypes {
		disabled[t] = true
	}
	return enabled, disabled, c.SchemaOverrides
}

func appendSource(sources []string, packName string) []string {
	for _, s := range sources {
		if s == packName {
			return sources
		}
	}
	return append(sources, packName)
}
