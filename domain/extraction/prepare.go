package extraction

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/emergent-company/emergent.strategy-sub002/domain/chunks"
	"github.com/emergent-company/emergent.strategy-sub002/domain/documents"
	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/textsplitter"
)

// PreparedDocument is the outcome of the preparation stage: the source text
// plus the chunk set extraction links provenance to.
type PreparedDocument struct {
	Content    string
	ChunkIDs   []uuid.UUID
	ChunkTexts []string
	// ChunksCreated reports whether chunks were created during preparation.
	ChunksCreated bool
	// EmbeddingsGenerated counts chunks embedded on demand.
	EmbeddingsGenerated int
}

// documentEmbedder generates chunk embeddings on demand.
type documentEmbedder interface {
	Enabled() bool
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentPreparer ensures source content, chunks and chunk embeddings exist
// before extraction runs.
type DocumentPreparer struct {
	documents *documents.Repository
	chunks    *chunks.Repository
	embed     documentEmbedder
	log       *slog.Logger
}

// NewDocumentPreparer creates a preparer bound to tenant-scoped repositories.
func NewDocumentPreparer(docs *documents.Repository, chunkRepo *chunks.Repository, embed documentEmbedder, log *slog.Logger) *DocumentPreparer {
	return &DocumentPreparer{
		documents: docs,
		chunks:    chunkRepo,
		embed:     embed,
		log:       log.With(logger.Scope("extraction.prepare")),
	}
}

// Prepare loads the job's source text and guarantees chunks exist for it.
// Document sources persist chunks (and embeddings when enabled); manual
// sources chunk in memory only. Producing no content or no chunk is fatal
// for the job.
func (p *DocumentPreparer) Prepare(ctx context.Context, job *ObjectExtractionJob, project *projects.Project) (*PreparedDocument, error) {
	switch job.SourceTypeOrDefault() {
	case SourceTypeDocument:
		return p.prepareDocument(ctx, job, project)
	case SourceTypeManual:
		return p.prepareManual(job, project)
	default:
		return nil, apperror.Newf(apperror.KindInput, "unsupported source type: %s", job.SourceTypeOrDefault())
	}
}

func (p *DocumentPreparer) prepareDocument(ctx context.Context, job *ObjectExtractionJob, project *projects.Project) (*PreparedDocument, error) {
	if job.DocumentID == nil || *job.DocumentID == "" {
		return nil, apperror.New(apperror.KindInput, "document source requires document_id")
	}

	doc, err := p.documents.Get(ctx, job.ProjectID, *job.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Content == nil || *doc.Content == "" {
		return nil, apperror.Newf(apperror.KindInput, "document has no content: %s", doc.ID)
	}
	content := *doc.Content

	documentID, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, apperror.Newf(apperror.KindInput, "malformed document id: %s", doc.ID)
	}

	existing, err := p.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	created := false
	if len(existing) == 0 {
		if existing, err = p.createChunks(ctx, documentID, content, project); err != nil {
			return nil, err
		}
		created = true
	}
	if len(existing) == 0 {
		return nil, apperror.Newf(apperror.KindInput, "document produced no chunks: %s", doc.ID)
	}

	prepared := &PreparedDocument{
		Content:       content,
		ChunkIDs:      make([]uuid.UUID, 0, len(existing)),
		ChunkTexts:    make([]string, 0, len(existing)),
		ChunksCreated: created,
	}
	for _, c := range existing {
		prepared.ChunkIDs = append(prepared.ChunkIDs, c.ID)
		prepared.ChunkTexts = append(prepared.ChunkTexts, c.Text)
	}

	prepared.EmbeddingsGenerated = p.ensureEmbeddings(ctx, existing)
	return prepared, nil
}

// prepareManual takes inline text from source_metadata and chunks it in
// memory; nothing is persisted.
func (p *DocumentPreparer) prepareManual(job *ObjectExtractionJob, project *projects.Project) (*PreparedDocument, error) {
	content := ""
	if job.SourceMetadata != nil {
		if text, ok := job.SourceMetadata["text"].(string); ok && text != "" {
			content = text
		} else if text, ok := job.SourceMetadata["content"].(string); ok {
			content = text
		}
	}
	if content == "" {
		return nil, apperror.New(apperror.KindInput, "manual source requires text in source_metadata")
	}

	texts := textsplitter.Split(content, chunkingConfig(project))
	if len(texts) == 0 {
		return nil, apperror.New(apperror.KindInput, "manual source produced no chunks")
	}

	return &PreparedDocument{
		Content:    content,
		ChunkTexts: texts,
	}, nil
}

// createChunks splits and persists the document's chunks using the project's
// chunking configuration.
func (p *DocumentPreparer) createChunks(ctx context.Context, documentID uuid.UUID, content string, project *projects.Project) ([]*chunks.Chunk, error) {
	pieces := textsplitter.SplitWithMetadata(content, chunkingConfig(project))

	rows := make([]*chunks.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		meta := &chunks.ChunkMetadata{Strategy: "paragraph"}
		if start, ok := piece.Metadata["start_offset"].(int); ok {
			meta.StartOffset = start
			meta.EndOffset = start + len(piece.Text)
		}
		rows = append(rows, &chunks.Chunk{
			ID:         uuid.New(),
			DocumentID: documentID,
			ChunkIndex: i,
			Text:       piece.Text,
			Metadata:   meta,
		})
	}
	if err := p.chunks.CreateBatch(ctx, rows); err != nil {
		return nil, err
	}

	p.log.Info("created chunks for document",
		slog.String("document_id", documentID.String()),
		slog.Int("chunks", len(rows)),
	)

	// Re-read to pick up rows that survived the conflict-ignoring insert.
	return p.chunks.ListByDocument(ctx, documentID)
}

// ensureEmbeddings embeds chunks that lack one. Errors are non-fatal;
// extraction proceeds with whatever embeddings exist.
func (p *DocumentPreparer) ensureEmbeddings(ctx context.Context, existing []*chunks.Chunk) int {
	if p.embed == nil || !p.embed.Enabled() {
		return 0
	}

	var missing []*chunks.Chunk
	var texts []string
	for _, c := range existing {
		if !c.HasEmbedding() {
			missing = append(missing, c)
			texts = append(texts, c.Text)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	vectors, err := p.embed.EmbedDocuments(ctx, texts)
	if err != nil {
		p.log.Warn("failed to generate chunk embeddings", logger.Error(err))
		return 0
	}

	generated := 0
	for i, c := range missing {
		if i >= len(vectors) || len(vectors[i]) == 0 {
			continue
		}
		if err := p.chunks.UpdateEmbedding(ctx, c.ID, vectors[i]); err != nil {
			p.log.Warn("failed to store chunk embedding",
				slog.String("chunk_id", c.ID.String()),
				logger.Error(err),
			)
			continue
		}
		generated++
	}
	return generated
}

// chunkingConfig maps the project's chunking settings onto the splitter.
func chunkingConfig(project *projects.Project) textsplitter.Config {
	cfg := textsplitter.DefaultConfig()
	if project == nil || project.ChunkingConfig == nil {
		return cfg
	}
	if project.ChunkingConfig.MaxChunkSize != nil && *project.ChunkingConfig.MaxChunkSize > 0 {
		cfg.ChunkSize = *project.ChunkingConfig.MaxChunkSize
	}
	if project.ChunkingConfig.Overlap != nil && *project.ChunkingConfig.Overlap >= 0 {
		cfg.ChunkOverlap = *project.ChunkingConfig.Overlap
	}
	return cfg
}
