package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/domain/chunks"
	"github.com/emergent-company/emergent.strategy-sub002/domain/documents"
	"github.com/emergent-company/emergent.strategy-sub002/domain/graph"
	"github.com/emergent-company/emergent.strategy-sub002/domain/notifications"
	"github.com/emergent-company/emergent.strategy-sub002/domain/projects"
	"github.com/emergent-company/emergent.strategy-sub002/domain/templatepacks"
	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/internal/database"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/embeddings"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/llm"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/tracing"
)

// chunkLinkWeight is the provenance weight for object-to-chunk links created
// by extraction.
const chunkLinkWeight = 0.8

// CoordinatorParams are the coordinator's dependencies.
type CoordinatorParams struct {
	fx.In

	DB            *bun.DB
	Config        *config.Config
	Jobs          *JobStore
	Projects      *projects.Repository
	Documents     *documents.Repository
	Chunks        *chunks.Repository
	Graph         *graph.Repository
	Packs         *templatepacks.Service
	Orchestrator  *Orchestrator
	Limiter       *RateLimiter
	Verifier      *VerifierService
	Embeddings    *embeddings.Service
	Steps         *StructuredLogger
	Notifications *notifications.Service
	Log           *slog.Logger
}

// JobCoordinator polls the queue and drives claimed jobs through the
// extraction pipeline. One coordinator per process; concurrent processes
// coordinate through SKIP LOCKED dequeues.
type JobCoordinator struct {
	db       *bun.DB
	cfg      *config.Config
	jobs     *JobStore
	projects *projects.Repository
	docs     *documents.Repository
	chunks   *chunks.Repository
	graph    *graph.Repository
	packs    *templatepacks.Service
	orch     *Orchestrator
	limiter  *RateLimiter
	verifier *VerifierService
	embed    *embeddings.Service
	steps    *StructuredLogger
	notify   *notifications.Service
	log      *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// WorkerMetrics are process-local counters since worker start.
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Metrics returns a snapshot of the process-local job counters.
func (c *JobCoordinator) Metrics() WorkerMetrics {
	return WorkerMetrics{
		Processed: c.processed.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
}

// NewJobCoordinator creates the coordinator.
func NewJobCoordinator(p CoordinatorParams) *JobCoordinator {
	return &JobCoordinator{
		db:       p.DB,
		cfg:      p.Config,
		jobs:     p.Jobs,
		projects: p.Projects,
		docs:     p.Documents,
		chunks:   p.Chunks,
		graph:    p.Graph,
		packs:    p.Packs,
		orch:     p.Orchestrator,
		limiter:  p.Limiter,
		verifier: p.Verifier,
		embed:    p.Embeddings,
		steps:    p.Steps,
		notify:   p.Notifications,
		log:      p.Log.With(logger.Scope("extraction.worker")),
	}
}

// Start recovers orphaned jobs and launches the polling loop.
func (c *JobCoordinator) Start(ctx context.Context) error {
	if _, err := c.jobs.RecoverOrphans(ctx); err != nil {
		// Startup proceeds; orphans are retried on the next restart.
		c.log.Error("orphan recovery failed", logger.Error(err))
	}

	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.run()

	c.log.Info("extraction worker started",
		slog.Duration("poll_interval", c.cfg.Extraction.PollInterval()),
		slog.Int("batch_size", c.cfg.Extraction.WorkerBatchSize),
	)
	return nil
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (c *JobCoordinator) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	close(c.stop)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.log.Info("extraction worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *JobCoordinator) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Extraction.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.processBatch(context.Background())
		}
	}
}

// processBatch claims a batch of queued jobs and processes them sequentially.
func (c *JobCoordinator) processBatch(ctx context.Context) {
	jobs, err := c.jobs.DequeueBatch(ctx, c.cfg.Extraction.WorkerBatchSize)
	if err != nil {
		c.log.Error("failed to dequeue jobs", logger.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	c.log.Info("claimed extraction jobs", slog.Int("count", len(jobs)))
	for _, job := range jobs {
		select {
		case <-c.stop:
			// The orphan recovery threshold reclaims jobs left running.
			return
		default:
		}
		c.processJob(ctx, job)
	}
}

// jobRunReport accumulates everything the terminal update needs. The pipeline
// fills it in as stages complete, so failures still carry a partial snapshot.
type jobRunReport struct {
	thresholds  Thresholds
	usage       *llm.Usage
	raw         *llm.RawResponse
	entityCount int
	types       []string
	outcomes    *EntityOutcomes
	relStats    RelationshipStats
	discovered  JSONArray
	finalStatus JobStatus
	results     JobResults
}

// processJob runs one job through the pipeline and records the terminal state.
func (c *JobCoordinator) processJob(ctx context.Context, job *ObjectExtractionJob) {
	ctx, span := tracing.Start(ctx, "extraction.process_job",
		attribute.String("job.id", job.ID),
		attribute.String("project.id", job.ProjectID),
	)
	defer span.End()

	started := time.Now().UTC()
	timeline := NewTimeline()
	steps := &stepCounter{jobID: job.ID, logger: c.steps}

	c.processed.Add(1)

	report := &jobRunReport{}
	err := c.runPipeline(ctx, job, timeline, steps, report)
	if err != nil {
		c.failed.Add(1)
	} else {
		c.succeeded.Add(1)
	}

	if err != nil {
		timeline.Append("job_failed", TimelineError, err.Error(), nil)
	} else {
		timeline.Append("job_completed", TimelineSuccess, "", map[string]any{
			"status":          string(report.finalStatus),
			"objects_created": report.results.ObjectsCreated,
		})
	}

	completed := time.Now().UTC()
	debug := c.debugInfo(job, timeline, report, started, completed, err)

	if err != nil {
		c.finishFailed(ctx, job, timeline, steps, debug, err)
		return
	}

	report.results.DebugInfo = debug
	if markErr := c.jobs.MarkCompleted(ctx, job.ID, report.results, report.finalStatus); markErr != nil {
		c.log.Error("failed to record job completion",
			slog.String("job_id", job.ID),
			logger.Error(markErr),
		)
		return
	}

	c.notify.NotifyExtractionCompleted(ctx, job.ProjectID, job.SubjectID, job.ID,
		report.results.ObjectsCreated, report.results.ReviewRequiredCount)
}

// finishFailed records a failed run and its retry decision.
func (c *JobCoordinator) finishFailed(ctx context.Context, job *ObjectExtractionJob, timeline *Timeline, steps *stepCounter, debug JSON, runErr error) {
	message := runErr.Error()
	var details JSON
	var appErr *apperror.Error
	if errors.As(runErr, &appErr) {
		message = appErr.Message
		details = JSON{"kind": string(appErr.Kind)}
		if appErr.Internal != nil {
			details["cause"] = appErr.Internal.Error()
		}
		for k, v := range appErr.Details {
			details[k] = v
		}
	}

	steps.log(ctx, StepRecord{
		OperationType: LogOpError,
		Status:        LogStatusFailed,
		ErrorMessage:  message,
		ErrorDetails:  details,
	})

	attempts, willRetry, err := c.jobs.MarkFailed(ctx, job.ID, message, details, debug, apperror.IsRetryable(runErr))
	if err != nil {
		c.log.Error("failed to record job failure",
			slog.String("job_id", job.ID),
			logger.Error(err),
		)
		return
	}

	// Every failure notifies the requester; the retry hint rides along.
	c.notify.NotifyExtractionFailed(ctx, job.ProjectID, job.SubjectID, job.ID, message, attempts, willRetry)

	// Re-enqueueing is a separate transition so the failure itself is always
	// observable as failed.
	if willRetry {
		if err := c.jobs.RequeueForRetry(ctx, job.ID); err != nil {
			c.log.Error("failed to requeue job for retry",
				slog.String("job_id", job.ID),
				logger.Error(err),
			)
		}
	}
}

// runPipeline executes the extraction stages for one job. Returns an error
// only for job-fatal failures; stage-local problems degrade and continue.
func (c *JobCoordinator) runPipeline(ctx context.Context, job *ObjectExtractionJob, timeline *Timeline, steps *stepCounter, report *jobRunReport) error {
	overrides := job.Overrides()
	mode := PipelineModeSinglePass
	if overrides.PipelineMode != nil && *overrides.PipelineMode != "" {
		mode = *overrides.PipelineMode
	}

	switch job.SourceTypeOrDefault() {
	case SourceTypeDocument, SourceTypeManual:
	default:
		return apperror.Newf(apperror.KindInput, "unsupported source type: %s", job.SourceTypeOrDefault())
	}

	project, err := c.projects.GetByID(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	projectID, err := uuid.Parse(project.ID)
	if err != nil {
		return apperror.Newf(apperror.KindTenant, "malformed project id: %s", project.ID)
	}
	organizationID, err := uuid.Parse(project.OrganizationID)
	if err != nil {
		return apperror.Newf(apperror.KindTenant, "malformed organization id: %s", project.OrganizationID)
	}

	scope, err := database.EnterTenantScope(ctx, c.db, project.OrganizationID, project.ID)
	if err != nil {
		return apperror.New(apperror.KindTenant, "failed to establish tenant scope").WithInternal(err)
	}
	defer scope.Release(ctx)

	sdb := scope.DB()
	docs := c.docs.WithDB(sdb)
	chunkRepo := c.chunks.WithDB(sdb)
	graphRepo := c.graph.WithDB(sdb)
	packs := c.packs.WithDB(sdb)

	report.thresholds = EffectiveThresholds(overrides, project, c.cfg)

	// Document preparation: source text, chunks, chunk embeddings.
	endPrep := timeline.Begin("document_preparation")
	preparer := NewDocumentPreparer(docs, chunkRepo, c.embed, c.log)
	prepared, err := preparer.Prepare(ctx, job, project)
	if err != nil {
		endPrep(TimelineError, err.Error(), nil)
		return err
	}
	endPrep(TimelineSuccess, "", map[string]any{
		"chunks":               len(prepared.ChunkTexts),
		"chunks_created":       prepared.ChunksCreated,
		"embeddings_generated": prepared.EmbeddingsGenerated,
	})
	steps.log(ctx, StepRecord{
		OperationType: LogOpDocumentPreparation,
		Status:        LogStatusCompleted,
		OutputData:    JSON{"chunks": len(prepared.ChunkTexts), "content_chars": len(prepared.Content)},
	})

	// Schema resolution: merged packs, allowed types, base prompt.
	endSchemas := timeline.Begin("schema_resolution")
	schemas, err := packs.GetProjectSchemas(ctx, job.ProjectID)
	if err != nil {
		endSchemas(TimelineError, err.Error(), nil)
		return err
	}
	if len(schemas.ObjectSchemas) == 0 {
		endSchemas(TimelineError, "no object schemas", nil)
		return apperror.New(apperror.KindConfig, "project has no object type schemas; install a template pack")
	}
	basePrompt := ResolveBasePrompt(project, packs.GetBasePrompt(ctx))
	allowedTypes := ResolveAllowedTypes(&overrides, project, schemas)
	endSchemas(TimelineSuccess, "", map[string]any{
		"object_types":       len(schemas.ObjectSchemas),
		"relationship_types": len(schemas.RelationshipSchemas),
		"allowed_types":      allowedTypes,
	})
	steps.log(ctx, StepRecord{
		OperationType: LogOpSchemaResolution,
		Status:        LogStatusCompleted,
		OutputData:    JSON{"object_types": len(schemas.ObjectSchemas), "allowed_types": allowedTypes},
	})

	// Existing-entity context. Non-fatal throughout.
	similarity := resolveSimilarityThreshold(&overrides, project, c.cfg)
	endContext := timeline.Begin("context_loading")
	loader := NewContextLoader(graphRepo, c.embed, c.log)
	existing := loader.Load(ctx, projectID, prepared.ChunkTexts, allowedTypes,
		c.cfg.Extraction.ContextEntityLimit, similarity)
	endContext(TimelineSuccess, "", map[string]any{"entities": len(existing)})
	steps.log(ctx, StepRecord{
		OperationType: LogOpContextLoading,
		Status:        LogStatusCompleted,
		OutputData:    JSON{"entities": len(existing)},
	})

	tags, err := graphRepo.GetDistinctTags(ctx, projectID)
	if err != nil {
		c.log.Warn("failed to load available tags", logger.Error(err))
		tags = nil
	}

	opts := c.orch.Options(ExtractionInputs{
		Job:        job,
		Overrides:  &overrides,
		Project:    project,
		Schemas:    schemas,
		BasePrompt: basePrompt,
		Existing:   existing,
		ChunkTexts: prepared.ChunkTexts,
		Tags:       tags,
		TraceID:    traceIDFrom(ctx),
	})

	// Token budget gate.
	estimate := EstimateTokens(len(prepared.Content), c.orch.PromptOverhead(basePrompt, opts))
	if err := c.reserveTokenBudget(ctx, timeline, estimate); err != nil {
		return err
	}

	// Model call.
	endLLM := timeline.Begin("llm_extraction")
	result, err := c.orch.Extract(ctx, prepared.Content, basePrompt, opts)
	if err != nil {
		endLLM(TimelineError, err.Error(), nil)
		steps.log(ctx, StepRecord{
			OperationType: LogOpLLMCall,
			Status:        LogStatusFailed,
			ErrorMessage:  err.Error(),
		})
		return err
	}
	report.usage = result.Usage
	report.raw = result.RawResponse
	report.entityCount = len(result.Entities)
	report.types = entityTypes(result.Entities)
	report.discovered = toJSONArray(result.DiscoveredTypes)
	if result.Usage != nil {
		c.limiter.ReportActualUsage(estimate, result.Usage.TotalTokens)
	}
	endLLM(TimelineSuccess, "", map[string]any{
		"entities":      len(result.Entities),
		"relationships": len(result.Relationships),
		"failed_calls":  result.FailedCalls(),
	})
	llmEntities := len(result.Entities)
	llmRels := len(result.Relationships)
	rec := StepRecord{
		OperationType:     LogOpLLMCall,
		Status:            LogStatusCompleted,
		EntityCount:       &llmEntities,
		RelationshipCount: &llmRels,
	}
	if result.Usage != nil {
		rec.TokensUsed = &result.Usage.TotalTokens
	}
	steps.log(ctx, rec)

	// Post-hoc verification. Non-fatal; preverified jobs skip it.
	var vmap VerificationMap
	if c.verifier.Enabled() && mode != PipelineModePreverified && len(result.Entities) > 0 {
		endVerify := timeline.Begin("verification")
		resp, verr := c.verifier.VerifyBatch(ctx, VerifyBatchRequest{
			SourceText: prepared.Content,
			Entities:   verifyEntities(result.Entities),
			JobID:      job.ID,
		})
		if verr != nil {
			endVerify(TimelineWarning, verr.Error(), nil)
			c.log.Warn("verification failed, proceeding without adjustments",
				slog.String("job_id", job.ID),
				logger.Error(verr),
			)
			steps.log(ctx, StepRecord{
				OperationType: LogOpVerification,
				Status:        LogStatusFailed,
				ErrorMessage:  verr.Error(),
			})
		} else {
			vmap = NewVerificationMap(resp)
			endVerify(TimelineSuccess, fmtVerifierSummary(resp), nil)
			steps.log(ctx, StepRecord{
				OperationType: LogOpVerification,
				Status:        LogStatusCompleted,
				Message:       fmtVerifierSummary(resp),
			})
		}
	}

	// Entity persistence: score, gate, link, write.
	names := NewNameMap()
	linker := NewEntityLinker(graphRepo, c.embed,
		resolveLinkingStrategy(&overrides, project, c.cfg), similarity)
	persister := NewEntityPersister(EntityPersisterParams{
		Store:          graphRepo,
		Linker:         linker,
		Names:          names,
		Embed:          c.embed,
		Thresholds:     report.thresholds,
		PipelineMode:   mode,
		ProjectID:      projectID,
		OrganizationID: organizationID,
		JobID:          job.ID,
		SourceID:       job.SourceID,
	}, c.log)

	endEntities := timeline.Begin("object_creation")
	total := len(result.Entities)
	outcomes := persister.Persist(ctx, result.Entities, schemas.ObjectSchemas, vmap,
		func(processed, totalItems int) {
			if !shouldLogProgress(processed, totalItems) {
				return
			}
			if err := c.jobs.UpdateProgress(ctx, job.ID, processed, totalItems); err != nil {
				c.log.Warn("failed to update progress", logger.Error(err))
			}
			timeline.Append("progress", TimelineInfo, progressMessage(processed, totalItems), map[string]any{
				"processed": processed,
				"total":     totalItems,
			})
		})
	report.outcomes = outcomes
	endEntities(TimelineSuccess, "", map[string]any{
		"created":  outcomes.Created,
		"merged":   outcomes.Merged,
		"skipped":  outcomes.Skipped,
		"rejected": outcomes.Rejected,
		"failed":   outcomes.Failed,
	})
	created := outcomes.Created
	steps.log(ctx, StepRecord{
		OperationType: LogOpObjectCreation,
		Status:        LogStatusCompleted,
		EntityCount:   &created,
		OutputData: JSON{
			"created": outcomes.Created, "merged": outcomes.Merged,
			"skipped": outcomes.Skipped, "rejected": outcomes.Rejected,
		},
	})

	// Relationships, resolved against the batch map and the graph.
	endRels := timeline.Begin("relationship_creation")
	writer := NewRelationshipWriter(graphRepo, names, projectID, schemas.RelationshipSchemas, c.log)
	relStats := writer.Persist(ctx, projectID, job.ID, result.Relationships)
	report.relStats = relStats
	endRels(TimelineSuccess, "", map[string]any{
		"created": relStats.Created,
		"skipped": relStats.Skipped,
		"failed":  relStats.Failed,
	})
	relCreated := relStats.Created
	steps.log(ctx, StepRecord{
		OperationType:     LogOpRelationshipCreation,
		Status:            LogStatusCompleted,
		RelationshipCount: &relCreated,
		OutputData:        JSON{"created": relStats.Created, "skipped": relStats.Skipped, "failed": relStats.Failed},
	})

	// Provenance links from created objects back to the source chunks.
	c.linkChunks(ctx, graphRepo, job, outcomes.CreatedIDs, prepared.ChunkIDs)

	report.finalStatus, report.results = finalizeRun(total, outcomes, relStats, report.discovered)
	return nil
}

// reserveTokenBudget gates the LLM call on the token budget. Refusal within
// the bounded wait records a rate_limit warning and fails the job retryable.
func (c *JobCoordinator) reserveTokenBudget(ctx context.Context, timeline *Timeline, estimate int) error {
	if c.limiter.WaitForCapacity(ctx, estimate, c.cfg.Extraction.RateLimitWait()) {
		return nil
	}
	timeline.Append("rate_limit", TimelineWarning, "token budget exhausted", map[string]any{
		"estimated_tokens": estimate,
	})
	return apperror.Newf(apperror.KindRateLimited,
		"no token capacity for %d estimated tokens within %s", estimate, c.cfg.Extraction.RateLimitWait())
}

// finalizeRun derives the terminal status and result counters from the stage
// outcomes. Any review-band object escalates the whole job to requires_review.
func finalizeRun(total int, outcomes *EntityOutcomes, relStats RelationshipStats, discovered JSONArray) (JobStatus, JobResults) {
	status := JobStatusCompleted
	if outcomes.ReviewRequired > 0 {
		status = JobStatusRequiresReview
	}
	return status, JobResults{
		TotalItems:           total,
		SuccessfulItems:      outcomes.Successful(),
		RejectedItems:        outcomes.Rejected,
		ObjectsCreated:       outcomes.Created,
		RelationshipsCreated: relStats.Created,
		ReviewRequiredCount:  outcomes.ReviewRequired,
		CreatedObjects:       outcomes.CreatedObjects,
		DiscoveredTypes:      discovered,
	}
}

// progressMessage is the timeline message for entity persistence progress.
func progressMessage(processed, total int) string {
	return fmt.Sprintf("[PROGRESS] %d/%d entities", processed, total)
}

// linkChunks writes provenance edges from every created object to every source
// chunk. Non-fatal; manual sources have no persisted chunks to link.
func (c *JobCoordinator) linkChunks(ctx context.Context, graphRepo *graph.Repository, job *ObjectExtractionJob, objectIDs, chunkIDs []uuid.UUID) {
	if len(objectIDs) == 0 || len(chunkIDs) == 0 {
		return
	}

	jobID, err := uuid.Parse(job.ID)
	if err != nil {
		return
	}

	linked := 0
	for _, objectID := range objectIDs {
		for _, chunkID := range chunkIDs {
			link := &graph.ObjectChunkLink{
				ObjectID: objectID,
				ChunkID:  chunkID,
				Weight:   chunkLinkWeight,
				JobID:    &jobID,
			}
			if err := graphRepo.LinkObjectToChunk(ctx, link); err != nil {
				c.log.Warn("failed to link object to chunk", logger.Error(err))
				continue
			}
			linked++
		}
	}
	c.log.Debug("linked objects to chunks",
		slog.String("job_id", job.ID),
		slog.Int("links", linked),
	)
}

// debugInfo assembles the job's debug snapshot. Always present on terminal
// jobs, success or failure.
func (c *JobCoordinator) debugInfo(job *ObjectExtractionJob, timeline *Timeline, report *jobRunReport, started, completed time.Time, runErr error) JSON {
	info := JSON{
		"timeline":         timeline.AsJSON(),
		"provider":         c.orch.ProviderName(),
		"job_id":           job.ID,
		"project_id":       job.ProjectID,
		"job_started_at":   started.Format(time.RFC3339Nano),
		"job_completed_at": completed.Format(time.RFC3339Nano),
		"job_duration_ms":  completed.Sub(started).Milliseconds(),
		"total_entities":   report.entityCount,
		"types_processed":  report.types,
	}

	if report.thresholds.Sources != nil {
		info["confidence_thresholds"] = map[string]any{
			"min":     report.thresholds.Min,
			"review":  report.thresholds.Review,
			"auto":    report.thresholds.Auto,
			"sources": report.thresholds.Sources,
			"interpretation": map[string]string{
				"rejected": "confidence < min",
				"draft":    "min <= confidence < auto",
				"accepted": "confidence >= auto",
			},
		}
	}
	if report.usage != nil {
		info["usage"] = report.usage
	}
	if report.raw != nil {
		info["raw_response"] = report.raw
	}
	if report.outcomes != nil {
		info["entity_outcomes"] = report.outcomes.PerEntity
		info["created_object_count"] = report.outcomes.Created
		info["rejected_count"] = report.outcomes.Rejected
		info["review_required_count"] = report.outcomes.ReviewRequired
	}
	if len(report.relStats.Details) > 0 {
		info["relationship_details"] = report.relStats.Details
	}
	if runErr != nil {
		info["error_message"] = runErr.Error()
	}
	return info
}

// shouldLogProgress limits progress writes to the first item, the last item,
// and every 10% boundary crossed in between.
func shouldLogProgress(processed, total int) bool {
	if total <= 0 || processed <= 0 {
		return false
	}
	if processed == 1 || processed == total {
		return true
	}
	return (processed*10)/total != ((processed-1)*10)/total
}

// resolveLinkingStrategy applies the job > project > server precedence.
func resolveLinkingStrategy(overrides *JobOverrides, project *projects.Project, cfg *config.Config) string {
	if overrides != nil && overrides.LinkingStrategy != nil && *overrides.LinkingStrategy != "" {
		return *overrides.LinkingStrategy
	}
	if project != nil && project.ExtractionConfig != nil &&
		project.ExtractionConfig.LinkingStrategy != nil && *project.ExtractionConfig.LinkingStrategy != "" {
		return *project.ExtractionConfig.LinkingStrategy
	}
	return cfg.Extraction.EntityLinkingStrategy
}

// resolveSimilarityThreshold applies the job > project > server precedence.
func resolveSimilarityThreshold(overrides *JobOverrides, project *projects.Project, cfg *config.Config) float64 {
	if overrides != nil && overrides.SimilarityThreshold != nil && *overrides.SimilarityThreshold > 0 {
		return *overrides.SimilarityThreshold
	}
	if project != nil && project.ExtractionConfig != nil &&
		project.ExtractionConfig.SimilarityThreshold != nil && *project.ExtractionConfig.SimilarityThreshold > 0 {
		return *project.ExtractionConfig.SimilarityThreshold
	}
	return cfg.Extraction.EntitySimilarityThreshold
}

// entityTypes returns the distinct candidate types in first-seen order.
func entityTypes(entities []llm.CandidateEntity) []string {
	seen := make(map[string]bool)
	var types []string
	for _, e := range entities {
		if e.TypeName == "" || seen[e.TypeName] {
			continue
		}
		seen[e.TypeName] = true
		types = append(types, e.TypeName)
	}
	return types
}

func toJSONArray(values []string) JSONArray {
	out := make(JSONArray, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

// traceIDFrom extracts the active trace id for LLM call correlation.
func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// stepCounter assigns monotonically increasing step indexes to a job's
// structured log rows.
type stepCounter struct {
	jobID  string
	logger *StructuredLogger
	index  int
}

func (s *stepCounter) log(ctx context.Context, rec StepRecord) {
	rec.JobID = s.jobID
	rec.StepIndex = s.index
	s.index++
	s.logger.LogStep(ctx, rec)
}
