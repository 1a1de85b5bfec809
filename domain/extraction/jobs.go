package extraction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/emergent.strategy-sub002/internal/config"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/apperror"
	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// orphanMarker is appended to error_message when startup recovery resets a
// running job. Recovery is idempotent: a message already carrying the marker
// is left untouched.
const orphanMarker = "Job was interrupted by server restart and has been reset to queued."

// JobStore durably queues extraction jobs and tracks their state.
type JobStore struct {
	db  bun.IDB
	cfg *config.Config
	log *slog.Logger
}

// NewJobStore creates a new job store.
func NewJobStore(db *bun.DB, cfg *config.Config, log *slog.Logger) *JobStore {
	return &JobStore{
		db:  db,
		cfg: cfg,
		log: log.With(logger.Scope("extraction.jobs")),
	}
}

// CreateJobOptions are the caller-supplied fields of a new job.
type CreateJobOptions struct {
	ProjectID        string
	DocumentID       *string
	SourceType       *string
	SourceID         *string
	SourceMetadata   JSON
	SubjectID        *string
	ExtractionConfig JSON
}

// CreateJob enqueues a new extraction job.
func (s *JobStore) CreateJob(ctx context.Context, opts CreateJobOptions) (*ObjectExtractionJob, error) {
	now := time.Now().UTC()

	sourceMetadata := opts.SourceMetadata
	if sourceMetadata == nil {
		sourceMetadata = JSON{}
	}
	extractionConfig := opts.ExtractionConfig
	if extractionConfig == nil {
		extractionConfig = JSON{}
	}

	job := &ObjectExtractionJob{
		ProjectID:        opts.ProjectID,
		DocumentID:       opts.DocumentID,
		Status:           JobStatusQueued,
		SourceType:       opts.SourceType,
		SourceID:         opts.SourceID,
		SourceMetadata:   sourceMetadata,
		SubjectID:        opts.SubjectID,
		ExtractionConfig: extractionConfig,
		MaxRetries:       s.cfg.Extraction.MaxRetries,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := s.db.NewInsert().Model(job).Returning("*").Exec(ctx); err != nil {
		return nil, fmt.Errorf("create extraction job: %w", err)
	}

	s.log.Info("created extraction job",
		slog.String("job_id", job.ID),
		slog.String("project_id", job.ProjectID),
	)
	return job, nil
}

// DequeueBatch atomically claims up to batchSize queued jobs, transitions them
// to running and returns them. FOR UPDATE SKIP LOCKED guarantees at-most-once
// hand-off across worker processes.
func (s *JobStore) DequeueBatch(ctx context.Context, batchSize int) ([]*ObjectExtractionJob, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.Extraction.WorkerBatchSize
	}

	var jobs []*ObjectExtractionJob
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(&jobs).
			Where("status = ?", JobStatusQueued).
			Order("created_at ASC").
			Limit(batchSize).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}

		now := time.Now().UTC()
		ids := make([]string, 0, len(jobs))
		for _, job := range jobs {
			job.Status = JobStatusRunning
			job.StartedAt = &now
			job.UpdatedAt = now
			ids = append(ids, job.ID)
		}

		_, err = tx.NewUpdate().
			Model((*ObjectExtractionJob)(nil)).
			Set("status = ?", JobStatusRunning).
			Set("started_at = ?", now).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Exec(ctx)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	return jobs, nil
}

// UpdateProgress records processed/total counts. Best-effort: concurrent
// writers race and last write wins.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, processed, total int) error {
	_, err := s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("processed_items = ?", processed).
		Set("total_items = ?", total).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// JobResults are the terminal outputs recorded on completion.
type JobResults struct {
	TotalItems           int
	SuccessfulItems      int
	RejectedItems        int
	ObjectsCreated       int
	RelationshipsCreated int
	ReviewRequiredCount  int
	CreatedObjects       JSONArray
	DiscoveredTypes      JSONArray
	DebugInfo            JSON
}

// MarkCompleted records results and transitions the job to completed or
// requires_review.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, results JobResults, finalStatus JobStatus) error {
	if finalStatus != JobStatusCompleted && finalStatus != JobStatusRequiresReview {
		return fmt.Errorf("invalid terminal status %q", finalStatus)
	}
	now := time.Now().UTC()

	createdObjects := results.CreatedObjects
	if createdObjects == nil {
		createdObjects = JSONArray{}
	}
	discoveredTypes := results.DiscoveredTypes
	if discoveredTypes == nil {
		discoveredTypes = JSONArray{}
	}

	_, err := s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("status = ?", finalStatus).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Set("total_items = ?", results.TotalItems).
		Set("processed_items = ?", results.TotalItems).
		Set("successful_items = ?", results.SuccessfulItems).
		Set("rejected_items = ?", results.RejectedItems).
		Set("objects_created = ?", results.ObjectsCreated).
		Set("relationships_created = ?", results.RelationshipsCreated).
		Set("review_required_count = ?", results.ReviewRequiredCount).
		Set("created_objects = ?", createdObjects).
		Set("discovered_types = ?", discoveredTypes).
		Set("debug_info = ?", results.DebugInfo).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	s.log.Info("extraction job finished",
		slog.String("job_id", jobID),
		slog.String("status", string(finalStatus)),
		slog.Int("objects_created", results.ObjectsCreated),
	)
	return nil
}

// MarkFailed sets the job to failed and increments its attempt count.
// Returns the attempt count and whether the job is eligible for a retry;
// re-enqueueing is the caller's decision, via RequeueForRetry. Retryable
// failures (rate-limited, all LLM calls failed) consume a retry attempt like
// any other failure.
func (s *JobStore) MarkFailed(ctx context.Context, jobID, message string, details JSON, debugInfo JSON, retryable bool) (int, bool, error) {
	job := new(ObjectExtractionJob)
	err := s.db.NewSelect().
		Model(job).
		Column("retry_count", "max_retries").
		Where("id = ?", jobID).
		Scan(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("get job for retry check: %w", err)
	}

	now := time.Now().UTC()
	attempts := job.RetryCount + 1
	willRetry := retryable && attempts < job.MaxRetries

	_, err = s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("status = ?", JobStatusFailed).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Set("error_message = ?", message).
		Set("error_details = ?", details).
		Set("debug_info = ?", debugInfo).
		Set("retry_count = ?", attempts).
		Where("id = ?", jobID).
		Exec(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("mark failed: %w", err)
	}

	s.log.Warn("extraction job failed",
		slog.String("job_id", jobID),
		slog.String("error", message),
		slog.Int("attempts", attempts),
		slog.Bool("will_retry", willRetry),
	)
	return attempts, willRetry, nil
}

// RequeueForRetry returns a failed job to the queue, keeping its attempt
// count and failure record.
func (s *JobStore) RequeueForRetry(ctx context.Context, jobID string) error {
	res, err := s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("status = ?", JobStatusQueued).
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", jobID).
		Where("status = ?", JobStatusFailed).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Newf(apperror.KindInput, "job %s is not failed and cannot be requeued", jobID)
	}

	s.log.Info("extraction job re-enqueued for retry", slog.String("job_id", jobID))
	return nil
}

// GetRetryCount returns the job's current attempt count.
func (s *JobStore) GetRetryCount(ctx context.Context, jobID string) (int, error) {
	job := new(ObjectExtractionJob)
	err := s.db.NewSelect().
		Model(job).
		Column("retry_count").
		Where("id = ?", jobID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.Newf(apperror.KindInput, "job not found: %s", jobID)
		}
		return 0, fmt.Errorf("get retry count: %w", err)
	}
	return job.RetryCount, nil
}

// FindByID returns a job by id, or nil when absent.
func (s *JobStore) FindByID(ctx context.Context, jobID string) (*ObjectExtractionJob, error) {
	job := new(ObjectExtractionJob)
	err := s.db.NewSelect().
		Model(job).
		Where("id = ?", jobID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find job %s: %w", jobID, err)
	}
	return job, nil
}

// FindByProject lists a project's jobs, newest first, optionally filtered by
// status.
func (s *JobStore) FindByProject(ctx context.Context, projectID string, status *JobStatus, limit, offset int) ([]*ObjectExtractionJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var jobs []*ObjectExtractionJob
	q := s.db.NewSelect().
		Model(&jobs).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list jobs for project %s: %w", projectID, err)
	}
	return jobs, nil
}

// CancelJob fails a job that has not started yet. Running jobs cannot be
// cancelled; the worker owns them until they reach a terminal state.
func (s *JobStore) CancelJob(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("status = ?", JobStatusFailed).
		Set("error_message = ?", "Job cancelled before processing.").
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", jobID).
		Where("status = ?", JobStatusQueued).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Newf(apperror.KindInput, "job %s is not queued and cannot be cancelled", jobID)
	}
	return nil
}

// Stats returns per-status job counts for a project.
func (s *JobStore) Stats(ctx context.Context, projectID string) (map[JobStatus]int, error) {
	var rows []struct {
		Status JobStatus `bun:"status"`
		Count  int       `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*ObjectExtractionJob)(nil)).
		ColumnExpr("status, count(*) AS count").
		Where("project_id = ?", projectID).
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("job stats for project %s: %w", projectID, err)
	}

	stats := make(map[JobStatus]int, len(rows))
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

// BulkRetryFailed re-enqueues a project's failed jobs with a fresh retry
// budget. Returns the number of jobs re-enqueued.
func (s *JobStore) BulkRetryFailed(ctx context.Context, projectID string) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model((*ObjectExtractionJob)(nil)).
		Set("status = ?", JobStatusQueued).
		Set("retry_count = 0").
		Set("error_message = NULL").
		Set("error_details = NULL").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("updated_at = ?", now).
		Where("project_id = ?", projectID).
		Where("status = ?", JobStatusFailed).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("bulk retry failed jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("re-enqueued failed extraction jobs",
			slog.String("project_id", projectID),
			slog.Int64("count", n),
		)
	}
	return int(n), nil
}

// DeleteTerminal removes completed, requires_review and failed jobs older
// than the given age. Step logs cascade with the job rows.
func (s *JobStore) DeleteTerminal(ctx context.Context, projectID string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.NewDelete().
		Model((*ObjectExtractionJob)(nil)).
		Where("project_id = ?", projectID).
		Where("status IN (?)", bun.In([]JobStatus{JobStatusCompleted, JobStatusRequiresReview, JobStatusFailed})).
		Where("completed_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete terminal jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// appendOrphanMarker returns the error message with the interruption marker
// appended once. Messages already carrying the marker pass through unchanged,
// so running recovery twice never duplicates it.
func appendOrphanMarker(message string) string {
	switch {
	case message == "":
		return orphanMarker
	case strings.Contains(message, orphanMarker):
		return message
	default:
		return message + " " + orphanMarker
	}
}

// RecoverOrphans resets jobs stuck in running whose updated_at is older than
// the configured threshold, leaving an idempotent marker in error_message.
// Runs at worker startup; jobs abandoned by a dead process become claimable
// again.
func (s *JobStore) RecoverOrphans(ctx context.Context) (int, error) {
	threshold := time.Now().UTC().Add(-time.Duration(s.cfg.Extraction.OrphanThresholdMinutes) * time.Minute)
	now := time.Now().UTC()

	recovered := 0
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		var stale []struct {
			ID           string  `bun:"id"`
			ErrorMessage *string `bun:"error_message"`
		}
		err := tx.NewSelect().
			Model((*ObjectExtractionJob)(nil)).
			Column("id", "error_message").
			Where("status = ?", JobStatusRunning).
			Where("updated_at < ?", threshold).
			For("UPDATE SKIP LOCKED").
			Scan(ctx, &stale)
		if err != nil {
			return err
		}

		for _, job := range stale {
			message := ""
			if job.ErrorMessage != nil {
				message = *job.ErrorMessage
			}
			_, err := tx.NewUpdate().
				Model((*ObjectExtractionJob)(nil)).
				Set("status = ?", JobStatusQueued).
				Set("started_at = NULL").
				Set("updated_at = ?", now).
				Set("error_message = ?", appendOrphanMarker(message)).
				Where("id = ?", job.ID).
				Exec(ctx)
			if err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("recover orphaned jobs: %w", err)
	}

	if recovered > 0 {
		s.log.Warn("recovered orphaned extraction jobs",
			slog.Int("count", recovered),
			slog.Int("threshold_minutes", s.cfg.Extraction.OrphanThresholdMinutes),
		)
	}
	return recovered, nil
}
