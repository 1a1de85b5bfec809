package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// StructuredLogger persists step-level extraction logs. Logging failures are
// swallowed: a lost log row never fails a job.
type StructuredLogger struct {
	db  bun.IDB
	log *slog.Logger
}

// NewStructuredLogger creates a structured step logger.
func NewStructuredLogger(db *bun.DB, log *slog.Logger) *StructuredLogger {
	return &StructuredLogger{
		db:  db,
		log: log.With(logger.Scope("extraction.steplog")),
	}
}

// StepRecord describes one pipeline step for the structured log.
type StepRecord struct {
	JobID         string
	StepIndex     int
	OperationType string
	OperationName string
	Status        string
	Message       string
	InputData     JSON
	OutputData    JSON
	ErrorMessage  string
	ErrorDetails  JSON

	DurationMs        *int
	TokensUsed        *int
	EntityCount       *int
	RelationshipCount *int
}

// LogStep writes one extraction log row.
func (l *StructuredLogger) LogStep(ctx context.Context, rec StepRecord) {
	now := time.Now().UTC()
	row := &ObjectExtractionLog{
		ExtractionJobID:   rec.JobID,
		StartedAt:         now,
		StepIndex:         rec.StepIndex,
		OperationType:     rec.OperationType,
		Status:            rec.Status,
		InputData:         rec.InputData,
		OutputData:        rec.OutputData,
		ErrorDetails:      rec.ErrorDetails,
		DurationMs:        rec.DurationMs,
		TokensUsed:        rec.TokensUsed,
		EntityCount:       rec.EntityCount,
		RelationshipCount: rec.RelationshipCount,
	}
	if rec.OperationName != "" {
		row.OperationName = &rec.OperationName
	}
	if rec.Message != "" {
		row.Message = &rec.Message
	}
	if rec.ErrorMessage != "" {
		row.ErrorMessage = &rec.ErrorMessage
	}
	if rec.Status == LogStatusCompleted || rec.Status == LogStatusFailed {
		row.CompletedAt = &now
	}

	if _, err := l.db.NewInsert().Model(row).Exec(ctx); err != nil {
		l.log.Warn("failed to write extraction step log",
			slog.String("job_id", rec.JobID),
			slog.String("operation", rec.OperationType),
			logger.Error(err),
		)
	}
}

// GetJobLogs returns a job's step logs ordered by step index.
func (l *StructuredLogger) GetJobLogs(ctx context.Context, jobID string) ([]*ObjectExtractionLog, error) {
	var logs []*ObjectExtractionLog
	err := l.db.NewSelect().
		Model(&logs).
		Where("extraction_job_id = ?", jobID).
		OrderExpr("step_index ASC, started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// JobLogSummary aggregates a job's step logs.
type JobLogSummary struct {
	TotalSteps         int            `json:"total_steps"`
	FailedSteps        int            `json:"failed_steps"`
	TotalDurationMs    int            `json:"total_duration_ms"`
	TotalTokens        int            `json:"total_tokens"`
	TotalEntities      int            `json:"total_entities"`
	TotalRelationships int            `json:"total_relationships"`
	OperationCounts    map[string]int `json:"operation_counts"`
}

// GetJobLogSummary aggregates duration, token usage and per-operation counts
// across a job's step logs.
func (l *StructuredLogger) GetJobLogSummary(ctx context.Context, jobID string) (*JobLogSummary, error) {
	logs, err := l.GetJobLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return summarizeLogs(logs), nil
}

func summarizeLogs(logs []*ObjectExtractionLog) *JobLogSummary {
	summary := &JobLogSummary{OperationCounts: make(map[string]int)}
	for _, row := range logs {
		summary.TotalSteps++
		summary.OperationCounts[row.OperationType]++
		if row.Status == LogStatusFailed {
			summary.FailedSteps++
		}
		if row.DurationMs != nil {
			summary.TotalDurationMs += *row.DurationMs
		}
		if row.TokensUsed != nil {
			summary.TotalTokens += *row.TokensUsed
		}
		if row.EntityCount != nil {
			summary.TotalEntities += *row.EntityCount
		}
		if row.RelationshipCount != nil {
			summary.TotalRelationships += *row.RelationshipCount
		}
	}
	return summary
}
