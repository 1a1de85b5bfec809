package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/emergent.strategy-sub002/pkg/logger"
)

// Module provides the notifications fx.Module.
var Module = fx.Module("notifications",
	fx.Provide(NewService),
)

// Service writes notifications for extraction job outcomes.
type Service struct {
	db  bun.IDB
	log *slog.Logger
}

// NewService creates a new notifications service.
func NewService(db *bun.DB, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With(logger.Scope("notifications")),
	}
}

// NotifyExtractionCompleted records a completion notification for the job's
// requester. Jobs without a subject produce no notification.
func (s *Service) NotifyExtractionCompleted(ctx context.Context, projectID string, subjectID *string, jobID string, createdCount, reviewCount int) {
	if subjectID == nil || *subjectID == "" {
		return
	}

	message := fmt.Sprintf("Extraction completed: %d objects created", createdCount)
	if reviewCount > 0 {
		message = fmt.Sprintf("%s, %d require review", message, reviewCount)
	}

	s.create(ctx, &Notification{
		ProjectID:           &projectID,
		UserID:              *subjectID,
		Title:               "Extraction completed",
		Message:             message,
		Type:                ptr(TypeExtractionCompleted),
		Severity:            SeverityInfo,
		RelatedResourceType: ptr("object_extraction_job"),
		RelatedResourceID:   &jobID,
		Details:             detailsJSON(map[string]any{"created_count": createdCount, "review_required_count": reviewCount}),
	})
}

// NotifyExtractionFailed records a failure notification for the job's
// requester, dispatched on every failure whether or not the job will be
// retried. Jobs without a subject produce no notification.
func (s *Service) NotifyExtractionFailed(ctx context.Context, projectID string, subjectID *string, jobID, errorMessage string, retryCount int, willRetry bool) {
	if subjectID == nil || *subjectID == "" {
		return
	}
	s.create(ctx, extractionFailedNotification(projectID, *subjectID, jobID, errorMessage, retryCount, willRetry))
}

// extractionFailedNotification builds the failure notification: the message
// carries the retry hint and the details carry the retry count and
// will-retry flag.
func extractionFailedNotification(projectID, subjectID, jobID, errorMessage string, retryCount int, willRetry bool) *Notification {
	message := fmt.Sprintf("Extraction failed: %s", errorMessage)
	if willRetry {
		message += " The job will be retried automatically."
	}

	return &Notification{
		ProjectID:           &projectID,
		UserID:              subjectID,
		Title:               "Extraction failed",
		Message:             message,
		Type:                ptr(TypeExtractionFailed),
		Severity:            SeverityError,
		RelatedResourceType: ptr("object_extraction_job"),
		RelatedResourceID:   &jobID,
		Details: detailsJSON(map[string]any{
			"error":       errorMessage,
			"retry_count": retryCount,
			"will_retry":  willRetry,
		}),
	}
}

// create inserts the notification. Notification failures never fail the job.
func (s *Service) create(ctx context.Context, n *Notification) {
	if _, err := s.db.NewInsert().Model(n).Exec(ctx); err != nil {
		s.log.Warn("failed to create notification",
			slog.String("user_id", n.UserID),
			logger.Error(err),
		)
	}
}

func detailsJSON(m map[string]any) json.RawMessage {
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return data
}

func ptr(s string) *string { return &s }
