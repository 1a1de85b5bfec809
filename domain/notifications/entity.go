// Package notifications writes user-facing notifications for terminal job
// transitions.
package notifications

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Notification represents a notification in the kb.notifications table.
type Notification struct {
	bun.BaseModel `bun:"table:kb.notifications,alias:n"`

	ID                  string          `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID           *string         `bun:"project_id,type:uuid" json:"projectId,omitempty"`
	UserID              string          `bun:"user_id,notnull,type:uuid" json:"userId"`
	Title               string          `bun:"title,notnull" json:"title"`
	Message             string          `bun:"message,notnull" json:"message"`
	Type                *string         `bun:"type" json:"type,omitempty"`
	Severity            string          `bun:"severity,notnull,default:'info'" json:"severity"`
	RelatedResourceType *string         `bun:"related_resource_type" json:"relatedResourceType,omitempty"`
	RelatedResourceID   *string         `bun:"related_resource_id,type:uuid" json:"relatedResourceId,omitempty"`
	Read                bool            `bun:"read,notnull,default:false" json:"read"`
	Details             json.RawMessage `bun:"details,type:jsonb" json:"details,omitempty"`
	CreatedAt           time.Time       `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// Severity levels.
const (
	SeverityInfo  = "info"
	SeverityError = "error"
)

// Notification types emitted by the extraction pipeline.
const (
	TypeExtractionCompleted = "extraction_completed"
	TypeExtractionFailed    = "extraction_failed"
)
