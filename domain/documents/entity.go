// Package documents loads source document content for extraction.
package documents

import (
	"time"

	"github.com/uptrace/bun"
)

// Document represents a document in the kb.documents table. Only the columns
// the extraction pipeline reads are mapped.
type Document struct {
	bun.BaseModel `bun:"table:kb.documents,alias:d"`

	ID        string `bun:"id,pk,type:uuid" json:"id"`
	ProjectID string `bun:"project_id,notnull,type:uuid" json:"projectId"`

	Filename  *string `bun:"filename" json:"filename,omitempty"`
	SourceURL *string `bun:"source_url" json:"sourceUrl,omitempty"`
	MimeType  *string `bun:"mime_type" json:"mimeType,omitempty"`

	Content     *string `bun:"content" json:"content,omitempty"`
	ContentHash *string `bun:"content_hash" json:"contentHash,omitempty"`

	Metadata map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// Title returns a human-readable label, preferring the filename.
func (d *Document) Title() string {
	if d.Filename != nil && *d.Filename != "" {
		return *d.Filename
	}
	if d.SourceURL != nil && *d.SourceURL != "" {
		return *d.SourceURL
	}
	return d.ID
}
