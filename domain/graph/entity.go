// Package graph persists tenant-scoped knowledge graph objects,
// relationships, and chunk provenance links.
package graph

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Object statuses.
const (
	// StatusAccepted marks an object written above the auto-accept threshold.
	StatusAccepted = "accepted"
	// StatusDraft marks an object in the review band, pending human review.
	StatusDraft = "draft"
)

// LabelRequiresReview flags review-band objects for reviewer queues.
const LabelRequiresReview = "requires_review"

// GraphObject represents a knowledge graph node in kb.graph_objects.
type GraphObject struct {
	bun.BaseModel `bun:"table:kb.graph_objects,alias:go"`

	ID             uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID `bun:"organization_id,type:uuid,notnull" json:"organizationId"`
	ProjectID      uuid.UUID `bun:"project_id,type:uuid,notnull" json:"projectId"`

	Type   string  `bun:"type,notnull" json:"type"`
	Key    *string `bun:"key" json:"key,omitempty"`
	Status string  `bun:"status,notnull,default:'accepted'" json:"status"`

	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`
	Labels     []string       `bun:"labels,array,notnull,default:'{}'" json:"labels"`

	CreatedAt time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
	DeletedAt *time.Time `bun:"deleted_at" json:"deletedAt,omitempty"`

	// Populated by vector search queries only.
	Distance float64 `bun:"distance,scanonly" json:"distance,omitempty"`
}

// Name returns the object's name property, if present.
func (o *GraphObject) Name() string {
	if o.Properties == nil {
		return ""
	}
	if name, ok := o.Properties["name"].(string); ok {
		return name
	}
	return ""
}

// HasLabel reports whether the object carries the given label.
func (o *GraphObject) HasLabel(label string) bool {
	for _, l := range o.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// GraphRelationship represents a directed typed edge between two objects in
// the same project, in kb.graph_relationships.
// (project_id, type, src_id, dst_id) is unique among live rows.
type GraphRelationship struct {
	bun.BaseModel `bun:"table:kb.graph_relationships,alias:gr"`

	ID        uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ProjectID uuid.UUID `bun:"project_id,type:uuid,notnull" json:"projectId"`

	Type  string    `bun:"type,notnull" json:"type"`
	SrcID uuid.UUID `bun:"src_id,type:uuid,notnull" json:"srcId"`
	DstID uuid.UUID `bun:"dst_id,type:uuid,notnull" json:"dstId"`

	Properties map[string]any `bun:"properties,type:jsonb,notnull,default:'{}'" json:"properties"`
	Weight     *float32       `bun:"weight" json:"weight,omitempty"`

	CreatedAt time.Time  `bun:"created_at,notnull,default:now()" json:"createdAt"`
	DeletedAt *time.Time `bun:"deleted_at" json:"deletedAt,omitempty"`
}

// ObjectChunkLink is a provenance edge from a graph object to a source chunk,
// in kb.object_chunks.
type ObjectChunkLink struct {
	bun.BaseModel `bun:"table:kb.object_chunks,alias:oc"`

	ID       uuid.UUID  `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	ObjectID uuid.UUID  `bun:"object_id,type:uuid,notnull" json:"objectId"`
	ChunkID  uuid.UUID  `bun:"chunk_id,type:uuid,notnull" json:"chunkId"`
	Weight   float64    `bun:"weight,notnull" json:"weight"`
	JobID    *uuid.UUID `bun:"job_id,type:uuid" json:"jobId,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:now()" json:"createdAt"`
}
