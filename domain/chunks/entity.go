// Package chunks persists document chunks and their embeddings.
package chunks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Chunk represents a chunk of document text in the kb.chunks table.
// (document_id, chunk_index) is unique.
type Chunk struct {
	bun.BaseModel `bun:"table:kb.chunks,alias:c"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	DocumentID uuid.UUID      `bun:"document_id,type:uuid,notnull" json:"documentId"`
	ChunkIndex int            `bun:"chunk_index,notnull" json:"chunkIndex"`
	Text       string         `bun:"text,notnull" json:"text"`
	Embedding  []byte         `bun:"embedding,type:vector(768)" json:"-"`
	Metadata   *ChunkMetadata `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time      `bun:"created_at,notnull,default:now()" json:"createdAt"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull,default:now()" json:"updatedAt"`
}

// HasEmbedding reports whether an embedding has been stored.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ChunkMetadata describes how the chunk was produced.
type ChunkMetadata struct {
	Strategy    string `json:"strategy,omitempty"`
	StartOffset int    `json:"startOffset,omitempty"`
	EndOffset   int    `json:"endOffset,omitempty"`
}

// Scan implements sql.Scanner for jsonb metadata.
func (m *ChunkMetadata) Scan(src any) error {
	if src == nil {
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return nil
}
