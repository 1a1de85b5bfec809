// Package embeddings provides embedding generation for chunks and entity context.
package embeddings

import (
	"context"
)

// Client generates embedding vectors.
type Client interface {
	// EmbedQuery generates an embedding vector for a single query text.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	// EmbedDocuments generates embedding vectors for the given documents.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error)
}

// NoopClient returns nil embeddings. Used when embeddings are disabled.
type NoopClient struct{}

// NewNoopClient creates a new NoopClient.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

// EmbedQuery returns nil, nil (no embedding available).
func (c *NoopClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return nil, nil
}

// EmbedDocuments returns nil, nil (no embeddings available).
func (c *NoopClient) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	return nil, nil
}
