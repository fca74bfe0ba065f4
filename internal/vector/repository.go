package vector

import "context"

// Document represents a chunk of curriculum text with its embedding.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// Upsert inserts or updates documents.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k most similar documents.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	// Count reports how many documents are stored.
	Count(ctx context.Context) (int, error)
	// Reset drops all stored documents.
	Reset(ctx context.Context) error
	// Close releases resources.
	Close() error
}
