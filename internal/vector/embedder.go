package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/alokproc/geotutor/internal/llm"
)

// DefaultBatchSize bounds how many texts go into a single embedding
// request. Hosted embedding APIs reject oversized batches.
const DefaultBatchSize = 64

// Embedder wraps an LLM provider to produce and store embeddings.
type Embedder struct {
	provider  llm.Provider
	repo      Repository
	batchSize int
}

// NewEmbedder creates an Embedder.
func NewEmbedder(provider llm.Provider, repo Repository) *Embedder {
	return &Embedder{provider: provider, repo: repo, batchSize: DefaultBatchSize}
}

// IndexTexts embeds the given texts in batches and upserts them into the
// vector store. metadata[i] (when present) is attached to texts[i]. The
// optional progress callback receives the running count of indexed texts.
func (e *Embedder) IndexTexts(ctx context.Context, texts []string, metadata []map[string]string, progress func(done int)) error {
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return fmt.Errorf("embedding batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}

		docs := make([]Document, len(batch))
		for i := range batch {
			meta := map[string]string{}
			if start+i < len(metadata) && metadata[start+i] != nil {
				meta = metadata[start+i]
			}
			docs[i] = Document{
				ID:       uuid.NewString(),
				Content:  batch[i],
				Vector:   vectors[i],
				Metadata: meta,
			}
		}
		if err := e.repo.Upsert(ctx, docs); err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}

		if progress != nil {
			progress(end)
		}
	}
	return nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors, want 1", len(vectors))
	}
	return vectors[0], nil
}
