// Package chromem implements vector.Repository on top of chromem-go, an
// embedded vector database persisted to local disk. It fills the role a
// hosted vector service would otherwise play, so the tutor can run
// self-contained on a laptop.
package chromem

import (
	"context"
	"fmt"
	"sync"

	cg "github.com/philippgille/chromem-go"

	"github.com/alokproc/geotutor/internal/vector"
)

// Store is a chromem-go backed vector repository.
type Store struct {
	mu         sync.Mutex
	db         *cg.DB
	collection *cg.Collection
	name       string

	// MinSimilarity drops search results scoring below the threshold
	// (0 disables filtering). Cosine similarity, range [-1, 1].
	MinSimilarity float32
}

// Options configures a Store.
type Options struct {
	// Path is the on-disk location of the database. Empty means a
	// throwaway in-memory store.
	Path string
	// Collection names the chunk collection (default "curriculum").
	Collection string
	// MinSimilarity filters low-relevance matches out of Search results.
	MinSimilarity float32
}

// New opens (or creates) a chromem store.
func New(opts Options) (*Store, error) {
	if opts.Collection == "" {
		opts.Collection = "curriculum"
	}

	var db *cg.DB
	var err error
	if opts.Path == "" {
		db = cg.NewDB()
	} else {
		db, err = cg.NewPersistentDB(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(opts.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", opts.Collection, err)
	}

	return &Store{
		db:            db,
		collection:    collection,
		name:          opts.Collection,
		MinSimilarity: opts.MinSimilarity,
	}, nil
}

// Upsert stores documents with caller-supplied embeddings.
func (s *Store) Upsert(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	metadatas := make([]map[string]string, len(docs))
	contents := make([]string, len(docs))
	for i, d := range docs {
		if len(d.Vector) == 0 {
			return fmt.Errorf("document %s has no embedding", d.ID)
		}
		ids[i] = d.ID
		embeddings[i] = d.Vector
		metadatas[i] = d.Metadata
		contents[i] = d.Content
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.collection.Add(ctx, ids, embeddings, metadatas, contents); err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	return nil
}

// Search returns up to topK documents ranked by cosine similarity,
// dropping matches below MinSimilarity.
func (s *Store) Search(ctx context.Context, vec []float32, topK int) ([]vector.SearchResult, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	s.mu.Lock()
	collection := s.collection
	s.mu.Unlock()

	// chromem rejects queries asking for more results than stored docs.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	if topK <= 0 {
		topK = 1
	}

	results, err := collection.QueryEmbedding(ctx, vec, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]vector.SearchResult, 0, len(results))
	for _, r := range results {
		if s.MinSimilarity != 0 && r.Similarity < s.MinSimilarity {
			continue
		}
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out = append(out, vector.SearchResult{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: meta,
		})
	}
	return out, nil
}

// Count reports the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection.Count(), nil
}

// Reset drops and recreates the collection.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.name, err)
	}
	collection, err := s.db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", s.name, err)
	}
	s.collection = collection
	return nil
}

// Close is a no-op: chromem persists on every write.
func (s *Store) Close() error {
	return nil
}

var _ vector.Repository = (*Store)(nil)
