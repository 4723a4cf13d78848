// Package vector abstracts vector storage behind a small Provider
// interface. The knowledge index stores document chunks with
// pre-computed embeddings and queries them by cosine similarity;
// embedding itself happens in the embedder package, so providers only
// ever see vectors.
package vector

import "context"

// Provider stores and searches vector embeddings.
type Provider interface {
	// Upsert adds or updates a single document with its embedding.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// UpsertBatch adds or updates many documents in one call. Index
	// builds go through this path so persistence costs are paid once
	// per batch rather than once per chunk.
	UpsertBatch(ctx context.Context, collection string, items []Item) error

	// Search finds the topK most similar vectors in a collection.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter combines vector similarity with exact-match
	// metadata filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes a document from a collection by ID.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes all documents matching the filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// CreateCollection creates a collection for vectors of the given
	// dimension. Providers that create collections implicitly treat
	// this as a no-op.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Name returns the provider name.
	Name() string

	// Close releases resources and flushes any pending persistence.
	Close() error
}

// Item is a document plus its embedding, as handed to UpsertBatch.
type Item struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Result is a single similarity search hit.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}
