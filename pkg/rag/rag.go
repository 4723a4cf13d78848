// Package rag indexes local documents into a vector store and answers
// similarity queries over them.
//
// The pipeline is: discover files under the docs directory, extract
// plain text (PDF, Office formats, plain text), split into overlapping
// chunks, embed the chunks and upsert them into the configured vector
// provider. Search embeds the query and returns the closest chunks
// with their source metadata.
package rag

import (
	"time"
)

// Document is an extracted source file ready for chunking.
type Document struct {
	// ID uniquely identifies the document. For files this is the
	// path relative to the docs directory.
	ID string `json:"id"`

	// Content is the extracted plain text.
	Content string `json:"content"`

	// Title is a human readable name, usually the file name.
	Title string `json:"title,omitempty"`

	// SourcePath is the absolute path the document was read from.
	SourcePath string `json:"source_path,omitempty"`

	// Pages is the page count for paginated formats, zero otherwise.
	Pages int `json:"pages,omitempty"`

	// Metadata carries extractor specific details.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a piece of a document sized for embedding.
type Chunk struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
	Total   int    `json:"total"`
}

// SearchResult is a single chunk matched by a query.
type SearchResult struct {
	// ID is the chunk identifier in the vector store.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Score is the similarity to the query, higher is closer.
	Score float32 `json:"score"`

	// DocumentID is the owning document's ID.
	DocumentID string `json:"document_id"`

	// SourceFile is the base name of the owning file.
	SourceFile string `json:"source_file"`

	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int `json:"chunk_index"`

	// Metadata carries the remaining stored fields.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats describes the state of the index for health reporting.
type Stats struct {
	Status         string    `json:"status"`
	DocumentCount  int       `json:"document_count"`
	ChunkCount     int       `json:"chunk_count"`
	IndexDir       string    `json:"index_dir,omitempty"`
	Collection     string    `json:"collection"`
	Store          string    `json:"store"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	BuiltAt        time.Time `json:"built_at"`
}

// Index states reported by Stats.
const (
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)
