package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/tickerdesk/tickerdesk/pkg/embedder"
	"github.com/tickerdesk/tickerdesk/pkg/vector"
)

// KnowledgeConfig configures the document index backing search_documents.
type KnowledgeConfig struct {
	// DocsDir is the directory holding source documents.
	// Default: $KNOWLEDGE_DIR, or "data"
	DocsDir string `yaml:"docs_dir,omitempty"`

	// IndexDir is where the vector index persists between runs.
	// Default: $INDEX_DIR, or ".vector_store"
	IndexDir string `yaml:"index_dir,omitempty"`

	// ForceRebuild rebuilds the index at startup even when a
	// persisted one exists.
	// Default: $FORCE_REBUILD == "true"
	ForceRebuild bool `yaml:"force_rebuild,omitempty"`

	// Watch re-indexes documents when files change on disk.
	Watch bool `yaml:"watch,omitempty"`

	// TopK is the default number of passages returned to the agent.
	// Default: 3
	TopK int `yaml:"top_k,omitempty"`

	// RetrieverK is the number of candidates fetched from the store
	// before the result cut.
	// Default: 5
	RetrieverK int `yaml:"retriever_k,omitempty"`

	// Chunking configures document splitting.
	Chunking ChunkingConfig `yaml:"chunking,omitempty"`

	// Embedder configures the embedding provider.
	Embedder embedder.Config `yaml:"embedder,omitempty"`

	// VectorStore configures the vector store backend.
	VectorStore vector.ProviderConfig `yaml:"vector_store,omitempty"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// Size is the target chunk size in characters.
	// Default: 1000
	Size int `yaml:"size,omitempty"`

	// Overlap is the number of characters shared between adjacent
	// chunks.
	// Default: 200
	Overlap int `yaml:"overlap,omitempty"`
}

// SetDefaults applies default values to KnowledgeConfig.
func (c *KnowledgeConfig) SetDefaults() {
	if c.DocsDir == "" {
		c.DocsDir = os.Getenv("KNOWLEDGE_DIR")
	}
	if c.DocsDir == "" {
		c.DocsDir = "data"
	}
	if c.IndexDir == "" {
		c.IndexDir = os.Getenv("INDEX_DIR")
	}
	if c.IndexDir == "" {
		c.IndexDir = ".vector_store"
	}
	if !c.ForceRebuild {
		c.ForceRebuild = strings.EqualFold(os.Getenv("FORCE_REBUILD"), "true")
	}
	if c.TopK == 0 {
		c.TopK = 3
	}
	if c.RetrieverK == 0 {
		c.RetrieverK = 5
	}
	c.Chunking.SetDefaults()
	c.Embedder.SetDefaults()

	c.VectorStore.SetDefaults()
	// Persist the default chromem store under the index directory.
	if c.VectorStore.Type == vector.ProviderChromem && c.VectorStore.Chromem.PersistPath == "" {
		c.VectorStore.Chromem.PersistPath = c.IndexDir
	}
}

// Validate checks the KnowledgeConfig for errors.
func (c *KnowledgeConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1")
	}
	if c.RetrieverK < c.TopK {
		return fmt.Errorf("retriever_k (%d) must be at least top_k (%d)", c.RetrieverK, c.TopK)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Embedder.Validate(); err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector_store: %w", err)
	}
	return nil
}

// SetDefaults applies default values to ChunkingConfig.
func (c *ChunkingConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 1000
	}
	if c.Overlap == 0 {
		c.Overlap = 200
	}
}

// Validate checks the ChunkingConfig for errors.
func (c *ChunkingConfig) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("overlap must be non-negative and smaller than size")
	}
	return nil
}
