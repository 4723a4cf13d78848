package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tickerdesk/tickerdesk/pkg/embedder"
	"github.com/tickerdesk/tickerdesk/pkg/vector"
)

// DefaultCollection is the vector store collection documents index into.
const DefaultCollection = "documents"

// Query length bounds enforced by Search.
const (
	minQueryLength = 2
	maxQueryLength = 10000
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Provider is the vector store backend. Required.
	Provider vector.Provider

	// Embedder produces the vectors. Required.
	Embedder embedder.Embedder

	// Chunker configures document splitting.
	Chunker ChunkerConfig

	// DocsDir is the directory scanned for documents.
	DocsDir string

	// IndexDir is reported in Stats. Persistence itself is the
	// provider's concern.
	IndexDir string

	// Collection is the vector store collection name.
	// Default: DefaultCollection
	Collection string

	// DefaultTopK is the result count used when a search does not
	// request one.
	DefaultTopK int
}

// Engine indexes documents and serves similarity queries over them.
// It is safe for concurrent use once constructed.
type Engine struct {
	provider    vector.Provider
	embedder    embedder.Embedder
	chunker     Chunker
	extractors  *ExtractorRegistry
	docsDir     string
	indexDir    string
	collection  string
	defaultTopK int

	mu         sync.RWMutex
	ready      bool
	docCount   int
	chunkCount int
	builtAt    time.Time
}

// NewEngine creates an Engine. The index is not built yet, call
// BuildIndex before searching.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	chunker, err := NewChunker(cfg.Chunker)
	if err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}

	return &Engine{
		provider:    cfg.Provider,
		embedder:    cfg.Embedder,
		chunker:     chunker,
		extractors:  NewExtractorRegistry(),
		docsDir:     cfg.DocsDir,
		indexDir:    cfg.IndexDir,
		collection:  cfg.Collection,
		defaultTopK: cfg.DefaultTopK,
	}, nil
}

// DocsDir returns the directory the engine indexes.
func (e *Engine) DocsDir() string {
	return e.docsDir
}

// BuildIndex scans the docs directory and indexes every supported
// document. When force is false and the store already holds chunks
// from a previous run, the persisted index is adopted instead of
// rebuilding. Failures on individual files are logged and skipped; the
// build fails only when nothing could be indexed at all.
func (e *Engine) BuildIndex(ctx context.Context, force bool) error {
	if force {
		if err := e.provider.DeleteCollection(ctx, e.collection); err != nil {
			slog.Warn("Failed to drop collection before rebuild", "error", err)
		}
	} else if e.adoptPersisted(ctx) {
		return nil
	}

	files, err := e.discoverFiles()
	if err != nil {
		return NewIndexError("build", "", err)
	}
	if len(files) == 0 {
		return NewIndexError("build", "", fmt.Errorf("no documents found in %s", e.docsDir))
	}

	if dim := e.embedder.Dimension(); dim > 0 {
		if err := e.provider.CreateCollection(ctx, e.collection, dim); err != nil {
			return NewIndexError("build", "", err)
		}
	}

	start := time.Now()
	var statsMu sync.Mutex
	docs, chunks := 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, file := range files {
		g.Go(func() error {
			n, err := e.indexFile(gctx, file)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				slog.Warn("Skipping document", "file", file, "error", err)
				return nil
			}
			statsMu.Lock()
			docs++
			chunks += n
			statsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NewIndexError("build", "", err)
	}
	if docs == 0 {
		return NewIndexError("build", "", fmt.Errorf("no documents could be indexed from %s", e.docsDir))
	}

	e.mu.Lock()
	e.ready = true
	e.docCount = docs
	e.chunkCount = chunks
	e.builtAt = time.Now()
	e.mu.Unlock()

	slog.Info("Document index built",
		"documents", docs,
		"chunks", chunks,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// adoptPersisted marks the engine ready when the vector store already
// holds chunks persisted by a previous run.
func (e *Engine) adoptPersisted(ctx context.Context) bool {
	count, err := e.provider.Count(ctx, e.collection)
	if err != nil || count == 0 {
		return false
	}
	files, _ := e.discoverFiles()

	e.mu.Lock()
	e.ready = true
	e.docCount = len(files)
	e.chunkCount = count
	e.mu.Unlock()

	slog.Info("Reusing persisted document index", "chunks", count)
	return true
}

// Search embeds the query and returns the closest chunks. Returns
// ErrIndexUnavailable until an index has been built or adopted.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	if !e.Ready() {
		return nil, ErrIndexUnavailable
	}
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = e.defaultTopK
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := e.provider.Search(ctx, e.collection, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return toSearchResults(results), nil
}

// ReindexFile indexes one file, replacing any chunks a previous
// version of it left behind.
func (e *Engine) ReindexFile(ctx context.Context, path string) error {
	docID := e.documentID(path)
	filter := map[string]any{"document_id": docID}
	if err := e.provider.DeleteByFilter(ctx, e.collection, filter); err != nil {
		slog.Warn("Failed to drop stale chunks", "document", docID, "error", err)
	}

	n, err := e.indexFile(ctx, path)
	if err != nil {
		return NewIndexError("ingest", docID, err)
	}
	e.refreshCounts(ctx)
	slog.Info("Document indexed", "document", docID, "chunks", n)
	return nil
}

// DeleteDocument removes a document's chunks from the index.
func (e *Engine) DeleteDocument(ctx context.Context, docID string) error {
	filter := map[string]any{"document_id": docID}
	if err := e.provider.DeleteByFilter(ctx, e.collection, filter); err != nil {
		return NewIndexError("delete", docID, err)
	}
	e.refreshCounts(ctx)
	return nil
}

// Ready reports whether the index can serve searches.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Stats reports the index state for health endpoints.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := StatusUnavailable
	if e.ready {
		status = StatusReady
	}
	return Stats{
		Status:         status,
		DocumentCount:  e.docCount,
		ChunkCount:     e.chunkCount,
		IndexDir:       e.indexDir,
		Collection:     e.collection,
		Store:          e.provider.Name(),
		EmbeddingModel: e.embedder.Model(),
		BuiltAt:        e.builtAt,
	}
}

// Close releases the embedder and the vector store.
func (e *Engine) Close() error {
	return errors.Join(e.embedder.Close(), e.provider.Close())
}

// indexFile extracts, chunks, embeds and stores one document. Returns
// the number of chunks written.
func (e *Engine) indexFile(ctx context.Context, path string) (int, error) {
	doc, err := e.extractors.Extract(ctx, path)
	if err != nil {
		return 0, err
	}
	doc.ID = e.documentID(path)

	chunks, err := e.chunker.Chunk(doc.Content)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %s: %w", doc.ID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.ID, len(vectors), len(chunks))
	}

	items := make([]vector.Item, len(chunks))
	for i, c := range chunks {
		items[i] = vector.Item{
			ID:     chunkID(doc.ID, c.Index),
			Vector: vectors[i],
			Metadata: map[string]any{
				"content":     c.Content,
				"document_id": doc.ID,
				"source_file": filepath.Base(path),
				"title":       doc.Title,
				"chunk_index": c.Index,
				"chunk_total": c.Total,
			},
		}
	}
	if err := e.provider.UpsertBatch(ctx, e.collection, items); err != nil {
		return 0, fmt.Errorf("storing %s: %w", doc.ID, err)
	}
	return len(chunks), nil
}

// discoverFiles walks the docs directory and returns the supported
// files sorted by path. Hidden files and directories are skipped.
func (e *Engine) discoverFiles() ([]string, error) {
	info, err := os.Stat(e.docsDir)
	if err != nil {
		return nil, fmt.Errorf("docs directory %s: %w", e.docsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("docs directory %s is not a directory", e.docsDir)
	}

	var files []string
	err = filepath.WalkDir(e.docsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != e.docsDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if e.extractors.Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// refreshCounts re-reads the chunk count from the store after a
// single document change.
func (e *Engine) refreshCounts(ctx context.Context) {
	count, err := e.provider.Count(ctx, e.collection)
	if err != nil {
		return
	}
	files, _ := e.discoverFiles()

	e.mu.Lock()
	e.chunkCount = count
	e.docCount = len(files)
	if count > 0 {
		e.ready = true
	}
	e.mu.Unlock()
}

// documentID is the file path relative to the docs directory.
func (e *Engine) documentID(path string) string {
	if rel, err := filepath.Rel(e.docsDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(path)
}

// chunkID derives a stable UUID for a chunk so re-indexing a document
// overwrites its previous entries. Qdrant accepts only UUID point IDs.
func chunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s:%d", docID, index)).String()
}

// normalizeQuery collapses whitespace and enforces the length bounds.
func normalizeQuery(query string) (string, error) {
	query = strings.Join(strings.Fields(query), " ")
	if len(query) < minQueryLength {
		return "", fmt.Errorf("query must be at least %d characters", minQueryLength)
	}
	if len(query) > maxQueryLength {
		return "", fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}
	return query, nil
}

func toSearchResults(results []vector.Result) []SearchResult {
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		sr := SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Score,
			Metadata: r.Metadata,
		}
		if v, ok := r.Metadata["document_id"].(string); ok {
			sr.DocumentID = v
		}
		if v, ok := r.Metadata["source_file"].(string); ok {
			sr.SourceFile = v
		}
		sr.ChunkIndex = metadataInt(r.Metadata, "chunk_index")
		out = append(out, sr)
	}
	return out
}

// metadataInt reads an integer that may round-trip as an int, float64
// or string depending on the store backend.
func metadataInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
