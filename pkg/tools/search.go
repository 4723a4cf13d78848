package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/rag"
)

const (
	// defaultSearchTopK is used when a search call names no top_k.
	defaultSearchTopK = 3

	// maxPassageChars caps each passage included in the result text.
	maxPassageChars = 500
)

// DocumentSearcher is the slice of the knowledge engine the search tool
// uses.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]rag.SearchResult, error)
}

// DocumentSearchTool answers search_documents calls with ranked passages
// from the document index. When the index has not been built the tool
// fails outright so callers can tell "no matches" from "not ready".
type DocumentSearchTool struct {
	searcher DocumentSearcher
}

// NewDocumentSearchTool creates the search tool over the given engine.
func NewDocumentSearchTool(searcher DocumentSearcher) *DocumentSearchTool {
	return &DocumentSearchTool{searcher: searcher}
}

func (t *DocumentSearchTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        "search_documents",
		Description: "Search the indexed financial documents for relevant information. Returns document excerpts with source attribution.",
		Parameters: []ToolParameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "Query to search for",
				Required:    true,
			},
			{
				Name:        "top_k",
				Type:        "integer",
				Description: "Maximum number of passages to return",
				Required:    false,
				Default:     defaultSearchTopK,
			},
		},
	}
}

func (t *DocumentSearchTool) GetName() string {
	return "search_documents"
}

func (t *DocumentSearchTool) GetDescription() string {
	return t.GetInfo().Description
}

func (t *DocumentSearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	start := time.Now()

	query, ok := stringArg(args, "query")
	if !ok {
		err := fmt.Errorf("query parameter is required")
		return errorResult(t.GetName(), err, start), err
	}

	topK := defaultSearchTopK
	if k, ok := intArg(args, "top_k"); ok && k > 0 {
		topK = k
	}

	results, err := t.searcher.Search(ctx, query, topK)
	if err != nil {
		return errorResult(t.GetName(), err, start), err
	}

	if len(results) == 0 {
		result := successResult(t.GetName(), fmt.Sprintf("No relevant documents found for query: %s", query), start)
		result.Metadata = map[string]any{"query": query, "results": 0}
		return result, nil
	}

	passages := make([]string, 0, len(results))
	for _, r := range results {
		content := r.Content
		if len(content) > maxPassageChars {
			content = content[:maxPassageChars]
		}
		passages = append(passages, fmt.Sprintf("[%s]\n%s", r.SourceFile, content))
	}

	result := successResult(t.GetName(), strings.Join(passages, "\n\n"), start)
	result.Metadata = map[string]any{"query": query, "results": len(results)}
	return result, nil
}
