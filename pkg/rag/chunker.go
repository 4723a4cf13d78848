package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ChunkerStrategy identifies a chunking strategy.
type ChunkerStrategy string

const (
	// StrategySimple groups whole lines until the size budget is hit.
	// Chunks do not overlap.
	StrategySimple ChunkerStrategy = "simple"

	// StrategyRecursive splits at the coarsest separator that fits and
	// carries an overlap between neighboring chunks. This is the
	// default for prose documents.
	StrategyRecursive ChunkerStrategy = "recursive"
)

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	// Strategy selects the chunking algorithm.
	Strategy ChunkerStrategy `yaml:"strategy,omitempty"`

	// Size is the target chunk size in bytes.
	Size int `yaml:"size,omitempty"`

	// Overlap is how many trailing bytes of a chunk reappear at the
	// start of the next one. Only the recursive strategy overlaps.
	Overlap int `yaml:"overlap,omitempty"`

	// Separators are tried coarsest first when splitting. When none
	// matches, text is cut at the size boundary.
	Separators []string `yaml:"separators,omitempty"`
}

// SetDefaults applies default values.
func (c *ChunkerConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyRecursive
	}
	if c.Size == 0 {
		c.Size = 1000
	}
	if c.Overlap == 0 && c.Strategy == StrategyRecursive {
		c.Overlap = 200
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", " "}
	}
}

// Validate checks the configuration.
func (c *ChunkerConfig) Validate() error {
	switch c.Strategy {
	case StrategySimple, StrategyRecursive:
	default:
		return fmt.Errorf("unknown chunking strategy: %s", c.Strategy)
	}
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.Overlap, c.Size)
	}
	return nil
}

// Chunker splits document content into embedding sized pieces.
type Chunker interface {
	// Chunk splits content. Whitespace only content yields no chunks.
	Chunk(content string) ([]Chunk, error)

	// Strategy returns the strategy this chunker implements.
	Strategy() ChunkerStrategy
}

// NewChunker creates a chunker for the configured strategy.
func NewChunker(config ChunkerConfig) (Chunker, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Strategy {
	case StrategySimple:
		return &SimpleChunker{config: config}, nil
	case StrategyRecursive:
		return &RecursiveChunker{config: config}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy: %s", config.Strategy)
	}
}

// SimpleChunker groups whole lines into chunks of at most Size bytes.
// A single line longer than the budget becomes its own chunk.
type SimpleChunker struct {
	config ChunkerConfig
}

// Strategy implements Chunker.
func (c *SimpleChunker) Strategy() ChunkerStrategy {
	return StrategySimple
}

// Chunk implements Chunker.
func (c *SimpleChunker) Chunk(content string) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if len(content) <= c.config.Size {
		return []Chunk{{Content: content, Index: 0, Total: 1}}, nil
	}

	lines := strings.Split(content, "\n")
	var texts []string
	var current []string
	currentLen := 0

	for _, line := range lines {
		lineLen := len(line) + 1
		if currentLen+lineLen > c.config.Size && currentLen > 0 {
			texts = append(texts, strings.Join(current, "\n"))
			current = current[:0]
			currentLen = 0
		}
		current = append(current, line)
		currentLen += lineLen
	}
	if currentLen > 0 {
		texts = append(texts, strings.Join(current, "\n"))
	}

	return buildChunks(texts), nil
}

// RecursiveChunker splits text at the coarsest separator that occurs,
// recursing with finer separators for pieces that are still too large,
// then merges pieces into chunks and carries Overlap bytes between
// neighbors.
type RecursiveChunker struct {
	config ChunkerConfig
}

// Strategy implements Chunker.
func (c *RecursiveChunker) Strategy() ChunkerStrategy {
	return StrategyRecursive
}

// Chunk implements Chunker.
func (c *RecursiveChunker) Chunk(content string) ([]Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if len(content) <= c.config.Size {
		return []Chunk{{Content: content, Index: 0, Total: 1}}, nil
	}

	pieces := c.split(content, c.config.Separators)

	var texts []string
	var window []string
	windowLen := 0
	fresh := 0

	emit := func() {
		texts = append(texts, strings.Join(window, ""))
		// Keep trailing pieces within the overlap budget as the seed
		// of the next chunk.
		keep := len(window)
		kept := 0
		for keep > 0 && kept+len(window[keep-1]) <= c.config.Overlap {
			kept += len(window[keep-1])
			keep--
		}
		window = append([]string(nil), window[keep:]...)
		windowLen = kept
		fresh = 0
	}

	for _, piece := range pieces {
		if windowLen+len(piece) > c.config.Size && fresh > 0 {
			emit()
		}
		window = append(window, piece)
		windowLen += len(piece)
		fresh++
	}
	if fresh > 0 {
		texts = append(texts, strings.Join(window, ""))
	}

	return buildChunks(texts), nil
}

// split breaks text into pieces no larger than Size. Separators are
// kept attached to the preceding piece so joining pieces reproduces
// the original text.
func (c *RecursiveChunker) split(text string, separators []string) []string {
	if len(text) <= c.config.Size {
		return []string{text}
	}

	for i, sep := range separators {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.SplitAfter(text, sep)
		var pieces []string
		for _, part := range parts {
			if part == "" {
				continue
			}
			if len(part) > c.config.Size {
				pieces = append(pieces, c.split(part, separators[i+1:])...)
			} else {
				pieces = append(pieces, part)
			}
		}
		return pieces
	}

	// No separator left, cut at the size boundary. Back up to a rune
	// boundary so a multi byte character is never split.
	var pieces []string
	for len(text) > c.config.Size {
		cut := c.config.Size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = c.config.Size
		}
		pieces = append(pieces, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

func buildChunks(texts []string) []Chunk {
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{
			Content: text,
			Index:   i,
			Total:   len(texts),
		})
	}
	return chunks
}
