package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic, offline embedder. Each token hashes
// into a bucket of a fixed-size vector which is then L2 normalized, so
// texts sharing words land near each other. It serves development and
// tests where no embedding API is reachable; it is not a substitute
// for a learned model.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder. Dimension defaults to 256.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{dimension: dimension}
}

// Embed implements Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(token))
		vec[int(f.Sum32())%h.dimension]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

// EmbedBatch implements Embedder.
func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := h.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimension implements Embedder.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// Model implements Embedder.
func (h *HashEmbedder) Model() string {
	return "hash"
}

// Close implements Embedder.
func (h *HashEmbedder) Close() error {
	return nil
}

var _ Embedder = (*HashEmbedder)(nil)
