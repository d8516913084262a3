package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimension is wide enough that course titles and lesson vocabulary
// rarely share a bucket.
const DefaultDimension = 2048

// Embedder projects token counts into a fixed number of buckets (the "hashing
// trick"). Unlike a fitted TF-IDF vocabulary it needs no preparation pass, so
// documents can be added at any time and embeddings stay comparable.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder. A non-positive dimension selects DefaultDimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes a sublinear-tf hashed embedding, L2 normalised.
// Text without any indexable token yields the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.EmbedRaw(ctx, text)
	if err != nil {
		return nil, err
	}
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec, nil
}

// EmbedRaw returns the hashed term weights before normalisation, so the dot
// product of two raw vectors counts the weight of the terms they share.
func (e *Embedder) EmbedRaw(_ context.Context, text string) ([]float32, error) {
	tf := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		tf[tok]++
	}
	vec := make([]float32, e.dimension)
	for tok, count := range tf {
		idx, sign := e.bucket(tok)
		vec[idx] += float32(sign * (1 + math.Log(float64(count))))
	}
	return vec, nil
}

// bucket maps a token to its index and sign. The sign comes from the high bit
// so colliding tokens tend to cancel rather than accumulate.
func (e *Embedder) bucket(tok string) (int, float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum32()
	sign := 1.0
	if sum&(1<<31) != 0 {
		sign = -1.0
	}
	return int(sum % uint32(e.dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
