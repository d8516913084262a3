package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"courserag/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// Cached memoises embeddings of recently seen texts.
type Cached struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner Embedder, size int) (*Cached, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Name() string   { return c.inner.Name() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

// Unwrap returns the wrapped embedder.
func (c *Cached) Unwrap() Embedder { return c.inner }

// Embed returns the cached vector for text or computes and stores it.
// Callers must not modify the returned slice.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, v)
	return v, nil
}
