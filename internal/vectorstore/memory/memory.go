package memory

import (
	"context"
	"errors"
	"sync"

	"courserag/internal/vectorstore"
)

type collection struct {
	dimension int
	order     []string
	records   map[string]vectorstore.Record
}

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) Init(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return vectorstore.ErrDimensionMismatch
		}
		return nil
	}
	s.collections[name] = &collection{dimension: dimension, records: make(map[string]vectorstore.Record)}
	return nil
}

func (s *Storage) Upsert(_ context.Context, name string, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return vectorstore.ErrCollectionNotFound
	}
	if err := vectorstore.CheckDimension(records, c.dimension); err != nil {
		return err
	}
	for _, r := range records {
		if _, exists := c.records[r.ID]; !exists {
			c.order = append(c.order, r.ID)
		}
		c.records[r.ID] = clone(r)
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, vector []float32, limit int, where vectorstore.Filter) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if len(vector) != c.dimension {
		return nil, vectorstore.ErrDimensionMismatch
	}
	hits := make([]vectorstore.Hit, 0, len(c.order))
	for _, id := range c.order {
		r := c.records[id]
		if !where.Matches(r.Metadata) {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			ID:       r.ID,
			Document: r.Document,
			Metadata: copyMeta(r.Metadata),
			Distance: vectorstore.CosineDistance(r.Vector, vector),
		})
	}
	return vectorstore.SortHits(hits, limit), nil
}

func (s *Storage) Get(_ context.Context, name string, ids []string) ([]vectorstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if ids == nil {
		ids = c.order
	}
	out := make([]vectorstore.Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, vectorstore.ErrCollectionNotFound
	}
	return len(c.order), nil
}

func (s *Storage) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	c.order = nil
	c.records = make(map[string]vectorstore.Record)
	return nil
}

func (s *Storage) Close() error { return nil }

func clone(r vectorstore.Record) vectorstore.Record {
	v := make([]float32, len(r.Vector))
	copy(v, r.Vector)
	r.Vector = v
	r.Metadata = copyMeta(r.Metadata)
	return r
}

func copyMeta(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
