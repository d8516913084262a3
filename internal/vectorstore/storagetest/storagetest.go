// Package storagetest holds behaviour every vectorstore.Storage must satisfy.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/vectorstore"
)

// Run exercises s against the Storage contract. s must be empty.
func Run(t *testing.T, s vectorstore.Storage) {
	t.Helper()
	ctx := context.Background()
	const coll = "conformance"

	require.NoError(t, s.Init(ctx, coll, 3))
	require.NoError(t, s.Init(ctx, coll, 3), "init is idempotent")

	n, err := s.Count(ctx, coll)
	require.NoError(t, err)
	assert.Zero(t, n)

	records := []vectorstore.Record{
		{ID: "a", Vector: []float32{1, 0, 0}, Document: "alpha", Metadata: map[string]any{"course_title": "X", "lesson_number": 1}},
		{ID: "b", Vector: []float32{0, 1, 0}, Document: "beta", Metadata: map[string]any{"course_title": "X", "lesson_number": 2}},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Document: "gamma", Metadata: map[string]any{"course_title": "Y", "lesson_number": 1}},
	}
	require.NoError(t, s.Upsert(ctx, coll, records))

	t.Run("count", func(t *testing.T) {
		n, err := s.Count(ctx, coll)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("query orders by distance", func(t *testing.T) {
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"a", "c", "b"}, ids(hits))
		assert.InDelta(t, 0.0, hits[0].Distance, 1e-5)
		assert.InDelta(t, 1.0, hits[2].Distance, 1e-5)
		assert.Equal(t, "alpha", hits[0].Document)
		assert.Equal(t, "X", hits[0].Metadata["course_title"])
	})

	t.Run("query respects limit", func(t *testing.T) {
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(hits))
	})

	t.Run("query filters on string", func(t *testing.T) {
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 10, vectorstore.Filter{"course_title": "Y"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, ids(hits))
	})

	t.Run("query filters on conjunction with numbers", func(t *testing.T) {
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 10, vectorstore.Filter{"course_title": "X", "lesson_number": 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(hits))
	})

	t.Run("query filter without match", func(t *testing.T) {
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 10, vectorstore.Filter{"course_title": "Z"})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("get by id in request order", func(t *testing.T) {
		got, err := s.Get(ctx, coll, []string{"c", "missing", "a"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].ID)
		assert.Equal(t, "a", got[1].ID)
		assert.Equal(t, "gamma", got[0].Document)
	})

	t.Run("upsert replaces and keeps position", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, coll, []vectorstore.Record{
			{ID: "a", Vector: []float32{0, 0, 1}, Document: "alpha2", Metadata: map[string]any{"course_title": "X", "lesson_number": 1}},
		}))
		all, err := s.Get(ctx, coll, nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, recordIDs(all))
		assert.Equal(t, "alpha2", all[0].Document)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := s.Upsert(ctx, coll, []vectorstore.Record{{ID: "bad", Vector: []float32{1, 2}}})
		assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		require.NoError(t, s.Init(ctx, "other", 3))
		n, err := s.Count(ctx, "other")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, coll))
		n, err := s.Count(ctx, coll)
		require.NoError(t, err)
		assert.Zero(t, n)
		hits, err := s.Query(ctx, coll, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, hits)
		require.NoError(t, s.Upsert(ctx, coll, records[:1]), "collection usable after clear")
	})
}

func ids(hits []vectorstore.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

func recordIDs(rs []vectorstore.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
