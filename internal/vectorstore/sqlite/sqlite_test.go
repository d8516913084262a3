package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/storagetest"
)

func setupTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "vectors.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStorage_Conformance(t *testing.T) {
	s, _ := setupTestStorage(t)
	storagetest.Run(t, s)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := setupTestStorage(t)
	require.NoError(t, s.Init(ctx, "c", 2))
	require.NoError(t, s.Upsert(ctx, "c", []vectorstore.Record{
		{ID: "x", Vector: []float32{0.25, -1.5}, Document: "doc", Metadata: map[string]any{"lesson_number": 3}},
	}))
	require.NoError(t, s.Close())

	reopened, err := NewStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.Init(ctx, "c", 2), "migrations and init are idempotent")
	got, err := reopened.Get(ctx, "c", nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0.25, -1.5}, got[0].Vector)
	assert.EqualValues(t, 3, got[0].Metadata["lesson_number"])
}

func TestStorage_InitDimensionConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStorage(t)
	require.NoError(t, s.Init(ctx, "c", 2))
	assert.ErrorIs(t, s.Init(ctx, "c", 3), vectorstore.ErrDimensionMismatch)
}

func TestStorage_UnknownCollection(t *testing.T) {
	s, _ := setupTestStorage(t)
	_, err := s.Count(context.Background(), "missing")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestFilterClause_SortedKeys(t *testing.T) {
	clause, args := filterClause(vectorstore.Filter{"lesson_number": 2, "course_title": "A"})
	assert.Equal(t, " AND json_extract(metadata, ?) = ? AND json_extract(metadata, ?) = ?", clause)
	assert.Equal(t, []any{"$.course_title", "A", "$.lesson_number", 2}, args)

	clause, args = filterClause(nil)
	assert.Empty(t, clause)
	assert.Nil(t, args)
}

func TestFloat32Roundtrip(t *testing.T) {
	in := []float32{0, 1, -1, 3.5, 1e-7}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
