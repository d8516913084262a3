package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/storagetest"
)

func TestStorage_Conformance(t *testing.T) {
	storagetest.Run(t, NewStorage())
}

func TestStorage_UnknownCollection(t *testing.T) {
	s := NewStorage()
	_, err := s.Query(context.Background(), "nope", []float32{1}, 1, nil)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, "c", 2))
	require.NoError(t, s.Upsert(ctx, "c", []vectorstore.Record{{ID: "x", Vector: []float32{1, 0}, Metadata: map[string]any{"k": "v"}}}))

	got, err := s.Get(ctx, "c", nil)
	require.NoError(t, err)
	got[0].Metadata["k"] = "changed"
	got[0].Vector[0] = 9

	again, err := s.Get(ctx, "c", nil)
	require.NoError(t, err)
	assert.Equal(t, "v", again[0].Metadata["k"])
	assert.Equal(t, float32(1), again[0].Vector[0])
}

func TestStorage_ZeroVectorIsFar(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, "c", 2))
	require.NoError(t, s.Upsert(ctx, "c", []vectorstore.Record{{ID: "x", Vector: []float32{1, 0}}}))

	hits, err := s.Query(ctx, "c", []float32{0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Distance, 1e-9)
}
