package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCached_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 2)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "abc")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "counting", c.Name())
	assert.Equal(t, 2, c.Dimension())
}

func TestCached_Evicts(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 1)
	require.NoError(t, err)

	ctx := context.Background()
	_, _ = c.Embed(ctx, "a")
	_, _ = c.Embed(ctx, "b")
	_, _ = c.Embed(ctx, "a")
	assert.Equal(t, 3, inner.calls)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	c, err := NewCached(inner, 4)
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestNewCached_RejectsZeroSize(t *testing.T) {
	_, err := NewCached(&countingEmbedder{}, 0)
	assert.Error(t, err)
}

func TestCached_Unwrap(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewCached(inner, 2)
	require.NoError(t, err)
	assert.Same(t, inner, c.Unwrap())
}
