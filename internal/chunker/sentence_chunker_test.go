package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentences(t *testing.T) {
	got := Sentences("First one.  Second\nline! Is it third? trailing words")
	assert.Equal(t, []string{"First one.", "Second line!", "Is it third?", "trailing words"}, got)
	assert.Empty(t, Sentences("   \n "))
}

func TestSplit_PacksWithOverlap(t *testing.T) {
	c := NewSentenceChunker(40, 20)
	got := c.Split("One two three. Four five six. Seven eight nine. Ten.")
	assert.Equal(t, []string{
		"One two three. Four five six.",
		"Four five six. Seven eight nine. Ten.",
	}, got)
}

func TestSplit_NoOverlap(t *testing.T) {
	c := NewSentenceChunker(20, 0)
	got := c.Split("Alpha beta. Gamma delta. Epsilon.")
	assert.Equal(t, []string{"Alpha beta.", "Gamma delta.", "Epsilon."}, got)
}

func TestSplit_RespectsSize(t *testing.T) {
	text := strings.Repeat("Machine learning finds patterns in data. ", 50)
	c := NewSentenceChunker(200, 50)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 200)
	}
}

func TestSplit_LongSentenceStandsAlone(t *testing.T) {
	long := strings.Repeat("x", 100) + "."
	c := NewSentenceChunker(30, 10)
	got := c.Split("Short. " + long + " Tail.")
	assert.Equal(t, []string{"Short.", long, "Tail."}, got)
}

func TestSplit_AlwaysProgresses(t *testing.T) {
	c := NewSentenceChunker(10, 9)
	got := c.Split("Aaaa. Bbbb. Cccc. Dddd.")
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 4)
	assert.True(t, strings.HasSuffix(got[len(got)-1], "Dddd."))
}

func TestSplit_Empty(t *testing.T) {
	assert.Empty(t, NewSentenceChunker(100, 10).Split(""))
}

func TestNewSentenceChunker_Defaults(t *testing.T) {
	c := NewSentenceChunker(0, -1)
	assert.Equal(t, 800, c.chunkSize)
	assert.Equal(t, 0, c.overlap)
	assert.Equal(t, 5, NewSentenceChunker(10, 10).overlap)
}
