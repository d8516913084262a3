package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_ShortTextReturnedWhole(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("One sentence.  Two\nsentences.", 3)
	require.NoError(t, err)
	assert.Equal(t, "One sentence. Two sentences.", out)
}

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := "Neural networks learn representations. " +
		"The weather was pleasant yesterday. " +
		"Training neural networks requires data. " +
		"Lunch was served at noon. " +
		"Deep neural networks stack many layers."
	out, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)

	parts := strings.SplitAfter(out, ". ")
	require.Len(t, parts, 2)
	assert.Contains(t, out, "neural networks")
	assert.NotContains(t, out, "weather")
	assert.NotContains(t, out, "Lunch")
	assert.Less(t, strings.Index(text, strings.TrimSpace(parts[0])), strings.Index(text, strings.TrimSpace(parts[1])))
}

func TestSummarize_Empty(t *testing.T) {
	out, err := NewFrequencySummarizer().Summarize("", 3)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}
