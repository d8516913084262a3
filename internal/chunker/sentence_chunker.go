package chunker

import (
	"regexp"
	"strings"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// SentenceChunker packs whole sentences into chunks of at most chunkSize
// characters. Consecutive chunks share trailing sentences totalling at most
// overlap characters.
type SentenceChunker struct {
	chunkSize int
	overlap   int
}

func NewSentenceChunker(chunkSize, overlap int) *SentenceChunker {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &SentenceChunker{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the chunks of text in order. A sentence longer than the
// chunk size becomes a chunk of its own.
func (c *SentenceChunker) Split(text string) []string {
	sentences := Sentences(text)
	var chunks []string
	for i := 0; i < len(sentences); {
		size, end := 0, i
		for end < len(sentences) {
			n := len(sentences[end])
			if end > i {
				n++
			}
			if end > i && size+n > c.chunkSize {
				break
			}
			size += n
			end++
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}

		next, carried := end, 0
		for next > i+1 {
			n := len(sentences[next-1])
			if carried > 0 {
				n++
			}
			if carried+n > c.overlap {
				break
			}
			carried += n
			next--
		}
		i = next
	}
	return chunks
}

// Sentences splits text on terminal punctuation and collapses whitespace.
// Trailing text without punctuation is kept as a final sentence.
func Sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := normalize(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := normalize(text[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
