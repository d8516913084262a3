package domain

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits a body of text into retrieval-sized chunks.
type Chunker interface {
	Split(text string) []string
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// QueryService defines the operations exposed by the application core to its clients.
type QueryService interface {
	Query(ctx context.Context, query, sessionID string) (Answer, error)
	CreateSession() string
	CourseAnalytics(ctx context.Context) (Analytics, error)
}
