// Package storetest builds populated course stores for tests.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	"courserag/internal/embedding/hashing"
	"courserag/internal/store"
	"courserag/internal/vectorstore/memory"
)

const CourseTitle = "Test Course on AI"

// SampleCourse is a three-lesson course numbered from zero.
func SampleCourse() domain.Course {
	return domain.Course{
		Title:      CourseTitle,
		Link:       "https://example.com/course",
		Instructor: "Dr. Test",
		Lessons: []domain.Lesson{
			{Number: 0, Title: "Introduction", Link: "https://example.com/lesson0"},
			{Number: 1, Title: "Machine Learning Basics", Link: "https://example.com/lesson1"},
			{Number: 2, Title: "Evaluation"},
		},
	}
}

// SampleChunks are the content chunks of SampleCourse.
func SampleChunks() []domain.CourseChunk {
	return []domain.CourseChunk{
		{CourseTitle: CourseTitle, LessonNumber: domain.IntPtr(0), ChunkIndex: 0,
			Content: "Lesson 0 content: Welcome to the course. Artificial intelligence studies agents that act rationally."},
		{CourseTitle: CourseTitle, LessonNumber: domain.IntPtr(1), ChunkIndex: 1,
			Content: "Lesson 1 content: Machine learning lets computers learn patterns from data without explicit rules."},
		{CourseTitle: CourseTitle, LessonNumber: domain.IntPtr(1), ChunkIndex: 2,
			Content: "Supervised machine learning uses labelled examples to fit a model."},
		{CourseTitle: CourseTitle, LessonNumber: domain.IntPtr(2), ChunkIndex: 3,
			Content: "Lesson 2 content: Evaluate a model with precision, recall and held-out test data."},
	}
}

// New returns an initialised, empty store on in-memory storage.
func New(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(hashing.NewEmbedder(0), memory.NewStorage(), store.Config{MaxResults: 5, ResolveMaxDistance: 0.5}, nil)
	require.NoError(t, s.Init(context.Background()))
	return s
}

// NewPopulated returns a store holding SampleCourse and its chunks.
func NewPopulated(t *testing.T) *store.Store {
	t.Helper()
	s := New(t)
	ctx := context.Background()
	require.NoError(t, s.AddCourseMetadata(ctx, SampleCourse()))
	require.NoError(t, s.AddCourseContent(ctx, SampleChunks()))
	return s
}
