package document

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/chunker"
	"courserag/internal/domain"
)

const sample = `Course Title: Building Towards Computer Use
Course Link: https://example.com/computer-use
Course Instructor: Colt Steele

Lesson 0: Introduction
Lesson Link: https://example.com/computer-use/lesson0
Welcome to the course. We will build an agent that can use a computer.

Lesson 1: Getting Started
Lesson Link: https://example.com/computer-use/lesson1
Install the SDK first. Then create an API key.

Lesson 2: Wrap Up
Thanks for watching.
`

func TestParse_Full(t *testing.T) {
	course, chunks, err := Parse("sample.txt", sample, chunker.NewSentenceChunker(800, 100))
	require.NoError(t, err)

	assert.Equal(t, "Building Towards Computer Use", course.Title)
	assert.Equal(t, "https://example.com/computer-use", course.Link)
	assert.Equal(t, "Colt Steele", course.Instructor)
	assert.Equal(t, []domain.Lesson{
		{Number: 0, Title: "Introduction", Link: "https://example.com/computer-use/lesson0"},
		{Number: 1, Title: "Getting Started", Link: "https://example.com/computer-use/lesson1"},
		{Number: 2, Title: "Wrap Up"},
	}, course.Lessons)

	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, course.Title, c.CourseTitle)
		require.NotNil(t, c.LessonNumber)
		assert.Equal(t, i, *c.LessonNumber)
	}
	assert.Equal(t, "Lesson 0 content: Welcome to the course. We will build an agent that can use a computer.", chunks[0].Content)
	assert.Equal(t, "Lesson 2 content: Thanks for watching.", chunks[2].Content)
}

func TestParse_OnlyFirstLessonChunkIsPrefixed(t *testing.T) {
	text := "Course Title: C\n\nLesson 3: Long\nFirst sentence here. Second sentence here. Third sentence here."
	_, chunks, err := Parse("c.txt", text, chunker.NewSentenceChunker(25, 0))
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Lesson 3 content: First sentence here.", chunks[0].Content)
	assert.Equal(t, "Second sentence here.", chunks[1].Content)
	assert.Equal(t, 2, chunks[2].ChunkIndex)
}

func TestParse_TitleFallsBackToFirstLine(t *testing.T) {
	course, chunks, err := Parse("plain.txt", "\n\nIntro to Go\nGo is a language. It is simple.", chunker.NewSentenceChunker(800, 0))
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", course.Title)
	assert.Empty(t, course.Lessons)
	require.Len(t, chunks, 1)
	assert.Nil(t, chunks[0].LessonNumber)
	assert.Equal(t, "Go is a language. It is simple.", chunks[0].Content)
}

func TestParse_EmptyDocument(t *testing.T) {
	_, _, err := Parse("empty.txt", " \n\n ", chunker.NewSentenceChunker(800, 0))
	assert.True(t, errors.Is(err, ErrNoTitle))
}

func TestParse_LessonWithoutBody(t *testing.T) {
	course, chunks, err := Parse("c.txt", "Course Title: C\nLesson 1: Empty\nLesson 2: Full\nSome text.", chunker.NewSentenceChunker(800, 0))
	require.NoError(t, err)
	assert.Len(t, course.Lessons, 2)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, *chunks[0].LessonNumber)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}
