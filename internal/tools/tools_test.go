package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	"courserag/internal/store"
	"courserag/internal/store/storetest"
	"courserag/internal/tools"
)

func TestSearchTool_FormatsResults(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	out, err := tool.Execute(context.Background(), tools.SearchParams{Query: "machine learning", LessonNumber: domain.IntPtr(1)})
	require.NoError(t, err)

	blocks := strings.Split(out, "\n\n")
	require.Len(t, blocks, 2)
	for _, b := range blocks {
		assert.True(t, strings.HasPrefix(b, "[Test Course on AI - Lesson 1]\n"), b)
	}

	sources := tool.LastSources()
	require.Len(t, sources, 2)
	for _, s := range sources {
		assert.Equal(t, "Test Course on AI - Lesson 1", s.Text)
		assert.Equal(t, "https://example.com/lesson1", s.Link)
	}
}

func TestSearchTool_LinkFallsBackToCourse(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	_, err := tool.Execute(context.Background(), tools.SearchParams{Query: "precision recall", LessonNumber: domain.IntPtr(2)})
	require.NoError(t, err)

	sources := tool.LastSources()
	require.Len(t, sources, 1)
	assert.Equal(t, "https://example.com/course", sources[0].Link)
}

func TestSearchTool_FormattingIsIdempotent(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	ctx := context.Background()
	p := tools.SearchParams{Query: "machine learning", CourseName: "Test Course"}

	first, err := tool.Execute(ctx, p)
	require.NoError(t, err)
	second, err := tool.Execute(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchTool_SourcesOverwrite(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	ctx := context.Background()

	_, err := tool.Execute(ctx, tools.SearchParams{Query: "machine learning"})
	require.NoError(t, err)
	require.Greater(t, len(tool.LastSources()), 1)

	_, err = tool.Execute(ctx, tools.SearchParams{Query: "evaluation", LessonNumber: domain.IntPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{{Text: "Test Course on AI - Lesson 2", Link: "https://example.com/course"}}, tool.LastSources())

	_, err = tool.Execute(ctx, tools.SearchParams{Query: "x", CourseName: "Nonexistent Course XYZ"})
	require.NoError(t, err)
	assert.Empty(t, tool.LastSources())
}

func TestSearchTool_UnresolvedCourse(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	out, err := tool.Execute(context.Background(), tools.SearchParams{Query: "x", CourseName: "Nonexistent Course XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "No course found matching 'Nonexistent Course XYZ'", out)
}

func TestSearchTool_EmptyMessageNamesFilters(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	out, err := tool.Execute(context.Background(), tools.SearchParams{Query: "x", CourseName: "Test Course", LessonNumber: domain.IntPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, "No relevant content found in course 'Test Course' in lesson 7.", out)

	empty := tools.NewSearchTool(storetest.New(t))
	out, err = empty.Execute(context.Background(), tools.SearchParams{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, "No relevant content found.", out)
}

func TestSearchTool_EmptyMessageTrimsCourseName(t *testing.T) {
	tool := tools.NewSearchTool(storetest.NewPopulated(t))
	ctx := context.Background()

	out, err := tool.Execute(ctx, tools.SearchParams{Query: "x", CourseName: "   ", LessonNumber: domain.IntPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, "No relevant content found in lesson 7.", out)

	out, err = tool.Execute(ctx, tools.SearchParams{Query: "x", CourseName: "  Test Course ", LessonNumber: domain.IntPtr(7)})
	require.NoError(t, err)
	assert.Equal(t, "No relevant content found in course 'Test Course' in lesson 7.", out)
}

func TestSearchTool_RunValidatesInput(t *testing.T) {
	tool := tools.NewSearchTool(storetest.New(t))
	ctx := context.Background()

	_, err := tool.Run(ctx, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, tools.ErrInvalidInput)

	_, err = tool.Run(ctx, json.RawMessage(`{"query":"x","lesson_number":"two"}`))
	assert.ErrorIs(t, err, tools.ErrInvalidInput)

	_, err = tool.Run(ctx, json.RawMessage(`{"query":"x","lesson_number":-1}`))
	assert.ErrorIs(t, err, tools.ErrInvalidInput)

	_, err = tool.Run(ctx, json.RawMessage(`{"query":"x","lesson_number":1}`))
	assert.NoError(t, err)
}

func TestOutlineTool(t *testing.T) {
	tool := tools.NewOutlineTool(storetest.NewPopulated(t))
	out, err := tool.Execute(context.Background(), tools.OutlineParams{CourseName: "Test Course"})
	require.NoError(t, err)

	i0 := strings.Index(out, "Test Course on AI")
	l0 := strings.Index(out, "Lesson 0")
	l1 := strings.Index(out, "Lesson 1")
	l2 := strings.Index(out, "Lesson 2")
	require.True(t, i0 >= 0 && l0 >= 0 && l1 >= 0 && l2 >= 0, out)
	assert.True(t, i0 < l0 && l0 < l1 && l1 < l2, out)
	assert.Contains(t, out, "Course Link: https://example.com/course")
}

func TestOutlineTool_Unresolved(t *testing.T) {
	tool := tools.NewOutlineTool(storetest.NewPopulated(t))
	out, err := tool.Execute(context.Background(), tools.OutlineParams{CourseName: "Does Not Exist XYZ"})
	require.NoError(t, err)
	assert.Equal(t, "No course found matching 'Does Not Exist XYZ'", out)
}

func TestFormatOutline_SortsLessons(t *testing.T) {
	out := tools.FormatOutline(domain.Course{
		Title:   "C",
		Lessons: []domain.Lesson{{Number: 2, Title: "b"}, {Number: 0, Title: "a"}},
	})
	assert.Equal(t, "Course Title: C\nLessons (2 total):\nLesson 0: a\nLesson 2: b", out)
}

func TestToolsResolveIdentically(t *testing.T) {
	s := storetest.NewPopulated(t)
	ctx := context.Background()
	search := tools.NewSearchTool(s)
	outline := tools.NewOutlineTool(s)

	for _, name := range []string{"Test Course", "test course on ai", "Nonexistent Course XYZ"} {
		searchOut, err := search.Execute(ctx, tools.SearchParams{Query: "learning", CourseName: name})
		require.NoError(t, err)
		outlineOut, err := outline.Execute(ctx, tools.OutlineParams{CourseName: name})
		require.NoError(t, err)
		searchMiss := strings.HasPrefix(searchOut, "No course found")
		outlineMiss := strings.HasPrefix(outlineOut, "No course found")
		assert.Equal(t, searchMiss, outlineMiss, name)
	}
}

type fakeTool struct {
	name    string
	out     string
	err     error
	produce []domain.Source
	sources []domain.Source
}

func (f *fakeTool) Definition() tools.Definition { return tools.Definition{Name: f.name} }
func (f *fakeTool) Run(context.Context, json.RawMessage) (string, error) {
	if f.produce != nil {
		f.sources = f.produce
	}
	return f.out, f.err
}
func (f *fakeTool) LastSources() []domain.Source { return f.sources }
func (f *fakeTool) ResetSources()                { f.sources = nil }

func TestRegistry_RegisterAndDefinitions(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "b"}))
	require.NoError(t, r.Register(&fakeTool{name: "a"}))
	assert.ErrorIs(t, r.Register(&fakeTool{name: "a"}), tools.ErrDuplicateTool)
	assert.Error(t, r.Register(&fakeTool{}))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Name)
	assert.Equal(t, "a", defs[1].Name)
}

func TestRegistry_Execute(t *testing.T) {
	r := tools.NewRegistry()
	boom := errors.New("store down")
	require.NoError(t, r.Register(&fakeTool{name: "ok", out: "result"}))
	require.NoError(t, r.Register(&fakeTool{name: "bad", err: boom}))
	require.NoError(t, r.Register(&fakeTool{name: "invalid", err: tools.ErrInvalidInput}))
	ctx := context.Background()

	out, err := r.Execute(ctx, "ok", nil)
	require.NoError(t, err)
	assert.Equal(t, "result", out)

	_, err = r.Execute(ctx, "missing", nil)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)

	_, err = r.Execute(ctx, "bad", nil)
	assert.ErrorIs(t, err, boom)

	out, err = r.Execute(ctx, "invalid", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid parameters for tool 'invalid'")
}

func TestRegistry_Sources(t *testing.T) {
	ctx := context.Background()
	r := tools.NewRegistry()
	first := &fakeTool{name: "first", produce: []domain.Source{{Text: "A"}}}
	second := &fakeTool{name: "second", produce: []domain.Source{{Text: "B"}}}
	plain := &fakeTool{name: "plain"}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))
	require.NoError(t, r.Register(plain))
	assert.Empty(t, r.LastSources())

	_, err := r.Execute(ctx, "second", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{{Text: "B"}}, r.LastSources())

	_, err = r.Execute(ctx, "first", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{{Text: "A"}}, r.LastSources())

	_, err = r.Execute(ctx, "second", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{{Text: "B"}}, r.LastSources())

	_, err = r.Execute(ctx, "plain", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Source{{Text: "B"}}, r.LastSources())

	r.ResetSources()
	assert.Empty(t, r.LastSources())
	assert.Empty(t, first.sources)
}

func TestNewCourseRegistry(t *testing.T) {
	r := tools.NewCourseRegistry(storetest.NewPopulated(t))
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, tools.SearchToolName, defs[0].Name)
	assert.Equal(t, []string{"query"}, defs[0].Parameters.Required)
	assert.Equal(t, tools.OutlineToolName, defs[1].Name)

	out, err := r.Execute(context.Background(), tools.SearchToolName, json.RawMessage(`{"query":"machine learning"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "[Test Course on AI - Lesson 1]")
	assert.NotEmpty(t, r.LastSources())
}

var _ tools.CourseIndex = (*store.Store)(nil)
