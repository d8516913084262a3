package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"courserag/internal/domain"
	"courserag/internal/store"
)

const SearchToolName = "search_course_content"

// SearchParams is the decoded input of the search tool.
type SearchParams struct {
	Query        string `json:"query" validate:"required"`
	CourseName   string `json:"course_name,omitempty"`
	LessonNumber *int   `json:"lesson_number,omitempty" validate:"omitempty,min=0"`
}

// SearchTool runs semantic search over course content and remembers the
// sources of its most recent call.
type SearchTool struct {
	index   CourseIndex
	sources []domain.Source
}

func NewSearchTool(index CourseIndex) *SearchTool {
	return &SearchTool{index: index}
}

func (t *SearchTool) Definition() Definition {
	return Definition{
		Name:        SearchToolName,
		Description: "Search course materials with smart course name matching and lesson filtering",
		Parameters: Schema{
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "What to search for in the course content",
				},
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
				},
				"lesson_number": {
					Type:        "integer",
					Description: "Specific lesson number to search within (e.g. 1, 2, 3)",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *SearchTool) Run(ctx context.Context, input json.RawMessage) (string, error) {
	var p SearchParams
	if err := decodeInput(input, &p); err != nil {
		return "", err
	}
	return t.Execute(ctx, p)
}

// Execute searches with already-decoded parameters.
func (t *SearchTool) Execute(ctx context.Context, p SearchParams) (string, error) {
	res, err := t.index.Search(ctx, store.Query{
		Text:         p.Query,
		CourseName:   p.CourseName,
		LessonNumber: p.LessonNumber,
	})
	if err != nil {
		return "", err
	}
	if res.Error != "" {
		t.sources = nil
		return res.Error, nil
	}
	if res.Empty() {
		t.sources = nil
		return emptyMessage(p), nil
	}
	return t.format(ctx, res)
}

func emptyMessage(p SearchParams) string {
	var b strings.Builder
	b.WriteString("No relevant content found")
	if name := strings.TrimSpace(p.CourseName); name != "" {
		fmt.Fprintf(&b, " in course '%s'", name)
	}
	if p.LessonNumber != nil {
		fmt.Fprintf(&b, " in lesson %d", *p.LessonNumber)
	}
	b.WriteString(".")
	return b.String()
}

func (t *SearchTool) format(ctx context.Context, res store.SearchResults) (string, error) {
	courses := make(map[string]domain.Course)
	blocks := make([]string, 0, len(res.Documents))
	sources := make([]domain.Source, 0, len(res.Documents))

	for i, doc := range res.Documents {
		meta := res.Metadata[i]
		title := store.CourseTitleOf(meta)
		if title == "" {
			title = "unknown"
		}
		lesson, hasLesson := store.LessonNumberOf(meta)

		label := title
		if hasLesson {
			label = fmt.Sprintf("%s - Lesson %d", title, lesson)
		}
		blocks = append(blocks, "["+label+"]\n"+doc)

		course, ok := courses[title]
		if !ok {
			c, found, err := t.index.Course(ctx, title)
			if err != nil {
				return "", err
			}
			if found {
				course = c
			}
			courses[title] = course
		}
		link := course.Link
		if hasLesson {
			if l, ok := course.Lesson(lesson); ok && l.Link != "" {
				link = l.Link
			}
		}
		sources = append(sources, domain.Source{Text: label, Link: link})
	}

	t.sources = sources
	return strings.Join(blocks, "\n\n"), nil
}

// LastSources returns the sources of the most recent call.
func (t *SearchTool) LastSources() []domain.Source { return t.sources }

func (t *SearchTool) ResetSources() { t.sources = nil }
