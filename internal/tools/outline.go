package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"courserag/internal/domain"
	"courserag/internal/store"
)

const OutlineToolName = "get_course_outline"

// OutlineParams is the decoded input of the outline tool.
type OutlineParams struct {
	CourseName string `json:"course_name" validate:"required"`
}

// OutlineTool returns a course's title, link and lesson list.
type OutlineTool struct {
	index CourseIndex
}

func NewOutlineTool(index CourseIndex) *OutlineTool {
	return &OutlineTool{index: index}
}

func (t *OutlineTool) Definition() Definition {
	return Definition{
		Name:        OutlineToolName,
		Description: "Get the outline of a course: its title, link and the complete numbered lesson list",
		Parameters: Schema{
			Properties: map[string]Property{
				"course_name": {
					Type:        "string",
					Description: "Course title (partial matches work)",
				},
			},
			Required: []string{"course_name"},
		},
	}
}

func (t *OutlineTool) Run(ctx context.Context, input json.RawMessage) (string, error) {
	var p OutlineParams
	if err := decodeInput(input, &p); err != nil {
		return "", err
	}
	return t.Execute(ctx, p)
}

// Execute resolves the course name the same way the search tool does.
func (t *OutlineTool) Execute(ctx context.Context, p OutlineParams) (string, error) {
	title, ok, err := t.index.ResolveCourseName(ctx, p.CourseName)
	if err != nil {
		return "", err
	}
	if !ok {
		return store.NoCourseMessage(p.CourseName), nil
	}
	course, ok, err := t.index.Course(ctx, title)
	if err != nil {
		return "", err
	}
	if !ok {
		return store.NoCourseMessage(p.CourseName), nil
	}
	return FormatOutline(course), nil
}

// FormatOutline renders a course with lessons in ascending number order.
func FormatOutline(c domain.Course) string {
	lessons := make([]domain.Lesson, len(c.Lessons))
	copy(lessons, c.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Number < lessons[j].Number })

	var b strings.Builder
	fmt.Fprintf(&b, "Course Title: %s\n", c.Title)
	if c.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", c.Link)
	}
	if c.Instructor != "" {
		fmt.Fprintf(&b, "Course Instructor: %s\n", c.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d total):", len(lessons))
	for _, l := range lessons {
		fmt.Fprintf(&b, "\nLesson %d: %s", l.Number, l.Title)
	}
	return b.String()
}
