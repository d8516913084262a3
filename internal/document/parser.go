package document

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"courserag/internal/domain"
)

var ErrNoTitle = errors.New("document has no course title")

var (
	courseTitleRe      = regexp.MustCompile(`(?i)^course\s+title:\s*(.*)$`)
	courseLinkRe       = regexp.MustCompile(`(?i)^course\s+link:\s*(.*)$`)
	courseInstructorRe = regexp.MustCompile(`(?i)^course\s+instructor:\s*(.*)$`)
	lessonRe           = regexp.MustCompile(`(?i)^lesson\s+(\d+):\s*(.*)$`)
	lessonLinkRe       = regexp.MustCompile(`(?i)^lesson\s+link:\s*(.*)$`)
)

type lessonText struct {
	lesson domain.Lesson
	body   []string
}

// Parse reads a course document. name is only used in error messages.
func Parse(name, text string, chunker domain.Chunker) (domain.Course, []domain.CourseChunk, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var (
		course   domain.Course
		preface  []string
		lessons  []*lessonText
		current  *lessonText
		fallback string
	)
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if m := lessonRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return domain.Course{}, nil, fmt.Errorf("%s: lesson number %q: %w", name, m[1], err)
			}
			current = &lessonText{lesson: domain.Lesson{Number: n, Title: strings.TrimSpace(m[2])}}
			lessons = append(lessons, current)
			if j := nextNonBlank(lines, i+1); j >= 0 {
				if lm := lessonLinkRe.FindStringSubmatch(strings.TrimSpace(lines[j])); lm != nil {
					current.lesson.Link = strings.TrimSpace(lm[1])
					i = j
				}
			}
			continue
		}
		if current != nil {
			current.body = append(current.body, line)
			continue
		}
		switch {
		case courseTitleRe.MatchString(line):
			course.Title = strings.TrimSpace(courseTitleRe.FindStringSubmatch(line)[1])
		case courseLinkRe.MatchString(line):
			course.Link = strings.TrimSpace(courseLinkRe.FindStringSubmatch(line)[1])
		case courseInstructorRe.MatchString(line):
			course.Instructor = strings.TrimSpace(courseInstructorRe.FindStringSubmatch(line)[1])
		case line != "" && fallback == "" && course.Title == "":
			fallback = line
		default:
			preface = append(preface, line)
		}
	}
	if course.Title == "" {
		course.Title = fallback
	} else if fallback != "" {
		preface = append([]string{fallback}, preface...)
	}
	if course.Title == "" {
		return domain.Course{}, nil, fmt.Errorf("%s: %w", name, ErrNoTitle)
	}

	var chunks []domain.CourseChunk
	add := func(content string, lesson *int) {
		chunks = append(chunks, domain.CourseChunk{
			Content:      content,
			CourseTitle:  course.Title,
			LessonNumber: lesson,
			ChunkIndex:   len(chunks),
		})
	}
	for _, c := range chunker.Split(strings.Join(preface, "\n")) {
		add(c, nil)
	}
	for _, lt := range lessons {
		course.Lessons = append(course.Lessons, lt.lesson)
		for i, c := range chunker.Split(strings.Join(lt.body, "\n")) {
			if i == 0 {
				c = fmt.Sprintf("Lesson %d content: %s", lt.lesson.Number, c)
			}
			add(c, domain.IntPtr(lt.lesson.Number))
		}
	}
	return course, chunks, nil
}

func nextNonBlank(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) != "" {
			return j
		}
	}
	return -1
}
