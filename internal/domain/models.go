package domain

// Lesson is a numbered unit of a course.
type Lesson struct {
	Number int    `json:"lesson_number"`
	Title  string `json:"lesson_title"`
	Link   string `json:"lesson_link,omitempty"`
}

// Course is identified by its title; there is no separate numeric id.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"course_link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons"`
}

// Lesson returns the lesson with the given number.
func (c Course) Lesson(number int) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.Number == number {
			return l, true
		}
	}
	return Lesson{}, false
}

// CourseChunk is the unit of retrieval. LessonNumber is nil for course-level text.
type CourseChunk struct {
	Content      string
	CourseTitle  string
	LessonNumber *int
	ChunkIndex   int
}

// Source is a citation attached to an answer. Link is empty when unknown.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link"`
}

// Exchange is one user question and the assistant's reply.
type Exchange struct {
	Query  string
	Answer string
}

// Answer is the result of a query: the generated text and the sources it drew on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Analytics summarises the course catalog.
type Analytics struct {
	TotalCourses int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
