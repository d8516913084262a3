package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"courserag/internal/domain"
	"courserag/internal/vectorstore"
)

const (
	CatalogCollection = "course_catalog"
	ContentCollection = "course_content"
)

// Metadata keys shared by the collections.
const (
	KeyTitle        = "title"
	KeyInstructor   = "instructor"
	KeyCourseLink   = "course_link"
	KeyLessonsJSON  = "lessons_json"
	KeyLessonCount  = "lesson_count"
	KeyCourseTitle  = "course_title"
	KeyLessonNumber = "lesson_number"
	KeyChunkIndex   = "chunk_index"
)

// Config tunes retrieval.
type Config struct {
	MaxResults int
	// ResolveMaxDistance is the largest distance at which a catalog title
	// still counts as a match for a user-supplied course name. With a
	// RawEmbedder the distance is one minus the share of the name the title
	// covers, otherwise it is cosine distance.
	ResolveMaxDistance float64
}

// RawEmbedder is implemented by embedders that expose term weights before
// normalisation. The dot product of two raw vectors measures shared terms,
// which lets a short name like "MCP" match a long title it is part of.
type RawEmbedder interface {
	EmbedRaw(ctx context.Context, text string) ([]float32, error)
}

// resolveCandidates is how many nearest catalog titles are rescored.
const resolveCandidates = 5

// Store is the two-collection semantic index: a catalog with one entry per
// course and a content index with one entry per chunk.
type Store struct {
	embedder           domain.Embedder
	raw                RawEmbedder
	storage            vectorstore.Storage
	maxResults         int
	resolveMaxDistance float64
	log                *zap.Logger
}

func New(embedder domain.Embedder, storage vectorstore.Storage, cfg Config, log *zap.Logger) *Store {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.ResolveMaxDistance <= 0 {
		cfg.ResolveMaxDistance = 0.5
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		embedder:           embedder,
		raw:                rawEmbedder(embedder),
		storage:            storage,
		maxResults:         cfg.MaxResults,
		resolveMaxDistance: cfg.ResolveMaxDistance,
		log:                log,
	}
}

// Init creates both collections sized for the embedder.
func (s *Store) Init(ctx context.Context) error {
	for _, c := range []string{CatalogCollection, ContentCollection} {
		if err := s.storage.Init(ctx, c, s.embedder.Dimension()); err != nil {
			return fmt.Errorf("init %s: %w", c, err)
		}
	}
	return nil
}

// Query describes a content search. Empty CourseName and nil LessonNumber mean no filter.
type Query struct {
	Text         string
	CourseName   string
	LessonNumber *int
	Limit        int
}

// SearchResults holds parallel slices of matched documents. Error is set,
// and the slices are empty, when a course filter could not be resolved.
type SearchResults struct {
	Documents []string
	Metadata  []map[string]any
	Distances []float64
	Error     string
}

// Empty reports whether there are no documents.
func (r SearchResults) Empty() bool { return len(r.Documents) == 0 }

// NoCourseMessage is the resolution-miss text shown to the reasoning engine.
func NoCourseMessage(name string) string {
	return fmt.Sprintf("No course found matching '%s'", name)
}

// Search resolves the optional course filter and runs a nearest-neighbour
// query over the content index. An unresolved course is reported in the
// result, not as an error.
func (s *Store) Search(ctx context.Context, q Query) (SearchResults, error) {
	where := vectorstore.Filter{}
	if name := strings.TrimSpace(q.CourseName); name != "" {
		title, ok, err := s.ResolveCourseName(ctx, name)
		if err != nil {
			return SearchResults{}, err
		}
		if !ok {
			return SearchResults{Error: NoCourseMessage(q.CourseName)}, nil
		}
		where[KeyCourseTitle] = title
	}
	if q.LessonNumber != nil {
		where[KeyLessonNumber] = *q.LessonNumber
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.maxResults
	}

	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return SearchResults{}, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.storage.Query(ctx, ContentCollection, vec, limit, where)
	if err != nil {
		return SearchResults{}, fmt.Errorf("search content: %w", err)
	}

	res := SearchResults{
		Documents: make([]string, 0, len(hits)),
		Metadata:  make([]map[string]any, 0, len(hits)),
		Distances: make([]float64, 0, len(hits)),
	}
	for _, h := range hits {
		res.Documents = append(res.Documents, h.Document)
		res.Metadata = append(res.Metadata, h.Metadata)
		res.Distances = append(res.Distances, h.Distance)
	}
	s.log.Debug("content search",
		zap.String("query", q.Text),
		zap.Any("filter", map[string]any(where)),
		zap.Int("hits", len(hits)))
	return res, nil
}

// ResolveCourseName maps a possibly partial course name to the closest
// catalog title. The nearest titles by embedding are rescored by how much of
// the name they cover when the embedder supports it. It reports false when
// the catalog is empty or the best candidate is too far away.
func (s *Store) ResolveCourseName(ctx context.Context, name string) (string, bool, error) {
	vec, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("embed course name: %w", err)
	}
	hits, err := s.storage.Query(ctx, CatalogCollection, vec, resolveCandidates, nil)
	if err != nil {
		return "", false, fmt.Errorf("search catalog: %w", err)
	}
	if len(hits) == 0 {
		return "", false, nil
	}
	best, distance := hits[0], hits[0].Distance
	if s.raw != nil {
		best, distance, err = s.bestCoverage(ctx, name, hits)
		if err != nil {
			return "", false, err
		}
	}
	if distance > s.resolveMaxDistance {
		s.log.Debug("course name unresolved",
			zap.String("name", name),
			zap.String("closest", best.ID),
			zap.Float64("distance", distance))
		return "", false, nil
	}
	return hitTitle(best), true, nil
}

// bestCoverage picks the candidate covering the largest share of name's term
// weight. Ties keep the embedding order. The returned distance is one minus
// that share, clamped to [0, 1].
func (s *Store) bestCoverage(ctx context.Context, name string, hits []vectorstore.Hit) (vectorstore.Hit, float64, error) {
	q, err := s.raw.EmbedRaw(ctx, name)
	if err != nil {
		return vectorstore.Hit{}, 0, fmt.Errorf("embed course name: %w", err)
	}
	self := dot(q, q)
	if self == 0 {
		return hits[0], 1, nil
	}
	best, bestShare := hits[0], math.Inf(-1)
	for _, h := range hits {
		t, err := s.raw.EmbedRaw(ctx, hitTitle(h))
		if err != nil {
			return vectorstore.Hit{}, 0, fmt.Errorf("embed title: %w", err)
		}
		if share := dot(q, t) / self; share > bestShare {
			best, bestShare = h, share
		}
	}
	return best, 1 - math.Max(0, math.Min(1, bestShare)), nil
}

func hitTitle(h vectorstore.Hit) string {
	if title, _ := h.Metadata[KeyTitle].(string); title != "" {
		return title
	}
	return h.ID
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		if i >= len(b) {
			break
		}
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// rawEmbedder finds a RawEmbedder in e or the embedders it wraps.
func rawEmbedder(e domain.Embedder) RawEmbedder {
	for e != nil {
		if r, ok := e.(RawEmbedder); ok {
			return r
		}
		u, ok := e.(interface{ Unwrap() domain.Embedder })
		if !ok {
			return nil
		}
		e = u.Unwrap()
	}
	return nil
}

// AddCourseMetadata upserts the catalog entry for course, keyed by title.
func (s *Store) AddCourseMetadata(ctx context.Context, course domain.Course) error {
	if course.Title == "" {
		return errors.New("course title is required")
	}
	lessons, err := json.Marshal(course.Lessons)
	if err != nil {
		return fmt.Errorf("marshal lessons: %w", err)
	}
	vec, err := s.embedder.Embed(ctx, course.Title)
	if err != nil {
		return fmt.Errorf("embed title: %w", err)
	}
	rec := vectorstore.Record{
		ID:       course.Title,
		Vector:   vec,
		Document: course.Title,
		Metadata: map[string]any{
			KeyTitle:       course.Title,
			KeyInstructor:  course.Instructor,
			KeyCourseLink:  course.Link,
			KeyLessonsJSON: string(lessons),
			KeyLessonCount: len(course.Lessons),
		},
	}
	if err := s.storage.Upsert(ctx, CatalogCollection, []vectorstore.Record{rec}); err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}
	return nil
}

// ChunkID derives the stable content identifier of a chunk.
func ChunkID(courseTitle string, chunkIndex int) string {
	return strings.ReplaceAll(courseTitle, " ", "_") + "_" + strconv.Itoa(chunkIndex)
}

// AddCourseContent upserts chunks into the content index. Re-adding the
// same course overwrites its chunks.
func (s *Store) AddCourseContent(ctx context.Context, chunks []domain.CourseChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records := make([]vectorstore.Record, 0, len(chunks))
	for _, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.Content)
		if err != nil {
			return fmt.Errorf("embed chunk %d of %q: %w", c.ChunkIndex, c.CourseTitle, err)
		}
		meta := map[string]any{
			KeyCourseTitle: c.CourseTitle,
			KeyChunkIndex:  c.ChunkIndex,
		}
		if c.LessonNumber != nil {
			meta[KeyLessonNumber] = *c.LessonNumber
		}
		records = append(records, vectorstore.Record{
			ID:       ChunkID(c.CourseTitle, c.ChunkIndex),
			Vector:   vec,
			Document: c.Content,
			Metadata: meta,
		})
	}
	if err := s.storage.Upsert(ctx, ContentCollection, records); err != nil {
		return fmt.Errorf("upsert content: %w", err)
	}
	return nil
}

// ExistingCourseTitles lists catalog titles in insertion order.
func (s *Store) ExistingCourseTitles(ctx context.Context) ([]string, error) {
	recs, err := s.storage.Get(ctx, CatalogCollection, nil)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	titles := make([]string, 0, len(recs))
	for _, r := range recs {
		titles = append(titles, r.ID)
	}
	return titles, nil
}

func (s *Store) CourseCount(ctx context.Context) (int, error) {
	n, err := s.storage.Count(ctx, CatalogCollection)
	if err != nil {
		return 0, fmt.Errorf("count catalog: %w", err)
	}
	return n, nil
}

// ContentCount returns the number of indexed chunks.
func (s *Store) ContentCount(ctx context.Context) (int, error) {
	n, err := s.storage.Count(ctx, ContentCollection)
	if err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// AllCourses returns every catalog entry with its lesson list decoded.
func (s *Store) AllCourses(ctx context.Context) ([]domain.Course, error) {
	recs, err := s.storage.Get(ctx, CatalogCollection, nil)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	courses := make([]domain.Course, 0, len(recs))
	for _, r := range recs {
		c, err := decodeCourse(r)
		if err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, nil
}

// Course looks up a catalog entry by exact title.
func (s *Store) Course(ctx context.Context, title string) (domain.Course, bool, error) {
	recs, err := s.storage.Get(ctx, CatalogCollection, []string{title})
	if err != nil {
		return domain.Course{}, false, fmt.Errorf("read catalog: %w", err)
	}
	if len(recs) == 0 {
		return domain.Course{}, false, nil
	}
	c, err := decodeCourse(recs[0])
	if err != nil {
		return domain.Course{}, false, err
	}
	return c, true, nil
}

// CourseLink returns the course's link; false when the course or link is absent.
func (s *Store) CourseLink(ctx context.Context, title string) (string, bool, error) {
	c, ok, err := s.Course(ctx, title)
	if err != nil || !ok || c.Link == "" {
		return "", false, err
	}
	return c.Link, true, nil
}

// LessonLink returns a lesson's link; false when the course, lesson or link is absent.
func (s *Store) LessonLink(ctx context.Context, title string, lessonNumber int) (string, bool, error) {
	c, ok, err := s.Course(ctx, title)
	if err != nil || !ok {
		return "", false, err
	}
	l, ok := c.Lesson(lessonNumber)
	if !ok || l.Link == "" {
		return "", false, nil
	}
	return l.Link, true, nil
}

// Clear empties both collections.
func (s *Store) Clear(ctx context.Context) error {
	for _, c := range []string{CatalogCollection, ContentCollection} {
		if err := s.storage.Clear(ctx, c); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
	}
	return nil
}

func decodeCourse(r vectorstore.Record) (domain.Course, error) {
	c := domain.Course{Title: r.ID}
	if t, ok := r.Metadata[KeyTitle].(string); ok && t != "" {
		c.Title = t
	}
	c.Link, _ = r.Metadata[KeyCourseLink].(string)
	c.Instructor, _ = r.Metadata[KeyInstructor].(string)
	if raw, ok := r.Metadata[KeyLessonsJSON].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Lessons); err != nil {
			return c, fmt.Errorf("decode lessons of %q: %w", c.Title, err)
		}
	}
	return c, nil
}

// CourseTitleOf extracts the course title from content metadata.
func CourseTitleOf(meta map[string]any) string {
	t, _ := meta[KeyCourseTitle].(string)
	return t
}

// LessonNumberOf extracts the lesson number from content metadata.
// Backends return numbers as int or float64 depending on their encoding.
func LessonNumberOf(meta map[string]any) (int, bool) {
	switch v := meta[KeyLessonNumber].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
