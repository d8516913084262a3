package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"courserag/internal/document"
	"courserag/internal/domain"
	"courserag/internal/reasoning"
	"courserag/internal/session"
	"courserag/internal/store"
	"courserag/internal/tools"
)

// MaxQueryLength is the longest accepted query, in characters.
const MaxQueryLength = 1000

var ErrInvalidQuery = errors.New("invalid query")

// ValidateQuery rejects blank and overlong queries.
func ValidateQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(q); n > MaxQueryLength {
		return fmt.Errorf("%w: query is %d characters, limit is %d", ErrInvalidQuery, n, MaxQueryLength)
	}
	return nil
}

// CourseSummary describes one ingested course.
type CourseSummary struct {
	Title   string
	Lessons int
	Chunks  int
	Summary string
}

// IngestReport is the outcome of loading a set of documents.
type IngestReport struct {
	Courses int
	Chunks  int
	Added   []CourseSummary
	Skipped []string
}

func (r *IngestReport) merge(o IngestReport) {
	r.Courses += o.Courses
	r.Chunks += o.Chunks
	r.Added = append(r.Added, o.Added...)
	r.Skipped = append(r.Skipped, o.Skipped...)
}

type RAGService struct {
	store            *store.Store
	chunker          domain.Chunker
	summarizer       domain.Summarizer
	orchestrator     *reasoning.Orchestrator
	sessions         *session.Manager
	log              *zap.Logger
	summarySentences int
}

var _ domain.QueryService = (*RAGService)(nil)

func NewRAGService(st *store.Store, chunker domain.Chunker, summarizer domain.Summarizer, orchestrator *reasoning.Orchestrator, sessions *session.Manager, log *zap.Logger) *RAGService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGService{
		store:            st,
		chunker:          chunker,
		summarizer:       summarizer,
		orchestrator:     orchestrator,
		sessions:         sessions,
		log:              log,
		summarySentences: 2,
	}
}

func (s *RAGService) CreateSession() string {
	return s.sessions.CreateSession()
}

// Query answers one question. With a session id the prior exchanges are
// passed to the engine and the new exchange is recorded; queries on the same
// session run one at a time.
func (s *RAGService) Query(ctx context.Context, query, sessionID string) (domain.Answer, error) {
	if err := ValidateQuery(query); err != nil {
		return domain.Answer{}, err
	}
	var history []domain.Exchange
	if sessionID != "" {
		release := s.sessions.Acquire(sessionID)
		defer release()
		history = s.sessions.History(sessionID)
	}

	// A fresh registry per query keeps citations from leaking between requests.
	registry := tools.NewCourseRegistry(s.store)
	registry.ResetSources()
	text, err := s.orchestrator.Generate(ctx, query, history, registry)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	sources := registry.LastSources()
	registry.ResetSources()
	if sources == nil {
		sources = []domain.Source{}
	}

	if sessionID != "" {
		s.sessions.AddExchange(sessionID, query, text)
	}
	s.log.Info("query answered",
		zap.String("session", sessionID),
		zap.Int("history", len(history)),
		zap.Int("sources", len(sources)))
	return domain.Answer{Text: text, Sources: sources}, nil
}

func (s *RAGService) CourseAnalytics(ctx context.Context) (domain.Analytics, error) {
	titles, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return domain.Analytics{}, err
	}
	return domain.Analytics{TotalCourses: len(titles), CourseTitles: titles}, nil
}

// AddCourseDocument parses one course file and indexes it, replacing any
// course with the same title.
func (s *RAGService) AddCourseDocument(ctx context.Context, path string) (CourseSummary, error) {
	course, chunks, err := s.parseFile(path)
	if err != nil {
		return CourseSummary{}, err
	}
	return s.index(ctx, course, chunks)
}

// AddCourseFolder indexes every .txt file in dir, skipping courses already
// in the catalog. clearExisting empties the index first.
func (s *RAGService) AddCourseFolder(ctx context.Context, dir string, clearExisting bool) (IngestReport, error) {
	var report IngestReport
	if clearExisting {
		s.log.Info("clearing course index")
		if err := s.store.Clear(ctx); err != nil {
			return report, err
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("read folder %s: %w", dir, err)
	}
	existing, err := s.store.ExistingCourseTitles(ctx)
	if err != nil {
		return report, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		seen[t] = struct{}{}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !isCourseFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	for _, f := range files {
		course, chunks, err := s.parseFile(f)
		if err != nil {
			if errors.Is(err, document.ErrNoTitle) {
				s.log.Warn("skipping document", zap.String("path", f), zap.Error(err))
				continue
			}
			return report, err
		}
		if _, ok := seen[course.Title]; ok {
			s.log.Info("course already indexed", zap.String("title", course.Title))
			report.Skipped = append(report.Skipped, course.Title)
			continue
		}
		sum, err := s.index(ctx, course, chunks)
		if err != nil {
			return report, err
		}
		seen[course.Title] = struct{}{}
		report.merge(IngestReport{Courses: 1, Chunks: sum.Chunks, Added: []CourseSummary{sum}})
	}
	return report, nil
}

// IngestPaths loads files, folders and glob patterns. Folders skip courses
// that are already indexed.
func (s *RAGService) IngestPaths(ctx context.Context, paths []string) (IngestReport, error) {
	var report IngestReport
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return report, err
			}
			if info.IsDir() {
				r, err := s.AddCourseFolder(ctx, m, false)
				if err != nil {
					return report, err
				}
				report.merge(r)
				continue
			}
			if !isCourseFile(m) {
				continue
			}
			sum, err := s.AddCourseDocument(ctx, m)
			if err != nil {
				return report, err
			}
			report.merge(IngestReport{Courses: 1, Chunks: sum.Chunks, Added: []CourseSummary{sum}})
		}
	}
	if report.Courses == 0 && len(report.Skipped) == 0 {
		return report, fmt.Errorf("no course documents found")
	}
	return report, nil
}

func (s *RAGService) parseFile(path string) (domain.Course, []domain.CourseChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Course{}, nil, err
	}
	return document.Parse(filepath.Base(path), string(data), s.chunker)
}

func (s *RAGService) index(ctx context.Context, course domain.Course, chunks []domain.CourseChunk) (CourseSummary, error) {
	if err := s.store.AddCourseMetadata(ctx, course); err != nil {
		return CourseSummary{}, err
	}
	if err := s.store.AddCourseContent(ctx, chunks); err != nil {
		return CourseSummary{}, err
	}
	sum := CourseSummary{Title: course.Title, Lessons: len(course.Lessons), Chunks: len(chunks)}
	if s.summarizer != nil && len(chunks) > 0 {
		var text strings.Builder
		for _, c := range chunks {
			text.WriteString(c.Content)
			text.WriteString("\n")
		}
		summary, err := s.summarizer.Summarize(text.String(), s.summarySentences)
		if err != nil {
			return CourseSummary{}, fmt.Errorf("summarize %q: %w", course.Title, err)
		}
		sum.Summary = summary
	}
	s.log.Info("course indexed",
		zap.String("title", course.Title),
		zap.Int("lessons", sum.Lessons),
		zap.Int("chunks", sum.Chunks))
	return sum, nil
}

func isCourseFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".txt")
}
