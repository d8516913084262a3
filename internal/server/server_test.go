package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	"courserag/internal/service"
)

type fakeService struct {
	sessions int
	queries  []string
	ids      []string
	err      error
}

func (f *fakeService) Query(_ context.Context, query, sessionID string) (domain.Answer, error) {
	if err := service.ValidateQuery(query); err != nil {
		return domain.Answer{}, err
	}
	if f.err != nil {
		return domain.Answer{}, f.err
	}
	f.queries = append(f.queries, query)
	f.ids = append(f.ids, sessionID)
	return domain.Answer{
		Text:    "answer to " + query,
		Sources: []domain.Source{{Text: "Test Course on AI - Lesson 1", Link: "https://example.com/lesson1"}},
	}, nil
}

func (f *fakeService) CreateSession() string {
	f.sessions++
	return fmt.Sprintf("session_%d", f.sessions)
}

func (f *fakeService) CourseAnalytics(context.Context) (domain.Analytics, error) {
	return domain.Analytics{TotalCourses: 1, CourseTitles: []string{"Test Course on AI"}}, nil
}

func do(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestQuery_CreatesSession(t *testing.T) {
	svc := &fakeService{}
	s := New(Config{}, svc, nil)

	code, body := do(t, s, http.MethodPost, "/api/query", `{"query":"What is machine learning?"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "answer to What is machine learning?", body["answer"])
	assert.Equal(t, "session_1", body["session_id"])
	sources := body["sources"].([]any)
	require.Len(t, sources, 1)
	src := sources[0].(map[string]any)
	assert.Equal(t, "Test Course on AI - Lesson 1", src["text"])
	assert.Equal(t, "https://example.com/lesson1", src["link"])
	assert.Equal(t, []string{"session_1"}, svc.ids)
}

func TestQuery_KeepsGivenSession(t *testing.T) {
	svc := &fakeService{}
	s := New(Config{}, svc, nil)

	code, body := do(t, s, http.MethodPost, "/api/query", `{"query":"more","session_id":"abc"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, 0, svc.sessions)
}

func TestQuery_Unprocessable(t *testing.T) {
	s := New(Config{}, &fakeService{}, nil)
	for _, body := range []string{`{}`, `{"query":null}`, `invalid json`, `{"query":""}`, `{"query":"` + strings.Repeat("x", 1001) + `"}`} {
		code, out := do(t, s, http.MethodPost, "/api/query", body)
		assert.Equal(t, http.StatusUnprocessableEntity, code, body)
		assert.NotEmpty(t, out["detail"], body)
	}
}

func TestQuery_InvalidQueryCreatesNoSession(t *testing.T) {
	svc := &fakeService{}
	s := New(Config{}, svc, nil)
	for _, body := range []string{`{"query":""}`, `{"query":"   "}`, `{"query":"` + strings.Repeat("x", 1001) + `"}`} {
		code, _ := do(t, s, http.MethodPost, "/api/query", body)
		assert.Equal(t, http.StatusUnprocessableEntity, code, body)
	}
	assert.Equal(t, 0, svc.sessions)
	assert.Empty(t, svc.ids)
}

func TestQuery_InternalError(t *testing.T) {
	s := New(Config{}, &fakeService{err: errors.New("engine unreachable")}, nil)
	code, out := do(t, s, http.MethodPost, "/api/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, out["detail"], "engine unreachable")
}

func TestCourses(t *testing.T) {
	s := New(Config{}, &fakeService{}, nil)
	code, out := do(t, s, http.MethodGet, "/api/courses", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, out["total_courses"])
	assert.Equal(t, []any{"Test Course on AI"}, out["course_titles"])
}

func TestCreateSession(t *testing.T) {
	s := New(Config{}, &fakeService{}, nil)
	code, out := do(t, s, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "session_1", out["session_id"])
}

func TestCORS(t *testing.T) {
	s := New(Config{CORSOrigins: "*"}, &fakeService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
