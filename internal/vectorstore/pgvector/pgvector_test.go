package pgvector

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/storagetest"
)

func TestBuildQuery_NoFilter(t *testing.T) {
	sql, args, err := buildQuery(`"vecs"`, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, `SELECT id, document, metadata::text, (embedding <=> $1)::float8 AS distance FROM "vecs" WHERE collection = $2 ORDER BY distance, seq LIMIT 5`, sql)
	assert.Empty(t, args)
}

func TestBuildQuery_FilterIsContainment(t *testing.T) {
	sql, args, err := buildQuery(`"vecs"`, vectorstore.Filter{"course_title": "A", "lesson_number": 2}, 0)
	require.NoError(t, err)
	assert.Contains(t, sql, "metadata @> $3::jsonb")
	assert.NotContains(t, sql, "LIMIT")
	require.Len(t, args, 1)
	assert.JSONEq(t, `{"course_title":"A","lesson_number":2}`, args[0].(string))
}

// Set PGVECTOR_TEST_DSN to run against a database with the vector extension available.
func TestStorage_Conformance(t *testing.T) {
	dsn := os.Getenv("PGVECTOR_TEST_DSN")
	if dsn == "" {
		t.Skip("PGVECTOR_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	table := fmt.Sprintf("courserag_test_%d", time.Now().UnixNano())
	s, err := NewStorage(ctx, dsn, table)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.table)
		_, _ = s.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.collections)
		_ = s.Close()
	})

	storagetest.Run(t, s)
}
