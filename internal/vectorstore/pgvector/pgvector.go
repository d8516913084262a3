package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"courserag/internal/vectorstore"
)

// Storage keeps every collection in one Postgres table and lets pgvector
// rank rows with its cosine distance operator (<=>).
type Storage struct {
	pool        *pgxpool.Pool
	table       string
	collections string
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage connects to dsn and ensures the schema exists.
func NewStorage(ctx context.Context, dsn, table string) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	// The extension must exist before the codec can be registered.
	bootstrap, err := pgx.ConnectConfig(ctx, cfg.ConnConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	_, err = bootstrap.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	_ = bootstrap.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	s := &Storage{
		pool:        pool,
		table:       pgx.Identifier{table}.Sanitize(),
		collections: pgx.Identifier{table + "_collections"}.Sanitize(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`, s.collections),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			seq        BIGSERIAL PRIMARY KEY,
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			document   TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector NOT NULL,
			UNIQUE (collection, id)
		)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrating schema: %w", err)
		}
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) Init(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (name, dimension) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING", s.collections),
		collection, dimension)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	existing, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if existing != dimension {
		return fmt.Errorf("%w: collection %q has %d, requested %d", vectorstore.ErrDimensionMismatch, collection, existing, dimension)
	}
	return nil
}

func (s *Storage) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT dimension FROM %s WHERE name = $1", s.collections), collection).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, vectorstore.ErrCollectionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection: %w", err)
	}
	return dim, nil
}

func (s *Storage) Upsert(ctx context.Context, collection string, records []vectorstore.Record) error {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if err := vectorstore.CheckDimension(records, dim); err != nil {
		return err
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (collection, id, document, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = EXCLUDED.document,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, s.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %q: %w", r.ID, err)
		}
		batch.Queue(sql, collection, r.ID, r.Document, string(metaJSON), pgvector.NewVector(r.Vector))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting records: %w", err)
	}
	return nil
}

// buildQuery renders the similarity query. A metadata filter becomes a single
// JSONB containment test, which compares numbers by value.
func buildQuery(table string, where vectorstore.Filter, limit int) (string, []any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, document, metadata::text, (embedding <=> $1)::float8 AS distance FROM %s WHERE collection = $2", table)
	args := []any{}
	if len(where) > 0 {
		filterJSON, err := json.Marshal(map[string]any(where))
		if err != nil {
			return "", nil, fmt.Errorf("marshalling filter: %w", err)
		}
		b.WriteString(" AND metadata @> $3::jsonb")
		args = append(args, string(filterJSON))
	}
	b.WriteString(" ORDER BY distance, seq")
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String(), args, nil
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, limit int, where vectorstore.Filter) ([]vectorstore.Hit, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	sql, filterArgs, err := buildQuery(s.table, where, limit)
	if err != nil {
		return nil, err
	}
	args := append([]any{pgvector.NewVector(vector), collection}, filterArgs...)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		var (
			h        vectorstore.Hit
			metaJSON string
		)
		if err := rows.Scan(&h.ID, &h.Document, &metaJSON, &h.Distance); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &h.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %q: %w", h.ID, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Storage) Get(ctx context.Context, collection string, ids []string) ([]vectorstore.Record, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return nil, err
	}
	base := fmt.Sprintf("SELECT id, document, metadata::text, embedding FROM %s WHERE collection = $1", s.table)
	var (
		rows pgx.Rows
		err  error
	)
	if ids == nil {
		rows, err = s.pool.Query(ctx, base+" ORDER BY seq", collection)
	} else {
		rows, err = s.pool.Query(ctx, base+" AND id = ANY($2)", collection, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var all []vectorstore.Record
	for rows.Next() {
		var (
			r        vectorstore.Record
			metaJSON string
			vec      pgvector.Vector
		)
		if err := rows.Scan(&r.ID, &r.Document, &metaJSON, &vec); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %q: %w", r.ID, err)
		}
		r.Vector = vec.Slice()
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ids == nil {
		if all == nil {
			all = []vectorstore.Record{}
		}
		return all, nil
	}

	byID := make(map[string]vectorstore.Record, len(all))
	for _, r := range all {
		byID[r.ID] = r
	}
	out := make([]vectorstore.Record, 0, len(all))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE collection = $1", s.table), collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (s *Storage) Clear(ctx context.Context, collection string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE collection = $1", s.table), collection); err != nil {
		return fmt.Errorf("clearing collection: %w", err)
	}
	return nil
}
