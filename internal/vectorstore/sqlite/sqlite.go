package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"courserag/internal/vectorstore"
	"courserag/internal/vectorstore/sqlite/migrations"
)

// Storage keeps vectors in a single SQLite file. Similarity is computed in
// Go over the rows that pass the metadata filter.
type Storage struct {
	db   *sql.DB
	path string
}

var _ vectorstore.Storage = (*Storage)(nil)

// NewStorage opens (or creates) the database at path and applies migrations.
func NewStorage(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Storage{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) migrate(fsys embed.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Storage) Init(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	existing, err := s.dimension(ctx, collection)
	switch {
	case err == nil:
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has %d, requested %d", vectorstore.ErrDimensionMismatch, collection, existing, dimension)
		}
		return nil
	case !errors.Is(err, vectorstore.ErrCollectionNotFound):
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO collections (name, dimension) VALUES (?, ?)", collection, dimension)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

func (s *Storage) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, "SELECT dimension FROM collections WHERE name = ?", collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection, id, document, metadata, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			vector = excluded.vector
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		meta := r.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("marshalling metadata for %q: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Document, string(metaJSON), float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("upserting %q: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, limit int, where vectorstore.Filter) ([]vectorstore.Hit, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, vectorstore.ErrDimensionMismatch
	}

	query := "SELECT id, document, metadata, vector FROM records WHERE collection = ?"
	args := []any{collection}
	clause, filterArgs := filterClause(where)
	query += clause + " ORDER BY seq"
	args = append(args, filterArgs...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var hits []vectorstore.Hit
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, vectorstore.Hit{
			ID:       r.ID,
			Document: r.Document,
			Metadata: r.Metadata,
			Distance: vectorstore.CosineDistance(r.Vector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vectorstore.SortHits(hits, limit), nil
}

// filterClause turns equality constraints into json_extract comparisons.
// Keys are sorted so the generated SQL is stable.
func filterClause(where vectorstore.Filter) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		b.WriteString(" AND json_extract(metadata, ?) = ?")
		args = append(args, "$."+k, where[k])
	}
	return b.String(), args
}

func (s *Storage) Get(ctx context.Context, collection string, ids []string) ([]vectorstore.Record, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return nil, err
	}
	if ids == nil {
		return s.all(ctx, collection)
	}
	if len(ids) == 0 {
		return []vectorstore.Record{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document, metadata, vector FROM records WHERE collection = ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]vectorstore.Record, len(ids))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]vectorstore.Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) all(ctx context.Context, collection string) ([]vectorstore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, document, metadata, vector FROM records WHERE collection = ? ORDER BY seq", collection)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	out := []vectorstore.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE collection = ?", collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func (s *Storage) Clear(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("clearing collection: %w", err)
	}
	return nil
}

func scanRecord(rows *sql.Rows) (vectorstore.Record, error) {
	var (
		r        vectorstore.Record
		metaJSON string
		blob     []byte
	)
	if err := rows.Scan(&r.ID, &r.Document, &metaJSON, &blob); err != nil {
		return r, fmt.Errorf("scanning record: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
		return r, fmt.Errorf("decoding metadata for %q: %w", r.ID, err)
	}
	r.Vector = bytesToFloat32Slice(blob)
	return r, nil
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
