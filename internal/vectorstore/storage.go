package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrCollectionNotFound = errors.New("collection not initialised")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// Record is one stored vector together with its document text and metadata.
type Record struct {
	ID       string
	Vector   []float32
	Document string
	Metadata map[string]any
}

// Hit is a similarity search result. Distance is 1 - cosine similarity,
// so smaller is closer.
type Hit struct {
	ID       string
	Document string
	Metadata map[string]any
	Distance float64
}

// Filter is a conjunction of metadata equality constraints.
type Filter map[string]any

// Storage persists vectors in named collections and supports filtered similarity search.
type Storage interface {
	// Init creates the collection if it does not exist.
	Init(ctx context.Context, collection string, dimension int) error
	// Upsert inserts records, replacing any with the same ID.
	Upsert(ctx context.Context, collection string, records []Record) error
	// Query returns up to limit hits ordered by ascending distance.
	Query(ctx context.Context, collection string, vector []float32, limit int, where Filter) ([]Hit, error)
	// Get returns records by ID in request order, skipping unknown IDs.
	// A nil ids slice returns every record in insertion order.
	Get(ctx context.Context, collection string, ids []string) ([]Record, error)
	Count(ctx context.Context, collection string) (int, error)
	// Clear removes every record from the collection but keeps it initialised.
	Clear(ctx context.Context, collection string) error
	Close() error
}

// Matches reports whether metadata satisfies every constraint in f.
// Numbers compare by value regardless of their Go type.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !ValuesEqual(got, want) {
			return false
		}
	}
	return true
}

// ValuesEqual compares metadata values, treating all numeric kinds as float64.
func ValuesEqual(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// CosineDistance returns 1 - cos(a, b). A zero-norm vector has similarity 0.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// SortHits orders hits by ascending distance, keeping insertion order on ties,
// and truncates to limit.
func SortHits(hits []Hit, limit int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// CheckDimension validates record vectors against the collection dimension.
func CheckDimension(records []Record, dimension int) error {
	for _, r := range records {
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %q has %d, collection has %d", ErrDimensionMismatch, r.ID, len(r.Vector), dimension)
		}
	}
	return nil
}
