package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"courserag/internal/vectorstore"
)

// Reserved payload keys. Qdrant point IDs must be UUIDs or integers, so the
// caller's ID travels in the payload next to the document text.
const (
	payloadID       = "_id"
	payloadDocument = "_document"
	payloadSeq      = "_seq"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates collections on Init.
type Storage struct {
	url    string
	apiKey string
	prefix string
	client *http.Client

	mu      sync.Mutex
	dims    map[string]int
	lastSeq int64
}

var _ vectorstore.Storage = (*Storage)(nil)

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		prefix: cfg.CollectionPrefix,
		client: &http.Client{Timeout: timeout},
		dims:   make(map[string]int),
	}
}

type apiError struct {
	status int
	method string
	url    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.status, http.StatusText(e.status))
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.status == http.StatusNotFound
}

func (s *Storage) collectionURL(collection string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.prefix, collection)
}

func pointID(collection, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+"/"+id)).String()
}

func (s *Storage) Init(ctx context.Context, collection string, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	existing, err := s.remoteDimension(ctx, collection)
	switch {
	case err == nil:
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has %d, requested %d", vectorstore.ErrDimensionMismatch, collection, existing, dimension)
		}
	case isNotFound(err):
		if err := s.create(ctx, collection, dimension); err != nil {
			return err
		}
	default:
		return err
	}
	s.mu.Lock()
	s.dims[collection] = dimension
	s.mu.Unlock()
	return nil
}

func (s *Storage) create(ctx context.Context, collection string, dimension int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(collection), body, nil)
}

func (s *Storage) remoteDimension(ctx context.Context, collection string) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(collection), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

func (s *Storage) dimension(ctx context.Context, collection string) (int, error) {
	s.mu.Lock()
	dim, ok := s.dims[collection]
	s.mu.Unlock()
	if ok {
		return dim, nil
	}
	dim, err := s.remoteDimension(ctx, collection)
	if isNotFound(err) {
		return 0, vectorstore.ErrCollectionNotFound
	}
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.dims[collection] = dim
	s.mu.Unlock()
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
	if len(records) == 0 {
		return nil
	}
	// Replacing a point keeps its original write position.
	existing, err := s.seqs(ctx, collection, records)
	if err != nil {
		return err
	}
	seq := s.nextSeq(len(records))
	points := make([]map[string]any, len(records))
	for i, r := range records {
		payload := make(map[string]any, len(r.Metadata)+3)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		payload[payloadID] = r.ID
		payload[payloadDocument] = r.Document
		if prev, ok := existing[r.ID]; ok {
			payload[payloadSeq] = prev
		} else {
			payload[payloadSeq] = seq + int64(i)
		}
		points[i] = map[string]any{
			"id":      pointID(collection, r.ID),
			"vector":  r.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL(collection)+"/points?wait=true", body, nil)
}

// nextSeq reserves n write positions. Microseconds keep the values exact
// once they round-trip through JSON as float64.
func (s *Storage) nextSeq(n int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := time.Now().UnixMicro()
	if seq <= s.lastSeq {
		seq = s.lastSeq + 1
	}
	s.lastSeq = seq + int64(n) - 1
	return seq
}

func (s *Storage) seqs(ctx context.Context, collection string, records []vectorstore.Record) (map[string]float64, error) {
	pids := make([]string, len(records))
	for i, r := range records {
		pids[i] = pointID(collection, r.ID)
	}
	var resp struct {
		Result []point `json:"result"`
	}
	req := map[string]any{"ids": pids, "with_payload": []string{payloadID, payloadSeq}}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(resp.Result))
	for _, p := range resp.Result {
		id, _, seq, _ := p.split()
		out[id] = seq
	}
	return out, nil
}

type point struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
	Vector  []float32      `json:"vector"`
}

// split separates the reserved keys from caller metadata.
func (p point) split() (id, document string, seq float64, meta map[string]any) {
	meta = make(map[string]any, len(p.Payload))
	for k, v := range p.Payload {
		switch k {
		case payloadID:
			id, _ = v.(string)
		case payloadDocument:
			document, _ = v.(string)
		case payloadSeq:
			seq, _ = v.(float64)
		default:
			meta[k] = v
		}
	}
	return id, document, seq, meta
}

func buildFilter(where vectorstore.Filter) map[string]any {
	if len(where) == 0 {
		return nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": where[k]}})
	}
	return map[string]any{"must": must}
}

func (s *Storage) Query(ctx context.Context, collection string, vector []float32, limit int, where vectorstore.Filter) ([]vectorstore.Hit, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, vectorstore.ErrDimensionMismatch
	}
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(where); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []point `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	hits := make([]vectorstore.Hit, 0, len(resp.Result))
	for _, p := range resp.Result {
		id, doc, _, meta := p.split()
		hits = append(hits, vectorstore.Hit{ID: id, Document: doc, Metadata: meta, Distance: 1 - p.Score})
	}
	return vectorstore.SortHits(hits, limit), nil
}

func (s *Storage) Get(ctx context.Context, collection string, ids []string) ([]vectorstore.Record, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return nil, err
	}
	var points []point
	if ids == nil {
		all, err := s.scroll(ctx, collection)
		if err != nil {
			return nil, err
		}
		points = all
	} else {
		if len(ids) == 0 {
			return []vectorstore.Record{}, nil
		}
		pids := make([]string, len(ids))
		for i, id := range ids {
			pids[i] = pointID(collection, id)
		}
		var resp struct {
			Result []point `json:"result"`
		}
		req := map[string]any{"ids": pids, "with_payload": true, "with_vector": true}
		if err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points", req, &resp); err != nil {
			return nil, err
		}
		points = resp.Result
	}

	type seqRecord struct {
		seq float64
		rec vectorstore.Record
	}
	recs := make([]seqRecord, 0, len(points))
	byID := make(map[string]vectorstore.Record, len(points))
	for _, p := range points {
		id, doc, seq, meta := p.split()
		r := vectorstore.Record{ID: id, Vector: p.Vector, Document: doc, Metadata: meta}
		recs = append(recs, seqRecord{seq: seq, rec: r})
		byID[id] = r
	}

	out := make([]vectorstore.Record, 0, len(recs))
	if ids == nil {
		// Scroll returns points by UUID; restore write order.
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
		for _, r := range recs {
			out = append(out, r.rec)
		}
		return out, nil
	}
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Storage) scroll(ctx context.Context, collection string) ([]point, error) {
	var (
		all    []point
		offset any
	)
	for {
		req := map[string]any{"limit": 256, "with_payload": true, "with_vector": true}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/scroll", req, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil {
			return all, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (s *Storage) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL(collection)+"/points/count", map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Clear drops and recreates the collection with its previous dimension.
func (s *Storage) Clear(ctx context.Context, collection string) error {
	dim, err := s.dimension(ctx, collection)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(collection), nil, nil); err != nil && !isNotFound(err) {
		return err
	}
	return s.create(ctx, collection, dim)
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &apiError{status: resp.StatusCode, method: method, url: url}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
