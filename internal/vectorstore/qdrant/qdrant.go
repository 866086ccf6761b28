// Package qdrant is a REST client to Qdrant implementing vectorstore.Store.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Storage talks to Qdrant over its HTTP API.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

var _ vectorstore.Store = (*Storage)(nil)

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// apiError is a non-2xx answer from Qdrant.
type apiError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed (status %d): %s", e.Method, e.Path, e.Status, e.Body)
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func distanceName(d vectorstore.Distance) string {
	switch d {
	case vectorstore.Dot:
		return "Dot"
	case vectorstore.Euclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

func (s *Storage) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", spec.Dimension)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": distanceName(spec.Distance),
		},
	}
	err := s.do(ctx, http.MethodPut, collectionPath(spec.Name), body, nil)
	var ae *apiError
	if errors.As(err, &ae) && (ae.Status == http.StatusConflict || strings.Contains(ae.Body, "already exists")) {
		return vectorstore.ErrCollectionExists
	}
	if err != nil {
		return err
	}

	// keyword indexes keep payload filters fast on large collections
	for field, schema := range map[string]string{"doc_hash": "keyword", "doc_path": "keyword", "chunk_id": "integer"} {
		idx := map[string]any{"field_name": field, "field_schema": schema}
		if err := s.do(ctx, http.MethodPut, collectionPath(spec.Name)+"/index?wait=true", idx, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	return nil
}

func (s *Storage) Describe(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	var resp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, collectionPath(name), nil, &resp); err != nil {
		if isNotFound(err) {
			return nil, vectorstore.ErrCollectionNotFound
		}
		return nil, err
	}
	dist, err := vectorstore.ParseDistance(resp.Result.Config.Params.Vectors.Distance)
	if err != nil {
		dist = vectorstore.Cosine
	}
	return &vectorstore.CollectionInfo{
		Name:      name,
		Dimension: resp.Result.Config.Params.Vectors.Size,
		Distance:  dist,
		Points:    resp.Result.PointsCount,
	}, nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload models.Payload `json:"payload"`
}

func (s *Storage) Upsert(ctx context.Context, name string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload}
	}
	err := s.do(ctx, http.MethodPut, collectionPath(name)+"/points?wait=true", body, nil)
	if isNotFound(err) {
		return vectorstore.ErrCollectionNotFound
	}
	return err
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload models.Payload  `json:"payload"`
}

func (p scoredPoint) hit() models.SearchHit {
	id := strings.Trim(string(p.ID), `"`)
	return models.SearchHit{ID: id, Score: p.Score, Payload: p.Payload}
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/search", req, &resp); err != nil {
		if isNotFound(err) {
			return nil, vectorstore.ErrCollectionNotFound
		}
		return nil, err
	}
	hits := make([]models.SearchHit, len(resp.Result))
	for i, r := range resp.Result {
		hits[i] = r.hit()
	}
	return hits, nil
}

func match(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func (s *Storage) FindChunk(ctx context.Context, name, docHash string, seq int) (*models.SearchHit, error) {
	req := map[string]any{
		"filter": map[string]any{
			"must": []any{match("doc_hash", docHash), match("chunk_id", seq)},
		},
		"limit":        1,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/scroll", req, &resp); err != nil {
		if isNotFound(err) {
			return nil, vectorstore.ErrCollectionNotFound
		}
		return nil, err
	}
	if len(resp.Result.Points) == 0 {
		return nil, vectorstore.ErrPointNotFound
	}
	hit := resp.Result.Points[0].hit()
	hit.Score = 1
	return &hit, nil
}

// DeleteStale counts then deletes points for docPath whose hash is not keepHash.
func (s *Storage) DeleteStale(ctx context.Context, name, docPath, keepHash string) (int, error) {
	filter := map[string]any{
		"must":     []any{match("doc_path", docPath)},
		"must_not": []any{match("doc_hash", keepHash)},
	}
	var count struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/count", map[string]any{"filter": filter, "exact": true}, &count)
	if isNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if count.Result.Count == 0 {
		return 0, nil
	}
	if err := s.do(ctx, http.MethodPost, collectionPath(name)+"/points/delete?wait=true", map[string]any{"filter": filter}, nil); err != nil {
		return 0, err
	}
	return count.Result.Count, nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func isNotFound(err error) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
