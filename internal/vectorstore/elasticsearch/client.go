// Package elasticsearch stores chunk vectors in an Elasticsearch index with a
// dense_vector field and searches them with approximate kNN.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	Transport http.RoundTripper
}

// Client implements vectorstore.Store on Elasticsearch. Each collection is an index.
type Client struct {
	es *elasticsearch.Client
}

var _ vectorstore.Store = (*Client)(nil)

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		Transport: config.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return &Client{es: es}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping error: %s", res.Status())
	}
	return nil
}

const vectorField = "embedding"

// indexDocument is the stored _source: payload fields plus the vector.
type indexDocument struct {
	models.Payload
	Embedding []float32 `json:"embedding,omitempty"`
}

func similarity(d vectorstore.Distance) string {
	switch d {
	case vectorstore.Dot:
		return "dot_product"
	case vectorstore.Euclidean:
		return "l2_norm"
	default:
		return "cosine"
	}
}

func distance(similarity string) vectorstore.Distance {
	switch similarity {
	case "dot_product", "max_inner_product":
		return vectorstore.Dot
	case "l2_norm":
		return vectorstore.Euclidean
	default:
		return vectorstore.Cosine
	}
}

func indexMapping(spec vectorstore.CollectionSpec) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"doc_path":   map[string]any{"type": "keyword"},
				"doc_hash":   map[string]any{"type": "keyword"},
				"chunk_id":   map[string]any{"type": "integer"},
				"content":    map[string]any{"type": "text"},
				"title":      map[string]any{"type": "text"},
				"format":     map[string]any{"type": "keyword"},
				"sheet":      map[string]any{"type": "keyword"},
				"page":       map[string]any{"type": "integer"},
				"indexed_at": map[string]any{"type": "date"},
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       spec.Dimension,
					"index":      true,
					"similarity": similarity(spec.Distance),
				},
			},
		},
	}
}

// CreateCollection creates the index with the vector mapping.
func (c *Client) CreateCollection(ctx context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", spec.Dimension)
	}
	data, err := json.Marshal(indexMapping(spec))
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err := c.es.Indices.Create(
		spec.Name,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		e := decodeError(res)
		if e.Type == "resource_already_exists_exception" {
			return vectorstore.ErrCollectionExists
		}
		return fmt.Errorf("error creating index: %s", e)
	}
	return nil
}

type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Type       string `json:"type"`
			Dims       int    `json:"dims"`
			Similarity string `json:"similarity"`
		} `json:"properties"`
	} `json:"mappings"`
}

// Describe reads the vector mapping and the document count of an index.
func (c *Client) Describe(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithContext(ctx),
		c.es.Indices.GetMapping.WithIndex(name),
	)
	if err != nil {
		return nil, fmt.Errorf("get mapping failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get mapping error: %s", decodeError(res))
	}

	var mr mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	info := &vectorstore.CollectionInfo{Name: name, Distance: vectorstore.Cosine}
	for _, idx := range mr {
		if field, ok := idx.Mappings.Properties[vectorField]; ok {
			info.Dimension = field.Dims
			info.Distance = distance(field.Similarity)
		}
	}

	count, err := c.count(ctx, name)
	if err != nil {
		return nil, err
	}
	info.Points = count
	return info, nil
}

func (c *Client) count(ctx context.Context, name string) (int64, error) {
	res, err := c.es.Count(c.es.Count.WithContext(ctx), c.es.Count.WithIndex(name))
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count error: %s", decodeError(res))
	}
	var cr struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("failed to decode count: %w", err)
	}
	return cr.Count, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string   `json:"_id"`
		Status int      `json:"status"`
		Error  *esError `json:"error"`
	} `json:"items"`
}

// Upsert indexes points with the bulk API, using the point ID as document ID
// so rewriting a chunk replaces it. The call waits for a refresh so the points
// are searchable on return.
func (c *Client) Upsert(ctx context.Context, name string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range points {
		meta := map[string]any{"index": map[string]any{"_id": p.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		if err := enc.Encode(indexDocument{Payload: p.Payload, Embedding: p.Vector}); err != nil {
			return fmt.Errorf("failed to marshal point %s: %w", p.ID, err)
		}
	}

	res, err := c.es.Bulk(
		&buf,
		c.es.Bulk.WithContext(ctx),
		c.es.Bulk.WithIndex(name),
		c.es.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return vectorstore.ErrCollectionNotFound
	}
	if res.IsError() {
		return fmt.Errorf("bulk error: %s", decodeError(res))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}
	failed := 0
	var first string
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error != nil {
				if failed == 0 {
					first = fmt.Sprintf("%s: %s", result.ID, result.Error)
				}
				failed++
			}
		}
	}
	return fmt.Errorf("bulk indexing rejected %d of %d points (first %s)", failed, len(points), first)
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string        `json:"_id"`
			Score  float64       `json:"_score"`
			Source indexDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs an approximate kNN query against the vector field.
func (c *Client) Search(ctx context.Context, name string, vector []float32, k int) ([]models.SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	query := map[string]any{
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(k*4, 50),
		},
		"size":    k,
		"_source": map[string]any{"excludes": []string{vectorField}},
	}
	return c.search(ctx, name, query)
}

// FindChunk matches a chunk by payload, not by point ID.
func (c *Client) FindChunk(ctx context.Context, name, docHash string, seq int) (*models.SearchHit, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"doc_hash": docHash}},
					{"term": map[string]any{"chunk_id": seq}},
				},
			},
		},
		"size":    1,
		"_source": map[string]any{"excludes": []string{vectorField}},
	}
	hits, err := c.search(ctx, name, query)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, vectorstore.ErrPointNotFound
	}
	return &hits[0], nil
}

func (c *Client) search(ctx context.Context, name string, query map[string]any) ([]models.SearchHit, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(name),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", decodeError(res))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	hits := make([]models.SearchHit, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		hits[i] = models.SearchHit{ID: hit.ID, Score: hit.Score, Payload: hit.Source.Payload}
	}
	return hits, nil
}

// DeleteStale removes chunks stored for docPath under any hash other than keepHash.
func (c *Client) DeleteStale(ctx context.Context, name, docPath, keepHash string) (int, error) {
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter":   []map[string]any{{"term": map[string]any{"doc_path": docPath}}},
				"must_not": []map[string]any{{"term": map[string]any{"doc_hash": keepHash}}},
			},
		},
	}
	data, err := json.Marshal(query)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.DeleteByQuery(
		[]string{name},
		bytes.NewReader(data),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("delete by query error: %s", decodeError(res))
	}

	var dr struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&dr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return dr.Deleted, nil
}

// DeleteCollection removes the index (for testing/cleanup).
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	res, err := c.es.Indices.Delete([]string{name}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

type esError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e *esError) String() string {
	if e.Reason == "" {
		return e.Type
	}
	return e.Type + ": " + e.Reason
}

func decodeError(res *esapi.Response) *esError {
	body, _ := io.ReadAll(res.Body)
	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && len(wrapped.Error) > 0 {
		var e esError
		if json.Unmarshal(wrapped.Error, &e) == nil && e.Type != "" {
			return &e
		}
		var s string
		if json.Unmarshal(wrapped.Error, &s) == nil {
			return &esError{Type: res.Status(), Reason: s}
		}
	}
	return &esError{Type: res.Status(), Reason: string(bytes.TrimSpace(body))}
}
