// Package memory is an in-process vector store using brute-force similarity.
// It is used by tests and for local runs without a database.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

type collection struct {
	dimension int
	distance  vectorstore.Distance
	points    map[string]models.Point
}

// Store keeps every collection in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

var _ vectorstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Describe(_ context.Context, name string) (*vectorstore.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	return &vectorstore.CollectionInfo{
		Name:      name,
		Dimension: c.dimension,
		Distance:  c.distance,
		Points:    int64(len(c.points)),
	}, nil
}

func (s *Store) CreateCollection(_ context.Context, spec vectorstore.CollectionSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", spec.Dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[spec.Name]; ok {
		return vectorstore.ErrCollectionExists
	}
	distance := spec.Distance
	if distance == "" {
		distance = vectorstore.Cosine
	}
	s.collections[spec.Name] = &collection{
		dimension: spec.Dimension,
		distance:  distance,
		points:    make(map[string]models.Point),
	}
	return nil
}

// Upsert writes points, replacing any with the same ID. Either all points are
// stored or none.
func (s *Store) Upsert(_ context.Context, name string, points []models.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return vectorstore.ErrCollectionNotFound
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("point %s has %d dimensions, collection expects %d", p.ID, len(p.Vector), c.dimension)
		}
	}
	for _, p := range points {
		v := make([]float32, len(p.Vector))
		copy(v, p.Vector)
		p.Vector = v
		c.points[p.ID] = p
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, vector []float32, k int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("query has %d dimensions, collection expects %d", len(vector), c.dimension)
	}

	hits := make([]models.SearchHit, 0, len(c.points))
	for id, p := range c.points {
		hits = append(hits, models.SearchHit{ID: id, Score: score(c.distance, p.Vector, vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) FindChunk(_ context.Context, name, docHash string, seq int) (*models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, vectorstore.ErrCollectionNotFound
	}
	for id, p := range c.points {
		if p.Payload.DocHash == docHash && p.Payload.ChunkID == seq {
			return &models.SearchHit{ID: id, Score: 1, Payload: p.Payload}, nil
		}
	}
	return nil, vectorstore.ErrPointNotFound
}

func (s *Store) DeleteStale(_ context.Context, name, docPath, keepHash string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	deleted := 0
	for id, p := range c.points {
		if p.Payload.DocPath == docPath && p.Payload.DocHash != keepHash {
			delete(c.points, id)
			deleted++
		}
	}
	return deleted, nil
}

// score is higher-is-better for every distance.
func score(distance vectorstore.Distance, a, b []float32) float64 {
	switch distance {
	case vectorstore.Dot:
		return dot(a, b)
	case vectorstore.Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
