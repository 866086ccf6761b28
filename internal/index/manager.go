// Package index owns the lifecycle of the vector collection: it creates it on
// first write, checks its dimension, and guards every write against vectors of
// the wrong length.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

// DimensionMismatchError reports a vector whose length disagrees with the
// collection's dimension. It is a configuration error and is never coerced.
type DimensionMismatchError struct {
	Collection string
	Expected   int
	Got        int
}

func (e *DimensionMismatchError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
	}
	return fmt.Sprintf("embedding dimension mismatch for collection %q: expected %d, got %d", e.Collection, e.Expected, e.Got)
}

// UpsertError reports a write the vector store rejected.
type UpsertError struct {
	Collection string
	Err        error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert into %q failed: %v", e.Collection, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

type Config struct {
	Collection string
	Dimension  int
	Distance   vectorstore.Distance
}

// Manager manages one collection in a vector store.
type Manager struct {
	store      vectorstore.Store
	collection string
	dimension  int
	distance   vectorstore.Distance

	mu    sync.Mutex
	ready bool
}

func New(store vectorstore.Store, config Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if config.Collection == "" {
		return nil, errors.New("collection name is required")
	}
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", config.Dimension)
	}
	if config.Distance == "" {
		config.Distance = vectorstore.Cosine
	}
	return &Manager{
		store:      store,
		collection: config.Collection,
		dimension:  config.Dimension,
		distance:   config.Distance,
	}, nil
}

func (m *Manager) Collection() string { return m.collection }

func (m *Manager) Dimension() int { return m.dimension }

func (m *Manager) Store() vectorstore.Store { return m.store }

// Ensure creates the collection if it does not exist and verifies its
// dimension. Losing a creation race to another writer counts as success.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}

	info, err := m.store.Describe(ctx, m.collection)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		err = m.store.CreateCollection(ctx, vectorstore.CollectionSpec{
			Name:      m.collection,
			Dimension: m.dimension,
			Distance:  m.distance,
		})
		switch {
		case err == nil:
			slog.Info("created collection", "collection", m.collection, "dimension", m.dimension, "distance", m.distance)
			m.ready = true
			return nil
		case errors.Is(err, vectorstore.ErrCollectionExists):
			info, err = m.store.Describe(ctx, m.collection)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to ensure collection %q: %w", m.collection, err)
	}

	if info.Dimension != 0 && info.Dimension != m.dimension {
		return &DimensionMismatchError{Collection: m.collection, Expected: info.Dimension, Got: m.dimension}
	}
	m.ready = true
	return nil
}

// Check verifies an existing collection's dimension without creating it.
// A missing collection passes; it is created on the first write.
func (m *Manager) Check(ctx context.Context) error {
	m.mu.Lock()
	ready := m.ready
	m.mu.Unlock()
	if ready {
		return nil
	}

	info, err := m.store.Describe(ctx, m.collection)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to describe collection %q: %w", m.collection, err)
	}
	if info.Dimension != 0 && info.Dimension != m.dimension {
		return &DimensionMismatchError{Collection: m.collection, Expected: info.Dimension, Got: m.dimension}
	}
	return nil
}

// Validate checks every vector against the collection dimension.
func (m *Manager) Validate(points []models.Point) error {
	for _, p := range points {
		if len(p.Vector) != m.dimension {
			return &DimensionMismatchError{Collection: m.collection, Expected: m.dimension, Got: len(p.Vector)}
		}
	}
	return nil
}

// Upsert writes points in one call. All vectors are validated before any
// I/O so a bad vector never causes a partial write.
func (m *Manager) Upsert(ctx context.Context, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := m.Validate(points); err != nil {
		return err
	}
	if err := m.Ensure(ctx); err != nil {
		return err
	}
	if err := m.store.Upsert(ctx, m.collection, points); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			m.reset()
		}
		return &UpsertError{Collection: m.collection, Err: err}
	}
	return nil
}

// DeleteStale removes chunks of docPath that were stored under a previous
// content hash.
func (m *Manager) DeleteStale(ctx context.Context, docPath, keepHash string) (int, error) {
	n, err := m.store.DeleteStale(ctx, m.collection, docPath, keepHash)
	if err != nil {
		return 0, &UpsertError{Collection: m.collection, Err: fmt.Errorf("delete stale chunks of %s: %w", docPath, err)}
	}
	return n, nil
}

// Describe reports the collection as the store sees it.
func (m *Manager) Describe(ctx context.Context) (*vectorstore.CollectionInfo, error) {
	return m.store.Describe(ctx, m.collection)
}

func (m *Manager) reset() {
	m.mu.Lock()
	m.ready = false
	m.mu.Unlock()
}
