// Package vectorstore defines the port every vector backend implements.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leadai/leadai-rag/pkg/models"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrPointNotFound      = errors.New("point not found")
)

// Distance is the similarity function a collection is created with.
type Distance string

const (
	Cosine    Distance = "cosine"
	Dot       Distance = "dot"
	Euclidean Distance = "euclid"
)

// ParseDistance accepts the configured distance name, case-insensitively.
func ParseDistance(s string) (Distance, error) {
	switch d := Distance(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Cosine, nil
	case Cosine, Dot, Euclidean:
		return d, nil
	case "euclidean", "l2":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown distance %q", s)
	}
}

// CollectionSpec describes a collection to create.
type CollectionSpec struct {
	Name      string
	Dimension int
	Distance  Distance
}

// CollectionInfo is what a backend reports about an existing collection.
type CollectionInfo struct {
	Name      string   `json:"name"`
	Dimension int      `json:"dimension"`
	Distance  Distance `json:"distance"`
	Points    int64    `json:"points"`
}

// Store is a vector database holding points in named collections.
//
// Describe and Search return ErrCollectionNotFound for a missing collection,
// CreateCollection returns ErrCollectionExists when it lost a creation race,
// and FindChunk returns ErrPointNotFound when no payload matches.
type Store interface {
	Ping(ctx context.Context) error
	Describe(ctx context.Context, collection string) (*CollectionInfo, error)
	CreateCollection(ctx context.Context, spec CollectionSpec) error
	Upsert(ctx context.Context, collection string, points []models.Point) error
	Search(ctx context.Context, collection string, vector []float32, k int) ([]models.SearchHit, error)
	FindChunk(ctx context.Context, collection, docHash string, seq int) (*models.SearchHit, error)
	DeleteStale(ctx context.Context, collection, docPath, keepHash string) (int, error)
}
