// Package retrieval runs similarity search over the indexed chunks and
// resolves citation locators back to their stored payload.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

const (
	DefaultK = 5
	MaxK     = 50
)

var (
	ErrEmptyQuery    = errors.New("query is empty")
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrInvalidReference is a malformed doc_hash/chunk_id pair or resource.
	ErrInvalidReference = errors.New("invalid chunk reference")
)

// RetrievalError is a search that could not be answered by the backends.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// QueryEmbedder embeds a single query into the indexed vector space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config holds retriever configuration.
type Config struct {
	Collection string
	DefaultK   int
	MaxK       int
}

// Retriever searches one collection.
type Retriever struct {
	embedder   QueryEmbedder
	store      vectorstore.Store
	collection string
	defaultK   int
	maxK       int
}

// Chunk is a resolved citation target.
type Chunk struct {
	DocPath  string `json:"docPath"`
	DocHash  string `json:"docHash"`
	ChunkID  int    `json:"chunkId"`
	Resource string `json:"resource"`
	Text     string `json:"text"`
	Title    string `json:"title,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	Page     int    `json:"page,omitempty"`
}

// New creates a retriever.
func New(embedder QueryEmbedder, store vectorstore.Store, config Config) (*Retriever, error) {
	if embedder == nil || store == nil {
		return nil, errors.New("embedder and store are required")
	}
	if config.Collection == "" {
		return nil, errors.New("collection is required")
	}
	if config.DefaultK <= 0 {
		config.DefaultK = DefaultK
	}
	if config.MaxK <= 0 {
		config.MaxK = MaxK
	}
	return &Retriever{
		embedder:   embedder,
		store:      store,
		collection: config.Collection,
		defaultK:   config.DefaultK,
		maxK:       config.MaxK,
	}, nil
}

// Limit applies the default and ceiling to a requested k.
func (r *Retriever) Limit(k int) int {
	switch {
	case k <= 0:
		return r.defaultK
	case k > r.maxK:
		return r.maxK
	}
	return k
}

// Search returns up to k hits ordered by descending score. An index that
// does not exist yet yields no hits rather than an error.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]models.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	k = r.Limit(k)

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &RetrievalError{Op: "embed query", Err: err}
	}

	hits, err := r.store.Search(ctx, r.collection, vector, k)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		slog.Debug("search on missing collection", "collection", r.collection)
		return []models.SearchHit{}, nil
	}
	if err != nil {
		return nil, &RetrievalError{Op: "search", Err: err}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	slog.Debug("search complete", "query_len", len(query), "k", k, "hits", len(hits))
	return hits, nil
}

// Resolve looks a chunk up by its payload, not by point ID.
func (r *Retriever) Resolve(ctx context.Context, docHash string, seq int) (*Chunk, error) {
	docHash = strings.TrimSpace(docHash)
	if docHash == "" || seq < 0 {
		return nil, fmt.Errorf("%q/%d: %w", docHash, seq, ErrInvalidReference)
	}

	hit, err := r.store.FindChunk(ctx, r.collection, docHash, seq)
	switch {
	case errors.Is(err, vectorstore.ErrPointNotFound), errors.Is(err, vectorstore.ErrCollectionNotFound):
		return nil, fmt.Errorf("%s: %w", models.ResourceURI(docHash, seq), ErrChunkNotFound)
	case err != nil:
		return nil, &RetrievalError{Op: "resolve", Err: err}
	}

	p := hit.Payload
	return &Chunk{
		DocPath:  p.DocPath,
		DocHash:  p.DocHash,
		ChunkID:  p.ChunkID,
		Resource: models.ResourceURI(p.DocHash, p.ChunkID),
		Text:     p.Content,
		Title:    p.Title,
		Sheet:    p.Sheet,
		Page:     p.Page,
	}, nil
}

// ResolveResource resolves a doc://<hash>/<seq> locator.
func (r *Retriever) ResolveResource(ctx context.Context, uri string) (*Chunk, error) {
	docHash, seq, err := models.ParseResourceURI(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return r.Resolve(ctx, docHash, seq)
}
