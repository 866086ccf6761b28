// Package status reports whether the embedding backend, the vector store and
// the target collection are reachable.
package status

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leadai/leadai-rag/internal/vectorstore"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 4 * time.Second

// Pinger is anything with a reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is the outcome of one reachability check.
type Check struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Collection reports on the target collection.
type Collection struct {
	Check
	Name              string `json:"name"`
	Exists            bool   `json:"exists"`
	Dimension         int    `json:"dimension,omitempty"`
	ExpectedDimension int    `json:"expectedDimension,omitempty"`
	Distance          string `json:"distance,omitempty"`
	Points            int64  `json:"points"`
}

// Report aggregates every check.
type Report struct {
	EmbeddingBackendOK bool       `json:"embeddingBackendOk"`
	VectorStoreOK      bool       `json:"vectorStoreOk"`
	EmbeddingBackend   Check      `json:"embeddingBackend"`
	VectorStore        Check      `json:"vectorStore"`
	Collection         Collection `json:"collection"`
}

// Healthy reports whether every check passed.
func (r *Report) Healthy() bool {
	return r.EmbeddingBackendOK && r.VectorStoreOK && r.Collection.OK
}

// Config holds checker configuration.
type Config struct {
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Checker runs the status checks.
type Checker struct {
	embeddings Pinger
	store      vectorstore.Store
	config     Config
}

// New creates a checker.
func New(embeddings Pinger, store vectorstore.Store, config Config) *Checker {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Checker{embeddings: embeddings, store: store, config: config}
}

// Run executes the checks concurrently, each under its own timeout. Failures
// are reported in the result, never returned.
func (c *Checker) Run(ctx context.Context) *Report {
	report := &Report{Collection: Collection{
		Name:              c.config.Collection,
		ExpectedDimension: c.config.Dimension,
	}}

	var g errgroup.Group
	g.Go(func() error {
		report.EmbeddingBackend = c.timed(ctx, func(ctx context.Context) error {
			if c.embeddings == nil {
				return errors.New("embedding backend not configured")
			}
			return c.embeddings.Ping(ctx)
		})
		return nil
	})
	g.Go(func() error {
		report.VectorStore = c.timed(ctx, func(ctx context.Context) error {
			if c.store == nil {
				return errors.New("vector store not configured")
			}
			return c.store.Ping(ctx)
		})
		return nil
	})
	g.Go(func() error {
		var info *vectorstore.CollectionInfo
		check := c.timed(ctx, func(ctx context.Context) error {
			if c.store == nil {
				return errors.New("vector store not configured")
			}
			var err error
			info, err = c.store.Describe(ctx, c.config.Collection)
			if errors.Is(err, vectorstore.ErrCollectionNotFound) {
				return nil
			}
			return err
		})
		report.Collection.Check = check
		if info != nil {
			report.Collection.Exists = true
			report.Collection.Dimension = info.Dimension
			report.Collection.Distance = string(info.Distance)
			report.Collection.Points = info.Points
			if c.config.Dimension > 0 && info.Dimension != c.config.Dimension {
				report.Collection.OK = false
				report.Collection.Error = "collection dimension differs from the embedding dimension"
			}
		}
		return nil
	})
	g.Wait()

	report.EmbeddingBackendOK = report.EmbeddingBackend.OK
	report.VectorStoreOK = report.VectorStore.OK

	slog.Debug("status checked",
		"embeddings_ok", report.EmbeddingBackendOK,
		"vector_store_ok", report.VectorStoreOK,
		"collection_exists", report.Collection.Exists)
	return report
}

func (c *Checker) timed(ctx context.Context, fn func(context.Context) error) Check {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	check := Check{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Error = err.Error()
	}
	return check
}
