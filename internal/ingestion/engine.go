// Package ingestion runs the upsert pipeline: every document is read, hashed,
// parsed, chunked, embedded in one batched call and written to the index.
// Documents are processed by a bounded pool of workers and a failure in one
// document never stops the others.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leadai/leadai-rag/internal/chunker"
	"github.com/leadai/leadai-rag/internal/events"
	"github.com/leadai/leadai-rag/internal/index"
	"github.com/leadai/leadai-rag/internal/parser"
	"github.com/leadai/leadai-rag/internal/source"
	"github.com/leadai/leadai-rag/pkg/models"
)

// Stages a document passes through, in order.
const (
	StageRead   = "read"
	StageParse  = "parse"
	StageChunk  = "chunk"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

var ErrNoPaths = errors.New("no paths given")

// Embedder turns texts into vectors, one per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer is the write side of the index manager.
type Indexer interface {
	Check(ctx context.Context) error
	Upsert(ctx context.Context, points []models.Point) error
	DeleteStale(ctx context.Context, docPath, keepHash string) (int, error)
}

// Source expands and reads document locators.
type Source interface {
	Expand(ctx context.Context, inputs []string) ([]string, []*source.InputError)
	Read(ctx context.Context, locator string) (*source.Document, error)
}

// Config holds ingestion engine configuration.
type Config struct {
	ChunkSize       int
	Overlap         int
	Workers         int
	DocumentTimeout time.Duration
	PruneStale      bool
}

// Request is one upsert call. Nil window fields use the engine defaults.
type Request struct {
	Paths     []string
	ChunkSize *int
	Overlap   *int
}

// DocumentError attributes a failure to one document.
type DocumentError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// DocumentResult is the outcome for one document.
type DocumentResult struct {
	Path     string        `json:"path"`
	Hash     string        `json:"hash,omitempty"`
	Format   string        `json:"format,omitempty"`
	Title    string        `json:"title,omitempty"`
	Chunks   int           `json:"chunks"`
	ChunkIDs []string      `json:"chunk_ids,omitempty"`
	Pruned   int           `json:"pruned,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// Result holds ingestion execution results.
type Result struct {
	DocsIndexed   int              `json:"indexed"`
	ChunksWritten int              `json:"chunks"`
	Skipped       int              `json:"skipped"`
	Failed        int              `json:"failed"`
	Errors        []DocumentError  `json:"errors,omitempty"`
	Documents     []DocumentResult `json:"documents"`
	Duration      time.Duration    `json:"duration_ns"`
}

// Engine runs ingestion batches.
type Engine struct {
	config   Config
	source   Source
	parsers  *parser.Registry
	embedder Embedder
	indexer  Indexer
	observer events.Observer
}

// New creates a new ingestion engine. observer may be nil.
func New(config Config, src Source, parsers *parser.Registry, embedder Embedder, indexer Indexer, observer events.Observer) (*Engine, error) {
	if src == nil || parsers == nil || embedder == nil || indexer == nil {
		return nil, errors.New("source, parsers, embedder and indexer are required")
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = chunker.DefaultSize
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if observer == nil {
		observer = events.Funcs{}
	}
	return &Engine{
		config:   config,
		source:   src,
		parsers:  parsers,
		embedder: embedder,
		indexer:  indexer,
		observer: observer,
	}, nil
}

// Ingest processes every document named by req. The returned error is
// non-nil only for request-level problems and for a dimension mismatch,
// which aborts the remaining documents; per-document failures are reported
// in the result.
func (e *Engine) Ingest(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	size, overlap := e.config.ChunkSize, e.config.Overlap
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}
	if req.Overlap != nil {
		overlap = *req.Overlap
	}
	if size <= 0 || overlap < 0 {
		return nil, fmt.Errorf("invalid chunk window size=%d overlap=%d: %w", size, overlap, chunker.ErrInvalidSize)
	}
	if len(req.Paths) == 0 {
		return nil, ErrNoPaths
	}

	if err := e.indexer.Check(ctx); err != nil {
		return nil, err
	}

	locators, inputErrs := e.source.Expand(ctx, req.Paths)
	slog.Info("starting ingestion", "inputs", len(req.Paths), "documents", len(locators), "workers", e.config.Workers)

	results := make([]DocumentResult, len(locators))

	batchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var g errgroup.Group
	g.SetLimit(e.config.Workers)
	for i, loc := range locators {
		g.Go(func() error {
			res := e.processDocument(batchCtx, loc, size, overlap)
			var dimErr *index.DimensionMismatchError
			if errors.As(res.Err, &dimErr) {
				cancel(res.Err)
			}
			results[i] = res
			e.observer.DocumentProcessed(event(res))
			return nil
		})
	}
	g.Wait()

	for _, ie := range inputErrs {
		res := DocumentResult{Path: ie.Input, Stage: StageRead, Err: ie.Err}
		e.observer.DocumentProcessed(event(res))
		results = append(results, res)
	}

	result := aggregate(results)
	result.Duration = time.Since(start)

	e.observer.IngestionComplete(events.IngestionComplete{
		DocsIndexed:   result.DocsIndexed,
		ChunksWritten: result.ChunksWritten,
		Skipped:       result.Skipped,
		Failed:        result.Failed,
		Duration:      result.Duration,
	})
	slog.Info("ingestion complete",
		"docs_indexed", result.DocsIndexed,
		"chunks", result.ChunksWritten,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)

	if cause := context.Cause(batchCtx); cause != nil && ctx.Err() == nil {
		var dimErr *index.DimensionMismatchError
		if errors.As(cause, &dimErr) {
			return result, cause
		}
	}
	return result, nil
}

func aggregate(results []DocumentResult) *Result {
	out := &Result{Documents: results}
	for _, r := range results {
		switch {
		case r.Err == nil && !r.Skipped:
			out.DocsIndexed++
			out.ChunksWritten += r.Chunks
		case r.Skipped:
			out.Skipped++
		default:
			out.Failed++
		}
		if r.Err != nil {
			out.Errors = append(out.Errors, DocumentError{
				Path:  r.Path,
				Stage: r.Stage,
				Kind:  Kind(r.Err),
				Error: r.Err.Error(),
			})
		}
	}
	return out
}

func event(r DocumentResult) events.DocumentProcessed {
	return events.DocumentProcessed{
		Path:     r.Path,
		Hash:     r.Hash,
		Chunks:   r.Chunks,
		Pruned:   r.Pruned,
		Stage:    r.Stage,
		Skipped:  r.Skipped,
		Err:      r.Err,
		Duration: r.Duration,
	}
}

// processDocument runs read, parse, chunk, embed and upsert for one locator
// under the per-document timeout.
func (e *Engine) processDocument(ctx context.Context, locator string, size, overlap int) (res DocumentResult) {
	start := time.Now()
	res.Path = locator
	defer func() {
		res.Duration = time.Since(start)
		if res.Err != nil {
			slog.Warn("document failed", "path", res.Path, "stage", res.Stage, "skipped", res.Skipped, "error", res.Err)
		}
	}()

	if e.config.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.DocumentTimeout)
		defer cancel()
	}
	fail := func(stage string, err error) DocumentResult {
		res.Stage = stage
		res.Err = err
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(StageRead, fmt.Errorf("not started: %w", context.Cause(ctx)))
	}

	doc, err := e.source.Read(ctx, locator)
	if err != nil {
		return fail(StageRead, err)
	}
	res.Path = doc.Locator
	res.Hash = models.ContentHash(doc.Data)

	parsed, err := e.parsers.Parse(doc.Name, doc.ContentType, doc.Data)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFormat) || errors.Is(err, parser.ErrNoText) {
			res.Skipped = true
		}
		return fail(StageParse, err)
	}
	res.Format = parsed.Format
	res.Title = parsed.Title
	if res.Title == "" {
		res.Title = filepath.Base(doc.Name)
	}

	chunks, err := chunker.ChunkDocument(res.Hash, parsed, size, overlap)
	if err != nil {
		return fail(StageChunk, err)
	}
	if len(chunks) == 0 {
		res.Skipped = true
		return res
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return fail(StageEmbed, err)
	}

	now := time.Now().UTC()
	points := make([]models.Point, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
		points[i] = models.Point{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: models.Payload{
				DocPath:   res.Path,
				DocHash:   res.Hash,
				ChunkID:   c.Sequence,
				Content:   c.Text,
				Title:     res.Title,
				Format:    res.Format,
				Sheet:     c.Sheet,
				Page:      c.Page,
				IndexedAt: now,
			},
		}
	}

	if err := e.indexer.Upsert(ctx, points); err != nil {
		return fail(StageUpsert, err)
	}
	res.Chunks = len(chunks)
	res.ChunkIDs = ids

	if e.config.PruneStale {
		n, err := e.indexer.DeleteStale(ctx, res.Path, res.Hash)
		if err != nil {
			slog.Warn("failed to prune stale chunks", "path", res.Path, "error", err)
		}
		res.Pruned = n
	}

	slog.Debug("document indexed", "path", res.Path, "hash", res.Hash, "chunks", res.Chunks, "pruned", res.Pruned)
	return res
}
