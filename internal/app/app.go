// Package app wires every component from a Config and exposes the tool
// operations shared by the CLI, MCP and HTTP surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/internal/chunker"
	"github.com/leadai/leadai-rag/internal/config"
	"github.com/leadai/leadai-rag/internal/embeddings"
	"github.com/leadai/leadai-rag/internal/events"
	"github.com/leadai/leadai-rag/internal/index"
	"github.com/leadai/leadai-rag/internal/ingestion"
	"github.com/leadai/leadai-rag/internal/llm"
	"github.com/leadai/leadai-rag/internal/parser"
	"github.com/leadai/leadai-rag/internal/retrieval"
	"github.com/leadai/leadai-rag/internal/scraper"
	"github.com/leadai/leadai-rag/internal/source"
	"github.com/leadai/leadai-rag/internal/status"
	"github.com/leadai/leadai-rag/internal/storage"
	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/internal/vectorstore/elasticsearch"
	"github.com/leadai/leadai-rag/internal/vectorstore/memory"
	"github.com/leadai/leadai-rag/internal/vectorstore/qdrant"
	"github.com/leadai/leadai-rag/pkg/models"
)

// probeTimeout bounds the startup dimension probe.
const probeTimeout = 30 * time.Second

// App holds the wired components.
type App struct {
	Config     config.Config
	Store      vectorstore.Store
	Embeddings *embeddings.Client
	LLM        *llm.Client
	Index      *index.Manager
	Source     *source.Resolver
	Engine     *ingestion.Engine
	Retriever  *retrieval.Retriever
	Composer   *answer.Composer
	Checker    *status.Checker
}

type options struct {
	store    vectorstore.Store
	observer events.Observer
}

// Option customizes New.
type Option func(*options)

// WithStore replaces the configured vector store backend.
func WithStore(store vectorstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithObserver receives ingestion events.
func WithObserver(observer events.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// New builds every component. When no embedding dimension is configured the
// backend is probed once; a failed probe fails startup.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a, err := newCore(cfg, o.store)
	if err != nil {
		return nil, err
	}

	dimension := cfg.Embeddings.Dimension
	if dimension == 0 {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		dimension, err = a.Embeddings.Probe(probeCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to detect embedding dimension: %w", err)
		}
		slog.Info("detected embedding dimension", "model", a.Embeddings.Model(), "dimension", dimension)
	}
	a.Embeddings = a.Embeddings.WithDimension(dimension)
	a.Config.Embeddings.Dimension = dimension

	distance, err := vectorstore.ParseDistance(cfg.VectorStore.Distance)
	if err != nil {
		return nil, err
	}
	a.Index, err = index.New(a.Store, index.Config{
		Collection: cfg.VectorStore.Collection,
		Dimension:  dimension,
		Distance:   distance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create index manager: %w", err)
	}

	a.Source, err = newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.Engine, err = ingestion.New(ingestion.Config{
		ChunkSize:       cfg.Ingest.ChunkSize,
		Overlap:         cfg.Ingest.Overlap,
		Workers:         cfg.Ingest.Workers,
		DocumentTimeout: cfg.Ingest.DocumentTimeout,
		PruneStale:      cfg.Ingest.PruneStale,
	}, a.Source, parser.NewRegistry(), a.Embeddings, a.Index, o.observer)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion engine: %w", err)
	}

	a.Retriever, err = retrieval.New(a.Embeddings, a.Store, retrieval.Config{
		Collection: cfg.VectorStore.Collection,
		DefaultK:   cfg.Search.K,
		MaxK:       cfg.Search.MaxK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	a.LLM, err = llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		SocketPath:  cfg.LLM.SocketPath,
		Path:        cfg.LLM.Path,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	a.Composer, err = answer.New(a.Retriever, a.LLM, answer.Config{
		K:            cfg.Answer.K,
		Keep:         cfg.Answer.Keep,
		MaxTokens:    cfg.Answer.MaxTokens,
		SnippetChars: cfg.Answer.SnippetChars,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create answer composer: %w", err)
	}

	a.Checker = status.New(a.Embeddings, a.Store, status.Config{
		Collection: cfg.VectorStore.Collection,
		Dimension:  dimension,
		Timeout:    cfg.Status.Timeout,
	})
	return a, nil
}

// NewDiagnostics builds only what the status check needs, without probing
// the embedding backend, so it works while backends are down.
func NewDiagnostics(cfg config.Config) (*status.Checker, error) {
	a, err := newCore(cfg, nil)
	if err != nil {
		return nil, err
	}
	return status.New(a.Embeddings, a.Store, status.Config{
		Collection: cfg.VectorStore.Collection,
		Dimension:  cfg.Embeddings.Dimension,
		Timeout:    cfg.Status.Timeout,
	}), nil
}

func newCore(cfg config.Config, store vectorstore.Store) (*App, error) {
	embedClient, err := embeddings.New(embeddings.Config{
		BaseURL:    cfg.Embeddings.BaseURL,
		SocketPath: cfg.Embeddings.SocketPath,
		Path:       cfg.Embeddings.Path,
		Model:      cfg.Embeddings.Model,
		APIKey:     cfg.Embeddings.APIKey,
		Dimension:  cfg.Embeddings.Dimension,
		Timeout:    cfg.Embeddings.Timeout,
		RateLimit:  cfg.Embeddings.RateLimit,
		Burst:      cfg.Embeddings.Burst,
		MaxRetries: cfg.Embeddings.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	if store == nil {
		store, err = NewStore(cfg)
		if err != nil {
			return nil, err
		}
	}
	return &App{Config: cfg, Store: store, Embeddings: embedClient}, nil
}

// NewStore creates the configured vector store backend.
func NewStore(cfg config.Config) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case config.BackendElasticsearch:
		client, err := elasticsearch.New(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create elasticsearch store: %w", err)
		}
		return client, nil
	case config.BackendQdrant:
		client, err := qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  cfg.Qdrant.APIKey,
			Timeout: cfg.Qdrant.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant store: %w", err)
		}
		return client, nil
	case config.BackendMemory:
		slog.Warn("using in-memory vector store, indexed content is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

func newSource(ctx context.Context, cfg config.Config) (*source.Resolver, error) {
	var objects source.ObjectStore
	if cfg.Storage.Endpoint != "" {
		client, err := storage.New(storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
			Region:          cfg.Storage.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if bucket := cfg.Scraper.ArchiveBucket; bucket != "" {
			if err := client.EnsureBucket(ctx, bucket); err != nil {
				slog.Warn("archive bucket unavailable, fetched pages will not be archived", "bucket", bucket, "error", err)
			}
		}
		objects = client
	}

	var web source.Fetcher
	if len(cfg.Scraper.AllowedDomains) > 0 {
		web = scraper.New(scraper.Config{
			UserAgent:        cfg.Scraper.UserAgent,
			Timeout:          cfg.Scraper.Timeout,
			MaxBodyBytes:     cfg.Scraper.MaxBodyBytes,
			TryMarkdownFirst: cfg.Scraper.TryMarkdownFirst,
		})
	}

	resolver, err := source.New(source.Config{
		AllowedRoots:   cfg.Ingest.AllowedRoots,
		MaxFileBytes:   cfg.Ingest.MaxFileBytes,
		AllowedBuckets: cfg.Storage.AllowedBuckets,
		AllowedDomains: cfg.Scraper.AllowedDomains,
		ArchiveBucket:  cfg.Scraper.ArchiveBucket,
	}, objects, web)
	if err != nil {
		return nil, fmt.Errorf("failed to create source resolver: %w", err)
	}
	if len(resolver.Roots()) == 0 {
		slog.Warn("no allowed roots configured, local files are rejected")
	}
	return resolver, nil
}

// ScanResult lists matching files.
type ScanResult struct {
	Files []string `json:"files"`
}

// Scan lists allow-listed files matching globs.
func (a *App) Scan(ctx context.Context, globs []string) (*ScanResult, error) {
	if len(globs) == 0 {
		return nil, &InvalidArgumentError{Msg: "at least one glob is required"}
	}
	files, err := a.Source.Scan(ctx, globs)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []string{}
	}
	return &ScanResult{Files: files}, nil
}

// Upsert ingests documents.
func (a *App) Upsert(ctx context.Context, req ingestion.Request) (*ingestion.Result, error) {
	return a.Engine.Ingest(ctx, req)
}

// SearchResult holds ranked hits.
type SearchResult struct {
	Items []models.SearchHit `json:"items"`
}

// Search runs a similarity search.
func (a *App) Search(ctx context.Context, query string, k int) (*SearchResult, error) {
	hits, err := a.Retriever.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Items: hits}, nil
}

// Answer answers a question from indexed content.
func (a *App) Answer(ctx context.Context, req answer.Request) (*answer.Response, error) {
	return a.Composer.Answer(ctx, req)
}

// Status reports backend reachability.
func (a *App) Status(ctx context.Context) *status.Report {
	return a.Checker.Run(ctx)
}

// Resolve returns the stored chunk behind a citation.
func (a *App) Resolve(ctx context.Context, docHash string, chunkID int) (*retrieval.Chunk, error) {
	return a.Retriever.Resolve(ctx, docHash, chunkID)
}

// ResolveResource returns the stored chunk behind a doc://hash/seq locator.
func (a *App) ResolveResource(ctx context.Context, resource string) (*retrieval.Chunk, error) {
	return a.Retriever.ResolveResource(ctx, resource)
}

// InvalidArgumentError is a malformed tool request.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return e.Msg }

// Kind classifies an operation error for tool results.
func Kind(err error) string {
	var (
		invalid   *InvalidArgumentError
		retErr    *retrieval.RetrievalError
		chatErr   *llm.ChatBackendError
		dimErr    *index.DimensionMismatchError
		upsertErr *index.UpsertError
		embedErr  *embeddings.EmbeddingError
		parseErr  *parser.ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid),
		errors.Is(err, retrieval.ErrEmptyQuery),
		errors.Is(err, retrieval.ErrInvalidReference),
		errors.Is(err, ingestion.ErrNoPaths),
		errors.Is(err, chunker.ErrInvalidSize):
		return "InvalidArgument"
	case errors.Is(err, retrieval.ErrChunkNotFound):
		return "NotFound"
	case errors.Is(err, source.ErrOutsideAllowList):
		return "AccessDenied"
	case errors.As(err, &dimErr):
		return "DimensionMismatchError"
	case errors.As(err, &retErr):
		return "RetrievalError"
	case errors.As(err, &chatErr):
		return "ChatBackendError"
	case errors.As(err, &upsertErr):
		return "UpsertError"
	case errors.As(err, &embedErr):
		return "EmbeddingError"
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	default:
		return "Internal"
	}
}

// Service is the tool surface served over every transport.
type Service interface {
	Scan(ctx context.Context, globs []string) (*ScanResult, error)
	Upsert(ctx context.Context, req ingestion.Request) (*ingestion.Result, error)
	Search(ctx context.Context, query string, k int) (*SearchResult, error)
	Answer(ctx context.Context, req answer.Request) (*answer.Response, error)
	Status(ctx context.Context) *status.Report
	Resolve(ctx context.Context, docHash string, chunkID int) (*retrieval.Chunk, error)
	ResolveResource(ctx context.Context, resource string) (*retrieval.Chunk, error)
}

var _ Service = (*App)(nil)
