package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/leadai/leadai-rag/internal/vectorstore"
)

// Backends accepted by vector_store.backend.
const (
	BackendElasticsearch = "elasticsearch"
	BackendQdrant        = "qdrant"
	BackendMemory        = "memory"
)

// Config holds all application configuration.
type Config struct {
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	LLM           LLM           `mapstructure:"llm"`
	VectorStore   VectorStore   `mapstructure:"vector_store"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Qdrant        Qdrant        `mapstructure:"qdrant"`
	Storage       Storage       `mapstructure:"storage"`
	Scraper       Scraper       `mapstructure:"scraper"`
	Ingest        Ingest        `mapstructure:"ingest"`
	Search        Search        `mapstructure:"search"`
	Answer        Answer        `mapstructure:"answer"`
	Status        Status        `mapstructure:"status"`
	HTTP          HTTP          `mapstructure:"http"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Embeddings holds embedding backend configuration.
type Embeddings struct {
	BaseURL    string        `mapstructure:"base_url"`
	SocketPath string        `mapstructure:"socket_path"`
	Path       string        `mapstructure:"path"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Dimension  int           `mapstructure:"dimension"` // 0 = probe the backend once at startup
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// LLM holds chat backend configuration.
type LLM struct {
	BaseURL     string        `mapstructure:"base_url"`
	SocketPath  string        `mapstructure:"socket_path"`
	Path        string        `mapstructure:"path"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// VectorStore selects the backend and collection.
type VectorStore struct {
	Backend    string `mapstructure:"backend"`
	Collection string `mapstructure:"collection"`
	Distance   string `mapstructure:"distance"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Qdrant holds Qdrant REST configuration.
type Qdrant struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Storage holds S3/MinIO storage configuration. An empty endpoint disables
// s3:// sources.
type Storage struct {
	Endpoint        string   `mapstructure:"endpoint"`
	Bucket          string   `mapstructure:"bucket"`
	AccessKeyID     string   `mapstructure:"access_key_id"`
	SecretAccessKey string   `mapstructure:"secret_access_key"`
	UseSSL          bool     `mapstructure:"use_ssl"`
	Region          string   `mapstructure:"region"`
	AllowedBuckets  []string `mapstructure:"allowed_buckets"`
}

// Scraper holds web page fetching configuration. An empty domain list
// disables http(s):// sources.
type Scraper struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	AllowedDomains   []string      `mapstructure:"allowed_domains"`
	TryMarkdownFirst bool          `mapstructure:"try_markdown_first"`
	MaxBodyBytes     int           `mapstructure:"max_body_bytes"`
	ArchiveBucket    string        `mapstructure:"archive_bucket"`
}

// Ingest holds upsert pipeline configuration.
type Ingest struct {
	AllowedRoots    []string      `mapstructure:"allowed_roots"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	Overlap         int           `mapstructure:"overlap"`
	Workers         int           `mapstructure:"workers"`
	DocumentTimeout time.Duration `mapstructure:"document_timeout"`
	PruneStale      bool          `mapstructure:"prune_stale"`
	MaxFileBytes    int64         `mapstructure:"max_file_bytes"`
}

// Search holds retriever limits.
type Search struct {
	K    int `mapstructure:"k"`
	MaxK int `mapstructure:"max_k"`
}

// Answer holds answer composer defaults.
type Answer struct {
	K            int `mapstructure:"k"`
	Keep         int `mapstructure:"keep"`
	MaxTokens    int `mapstructure:"max_tokens"`
	SnippetChars int `mapstructure:"snippet_chars"`
}

// Status holds diagnostics configuration.
type Status struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTP holds the listen address for the HTTP surfaces.
type HTTP struct {
	Addr string `mapstructure:"addr"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Embeddings: Embeddings{
			BaseURL:    "http://localhost:11434/v1",
			Path:       "/embeddings",
			Model:      "nomic-embed-text",
			Timeout:    60 * time.Second,
			Burst:      1,
			MaxRetries: 2,
		},
		LLM: LLM{
			BaseURL:     "http://localhost:11434/v1",
			Path:        "/chat/completions",
			Model:       "llama3.1",
			Timeout:     2 * time.Minute,
			MaxTokens:   512,
			Temperature: 0.1,
		},
		VectorStore: VectorStore{
			Backend:    BackendQdrant,
			Collection: "leadai-chunks",
			Distance:   string(vectorstore.Cosine),
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
		},
		Qdrant: Qdrant{
			URL:     "http://localhost:6333",
			Timeout: 30 * time.Second,
		},
		Storage: Storage{
			UseSSL: false,
		},
		Scraper: Scraper{
			UserAgent:        "leadai-rag/1.0",
			Timeout:          30 * time.Second,
			TryMarkdownFirst: true,
			MaxBodyBytes:     10 << 20,
		},
		Ingest: Ingest{
			ChunkSize:       900,
			Overlap:         120,
			Workers:         4,
			DocumentTimeout: 2 * time.Minute,
			PruneStale:      true,
			MaxFileBytes:    32 << 20,
		},
		Search: Search{
			K:    5,
			MaxK: 50,
		},
		Answer: Answer{
			K:            6,
			Keep:         4,
			MaxTokens:    512,
			SnippetChars: 280,
		},
		Status: Status{
			Timeout: 4 * time.Second,
		},
		HTTP: HTTP{
			Addr: ":8088",
		},
		MCP: MCP{
			Name:    "leadai-rag",
			Version: "1.0.0",
		},
	}
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Embeddings.BaseURL == "" && c.Embeddings.SocketPath == "" {
		errs = append(errs, errors.New("embeddings: base_url or socket_path is required"))
	}
	if c.Embeddings.Model == "" {
		errs = append(errs, errors.New("embeddings: model is required"))
	}
	if c.Embeddings.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embeddings: dimension must not be negative, got %d", c.Embeddings.Dimension))
	}
	switch c.VectorStore.Backend {
	case BackendElasticsearch:
		if len(c.Elasticsearch.Addresses) == 0 {
			errs = append(errs, errors.New("elasticsearch: at least one address is required"))
		}
	case BackendQdrant:
		if c.Qdrant.URL == "" {
			errs = append(errs, errors.New("qdrant: url is required"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("vector_store: unknown backend %q", c.VectorStore.Backend))
	}
	if c.VectorStore.Collection == "" {
		errs = append(errs, errors.New("vector_store: collection is required"))
	}
	if _, err := vectorstore.ParseDistance(c.VectorStore.Distance); err != nil {
		errs = append(errs, fmt.Errorf("vector_store: %w", err))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest: chunk_size must be positive, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.Overlap < 0 {
		errs = append(errs, fmt.Errorf("ingest: overlap must not be negative, got %d", c.Ingest.Overlap))
	}
	if c.Ingest.Workers < 1 {
		errs = append(errs, fmt.Errorf("ingest: workers must be at least 1, got %d", c.Ingest.Workers))
	}
	if c.Search.K < 1 || c.Search.MaxK < c.Search.K {
		errs = append(errs, fmt.Errorf("search: need 1 <= k <= max_k, got k=%d max_k=%d", c.Search.K, c.Search.MaxK))
	}
	if c.Answer.K < 1 {
		errs = append(errs, fmt.Errorf("answer: k must be at least 1, got %d", c.Answer.K))
	}
	if c.Answer.Keep < 1 || c.Answer.Keep > c.Answer.K {
		errs = append(errs, fmt.Errorf("answer: need 1 <= keep <= k, got keep=%d k=%d", c.Answer.Keep, c.Answer.K))
	}
	if c.Storage.Endpoint == "" && len(c.Storage.AllowedBuckets) > 0 {
		errs = append(errs, errors.New("storage: allowed_buckets set without an endpoint"))
	}
	if c.Scraper.ArchiveBucket != "" && c.Storage.Endpoint == "" {
		errs = append(errs, errors.New("scraper: archive_bucket set without a storage endpoint"))
	}
	return errors.Join(errs...)
}
