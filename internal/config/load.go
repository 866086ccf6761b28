package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override,
// e.g. LEADAIRAG_VECTOR_STORE_BACKEND -> vector_store.backend.
const EnvPrefix = "LEADAIRAG"

// keys lists every nested option that can be overridden from the environment.
var keys = []string{
	"embeddings.base_url", "embeddings.socket_path", "embeddings.path", "embeddings.model",
	"embeddings.api_key", "embeddings.dimension", "embeddings.timeout", "embeddings.rate_limit",
	"embeddings.burst", "embeddings.max_retries",
	"llm.base_url", "llm.socket_path", "llm.path", "llm.model", "llm.api_key", "llm.timeout",
	"llm.max_tokens", "llm.temperature",
	"vector_store.backend", "vector_store.collection", "vector_store.distance",
	"elasticsearch.addresses", "elasticsearch.username", "elasticsearch.password",
	"qdrant.url", "qdrant.api_key", "qdrant.timeout",
	"storage.endpoint", "storage.bucket", "storage.access_key_id", "storage.secret_access_key",
	"storage.use_ssl", "storage.region", "storage.allowed_buckets",
	"scraper.user_agent", "scraper.timeout", "scraper.allowed_domains", "scraper.try_markdown_first",
	"scraper.max_body_bytes", "scraper.archive_bucket",
	"ingest.allowed_roots", "ingest.chunk_size", "ingest.overlap", "ingest.workers",
	"ingest.document_timeout", "ingest.prune_stale", "ingest.max_file_bytes",
	"search.k", "search.max_k",
	"answer.k", "answer.keep", "answer.max_tokens", "answer.snippet_chars",
	"status.timeout",
	"http.addr",
	"mcp.name", "mcp.version",
}

// listKeys may be given as comma-separated strings in the environment.
var listKeys = []string{
	"elasticsearch.addresses", "storage.allowed_buckets", "scraper.allowed_domains", "ingest.allowed_roots",
}

// Load merges defaults, the config file and the environment. With an empty
// cfgFile, config.yaml is searched in ./config, /etc/leadai-rag and the
// working directory; a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := Defaults()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/leadai-rag")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	for _, key := range listKeys {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if raw := os.Getenv(env); raw != "" {
			setList(&cfg, key, splitList(raw))
		}
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setList(cfg *Config, key string, values []string) {
	switch key {
	case "elasticsearch.addresses":
		cfg.Elasticsearch.Addresses = values
	case "storage.allowed_buckets":
		cfg.Storage.AllowedBuckets = values
	case "scraper.allowed_domains":
		cfg.Scraper.AllowedDomains = values
	case "ingest.allowed_roots":
		cfg.Ingest.AllowedRoots = values
	}
}
