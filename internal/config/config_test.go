package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 900, cfg.Ingest.ChunkSize)
	assert.Equal(t, 120, cfg.Ingest.Overlap)
	assert.Equal(t, 6, cfg.Answer.K)
	assert.Equal(t, 4, cfg.Answer.Keep)
	assert.True(t, cfg.Ingest.PruneStale)
	assert.Zero(t, cfg.Embeddings.Dimension, "dimension is probed by default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero chunk size", func(c *Config) { c.Ingest.ChunkSize = 0 }, "chunk_size"},
		{"negative overlap", func(c *Config) { c.Ingest.Overlap = -1 }, "overlap"},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, "workers"},
		{"keep above k", func(c *Config) { c.Answer.Keep = 7 }, "keep"},
		{"no collection", func(c *Config) { c.VectorStore.Collection = "" }, "collection"},
		{"unknown backend", func(c *Config) { c.VectorStore.Backend = "pinecone" }, "unknown backend"},
		{"unknown distance", func(c *Config) { c.VectorStore.Distance = "manhattan" }, "distance"},
		{"no embedding address", func(c *Config) { c.Embeddings.BaseURL = "" }, "base_url"},
		{"es without addresses", func(c *Config) {
			c.VectorStore.Backend = BackendElasticsearch
			c.Elasticsearch.Addresses = nil
		}, "elasticsearch"},
		{"buckets without endpoint", func(c *Config) { c.Storage.AllowedBuckets = []string{"b"} }, "allowed_buckets"},
		{"archive without endpoint", func(c *Config) { c.Scraper.ArchiveBucket = "b" }, "archive_bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
vector_store:
  backend: elasticsearch
  collection: evidence
ingest:
  chunk_size: 500
  document_timeout: 30s
  allowed_roots:
    - /srv/docs
answer:
  keep: 2
`), 0o644))

	t.Setenv("LEADAIRAG_INGEST_WORKERS", "8")
	t.Setenv("LEADAIRAG_ELASTICSEARCH_ADDRESSES", "http://es1:9200, http://es2:9200")
	t.Setenv("LEADAIRAG_EMBEDDINGS_DIMENSION", "768")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, BackendElasticsearch, cfg.VectorStore.Backend)
	assert.Equal(t, "evidence", cfg.VectorStore.Collection)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, 120, cfg.Ingest.Overlap, "unset keys keep defaults")
	assert.Equal(t, 30*time.Second, cfg.Ingest.DocumentTimeout)
	assert.Equal(t, []string{"/srv/docs"}, cfg.Ingest.AllowedRoots)
	assert.Equal(t, 2, cfg.Answer.Keep)
	assert.Equal(t, 8, cfg.Ingest.Workers)
	assert.Equal(t, 768, cfg.Embeddings.Dimension)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.Elasticsearch.Addresses)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_BadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ingest: [unclosed"), 0o644))

	_, err := Load(viper.New(), file)
	assert.Error(t, err)
}
