package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/internal/vectorstore/memory"
	"github.com/leadai/leadai-rag/pkg/models"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

// hangingStore blocks every call until the context expires.
type hangingStore struct{ vectorstore.Store }

func (hangingStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingStore) Describe(ctx context.Context, _ string) (*vectorstore.CollectionInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_AllHealthy(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, vectorstore.CollectionSpec{Name: "docs", Dimension: 2}))
	require.NoError(t, store.Upsert(ctx, "docs", []models.Point{{ID: models.ChunkID("h", 0), Vector: []float32{1, 0}}}))

	report := New(pingFunc(ok), store, Config{Collection: "docs", Dimension: 2}).Run(ctx)

	assert.True(t, report.Healthy())
	assert.True(t, report.EmbeddingBackendOK)
	assert.True(t, report.VectorStoreOK)
	assert.True(t, report.Collection.Exists)
	assert.Equal(t, "docs", report.Collection.Name)
	assert.Equal(t, 2, report.Collection.Dimension)
	assert.Equal(t, int64(1), report.Collection.Points)
}

func TestRun_MissingCollection(t *testing.T) {
	report := New(pingFunc(ok), memory.New(), Config{Collection: "docs"}).Run(context.Background())

	assert.True(t, report.Collection.OK)
	assert.False(t, report.Collection.Exists)
	assert.Empty(t, report.Collection.Error)
}

func TestRun_DimensionDrift(t *testing.T) {
	store := memory.New()
	require.NoError(t, store.CreateCollection(context.Background(), vectorstore.CollectionSpec{Name: "docs", Dimension: 3}))

	report := New(pingFunc(ok), store, Config{Collection: "docs", Dimension: 2}).Run(context.Background())
	assert.True(t, report.Collection.Exists)
	assert.False(t, report.Collection.OK)
	assert.NotEmpty(t, report.Collection.Error)
}

func TestRun_FailuresAreReported(t *testing.T) {
	embeddings := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	start := time.Now()
	report := New(embeddings, hangingStore{}, Config{Collection: "docs", Timeout: 50 * time.Millisecond}).Run(context.Background())
	elapsed := time.Since(start)

	assert.False(t, report.Healthy())
	assert.False(t, report.EmbeddingBackendOK)
	assert.Equal(t, "connection refused", report.EmbeddingBackend.Error)
	assert.False(t, report.VectorStoreOK)
	assert.Contains(t, report.VectorStore.Error, "deadline exceeded")
	assert.False(t, report.Collection.OK)
	assert.Less(t, elapsed, time.Second, "checks run concurrently under their own timeout")
}

func TestRun_NotConfigured(t *testing.T) {
	report := New(nil, nil, Config{Collection: "docs"}).Run(context.Background())
	assert.False(t, report.EmbeddingBackendOK)
	assert.False(t, report.VectorStoreOK)
	assert.False(t, report.Collection.OK)
}
