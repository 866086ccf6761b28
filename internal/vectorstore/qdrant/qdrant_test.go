package qdrant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadai/leadai-rag/internal/vectorstore"
	"github.com/leadai/leadai-rag/pkg/models"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

type fakeQdrant struct {
	mu       sync.Mutex
	requests []recorded
	replies  map[string]func() (int, string)
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(data, &body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, body: body})
	reply, ok := f.replies[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	status, resp := http.StatusOK, `{"result":true,"status":"ok"}`
	if ok {
		status, resp = reply()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, resp)
}

func newFake(t *testing.T, replies map[string]func() (int, string)) (*Storage, *fakeQdrant) {
	fake := &fakeQdrant{replies: replies}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)
	return s, fake
}

func TestNewStorage_RequiresURL(t *testing.T) {
	_, err := NewStorage(Config{})
	assert.Error(t, err)
}

func TestCreateCollection(t *testing.T) {
	s, fake := newFake(t, nil)

	err := s.CreateCollection(context.Background(), vectorstore.CollectionSpec{Name: "docs", Dimension: 3, Distance: vectorstore.Euclidean})
	require.NoError(t, err)

	require.NotEmpty(t, fake.requests)
	first := fake.requests[0]
	assert.Equal(t, "PUT", first.method)
	assert.Equal(t, "/collections/docs", first.path)
	vectors := first.body["vectors"].(map[string]any)
	assert.Equal(t, float64(3), vectors["size"])
	assert.Equal(t, "Euclid", vectors["distance"])

	indexes := 0
	for _, r := range fake.requests[1:] {
		if r.path == "/collections/docs/index" {
			indexes++
		}
	}
	assert.Equal(t, 3, indexes)
}

func TestCreateCollection_Exists(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"conflict", http.StatusConflict, `{"status":{"error":"Wrong input: Collection docs already exists!"}}`},
		{"legacy bad request", http.StatusBadRequest, `{"status":{"error":"Wrong input: Collection docs already exists!"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newFake(t, map[string]func() (int, string){
				"PUT /collections/docs": func() (int, string) { return tt.status, tt.body },
			})
			err := s.CreateCollection(context.Background(), vectorstore.CollectionSpec{Name: "docs", Dimension: 3})
			assert.ErrorIs(t, err, vectorstore.ErrCollectionExists)
		})
	}
}

func TestDescribe(t *testing.T) {
	s, _ := newFake(t, map[string]func() (int, string){
		"GET /collections/docs": func() (int, string) {
			return 200, `{"result":{"status":"green","points_count":12,"config":{"params":{"vectors":{"size":384,"distance":"Dot"}}}}}`
		},
		"GET /collections/missing": func() (int, string) {
			return 404, `{"status":{"error":"Not found: Collection missing doesn't exist!"}}`
		},
	})

	info, err := s.Describe(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, 384, info.Dimension)
	assert.Equal(t, vectorstore.Dot, info.Distance)
	assert.Equal(t, int64(12), info.Points)

	_, err = s.Describe(context.Background(), "missing")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestUpsertAndSearch(t *testing.T) {
	s, fake := newFake(t, map[string]func() (int, string){
		"POST /collections/docs/points/search": func() (int, string) {
			return 200, `{"result":[{"id":"a1","score":0.8,"payload":{"doc_path":"/a.md","doc_hash":"h","chunk_id":1,"content":"alpha"}}]}`
		},
	})
	ctx := context.Background()

	err := s.Upsert(ctx, "docs", []models.Point{{ID: "a1", Vector: []float32{1, 0}, Payload: models.Payload{DocPath: "/a.md", DocHash: "h", ChunkID: 1}}})
	require.NoError(t, err)
	upsert := fake.requests[0]
	assert.Equal(t, "/collections/docs/points", upsert.path)
	point := upsert.body["points"].([]any)[0].(map[string]any)
	assert.Equal(t, "a1", point["id"])
	assert.Equal(t, "/a.md", point["payload"].(map[string]any)["doc_path"])

	hits, err := s.Search(ctx, "docs", []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a1", hits[0].ID)
	assert.Equal(t, "alpha", hits[0].Payload.Content)
	assert.Equal(t, 1, hits[0].Payload.ChunkID)
}

func TestFindChunk(t *testing.T) {
	s, fake := newFake(t, map[string]func() (int, string){
		"POST /collections/docs/points/scroll": func() (int, string) {
			return 200, `{"result":{"points":[{"id":"p","payload":{"doc_hash":"h","chunk_id":4,"content":"four"}}]}}`
		},
	})

	hit, err := s.FindChunk(context.Background(), "docs", "h", 4)
	require.NoError(t, err)
	assert.Equal(t, "four", hit.Payload.Content)

	filter := fake.requests[0].body["filter"].(map[string]any)
	assert.Len(t, filter["must"], 2)
}

func TestDeleteStale(t *testing.T) {
	s, fake := newFake(t, map[string]func() (int, string){
		"POST /collections/docs/points/count": func() (int, string) {
			return 200, `{"result":{"count":5}}`
		},
	})

	n, err := s.DeleteStale(context.Background(), "docs", "/a.md", "new")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, fake.requests, 2)
	assert.Equal(t, "/collections/docs/points/delete", fake.requests[1].path)
}

func TestRequestsCarryAPIKey(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("api-key")
		w.Write([]byte("healthz check passed"))
	}))
	defer srv.Close()

	s, err := NewStorage(Config{URL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, "secret", key)
}

func TestErrorBodySurfaced(t *testing.T) {
	s, _ := newFake(t, map[string]func() (int, string){
		"PUT /collections/docs/points": func() (int, string) {
			return 400, `{"status":{"error":"Wrong input: Vector dimension error: expected dim: 3, got 2"}}`
		},
	})
	err := s.Upsert(context.Background(), "docs", []models.Point{{ID: "x", Vector: []float32{1, 2}}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "expected dim: 3"))
}
