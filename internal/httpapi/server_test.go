package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/ingestion"
	"github.com/leadai/leadai-rag/internal/llm"
	"github.com/leadai/leadai-rag/internal/retrieval"
	"github.com/leadai/leadai-rag/internal/source"
	"github.com/leadai/leadai-rag/internal/status"
	"github.com/leadai/leadai-rag/pkg/models"
)

type fakeService struct {
	upsert ingestion.Request
	answer answer.Request
	err    error
}

func (f *fakeService) Scan(_ context.Context, globs []string) (*app.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &app.ScanResult{Files: globs}, nil
}

func (f *fakeService) Upsert(_ context.Context, req ingestion.Request) (*ingestion.Result, error) {
	f.upsert = req
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Result{DocsIndexed: 2, ChunksWritten: 7}, nil
}

func (f *fakeService) Search(_ context.Context, query string, k int) (*app.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &app.SearchResult{Items: []models.SearchHit{{
		ID:      "id-1",
		Score:   0.5,
		Payload: models.Payload{DocPath: "/a.md", DocHash: "h", ChunkID: k, Content: query, Title: "A"},
	}}}, nil
}

func (f *fakeService) Answer(_ context.Context, req answer.Request) (*answer.Response, error) {
	f.answer = req
	if f.err != nil {
		return nil, f.err
	}
	return &answer.Response{
		Answer:    "blue [1]",
		Citations: []models.Citation{{Reference: 1, Resource: "doc://h/0", DocPath: "/a.md", Snippet: "blue"}},
		Context:   []models.SearchHit{},
	}, nil
}

func (f *fakeService) Status(context.Context) *status.Report {
	return &status.Report{EmbeddingBackendOK: true, VectorStoreOK: false}
}

func (f *fakeService) Resolve(_ context.Context, docHash string, chunkID int) (*retrieval.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Chunk{DocPath: "/a.md", DocHash: docHash, ChunkID: chunkID, Text: "blue", Sheet: "S"}, nil
}

func (f *fakeService) ResolveResource(ctx context.Context, resource string) (*retrieval.Chunk, error) {
	docHash, chunkID, err := models.ParseResourceURI(resource)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", retrieval.ErrInvalidReference, err)
	}
	return f.Resolve(ctx, docHash, chunkID)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantJSON string
	}{
		{"healthz", http.MethodGet, "/healthz", "", 200, `{"ok":true}`},
		{"scan", http.MethodPost, "/scan", `{"globs":["/srv/*.md"]}`, 200, `{"files":["/srv/*.md"]}`},
		{"search", http.MethodPost, "/search", `{"query":"q","k":3}`, 200,
			`{"items":[{"id":"id-1","score":0.5,"payload":{"doc_path":"/a.md","doc_hash":"h","chunk_id":3,"content":"q","title":"A","indexed_at":"0001-01-01T00:00:00Z"}}]}`},
		{"answer", http.MethodPost, "/answer", `{"query":"colour?","keep":1}`, 200,
			`{"answer":"blue [1]","citations":[{"reference":1,"resource":"doc://h/0","docPath":"/a.md","snippet":"blue"}],"context":[]}`},
		{"resolve", http.MethodGet, "/resolve?doc_hash=h&chunk_id=4", "", 200,
			`{"docPath":"/a.md","docHash":"h","chunkId":4,"resource":"","text":"blue","sheet":"S"}`},
		{"resolve resource", http.MethodGet, "/resolve?resource=doc://h/3", "", 200,
			`{"docPath":"/a.md","docHash":"h","chunkId":3,"resource":"","text":"blue","sheet":"S"}`},
		{"resolve bad resource", http.MethodGet, "/resolve?resource=h/3", "", 400, ""},
		{"resolve missing chunk", http.MethodGet, "/resolve?doc_hash=h", "", 400, ""},
		{"unknown field", http.MethodPost, "/search", `{"q":"x"}`, 400, ""},
		{"bad json", http.MethodPost, "/upsert", `{`, 400, ""},
		{"wrong method", http.MethodGet, "/search", "", 405, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeService{}).Handler()
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantJSON != "" {
				assert.JSONEq(t, tt.wantJSON, rec.Body.String())
			}
		})
	}
}

func TestUpsert_PassesWindow(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, New(svc).Handler(), http.MethodPost, "/upsert", `{"paths":["/srv/docs"],"chunkSize":400,"overlap":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, float64(2), out["indexed"])
	assert.Equal(t, float64(7), out["chunks"])

	require.NotNil(t, svc.upsert.ChunkSize)
	require.NotNil(t, svc.upsert.Overlap)
	assert.Equal(t, 400, *svc.upsert.ChunkSize)
	assert.Equal(t, 0, *svc.upsert.Overlap)
}

func TestStatus_AlwaysOK(t *testing.T) {
	rec := do(t, New(&fakeService{}).Handler(), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vectorStoreOk":false`)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"empty query", retrieval.ErrEmptyQuery, 400, "InvalidArgument"},
		{"outside allow-list", source.ErrOutsideAllowList, 403, "AccessDenied"},
		{"chunk missing", retrieval.ErrChunkNotFound, 404, "NotFound"},
		{"store down", &retrieval.RetrievalError{Op: "search", Err: errors.New("refused")}, 502, "RetrievalError"},
		{"chat down", &llm.ChatBackendError{StatusCode: 500, Err: errors.New("oom")}, 502, "ChatBackendError"},
		{"unexpected", errors.New("boom"), 500, "Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, New(&fakeService{err: tt.err}).Handler(), http.MethodPost, "/answer", `{"query":"q"}`)
			assert.Equal(t, tt.wantCode, rec.Code)

			var out apiError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, tt.wantKind, out.Kind)
			assert.Equal(t, tt.err.Error(), out.Error)
		})
	}
}
