// Package httpapi serves the tool surface as HTTP+JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/ingestion"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// API routes tool calls to the service.
type API struct {
	service app.Service
}

// New creates the API.
func New(service app.Service) *API {
	return &API{service: service}
}

// Handler returns the routed handler.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scan", a.handleScan)
	mux.HandleFunc("POST /upsert", a.handleUpsert)
	mux.HandleFunc("POST /search", a.handleSearch)
	mux.HandleFunc("POST /answer", a.handleAnswer)
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /resolve", a.handleResolve)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	return logRequests(mux)
}

// Serve listens on addr until ctx is done.
func (a *API) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type scanRequest struct {
	Globs []string `json:"globs"`
}

type upsertRequest struct {
	Paths     []string `json:"paths"`
	ChunkSize *int     `json:"chunkSize"`
	Overlap   *int     `json:"overlap"`
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type answerRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k"`
	Keep      int    `json:"keep"`
	MaxTokens int    `json:"maxTokens"`
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.service.Scan(r.Context(), req.Globs)
	respond(w, res, err)
}

func (a *API) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.service.Upsert(r.Context(), ingestion.Request{
		Paths:     req.Paths,
		ChunkSize: req.ChunkSize,
		Overlap:   req.Overlap,
	})
	respond(w, res, err)
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.service.Search(r.Context(), req.Query, req.K)
	respond(w, res, err)
}

func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.service.Answer(r.Context(), answer.Request{
		Query:     req.Query,
		K:         req.K,
		Keep:      req.Keep,
		MaxTokens: req.MaxTokens,
	})
	respond(w, res, err)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.Status(r.Context()))
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if resource := q.Get("resource"); resource != "" {
		res, err := a.service.ResolveResource(r.Context(), resource)
		respond(w, res, err)
		return
	}
	docHash := q.Get("doc_hash")
	chunkID, err := strconv.Atoi(q.Get("chunk_id"))
	if docHash == "" || err != nil {
		writeError(w, &app.InvalidArgumentError{Msg: "doc_hash and integer chunk_id, or resource, are required"})
		return
	}
	res, err := a.service.Resolve(r.Context(), docHash, chunkID)
	respond(w, res, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, &app.InvalidArgumentError{Msg: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeError(w http.ResponseWriter, err error) {
	kind := app.Kind(err)
	code := statusCode(kind)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", kind, "error", err)
	}
	writeJSON(w, code, apiError{Error: err.Error(), Kind: kind})
}

func statusCode(kind string) int {
	switch kind {
	case "InvalidArgument":
		return http.StatusBadRequest
	case "AccessDenied":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "DimensionMismatchError":
		return http.StatusConflict
	case "RetrievalError", "ChatBackendError", "EmbeddingError", "UpsertError":
		return http.StatusBadGateway
	case "Timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.code, "duration", time.Since(start))
	})
}
