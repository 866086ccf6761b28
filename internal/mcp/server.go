package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/ingestion"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server exposes the tool surface over MCP.
type Server struct {
	mcpServer *server.MCPServer
	service   app.Service
}

// NewServer creates a new MCP server with the document tools registered.
func NewServer(config Config, service app.Service) (*Server, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		service:   service,
	}

	mcpServer.AddTool(mcp.NewTool("scan",
		mcp.WithDescription("List files under the allowed roots that match glob patterns. Supports ** for recursive matching."),
		mcp.WithArray("globs",
			mcp.Required(),
			mcp.Description("Glob patterns, e.g. /srv/docs/**/*.md"),
			mcp.WithStringItems(),
		),
	), s.scanHandler)

	mcpServer.AddTool(mcp.NewTool("upsert",
		mcp.WithDescription("Parse, chunk, embed and index documents. Accepts local paths or directories under the allowed roots, s3://bucket/key locators and allow-listed web URLs. Unchanged documents are not duplicated."),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Files, directories, s3:// locators or URLs to index"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("chunkSize",
			mcp.Description("Chunk window in characters (default: 900)"),
		),
		mcp.WithNumber("overlap",
			mcp.Description("Characters shared by consecutive chunks (default: 120)"),
		),
	), s.upsertHandler)

	mcpServer.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Semantic search over indexed chunks. Returns hits ordered by descending score with their source path, document hash and chunk number."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("k",
			mcp.Description("Maximum number of results to return (default: 5, max: 50)"),
		),
	), s.searchHandler)

	mcpServer.AddTool(mcp.NewTool("answer",
		mcp.WithDescription("Answer a question using only indexed content. Returns the answer, numbered citations and the ranked context passages."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithNumber("k",
			mcp.Description("Passages to retrieve (default: 6)"),
		),
		mcp.WithNumber("keep",
			mcp.Description("Passages given to the model as context, at most k (default: 4)"),
		),
		mcp.WithNumber("maxTokens",
			mcp.Description("Maximum tokens in the answer"),
		),
	), s.answerHandler)

	mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Check that the embedding backend, vector store and collection are reachable."),
	), s.statusHandler)

	mcpServer.AddTool(mcp.NewTool("resolve",
		mcp.WithDescription("Return the stored text of a cited chunk. Pass either doc_hash and chunk_id, or a doc://<hash>/<chunk> resource."),
		mcp.WithString("doc_hash",
			mcp.Description("Content hash of the document"),
		),
		mcp.WithNumber("chunk_id",
			mcp.Description("Chunk sequence number within the document"),
		),
		mcp.WithString("resource",
			mcp.Description("Citation resource, e.g. doc://<hash>/3"),
		),
	), s.resolveHandler)

	return s, nil
}

func (s *Server) scanHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	globs, err := req.RequireStringSlice("globs")
	if err != nil {
		return mcp.NewToolResultError("globs parameter is required"), nil
	}
	return result(s.service.Scan(ctx, globs))
}

func (s *Server) upsertHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := req.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError("paths parameter is required"), nil
	}
	ingest := ingestion.Request{Paths: paths}
	args := req.GetArguments()
	if _, ok := args["chunkSize"]; ok {
		v := req.GetInt("chunkSize", 0)
		ingest.ChunkSize = &v
	}
	if _, ok := args["overlap"]; ok {
		v := req.GetInt("overlap", 0)
		ingest.Overlap = &v
	}
	return result(s.service.Upsert(ctx, ingest))
}

func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	return result(s.service.Search(ctx, query, req.GetInt("k", 0)))
}

func (s *Server) answerHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	return result(s.service.Answer(ctx, answer.Request{
		Query:     query,
		K:         req.GetInt("k", 0),
		Keep:      req.GetInt("keep", 0),
		MaxTokens: req.GetInt("maxTokens", 0),
	}))
}

func (s *Server) statusHandler(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.service.Status(ctx), nil)
}

func (s *Server) resolveHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docHash := req.GetString("doc_hash", "")
	_, hasChunk := req.GetArguments()["chunk_id"]
	chunkID := req.GetInt("chunk_id", 0)

	if resource := req.GetString("resource", ""); resource != "" {
		return result(s.service.ResolveResource(ctx, resource))
	}
	if docHash == "" || !hasChunk {
		return mcp.NewToolResultError("doc_hash and chunk_id, or resource, are required"), nil
	}
	return result(s.service.Resolve(ctx, docHash, chunkID))
}

// result renders v as JSON text, or err as an error result.
func result[T any](v T, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	kind := app.Kind(err)
	slog.Warn("tool call failed", "kind", kind, "error", err)
	data, _ := json.Marshal(map[string]string{"error": err.Error(), "kind": kind})
	return mcp.NewToolResultError(string(data))
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("MCP HTTP server listening", "addr", addr)
		errCh <- httpServer.Start(addr)
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
		return httpServer.Shutdown(shutdownCtx)
	}
}
