package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/httpapi"
	"github.com/leadai/leadai-rag/internal/mcp"
)

var (
	serveTransport string
	serveAddr      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tools over MCP or HTTP",
	Long: `Serve scan, upsert, search, answer, status and resolve.

Transports:
  stdio     MCP over stdin/stdout (default)
  mcp-http  MCP streamable HTTP on --addr
  http      plain HTTP+JSON on --addr

Example:
  leadai-rag serve
  leadai-rag serve --transport http --addr :8088`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTransport, "transport", "stdio", "Transport: stdio, mcp-http or http")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config http.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch serveTransport {
	case "stdio", "mcp-http", "http":
	default:
		return fmt.Errorf("unknown transport %q", serveTransport)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = a.Config.HTTP.Addr
	}

	if serveTransport == "http" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Starting HTTP API on %s...\n", addr)
		return httpapi.New(a).Serve(ctx, addr)
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    a.Config.MCP.Name,
		Version: a.Config.MCP.Version,
	}, a)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if serveTransport == "mcp-http" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Starting MCP server on %s...\n", addr)
		return server.ServeHTTP(ctx, addr)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")
	return server.ServeStdio()
}

