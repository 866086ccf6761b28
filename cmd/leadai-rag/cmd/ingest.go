package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/events"
	"github.com/leadai/leadai-rag/internal/ingestion"
)

var (
	ingestChunkSize int
	ingestOverlap   int
	ingestFormat    string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Index documents into the vector store",
	Long: `Parse, chunk, embed and index documents. Directories are walked
recursively. Paths must lie under ingest.allowed_roots; s3://bucket/key
locators and web URLs are accepted when storage and scraper are configured.

Re-ingesting an unchanged document overwrites the same chunks. A changed
document replaces its previous chunks when ingest.prune_stale is set.

Examples:
  # Index a directory
  leadai-rag ingest /srv/docs

  # Custom chunk window
  leadai-rag ingest /srv/docs/handbook.docx --chunk-size 600 --overlap 80

  # Index evidence objects from S3
  leadai-rag ingest s3://evidence/2024/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "Chunk window in characters (default from config)")
	ingestCmd.Flags().IntVar(&ingestOverlap, "overlap", 0, "Characters shared by consecutive chunks (default from config)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "text", "Output format: text or json")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(ingestFormat); err != nil {
		return err
	}

	var mu sync.Mutex
	progress := events.Funcs{
		OnDocument: func(e events.DocumentProcessed) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case e.Err == nil && !e.Skipped:
				fmt.Fprintf(cmd.ErrOrStderr(), "  indexed  %s (%d chunks)\n", e.Path, e.Chunks)
			case e.Skipped:
				fmt.Fprintf(cmd.ErrOrStderr(), "  skipped  %s: %v\n", e.Path, e.Err)
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "  failed   %s [%s]: %v\n", e.Path, e.Stage, e.Err)
			}
		},
	}

	a, err := newApp(ctx, app.WithObserver(progress))
	if err != nil {
		return err
	}

	req := ingestion.Request{Paths: args}
	if cmd.Flags().Changed("chunk-size") {
		req.ChunkSize = &ingestChunkSize
	}
	if cmd.Flags().Changed("overlap") {
		req.Overlap = &ingestOverlap
	}

	result, err := a.Upsert(ctx, req)
	if result == nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	if ingestFormat == "json" {
		if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
			return perr
		}
	} else {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\nIngestion complete:\n")
		fmt.Fprintf(out, "  Docs indexed:   %d\n", result.DocsIndexed)
		fmt.Fprintf(out, "  Chunks written: %d\n", result.ChunksWritten)
		fmt.Fprintf(out, "  Skipped:        %d\n", result.Skipped)
		fmt.Fprintf(out, "  Failed:         %d\n", result.Failed)
		fmt.Fprintf(out, "  Duration:       %v\n", result.Duration)

		if len(result.Errors) > 0 {
			fmt.Fprintf(out, "  Errors: %d\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(out, "    - %s [%s/%s]: %s\n", e.Path, e.Stage, e.Kind, e.Error)
			}
		}
	}

	if err != nil {
		return fmt.Errorf("ingestion aborted: %w", err)
	}
	return nil
}
