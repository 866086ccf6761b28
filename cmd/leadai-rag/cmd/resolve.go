package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/retrieval"
)

var resolveFormat string

var resolveCmd = &cobra.Command{
	Use:   "resolve <doc_hash> <chunk_id> | resolve <doc://hash/chunk>",
	Short: "Show the stored text behind a citation",
	Long: `Look a chunk up by document hash and chunk number, as printed in
search results and answer citations.

Examples:
  leadai-rag resolve 3f2a...c9 2
  leadai-rag resolve doc://3f2a...c9/2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().StringVar(&resolveFormat, "format", "text", "Output format: text or json")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(resolveFormat); err != nil {
		return err
	}

	var chunkID int
	if len(args) == 2 {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid chunk id %q: %w", args[1], err)
		}
		chunkID = id
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	var chunk *retrieval.Chunk
	if len(args) == 1 {
		chunk, err = a.ResolveResource(ctx, args[0])
	} else {
		chunk, err = a.Resolve(ctx, args[0], chunkID)
	}
	if err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	if resolveFormat == "json" {
		return printJSON(cmd.OutOrStdout(), chunk)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Source:   %s\n", chunk.DocPath)
	fmt.Fprintf(out, "Chunk:    %s\n", chunk.Resource)
	if chunk.Title != "" {
		fmt.Fprintf(out, "Title:    %s\n", chunk.Title)
	}
	if chunk.Sheet != "" {
		fmt.Fprintf(out, "Sheet:    %s\n", chunk.Sheet)
	}
	if chunk.Page > 0 {
		fmt.Fprintf(out, "Page:     %d\n", chunk.Page)
	}
	fmt.Fprintf(out, "\n%s\n", chunk.Text)
	return nil
}
