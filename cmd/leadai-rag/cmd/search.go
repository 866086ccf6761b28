package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/pkg/models"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Semantic search over the indexed chunks.

Examples:
  # Basic search
  leadai-rag search "how to install"

  # Limit results
  leadai-rag search "error handling" --k 3

  # JSON output for scripting
  leadai-rag search "modules" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "k", 0, "Maximum number of results (default from config)")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(searchFormat); err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	result, err := a.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchFormat == "json" {
		return printJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results:\n\n", len(result.Items))
	for i, hit := range result.Items {
		p := hit.Payload
		fmt.Fprintf(out, "─── Result %d (score %.4f) ───\n", i+1, hit.Score)
		if p.Title != "" {
			fmt.Fprintf(out, "Title:    %s\n", p.Title)
		}
		fmt.Fprintf(out, "Source:   %s\n", p.DocPath)
		fmt.Fprintf(out, "Chunk:    %s\n", models.ResourceURI(p.DocHash, p.ChunkID))
		fmt.Fprintf(out, "Content:\n%s\n\n", answer.Snippet(p.Content, 500))
	}
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
