package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/status"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend reachability",
	Long: `Check that the embedding backend, the vector store and the target
collection are reachable. Exits non-zero when any check fails.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text or json")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(statusFormat); err != nil {
		return err
	}
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	checker, err := app.NewDiagnostics(cfg)
	if err != nil {
		return err
	}
	report := checker.Run(ctx)

	if statusFormat == "json" {
		if err := printJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		printCheck(out, "Embedding backend", report.EmbeddingBackend)
		printCheck(out, "Vector store", report.VectorStore)
		printCheck(out, "Collection "+report.Collection.Name, report.Collection.Check)
		if report.Collection.Exists {
			fmt.Fprintf(out, "  dimension %d, %d points\n", report.Collection.Dimension, report.Collection.Points)
		} else if report.Collection.OK {
			fmt.Fprintf(out, "  not created yet\n")
		}
	}

	if !report.Healthy() {
		return errors.New("one or more checks failed")
	}
	return nil
}

func printCheck(out io.Writer, name string, c status.Check) {
	mark := "ok"
	if !c.OK {
		mark = "FAIL"
	}
	fmt.Fprintf(out, "%-30s %-4s %4dms", name, mark, c.LatencyMS)
	if c.Error != "" {
		fmt.Fprintf(out, "  %s", c.Error)
	}
	fmt.Fprintln(out)
}
