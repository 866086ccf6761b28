package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/source"
)

var scanFormat string

var scanCmd = &cobra.Command{
	Use:   "scan [globs...]",
	Short: "List files matching glob patterns",
	Long: `List files under the allowed roots that match glob patterns.
A "**" segment matches any number of directories.

Examples:
  leadai-rag scan "/srv/docs/**/*.md" "/srv/docs/*.xlsx"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "Output format: text or json")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(scanFormat); err != nil {
		return err
	}
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	// Scanning only needs the allow-list, not the backends.
	resolver, err := source.New(source.Config{AllowedRoots: cfg.Ingest.AllowedRoots}, nil, nil)
	if err != nil {
		return err
	}
	if len(resolver.Roots()) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No allowed roots configured; set ingest.allowed_roots.")
	}
	files, err := resolver.Scan(ctx, args)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanFormat == "json" {
		if files == nil {
			files = []string{}
		}
		return printJSON(cmd.OutOrStdout(), map[string][]string{"files": files})
	}
	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No files found.")
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return nil
}
