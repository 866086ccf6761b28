package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leadai/leadai-rag/internal/app"
	"github.com/leadai/leadai-rag/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	cfg       config.Config
	configErr error
)

// GetConfig returns the loaded configuration.
func GetConfig() (config.Config, error) {
	return cfg, configErr
}

var rootCmd = &cobra.Command{
	Use:   "leadai-rag",
	Short: "leadai-rag: document indexing and grounded question answering",
	Long: `leadai-rag indexes local files, S3 objects and web pages into a vector
store and answers questions from them with numbered citations.

Commands:
  ingest   Parse, chunk, embed and index documents
  scan     List files matching glob patterns under the allowed roots
  search   Semantic search over indexed chunks
  answer   Answer a question from indexed content
  resolve  Show the stored text behind a citation
  status   Check backend reachability
  serve    Serve the tools over MCP or HTTP`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogger, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// .env values become environment overrides; a missing file is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, configErr = config.Load(viper.GetViper(), cfgFile)
}

// newApp loads the configuration and wires every component.
func newApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, opts...)
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("unknown format %q: want text or json", format)
	}
	return nil
}
