package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leadai/leadai-rag/internal/answer"
	"github.com/leadai/leadai-rag/pkg/models"
)

var (
	answerK         int
	answerKeep      int
	answerMaxTokens int
	answerFormat    string
	answerRelated   bool
)

var answerCmd = &cobra.Command{
	Use:   "answer [question]",
	Short: "Answer a question from indexed content",
	Long: `Retrieve the most relevant chunks, ask the chat backend to answer
using only them, and print the answer with numbered citations.

Examples:
  leadai-rag answer "What is the refund policy?"
  leadai-rag answer "Who approved the Q3 budget?" --k 10 --keep 5
  leadai-rag answer "What changed in v2?" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnswer,
}

func init() {
	rootCmd.AddCommand(answerCmd)

	answerCmd.Flags().IntVar(&answerK, "k", 0, "Passages to retrieve (default from config)")
	answerCmd.Flags().IntVar(&answerKeep, "keep", 0, "Passages used as context, at most k (default from config)")
	answerCmd.Flags().IntVar(&answerMaxTokens, "max-tokens", 0, "Maximum answer tokens (default from config)")
	answerCmd.Flags().StringVar(&answerFormat, "format", "text", "Output format: text or json")
	answerCmd.Flags().BoolVar(&answerRelated, "related", false, "Also list every retrieved passage")
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkFormat(answerFormat); err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	resp, err := a.Answer(ctx, answer.Request{
		Query:     args[0],
		K:         answerK,
		Keep:      answerKeep,
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if answerFormat == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", resp.Answer)
	if len(resp.Citations) > 0 {
		fmt.Fprintf(out, "\nSources:\n")
		for _, c := range resp.Citations {
			fmt.Fprintf(out, "  [%d] %s (%s)\n", c.Reference, c.DocPath, c.Resource)
			fmt.Fprintf(out, "%s\n", indent(c.Snippet, "      "))
		}
	}
	if answerRelated && len(resp.Context) > 0 {
		fmt.Fprintf(out, "\nRelated passages:\n")
		for _, hit := range resp.Context {
			fmt.Fprintf(out, "  %.4f  %s  %s\n", hit.Score, hit.Payload.DocPath, models.ResourceURI(hit.Payload.DocHash, hit.Payload.ChunkID))
		}
	}
	return nil
}
