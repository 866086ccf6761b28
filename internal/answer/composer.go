// Package answer builds grounded prompts from retrieved chunks, asks the chat
// backend for an answer and derives numbered citations.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadai/leadai-rag/internal/llm"
	"github.com/leadai/leadai-rag/pkg/models"
)

const (
	DefaultK            = 6
	DefaultKeep         = 4
	DefaultSnippetChars = 280
)

const systemPrompt = `You answer questions using only the numbered context passages you are given.
Cite every statement with the bracketed number of the passage it comes from, for example [1] or [2][3].
If the passages do not contain the answer, say that you don't know. Do not use outside knowledge.`

// Searcher retrieves ranked chunks for a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.SearchHit, error)
}

// Chatter is a single non-streaming chat completion.
type Chatter interface {
	Chat(ctx context.Context, messages []llm.Message, maxTokens int) (string, error)
}

// Config holds composer defaults.
type Config struct {
	K            int
	Keep         int
	MaxTokens    int
	SnippetChars int
}

// Request is one answer call. Zero fields use the configured defaults.
type Request struct {
	Query     string
	K         int
	Keep      int
	MaxTokens int
}

// Response is the answer with its citations and the full ranked context.
type Response struct {
	Answer    string             `json:"answer"`
	Citations []models.Citation  `json:"citations"`
	Context   []models.SearchHit `json:"context"`
}

// Composer answers questions from indexed content.
type Composer struct {
	searcher Searcher
	chat     Chatter
	config   Config
}

// New creates a composer.
func New(searcher Searcher, chat Chatter, config Config) (*Composer, error) {
	if searcher == nil || chat == nil {
		return nil, errors.New("searcher and chat backend are required")
	}
	if config.K <= 0 {
		config.K = DefaultK
	}
	if config.Keep <= 0 {
		config.Keep = DefaultKeep
	}
	if config.SnippetChars <= 0 {
		config.SnippetChars = DefaultSnippetChars
	}
	return &Composer{searcher: searcher, chat: chat, config: config}, nil
}

// Answer retrieves k hits, grounds the prompt on the first keep of them and
// returns the chat backend's reply. The backend is called even when nothing
// was retrieved; its failure is returned as is.
func (c *Composer) Answer(ctx context.Context, req Request) (*Response, error) {
	k, keep := req.K, req.Keep
	if k <= 0 {
		k = c.config.K
	}
	if keep <= 0 {
		keep = c.config.Keep
	}
	keep = min(keep, k)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.config.MaxTokens
	}

	hits, err := c.searcher.Search(ctx, req.Query, k)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	grounding := hits[:min(keep, len(hits))]

	messages := []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(BuildPrompt(req.Query, grounding)),
	}
	reply, err := c.chat.Chat(ctx, messages, maxTokens)
	if err != nil {
		return nil, err
	}

	citations := make([]models.Citation, len(grounding))
	for i, hit := range grounding {
		citations[i] = models.Citation{
			Reference: i + 1,
			Resource:  models.ResourceURI(hit.Payload.DocHash, hit.Payload.ChunkID),
			DocPath:   hit.Payload.DocPath,
			Snippet:   Snippet(hit.Payload.Content, c.config.SnippetChars),
		}
	}

	slog.Debug("answer composed", "k", k, "keep", keep, "hits", len(hits), "citations", len(citations))
	return &Response{
		Answer:    strings.TrimSpace(reply),
		Citations: citations,
		Context:   hits,
	}, nil
}

// BuildPrompt renders the numbered context blocks followed by the question.
func BuildPrompt(query string, hits []models.SearchHit) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	if len(hits) == 0 {
		b.WriteString("(no passages found)\n\n")
	}
	for i, hit := range hits {
		fmt.Fprintf(&b, "[%d] (source: %s)\n%s\n\n", i+1, hit.Payload.DocPath, strings.TrimSpace(hit.Payload.Content))
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}

// Snippet collapses whitespace and cuts text to at most n runes, marking a
// cut with an ellipsis.
func Snippet(text string, n int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if n <= 0 || len(runes) <= n {
		return collapsed
	}
	if n == 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:n-1]), " ") + "…"
}
