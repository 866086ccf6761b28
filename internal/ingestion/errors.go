package ingestion

import (
	"context"
	"errors"

	"github.com/leadai/leadai-rag/internal/embeddings"
	"github.com/leadai/leadai-rag/internal/index"
	"github.com/leadai/leadai-rag/internal/parser"
	"github.com/leadai/leadai-rag/internal/source"
)

// Kind names the error class of a document failure.
func Kind(err error) string {
	var (
		parseErr  *parser.ParseError
		embedErr  *embeddings.EmbeddingError
		dimErr    *index.DimensionMismatchError
		upsertErr *index.UpsertError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &dimErr):
		return "DimensionMismatchError"
	case errors.As(err, &parseErr):
		return "ParseError"
	case errors.As(err, &embedErr):
		return "EmbeddingError"
	case errors.As(err, &upsertErr):
		return "UpsertError"
	case errors.Is(err, source.ErrOutsideAllowList):
		return "AccessDenied"
	case errors.Is(err, source.ErrNotFound):
		return "NotFound"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "Timeout"
	default:
		return "SourceError"
	}
}
