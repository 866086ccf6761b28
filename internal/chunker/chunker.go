// Package chunker splits normalized document text into overlapping windows.
package chunker

import (
	"errors"

	"github.com/leadai/leadai-rag/internal/parser"
	"github.com/leadai/leadai-rag/pkg/models"
)

// Defaults used when a request does not specify a window.
const (
	DefaultSize    = 900
	DefaultOverlap = 120
)

// ErrInvalidSize is returned for a window size below one rune.
var ErrInvalidSize = errors.New("chunk size must be positive")

// Piece is one window of text with its position in the sequence.
type Piece struct {
	Sequence int
	Text     string
}

// Split cuts text into windows of size runes, each starting size-overlap runes
// after the previous one. The step never drops below one rune so the loop always
// advances, and the final window ends exactly at the end of the text.
func Split(text string, size, overlap int) ([]Piece, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := max(1, size-overlap)
	pieces := make([]Piece, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		pieces = append(pieces, Piece{Sequence: len(pieces), Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return pieces, nil
}

// ChunkDocument windows every section of a parsed document and numbers the
// resulting chunks with one continuous sequence. Chunk IDs derive from the
// document hash and that sequence.
func ChunkDocument(docHash string, parsed *parser.Parsed, size, overlap int) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, section := range parsed.Sections {
		pieces, err := Split(section.Text, size, overlap)
		if err != nil {
			return nil, err
		}
		for _, p := range pieces {
			seq := len(chunks)
			chunks = append(chunks, models.Chunk{
				DocumentHash: docHash,
				Sequence:     seq,
				Text:         p.Text,
				ID:           models.ChunkID(docHash, seq),
				Sheet:        section.Sheet,
				Page:         section.Page,
			})
		}
	}
	return chunks, nil
}
