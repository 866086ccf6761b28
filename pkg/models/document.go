package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChunkNamespace seeds chunk point IDs. Changing it changes every derived ID.
var ChunkNamespace = uuid.MustParse("6f1d5c1e-4b7a-5c2e-9a43-2d8e0f7b3c91")

// Document is one ingested source file, identified by the hash of its bytes.
type Document struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Format      string `json:"format"`
	Title       string `json:"title,omitempty"`
}

// Chunk is a window of a document's normalized text.
type Chunk struct {
	DocumentHash string `json:"document_hash"`
	Sequence     int    `json:"sequence"`
	Text         string `json:"text"`
	ID           string `json:"id"`
	Sheet        string `json:"sheet,omitempty"`
	Page         int    `json:"page,omitempty"`
}

// Payload is the metadata stored next to every vector point.
type Payload struct {
	DocPath   string    `json:"doc_path"`
	DocHash   string    `json:"doc_hash"`
	ChunkID   int       `json:"chunk_id"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	Format    string    `json:"format,omitempty"`
	Sheet     string    `json:"sheet,omitempty"`
	Page      int       `json:"page,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// Point is one (id, vector, payload) record written to the vector store.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchHit is a ranked point returned by similarity search.
type SearchHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Citation links an answer reference number to the chunk it came from.
type Citation struct {
	Reference int    `json:"reference"`
	Resource  string `json:"resource"`
	DocPath   string `json:"docPath"`
	Snippet   string `json:"snippet"`
}

// ContentHash returns the hex SHA-256 digest of raw document bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChunkID derives the point ID for a chunk.
// It is a version 5 UUID: SHA-1 over ChunkNamespace and "<docHash>:<seq>",
// truncated to 16 bytes with the version and RFC 4122 variant bits set.
func ChunkID(docHash string, seq int) string {
	return uuid.NewSHA1(ChunkNamespace, []byte(fmt.Sprintf("%s:%d", docHash, seq))).String()
}

// ResourceURI is the citation locator for a chunk.
func ResourceURI(docHash string, seq int) string {
	return fmt.Sprintf("doc://%s/%d", docHash, seq)
}

// ParseResourceURI splits a doc://<hash>/<seq> locator.
func ParseResourceURI(uri string) (docHash string, seq int, err error) {
	rest, ok := strings.CutPrefix(uri, "doc://")
	if !ok {
		return "", 0, fmt.Errorf("resource %q: missing doc:// scheme", uri)
	}
	docHash, seqStr, ok := strings.Cut(rest, "/")
	if !ok || docHash == "" {
		return "", 0, fmt.Errorf("resource %q: want doc://<hash>/<seq>", uri)
	}
	seq, err = strconv.Atoi(seqStr)
	if err != nil || seq < 0 {
		return "", 0, fmt.Errorf("resource %q: invalid chunk sequence", uri)
	}
	return docHash, seq, nil
}
