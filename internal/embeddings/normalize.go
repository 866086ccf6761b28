package embeddings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Response layouts recognized by Normalize, tried in this order:
//
//  1. OpenAI:        {"data": [{"embedding": [...], "index": 0}, ...]}
//  2. Ollama batch:  {"embeddings": [[...], ...]}
//  3. Single vector: {"embedding": [...]}
//  4. Bare batch:    [[...], ...]
//  5. Bare vector:   [...]
//
// An {"error": ...} object is reported before any shape is tried.

type openAIShape struct {
	Data *[]struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

type batchShape struct {
	Embeddings *[][]float32 `json:"embeddings"`
}

type singleShape struct {
	Embedding *[]float32 `json:"embedding"`
}

type errorShape struct {
	Error json.RawMessage `json:"error"`
}

// Normalize decodes an embeddings response body into exactly want vectors.
func Normalize(body []byte, want int) ([][]float32, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, &EmbeddingError{Reason: "empty response body", Err: ErrUnrecognizedShape}
	}

	vectors, err := decodeShapes(body)
	if err != nil {
		return nil, err
	}

	if len(vectors) != want {
		return nil, &EmbeddingError{
			Reason: fmt.Sprintf("got %d vectors for %d inputs", len(vectors), want),
			Err:    ErrCountMismatch,
		}
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, &EmbeddingError{Reason: fmt.Sprintf("input %d", i), Err: ErrEmptyVector}
		}
	}
	return vectors, nil
}

func decodeShapes(body []byte) ([][]float32, error) {
	if body[0] == '[' {
		var batch [][]float32
		if err := json.Unmarshal(body, &batch); err == nil {
			return batch, nil
		}
		var single []float32
		if err := json.Unmarshal(body, &single); err == nil {
			return [][]float32{single}, nil
		}
		return nil, &EmbeddingError{Reason: "decode array response", Err: ErrUnrecognizedShape}
	}

	var apiErr errorShape
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil, &EmbeddingError{Reason: "decode response", Err: ErrUnrecognizedShape}
	}
	if len(apiErr.Error) > 0 && string(apiErr.Error) != "null" {
		return nil, &EmbeddingError{Reason: "API error", Err: fmt.Errorf("%s", errorMessage(apiErr.Error))}
	}

	var oa openAIShape
	if err := json.Unmarshal(body, &oa); err == nil && oa.Data != nil {
		items := *oa.Data
		sorted := make([]int, len(items))
		for i := range sorted {
			sorted[i] = i
		}
		sort.SliceStable(sorted, func(a, b int) bool {
			return indexOf(items[sorted[a]].Index, sorted[a]) < indexOf(items[sorted[b]].Index, sorted[b])
		})
		vectors := make([][]float32, len(items))
		for i, idx := range sorted {
			vectors[i] = items[idx].Embedding
		}
		return vectors, nil
	}

	var batch batchShape
	if err := json.Unmarshal(body, &batch); err == nil && batch.Embeddings != nil {
		return *batch.Embeddings, nil
	}

	var single singleShape
	if err := json.Unmarshal(body, &single); err == nil && single.Embedding != nil {
		return [][]float32{*single.Embedding}, nil
	}

	return nil, &EmbeddingError{Reason: "no embedding field in response", Err: ErrUnrecognizedShape}
}

func indexOf(idx *int, fallback int) int {
	if idx == nil {
		return fallback
	}
	return *idx
}

// errorMessage extracts a readable message from {"error": "..."} or
// {"error": {"message": "..."}}.
func errorMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &obj) == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
