// Package events describes what the ingestion engine reports while it runs.
package events

import "time"

// DocumentProcessed is sent when one document finishes, successfully or not.
type DocumentProcessed struct {
	Path     string        // locator of the document
	Hash     string        // content hash, empty if the read failed
	Chunks   int           // chunks written
	Pruned   int           // stale chunks removed from a previous version
	Stage    string        // stage that failed, empty on success
	Skipped  bool          // unsupported or empty document
	Err      error         // nil on success
	Duration time.Duration // time spent on this document
}

// IngestionComplete is sent once a batch finishes.
type IngestionComplete struct {
	DocsIndexed   int
	ChunksWritten int
	Skipped       int
	Failed        int
	Duration      time.Duration
}

// Observer receives ingestion events. Implementations must be safe for
// concurrent use: DocumentProcessed is called from every ingestion worker
// goroutine at once, IngestionComplete once after all workers return.
type Observer interface {
	DocumentProcessed(DocumentProcessed)
	IngestionComplete(IngestionComplete)
}

// Funcs adapts plain functions to Observer; nil fields are ignored.
type Funcs struct {
	OnDocument func(DocumentProcessed)
	OnComplete func(IngestionComplete)
}

func (f Funcs) DocumentProcessed(e DocumentProcessed) {
	if f.OnDocument != nil {
		f.OnDocument(e)
	}
}

func (f Funcs) IngestionComplete(e IngestionComplete) {
	if f.OnComplete != nil {
		f.OnComplete(e)
	}
}
