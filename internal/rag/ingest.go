package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ragline-platform/ragline/internal/memory"
	"github.com/ragline-platform/ragline/internal/metrics"
)

// IngestSink receives notifications about ingested documents. A nil sink
// disables publishing.
type IngestSink interface {
	DocumentIngested(ctx context.Context, userID, filename string, chunks int)
}

// Ingestor loads an uploaded text document, splits it into overlapping chunks
// and stores each chunk as a document-derived memory entry.
type Ingestor struct {
	store  MemoryStore
	events IngestSink

	chunkSize    int
	chunkOverlap int
}

// NewIngestor creates an ingestor. events may be nil.
func NewIngestor(store MemoryStore, events IngestSink, chunkSize, chunkOverlap int) *Ingestor {
	return &Ingestor{
		store:        store,
		events:       events,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// IngestFile reads path, chunks its contents and persists them under userID.
// The file is removed only after a fully successful ingest, so a failed run
// can be retried from the same upload. Returns the number of chunks stored.
func (ing *Ingestor) IngestFile(ctx context.Context, path, userID string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading document: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("document is empty")
	}

	chunks := SplitText(text, ing.chunkSize, ing.chunkOverlap)
	if err := ing.store.SaveAll(ctx, chunks, memory.SourceDocument, userID); err != nil {
		return 0, fmt.Errorf("storing document chunks: %w", err)
	}

	metrics.DocumentsIngestedTotal.Inc()
	metrics.MemoryEntriesSavedTotal.WithLabelValues(memory.SourceDocument).Add(float64(len(chunks)))

	if err := os.Remove(path); err != nil {
		slog.Warn("removing ingested upload", "path", path, "error", err)
	}
	if ing.events != nil {
		ing.events.DocumentIngested(ctx, userID, path, len(chunks))
	}

	slog.Info("document ingested", "path", path, "chunks", len(chunks), "user_id", userID)
	return len(chunks), nil
}

// SplitText splits text into chunks of at most size runes with the given
// overlap between consecutive chunks. Chunks prefer to end on a newline or
// space near the size limit so sentences are not cut mid-word.
func SplitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := end
		// Walk back toward a natural break, but not past half the chunk.
		for i := end; i > start+size/2; i-- {
			if runes[i-1] == '\n' || runes[i-1] == ' ' {
				cut = i
				break
			}
		}

		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
