package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Sentinel history blocks handed to the answer prompt when there is nothing
// to retrieve.
const (
	historyDisabled = "history disabled"
	noHistory       = "no relevant history"
)

// historySeparator joins retrieved entries into one history block.
const historySeparator = "\n---\n"

// Retriever produces the history block and source attributions for a
// question: user-scoped similarity search, then summarization when the
// concatenated history is too long.
type Retriever struct {
	store      MemoryStore
	session    *Session
	summarizer *Summarizer

	topK      int
	threshold int
}

// NewRetriever creates a retriever.
func NewRetriever(store MemoryStore, session *Session, summarizer *Summarizer, topK, threshold int) *Retriever {
	return &Retriever{
		store:      store,
		session:    session,
		summarizer: summarizer,
		topK:       topK,
		threshold:  threshold,
	}
}

// Retrieve returns the history block for the prompt plus the source documents
// it was built from. Sentinel blocks carry no sources. A store failure aborts
// the request rather than silently answering without history.
func (r *Retriever) Retrieve(ctx context.Context, question, userID string) (string, []SourceDocument, error) {
	if !r.session.HistoryEnabled() {
		return historyDisabled, nil, nil
	}

	entries, err := r.store.Search(ctx, question, userID, r.topK)
	if err != nil {
		return "", nil, fmt.Errorf("searching memory: %w", err)
	}
	if len(entries) == 0 {
		return noHistory, nil, nil
	}

	contents := make([]string, 0, len(entries))
	sources := make([]SourceDocument, 0, len(entries))
	for _, e := range entries {
		contents = append(contents, e.Content)
		sources = append(sources, SourceDocument{
			PageContent: e.Content,
			Metadata:    e.Metadata(),
		})
	}

	history := strings.Join(contents, historySeparator)
	if utf8.RuneCountInString(history) > r.threshold {
		history = r.summarizer.Summarize(ctx, history, r.threshold)
	}
	return history, sources, nil
}
