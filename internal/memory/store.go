package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Embedder turns text into a vector. Satisfied by the Ollama client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector memory store: it embeds text and persists it through
// the repository, and answers user-scoped similarity searches.
type Store struct {
	repo     Repository
	embedder Embedder
}

// NewStore creates a new memory store.
func NewStore(repo Repository, embedder Embedder) *Store {
	return &Store{repo: repo, embedder: embedder}
}

// Save embeds content and persists it as a new entry.
func (s *Store) Save(ctx context.Context, content, source, userID string) (*Entry, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}

	entry := &Entry{
		UserID:    userID,
		Source:    source,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, entry, vec); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveAll embeds and persists a batch of contents sharing source and owner.
func (s *Store) SaveAll(ctx context.Context, contents []string, source, userID string) error {
	entries := make([]*Entry, 0, len(contents))
	embeddings := make([][]float32, 0, len(contents))
	now := time.Now()

	for _, content := range contents {
		vec, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("embedding content: %w", err)
		}
		entries = append(entries, &Entry{
			UserID:    userID,
			Source:    source,
			Content:   content,
			CreatedAt: now,
		})
		embeddings = append(embeddings, vec)
	}

	return s.repo.CreateBatch(ctx, entries, embeddings)
}

// Search returns the top-k entries owned by userID most similar to query.
func (s *Store) Search(ctx context.Context, query, userID string, k int) ([]Entry, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.repo.SearchSimilar(ctx, userID, vec, k)
}

// Seed inserts the sentinel bootstrap entry when the store is empty, so a
// fresh deployment starts from a valid, non-empty index.
func (s *Store) Seed(ctx context.Context) error {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return fmt.Errorf("checking store size: %w", err)
	}
	if count > 0 {
		return nil
	}

	slog.Info("memory store is empty, inserting bootstrap entry")
	_, err = s.Save(ctx, "start", SourceInitialization, SeedUserID)
	return err
}

// List returns every entry in the store, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	return s.repo.List(ctx)
}

// Delete removes a single entry by id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
