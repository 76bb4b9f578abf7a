package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries    []*Entry
	embeddings [][]float32
	searched   struct {
		userID string
		vector []float32
		limit  int
	}
	searchResult []Entry
	countResult  int64
	err          error
}

func (f *fakeRepo) Create(_ context.Context, entry *Entry, embedding []float32) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	f.embeddings = append(f.embeddings, embedding)
	return nil
}

func (f *fakeRepo) CreateBatch(_ context.Context, entries []*Entry, embeddings [][]float32) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entries...)
	f.embeddings = append(f.embeddings, embeddings...)
	return nil
}

func (f *fakeRepo) SearchSimilar(_ context.Context, userID string, embedding []float32, limit int) ([]Entry, error) {
	f.searched.userID = userID
	f.searched.vector = embedding
	f.searched.limit = limit
	return f.searchResult, f.err
}

func (f *fakeRepo) List(_ context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, *e)
	}
	return out, f.err
}

func (f *fakeRepo) Count(_ context.Context) (int64, error) {
	return f.countResult, f.err
}

func (f *fakeRepo) Delete(_ context.Context, _ uuid.UUID) error {
	return f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vector, f.err
}

func TestStore_Save(t *testing.T) {
	repo := &fakeRepo{}
	emb := &fakeEmbedder{vector: []float32{0.5, 0.5}}
	store := NewStore(repo, emb)

	entry, err := store.Save(context.Background(), "Question: hi\nAnswer: hello", SourceConversation, "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", entry.UserID)
	assert.Equal(t, SourceConversation, entry.Source)
	assert.Equal(t, "Question: hi\nAnswer: hello", entry.Content)
	assert.False(t, entry.CreatedAt.IsZero())

	require.Len(t, repo.entries, 1)
	assert.Equal(t, []float32{0.5, 0.5}, repo.embeddings[0])
	assert.Equal(t, []string{"Question: hi\nAnswer: hello"}, emb.texts)
}

func TestStore_Save_EmbedderError(t *testing.T) {
	repo := &fakeRepo{}
	emb := &fakeEmbedder{err: fmt.Errorf("embedder down")}
	store := NewStore(repo, emb)

	_, err := store.Save(context.Background(), "text", SourceConversation, "alice")
	assert.Error(t, err)
	assert.Empty(t, repo.entries)
}

func TestStore_SaveAll(t *testing.T) {
	repo := &fakeRepo{}
	emb := &fakeEmbedder{vector: []float32{1}}
	store := NewStore(repo, emb)

	err := store.SaveAll(context.Background(), []string{"chunk one", "chunk two"}, SourceDocument, "global")
	require.NoError(t, err)

	require.Len(t, repo.entries, 2)
	for _, e := range repo.entries {
		assert.Equal(t, SourceDocument, e.Source)
		assert.Equal(t, "global", e.UserID)
	}
}

func TestStore_Search_ScopesToUser(t *testing.T) {
	repo := &fakeRepo{searchResult: []Entry{{Content: "past exchange"}}}
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	store := NewStore(repo, emb)

	got, err := store.Search(context.Background(), "what did I ask", "bob", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "bob", repo.searched.userID)
	assert.Equal(t, []float32{0.1, 0.2}, repo.searched.vector)
	assert.Equal(t, 3, repo.searched.limit)
}

func TestStore_Seed_OnlyWhenEmpty(t *testing.T) {
	t.Run("empty store gets bootstrap entry", func(t *testing.T) {
		repo := &fakeRepo{countResult: 0}
		store := NewStore(repo, &fakeEmbedder{vector: []float32{1}})

		require.NoError(t, store.Seed(context.Background()))
		require.Len(t, repo.entries, 1)
		assert.Equal(t, "start", repo.entries[0].Content)
		assert.Equal(t, SourceInitialization, repo.entries[0].Source)
		assert.Equal(t, SeedUserID, repo.entries[0].UserID)
	})

	t.Run("populated store untouched", func(t *testing.T) {
		repo := &fakeRepo{countResult: 7}
		store := NewStore(repo, &fakeEmbedder{vector: []float32{1}})

		require.NoError(t, store.Seed(context.Background()))
		assert.Empty(t, repo.entries)
	})
}

func TestEntry_Metadata(t *testing.T) {
	e := Entry{UserID: "alice", Source: SourceConversation}
	md := e.Metadata()
	assert.Equal(t, "alice", md["user_id"])
	assert.Equal(t, SourceConversation, md["source"])
	assert.Contains(t, md, "timestamp")
}
