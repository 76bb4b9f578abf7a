package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline-platform/ragline/internal/memory"
)

func writeTempDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile(t *testing.T) {
	store := &fakeStore{}
	ing := NewIngestor(store, nil, 1000, 200)
	path := writeTempDoc(t, "a short document about nothing in particular")

	chunks, err := ing.IngestFile(context.Background(), path, "global")
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	require.Len(t, store.saved, 1)
	assert.Equal(t, memory.SourceDocument, store.saved[0].Source)
	assert.Equal(t, "global", store.saved[0].UserID)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "upload should be removed after ingest")
}

func TestIngestFile_EmptyDocument(t *testing.T) {
	ing := NewIngestor(&fakeStore{}, nil, 1000, 200)
	path := writeTempDoc(t, "   \n\t")

	_, err := ing.IngestFile(context.Background(), path, "global")
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "failed ingest keeps the upload for retry")
}

func TestIngestFile_StoreFailureKeepsUpload(t *testing.T) {
	store := &fakeStore{saveErr: fmt.Errorf("db down")}
	ing := NewIngestor(store, nil, 1000, 200)
	path := writeTempDoc(t, "some content")

	_, err := ing.IngestFile(context.Background(), path, "global")
	assert.Error(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestSplitText(t *testing.T) {
	t.Run("short text is a single chunk", func(t *testing.T) {
		chunks := SplitText("hello world", 1000, 200)
		assert.Equal(t, []string{"hello world"}, chunks)
	})

	t.Run("long text is split with overlap", func(t *testing.T) {
		words := strings.Repeat("word ", 200)
		chunks := SplitText(strings.TrimSpace(words), 100, 20)

		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len([]rune(c)), 100)
			assert.NotEmpty(t, c)
		}
	})

	t.Run("prefers splitting on whitespace", func(t *testing.T) {
		text := strings.Repeat("alpha beta gamma delta ", 20)
		chunks := SplitText(strings.TrimSpace(text), 50, 10)
		for _, c := range chunks {
			assert.False(t, strings.HasPrefix(c, " "))
			assert.False(t, strings.HasSuffix(c, " "))
		}
	})

	t.Run("makes progress on unbreakable text", func(t *testing.T) {
		text := strings.Repeat("x", 500)
		chunks := SplitText(text, 100, 99)
		require.NotEmpty(t, chunks)

		var total int
		for _, c := range chunks {
			total += len(c)
		}
		assert.GreaterOrEqual(t, total, 500)
	})
}
