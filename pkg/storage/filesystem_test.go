package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStore_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "sessions")

	_, err := NewFilesystemStore(root)
	require.NoError(t, err)

	fi, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestFilesystemStore_EmptyRoot(t *testing.T) {
	_, err := NewFilesystemStore("")
	assert.Error(t, err)
}

func TestFilesystemStore_NoTempLeftovers(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(context.Background(), testSnapshot("sess-a", base)))
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "repeated saves leave exactly the session file")
	assert.Equal(t, "sess-a.json", entries[0].Name())
}

func TestFilesystemStore_SurvivesReopen(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	store, err := NewFilesystemStore(root)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-persist", base)))
	require.NoError(t, store.Close())

	reopened, err := NewFilesystemStore(root)
	require.NoError(t, err)

	got, err := reopened.Get(context.Background(), "sess-persist")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.FileName)
}

func TestFilesystemStore_ListSkipsCorruptFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-good", base)))

	require.NoError(t, os.WriteFile(filepath.Join(root, "corrupt.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignore me"), 0644))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sess-good", infos[0].ID)
}

func TestFilesystemStore_ListReportsSize(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), testSnapshot("sess-size", base)))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Greater(t, infos[0].SizeBytes, int64(0))
}

func TestFilesystemStore_RejectsTraversalIDs(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	snap := testSnapshot("../escape", base)

	assert.Error(t, store.Save(context.Background(), snap))

	_, err = store.Get(context.Background(), "../escape")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Error(t, store.Delete(context.Background(), "../escape"))
}

func TestFilesystemStore_PingFailsWhenRootRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "sessions")
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(root))
	assert.Error(t, store.Ping(context.Background()))
}
