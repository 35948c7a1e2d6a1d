package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutIsWriteOnce(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	blobs := store.Blobs()
	ctx := context.Background()

	n, err := blobs.Put(ctx, "patent", "E123_1_filing.pdf", bytes.NewBufferString("%PDF-1.4 first"))
	require.NoError(t, err)
	require.Equal(t, int64(14), n)

	_, err = blobs.Put(ctx, "patent", "E123_1_filing.pdf", bytes.NewBufferString("%PDF-1.4 second"))
	require.ErrorIs(t, err, ErrBlobExists)

	blob, err := blobs.Open(ctx, "patent", "E123_1_filing.pdf")
	require.NoError(t, err)
	defer blob.Reader.Close()
	data, err := io.ReadAll(blob.Reader)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 first", string(data))
	require.Equal(t, int64(14), blob.Size)
}

func TestLocalStorageBucketsAreIsolated(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, "award", "same.pdf", bytes.NewBufferString("a"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "book", "same.pdf", bytes.NewBufferString("b"))
	require.NoError(t, err)

	_, err = store.OpenBlob(ctx, "journal", "same.pdf")
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(filepath.Join(dir, "root"))
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../escape", "../../evil.pdf", bytes.NewBufferString("x"))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "evil.pdf"))
	require.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(dir, "root", "escape", "evil.pdf"))
	require.NoError(t, statErr)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("old.csv", []byte("a"))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.resolve("old.csv"), old, old))
	_, err = store.Save("new.csv", []byte("b"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	require.Equal(t, []string{"old.csv"}, deleted)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "my_paper__v2_.pdf", SanitizeName("my paper (v2).pdf"))
	require.Equal(t, "evil.pdf", SanitizeName("../../evil.pdf"))
	require.Equal(t, "file", SanitizeName("..."))
	require.Equal(t, "x.pdf", SanitizeName(`C:\docs\x.pdf`))
}
