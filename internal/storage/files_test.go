package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRemove(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), time.Second, 0)
	require.NoError(t, err)

	path, size, err := store.Save("user/../1", "paper-1", "Paper.PDF", strings.NewReader("%PDF-1.4 body"))
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)
	assert.Equal(t, "paper-1.pdf", filepath.Base(path))
	assert.Equal(t, "user____1", filepath.Base(filepath.Dir(path)))

	data, err := store.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(data))

	require.NoError(t, store.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Remove(path), "removing twice is fine")
}

func TestSaveRejectsOversized(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, time.Second, 4)
	require.NoError(t, err)

	_, _, err = store.Save("u", "p", "a.pdf", strings.NewReader("too large"))
	require.ErrorIs(t, err, ErrTooLarge)
	_, statErr := os.Stat(filepath.Join(dir, "u", "p.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.pdf" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote bytes"))
	}))
	defer srv.Close()

	store, err := NewFileStore(t.TempDir(), time.Second, 0)
	require.NoError(t, err)

	data, err := store.Load(context.Background(), srv.URL+"/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "remote bytes", string(data))

	_, err = store.Load(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorContains(t, err, "status 404")

	assert.NoError(t, store.Remove(srv.URL+"/paper.pdf"))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.org/a.pdf"))
	assert.True(t, IsRemote("HTTP://example.org/a.pdf"))
	assert.False(t, IsRemote("/data/papers/a.pdf"))
	assert.False(t, IsRemote("ftp://example.org/a.pdf"))
}
