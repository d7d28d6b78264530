package filestore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
)

func TestLocalStore_SaveOpen(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Open(ctx, "missing")
	require.True(t, errors.Is(err, fs.ErrNotExist))

	require.NoError(t, store.Save(ctx, "doc", strings.NewReader("hello"), 5))
	rc, err := store.Open(ctx, "doc")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestLocalStore_RejectsPathKeys(t *testing.T) {
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), "../x", strings.NewReader(""), 0))
	_, err = store.Open(context.Background(), "a/b")
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}

func TestNormalizeEndpoint(t *testing.T) {
	require.Equal(t, "https://s3.example.com", normalizeEndpoint("s3.example.com/", true))
	require.Equal(t, "http://minio:9000", normalizeEndpoint("http://minio:9000", true))
}
