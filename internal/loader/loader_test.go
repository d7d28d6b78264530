package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/filestore"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const sampleMarkdown = `# Attention

The Transformer relies entirely on attention.

## Training

We train on WMT 2014 English-German.

` + "```" + `
loss = cross_entropy(y, p)
` + "```\n"

func testConfig() config.IngestConfig {
	return config.IngestConfig{MaxDocumentBytes: 1 << 20, ChunkTokens: 50, OverlapTokens: 10, FetchTimeout: 5}
}

func TestLoad_Markdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleMarkdown))
	}))
	defer srv.Close()

	passages, err := New(nil, testConfig()).Load(context.Background(), srv.URL+"/paper.md")
	require.NoError(t, err)
	require.Len(t, passages, 2)
	require.Equal(t, 0, passages[0].Ordinal)
	require.Contains(t, passages[0].Text, "relies entirely on attention")
	require.Equal(t, "Training", passages[1].Metadata["heading"])
	require.Contains(t, passages[1].Text, "loss = cross_entropy(y, p)")
	require.Equal(t, "markdown", passages[1].Metadata["content_type"])
	require.Equal(t, srv.URL+"/paper.md", passages[1].Metadata["source"])
	require.Equal(t, "Attention > Training", passages[1].Metadata["section_path"])
	for _, p := range passages {
		for key, v := range p.Metadata {
			switch v.(type) {
			case string, int:
			default:
				t.Fatalf("metadata %q has non-scalar value %T", key, v)
			}
		}
	}
}

func TestLoad_HTML(t *testing.T) {
	body := `<html><head><title>Sparse Attention</title></head><body><article>
		<h1>Sparse Attention</h1>
		<p>` + strings.Repeat("Sparse attention reduces quadratic cost of self attention. ", 8) + `</p>
		<p>` + strings.Repeat("Experiments show strong results on long documents. ", 8) + `</p>
		</article></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	passages, err := New(nil, testConfig()).Load(context.Background(), srv.URL+"/abs")
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	require.Equal(t, "html", passages[0].Metadata["content_type"])
}

func TestLoad_UsesDocumentCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("plain text body\n\nsecond paragraph"))
	}))
	defer srv.Close()

	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	l := New(store, testConfig())

	first, err := l.Load(context.Background(), srv.URL+"/doc.txt")
	require.NoError(t, err)
	second, err := l.Load(context.Background(), srv.URL+"/doc.txt")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, calls.Load())
}

func TestLoad_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("a", 2<<20)))
		case "/badpdf":
			_, _ = w.Write([]byte("%PDF-1.4\nnot really a pdf"))
		case "/binary":
			_, _ = w.Write([]byte{0x00, 0xff, 0xfe, 0x01, 0x02})
		}
	}))
	defer srv.Close()

	for _, p := range []string{"/missing", "/big", "/badpdf", "/binary"} {
		t.Run(p, func(t *testing.T) {
			_, err := New(nil, testConfig()).Load(context.Background(), srv.URL+p)
			require.Error(t, err)
			require.True(t, errors.Is(err, appErr.ErrFetch))
		})
	}

	_, err := New(nil, testConfig()).Load(context.Background(), "ftp://example.com/x.pdf")
	require.True(t, errors.Is(err, appErr.ErrFetch))
}

func TestSniffContentType(t *testing.T) {
	tests := []struct {
		data string
		url  string
		want string
	}{
		{data: "%PDF-1.7", url: "https://arxiv.org/pdf/1706.03762", want: contentTypePDF},
		{data: "# Title", url: "https://x/readme.md", want: contentTypeMarkdown},
		{data: "<!DOCTYPE html><html></html>", url: "https://x/abs", want: contentTypeHTML},
		{data: "hello world", url: "https://x/a", want: contentTypeText},
	}
	for _, tt := range tests {
		got, err := sniffContentType([]byte(tt.data), tt.url)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.url)
	}
}
