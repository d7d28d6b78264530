package arxiv

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/paperqa/internal/config"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models
      are based on complex recurrent networks.</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
    <category term="cs.CL"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/1810.04805v2</id>
    <published>2018-10-11T00:50:01Z</published>
    <title>BERT</title>
    <summary>Language representation model.</summary>
  </entry>
</feed>`

const errorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_abc</id>
    <title>Error</title>
    <summary>incorrect id format for abc</summary>
  </entry>
</feed>`

func newTestClient(url string, retries int) *Client {
	c := NewClient(config.ArxivConfig{BaseURL: url, MaxResultsPerQuery: 5, MaxRetries: retries, Timeout: 5})
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func TestSearch_ParsesFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "all:transformer attention", q.Get("search_query"))
		require.Equal(t, "5", q.Get("max_results"))
		require.Equal(t, "relevance", q.Get("sortBy"))
		require.Equal(t, "descending", q.Get("sortOrder"))
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	papers, err := newTestClient(srv.URL, 0).Search(context.Background(), "transformer attention", 0)
	require.NoError(t, err)
	require.Len(t, papers, 2)

	p := papers[0]
	require.Equal(t, "http://arxiv.org/abs/1706.03762v7", p.StableID)
	require.Equal(t, "Attention Is All You Need", p.Title)
	require.Equal(t, "The dominant sequence transduction models are based on complex recurrent networks.", p.Summary)
	require.Equal(t, "http://arxiv.org/pdf/1706.03762v7", p.DocumentURL)
	require.Equal(t, "2017-06-12T17:57:34Z", p.PublishedDate)
	require.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, p.Authors)
	require.Equal(t, []string{"cs.CL"}, p.Categories)

	require.Equal(t, "http://arxiv.org/pdf/1810.04805v2", papers[1].DocumentURL)
}

func TestSearch_FieldQueryPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, `all:"Attention Is All You Need"`, r.URL.Query().Get("search_query"))
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()
	_, err := newTestClient(srv.URL, 0).Search(context.Background(), `all:"Attention Is All You Need"`, 3)
	require.NoError(t, err)
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	papers, err := newTestClient(srv.URL, 2).Search(context.Background(), "bert", 0)
	require.NoError(t, err)
	require.Len(t, papers, 2)
	require.EqualValues(t, 2, calls.Load())
}

func TestSearch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		calls   int32
	}{
		{
			name:    "client error is not retried",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			calls:   1,
		},
		{
			name:    "server error exhausts retries",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			calls:   3,
		},
		{
			name:    "error entry",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(errorFeed)) },
			calls:   1,
		},
		{
			name:    "malformed xml",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<feed><entry>")) },
			calls:   1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()
			_, err := newTestClient(srv.URL, 2).Search(context.Background(), "q", 0)
			require.Error(t, err)
			require.True(t, errors.Is(err, appErr.ErrSearch))
			require.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestSearch_PacingWaitDoesNotConsumeRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	// The third caller queues for 1.2s behind the limiter, longer than the 1s request timeout.
	c := NewClient(config.ArxivConfig{BaseURL: srv.URL, MaxResultsPerQuery: 5, MaxRetries: 0, Timeout: 1, MinIntervalMS: 600})
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := c.Search(context.Background(), "bert", 0)
			return err
		})
	}
	require.NoError(t, g.Wait())
}

func TestSearch_CallerCancelStopsPacingWait(t *testing.T) {
	c := NewClient(config.ArxivConfig{BaseURL: "http://127.0.0.1:0", MaxRetries: 2, Timeout: 5, MinIntervalMS: 60000})
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Search(ctx, "bert", 0)
	require.ErrorIs(t, err, appErr.ErrSearch)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "graph networks", want: "all:graph networks"},
		{in: "ti:bert AND cat:cs.CL", want: "ti:bert AND cat:cs.CL"},
		{in: "(au:hinton OR au:lecun)", want: "(au:hinton OR au:lecun)"},
		{in: "deep learning AND ABS:vision", want: "deep learning AND ABS:vision"},
		{in: "COVID: epidemiology models", want: "all:COVID: epidemiology models"},
		{in: "bobcat: habitat tracking", want: "all:bobcat: habitat tracking"},
		{in: "eco: friendly design", want: "all:eco: friendly design"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, normalizeQuery(tt.in))
		})
	}
}
