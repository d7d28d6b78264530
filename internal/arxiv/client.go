package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const maxFeedBytes = 8 << 20

// Client queries the arXiv Atom API. Requests are paced process wide since
// arXiv asks clients to keep at least a few seconds between calls.
type Client struct {
	baseURL    string
	maxResults int
	maxRetries int
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

func NewClient(cfg config.ArxivConfig) *Client {
	interval := time.Duration(cfg.MinIntervalMS) * time.Millisecond
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResultsPerQuery,
		maxRetries: cfg.MaxRetries,
		timeout:    time.Duration(cfg.Timeout) * time.Second,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Search returns up to maxResults records ranked by relevance. maxResults <= 0
// uses the configured default.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.CandidatePaper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.Wrapf(appErr.ErrInvalid, "query is empty")
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	endpoint := c.buildURL(query, maxResults)

	var feed *atomFeed
	op := func() error {
		// Pacing waits on the caller context; the timeout covers one request.
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		out, err := c.fetchOnce(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		feed = out
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logutil.GetLogger(ctx).Warn("arxiv query failed, retrying",
			zap.String("query", query), zap.Duration("wait", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		metrics.GatewayQueries.WithLabelValues("error").Inc()
		return nil, appErr.Wrap(appErr.ErrSearch, err)
	}

	papers := make([]model.CandidatePaper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.isError() {
			metrics.GatewayQueries.WithLabelValues("error").Inc()
			return nil, appErr.Wrapf(appErr.ErrSearch, "arxiv rejected query %q: %s", query, collapseSpace(e.Summary))
		}
		p := e.toPaper()
		if p.StableID == "" {
			continue
		}
		papers = append(papers, p)
	}
	metrics.GatewayQueries.WithLabelValues("ok").Inc()
	logutil.GetLogger(ctx).Debug("arxiv query done", zap.String("query", query), zap.Int("results", len(papers)))
	return papers, nil
}

func (c *Client) buildURL(query string, maxResults int) string {
	values := url.Values{}
	values.Set("search_query", normalizeQuery(query))
	values.Set("start", "0")
	values.Set("max_results", strconv.Itoa(maxResults))
	values.Set("sortBy", "relevance")
	values.Set("sortOrder", "descending")
	return c.baseURL + "?" + values.Encode()
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (*atomFeed, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("arxiv returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}
	var feed atomFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode arxiv feed: %w", err))
	}
	return &feed, nil
}

var fieldPrefixes = []string{"all:", "ti:", "au:", "abs:", "co:", "jr:", "cat:", "rn:", "id:"}

// normalizeQuery scopes bare free text to all fields. Queries that already
// use field syntax are sent unchanged. A prefix only counts at the start of a
// term, so "COVID:" or "bobcat:" stay free text.
func normalizeQuery(q string) string {
	lower := strings.ToLower(q)
	for _, p := range fieldPrefixes {
		for from := 0; ; {
			i := strings.Index(lower[from:], p)
			if i < 0 {
				break
			}
			i += from
			if i == 0 || lower[i-1] == '(' || unicode.IsSpace(rune(lower[i-1])) {
				return q
			}
			from = i + 1
		}
	}
	return "all:" + q
}
