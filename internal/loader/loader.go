package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/filestore"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// Loader downloads a source document and splits it into passages.
type Loader struct {
	store        filestore.Store
	client       *http.Client
	maxBytes     int64
	fetchTimeout time.Duration
	chunker      chunker
}

// New builds a loader. store may be nil, in which case documents are fetched
// on every call.
func New(store filestore.Store, cfg config.IngestConfig) *Loader {
	return &Loader{
		store:        store,
		client:       &http.Client{},
		maxBytes:     cfg.MaxDocumentBytes,
		fetchTimeout: time.Duration(cfg.FetchTimeout) * time.Second,
		chunker:      chunker{target: cfg.ChunkTokens, overlap: cfg.OverlapTokens},
	}
}

// Load returns the document passages in reading order. Every failure is
// reported as a fetch failure.
func (l *Loader) Load(ctx context.Context, documentURL string) ([]model.Passage, error) {
	u, err := url.Parse(strings.TrimSpace(documentURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, appErr.Wrapf(appErr.ErrFetch, "invalid document url: %q", documentURL)
	}
	data, err := l.read(ctx, u.String())
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrFetch, err)
	}
	contentType, err := sniffContentType(data, u.String())
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrFetch, err)
	}
	sections, err := extractSections(contentType, data, u.String())
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrFetch, err)
	}
	chunks := l.chunker.split(sections)
	passages := make([]model.Passage, 0, len(chunks))
	for i, c := range chunks {
		meta := map[string]interface{}{
			"source":       u.String(),
			"content_type": contentType,
			"ordinal":      i,
			"token_count":  c.TokenCount,
		}
		if c.Page > 0 {
			meta["page"] = c.Page
		}
		if c.Heading != "" {
			meta["heading"] = c.Heading
		}
		if len(c.Headings) > 0 {
			meta["section_path"] = strings.Join(c.Headings, " > ")
		}
		passages = append(passages, model.Passage{
			Ordinal:           i,
			Text:              c.Text,
			Metadata:          meta,
			SourceDocumentURL: u.String(),
		})
	}
	logutil.GetLogger(ctx).Info("document loaded",
		zap.String("url", u.String()),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
		zap.Int("passages", len(passages)))
	return passages, nil
}

func (l *Loader) read(ctx context.Context, documentURL string) ([]byte, error) {
	key := cacheKey(documentURL)
	if l.store != nil {
		data, err := l.readCached(ctx, key)
		if err == nil {
			logutil.GetLogger(ctx).Debug("document cache hit", zap.String("url", documentURL))
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			logutil.GetLogger(ctx).Warn("read document cache failed", zap.String("url", documentURL), zap.Error(err))
		}
	}
	data, err := l.download(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	if l.store != nil {
		if err := l.store.Save(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			logutil.GetLogger(ctx).Warn("write document cache failed", zap.String("url", documentURL), zap.Error(err))
		}
	}
	return data, nil
}

func (l *Loader) readCached(ctx context.Context, key string) ([]byte, error) {
	rc, err := l.store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes || len(data) == 0 {
		return nil, fmt.Errorf("cached document has unexpected size %d", len(data))
	}
	return data, nil
}

func (l *Loader) download(ctx context.Context, documentURL string) ([]byte, error) {
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download document: %s", resp.Status)
	}
	if resp.ContentLength > l.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", l.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", l.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("document is empty")
	}
	return data, nil
}

func cacheKey(documentURL string) string {
	sum := sha256.Sum256([]byte(documentURL))
	return hex.EncodeToString(sum[:])
}
