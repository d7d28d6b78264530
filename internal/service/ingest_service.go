package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/keylock"
)

type IngestConfig struct {
	EmbedConcurrency int
	Timeout          time.Duration
}

type IngestService struct {
	loader   IDocumentLoader
	index    IPassageIndex
	embedder ai.IEmbedder
	locks    *keylock.KeyLock
	cfg      IngestConfig
}

func NewIngestService(loader IDocumentLoader, index IPassageIndex, embedder ai.IEmbedder, locks *keylock.KeyLock, cfg IngestConfig) *IngestService {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	return &IngestService{loader: loader, index: index, embedder: embedder, locks: locks, cfg: cfg}
}

// Ingest replaces the session index with the passages of documentURL and
// returns the verified passage count.
func (s *IngestService) Ingest(ctx context.Context, sessionID, documentURL string) (count int, err error) {
	sessionID = strings.TrimSpace(sessionID)
	documentURL = strings.TrimSpace(documentURL)
	if sessionID == "" {
		return 0, appErr.Wrapf(appErr.ErrInvalid, "session_id is required")
	}
	if documentURL == "" {
		return 0, appErr.Wrapf(appErr.ErrInvalid, "pdf_url is required")
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		metrics.IngestDuration.WithLabelValues(metrics.Status(err)).Observe(time.Since(start).Seconds())
	}()
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID), zap.String("url", documentURL))

	unlock := s.locks.Lock("ingest:" + sessionID)
	defer unlock()

	passages, err := s.loader.Load(ctx, documentURL)
	if err != nil {
		logger.Error("load document failed", zap.Error(err))
		return 0, appErr.Wrap(appErr.ErrFetch, err)
	}
	for i := range passages {
		passages[i].Metadata = SanitizeMetadata(passages[i].Metadata)
	}
	if len(passages) == 0 {
		return 0, appErr.Wrapf(appErr.ErrFetch, "document produced no passages")
	}

	// Vectors are computed before the old index is dropped so a failed
	// embedding leaves the previous document searchable.
	vectors, err := s.embedAll(ctx, passages)
	if err != nil {
		logger.Error("embed passages failed", zap.Error(err))
		return 0, err
	}

	if err := s.index.Delete(ctx, sessionID); err != nil {
		logger.Error("reset session index failed", zap.Error(err))
		return 0, appErr.Wrap(appErr.ErrInternal, fmt.Errorf("reset session index: %w", err))
	}
	written, err := s.index.Insert(ctx, sessionID, documentURL, passages, vectors)
	if err != nil {
		logger.Error("write passages failed", zap.Error(err))
		return 0, appErr.Wrap(appErr.ErrInternal, fmt.Errorf("write passages: %w", err))
	}

	count, err = s.index.Count(ctx, sessionID)
	if err != nil {
		return 0, appErr.Wrap(appErr.ErrInternal, fmt.Errorf("count passages: %w", err))
	}
	if count == 0 {
		return 0, appErr.Wrapf(appErr.ErrIngestionVerification,
			"index is empty after writing %d passages (reported %d)", len(passages), written)
	}
	metrics.IngestedPassages.Add(float64(count))
	logger.Info("document ingested",
		zap.Int("passages", len(passages)),
		zap.Int("count", count),
		zap.Duration("cost", time.Since(start)))
	return count, nil
}

func (s *IngestService) embedAll(ctx context.Context, passages []model.Passage) ([][]float32, error) {
	vectors := make([][]float32, len(passages))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.EmbedConcurrency)
	for i := range passages {
		eg.Go(func() error {
			v, err := s.embedder.Embed(ctx, passages[i].Text, ai.TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed passage %d: %w", passages[i].Ordinal, err)
			}
			if len(v) == 0 {
				return fmt.Errorf("embed passage %d: empty vector", passages[i].Ordinal)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// SanitizeMetadata keeps only scalar values (strings, booleans, integers and
// floats). Nested values and nils are dropped.
func SanitizeMetadata(meta map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		switch v.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
			out[k] = v
		}
	}
	return out
}
