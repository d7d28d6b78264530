package service

import (
	"context"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type SearchConfig struct {
	MaxResultsPerQuery int
	RerankTopK         int
	ResponseLimit      int
}

type SearchResult struct {
	SessionID      string
	Papers         []model.CandidatePaper
	ExpandedIntent string
}

type SearchService struct {
	planner *Planner
	source  IPaperSource
	scorer  ai.IScorer
	cfg     SearchConfig
}

func NewSearchService(planner *Planner, source IPaperSource, scorer ai.IScorer, cfg SearchConfig) *SearchService {
	return &SearchService{planner: planner, source: source, scorer: scorer, cfg: cfg}
}

// SearchPapers plans, searches, dedups and reranks for one topic and opens a
// new session for the result.
func (s *SearchService) SearchPapers(ctx context.Context, topic string) (res *SearchResult, err error) {
	start := time.Now()
	defer func() {
		metrics.SearchRequests.WithLabelValues(metrics.Status(err)).Inc()
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()
	logger := logutil.GetLogger(ctx).With(zap.String("topic", topic))

	plan, err := s.planner.Expand(ctx, topic)
	if err != nil {
		logger.Error("expand topic failed", zap.Error(err))
		return nil, err
	}
	logger.Info("search plan ready",
		zap.Strings("queries", plan.Queries[:]),
		zap.Int("intent_len", len(plan.ExpandedIntent)))

	candidates, err := s.SearchAll(ctx, plan)
	if err != nil {
		return nil, err
	}
	ranked, err := s.Rerank(ctx, plan.ExpandedIntent, candidates, s.cfg.RerankTopK)
	if err != nil {
		logger.Error("rerank failed", zap.Error(err))
		return nil, err
	}
	if s.cfg.ResponseLimit > 0 && len(ranked) > s.cfg.ResponseLimit {
		ranked = ranked[:s.cfg.ResponseLimit]
	}
	res = &SearchResult{
		SessionID:      newSessionID(),
		Papers:         ranked,
		ExpandedIntent: plan.ExpandedIntent,
	}
	logger.Info("search finished",
		zap.String("session_id", res.SessionID),
		zap.Int("candidates", len(candidates)),
		zap.Int("papers", len(res.Papers)),
		zap.Duration("cost", time.Since(start)))
	return res, nil
}

// SearchAll runs every plan query concurrently and returns the merged,
// deduplicated records. A failing query contributes nothing; the call only
// fails when every query failed.
func (s *SearchService) SearchAll(ctx context.Context, plan *model.SearchPlan) ([]model.CandidatePaper, error) {
	results := make([][]model.CandidatePaper, len(plan.Queries))
	errs := make([]error, len(plan.Queries))
	var eg errgroup.Group
	for i, q := range plan.Queries {
		eg.Go(func() error {
			papers, err := s.source.Search(ctx, q, s.cfg.MaxResultsPerQuery)
			if err != nil {
				logutil.GetLogger(ctx).Warn("paper query failed", zap.String("query", q), zap.Error(err))
				errs[i] = err
				return nil
			}
			results[i] = papers
			return nil
		})
	}
	_ = eg.Wait()

	failed := 0
	var merged []model.CandidatePaper
	for i := range plan.Queries {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failed == len(plan.Queries) {
		return nil, appErr.Wrap(appErr.ErrSearch, errs[len(errs)-1])
	}
	return Dedup(merged), nil
}

// Dedup keeps one record per StableID. The last seen record wins, placed at
// the position where the id first appeared.
func Dedup(papers []model.CandidatePaper) []model.CandidatePaper {
	pos := make(map[string]int, len(papers))
	out := make([]model.CandidatePaper, 0, len(papers))
	for _, p := range papers {
		if i, ok := pos[p.StableID]; ok {
			out[i] = p
			continue
		}
		pos[p.StableID] = len(out)
		out = append(out, p)
	}
	return out
}

// Rerank orders candidates by scorer relevance to intent, highest first, and
// keeps at most topK. Equal scores keep their input order.
func (s *SearchService) Rerank(ctx context.Context, intent string, candidates []model.CandidatePaper, topK int) ([]model.CandidatePaper, error) {
	if len(candidates) == 0 || topK <= 0 {
		return []model.CandidatePaper{}, nil
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Title + ". " + c.Summary
	}
	scores, err := s.scorer.Score(ctx, intent, docs)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrSearch, err)
	}
	if len(scores) != len(candidates) {
		return nil, appErr.Wrapf(appErr.ErrSearch, "scorer returned %d scores for %d candidates", len(scores), len(candidates))
	}
	ranked := make([]model.CandidatePaper, len(candidates))
	for i, c := range candidates {
		c.Score = scores[i]
		ranked[i] = c
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
