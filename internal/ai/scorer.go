package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IScorer assigns one relevance score per document for the query. Higher is
// more relevant; the result is aligned with docs by index.
type IScorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float32, error)
}

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
	Model   string         `json:"model"`
}

type crossEncoderScorer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewCrossEncoderScorer calls a pairwise cross-encoder service exposing
// POST {baseURL}/v1/rerank.
func NewCrossEncoderScorer(baseURL, model string, timeout time.Duration) IScorer {
	return &crossEncoderScorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *crossEncoderScorer) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	if len(docs) == 0 {
		return []float32{}, nil
	}
	start := time.Now()
	payload, err := json.Marshal(rerankRequest{Query: query, Candidates: docs, Model: s.model})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call rerank endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(out.Results) != len(docs) {
		return nil, fmt.Errorf("rerank returned %d results for %d candidates", len(out.Results), len(docs))
	}
	scores := make([]float32, len(docs))
	seen := make([]bool, len(docs))
	for _, r := range out.Results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(docs))
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}
	logutil.GetLogger(ctx).Debug("rerank scored",
		zap.Int("candidates", len(docs)),
		zap.String("model", out.Model),
		zap.Duration("cost", time.Since(start)))
	return scores, nil
}

type embeddingScorer struct {
	embedder    IEmbedder
	concurrency int
}

// NewEmbeddingScorer scores documents by cosine similarity between the query
// embedding and each document embedding.
func NewEmbeddingScorer(embedder IEmbedder, concurrency int) IScorer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &embeddingScorer{embedder: embedder, concurrency: concurrency}
}

func (s *embeddingScorer) Score(ctx context.Context, query string, docs []string) ([]float32, error) {
	if len(docs) == 0 {
		return []float32{}, nil
	}
	qv, err := s.embedder.Embed(ctx, query, TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	scores := make([]float32, len(docs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, doc := range docs {
		eg.Go(func() error {
			dv, err := s.embedder.Embed(ctx, doc, TaskRetrievalDocument)
			if err != nil {
				return fmt.Errorf("embed candidate %d: %w", i, err)
			}
			scores[i] = Cosine(qv, dv)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the dimensions differ.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
