package service

import (
	"context"

	"github.com/xxxsen/paperqa/internal/model"
)

type IPlanModel interface {
	ExtractSearchPlan(ctx context.Context, topic string) (*model.SearchPlan, error)
}

type IPaperSource interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.CandidatePaper, error)
}

type IDocumentLoader interface {
	Load(ctx context.Context, documentURL string) ([]model.Passage, error)
}

type IPassageIndex interface {
	Delete(ctx context.Context, sessionID string) error
	Insert(ctx context.Context, sessionID, documentURL string, passages []model.Passage, vectors [][]float32) (int, error)
	Count(ctx context.Context, sessionID string) (int, error)
	SimilaritySearch(ctx context.Context, sessionID string, vector []float32, k int) ([]model.Passage, error)
}

type IChatHistory interface {
	Append(ctx context.Context, sessionID string, turns ...model.ChatTurn) error
	ListAll(ctx context.Context, sessionID string) ([]model.ChatTurn, error)
	ListAfter(ctx context.Context, sessionID string, afterID int64) ([]model.ChatTurn, error)
}

type ISummaryStore interface {
	Get(ctx context.Context, sessionID string) (*model.ChatSummary, error)
	Upsert(ctx context.Context, s *model.ChatSummary) error
}

type ISummarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}
