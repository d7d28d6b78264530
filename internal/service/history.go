package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/metrics"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/internal/pkg/tokens"
)

type HistoryConfig struct {
	ContextTokens   int
	TriggerFraction float64
	KeepFraction    float64
}

// HistoryWindow reads the conversation of a session bounded by the model
// context budget. Once the stored turns outgrow the trigger share of the
// budget, the older ones are folded into a persisted summary.
type HistoryWindow struct {
	history    IChatHistory
	summaries  ISummaryStore
	summarizer ISummarizer
	cfg        HistoryConfig
}

func NewHistoryWindow(history IChatHistory, summaries ISummaryStore, summarizer ISummarizer, cfg HistoryConfig) *HistoryWindow {
	return &HistoryWindow{history: history, summaries: summaries, summarizer: summarizer, cfg: cfg}
}

// Load returns the summary covering compacted turns (may be empty) and the
// turns to replay verbatim, oldest first.
func (w *HistoryWindow) Load(ctx context.Context, sessionID string) (string, []model.ChatTurn, error) {
	var (
		summary      string
		coveredUntil int64
	)
	prev, err := w.summaries.Get(ctx, sessionID)
	switch {
	case err == nil:
		summary = prev.Summary
		coveredUntil = prev.CoveredUntil
	case errors.Is(err, appErr.ErrNotFound):
	default:
		return "", nil, fmt.Errorf("read summary: %w", err)
	}
	turns, err := w.history.ListAfter(ctx, sessionID, coveredUntil)
	if err != nil {
		return "", nil, fmt.Errorf("read history: %w", err)
	}

	total := tokens.Estimate(summary)
	for _, t := range turns {
		total += tokens.Estimate(t.Content)
	}
	trigger := int(float64(w.cfg.ContextTokens) * w.cfg.TriggerFraction)
	if w.cfg.ContextTokens <= 0 || total <= trigger {
		return summary, turns, nil
	}

	start := keepStart(turns, int(float64(w.cfg.ContextTokens)*w.cfg.KeepFraction))
	if start == 0 {
		return summary, turns, nil
	}
	older, recent := turns[:start], turns[start:]
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))

	next, err := w.summarizer.Summarize(ctx, buildTranscript(summary, older))
	if err == nil && strings.TrimSpace(next) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		metrics.HistorySummaries.WithLabelValues("error").Inc()
		logger.Warn("summarize history failed, keep recent turns only", zap.Error(err))
		return summary, recent, nil
	}
	next = strings.TrimSpace(next)
	if err := w.summaries.Upsert(ctx, &model.ChatSummary{
		SessionID:    sessionID,
		Summary:      next,
		CoveredUntil: older[len(older)-1].ID,
		Mtime:        time.Now().UnixMilli(),
	}); err != nil {
		logger.Warn("save history summary failed", zap.Error(err))
	}
	metrics.HistorySummaries.WithLabelValues("ok").Inc()
	logger.Info("history compacted",
		zap.Int("summarized_turns", len(older)),
		zap.Int("kept_turns", len(recent)),
		zap.Int("tokens_before", total))
	return next, recent, nil
}

// keepStart finds the first index of the newest suffix fitting in budget.
// The suffix always begins with a user turn so question and answer stay
// together.
func keepStart(turns []model.ChatTurn, budget int) int {
	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		used += tokens.Estimate(turns[i].Content)
		if used > budget {
			break
		}
		start = i
	}
	for start < len(turns) && turns[start].Role != model.ChatRoleUser {
		start++
	}
	return start
}

func buildTranscript(summary string, turns []model.ChatTurn) string {
	var sb strings.Builder
	if summary != "" {
		sb.WriteString("Summary so far:\n")
		sb.WriteString(summary)
		sb.WriteString("\n\n")
	}
	for _, t := range turns {
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
