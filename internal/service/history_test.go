package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/model"
)

func words(n int, w string) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func seedConversation(t *testing.T, h *memHistory, sid string, exchanges int) {
	t.Helper()
	for i := 0; i < exchanges; i++ {
		require.NoError(t, h.Append(context.Background(), sid,
			model.ChatTurn{Role: model.ChatRoleUser, Content: words(10, "question")},
			model.ChatTurn{Role: model.ChatRoleAssistant, Content: words(10, "answer")},
		))
	}
}

var smallBudget = HistoryConfig{ContextTokens: 100, TriggerFraction: 0.5, KeepFraction: 0.2}

func TestHistoryWindow_BelowTriggerReturnsAll(t *testing.T) {
	h := &memHistory{}
	seedConversation(t, h, "sid", 2)
	sum := &fakeSummarizer{reply: "unused"}
	w := NewHistoryWindow(h, newMemSummaries(), sum, smallBudget)

	summary, turns, err := w.Load(context.Background(), "sid")
	require.NoError(t, err)
	require.Empty(t, summary)
	require.Len(t, turns, 4)
	require.Zero(t, sum.calls)
}

func TestHistoryWindow_CompactsOlderTurns(t *testing.T) {
	h := &memHistory{}
	seedConversation(t, h, "sid", 3)
	summaries := newMemSummaries()
	sum := &fakeSummarizer{reply: "user asked three questions"}
	w := NewHistoryWindow(h, summaries, sum, smallBudget)

	summary, turns, err := w.Load(context.Background(), "sid")
	require.NoError(t, err)
	require.Equal(t, "user asked three questions", summary)
	require.Len(t, turns, 2)
	require.Equal(t, model.ChatRoleUser, turns[0].Role)
	require.Equal(t, int64(5), turns[0].ID)
	require.Contains(t, sum.transcript, "user: question")

	saved, err := summaries.Get(context.Background(), "sid")
	require.NoError(t, err)
	require.Equal(t, int64(4), saved.CoveredUntil)

	// the stored summary now covers the older turns
	summary, turns, err = w.Load(context.Background(), "sid")
	require.NoError(t, err)
	require.Equal(t, "user asked three questions", summary)
	require.Len(t, turns, 2)
	require.Equal(t, 1, sum.calls)
}

func TestHistoryWindow_SummarizeFailureKeepsRecent(t *testing.T) {
	h := &memHistory{}
	seedConversation(t, h, "sid", 3)
	summaries := newMemSummaries()
	w := NewHistoryWindow(h, summaries, &fakeSummarizer{err: errors.New("down")}, smallBudget)

	summary, turns, err := w.Load(context.Background(), "sid")
	require.NoError(t, err)
	require.Empty(t, summary)
	require.Len(t, turns, 2)
	require.Empty(t, summaries.items)
}

func TestKeepStart_BeginsWithUserTurn(t *testing.T) {
	turns := []model.ChatTurn{
		{Role: model.ChatRoleUser, Content: words(10, "q")},
		{Role: model.ChatRoleAssistant, Content: words(10, "a")},
		{Role: model.ChatRoleUser, Content: words(10, "q")},
		{Role: model.ChatRoleAssistant, Content: words(10, "a")},
	}
	require.Equal(t, 2, keepStart(turns, 20))
	require.Equal(t, 2, keepStart(turns, 25))
	require.Equal(t, 4, keepStart(turns, 10))
	require.Equal(t, 0, keepStart(turns, 1000))
}
